// SPDX-License-Identifier: MIT
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	applog "spectra/internal/log"
)

// LoadConfig loads configuration from a YAML file specified by path. If
// path is empty, it searches default locations ("spectra.yaml", then
// "config.yaml"). If no file is found, built-in defaults are used. After
// loading, environment variable overrides are applied and the final
// configuration is validated.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path == "" {
		candidates := []string{
			"spectra.yaml",
			"config.yaml",
		}
		for _, candidate := range candidates {
			if _, err := os.Stat(candidate); err == nil {
				path = candidate
				break
			}
		}
		if path == "" {
			cfg.applyEnvOverrides()
			if err := cfg.Validate(); err != nil {
				return nil, fmt.Errorf("invalid default configuration: %w", err)
			}
			return cfg, nil
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	// Apply environment variable overrides AFTER loading from file.
	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// applyEnvOverrides replaces selected fields from SPECTRA_* environment
// variables. Unparseable values are ignored with a warning rather than
// rejected, so a stray variable cannot block startup.
func (c *Config) applyEnvOverrides() {
	if val, ok := os.LookupEnv("SPECTRA_DEBUG"); ok {
		if bVal, err := strconv.ParseBool(val); err == nil {
			c.Debug = bVal
			applog.Debugf("configuration: overriding debug from env: %v", bVal)
		} else {
			applog.Warnf("configuration: ignoring unparseable SPECTRA_DEBUG=%q", val)
		}
	}
	if val, ok := os.LookupEnv("SPECTRA_LOG_LEVEL"); ok {
		c.LogLevel = val
		applog.Debugf("configuration: overriding log_level from env: %s", val)
	}

	if val, ok := os.LookupEnv("SPECTRA_WS_ENABLED"); ok {
		if bVal, err := strconv.ParseBool(val); err == nil {
			c.Transport.WebSocketEnabled = bVal
			applog.Debugf("configuration: overriding transport.websocket_enabled from env: %v", bVal)
		} else {
			applog.Warnf("configuration: ignoring unparseable SPECTRA_WS_ENABLED=%q", val)
		}
	}
	if val, ok := os.LookupEnv("SPECTRA_WS_ADDR"); ok {
		c.Transport.WebSocketAddr = val
		applog.Debugf("configuration: overriding transport.websocket_addr from env: %s", val)
	}

	if val, ok := os.LookupEnv("SPECTRA_UDP_ENABLED"); ok {
		if bVal, err := strconv.ParseBool(val); err == nil {
			c.Transport.UDPEnabled = bVal
			applog.Debugf("configuration: overriding transport.udp_enabled from env: %v", bVal)
		} else {
			applog.Warnf("configuration: ignoring unparseable SPECTRA_UDP_ENABLED=%q", val)
		}
	}
	if val, ok := os.LookupEnv("SPECTRA_UDP_TARGET_ADDRESS"); ok {
		c.Transport.UDPTargetAddress = val
		applog.Debugf("configuration: overriding transport.udp_target_address from env: %s", val)
	}
	if val, ok := os.LookupEnv("SPECTRA_UDP_SEND_INTERVAL"); ok {
		if dur, err := time.ParseDuration(val); err == nil {
			c.Transport.UDPSendInterval = dur
			applog.Debugf("configuration: overriding transport.udp_send_interval from env: %s", dur)
		} else {
			applog.Warnf("configuration: ignoring unparseable SPECTRA_UDP_SEND_INTERVAL=%q", val)
		}
	}

	if val, ok := os.LookupEnv("SPECTRA_TELEMETRY_ENABLED"); ok {
		if bVal, err := strconv.ParseBool(val); err == nil {
			c.Telemetry.Enabled = bVal
			applog.Debugf("configuration: overriding telemetry.enabled from env: %v", bVal)
		} else {
			applog.Warnf("configuration: ignoring unparseable SPECTRA_TELEMETRY_ENABLED=%q", val)
		}
	}
}
