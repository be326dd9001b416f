// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package config provides configuration loading and management for difychat.
//
// Supports TOML and YAML configuration files, with sensible defaults,
// DIFYCHAT_* environment variable overrides, and validation.
//
// # Key Types
//
//   - Config: Complete configuration
//   - RemoteConfig: Upstream chat service settings (proxy side)
//   - ClientConfig: Settings of the terminal clients
//   - ServerConfig: Proxy server settings
//
// # Usage
//
//	cfg, path, err := config.Load("")
//	if err != nil {
//	    return err
//	}
//	fmt.Println(cfg.Remote.BaseURL, "from", path)
//
// # File Locations
//
// In order of precedence:
//   - the path given with --config
//   - $DIFYCHAT_CONFIG
//   - ~/.difychat/config.toml, then ~/.difychat/config.yaml
//   - built-in defaults
package config
