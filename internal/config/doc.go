// Package config handles configuration loading for council-chat.
//
// # Overview
//
// Configuration is loaded from a YAML or TOML file with environment variable
// expansion. Missing fields keep the values from Default().
//
// # Configuration File
//
// Location (in order):
//
//  1. Path from the COUNCIL_CONFIG environment variable
//  2. $XDG_CONFIG_HOME/council/config.yaml
//  3. ~/.config/council/config.yaml
//
// A path ending in .toml is parsed as TOML; anything else as YAML. When the
// file does not exist, LoadOrDefault returns Default().
//
// # Environment Variable Expansion
//
//	backend:
//	  token: "${COUNCIL_TOKEN}"
//
// Unset variables expand to the empty string.
//
// # Configuration Sections
//
//	backend:
//	  url: "http://localhost:8001"
//	  token: "${COUNCIL_TOKEN}"
//	  request_timeout: "30s"   # list/get/create calls only
//
//	database:
//	  path: "~/.local/share/council/ledger.db"   # empty disables the ledger
//
//	logging:
//	  level: "info"    # debug, info, warn, error
//	  format: "text"   # text or json
//
//	summaries:
//	  refresh_timeout: "10s"
//
// The same file in TOML:
//
//	[backend]
//	url = "http://localhost:8001"
//	request_timeout = "30s"
//
//	[logging]
//	level = "debug"
package config
