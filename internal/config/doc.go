// Package config handles configuration loading for bugbook.
//
// # Overview
//
// Configuration is loaded from a YAML file with environment variable
// expansion. Optional fields get defaults; Validate reports the first problem.
//
// # Configuration File
//
// Location (in order):
//
//  1. Path from BUGBOOK_CONFIG environment variable
//  2. $XDG_CONFIG_HOME/bugbook/config.yaml
//  3. ~/.config/bugbook/config.yaml
//
// `bugbook init` writes a file with every field set.
//
// # Environment Variable Expansion
//
//	database:
//	  path: "${HOME}/bugs/bugbook.db"
//
// Unset variables expand to the empty string.
//
// # Configuration Sections
//
//	database:
//	  path: "~/.local/share/bugbook/bugbook.db"   # required
//
//	session:
//	  path: "~/.local/share/bugbook/session.toml" # required
//
//	credentials:
//	  bcrypt_cost: 10          # 4..31
//
//	workers:
//	  pool_size: 0             # 0 = one per CPU
//
//	views:
//	  suspend_grace: "5s"      # time.ParseDuration syntax
//
//	logging:
//	  level: "info"            # debug, info, warn, error
//	  format: "text"           # text, json
package config
