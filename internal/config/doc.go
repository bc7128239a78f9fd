// Package config loads cloak settings from $CLOAK_HOME/config.toml
// (default ~/.cloak/config.toml).
//
// Load order is built-in defaults, then the TOML file, then CLOAK_*
// environment variables. The result is validated as a whole and every
// invalid field is reported together as ValidateErrors.
//
// Example:
//
//	[vault]
//	iterations = 600000
//	auto_lock = "10m"
//
//	[lockout]
//	max_attempts = 3
//	duration = "1h"
//
//	[log]
//	level = "info"
package config
