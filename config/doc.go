// Package config loads jsonrpcd settings from TOML or YAML files and
// JSONRPC_* environment variables, and builds the process logger.
package config
