// Package config loads rolesweep settings from a YAML file with ROLESWEEP_*
// environment overrides. The platform token is normally supplied through
// ROLESWEEP_PLATFORM_TOKEN rather than the file.
package config
