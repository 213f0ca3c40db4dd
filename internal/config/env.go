package config

import "os"

// applyEnvOverrides applies the small, explicit set of environment
// overrides named in SPEC_FULL.md §6.7, in the teacher's
// applyEnvironmentOverrides style (os.Getenv-based, not a binding
// library — justified in DESIGN.md: no pack library specializes in this
// over stdlib for a dozen explicit overrides).
func applyEnvOverrides(d *Document) {
	d.DataDir = getEnvString("FLOWCORE_DATA_DIR", d.DataDir)
	if addr := getEnvString("FLOWCORE_API_ADDRESS", ""); addr != "" {
		d.API.Address = addr
		d.API.Enabled = true
	}
}

// LogLevelFromEnv resolves the FLOWCORE_LOG override for cmd/flowcore's
// logger construction; not part of Document since it configures logging
// itself, which exists before any Document is loaded.
func LogLevelFromEnv(defaultLevel string) string {
	return getEnvString("FLOWCORE_LOG", defaultLevel)
}

// ConfigDirFromEnv resolves FLOWCORE_CONFIG_DIR for cmd/flowcore's flag
// default, so the config path can be set without a CLI flag.
func ConfigDirFromEnv(defaultPath string) string {
	return getEnvString("FLOWCORE_CONFIG_DIR", defaultPath)
}

func getEnvString(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}
