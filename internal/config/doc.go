// Package config loads runtime settings for the gophvault CLI.
//
// Sources, later ones overriding earlier ones:
//
//  1. built-in defaults (see (*Config).LoadDefaults);
//  2. an optional config file named by -c or -config;
//  3. command-line flags (see parseFlags).
//
// The file format follows the extension: .json and .jsonc accept comments
// and trailing commas, .yaml/.yml and .toml are decoded natively. Keys that
// are absent from the file keep their previous value. Durations are written
// as strings like "15m" (JSON also accepts integer nanoseconds):
//
//	{
//	  // local vault
//	  "vault_path": "~/.gophvault/vault.db",
//	  "history_limit": 10,
//	  "lock_timeout": "15m",
//	}
//
// Invalid input panics, the caller is expected to run LoadConfig at startup.
package config
