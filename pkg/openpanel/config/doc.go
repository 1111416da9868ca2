/*
Package config provides type-safe configuration extraction from map[string]any,
loaded from YAML or JSON files and from prefixed environment variables.

# Basic Usage

	cfg := config.New(map[string]any{
	    "client_id":           "abc",
	    "initial_retry_delay": "250ms",
	    "max_retries":         5,
	    "wait_for_profile":    true,
	})

	id := cfg.String("client_id", "")                        // "abc"
	delay := cfg.Duration("initial_retry_delay", time.Second) // 250ms
	retries := cfg.Int("max_retries", 3)                      // 5

# Type Coercion

Environment values arrive as strings, so Bool and Int also parse strings.
Duration accepts time.ParseDuration strings and treats bare numbers as
milliseconds. Every accessor returns the default when the key is missing
or the value cannot be converted without loss.

# Loading

	fileCfg, err := config.FromFile("openpanel.yaml")
	envCfg, err := config.FromEnv("OPENPANEL", ".env")
	cfg := fileCfg.Merge(envCfg) // environment wins

# Thread Safety

Config is safe for concurrent read access. The underlying map is not
modified after creation.
*/
package config
