/*
Package config loads engine configuration from YAML or JSON.

Config wraps a decoded document and offers typed accessors with defaults.
Dotted keys descend into nested sections:

	cfg, err := config.FromFile("engine.yaml")
	if err != nil {
	    return err
	}
	ttl := cfg.Duration("engine.resolution.ttl", time.Minute)

EngineFrom reads the "engine" section into an Engine value that the
runtime consumes through streamcore.WithEngineConfig.

Config is safe for concurrent reads. The underlying map is never modified.
*/
package config
