package config

// ApplyDefaults sets default values for any zero values in cfg.
// Storage.DatabasePath stays empty so run recording is opt-in.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Classify.ManifestName == "" {
		cfg.Classify.ManifestName = "description.txt"
	}
	if cfg.Classify.Output == "" {
		cfg.Classify.Output = "text"
	}
	if cfg.Watch.DebounceMS == 0 {
		cfg.Watch.DebounceMS = 400
	}
}
