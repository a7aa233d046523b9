package config

// RedactedConfig returns a shallow copy of cfg with sensitive fields replaced
// by the redaction placeholder "***". Use this when logging or printing the
// active configuration so secrets are never accidentally exposed.
func RedactedConfig(cfg *Config) Config {
	out := *cfg // shallow copy of the top-level struct

	// Postgres
	out.Postgres = cfg.Postgres
	redact(&out.Postgres.DSN)
	redact(&out.Postgres.Password)

	// Redis
	out.Redis = cfg.Redis
	redact(&out.Redis.Password)

	// S3
	out.S3 = cfg.S3
	redact(&out.S3.AccessKey)
	redact(&out.S3.SecretKey)

	// Copy slices so callers cannot mutate the original through the redacted
	// copy.
	if cfg.Feed.BlockedAttributes != nil {
		out.Feed.BlockedAttributes = make([]string, len(cfg.Feed.BlockedAttributes))
		copy(out.Feed.BlockedAttributes, cfg.Feed.BlockedAttributes)
	}
	if cfg.Feed.ExcludedSources != nil {
		out.Feed.ExcludedSources = make([]string, len(cfg.Feed.ExcludedSources))
		copy(out.Feed.ExcludedSources, cfg.Feed.ExcludedSources)
	}

	// Copy maps so mutations to the redacted copy do not affect the original.
	if cfg.Discovery.Weights != nil {
		out.Discovery.Weights = make(map[string]float64, len(cfg.Discovery.Weights))
		for k, v := range cfg.Discovery.Weights {
			out.Discovery.Weights[k] = v
		}
	}
	if cfg.Pricing.Bounds.Items != nil {
		out.Pricing.Bounds.Items = make(map[string]ItemBoundsConfig, len(cfg.Pricing.Bounds.Items))
		for k, v := range cfg.Pricing.Bounds.Items {
			out.Pricing.Bounds.Items[k] = v
		}
	}

	return out
}

const redacted = "***"

// redact replaces a non-empty string with the redacted placeholder.
func redact(s *string) {
	if *s != "" {
		*s = redacted
	}
}
