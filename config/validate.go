package config

import "fmt"

// MaxSampleRatio bounds the configured trace sampling ratio.
const MaxSampleRatio = 1.0

func ValidateConfig(c *Config) error {
	if err := c.Params().Validate(); err != nil {
		return err
	}
	switch c.DBBackend {
	case BackendMemory, BackendLevelDB, BackendBolt:
	default:
		return fmt.Errorf("storage: unknown DBBackend %q", c.DBBackend)
	}
	if c.Oracle.FeedPath == "" && c.Oracle.URL == "" {
		return fmt.Errorf("oracle: FeedPath or URL required")
	}
	if c.Oracle.MaxAgeSeconds < 0 {
		return fmt.Errorf("oracle: MaxAgeSeconds must be non-negative")
	}
	if c.Telemetry.SampleRatio < 0 || c.Telemetry.SampleRatio > MaxSampleRatio {
		return fmt.Errorf("telemetry: SampleRatio must be within [0, 1]")
	}
	if c.RateLimit.RequestsPerMinute < 0 || c.RateLimit.Burst < 0 {
		return fmt.Errorf("ratelimit: limits must be non-negative")
	}
	return nil
}
