package config

// Vault holds the deployment-wide reclaim windows. Both must be set explicitly.
type Vault struct {
	EscrowPeriodSeconds  int64 `toml:"EscrowPeriodSeconds"`
	ReclaimExpirySeconds int64 `toml:"ReclaimExpirySeconds"`
}

// Oracle selects the market-data source. Exactly one of FeedPath and URL is
// used; URL wins when both are set.
type Oracle struct {
	FeedPath      string `toml:"FeedPath"`
	URL           string `toml:"URL"`
	MaxAgeSeconds int64  `toml:"MaxAgeSeconds"`
}

// Telemetry configures OpenTelemetry export.
type Telemetry struct {
	Endpoint    string  `toml:"Endpoint"`
	Insecure    bool    `toml:"Insecure"`
	Headers     string  `toml:"Headers"`
	Traces      bool    `toml:"Traces"`
	Metrics     bool    `toml:"Metrics"`
	SampleRatio float64 `toml:"SampleRatio"`
}

// Logging configures structured log output.
type Logging struct {
	Level      string `toml:"Level"`
	File       string `toml:"File"`
	MaxSizeMB  int    `toml:"MaxSizeMB"`
	MaxBackups int    `toml:"MaxBackups"`
	MaxAgeDays int    `toml:"MaxAgeDays"`
}

// RateLimit bounds per-client mutating requests.
type RateLimit struct {
	RequestsPerMinute float64 `toml:"RequestsPerMinute"`
	Burst             int     `toml:"Burst"`
}

// Pauses lists modules halted at startup.
type Pauses struct {
	Vault bool `toml:"Vault"`
}
