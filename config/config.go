package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"

	"fracvault/native/vault"
)

const (
	BackendMemory  = "mem"
	BackendLevelDB = "leveldb"
	BackendBolt    = "bolt"
)

type Config struct {
	ListenAddress string `toml:"ListenAddress"`
	DataDir       string `toml:"DataDir"`
	DBBackend     string `toml:"DBBackend"`
	Environment   string `toml:"Environment"`
	// JournalDSN enables the SQL event journal. Values starting with
	// postgres:// or postgresql:// use Postgres; anything else is a SQLite DSN.
	JournalDSN string `toml:"JournalDSN"`
	// AdminToken guards the pause endpoint. Empty disables admin routes.
	AdminToken string `toml:"AdminToken"`

	Vault     Vault     `toml:"Vault"`
	Oracle    Oracle    `toml:"Oracle"`
	Logging   Logging   `toml:"Logging"`
	Telemetry Telemetry `toml:"Telemetry"`
	RateLimit RateLimit `toml:"RateLimit"`
	Pauses    Pauses    `toml:"Pauses"`
}

// Load loads the configuration from the given path. The reclaim windows have no
// defaults: a file that omits either is rejected.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	meta, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return nil, fmt.Errorf("load config %s: %w", path, err)
	}

	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, 0, len(undecoded))
		for _, key := range undecoded {
			keys = append(keys, key.String())
		}
		return nil, fmt.Errorf("config file %s has unknown keys: %s", path, strings.Join(keys, ", "))
	}
	for _, key := range []string{"EscrowPeriodSeconds", "ReclaimExpirySeconds"} {
		if !meta.IsDefined("Vault", key) {
			return nil, fmt.Errorf("config file %s: Vault.%s is required", path, key)
		}
	}

	applyDefaults(cfg)
	if err := ValidateConfig(cfg); err != nil {
		return nil, fmt.Errorf("config file %s: %w", path, err)
	}
	return cfg, nil
}

func applyDefaults(cfg *Config) {
	if strings.TrimSpace(cfg.ListenAddress) == "" {
		cfg.ListenAddress = ":8090"
	}
	if strings.TrimSpace(cfg.DataDir) == "" {
		cfg.DataDir = "./vault-data"
	}
	cfg.DBBackend = strings.ToLower(strings.TrimSpace(cfg.DBBackend))
	if cfg.DBBackend == "" {
		cfg.DBBackend = BackendLevelDB
	}
	if strings.TrimSpace(cfg.Environment) == "" {
		cfg.Environment = "local"
	}
	if cfg.RateLimit.RequestsPerMinute == 0 {
		cfg.RateLimit.RequestsPerMinute = 120
	}
	if cfg.RateLimit.Burst == 0 {
		cfg.RateLimit.Burst = 20
	}
}

// Params returns the vault parameters described by the configuration.
func (c *Config) Params() vault.Params {
	return vault.Params{
		EscrowPeriodSeconds:  c.Vault.EscrowPeriodSeconds,
		ReclaimExpirySeconds: c.Vault.ReclaimExpirySeconds,
	}
}

// DBPath returns the on-disk location for persistent backends.
func (c *Config) DBPath() string {
	switch c.DBBackend {
	case BackendBolt:
		return filepath.Join(c.DataDir, "vault.bolt")
	default:
		return filepath.Join(c.DataDir, "state")
	}
}

// Save writes cfg to path, creating parent directories as needed.
func Save(path string, cfg *Config) error {
	dir := filepath.Dir(path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_TRUNC|os.O_CREATE, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	return toml.NewEncoder(f).Encode(cfg)
}
