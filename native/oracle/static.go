package oracle

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"fracvault/native/common"
)

// FeedFile is the on-disk format of a static oracle feed.
type FeedFile struct {
	Pools []FeedEntry `yaml:"pools"`
}

// FeedEntry describes one pool reading in a feed file.
type FeedEntry struct {
	Pool             string    `yaml:"pool"`
	TWAPPrice        uint64    `yaml:"twap_price"`
	LiquidityPercent uint64    `yaml:"liquidity_percent"`
	VolumePercent30d uint64    `yaml:"volume_percent_30d"`
	PoolAgeSeconds   int64     `yaml:"pool_age_seconds"`
	ObservedAt       time.Time `yaml:"observed_at"`
}

// LoadStatic reads a YAML feed file into a manual oracle.
func LoadStatic(path string) (*Manual, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read oracle feed: %w", err)
	}
	return ParseStatic(data)
}

// ParseStatic decodes a YAML feed document into a manual oracle.
func ParseStatic(data []byte) (*Manual, error) {
	var feed FeedFile
	if err := yaml.Unmarshal(data, &feed); err != nil {
		return nil, fmt.Errorf("decode oracle feed: %w", err)
	}
	m := NewManual()
	for i, entry := range feed.Pools {
		pool, err := common.ParseID(entry.Pool)
		if err != nil {
			return nil, fmt.Errorf("oracle feed entry %d: pool: %w", i, err)
		}
		if entry.PoolAgeSeconds < 0 {
			return nil, fmt.Errorf("oracle feed entry %d: pool age must be non-negative", i)
		}
		m.Set(pool, Snapshot{
			TWAPPrice:        entry.TWAPPrice,
			LiquidityPercent: entry.LiquidityPercent,
			VolumePercent30d: entry.VolumePercent30d,
			PoolAgeSeconds:   entry.PoolAgeSeconds,
			ObservedAt:       entry.ObservedAt,
			Source:           "static",
		})
	}
	return m, nil
}
