package journal

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"fracvault/core/events"
)

// EventEntry is the audit trail row for a committed vault event.
type EventEntry struct {
	ID         uuid.UUID `gorm:"type:uuid;primaryKey"`
	Seq        int64     `gorm:"autoIncrement:false;index"`
	Vault      string    `gorm:"size:66;index"`
	Type       string    `gorm:"size:64;index"`
	Attributes string    `gorm:"type:text"`
	CreatedAt  time.Time
}

// IdempotencyKey stores the response for a mutating request so a retried
// request is answered without re-executing it.
type IdempotencyKey struct {
	Key       string `gorm:"primaryKey;size:128"`
	RequestID string `gorm:"size:64"`
	Method    string `gorm:"size:8"`
	Path      string `gorm:"size:255"`
	Status    int
	Response  string `gorm:"type:text"`
	CreatedAt time.Time
}

// AutoMigrate performs all schema migrations for the journal.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(&EventEntry{}, &IdempotencyKey{})
}

// Open connects to the journal database. Postgres URLs use the Postgres driver;
// anything else is handed to SQLite.
func Open(dsn string) (*gorm.DB, error) {
	dsn = strings.TrimSpace(dsn)
	if dsn == "" {
		return nil, fmt.Errorf("journal: dsn required")
	}
	cfg := &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)}
	var dialector gorm.Dialector
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") {
		dialector = postgres.Open(dsn)
	} else {
		dialector = sqlite.Open(dsn)
	}
	db, err := gorm.Open(dialector, cfg)
	if err != nil {
		return nil, fmt.Errorf("journal: open: %w", err)
	}
	if err := AutoMigrate(db); err != nil {
		return nil, fmt.Errorf("journal: migrate: %w", err)
	}
	return db, nil
}

// Journal is an events.Emitter that appends every committed event to the SQL
// audit trail. Write failures are logged and do not affect the transition,
// which has already been committed to vault state.
type Journal struct {
	db     *gorm.DB
	logger *slog.Logger
	now    func() time.Time
	seq    atomic.Int64
}

// New wraps db as an emitter.
func New(db *gorm.DB, logger *slog.Logger) *Journal {
	if logger == nil {
		logger = slog.Default()
	}
	j := &Journal{db: db, logger: logger, now: time.Now}
	j.seq.Store(time.Now().UnixNano())
	return j
}

// Emit implements events.Emitter.
func (j *Journal) Emit(evt events.Event) {
	if j == nil || j.db == nil || evt == nil {
		return
	}
	rec, ok := evt.(events.Recordable)
	if !ok {
		return
	}
	record := rec.Record()
	if record == nil {
		return
	}
	attrs, err := json.Marshal(record.Attributes)
	if err != nil {
		j.logger.Error("journal: encode event", "type", record.Type, "error", err)
		return
	}
	entry := EventEntry{
		ID:         uuid.New(),
		Seq:        j.seq.Add(1),
		Vault:      record.Attributes["vault"],
		Type:       record.Type,
		Attributes: string(attrs),
		CreatedAt:  j.now().UTC(),
	}
	if err := j.db.Create(&entry).Error; err != nil {
		j.logger.Error("journal: append event", "type", record.Type, "vault", entry.Vault, "error", err)
	}
}

// Entry is the decoded form of an EventEntry.
type Entry struct {
	Type       string            `json:"type"`
	Attributes map[string]string `json:"attributes"`
	CreatedAt  time.Time         `json:"createdAt"`
}

// ForVault lists the events recorded for vault in emission order.
func (j *Journal) ForVault(vault string, limit int) ([]Entry, error) {
	if j == nil || j.db == nil {
		return nil, fmt.Errorf("journal: not configured")
	}
	if limit <= 0 || limit > 500 {
		limit = 500
	}
	var rows []EventEntry
	if err := j.db.Where("vault = ?", vault).Order("seq asc").Limit(limit).Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]Entry, 0, len(rows))
	for _, row := range rows {
		attrs := map[string]string{}
		if err := json.Unmarshal([]byte(row.Attributes), &attrs); err != nil {
			return nil, fmt.Errorf("journal: decode %s: %w", row.ID, err)
		}
		out = append(out, Entry{Type: row.Type, Attributes: attrs, CreatedAt: row.CreatedAt})
	}
	return out, nil
}
