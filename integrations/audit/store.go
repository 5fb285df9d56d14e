package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"

	"fundchain/core/types"
)

// DefaultLimit bounds queries that do not name a limit.
const DefaultLimit = 100

// MaxLimit is the largest page a query may request.
const MaxLimit = 1000

// Record is a committed event persisted for audit queries.
type Record struct {
	ID         uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	Sequence   uint64    `gorm:"uniqueIndex;not null" json:"sequence"`
	Root       string    `gorm:"size:66" json:"root"`
	Call       string    `gorm:"size:64;index" json:"call"`
	Type       string    `gorm:"size:96;index" json:"type"`
	ProjectID  *uint64   `gorm:"index" json:"projectId,omitempty"`
	Attributes string    `gorm:"type:text" json:"-"`
	OccurredAt time.Time `gorm:"index" json:"occurredAt"`
	CreatedAt  time.Time `json:"createdAt"`
}

// TableName pins the table name independent of the struct name.
func (Record) TableName() string { return "audit_events" }

// Attrs decodes the stored attribute map.
func (r Record) Attrs() map[string]string {
	out := map[string]string{}
	if r.Attributes == "" {
		return out
	}
	_ = json.Unmarshal([]byte(r.Attributes), &out)
	return out
}

// MarshalJSON renders attributes as an object rather than the stored string.
func (r Record) MarshalJSON() ([]byte, error) {
	type plain Record
	return json.Marshal(struct {
		plain
		Attributes map[string]string `json:"attributes"`
	}{plain: plain(r), Attributes: r.Attrs()})
}

// UnmarshalJSON accepts the MarshalJSON rendering so exported pages can be
// read back by clients.
func (r *Record) UnmarshalJSON(data []byte) error {
	type plain Record
	var aux struct {
		plain
		Attributes map[string]string `json:"attributes"`
	}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	*r = Record(aux.plain)
	if aux.Attributes == nil {
		aux.Attributes = map[string]string{}
	}
	raw, err := json.Marshal(aux.Attributes)
	if err != nil {
		return err
	}
	r.Attributes = string(raw)
	return nil
}

// Filter narrows a query. Zero values match everything.
type Filter struct {
	Type          string
	ProjectID     *uint64
	AfterSequence uint64
	Limit         int
}

// Store indexes committed events in a SQL database through gorm.
type Store struct {
	db     *gorm.DB
	logger *slog.Logger
}

// Open connects to dsn and migrates the schema. postgres:// and postgresql://
// URLs use the postgres driver; anything else is treated as a sqlite path or
// DSN, with "sqlite://" stripped when present.
func Open(dsn string, logger *slog.Logger) (*Store, error) {
	dsn = strings.TrimSpace(dsn)
	if dsn == "" {
		return nil, errors.New("audit: empty dsn")
	}
	if logger == nil {
		logger = slog.Default()
	}
	var dialector gorm.Dialector
	switch {
	case strings.HasPrefix(dsn, "postgres://"), strings.HasPrefix(dsn, "postgresql://"):
		dialector = postgres.Open(dsn)
	default:
		dialector = sqlite.Open(strings.TrimPrefix(dsn, "sqlite://"))
	}
	db, err := gorm.Open(dialector, &gorm.Config{Logger: gormlogger.Default.LogMode(gormlogger.Silent)})
	if err != nil {
		return nil, fmt.Errorf("audit: open: %w", err)
	}
	return New(db, logger)
}

// New wraps an existing gorm handle and migrates the schema.
func New(db *gorm.DB, logger *slog.Logger) (*Store, error) {
	if db == nil {
		return nil, errors.New("audit: nil db")
	}
	if logger == nil {
		logger = slog.Default()
	}
	if err := db.AutoMigrate(&Record{}); err != nil {
		return nil, fmt.Errorf("audit: migrate: %w", err)
	}
	return &Store{db: db, logger: logger.With("component", "audit")}, nil
}

// Name identifies the sink in executor logs.
func (s *Store) Name() string { return "audit" }

// Publish stores a committed batch. Sequences already present are skipped so
// replays are harmless.
func (s *Store) Publish(ctx context.Context, batch []types.CommittedEvent) error {
	if len(batch) == 0 {
		return nil
	}
	records := make([]Record, 0, len(batch))
	for _, evt := range batch {
		rec, err := newRecord(evt)
		if err != nil {
			return err
		}
		records = append(records, rec)
	}
	err := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "sequence"}}, DoNothing: true}).
		Create(&records).Error
	if err != nil {
		return fmt.Errorf("audit: insert: %w", err)
	}
	s.logger.Debug("indexed events", "count", len(records), "last_sequence", batch[len(batch)-1].Sequence)
	return nil
}

func newRecord(evt types.CommittedEvent) (Record, error) {
	attrs := evt.Attributes
	if attrs == nil {
		attrs = map[string]string{}
	}
	encoded, err := json.Marshal(attrs)
	if err != nil {
		return Record{}, fmt.Errorf("audit: encode attributes: %w", err)
	}
	rec := Record{
		ID:         uuid.New(),
		Sequence:   evt.Sequence,
		Root:       evt.Root,
		Call:       evt.Call,
		Type:       evt.Type,
		Attributes: string(encoded),
		OccurredAt: evt.Timestamp.UTC(),
	}
	if raw, ok := attrs["projectId"]; ok {
		if id, err := strconv.ParseUint(raw, 10, 64); err == nil {
			rec.ProjectID = &id
		}
	}
	return rec, nil
}

// Query returns records matching f in ascending sequence order.
func (s *Store) Query(ctx context.Context, f Filter) ([]Record, error) {
	limit := f.Limit
	if limit <= 0 {
		limit = DefaultLimit
	}
	if limit > MaxLimit {
		limit = MaxLimit
	}
	q := s.db.WithContext(ctx).Model(&Record{}).Where("sequence > ?", f.AfterSequence)
	if t := strings.TrimSpace(f.Type); t != "" {
		q = q.Where("type = ?", t)
	}
	if f.ProjectID != nil {
		q = q.Where("project_id = ?", *f.ProjectID)
	}
	var out []Record
	if err := q.Order("sequence ASC").Limit(limit).Find(&out).Error; err != nil {
		return nil, fmt.Errorf("audit: query: %w", err)
	}
	return out, nil
}

// LastSequence returns the highest indexed sequence, or zero when empty.
func (s *Store) LastSequence(ctx context.Context) (uint64, error) {
	var last sql.NullInt64
	row := s.db.WithContext(ctx).Model(&Record{}).Select("MAX(sequence)").Row()
	if err := row.Scan(&last); err != nil {
		return 0, fmt.Errorf("audit: last sequence: %w", err)
	}
	if !last.Valid || last.Int64 < 0 {
		return 0, nil
	}
	return uint64(last.Int64), nil
}

// Close releases the underlying connection pool.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
