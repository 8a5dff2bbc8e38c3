package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq" // postgres driver, registered via database/sql

	"github.com/joluben/sigsim/internal/model"
)

// PostgresConfig configures the connection pool to the CRUD layer's
// database. The runtime only ever issues read-only SELECTs against
// tables that layer owns (spec.md §1's out-of-scope boundary).
type PostgresConfig struct {
	DSN             string        `yaml:"dsn"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
	QueryTimeout    time.Duration `yaml:"query_timeout"`
}

// DefaultPostgresConfig mirrors the teacher's db.DefaultConfig pool
// sizing.
func DefaultPostgresConfig() PostgresConfig {
	return PostgresConfig{
		MaxOpenConns:    10,
		MaxIdleConns:    5,
		ConnMaxLifetime: 30 * time.Minute,
		QueryTimeout:    10 * time.Second,
	}
}

// Postgres is a SnapshotStore backed by the CRUD layer's Postgres
// schema. It never writes; every method issues only read-only queries.
type Postgres struct {
	db      *sqlx.DB
	timeout time.Duration
}

// NewPostgres opens and pings the connection pool described by cfg.
func NewPostgres(cfg PostgresConfig) (*Postgres, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("postgres DSN is required")
	}
	db, err := sqlx.Open("postgres", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to open postgres connection: %w", err)
	}
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping postgres: %w", err)
	}

	timeout := cfg.QueryTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Postgres{db: db, timeout: timeout}, nil
}

// Close releases the underlying connection pool.
func (p *Postgres) Close() error { return p.db.Close() }

type deviceRow struct {
	ID           string `db:"id"`
	Name         string `db:"name"`
	ProjectID    string `db:"project_id"`
	Metadata     []byte `db:"metadata"`
	PayloadRef   string `db:"payload_ref"`
	TargetRef    string `db:"target_ref"`
	SendInterval int    `db:"send_interval"`
	Enabled      bool   `db:"enabled"`
}

func (p *Postgres) Project(ctx context.Context, id string) (model.ProjectDescriptor, error) {
	qctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	var deviceIDs []string
	err := p.db.SelectContext(qctx, &deviceIDs,
		`SELECT id FROM devices WHERE project_id = $1 AND enabled = true`, id)
	if err != nil {
		return model.ProjectDescriptor{}, fmt.Errorf("query enabled devices: %w", err)
	}

	var exists bool
	if err := p.db.GetContext(qctx, &exists, `SELECT EXISTS(SELECT 1 FROM projects WHERE id = $1)`, id); err != nil {
		return model.ProjectDescriptor{}, fmt.Errorf("query project existence: %w", err)
	}
	if !exists {
		return model.ProjectDescriptor{}, ErrNotFound
	}

	return model.ProjectDescriptor{ID: id, EnabledDevice: deviceIDs}, nil
}

func (p *Postgres) DevicesForProject(ctx context.Context, projectID string) ([]model.DeviceDescriptor, error) {
	qctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	var rows []deviceRow
	err := p.db.SelectContext(qctx, &rows,
		`SELECT id, name, project_id, metadata, payload_ref, target_ref, send_interval, enabled
		 FROM devices WHERE project_id = $1 AND enabled = true`, projectID)
	if err != nil {
		return nil, fmt.Errorf("query devices: %w", err)
	}

	out := make([]model.DeviceDescriptor, 0, len(rows))
	for _, r := range rows {
		meta := map[string]any{}
		if len(r.Metadata) > 0 {
			if err := json.Unmarshal(r.Metadata, &meta); err != nil {
				return nil, fmt.Errorf("decode device %s metadata: %w", r.ID, err)
			}
		}
		out = append(out, model.DeviceDescriptor{
			ID:           r.ID,
			Name:         r.Name,
			ProjectID:    r.ProjectID,
			Metadata:     meta,
			PayloadRef:   r.PayloadRef,
			TargetRef:    r.TargetRef,
			SendInterval: r.SendInterval,
			Enabled:      r.Enabled,
		})
	}
	return out, nil
}

type payloadRow struct {
	ID     string `db:"id"`
	Kind   string `db:"kind"`
	Schema []byte `db:"schema"`
	Script string `db:"script"`
}

func (p *Postgres) Payload(ctx context.Context, id string) (model.PayloadDescriptor, error) {
	qctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	var row payloadRow
	err := p.db.GetContext(qctx, &row,
		`SELECT id, kind, schema, script FROM payloads WHERE id = $1`, id)
	if err != nil {
		return model.PayloadDescriptor{}, fmt.Errorf("query payload %s: %w", id, err)
	}

	desc := model.PayloadDescriptor{ID: row.ID, Kind: model.PayloadKind(row.Kind), Script: row.Script}
	if len(row.Schema) > 0 {
		if err := json.Unmarshal(row.Schema, &desc.Schema); err != nil {
			return model.PayloadDescriptor{}, fmt.Errorf("decode payload %s schema: %w", id, err)
		}
	}
	return desc, nil
}

type targetRow struct {
	ID     string `db:"id"`
	Kind   string `db:"kind"`
	Config []byte `db:"config"`
}

func (p *Postgres) Target(ctx context.Context, id string) (model.TargetDescriptor, error) {
	qctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	var row targetRow
	err := p.db.GetContext(qctx, &row,
		`SELECT id, kind, config FROM targets WHERE id = $1`, id)
	if err != nil {
		return model.TargetDescriptor{}, fmt.Errorf("query target %s: %w", id, err)
	}

	cfg := map[string]any{}
	if len(row.Config) > 0 {
		if err := json.Unmarshal(row.Config, &cfg); err != nil {
			return model.TargetDescriptor{}, fmt.Errorf("decode target %s config: %w", id, err)
		}
	}
	return model.TargetDescriptor{ID: row.ID, Kind: model.TargetKind(row.Kind), Config: cfg}, nil
}

var _ SnapshotStore = (*Postgres)(nil)
