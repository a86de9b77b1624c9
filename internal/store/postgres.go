package store

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sells-group/prospect-dash/internal/db"
	"github.com/sells-group/prospect-dash/internal/model"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// preparedStatements lists queries to prepare on each new connection for
// faster execution of the hottest store operations: the worker loads and
// patches prospects on every step.
var preparedStatements = map[string]string{
	"get_prospect":    `SELECT ` + prospectColumns + ` FROM prospects WHERE id = $1`,
	"delete_prospect": `DELETE FROM prospects WHERE id = $1`,
	"insert_prospect": `INSERT INTO prospects (id, source_code, agency, title, description, notice_id, posted_date, created_at, updated_at) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	// Prepare frequently-used statements on each new connection.
	pgxCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		for name, sql := range preparedStatements {
			if _, err := conn.Prepare(ctx, name, sql); err != nil {
				return eris.Wrapf(err, "postgres: prepare %s", name)
			}
		}
		return nil
	}

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

// Pool returns the underlying database pool for subsystems that need
// direct query access.
func (s *PostgresStore) Pool() db.Pool {
	return s.pool
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS prospects (
	id                   TEXT PRIMARY KEY,
	source_code          TEXT NOT NULL DEFAULT '',
	agency               TEXT NOT NULL DEFAULT '',
	title                TEXT NOT NULL DEFAULT '',
	description          TEXT NOT NULL DEFAULT '',
	notice_id            TEXT NOT NULL DEFAULT '',
	posted_date          TIMESTAMPTZ,
	estimated_value_min  DOUBLE PRECISION,
	estimated_value_max  DOUBLE PRECISION,
	contact_name         TEXT NOT NULL DEFAULT '',
	contact_email        TEXT NOT NULL DEFAULT '',
	contact_title        TEXT NOT NULL DEFAULT '',
	naics_code           TEXT NOT NULL DEFAULT '',
	naics_description    TEXT NOT NULL DEFAULT '',
	enhanced_title       TEXT NOT NULL DEFAULT '',
	values_enriched_at   TIMESTAMPTZ,
	contacts_enriched_at TIMESTAMPTZ,
	naics_enriched_at    TIMESTAMPTZ,
	titles_enriched_at   TIMESTAMPTZ,
	created_at           TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at           TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_prospects_source ON prospects(source_code);
CREATE INDEX IF NOT EXISTS idx_prospects_agency ON prospects(agency);
CREATE INDEX IF NOT EXISTS idx_prospects_naics ON prospects(naics_code);
CREATE INDEX IF NOT EXISTS idx_prospects_posted ON prospects(posted_date);
`

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

func (s *PostgresStore) CreateProspect(ctx context.Context, p *model.Prospect) (*model.Prospect, error) {
	out := *p
	if out.ID == "" {
		out.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	out.CreatedAt = now
	out.UpdatedAt = now

	_, err := s.pool.Exec(ctx,
		`INSERT INTO prospects (id, source_code, agency, title, description, notice_id, posted_date, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		out.ID, out.SourceCode, out.Agency, out.Title, out.Description, out.NoticeID, out.PostedDate, now, now,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: insert prospect")
	}
	return &out, nil
}

// BulkCreateProspects inserts many prospects in one COPY. Missing IDs are
// generated. Used by the import path; single-record writes go through
// CreateProspect.
func (s *PostgresStore) BulkCreateProspects(ctx context.Context, prospects []model.Prospect) (int64, error) {
	now := time.Now().UTC()
	rows := make([][]any, len(prospects))
	for i, p := range prospects {
		if p.ID == "" {
			p.ID = uuid.New().String()
		}
		rows[i] = []any{p.ID, p.SourceCode, p.Agency, p.Title, p.Description, p.NoticeID, p.PostedDate, now, now}
	}

	n, err := db.CopyFrom(ctx, s.pool, "prospects",
		[]string{"id", "source_code", "agency", "title", "description", "notice_id", "posted_date", "created_at", "updated_at"},
		rows,
	)
	if err != nil {
		return 0, eris.Wrap(err, "postgres: bulk insert prospects")
	}
	return n, nil
}

func (s *PostgresStore) GetProspect(ctx context.Context, id string) (*model.Prospect, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+prospectColumns+` FROM prospects WHERE id = $1`, id,
	)
	p, err := scanProspectPgx(row)
	if err != nil {
		if eris.Is(err, pgx.ErrNoRows) {
			return nil, eris.Wrapf(ErrNotFound, "id %s", id)
		}
		return nil, eris.Wrap(err, "postgres: get prospect")
	}
	return p, nil
}

func (s *PostgresStore) DeleteProspect(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM prospects WHERE id = $1`, id)
	if err != nil {
		return eris.Wrapf(err, "postgres: delete prospect %s", id)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrNotFound, "id %s", id)
	}
	return nil
}

func (s *PostgresStore) ListProspects(ctx context.Context, filter ProspectFilter) ([]model.Prospect, error) {
	var sb strings.Builder
	sb.WriteString(`SELECT ` + prospectColumns + ` FROM prospects WHERE 1=1`)
	var args []any

	next := func() string {
		return fmt.Sprintf("$%d", len(args))
	}

	if filter.SourceCode != "" {
		args = append(args, filter.SourceCode)
		sb.WriteString(` AND source_code = ` + next())
	}
	if filter.Agency != "" {
		args = append(args, filter.Agency)
		sb.WriteString(` AND agency = ` + next())
	}
	if filter.NAICSCode != "" {
		args = append(args, filter.NAICSCode)
		sb.WriteString(` AND naics_code = ` + next())
	}
	if filter.Keyword != "" {
		args = append(args, "%"+filter.Keyword+"%")
		ph := next()
		sb.WriteString(` AND (title ILIKE ` + ph + ` OR description ILIKE ` + ph + ` OR enhanced_title ILIKE ` + ph + `)`)
	}
	if filter.EnhancedOnly {
		sb.WriteString(enhancedPredicate(true))
	}
	if filter.UnenhancedOnly {
		sb.WriteString(enhancedPredicate(false))
	}
	sb.WriteString(` ORDER BY posted_date DESC NULLS LAST, created_at DESC`)

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	args = append(args, limit)
	sb.WriteString(` LIMIT ` + next())

	if filter.Offset > 0 {
		args = append(args, filter.Offset)
		sb.WriteString(` OFFSET ` + next())
	}

	rows, err := s.pool.Query(ctx, sb.String(), args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list prospects")
	}
	defer rows.Close()

	var prospects []model.Prospect
	for rows.Next() {
		p, err := scanProspectPgx(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan prospect")
		}
		prospects = append(prospects, *p)
	}
	return prospects, eris.Wrap(rows.Err(), "postgres: list prospects iterate")
}

func (s *PostgresStore) ApplyEnrichment(ctx context.Context, id string, group model.FieldGroup, patch model.EnrichmentPatch) error {
	tsCol := enrichedAtColumn(group)
	if tsCol == "" {
		return eris.Errorf("unknown field group: %s", group)
	}

	cols, args := patchAssignments(patch)
	now := time.Now().UTC()

	var sb strings.Builder
	sb.WriteString(`UPDATE prospects SET `)
	for i, c := range cols {
		fmt.Fprintf(&sb, "%s = $%d, ", c, i+1)
	}
	fmt.Fprintf(&sb, "%s = $%d, updated_at = $%d WHERE id = $%d",
		tsCol, len(cols)+1, len(cols)+2, len(cols)+3)
	args = append(args, now, now, id)

	tag, err := s.pool.Exec(ctx, sb.String(), args...)
	if err != nil {
		return eris.Wrapf(err, "postgres: apply %s enrichment to %s", group, id)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrNotFound, "id %s", id)
	}
	return nil
}

func (s *PostgresStore) UnenhancedProspectIDs(ctx context.Context, limit int) ([]string, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.pool.Query(ctx,
		`SELECT id FROM prospects WHERE 1=1`+enhancedPredicate(false)+`
		 ORDER BY created_at ASC LIMIT $1`, limit,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: unenhanced prospects")
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, eris.Wrap(err, "postgres: scan id")
		}
		ids = append(ids, id)
	}
	return ids, eris.Wrap(rows.Err(), "postgres: unenhanced prospects iterate")
}

func (s *PostgresStore) Counts(ctx context.Context) (Counts, error) {
	var c Counts
	if err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM prospects`).Scan(&c.Total); err != nil {
		return c, eris.Wrap(err, "postgres: count prospects")
	}
	if err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM prospects WHERE 1=1`+enhancedPredicate(true)).Scan(&c.Enhanced); err != nil {
		return c, eris.Wrap(err, "postgres: count enhanced")
	}
	return c, nil
}

// scanProspectPgx scans a prospect row; pgx assigns NULL columns to nil
// pointer fields directly.
func scanProspectPgx(row pgx.Row) (*model.Prospect, error) {
	var p model.Prospect
	err := row.Scan(
		&p.ID, &p.SourceCode, &p.Agency, &p.Title, &p.Description, &p.NoticeID, &p.PostedDate,
		&p.EstimatedValueMin, &p.EstimatedValueMax,
		&p.ContactName, &p.ContactEmail, &p.ContactTitle,
		&p.NAICSCode, &p.NAICSDescription, &p.EnhancedTitle,
		&p.ValuesEnrichedAt, &p.ContactsEnrichedAt, &p.NAICSEnrichedAt, &p.TitlesEnrichedAt,
		&p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &p, nil
}
