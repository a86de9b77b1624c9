package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/prospect-dash/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS prospects (
	id                   TEXT PRIMARY KEY,
	source_code          TEXT NOT NULL DEFAULT '',
	agency               TEXT NOT NULL DEFAULT '',
	title                TEXT NOT NULL DEFAULT '',
	description          TEXT NOT NULL DEFAULT '',
	notice_id            TEXT NOT NULL DEFAULT '',
	posted_date          DATETIME,
	estimated_value_min  REAL,
	estimated_value_max  REAL,
	contact_name         TEXT NOT NULL DEFAULT '',
	contact_email        TEXT NOT NULL DEFAULT '',
	contact_title        TEXT NOT NULL DEFAULT '',
	naics_code           TEXT NOT NULL DEFAULT '',
	naics_description    TEXT NOT NULL DEFAULT '',
	enhanced_title       TEXT NOT NULL DEFAULT '',
	values_enriched_at   DATETIME,
	contacts_enriched_at DATETIME,
	naics_enriched_at    DATETIME,
	titles_enriched_at   DATETIME,
	created_at           DATETIME NOT NULL DEFAULT (datetime('now')),
	updated_at           DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_prospects_source ON prospects(source_code);
CREATE INDEX IF NOT EXISTS idx_prospects_agency ON prospects(agency);
CREATE INDEX IF NOT EXISTS idx_prospects_naics ON prospects(naics_code);
CREATE INDEX IF NOT EXISTS idx_prospects_posted ON prospects(posted_date);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

const prospectColumns = `id, source_code, agency, title, description, notice_id, posted_date,
	estimated_value_min, estimated_value_max,
	contact_name, contact_email, contact_title,
	naics_code, naics_description, enhanced_title,
	values_enriched_at, contacts_enriched_at, naics_enriched_at, titles_enriched_at,
	created_at, updated_at`

func (s *SQLiteStore) CreateProspect(ctx context.Context, p *model.Prospect) (*model.Prospect, error) {
	out := *p
	if out.ID == "" {
		out.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	out.CreatedAt = now
	out.UpdatedAt = now

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO prospects (id, source_code, agency, title, description, notice_id, posted_date, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		out.ID, out.SourceCode, out.Agency, out.Title, out.Description, out.NoticeID, out.PostedDate, now, now,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: insert prospect")
	}
	return &out, nil
}

func (s *SQLiteStore) GetProspect(ctx context.Context, id string) (*model.Prospect, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+prospectColumns+` FROM prospects WHERE id = ?`, id,
	)
	return scanProspect(row)
}

func (s *SQLiteStore) DeleteProspect(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM prospects WHERE id = ?`, id)
	if err != nil {
		return eris.Wrapf(err, "sqlite: delete prospect %s", id)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "sqlite: rows affected")
	}
	if n == 0 {
		return eris.Wrapf(ErrNotFound, "id %s", id)
	}
	return nil
}

func (s *SQLiteStore) ListProspects(ctx context.Context, filter ProspectFilter) ([]model.Prospect, error) {
	query := `SELECT ` + prospectColumns + ` FROM prospects WHERE 1=1`
	var args []any

	if filter.SourceCode != "" {
		query += ` AND source_code = ?`
		args = append(args, filter.SourceCode)
	}
	if filter.Agency != "" {
		query += ` AND agency = ?`
		args = append(args, filter.Agency)
	}
	if filter.NAICSCode != "" {
		query += ` AND naics_code = ?`
		args = append(args, filter.NAICSCode)
	}
	if filter.Keyword != "" {
		query += ` AND (title LIKE ? OR description LIKE ? OR enhanced_title LIKE ?)`
		kw := "%" + filter.Keyword + "%"
		args = append(args, kw, kw, kw)
	}
	if filter.EnhancedOnly {
		query += enhancedPredicate(true)
	}
	if filter.UnenhancedOnly {
		query += enhancedPredicate(false)
	}
	query += ` ORDER BY posted_date DESC, created_at DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += ` LIMIT ?`
	args = append(args, limit)

	if filter.Offset > 0 {
		query += ` OFFSET ?`
		args = append(args, filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list prospects")
	}
	defer rows.Close()

	var prospects []model.Prospect
	for rows.Next() {
		p, err := scanProspect(rows)
		if err != nil {
			return nil, err
		}
		prospects = append(prospects, *p)
	}
	return prospects, eris.Wrap(rows.Err(), "sqlite: list prospects iterate")
}

// enhancedPredicate filters on whether all four group timestamps are set.
func enhancedPredicate(enhanced bool) string {
	if enhanced {
		return ` AND values_enriched_at IS NOT NULL AND contacts_enriched_at IS NOT NULL
			AND naics_enriched_at IS NOT NULL AND titles_enriched_at IS NOT NULL`
	}
	return ` AND (values_enriched_at IS NULL OR contacts_enriched_at IS NULL
		OR naics_enriched_at IS NULL OR titles_enriched_at IS NULL)`
}

// enrichedAtColumn maps a field group to its timestamp column.
func enrichedAtColumn(group model.FieldGroup) string {
	switch group {
	case model.FieldGroupValues:
		return "values_enriched_at"
	case model.FieldGroupContacts:
		return "contacts_enriched_at"
	case model.FieldGroupNAICS:
		return "naics_enriched_at"
	case model.FieldGroupTitles:
		return "titles_enriched_at"
	default:
		return ""
	}
}

// patchAssignments builds the SET fragments for the patch's populated
// fields. Placeholder is "?" for sqlite; postgres rewrites positionally.
func patchAssignments(patch model.EnrichmentPatch) (cols []string, args []any) {
	if patch.EstimatedValueMin != nil {
		cols = append(cols, "estimated_value_min")
		args = append(args, *patch.EstimatedValueMin)
	}
	if patch.EstimatedValueMax != nil {
		cols = append(cols, "estimated_value_max")
		args = append(args, *patch.EstimatedValueMax)
	}
	if patch.ContactName != nil {
		cols = append(cols, "contact_name")
		args = append(args, *patch.ContactName)
	}
	if patch.ContactEmail != nil {
		cols = append(cols, "contact_email")
		args = append(args, *patch.ContactEmail)
	}
	if patch.ContactTitle != nil {
		cols = append(cols, "contact_title")
		args = append(args, *patch.ContactTitle)
	}
	if patch.NAICSCode != nil {
		cols = append(cols, "naics_code")
		args = append(args, *patch.NAICSCode)
	}
	if patch.NAICSDescription != nil {
		cols = append(cols, "naics_description")
		args = append(args, *patch.NAICSDescription)
	}
	if patch.EnhancedTitle != nil {
		cols = append(cols, "enhanced_title")
		args = append(args, *patch.EnhancedTitle)
	}
	return cols, args
}

func (s *SQLiteStore) ApplyEnrichment(ctx context.Context, id string, group model.FieldGroup, patch model.EnrichmentPatch) error {
	tsCol := enrichedAtColumn(group)
	if tsCol == "" {
		return eris.Errorf("unknown field group: %s", group)
	}

	cols, args := patchAssignments(patch)
	now := time.Now().UTC()

	query := `UPDATE prospects SET `
	for _, c := range cols {
		query += c + ` = ?, `
	}
	query += tsCol + ` = ?, updated_at = ? WHERE id = ?`
	args = append(args, now, now, id)

	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return eris.Wrapf(err, "sqlite: apply %s enrichment to %s", group, id)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "sqlite: rows affected")
	}
	if n == 0 {
		return eris.Wrapf(ErrNotFound, "id %s", id)
	}
	return nil
}

func (s *SQLiteStore) UnenhancedProspectIDs(ctx context.Context, limit int) ([]string, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id FROM prospects WHERE 1=1`+enhancedPredicate(false)+`
		 ORDER BY created_at ASC LIMIT ?`, limit,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: unenhanced prospects")
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan id")
		}
		ids = append(ids, id)
	}
	return ids, eris.Wrap(rows.Err(), "sqlite: unenhanced prospects iterate")
}

func (s *SQLiteStore) Counts(ctx context.Context) (Counts, error) {
	var c Counts
	row := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM prospects`)
	if err := row.Scan(&c.Total); err != nil {
		return c, eris.Wrap(err, "sqlite: count prospects")
	}
	row = s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM prospects WHERE 1=1`+enhancedPredicate(true))
	if err := row.Scan(&c.Enhanced); err != nil {
		return c, eris.Wrap(err, "sqlite: count enhanced")
	}
	return c, nil
}

// helpers

type scannable interface {
	Scan(dest ...any) error
}

func scanProspect(row scannable) (*model.Prospect, error) {
	var p model.Prospect
	var valMin, valMax sql.NullFloat64
	var posted, valuesAt, contactsAt, naicsAt, titlesAt sql.NullTime

	err := row.Scan(
		&p.ID, &p.SourceCode, &p.Agency, &p.Title, &p.Description, &p.NoticeID, &posted,
		&valMin, &valMax,
		&p.ContactName, &p.ContactEmail, &p.ContactTitle,
		&p.NAICSCode, &p.NAICSDescription, &p.EnhancedTitle,
		&valuesAt, &contactsAt, &naicsAt, &titlesAt,
		&p.CreatedAt, &p.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, eris.Wrap(ErrNotFound, "sqlite")
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: scan prospect")
	}

	if posted.Valid {
		p.PostedDate = &posted.Time
	}
	if valMin.Valid {
		p.EstimatedValueMin = &valMin.Float64
	}
	if valMax.Valid {
		p.EstimatedValueMax = &valMax.Float64
	}
	if valuesAt.Valid {
		p.ValuesEnrichedAt = &valuesAt.Time
	}
	if contactsAt.Valid {
		p.ContactsEnrichedAt = &contactsAt.Time
	}
	if naicsAt.Valid {
		p.NAICSEnrichedAt = &naicsAt.Time
	}
	if titlesAt.Valid {
		p.TitlesEnrichedAt = &titlesAt.Time
	}
	return &p, nil
}
