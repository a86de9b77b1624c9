package store

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/sells-group/prospect-dash/internal/model"
)

// ErrNotFound is returned when a prospect does not exist. The worker treats
// it as a system-level fault that fails the in-flight job.
var ErrNotFound = eris.New("prospect not found")

// ProspectFilter specifies criteria for listing prospects.
type ProspectFilter struct {
	SourceCode     string `json:"source_code,omitempty"`
	Agency         string `json:"agency,omitempty"`
	NAICSCode      string `json:"naics_code,omitempty"`
	Keyword        string `json:"keyword,omitempty"`
	EnhancedOnly   bool   `json:"enhanced_only,omitempty"`
	UnenhancedOnly bool   `json:"unenhanced_only,omitempty"`
	Limit          int    `json:"limit,omitempty"`
	Offset         int    `json:"offset,omitempty"`
}

// Counts summarizes the prospect table for monitoring and the dashboard
// header.
type Counts struct {
	Total    int `json:"total"`
	Enhanced int `json:"enhanced"` // all four field groups enriched
}

// Store defines the persistence interface for prospects.
type Store interface {
	CreateProspect(ctx context.Context, p *model.Prospect) (*model.Prospect, error)
	GetProspect(ctx context.Context, id string) (*model.Prospect, error)
	DeleteProspect(ctx context.Context, id string) error
	ListProspects(ctx context.Context, filter ProspectFilter) ([]model.Prospect, error)

	// ApplyEnrichment persists one enrichment step's output and stamps the
	// group's enriched-at timestamp.
	ApplyEnrichment(ctx context.Context, id string, group model.FieldGroup, patch model.EnrichmentPatch) error

	// UnenhancedProspectIDs returns prospects missing at least one field
	// group, oldest first, for bulk enhancement.
	UnenhancedProspectIDs(ctx context.Context, limit int) ([]string, error)

	Counts(ctx context.Context) (Counts, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}
