package model

import (
	"time"
)

// FieldGroup identifies one of the four enrichment categories processed
// independently within an enhancement job.
type FieldGroup string

const (
	FieldGroupValues   FieldGroup = "values"
	FieldGroupContacts FieldGroup = "contacts"
	FieldGroupNAICS    FieldGroup = "naics"
	FieldGroupTitles   FieldGroup = "titles"
)

// CanonicalFieldGroups is the fixed order in which the worker processes
// field groups within a job.
var CanonicalFieldGroups = []FieldGroup{
	FieldGroupValues,
	FieldGroupContacts,
	FieldGroupNAICS,
	FieldGroupTitles,
}

// IsValidFieldGroup returns true if g names a known field group.
func IsValidFieldGroup(g FieldGroup) bool {
	switch g {
	case FieldGroupValues, FieldGroupContacts, FieldGroupNAICS, FieldGroupTitles:
		return true
	default:
		return false
	}
}

// Prospect represents one scraped contract opportunity plus its LLM-derived
// enrichment fields.
type Prospect struct {
	ID          string     `json:"id"`
	SourceCode  string     `json:"source_code"` // agency source that produced this record
	Agency      string     `json:"agency"`
	Title       string     `json:"title"`
	Description string     `json:"description"`
	NoticeID    string     `json:"notice_id,omitempty"`
	PostedDate  *time.Time `json:"posted_date,omitempty"`

	// Enrichment fields, populated by the enhancement worker.
	EstimatedValueMin *float64 `json:"estimated_value_min,omitempty"`
	EstimatedValueMax *float64 `json:"estimated_value_max,omitempty"`
	ContactName       string   `json:"contact_name,omitempty"`
	ContactEmail      string   `json:"contact_email,omitempty"`
	ContactTitle      string   `json:"contact_title,omitempty"`
	NAICSCode         string   `json:"naics_code,omitempty"`
	NAICSDescription  string   `json:"naics_description,omitempty"`
	EnhancedTitle     string   `json:"enhanced_title,omitempty"`

	// Per-group enrichment timestamps drive the freshness skip.
	ValuesEnrichedAt   *time.Time `json:"values_enriched_at,omitempty"`
	ContactsEnrichedAt *time.Time `json:"contacts_enriched_at,omitempty"`
	NAICSEnrichedAt    *time.Time `json:"naics_enriched_at,omitempty"`
	TitlesEnrichedAt   *time.Time `json:"titles_enriched_at,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// EnrichedAt returns the enrichment timestamp for a field group, or nil if
// the group has never been enriched.
func (p *Prospect) EnrichedAt(group FieldGroup) *time.Time {
	switch group {
	case FieldGroupValues:
		return p.ValuesEnrichedAt
	case FieldGroupContacts:
		return p.ContactsEnrichedAt
	case FieldGroupNAICS:
		return p.NAICSEnrichedAt
	case FieldGroupTitles:
		return p.TitlesEnrichedAt
	default:
		return nil
	}
}

// HasFreshData reports whether the group was enriched within the freshness
// window. A zero ttl means enriched data never goes stale.
func (p *Prospect) HasFreshData(group FieldGroup, ttl time.Duration, now time.Time) bool {
	at := p.EnrichedAt(group)
	if at == nil {
		return false
	}
	if ttl <= 0 {
		return true
	}
	return now.Sub(*at) < ttl
}

// FullyEnriched reports whether all four field groups have been enriched.
func (p *Prospect) FullyEnriched() bool {
	for _, g := range CanonicalFieldGroups {
		if p.EnrichedAt(g) == nil {
			return false
		}
	}
	return true
}

// EnrichmentPatch carries the typed output of one enrichment step. Only the
// fields for the step's group are set; nil pointers leave columns untouched.
type EnrichmentPatch struct {
	EstimatedValueMin *float64 `json:"estimated_value_min,omitempty"`
	EstimatedValueMax *float64 `json:"estimated_value_max,omitempty"`
	ContactName       *string  `json:"contact_name,omitempty"`
	ContactEmail      *string  `json:"contact_email,omitempty"`
	ContactTitle      *string  `json:"contact_title,omitempty"`
	NAICSCode         *string  `json:"naics_code,omitempty"`
	NAICSDescription  *string  `json:"naics_description,omitempty"`
	EnhancedTitle     *string  `json:"enhanced_title,omitempty"`
}

// Apply writes the patch onto the prospect and stamps the group's
// enrichment timestamp.
func (p *Prospect) Apply(group FieldGroup, patch EnrichmentPatch, now time.Time) {
	if patch.EstimatedValueMin != nil {
		p.EstimatedValueMin = patch.EstimatedValueMin
	}
	if patch.EstimatedValueMax != nil {
		p.EstimatedValueMax = patch.EstimatedValueMax
	}
	if patch.ContactName != nil {
		p.ContactName = *patch.ContactName
	}
	if patch.ContactEmail != nil {
		p.ContactEmail = *patch.ContactEmail
	}
	if patch.ContactTitle != nil {
		p.ContactTitle = *patch.ContactTitle
	}
	if patch.NAICSCode != nil {
		p.NAICSCode = *patch.NAICSCode
	}
	if patch.NAICSDescription != nil {
		p.NAICSDescription = *patch.NAICSDescription
	}
	if patch.EnhancedTitle != nil {
		p.EnhancedTitle = *patch.EnhancedTitle
	}
	t := now
	switch group {
	case FieldGroupValues:
		p.ValuesEnrichedAt = &t
	case FieldGroupContacts:
		p.ContactsEnrichedAt = &t
	case FieldGroupNAICS:
		p.NAICSEnrichedAt = &t
	case FieldGroupTitles:
		p.TitlesEnrichedAt = &t
	}
	p.UpdatedAt = now
}
