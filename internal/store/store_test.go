package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/prospect-dash/internal/model"
)

func newTestSQLite(t *testing.T) Store {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	s, err := NewSQLite(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	require.NoError(t, s.Migrate(context.Background()))
	return s
}

func strPtr(s string) *string { return &s }
func f64Ptr(f float64) *float64 { return &f }

func seedProspect(t *testing.T, s Store, p model.Prospect) *model.Prospect {
	t.Helper()
	out, err := s.CreateProspect(context.Background(), &p)
	require.NoError(t, err)
	return out
}

func storeTestSuite(t *testing.T, newStore func(t *testing.T) Store) {
	t.Run("CreateAndGetProspect", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		posted := time.Date(2026, 3, 14, 0, 0, 0, 0, time.UTC)
		created, err := s.CreateProspect(ctx, &model.Prospect{
			SourceCode:  "va",
			Agency:      "Department of Veterans Affairs",
			Title:       "Janitorial services, building 4",
			Description: "Recurring custodial services for the Dayton campus.",
			NoticeID:    "36C25026Q0101",
			PostedDate:  &posted,
		})
		require.NoError(t, err)
		assert.NotEmpty(t, created.ID)
		assert.False(t, created.CreatedAt.IsZero())

		got, err := s.GetProspect(ctx, created.ID)
		require.NoError(t, err)
		assert.Equal(t, "va", got.SourceCode)
		assert.Equal(t, "Janitorial services, building 4", got.Title)
		require.NotNil(t, got.PostedDate)
		assert.Equal(t, posted.Unix(), got.PostedDate.Unix())
		assert.Nil(t, got.EstimatedValueMin)
		assert.Nil(t, got.ValuesEnrichedAt)
	})

	t.Run("GetProspectNotFound", func(t *testing.T) {
		s := newStore(t)
		_, err := s.GetProspect(context.Background(), "nonexistent")
		require.Error(t, err)
		assert.True(t, eris.Is(err, ErrNotFound))
	})

	t.Run("DeleteProspect", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		p := seedProspect(t, s, model.Prospect{SourceCode: "gsa", Title: "HVAC maintenance"})
		require.NoError(t, s.DeleteProspect(ctx, p.ID))

		_, err := s.GetProspect(ctx, p.ID)
		assert.True(t, eris.Is(err, ErrNotFound))

		err = s.DeleteProspect(ctx, p.ID)
		assert.True(t, eris.Is(err, ErrNotFound))
	})

	t.Run("ApplyEnrichmentValues", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		p := seedProspect(t, s, model.Prospect{SourceCode: "dod", Title: "Grounds keeping"})
		err := s.ApplyEnrichment(ctx, p.ID, model.FieldGroupValues, model.EnrichmentPatch{
			EstimatedValueMin: f64Ptr(250_000),
			EstimatedValueMax: f64Ptr(1_500_000),
		})
		require.NoError(t, err)

		got, err := s.GetProspect(ctx, p.ID)
		require.NoError(t, err)
		require.NotNil(t, got.EstimatedValueMin)
		assert.Equal(t, 250_000.0, *got.EstimatedValueMin)
		require.NotNil(t, got.EstimatedValueMax)
		assert.Equal(t, 1_500_000.0, *got.EstimatedValueMax)
		assert.NotNil(t, got.ValuesEnrichedAt)
		assert.Nil(t, got.ContactsEnrichedAt)
	})

	t.Run("ApplyEnrichmentContactsThenNAICS", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		p := seedProspect(t, s, model.Prospect{SourceCode: "va", Title: "Elevator inspection"})
		require.NoError(t, s.ApplyEnrichment(ctx, p.ID, model.FieldGroupContacts, model.EnrichmentPatch{
			ContactName:  strPtr("Dana Whitfield"),
			ContactEmail: strPtr("dana.whitfield@va.gov"),
			ContactTitle: strPtr("Contracting Officer"),
		}))
		require.NoError(t, s.ApplyEnrichment(ctx, p.ID, model.FieldGroupNAICS, model.EnrichmentPatch{
			NAICSCode:        strPtr("561210"),
			NAICSDescription: strPtr("Facilities Support Services"),
		}))

		got, err := s.GetProspect(ctx, p.ID)
		require.NoError(t, err)
		assert.Equal(t, "Dana Whitfield", got.ContactName)
		assert.Equal(t, "561210", got.NAICSCode)
		assert.NotNil(t, got.ContactsEnrichedAt)
		assert.NotNil(t, got.NAICSEnrichedAt)
		assert.Nil(t, got.TitlesEnrichedAt)
	})

	t.Run("ApplyEnrichmentNotFound", func(t *testing.T) {
		s := newStore(t)
		err := s.ApplyEnrichment(context.Background(), "nonexistent", model.FieldGroupTitles, model.EnrichmentPatch{
			EnhancedTitle: strPtr("Missing prospect"),
		})
		require.Error(t, err)
		assert.True(t, eris.Is(err, ErrNotFound))
	})

	t.Run("ListProspectsFilters", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		seedProspect(t, s, model.Prospect{SourceCode: "va", Agency: "VA", Title: "Roof repair"})
		seedProspect(t, s, model.Prospect{SourceCode: "gsa", Agency: "GSA", Title: "Window cleaning"})
		p3 := seedProspect(t, s, model.Prospect{SourceCode: "gsa", Agency: "GSA", Title: "Parking lot restriping"})
		require.NoError(t, s.ApplyEnrichment(ctx, p3.ID, model.FieldGroupNAICS, model.EnrichmentPatch{
			NAICSCode: strPtr("561790"),
		}))

		bySource, err := s.ListProspects(ctx, ProspectFilter{SourceCode: "gsa"})
		require.NoError(t, err)
		assert.Len(t, bySource, 2)

		byNAICS, err := s.ListProspects(ctx, ProspectFilter{NAICSCode: "561790"})
		require.NoError(t, err)
		require.Len(t, byNAICS, 1)
		assert.Equal(t, p3.ID, byNAICS[0].ID)

		byKeyword, err := s.ListProspects(ctx, ProspectFilter{Keyword: "cleaning"})
		require.NoError(t, err)
		require.Len(t, byKeyword, 1)
		assert.Equal(t, "Window cleaning", byKeyword[0].Title)

		limited, err := s.ListProspects(ctx, ProspectFilter{Limit: 2})
		require.NoError(t, err)
		assert.Len(t, limited, 2)
	})

	t.Run("ListProspectsEnhancedFilter", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		full := seedProspect(t, s, model.Prospect{SourceCode: "va", Title: "Fully enriched"})
		for _, g := range model.CanonicalFieldGroups {
			require.NoError(t, s.ApplyEnrichment(ctx, full.ID, g, model.EnrichmentPatch{
				EnhancedTitle: strPtr("x"),
			}))
		}
		partial := seedProspect(t, s, model.Prospect{SourceCode: "va", Title: "Partially enriched"})
		require.NoError(t, s.ApplyEnrichment(ctx, partial.ID, model.FieldGroupValues, model.EnrichmentPatch{
			EstimatedValueMin: f64Ptr(1000),
		}))

		enhanced, err := s.ListProspects(ctx, ProspectFilter{EnhancedOnly: true})
		require.NoError(t, err)
		require.Len(t, enhanced, 1)
		assert.Equal(t, full.ID, enhanced[0].ID)

		unenhanced, err := s.ListProspects(ctx, ProspectFilter{UnenhancedOnly: true})
		require.NoError(t, err)
		require.Len(t, unenhanced, 1)
		assert.Equal(t, partial.ID, unenhanced[0].ID)
	})

	t.Run("UnenhancedProspectIDs", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		full := seedProspect(t, s, model.Prospect{Title: "Done"})
		for _, g := range model.CanonicalFieldGroups {
			require.NoError(t, s.ApplyEnrichment(ctx, full.ID, g, model.EnrichmentPatch{
				EnhancedTitle: strPtr("x"),
			}))
		}
		open := seedProspect(t, s, model.Prospect{Title: "Open"})

		ids, err := s.UnenhancedProspectIDs(ctx, 10)
		require.NoError(t, err)
		require.Len(t, ids, 1)
		assert.Equal(t, open.ID, ids[0])
	})

	t.Run("Counts", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		full := seedProspect(t, s, model.Prospect{Title: "Done"})
		for _, g := range model.CanonicalFieldGroups {
			require.NoError(t, s.ApplyEnrichment(ctx, full.ID, g, model.EnrichmentPatch{
				EnhancedTitle: strPtr("x"),
			}))
		}
		seedProspect(t, s, model.Prospect{Title: "Open"})

		c, err := s.Counts(ctx)
		require.NoError(t, err)
		assert.Equal(t, 2, c.Total)
		assert.Equal(t, 1, c.Enhanced)
	})
}

func TestSQLiteStore(t *testing.T) {
	storeTestSuite(t, newTestSQLite)
}
