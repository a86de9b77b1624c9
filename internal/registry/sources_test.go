package registry

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleYAML = `
sources:
  - code: va
    name: VA Opportunities
    agency: Department of Veterans Affairs
    base_url: https://www.va.gov/opal/fo/
  - code: gsa
    name: GSA eBuy
    agency: General Services Administration
    base_url: https://www.ebuy.gsa.gov/
  - code: dla
    name: DLA Internet Bid Board
    agency: Defense Logistics Agency
    base_url: https://www.dibbs.bsm.dla.mil/
    disabled: true
`

func TestParseSources(t *testing.T) {
	r, err := ParseSources([]byte(sampleYAML))
	require.NoError(t, err)

	all := r.All()
	require.Len(t, all, 3)
	// Sorted by code.
	assert.Equal(t, "dla", all[0].Code)
	assert.Equal(t, "gsa", all[1].Code)
	assert.Equal(t, "va", all[2].Code)

	va, ok := r.Get("va")
	require.True(t, ok)
	assert.Equal(t, "Department of Veterans Affairs", va.Agency)

	_, ok = r.Get("nasa")
	assert.False(t, ok)
}

func TestEnabledSkipsDisabled(t *testing.T) {
	r, err := ParseSources([]byte(sampleYAML))
	require.NoError(t, err)

	enabled := r.Enabled()
	require.Len(t, enabled, 2)
	for _, s := range enabled {
		assert.NotEqual(t, "dla", s.Code)
	}
}

func TestParseSourcesRejectsEmpty(t *testing.T) {
	_, err := ParseSources([]byte("sources: []"))
	require.Error(t, err)
}

func TestParseSourcesRejectsDuplicateCode(t *testing.T) {
	_, err := ParseSources([]byte(`
sources:
  - code: va
    name: one
  - code: va
    name: two
`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "duplicate source code")
}

func TestParseSourcesRejectsMissingCode(t *testing.T) {
	_, err := ParseSources([]byte(`
sources:
  - name: nameless
`))
	require.Error(t, err)
}

func TestLoadSources(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sources.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sampleYAML), 0o644))

	r, err := LoadSources(path)
	require.NoError(t, err)
	assert.Len(t, r.All(), 3)

	_, err = LoadSources(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}
