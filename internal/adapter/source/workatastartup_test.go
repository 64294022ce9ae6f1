package source

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fairyhunter13/jobfeed/internal/domain"
)

func TestFlattenCompanies(t *testing.T) {
	t.Parallel()

	companies := []json.RawMessage{
		json.RawMessage(`{
			"id": 17,
			"name": "Acme",
			"batch": "W21",
			"jobs": [
				{"id": 1, "title": "Backend Engineer", "remote": "yes", "skills": [{"name": "Go"}]},
				{"id": 2, "title": "Office Manager", "remote": "no"},
				{"id": "3", "title": "Platform Engineer", "remote": "only"}
			]
		}`),
		json.RawMessage(`{"id": 18, "name": "Globex", "jobs": []}`),
	}

	items, err := flattenCompanies(companies)
	require.NoError(t, err)
	require.Len(t, items, 2, "on-site jobs are dropped")

	assert.Equal(t, "Backend Engineer", items[0].job.Title)
	assert.Equal(t, flexID("1"), items[0].job.ID)
	assert.Equal(t, "Platform Engineer", items[1].job.Title)
	assert.Equal(t, flexID("3"), items[1].job.ID)

	// Each item keeps its company as context, minus the sibling jobs.
	for _, item := range items {
		assert.Equal(t, "Acme", item.company["name"])
		assert.Equal(t, "W21", item.company["batch"])
		assert.NotContains(t, item.company, "jobs")
	}

	// The raw job document survives verbatim for the payload archive.
	var raw struct {
		Remote string `json:"remote"`
	}
	require.NoError(t, json.Unmarshal(items[0].raw, &raw))
	assert.Equal(t, "yes", raw.Remote)
}

func TestFlattenCompanies_MalformedCompany(t *testing.T) {
	t.Parallel()

	_, err := flattenCompanies([]json.RawMessage{json.RawMessage(`{"jobs": "none"}`)})
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrSchemaMismatch)
}

func TestFlattenCompanies_MalformedJob(t *testing.T) {
	t.Parallel()

	_, err := flattenCompanies([]json.RawMessage{json.RawMessage(`{"name": "Acme", "jobs": [42]}`)})
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrSchemaMismatch)
}

func TestWaasLink(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "https://www.workatastartup.com/jobs/123", waasLink(waasJob{ID: flexID("123")}))
}
