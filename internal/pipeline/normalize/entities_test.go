package normalize

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"newsreel/internal/domain/entity"
)

func TestHeuristicExtractor_Extract_FindsCapitalizedRuns(t *testing.T) {
	e := HeuristicExtractor{}
	got := e.Extract("Joe Biden meets NATO leaders in Brussels",
		"President Joe Biden arrived in Brussels on Tuesday to meet NATO leaders.")

	var texts []string
	for _, ent := range got {
		texts = append(texts, ent.Text)
	}
	assert.Contains(t, texts, "Joe Biden")
	assert.Contains(t, texts, "Brussels")
	assert.Contains(t, texts, "NATO")
}

func TestHeuristicExtractor_Extract_TitlePresenceOutranksBodyOnly(t *testing.T) {
	e := HeuristicExtractor{}
	got := e.Extract("Jane Smith announces resignation",
		"Jane Smith announced her resignation today. Later, John Doe issued a statement in response.")

	require.NotEmpty(t, got)
	assert.Equal(t, "Jane Smith", got[0].Text)
}

func TestHeuristicExtractor_Extract_OrgSuffixClassifiesAsOrg(t *testing.T) {
	e := HeuristicExtractor{}
	got := e.Extract("Acme Corp posts record profits", "Acme Corp reported strong earnings this quarter.")

	found := false
	for _, ent := range got {
		if ent.Text == "Acme Corp" {
			found = true
			assert.Equal(t, entity.EntityOrg, ent.Type)
		}
	}
	assert.True(t, found)
}

func TestHeuristicExtractor_Extract_CapsAtTen(t *testing.T) {
	e := HeuristicExtractor{}
	body := "Alice Adams, Bob Baker, Carol Clark, Dave Dean, Eve Evans, Frank Fisher, " +
		"Grace Green, Heidi Hill, Ivan Irwin, Judy Jones, Kevin King all attended the summit."
	got := e.Extract("World leaders gather for summit", body)
	assert.LessOrEqual(t, len(got), 10)
}

func TestHeuristicExtractor_Extract_NoEntities(t *testing.T) {
	e := HeuristicExtractor{}
	got := e.Extract("local weather remains mild this week", "forecasters expect clear skies through the weekend")
	assert.Empty(t, got)
}
