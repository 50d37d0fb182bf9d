package normalize

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"newsreel/internal/domain/entity"
)

func TestStoryFingerprint_StableForSameInput(t *testing.T) {
	entities := []entity.NamedEntity{{Text: "Jane Doe", Type: entity.EntityPerson}}
	a := StoryFingerprint("Wildfire spreads across county", "Firefighters battled overnight", entities)
	b := StoryFingerprint("Wildfire spreads across county", "Firefighters battled overnight", entities)
	assert.Equal(t, a, b)
	assert.Len(t, a, 8)
}

func TestStoryFingerprint_DiffersForDifferentEntities(t *testing.T) {
	title, desc := "Officials respond to storm damage", "Crews are assessing the damage"
	a := StoryFingerprint(title, desc, []entity.NamedEntity{{Text: "Jane Doe", Type: entity.EntityPerson}})
	b := StoryFingerprint(title, desc, []entity.NamedEntity{{Text: "John Smith", Type: entity.EntityPerson}})
	assert.NotEqual(t, a, b)
}

func TestExactHash_NormalizesCaseAndDomain(t *testing.T) {
	a := ExactHash("Senate Passes New Budget Bill", "Reuters.com")
	b := ExactHash("senate passes new budget bill", "reuters.com")
	assert.Equal(t, a, b)
}

func TestExactHash_DiffersAcrossDomains(t *testing.T) {
	a := ExactHash("Senate passes budget bill", "reuters.com")
	b := ExactHash("Senate passes budget bill", "apnews.com")
	assert.NotEqual(t, a, b)
}

func TestSimHash_NearDuplicateSyndication(t *testing.T) {
	a := SimHash("Teenager stabbed on Sydney train", "Police are investigating an attack on a commuter train")
	b := SimHash("Teenager stabbed on Sydney train ", "Police are investigating an attack on a commuter train.")
	assert.LessOrEqual(t, HammingDistance64(a, b), 3)
}

func TestSimHash_DistinctForUnrelatedStories(t *testing.T) {
	a := SimHash("Teenager stabbed on Sydney train", "Police are investigating an attack on a commuter train")
	b := SimHash("Central bank raises interest rates", "Economists expect further hikes this year")
	assert.Greater(t, HammingDistance64(a, b), 3)
}

func TestHammingDistance64_Zero(t *testing.T) {
	assert.Equal(t, 0, HammingDistance64(42, 42))
}
