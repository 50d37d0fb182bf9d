package cluster

import (
	"newsreel/internal/domain/entity"
	"newsreel/internal/store"
)

// Outcome names which cascade rule produced a match, or that none did.
type Outcome string

const (
	OutcomeFingerprint   Outcome = "fingerprint"
	OutcomeFuzzyTitle    Outcome = "fuzzy_title"
	OutcomeEntityOverlap Outcome = "entity_overlap"
	OutcomeNewCluster    Outcome = "new_cluster"
)

const (
	fuzzyTitleThreshold    = 0.50
	weakTitleThreshold     = 0.40
	minEntityOverlapWeak   = 3
	minEntityOverlapTitleReplace = 3
)

func entityTexts(entities []entity.NamedEntity) []string {
	texts := make([]string, len(entities))
	for i, e := range entities {
		texts[i] = e.Text
	}
	return texts
}

func histogramKeys(h map[string]int) []string {
	keys := make([]string, 0, len(h))
	for k := range h {
		keys = append(keys, k)
	}
	return keys
}

// Match runs the three-rule matching cascade (§4.3) against an
// already-bounded candidate set, in priority order: a rule that has any
// satisfying candidate wins over the next rule, regardless of candidate
// position within that rule. Returns the matched candidate's index into
// candidates, or -1 with OutcomeNewCluster if nothing matched.
func Match(article *entity.RawArticle, candidates []store.Item[entity.StoryCluster]) (int, Outcome) {
	newEntities := entityTexts(article.Entities)

	if article.StoryFingerprint != "" {
		for i := range candidates {
			if candidates[i].Value.Fingerprint == article.StoryFingerprint {
				return i, OutcomeFingerprint
			}
		}
	}

	for i := range candidates {
		s := JaccardTokens(article.Title, candidates[i].Value.Title)
		if s >= fuzzyTitleThreshold && !entity.TopicConflict(article.Title, candidates[i].Value.Title) {
			return i, OutcomeFuzzyTitle
		}
	}

	for i := range candidates {
		s := JaccardTokens(article.Title, candidates[i].Value.Title)
		overlap := EntityOverlap(newEntities, histogramKeys(candidates[i].Value.EntityHistogram))
		if overlap >= minEntityOverlapWeak && s >= weakTitleThreshold && !entity.TopicConflict(article.Title, candidates[i].Value.Title) {
			return i, OutcomeEntityOverlap
		}
	}

	return -1, OutcomeNewCluster
}
