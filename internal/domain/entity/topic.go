package entity

import (
	"net/url"
	"strings"
)

// TopicGroup is a coarse semantic bucket used to veto cross-topic cluster
// merges (§4.3, Glossary "Topic group").
type TopicGroup string

const (
	TopicCrimeViolence TopicGroup = "crime_violence"
	TopicMedicalHealth TopicGroup = "medical_health"
	TopicPolitics      TopicGroup = "politics"
	TopicSports        TopicGroup = "sports"
	TopicBusiness      TopicGroup = "business"
	TopicWeather       TopicGroup = "weather"
	TopicEntertainment TopicGroup = "entertainment"
	TopicTech          TopicGroup = "tech"
	TopicWorld         TopicGroup = "world"
)

// topicKeywords maps each topic group to the keywords that place a title in
// it. Kept small and fixed per §4.3 ("fixed topic-group table") —
// upgrading to a statistical classifier is out of scope for the core.
var topicKeywords = map[TopicGroup][]string{
	TopicCrimeViolence: {
		"stabbed", "stabbing", "shooting", "shot", "murder", "killed", "killing",
		"arrested", "arrest", "assault", "robbery", "homicide", "gunman", "attack",
	},
	TopicMedicalHealth: {
		"hiv", "disease", "outbreak", "vaccine", "hospital", "diagnosis", "cancer",
		"virus", "pandemic", "health", "medical", "infection", "treatment",
	},
	TopicPolitics: {
		"election", "senator", "president", "congress", "parliament", "minister",
		"vote", "campaign", "policy", "legislation", "government",
	},
	TopicSports: {
		"match", "tournament", "championship", "league", "goal", "coach", "team",
		"olympics", "score", "game", "player",
	},
	TopicBusiness: {
		"earnings", "stock", "shares", "merger", "ipo", "revenue", "acquisition",
		"markets", "economy", "inflation", "ceo",
	},
	TopicWeather: {
		"storm", "hurricane", "earthquake", "flood", "tsunami", "wildfire",
		"drought", "blizzard", "cyclone", "quake",
	},
	TopicEntertainment: {
		"movie", "film", "album", "concert", "celebrity", "actor", "actress",
		"festival", "premiere", "grammy", "oscar",
	},
	TopicTech: {
		"software", "chip", "startup", "ai", "app", "platform", "cyberattack",
		"data breach", "launch", "smartphone",
	},
	TopicWorld: {
		"summit", "treaty", "embassy", "sanctions", "ceasefire", "refugees",
		"border", "diplomatic",
	},
}

// classifyTopics returns the set of topic groups a title maps into, by
// simple keyword containment over the lowercased title.
func classifyTopics(title string) map[TopicGroup]struct{} {
	lower := strings.ToLower(title)
	groups := make(map[TopicGroup]struct{})
	for group, keywords := range topicKeywords {
		for _, kw := range keywords {
			if strings.Contains(lower, kw) {
				groups[group] = struct{}{}
				break
			}
		}
	}
	return groups
}

// TopicConflict reports whether two titles conflict: each maps to at least
// one topic group and the two group-sets are disjoint (§4.3). Titles
// that map to no recognized group never conflict (nothing to veto on).
func TopicConflict(titleA, titleB string) bool {
	groupsA := classifyTopics(titleA)
	groupsB := classifyTopics(titleB)
	if len(groupsA) == 0 || len(groupsB) == 0 {
		return false
	}
	for g := range groupsA {
		if _, shared := groupsB[g]; shared {
			return false
		}
	}
	return true
}

// GeneralCategory is the fallback category for a title/URL that matches no
// topic group (§4.1: "assignment heuristic... falls back to a general
// bucket").
const GeneralCategory = "general"

// AllCategories lists every partition key a StoryCluster can carry: the
// fixed topic-group table of §4.3 plus the GeneralCategory fallback.
// Callers that fan out per-category work (cluster.Engine.Run,
// summarize.RealtimeDispatcher.Run, the feed API's category filter) range
// over this rather than hardcoding the group list, so a cluster assigned to
// GeneralCategory is never silently skipped.
func AllCategories() []string {
	return []string{
		string(TopicCrimeViolence), string(TopicMedicalHealth), string(TopicPolitics),
		string(TopicSports), string(TopicBusiness), string(TopicWeather),
		string(TopicEntertainment), string(TopicTech), string(TopicWorld),
		GeneralCategory,
	}
}

// urlPathAliases maps a URL path segment to the topic group it signals
// directly, covering the common plural/short forms real news sites use in
// their section URLs (§4.1 "URL-path heuristic").
var urlPathAliases = map[string]TopicGroup{
	"politics":      TopicPolitics,
	"sport":         TopicSports,
	"sports":        TopicSports,
	"business":      TopicBusiness,
	"money":         TopicBusiness,
	"tech":          TopicTech,
	"technology":    TopicTech,
	"entertainment": TopicEntertainment,
	"culture":       TopicEntertainment,
	"world":         TopicWorld,
	"weather":       TopicWeather,
	"health":        TopicMedicalHealth,
	"crime":         TopicCrimeViolence,
}

// categoryFromURLPath applies the URL-path heuristic: if any path segment
// names a topic group directly (or one of its common aliases), that's the
// category, no keyword scoring needed.
func categoryFromURLPath(articleURL string) (TopicGroup, bool) {
	u, err := url.Parse(articleURL)
	if err != nil {
		return "", false
	}
	for _, seg := range strings.Split(strings.ToLower(u.Path), "/") {
		if seg == "" {
			continue
		}
		if _, ok := topicKeywords[TopicGroup(seg)]; ok {
			return TopicGroup(seg), true
		}
		if group, ok := urlPathAliases[seg]; ok {
			return group, true
		}
	}
	return "", false
}

// urlKeywordHint scans the URL itself (not just its path segments) for a
// single topic-keyword match, used only to break a tie between equally
// scored categories in CategoryFor.
func urlKeywordHint(articleURL string) TopicGroup {
	lower := strings.ToLower(articleURL)
	for group, keywords := range topicKeywords {
		for _, kw := range keywords {
			if strings.Contains(lower, kw) {
				return group
			}
		}
	}
	return ""
}

// CategoryFor assigns a category to an article: the URL-path heuristic
// runs first (a section URL is an unambiguous signal), falling back to a
// weighted keyword score over the title, with a URL-derived keyword hint
// breaking ties between categories that scored equally (§4.1).
// Returns GeneralCategory when nothing matches.
func CategoryFor(articleURL, title string) string {
	if group, ok := categoryFromURLPath(articleURL); ok {
		return string(group)
	}

	lower := strings.ToLower(title)
	scores := make(map[TopicGroup]int)
	for group, keywords := range topicKeywords {
		for _, kw := range keywords {
			if strings.Contains(lower, kw) {
				scores[group]++
			}
		}
	}
	if len(scores) == 0 {
		return GeneralCategory
	}

	hint := urlKeywordHint(articleURL)
	var best TopicGroup
	bestScore := -1
	for group, score := range scores {
		if score > bestScore || (score == bestScore && group == hint) {
			best, bestScore = group, score
		}
	}
	return string(best)
}
