package normalize

import (
	"regexp"
	"sort"
	"strings"

	"newsreel/internal/domain/entity"
)

// EntityExtractor is the replaceable contract for entity extraction:
// extract(title, body) -> [Entity]. Owned by the consumer (the normalizer),
// swappable implementation — the same small-interface-per-consumer idiom
// used elsewhere in this codebase for its Summarizer/FeedFetcher interfaces.
type EntityExtractor interface {
	Extract(title, body string) []entity.NamedEntity
}

// HeuristicExtractor is the reference implementation: capitalization plus
// known-stopword filtering, per §4.2. An upgrade path to a
// statistical NER model is anticipated but out of scope here.
type HeuristicExtractor struct{}

var capitalizedWord = regexp.MustCompile(`[A-Z][a-zA-Z']*`)

var orgSuffixes = map[string]struct{}{
	"inc": {}, "corp": {}, "corporation": {}, "ltd": {}, "llc": {}, "co": {},
	"party": {}, "administration": {}, "government": {}, "department": {},
	"ministry": {}, "university": {}, "organization": {}, "organisation": {},
	"agency": {}, "commission": {}, "council": {}, "committee": {},
}

// capRun is a contiguous run of capitalized, non-stopword tokens found at
// a given token offset within a text.
type capRun struct {
	text   string
	tokens []string
	offset int // token index of the run's start within the source text
}

func findCapRuns(text string) []capRun {
	words := strings.Fields(text)
	var runs []capRun
	var current []string
	start := -1

	flush := func(endIdx int) {
		if len(current) == 0 {
			return
		}
		runs = append(runs, capRun{text: strings.Join(current, " "), tokens: append([]string(nil), current...), offset: start})
		current = nil
		start = -1
	}

	for i, w := range words {
		trimmed := strings.TrimFunc(w, func(r rune) bool { return !isWordRune(r) })
		if trimmed == "" || !capitalizedWord.MatchString(trimmed) || !strings.HasPrefix(trimmed, strings.ToUpper(trimmed[:1])) {
			flush(i)
			continue
		}
		if isStopword(strings.ToLower(trimmed)) {
			flush(i)
			continue
		}
		if start == -1 {
			start = i
		}
		current = append(current, trimmed)
	}
	flush(len(words))
	return runs
}

func isWordRune(r rune) bool {
	return (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || r == '\''
}

func classifyRun(tokens []string) entity.EntityType {
	last := strings.ToLower(tokens[len(tokens)-1])
	if _, ok := orgSuffixes[last]; ok {
		return entity.EntityOrg
	}
	switch len(tokens) {
	case 1:
		return entity.EntityOther
	case 2:
		return entity.EntityPerson
	default:
		return entity.EntityOther
	}
}

// Extract implements EntityExtractor. Salience combines: presence in title
// (+1.0), earliness in body (linear decay), and length ≥ 2 tokens (+0.2),
// per §4.2. Top 10 are retained.
func (HeuristicExtractor) Extract(title, body string) []entity.NamedEntity {
	scores := make(map[string]float64)
	types := make(map[string]entity.EntityType)
	order := make([]string, 0, 16)

	record := func(text string, tokens []string, bonus float64) {
		if scores[text] == 0 {
			order = append(order, text)
			types[text] = classifyRun(tokens)
		}
		scores[text] += bonus
	}

	for _, run := range findCapRuns(title) {
		bonus := 1.0
		if len(run.tokens) >= 2 {
			bonus += 0.2
		}
		record(run.text, run.tokens, bonus)
	}

	bodyWords := strings.Fields(body)
	bodyLen := len(bodyWords)
	for _, run := range findCapRuns(body) {
		earliness := 0.0
		if bodyLen > 0 {
			earliness = 1.0 - float64(run.offset)/float64(bodyLen)
			if earliness < 0 {
				earliness = 0
			}
		}
		bonus := earliness
		if len(run.tokens) >= 2 {
			bonus += 0.2
		}
		record(run.text, run.tokens, bonus)
	}

	entities := make([]entity.NamedEntity, 0, len(order))
	for _, text := range order {
		entities = append(entities, entity.NamedEntity{Text: text, Type: types[text], Salience: scores[text]})
	}
	sort.SliceStable(entities, func(i, j int) bool { return entities[i].Salience > entities[j].Salience })
	if len(entities) > 10 {
		entities = entities[:10]
	}
	return entities
}
