package normalize

// stopwords is a fixed English function-word list used both to filter
// story_fingerprint keyword candidates and as the negative signal in the
// capitalization-heuristic entity extractor (§4.2's reference
// EntityExtractor: "capitalization + known-stopword filtering").
var stopwords = map[string]struct{}{
	"the": {}, "and": {}, "for": {}, "are": {}, "but": {}, "not": {}, "you": {},
	"all": {}, "any": {}, "can": {}, "had": {}, "her": {}, "was": {}, "one": {},
	"our": {}, "out": {}, "day": {}, "get": {}, "has": {}, "him": {}, "his": {},
	"how": {}, "man": {}, "new": {}, "now": {}, "old": {}, "see": {}, "two": {},
	"way": {}, "who": {}, "boy": {}, "did": {}, "its": {}, "let": {}, "put": {},
	"say": {}, "she": {}, "too": {}, "use": {}, "with": {}, "that": {}, "this": {},
	"from": {}, "they": {}, "have": {}, "more": {}, "will": {}, "been": {},
	"were": {}, "said": {}, "what": {}, "when": {}, "into": {}, "than": {},
	"after": {}, "over": {}, "also": {}, "only": {}, "about": {}, "could": {},
	"their": {}, "which": {}, "there": {}, "would": {}, "should": {}, "first": {},
	"being": {}, "during": {}, "while": {}, "where": {}, "amid": {}, "amidst": {},
}

func isStopword(token string) bool {
	_, found := stopwords[token]
	return found
}
