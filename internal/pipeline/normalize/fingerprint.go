// Package normalize turns a parsed feed entry into a canonical Raw Article:
// story_fingerprint, exact_hash, simhash, and extracted entities, plus the
// rolling de-duplication barrier that guards insertion.
package normalize

import (
	"crypto/sha256"
	"encoding/hex"
	"math/bits"
	"regexp"
	"sort"
	"strings"

	"newsreel/internal/domain/entity"
)

var tokenPattern = regexp.MustCompile(`[a-z0-9]+`)

// tokenize lowercases and splits on non-alphanumeric runs, matching the
// "normalized content words" §4.2/§Glossary requires for both the
// story fingerprint and the dedup hashes.
func tokenize(s string) []string {
	return tokenPattern.FindAllString(strings.ToLower(s), -1)
}

// topKeywords returns the top-n tokens by frequency then first-occurrence
// order, after stopword removal — the "6 normalized content words" input to
// story_fingerprint (§3).
func topKeywords(title, description string, n int) []string {
	counts := make(map[string]int)
	order := make([]string, 0, 16)
	for _, tok := range tokenize(title + " " + description) {
		if isStopword(tok) || len(tok) < 3 {
			continue
		}
		if counts[tok] == 0 {
			order = append(order, tok)
		}
		counts[tok]++
	}
	sort.SliceStable(order, func(i, j int) bool { return counts[order[i]] > counts[order[j]] })
	if len(order) > n {
		order = order[:n]
	}
	return order
}

// StoryFingerprint computes the 8-char digest over the top-6 normalized
// keywords plus the top 2-3 entities (PERSON/ORG prioritized over LOC),
// per §3/§4.2/§Glossary.
func StoryFingerprint(title, description string, entities []entity.NamedEntity) string {
	keywords := topKeywords(title, description, 6)
	top := topEntityTexts(entities, 3)

	h := sha256.New()
	for _, k := range keywords {
		h.Write([]byte(k))
		h.Write([]byte{'|'})
	}
	for _, e := range top {
		h.Write([]byte(strings.ToLower(e)))
		h.Write([]byte{'|'})
	}
	return hex.EncodeToString(h.Sum(nil))[:8]
}

func topEntityTexts(entities []entity.NamedEntity, n int) []string {
	ranked := make([]entity.NamedEntity, len(entities))
	copy(ranked, entities)
	sort.SliceStable(ranked, func(i, j int) bool {
		pi, pj := entityPriority(ranked[i].Type), entityPriority(ranked[j].Type)
		if pi != pj {
			return pi > pj
		}
		return ranked[i].Salience > ranked[j].Salience
	})
	if len(ranked) > n {
		ranked = ranked[:n]
	}
	out := make([]string, len(ranked))
	for i, e := range ranked {
		out[i] = e.Text
	}
	return out
}

func entityPriority(t entity.EntityType) int {
	switch t {
	case entity.EntityPerson, entity.EntityOrg:
		return 2
	case entity.EntityLoc:
		return 1
	default:
		return 0
	}
}

// ExactHash is the SHA-256 over normalized title + source domain (
// §3's exact_hash).
func ExactHash(title, sourceDomain string) string {
	h := sha256.New()
	h.Write([]byte(strings.ToLower(strings.Join(tokenize(title), " "))))
	h.Write([]byte{'|'})
	h.Write([]byte(strings.ToLower(sourceDomain)))
	return hex.EncodeToString(h.Sum(nil))
}

// SimHash computes a 64-bit locality-sensitive fingerprint over 3-shingles
// of title+description (§3/§Glossary). Hand-rolled: no pack
// dependency implements simhash (see DESIGN.md).
func SimHash(title, description string) uint64 {
	tokens := tokenize(title + " " + description)
	if len(tokens) == 0 {
		return 0
	}
	shingles := shingle3(tokens)

	var weights [64]int
	for _, sh := range shingles {
		hash := fnv64a(sh)
		for bit := 0; bit < 64; bit++ {
			if hash&(1<<uint(bit)) != 0 {
				weights[bit]++
			} else {
				weights[bit]--
			}
		}
	}

	var result uint64
	for bit := 0; bit < 64; bit++ {
		if weights[bit] > 0 {
			result |= 1 << uint(bit)
		}
	}
	return result
}

// shingle3 builds overlapping 3-token windows, falling back to the full
// token string for inputs shorter than 3 tokens so very short titles still
// produce one shingle instead of none.
func shingle3(tokens []string) []string {
	if len(tokens) < 3 {
		return []string{strings.Join(tokens, " ")}
	}
	shingles := make([]string, 0, len(tokens)-2)
	for i := 0; i+3 <= len(tokens); i++ {
		shingles = append(shingles, strings.Join(tokens[i:i+3], " "))
	}
	return shingles
}

// fnv64a is the FNV-1a 64-bit hash (crypto/fnv equivalent inlined so
// SimHash has no allocation per shingle beyond the string itself).
func fnv64a(s string) uint64 {
	const offset64 = 14695981039346656037
	const prime64 = 1099511628211
	h := uint64(offset64)
	for i := 0; i < len(s); i++ {
		h ^= uint64(s[i])
		h *= prime64
	}
	return h
}

// HammingDistance64 counts differing bits between two simhashes — the
// near-duplicate test is Hamming distance ≤ 3 (§3/§4.1).
func HammingDistance64(a, b uint64) int {
	return bits.OnesCount64(a ^ b)
}
