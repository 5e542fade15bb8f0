package matching

import (
	"sort"
	"strings"

	"github.com/schollz/closestmatch"
)

// minSuggestionScore is the share of the query's trigrams a name must contain
// to be offered as a suggestion.
const minSuggestionScore = 0.5

// Suggester proposes registry names close to a query that found nothing.
type Suggester struct {
	cm     *closestmatch.ClosestMatch
	byNorm map[string]string
}

// NewSuggester indexes names. It returns nil when there is nothing to index.
func NewSuggester(names []string) *Suggester {
	byNorm := make(map[string]string, len(names))
	keys := make([]string, 0, len(names))
	for _, n := range names {
		k := NormalizeName(n)
		if k == "" {
			continue
		}
		if _, dup := byNorm[k]; dup {
			continue
		}
		byNorm[k] = n
		keys = append(keys, k)
	}
	if len(keys) == 0 {
		return nil
	}
	return &Suggester{
		cm:     closestmatch.New(keys, []int{2, 3, 4}),
		byNorm: byNorm,
	}
}

// Suggest returns up to n original names closest to query, best first.
// Names sharing too little with the query are left out.
func (s *Suggester) Suggest(query string, n int) []string {
	if s == nil || n <= 0 {
		return nil
	}
	q := NormalizeName(query)
	if q == "" {
		return nil
	}

	// closestmatch lowercases what it indexes but not the search word.
	lq := strings.ToLower(q)
	type scored struct {
		name  string
		score float64
	}
	var hits []scored
	for _, k := range s.cm.ClosestN(lq, n*4) {
		name, ok := s.byNorm[k]
		if !ok || k == "" {
			continue
		}
		if score := trigramOverlap(lq, strings.ToLower(k)); score >= minSuggestionScore {
			hits = append(hits, scored{name: name, score: score})
		}
	}
	sort.SliceStable(hits, func(i, j int) bool { return hits[i].score > hits[j].score })

	var out []string
	for _, h := range hits {
		if len(out) == n {
			break
		}
		out = append(out, h.name)
	}
	return out
}

// trigramOverlap is the fraction of query's trigrams found in candidate.
func trigramOverlap(query, candidate string) float64 {
	qs := trigrams(query)
	if len(qs) == 0 {
		if strings.Contains(candidate, query) {
			return 1
		}
		return 0
	}
	cs := trigrams(candidate)
	shared := 0
	for g := range qs {
		if _, ok := cs[g]; ok {
			shared++
		}
	}
	return float64(shared) / float64(len(qs))
}

func trigrams(s string) map[string]struct{} {
	out := make(map[string]struct{})
	for i := 0; i+3 <= len(s); i++ {
		out[s[i:i+3]] = struct{}{}
	}
	return out
}
