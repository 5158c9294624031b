// Package discovery defers part of the tool catalog behind a search
// capability the model can call to pull tools in on demand.
package discovery

import (
	"math"
	"sort"
	"strings"
	"unicode"

	"mcpchat/internal/domain"
)

// BM25 parameters, standard Okapi values.
const (
	bm25K1 = 1.5
	bm25B  = 0.75
)

// Index ranks a fixed set of tools against free-text queries. Documents
// are each tool's wire name plus description. Built once per conversation
// over the deferred subset; not safe for concurrent use and never shared.
type Index struct {
	tools     []domain.Tool // catalog order
	docs      [][]string
	docFreq   map[string]int
	avgDocLen float64

	byWireName map[string]int
	byServer   map[string][]int
	servers    []string // first-seen order
}

// NewIndex builds an index over tools. An empty tool set is valid; every
// search on it returns no results.
func NewIndex(tools []domain.Tool) *Index {
	ix := &Index{
		tools:      tools,
		docs:       make([][]string, len(tools)),
		docFreq:    make(map[string]int),
		byWireName: make(map[string]int, len(tools)),
		byServer:   make(map[string][]int),
	}

	totalLen := 0
	for i, t := range tools {
		doc := tokenize(t.WireName + " " + t.Description)
		ix.docs[i] = doc
		totalLen += len(doc)

		seen := make(map[string]struct{}, len(doc))
		for _, tok := range doc {
			if _, ok := seen[tok]; ok {
				continue
			}
			seen[tok] = struct{}{}
			ix.docFreq[tok]++
		}

		ix.byWireName[t.WireName] = i
		if _, ok := ix.byServer[t.Server]; !ok {
			ix.servers = append(ix.servers, t.Server)
		}
		ix.byServer[t.Server] = append(ix.byServer[t.Server], i)
	}
	if len(tools) > 0 {
		ix.avgDocLen = float64(totalLen) / float64(len(tools))
	}
	return ix
}

// Search returns up to maxResults tools with positive relevance to query,
// best first. A non-empty serverFilter restricts candidates to that server
// before ranking. Ties keep catalog order. When the corpus is too uniform
// for inverse document frequency to discriminate (no document scores above
// zero, the tunable degenerate threshold), ranking falls back to raw token
// overlap between query and document.
func (ix *Index) Search(query, serverFilter string, maxResults int) []domain.Tool {
	queryTokens := tokenize(query)
	if len(queryTokens) == 0 || len(ix.tools) == 0 || maxResults <= 0 {
		return nil
	}

	candidates := ix.candidates(serverFilter)
	if len(candidates) == 0 {
		return nil
	}

	type scored struct {
		idx   int
		score float64
	}
	var hits []scored
	for _, i := range candidates {
		if s := ix.bm25(queryTokens, i); s > 0 {
			hits = append(hits, scored{i, s})
		}
	}
	if len(hits) == 0 {
		for _, i := range candidates {
			if n := overlap(queryTokens, ix.docs[i]); n > 0 {
				hits = append(hits, scored{i, float64(n)})
			}
		}
	}

	sort.SliceStable(hits, func(a, b int) bool { return hits[a].score > hits[b].score })
	if len(hits) > maxResults {
		hits = hits[:maxResults]
	}

	out := make([]domain.Tool, len(hits))
	for i, h := range hits {
		out[i] = ix.tools[h.idx]
	}
	return out
}

// ByServer returns the indexed tools owned by the named server, in catalog
// order.
func (ix *Index) ByServer(server string) []domain.Tool {
	idxs := ix.byServer[server]
	out := make([]domain.Tool, len(idxs))
	for i, idx := range idxs {
		out[i] = ix.tools[idx]
	}
	return out
}

// ByNames looks tools up by exact wire name, reporting the names that
// matched nothing.
func (ix *Index) ByNames(names []string) (found []domain.Tool, missing []string) {
	for _, name := range names {
		if i, ok := ix.byWireName[name]; ok {
			found = append(found, ix.tools[i])
		} else {
			missing = append(missing, name)
		}
	}
	return found, missing
}

// ToolCount returns the number of indexed tools.
func (ix *Index) ToolCount() int { return len(ix.tools) }

// ServerNames returns the servers with indexed tools, in catalog order.
func (ix *Index) ServerNames() []string { return ix.servers }

func (ix *Index) candidates(serverFilter string) []int {
	if serverFilter != "" {
		return ix.byServer[serverFilter]
	}
	all := make([]int, len(ix.tools))
	for i := range all {
		all[i] = i
	}
	return all
}

func (ix *Index) bm25(queryTokens []string, doc int) float64 {
	n := float64(len(ix.tools))
	docLen := float64(len(ix.docs[doc]))

	tf := make(map[string]int, len(ix.docs[doc]))
	for _, tok := range ix.docs[doc] {
		tf[tok]++
	}

	score := 0.0
	for _, tok := range queryTokens {
		freq := float64(tf[tok])
		if freq == 0 {
			continue
		}
		df := float64(ix.docFreq[tok])
		// Floored at zero: a term in every document carries no signal.
		idf := math.Max(0, math.Log((n-df+0.5)/(df+0.5)))
		norm := freq * (bm25K1 + 1) / (freq + bm25K1*(1-bm25B+bm25B*docLen/ix.avgDocLen))
		score += idf * norm
	}
	return score
}

func overlap(queryTokens, doc []string) int {
	docSet := make(map[string]struct{}, len(doc))
	for _, tok := range doc {
		docSet[tok] = struct{}{}
	}
	seen := make(map[string]struct{}, len(queryTokens))
	n := 0
	for _, tok := range queryTokens {
		if _, dup := seen[tok]; dup {
			continue
		}
		seen[tok] = struct{}{}
		if _, ok := docSet[tok]; ok {
			n++
		}
	}
	return n
}

// tokenize lowercases and splits on whitespace and the punctuation used as
// word boundaries inside identifiers, so a name like search_brave_web
// matches a natural-language query.
func tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}
