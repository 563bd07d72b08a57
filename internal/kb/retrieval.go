package kb

import (
	"math"
	"regexp"
	"sort"
	"strings"
)

// Evidence is the question-scoped slice of the knowledge base handed to
// prompt construction. Candidates are ranked by token overlap with the
// question; unmatched entries fill the remaining slots in name order, so a
// small catalog still ships whole.
type Evidence struct {
	Metrics []string
	Columns []string
}

var tokenPattern = regexp.MustCompile(`[a-zA-Z0-9_]+`)

// RetrieveEvidence returns up to topK metrics and topK qualified columns
// ranked by similarity to the question. Output order is deterministic:
// score descending, then name.
func (idx *Index) RetrieveEvidence(question string, topK int) Evidence {
	if topK < 1 {
		topK = 1
	}
	tokens := tokenSet(question)
	return Evidence{
		Metrics: rank(idx.metricCandidates(), tokens, topK),
		Columns: rank(idx.columnCandidates(), tokens, topK),
	}
}

type candidate struct {
	name   string
	tokens map[string]bool
}

func (idx *Index) metricCandidates() []candidate {
	out := make([]candidate, 0, len(idx.metrics))
	for _, name := range idx.Metrics() {
		m := idx.metrics[name]
		text := strings.Join(append([]string{m.Name, m.Unit}, m.RequiredFields...), " ")
		out = append(out, candidate{name: name, tokens: tokenSet(text)})
	}
	return out
}

func (idx *Index) columnCandidates() []candidate {
	out := make([]candidate, 0, len(idx.facts))
	for _, qualified := range idx.QualifiedColumns() {
		fact := idx.facts[qualified]
		text := strings.Join(append([]string{fact.Table, fact.Column, fact.Unit}, fact.Aliases...), " ")
		out = append(out, candidate{name: qualified, tokens: tokenSet(text)})
	}
	return out
}

func rank(candidates []candidate, question map[string]bool, topK int) []string {
	type scored struct {
		name  string
		score float64
	}
	list := make([]scored, 0, len(candidates))
	for _, c := range candidates {
		list = append(list, scored{name: c.name, score: cosine(question, c.tokens)})
	}
	sort.SliceStable(list, func(i, j int) bool {
		if list[i].score != list[j].score {
			return list[i].score > list[j].score
		}
		return list[i].name < list[j].name
	})
	if len(list) > topK {
		list = list[:topK]
	}
	names := make([]string, len(list))
	for i, s := range list {
		names[i] = s.name
	}
	return names
}

func cosine(a, b map[string]bool) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	inter := 0
	for t := range a {
		if b[t] {
			inter++
		}
	}
	return float64(inter) / (math.Sqrt(float64(len(a))) * math.Sqrt(float64(len(b))))
}

// tokenSet lowercases and splits on non-word runs. Identifier tokens are
// additionally split on underscores so "region" matches "dim_feeder.region".
func tokenSet(text string) map[string]bool {
	set := make(map[string]bool)
	for _, tok := range tokenPattern.FindAllString(strings.ToLower(text), -1) {
		set[tok] = true
		if strings.Contains(tok, "_") {
			for _, part := range strings.Split(tok, "_") {
				if part != "" {
					set[part] = true
				}
			}
		}
	}
	return set
}
