package kb

import (
	"fmt"
	"sort"
	"strings"

	"power-text2sql-backend/internal/model"
)

// Index is the read-only lookup surface over the four catalogs. It is built
// once, never mutated afterwards, and safe for unlimited concurrent readers.
type Index struct {
	facts     map[string]model.SchemaFact // keyed "table.column"
	tables    map[string][]model.SchemaFact
	metrics   map[string]model.MetricDef
	templates map[string]model.TemplateRule // keyed by intent
	joins     []model.JoinPath
	adjacency map[string][]joinEdge
}

type joinEdge struct {
	to   string
	path model.JoinPath
}

// NewIndex builds the lookup structures and rejects internally inconsistent
// catalogs with a KnowledgeBaseError.
func NewIndex(
	facts []model.SchemaFact,
	joins []model.JoinPath,
	metrics []model.MetricDef,
	templates []model.TemplateRule,
) (*Index, error) {
	idx := &Index{
		facts:     make(map[string]model.SchemaFact, len(facts)),
		tables:    make(map[string][]model.SchemaFact),
		metrics:   make(map[string]model.MetricDef, len(metrics)),
		templates: make(map[string]model.TemplateRule, len(templates)),
		joins:     joins,
		adjacency: make(map[string][]joinEdge),
	}

	for _, fact := range facts {
		key := fact.Table + "." + fact.Column
		if _, exists := idx.facts[key]; exists {
			return nil, &KnowledgeBaseError{Catalog: "schema", Reason: fmt.Sprintf("duplicate fact %q", key)}
		}
		idx.facts[key] = fact
		idx.tables[fact.Table] = append(idx.tables[fact.Table], fact)
	}

	for _, m := range metrics {
		if _, exists := idx.metrics[m.Name]; exists {
			return nil, &KnowledgeBaseError{Catalog: "metric", Reason: fmt.Sprintf("duplicate metric %q", m.Name)}
		}
		idx.metrics[m.Name] = m
	}

	for _, rule := range templates {
		if _, exists := idx.templates[rule.Intent]; exists {
			return nil, &KnowledgeBaseError{Catalog: "template", Reason: fmt.Sprintf("duplicate rule for intent %q", rule.Intent)}
		}
		idx.templates[rule.Intent] = rule
	}

	for _, jp := range joins {
		idx.adjacency[jp.LeftTable] = append(idx.adjacency[jp.LeftTable], joinEdge{to: jp.RightTable, path: jp})
		idx.adjacency[jp.RightTable] = append(idx.adjacency[jp.RightTable], joinEdge{to: jp.LeftTable, path: jp})
	}

	if err := checkConsistency(idx); err != nil {
		return nil, err
	}
	return idx, nil
}

func (idx *Index) TableExists(table string) bool {
	_, ok := idx.tables[table]
	return ok
}

func (idx *Index) ColumnExists(table, column string) bool {
	_, ok := idx.facts[table+"."+column]
	return ok
}

// Fact resolves a qualified "table.column" identifier.
func (idx *Index) Fact(qualified string) (model.SchemaFact, bool) {
	fact, ok := idx.facts[qualified]
	return fact, ok
}

func (idx *Index) MetricDefinition(name string) (model.MetricDef, bool) {
	m, ok := idx.metrics[name]
	return m, ok
}

func (idx *Index) TemplateRule(intent string) (model.TemplateRule, bool) {
	rule, ok := idx.templates[intent]
	return rule, ok
}

// JoinPathBetween returns the shortest sanctioned join sequence connecting
// the two tables, or nil when they are unreachable. BFS over the precomputed
// adjacency, so the cost is proportional to the number of hops visited.
func (idx *Index) JoinPathBetween(from, to string) []model.JoinPath {
	if from == to {
		return []model.JoinPath{}
	}
	type node struct {
		table string
		trail []model.JoinPath
	}
	visited := map[string]bool{from: true}
	queue := []node{{table: from}}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for _, edge := range idx.adjacency[cur.table] {
			if visited[edge.to] {
				continue
			}
			trail := append(append([]model.JoinPath{}, cur.trail...), edge.path)
			if edge.to == to {
				return trail
			}
			visited[edge.to] = true
			queue = append(queue, node{table: edge.to, trail: trail})
		}
	}
	return nil
}

// Tables lists every known table in deterministic order.
func (idx *Index) Tables() []string {
	names := make([]string, 0, len(idx.tables))
	for t := range idx.tables {
		names = append(names, t)
	}
	sort.Strings(names)
	return names
}

// QualifiedColumns lists every "table.column" identifier in deterministic
// order. Used for prompt context and validation suggestions.
func (idx *Index) QualifiedColumns() []string {
	keys := make([]string, 0, len(idx.facts))
	for k := range idx.facts {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Metrics lists every metric name in deterministic order.
func (idx *Index) Metrics() []string {
	names := make([]string, 0, len(idx.metrics))
	for m := range idx.metrics {
		names = append(names, m)
	}
	sort.Strings(names)
	return names
}

// ColumnsOf lists the columns of one table, qualified.
func (idx *Index) ColumnsOf(table string) []string {
	cols := make([]string, 0, len(idx.tables[table]))
	for _, fact := range idx.tables[table] {
		cols = append(cols, fact.Table+"."+fact.Column)
	}
	sort.Strings(cols)
	return cols
}

// SplitQualified splits "table.column" into its parts.
func SplitQualified(qualified string) (table, column string, ok bool) {
	parts := strings.SplitN(qualified, ".", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", false
	}
	return parts[0], parts[1], true
}
