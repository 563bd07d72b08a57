package kb

import (
	"encoding/json"
	"fmt"
	"os"
	"regexp"
	"strings"

	"github.com/rs/zerolog/log"

	"power-text2sql-backend/config"
	"power-text2sql-backend/internal/model"
)

// KnowledgeBaseError reports a malformed or internally inconsistent catalog.
// Loading fails as a whole; a partially usable index is never returned.
type KnowledgeBaseError struct {
	Catalog string
	Reason  string
}

func (e *KnowledgeBaseError) Error() string {
	return fmt.Sprintf("knowledge base catalog %q: %s", e.Catalog, e.Reason)
}

var (
	formulaPlaceholder = regexp.MustCompile(`\{([A-Za-z0-9_]+\.[A-Za-z0-9_]+)\}`)
	formulaSkeleton    = regexp.MustCompile(`^[A-Za-z0-9_\s(),*+\-/.]*$`)
)

// Functions a metric formula may call. Anything else in the skeleton is a
// load-time error, so free-form SQL can never hide inside a catalog.
var allowedFormulaFuncs = map[string]bool{
	"SUM":      true,
	"AVG":      true,
	"COUNT":    true,
	"MIN":      true,
	"MAX":      true,
	"NULLIF":   true,
	"COALESCE": true,
}

// Load reads the four catalogs from disk and builds the immutable index.
func Load(cfg config.KnowledgeBaseConfig) (*Index, error) {
	var facts []model.SchemaFact
	if err := readCatalog(cfg.SchemaPath, "schema", &facts); err != nil {
		return nil, err
	}
	var joins []model.JoinPath
	if err := readCatalog(cfg.JoinPath, "join", &joins); err != nil {
		return nil, err
	}
	var metrics []model.MetricDef
	if err := readCatalog(cfg.MetricPath, "metric", &metrics); err != nil {
		return nil, err
	}
	var templates []model.TemplateRule
	if err := readCatalog(cfg.TemplatePath, "template", &templates); err != nil {
		return nil, err
	}

	idx, err := NewIndex(facts, joins, metrics, templates)
	if err != nil {
		return nil, err
	}
	log.Info().
		Int("schema_facts", len(facts)).
		Int("join_paths", len(joins)).
		Int("metrics", len(metrics)).
		Int("templates", len(templates)).
		Msg("Knowledge base catalogs loaded")
	return idx, nil
}

func readCatalog(path, name string, out interface{}) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return &KnowledgeBaseError{Catalog: name, Reason: fmt.Sprintf("read %s: %v", path, err)}
	}
	if err := json.Unmarshal(data, out); err != nil {
		return &KnowledgeBaseError{Catalog: name, Reason: fmt.Sprintf("parse %s: %v", path, err)}
	}
	return nil
}

// checkConsistency rejects catalogs that reference each other incorrectly:
// join keys over unknown tables, metrics requiring columns absent from the
// schema facts, template allow-lists naming unknown columns.
func checkConsistency(idx *Index) error {
	for _, jp := range idx.joins {
		if !idx.TableExists(jp.LeftTable) {
			return &KnowledgeBaseError{Catalog: "join", Reason: fmt.Sprintf("unknown table %q", jp.LeftTable)}
		}
		if !idx.TableExists(jp.RightTable) {
			return &KnowledgeBaseError{Catalog: "join", Reason: fmt.Sprintf("unknown table %q", jp.RightTable)}
		}
		if !idx.ColumnExists(jp.LeftTable, jp.LeftKey) {
			return &KnowledgeBaseError{Catalog: "join", Reason: fmt.Sprintf("unknown join key %s.%s", jp.LeftTable, jp.LeftKey)}
		}
		if !idx.ColumnExists(jp.RightTable, jp.RightKey) {
			return &KnowledgeBaseError{Catalog: "join", Reason: fmt.Sprintf("unknown join key %s.%s", jp.RightTable, jp.RightKey)}
		}
	}

	for name, m := range idx.metrics {
		if len(m.RequiredFields) == 0 {
			return &KnowledgeBaseError{Catalog: "metric", Reason: fmt.Sprintf("metric %q has no required fields", name)}
		}
		for _, field := range m.RequiredFields {
			if _, ok := idx.Fact(field); !ok {
				return &KnowledgeBaseError{Catalog: "metric", Reason: fmt.Sprintf("metric %q requires unknown field %q", name, field)}
			}
		}
		if err := checkFormula(name, m.Formula, idx); err != nil {
			return err
		}
	}

	for intent, rule := range idx.templates {
		for _, dim := range rule.AllowedDimensions {
			if _, ok := idx.Fact(dim); !ok {
				return &KnowledgeBaseError{Catalog: "template", Reason: fmt.Sprintf("rule %q allows unknown dimension %q", intent, dim)}
			}
		}
		for _, f := range rule.AllowedFilters {
			if _, ok := idx.Fact(f); !ok {
				return &KnowledgeBaseError{Catalog: "template", Reason: fmt.Sprintf("rule %q allows unknown filter field %q", intent, f)}
			}
		}
		for _, g := range rule.AllowedGranularities {
			if !contains(model.Granularities, g) {
				return &KnowledgeBaseError{Catalog: "template", Reason: fmt.Sprintf("rule %q allows unknown granularity %q", intent, g)}
			}
		}
	}
	return nil
}

// checkFormula verifies that a metric formula is built only from
// {table.column} placeholders over known schema facts, allow-listed
// functions, numbers and arithmetic.
func checkFormula(name, formula string, idx *Index) error {
	if strings.TrimSpace(formula) == "" {
		return &KnowledgeBaseError{Catalog: "metric", Reason: fmt.Sprintf("metric %q has an empty formula", name)}
	}
	for _, match := range formulaPlaceholder.FindAllStringSubmatch(formula, -1) {
		if _, ok := idx.Fact(match[1]); !ok {
			return &KnowledgeBaseError{Catalog: "metric", Reason: fmt.Sprintf("metric %q formula references unknown field %q", name, match[1])}
		}
	}
	skeleton := formulaPlaceholder.ReplaceAllString(formula, "0")
	if !formulaSkeleton.MatchString(skeleton) {
		return &KnowledgeBaseError{Catalog: "metric", Reason: fmt.Sprintf("metric %q formula contains disallowed characters", name)}
	}
	for _, word := range regexp.MustCompile(`[A-Za-z_]+`).FindAllString(skeleton, -1) {
		if !allowedFormulaFuncs[strings.ToUpper(word)] {
			return &KnowledgeBaseError{Catalog: "metric", Reason: fmt.Sprintf("metric %q formula uses disallowed token %q", name, word)}
		}
	}
	return nil
}

func contains(list []string, item string) bool {
	for _, v := range list {
		if v == item {
			return true
		}
	}
	return false
}
