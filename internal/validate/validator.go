package validate

import (
	"fmt"
	"sort"
	"strings"

	"power-text2sql-backend/internal/kb"
	"power-text2sql-backend/internal/model"
	"power-text2sql-backend/internal/util"
)

var timeDataTypes = map[string]bool{"datetime": true, "timestamp": true, "date": true}

const maxSuggestions = 5

// Plan checks a query plan against the knowledge base index. Categories run
// in a fixed order; a category that produced fatal errors stops the pass
// after all of its own errors were collected, so the repair loop always sees
// the most fundamental problem first.
func Plan(plan model.QueryPlan, idx *kb.Index) []model.ValidationError {
	var errs []model.ValidationError

	structural := checkStructural(plan)
	errs = append(errs, structural...)
	if model.HasFatal(structural) {
		return errs
	}

	referential := checkReferential(plan, idx)
	errs = append(errs, referential...)
	if model.HasFatal(referential) {
		return errs
	}

	joinability := checkJoinability(plan, idx)
	errs = append(errs, joinability...)
	if model.HasFatal(joinability) {
		return errs
	}

	completeness := checkMetricCompleteness(plan, idx)
	errs = append(errs, completeness...)
	if model.HasFatal(completeness) {
		return errs
	}

	template := checkTemplate(plan, idx)
	errs = append(errs, template...)
	if model.HasFatal(template) {
		return errs
	}

	errs = append(errs, checkTimeRange(plan, idx)...)
	return errs
}

func checkStructural(plan model.QueryPlan) []model.ValidationError {
	var errs []model.ValidationError
	fatal := func(path, msg string, suggestions ...string) {
		errs = append(errs, model.ValidationError{
			Code:        model.CodeSchemaInvalid,
			FieldPath:   path,
			Message:     msg,
			Severity:    model.SeverityFatal,
			Suggestions: suggestions,
		})
	}

	if strings.TrimSpace(plan.Metric) == "" {
		fatal("metric", "metric is required")
	}
	for i, dim := range plan.Dimensions {
		if _, _, ok := kb.SplitQualified(dim); !ok {
			fatal(fmt.Sprintf("dimensions[%d]", i), fmt.Sprintf("dimension %q must be a qualified table.column identifier", dim))
		}
	}
	for i, f := range plan.Filters {
		path := fmt.Sprintf("filters[%d]", i)
		if _, _, ok := kb.SplitQualified(f.Field); !ok {
			fatal(path+".field", fmt.Sprintf("filter field %q must be a qualified table.column identifier", f.Field))
		}
		if !contains(model.FilterOperators, f.Operator) {
			fatal(path+".operator", fmt.Sprintf("unsupported operator %q", f.Operator), model.FilterOperators...)
		}
		if f.Value == nil {
			fatal(path+".value", "filter value is required")
		}
		switch f.Operator {
		case "in":
			if _, ok := f.Value.([]interface{}); !ok {
				fatal(path+".value", "operator \"in\" requires a list value")
			}
		case "between":
			if list, ok := f.Value.([]interface{}); !ok || len(list) != 2 {
				fatal(path+".value", "operator \"between\" requires exactly two values")
			}
		}
	}
	if tr := plan.TimeRange; tr != nil {
		if tr.Start == "" || tr.End == "" {
			fatal("time_range", "time_range requires both start and end")
		}
		if tr.Granularity != "" && !contains(model.Granularities, tr.Granularity) {
			fatal("time_range.granularity", fmt.Sprintf("unknown granularity %q", tr.Granularity), model.Granularities...)
		}
	}
	if plan.Sort != nil && plan.Sort.Order != "asc" && plan.Sort.Order != "desc" {
		fatal("sort.order", fmt.Sprintf("sort order must be asc or desc, got %q", plan.Sort.Order))
	}
	if plan.Limit != nil && (*plan.Limit < 1 || *plan.Limit > 10000) {
		fatal("limit", "limit must be between 1 and 10000")
	}
	return errs
}

func checkReferential(plan model.QueryPlan, idx *kb.Index) []model.ValidationError {
	var errs []model.ValidationError
	unknown := func(path, msg string, suggestions []string) {
		errs = append(errs, model.ValidationError{
			Code:        model.CodeUnknownReference,
			FieldPath:   path,
			Message:     msg,
			Severity:    model.SeverityFatal,
			Suggestions: capList(suggestions),
		})
	}

	if _, ok := idx.MetricDefinition(plan.Metric); !ok {
		unknown("metric", fmt.Sprintf("unknown metric %q", plan.Metric), idx.Metrics())
	}
	for i, dim := range plan.Dimensions {
		if _, ok := idx.Fact(dim); !ok {
			unknown(fmt.Sprintf("dimensions[%d]", i), fmt.Sprintf("unknown field %q", dim), suggestFields(dim, idx))
		}
	}
	for i, f := range plan.Filters {
		if _, ok := idx.Fact(f.Field); !ok {
			unknown(fmt.Sprintf("filters[%d].field", i), fmt.Sprintf("unknown field %q", f.Field), suggestFields(f.Field, idx))
		}
	}
	for i, table := range plan.TablesHint {
		if !idx.TableExists(table) {
			unknown(fmt.Sprintf("tables_hint[%d]", i), fmt.Sprintf("unknown table %q", table), idx.Tables())
		}
	}
	return errs
}

func checkJoinability(plan model.QueryPlan, idx *kb.Index) []model.ValidationError {
	tables := ReferencedTables(plan, idx)
	if len(tables) < 2 {
		return nil
	}
	var errs []model.ValidationError
	base := tables[0]
	for _, t := range tables[1:] {
		if idx.JoinPathBetween(base, t) == nil {
			errs = append(errs, model.ValidationError{
				Code:      model.CodeNoJoinPath,
				FieldPath: "dimensions",
				Message:   fmt.Sprintf("no sanctioned join path connects %q and %q", base, t),
				Severity:  model.SeverityFatal,
			})
		}
	}
	return errs
}

func checkMetricCompleteness(plan model.QueryPlan, idx *kb.Index) []model.ValidationError {
	metricDef, ok := idx.MetricDefinition(plan.Metric)
	if !ok {
		return nil
	}
	var errs []model.ValidationError
	for _, field := range metricDef.RequiredFields {
		fact, ok := idx.Fact(field)
		if !ok {
			continue // catalogs are checked at load; unreachable in practice
		}
		if timeDataTypes[strings.ToLower(fact.Type)] && plan.TimeRange == nil {
			errs = append(errs, model.ValidationError{
				Code:      model.CodeMissingRequiredField,
				FieldPath: "time_range",
				Message:   fmt.Sprintf("metric %q requires time field %s but the plan has no time_range", plan.Metric, field),
				Severity:  model.SeverityFatal,
			})
		}
	}
	return errs
}

func checkTemplate(plan model.QueryPlan, idx *kb.Index) []model.ValidationError {
	intent := plan.Intent
	if intent == "" {
		intent = "aggregate"
	}
	rule, ok := idx.TemplateRule(intent)
	if !ok {
		return nil
	}

	severity := model.SeverityAdvisory
	if rule.Strict {
		severity = model.SeverityFatal
	}
	violation := func(path, msg string, suggestions []string) model.ValidationError {
		return model.ValidationError{
			Code:        model.CodeTemplateViolation,
			FieldPath:   path,
			Message:     msg,
			Severity:    severity,
			Suggestions: capList(suggestions),
		}
	}

	var errs []model.ValidationError
	for i, dim := range plan.Dimensions {
		if !contains(rule.AllowedDimensions, dim) {
			errs = append(errs, violation(fmt.Sprintf("dimensions[%d]", i),
				fmt.Sprintf("dimension %q is not allowed for intent %q", dim, intent), rule.AllowedDimensions))
		}
	}
	for i, f := range plan.Filters {
		if !contains(rule.AllowedFilters, f.Field) {
			errs = append(errs, violation(fmt.Sprintf("filters[%d].field", i),
				fmt.Sprintf("filter on %q is not allowed for intent %q", f.Field, intent), rule.AllowedFilters))
		}
	}
	for _, clause := range rule.RequiredClauses {
		switch clause {
		case "time_range":
			if plan.TimeRange == nil {
				errs = append(errs, violation("time_range", "template requires a time_range", nil))
			}
		case "sort":
			if plan.Sort == nil {
				errs = append(errs, violation("sort", "template requires a sort", []string{"metric desc"}))
			}
		case "limit":
			if plan.Limit == nil {
				errs = append(errs, violation("limit", "template requires a limit", []string{"10"}))
			}
		}
	}
	return errs
}

func checkTimeRange(plan model.QueryPlan, idx *kb.Index) []model.ValidationError {
	tr := plan.TimeRange
	if tr == nil {
		return nil
	}
	invalid := func(path, msg string, suggestions ...string) model.ValidationError {
		return model.ValidationError{
			Code:        model.CodeInvalidTimeRange,
			FieldPath:   path,
			Message:     msg,
			Severity:    model.SeverityFatal,
			Suggestions: suggestions,
		}
	}

	var errs []model.ValidationError
	start, errStart := util.ParseTimeFlexible(tr.Start)
	end, errEnd := util.ParseTimeFlexible(tr.End)
	if errStart != nil || errEnd != nil {
		errs = append(errs, invalid("time_range", "time bounds must be YYYY-MM-DD, RFC3339 or epoch milliseconds", "YYYY-MM-DD"))
	} else if start.After(end) {
		errs = append(errs, invalid("time_range", "time_range.start is after end"))
	}

	if tr.Granularity != "" {
		intent := plan.Intent
		if intent == "" {
			intent = "aggregate"
		}
		if rule, ok := idx.TemplateRule(intent); ok && len(rule.AllowedGranularities) > 0 {
			if !contains(rule.AllowedGranularities, tr.Granularity) {
				errs = append(errs, invalid("time_range.granularity",
					fmt.Sprintf("granularity %q is not allowed for intent %q", tr.Granularity, intent),
					rule.AllowedGranularities...))
			}
		}
	}
	return errs
}

// ReferencedTables collects every table the plan needs, in deterministic
// order: the metric's required-field tables, dimension and filter tables,
// and the plan's own hint.
func ReferencedTables(plan model.QueryPlan, idx *kb.Index) []string {
	seen := make(map[string]bool)
	if metricDef, ok := idx.MetricDefinition(plan.Metric); ok {
		for _, field := range metricDef.RequiredFields {
			if table, _, ok := kb.SplitQualified(field); ok {
				seen[table] = true
			}
		}
	}
	for _, dim := range plan.Dimensions {
		if table, _, ok := kb.SplitQualified(dim); ok {
			seen[table] = true
		}
	}
	for _, f := range plan.Filters {
		if table, _, ok := kb.SplitQualified(f.Field); ok {
			seen[table] = true
		}
	}
	for _, table := range plan.TablesHint {
		seen[table] = true
	}

	tables := make([]string, 0, len(seen))
	for t := range seen {
		tables = append(tables, t)
	}
	sort.Strings(tables)
	return tables
}

func suggestFields(unknown string, idx *kb.Index) []string {
	if table, _, ok := kb.SplitQualified(unknown); ok && idx.TableExists(table) {
		return idx.ColumnsOf(table)
	}
	return idx.QualifiedColumns()
}

func capList(list []string) []string {
	if len(list) > maxSuggestions {
		return list[:maxSuggestions]
	}
	return list
}

func contains(list []string, item string) bool {
	for _, v := range list {
		if v == item {
			return true
		}
	}
	return false
}
