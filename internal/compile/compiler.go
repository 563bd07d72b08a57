package compile

import (
	"fmt"
	"regexp"
	"strings"

	"power-text2sql-backend/internal/kb"
	"power-text2sql-backend/internal/model"
	"power-text2sql-backend/internal/util"
	"power-text2sql-backend/internal/validate"
)

const timeBucketAlias = "time_bucket"

var (
	formulaPlaceholder = regexp.MustCompile(`\{([A-Za-z0-9_]+\.[A-Za-z0-9_]+)\}`)
	aggregateFunc      = regexp.MustCompile(`(?i)\b(sum|avg|count|min|max)\s*\(`)
	timeColumnTypes    = map[string]bool{"datetime": true, "timestamp": true, "date": true}
)

// Compiler translates validated plans into parameterized SQL for one
// dialect. Compilation is pure: the same plan against the same index always
// yields byte-identical output.
type Compiler struct {
	dialect      Dialect
	defaultLimit int
}

func NewCompiler(dialect Dialect, defaultLimit int) *Compiler {
	if defaultLimit <= 0 {
		defaultLimit = 200
	}
	return &Compiler{dialect: dialect, defaultLimit: defaultLimit}
}

func (c *Compiler) Dialect() Dialect { return c.dialect }

// Compile expects a plan that already validated with zero fatal errors.
// Referential existence is re-checked here; a violation fails fast rather
// than trusting the caller.
func (c *Compiler) Compile(plan model.QueryPlan, idx *kb.Index) (model.CompiledSQL, error) {
	guard := func(format string, args ...interface{}) (model.CompiledSQL, error) {
		return model.CompiledSQL{}, model.NewPipelineError("compile", model.CodeCompileGuardViolation, fmt.Errorf(format, args...))
	}

	metricDef, ok := idx.MetricDefinition(plan.Metric)
	if !ok {
		return guard("metric %q not in knowledge base", plan.Metric)
	}
	for _, dim := range plan.Dimensions {
		if _, ok := idx.Fact(dim); !ok {
			return guard("dimension %q not in knowledge base", dim)
		}
	}
	for _, f := range plan.Filters {
		if _, ok := idx.Fact(f.Field); !ok {
			return guard("filter field %q not in knowledge base", f.Field)
		}
	}

	tables := validate.ReferencedTables(plan, idx)
	if len(tables) == 0 {
		return guard("plan resolves to no tables")
	}
	base := tables[0]

	joins, err := c.resolveJoins(base, tables[1:], idx)
	if err != nil {
		return model.CompiledSQL{}, err
	}

	b := &builder{dialect: c.dialect}

	var selectParts, groupParts, orderParts []string

	bucketSQL := ""
	if plan.TimeRange != nil && plan.TimeRange.Granularity != "" {
		timeCol := c.pickTimeColumn(metricDef, tables, idx)
		if timeCol == "" {
			return guard("granularity %q requested but no time column exists on the resolved tables", plan.TimeRange.Granularity)
		}
		colSQL, err := b.qualified(timeCol)
		if err != nil {
			return guard("%v", err)
		}
		bucketSQL, err = c.dialect.TimeBucket(colSQL, plan.TimeRange.Granularity)
		if err != nil {
			return guard("%v", err)
		}
		selectParts = append(selectParts, bucketSQL+" AS "+timeBucketAlias)
	}

	for _, dim := range plan.Dimensions {
		colSQL, err := b.qualified(dim)
		if err != nil {
			return guard("%v", err)
		}
		selectParts = append(selectParts, colSQL)
		groupParts = append(groupParts, colSQL)
		orderParts = append(orderParts, colSQL)
	}

	metricSQL, err := c.metricExpr(metricDef, idx, b)
	if err != nil {
		return model.CompiledSQL{}, err
	}
	metricAlias, err := c.dialect.QuoteIdent(plan.Metric)
	if err != nil {
		return guard("%v", err)
	}
	selectParts = append(selectParts, metricSQL+" AS "+metricAlias)

	fromSQL, err := c.dialect.QuoteIdent(base)
	if err != nil {
		return guard("%v", err)
	}

	var sb strings.Builder
	sb.WriteString("SELECT ")
	sb.WriteString(strings.Join(selectParts, ", "))
	sb.WriteString(" FROM ")
	sb.WriteString(fromSQL)

	joined := map[string]bool{base: true}
	for _, jp := range joins {
		clause, err := b.joinClause(jp, joined)
		if err != nil {
			return guard("%v", err)
		}
		sb.WriteString(clause)
	}

	whereParts, err := c.whereClauses(plan, metricDef, tables, idx, b)
	if err != nil {
		return model.CompiledSQL{}, err
	}
	if len(whereParts) > 0 {
		sb.WriteString(" WHERE ")
		sb.WriteString(strings.Join(whereParts, " AND "))
	}

	isAggregate := aggregateFunc.MatchString(metricDef.Formula)
	if isAggregate && (len(groupParts) > 0 || bucketSQL != "") {
		groupCols := append([]string{}, groupParts...)
		if bucketSQL != "" {
			groupCols = append([]string{timeBucketAlias}, groupCols...)
		}
		sb.WriteString(" GROUP BY ")
		sb.WriteString(strings.Join(groupCols, ", "))
	}

	// Deterministic ordering: an explicit sort leads, then dimensions, then
	// the time bucket, so recompiling the same plan is byte-identical.
	order := make([]string, 0, len(orderParts)+2)
	if plan.Sort != nil {
		sortSQL, err := c.sortExpr(plan, metricAlias, bucketSQL != "", b)
		if err != nil {
			return model.CompiledSQL{}, err
		}
		if sortSQL != "" {
			order = append(order, sortSQL)
		}
	}
	for _, part := range orderParts {
		order = appendUnique(order, part)
	}
	if bucketSQL != "" {
		order = appendUnique(order, timeBucketAlias)
	}
	if len(order) > 0 {
		sb.WriteString(" ORDER BY ")
		sb.WriteString(strings.Join(order, ", "))
	}

	limit := c.defaultLimit
	if plan.Limit != nil {
		limit = *plan.Limit
	}
	sb.WriteString(" LIMIT ")
	sb.WriteString(b.bind(limit))

	return model.CompiledSQL{
		Text:           sb.String(),
		Parameters:     b.params,
		ResolvedTables: tables,
		ResolvedJoins:  joins,
	}, nil
}

// resolveJoins connects every table to the base through KB-sanctioned join
// paths only, deduplicating shared prefixes.
func (c *Compiler) resolveJoins(base string, others []string, idx *kb.Index) ([]model.JoinPath, error) {
	var joins []model.JoinPath
	seen := make(map[string]bool)
	for _, t := range others {
		path := idx.JoinPathBetween(base, t)
		if path == nil {
			return nil, model.NewPipelineError("compile", model.CodeCompileGuardViolation,
				fmt.Errorf("no sanctioned join path between %q and %q", base, t))
		}
		for _, jp := range path {
			key := jp.LeftTable + "." + jp.LeftKey + "=" + jp.RightTable + "." + jp.RightKey
			if seen[key] {
				continue
			}
			seen[key] = true
			joins = append(joins, jp)
		}
	}
	return joins, nil
}

// pickTimeColumn prefers a time-typed required field of the metric, then the
// first time-typed column of the resolved tables in deterministic order.
func (c *Compiler) pickTimeColumn(metricDef model.MetricDef, tables []string, idx *kb.Index) string {
	for _, field := range metricDef.RequiredFields {
		if fact, ok := idx.Fact(field); ok && timeColumnTypes[strings.ToLower(fact.Type)] {
			return field
		}
	}
	for _, table := range tables {
		for _, qualified := range idx.ColumnsOf(table) {
			if fact, ok := idx.Fact(qualified); ok && timeColumnTypes[strings.ToLower(fact.Type)] {
				return qualified
			}
		}
	}
	return ""
}

// metricExpr substitutes the formula placeholders with quoted identifiers.
// Every placeholder must resolve to a schema fact; the formula skeleton was
// already allow-listed at catalog load.
func (c *Compiler) metricExpr(metricDef model.MetricDef, idx *kb.Index, b *builder) (string, error) {
	var substErr error
	expr := formulaPlaceholder.ReplaceAllStringFunc(metricDef.Formula, func(match string) string {
		qualified := formulaPlaceholder.FindStringSubmatch(match)[1]
		if _, ok := idx.Fact(qualified); !ok {
			substErr = fmt.Errorf("formula references unknown field %q", qualified)
			return match
		}
		colSQL, err := b.qualified(qualified)
		if err != nil {
			substErr = err
			return match
		}
		return colSQL
	})
	if substErr != nil {
		return "", model.NewPipelineError("compile", model.CodeCompileGuardViolation, substErr)
	}
	return expr, nil
}

func (c *Compiler) whereClauses(
	plan model.QueryPlan,
	metricDef model.MetricDef,
	tables []string,
	idx *kb.Index,
	b *builder,
) ([]string, error) {
	guard := func(err error) ([]string, error) {
		return nil, model.NewPipelineError("compile", model.CodeCompileGuardViolation, err)
	}

	var parts []string
	if plan.TimeRange != nil {
		timeCol := c.pickTimeColumn(metricDef, tables, idx)
		if timeCol == "" {
			return guard(fmt.Errorf("time_range present but no time column exists on the resolved tables"))
		}
		colSQL, err := b.qualified(timeCol)
		if err != nil {
			return guard(err)
		}
		start, err := util.ParseTimeFlexible(plan.TimeRange.Start)
		if err != nil {
			return guard(err)
		}
		end, err := util.ParseTimeFlexible(plan.TimeRange.End)
		if err != nil {
			return guard(err)
		}
		parts = append(parts, fmt.Sprintf("%s BETWEEN %s AND %s", colSQL, b.bind(start), b.bind(end)))
	}

	for _, f := range plan.Filters {
		colSQL, err := b.qualified(f.Field)
		if err != nil {
			return guard(err)
		}
		switch f.Operator {
		case "=", "!=", ">", ">=", "<", "<=":
			parts = append(parts, fmt.Sprintf("%s %s %s", colSQL, f.Operator, b.bind(f.Value)))
		case "like":
			parts = append(parts, fmt.Sprintf("%s LIKE %s", colSQL, b.bind(f.Value)))
		case "in":
			values, ok := f.Value.([]interface{})
			if !ok || len(values) == 0 {
				return guard(fmt.Errorf("operator \"in\" on %q requires a non-empty list", f.Field))
			}
			marks := make([]string, len(values))
			for i, v := range values {
				marks[i] = b.bind(v)
			}
			parts = append(parts, fmt.Sprintf("%s IN (%s)", colSQL, strings.Join(marks, ", ")))
		case "between":
			values, ok := f.Value.([]interface{})
			if !ok || len(values) != 2 {
				return guard(fmt.Errorf("operator \"between\" on %q requires two values", f.Field))
			}
			parts = append(parts, fmt.Sprintf("%s BETWEEN %s AND %s", colSQL, b.bind(values[0]), b.bind(values[1])))
		default:
			return guard(fmt.Errorf("unsupported operator %q", f.Operator))
		}
	}
	return parts, nil
}

func (c *Compiler) sortExpr(plan model.QueryPlan, metricAlias string, hasBucket bool, b *builder) (string, error) {
	direction := "ASC"
	if plan.Sort.Order == "desc" {
		direction = "DESC"
	}
	switch by := plan.Sort.By; {
	case by == "metric" || by == plan.Metric:
		return metricAlias + " " + direction, nil
	case by == "time" || by == timeBucketAlias:
		if !hasBucket {
			return "", nil
		}
		return timeBucketAlias + " " + direction, nil
	case contains(plan.Dimensions, by):
		colSQL, err := b.qualified(by)
		if err != nil {
			return "", model.NewPipelineError("compile", model.CodeCompileGuardViolation, err)
		}
		return colSQL + " " + direction, nil
	}
	return "", model.NewPipelineError("compile", model.CodeCompileGuardViolation,
		fmt.Errorf("sort field %q is not part of the plan", plan.Sort.By))
}

// builder accumulates bound parameters and quotes identifiers.
type builder struct {
	dialect Dialect
	params  []interface{}
}

func (b *builder) bind(value interface{}) string {
	b.params = append(b.params, value)
	return b.dialect.Placeholder(len(b.params))
}

func (b *builder) qualified(identifier string) (string, error) {
	table, column, ok := kb.SplitQualified(identifier)
	if !ok {
		return "", fmt.Errorf("identifier %q is not qualified", identifier)
	}
	t, err := b.dialect.QuoteIdent(table)
	if err != nil {
		return "", err
	}
	col, err := b.dialect.QuoteIdent(column)
	if err != nil {
		return "", err
	}
	return t + "." + col, nil
}

func (b *builder) joinClause(jp model.JoinPath, joined map[string]bool) (string, error) {
	var newTable string
	switch {
	case joined[jp.LeftTable] && !joined[jp.RightTable]:
		newTable = jp.RightTable
	case joined[jp.RightTable] && !joined[jp.LeftTable]:
		newTable = jp.LeftTable
	default:
		return "", nil // both sides already joined
	}
	joined[newTable] = true

	tableSQL, err := b.dialect.QuoteIdent(newTable)
	if err != nil {
		return "", err
	}
	left, err := b.qualified(jp.LeftTable + "." + jp.LeftKey)
	if err != nil {
		return "", err
	}
	right, err := b.qualified(jp.RightTable + "." + jp.RightKey)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf(" JOIN %s ON %s = %s", tableSQL, left, right), nil
}

func appendUnique(list []string, item string) []string {
	for _, v := range list {
		if v == item {
			return list
		}
	}
	return append(list, item)
}

func contains(list []string, item string) bool {
	for _, v := range list {
		if v == item {
			return true
		}
	}
	return false
}
