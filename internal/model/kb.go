package model

// SchemaFact describes one column of the warehouse. Aliases carry the
// natural-language names the plan generator may have seen for the column.
type SchemaFact struct {
	Table    string   `json:"table"`
	Column   string   `json:"column"`
	Type     string   `json:"type"`
	Nullable bool     `json:"nullable"`
	Aliases  []string `json:"aliases,omitempty"`
	Unit     string   `json:"unit,omitempty"`
}

// JoinPath is one sanctioned equi-join edge between two tables. The compiler
// never invents a join that is not in this catalog.
type JoinPath struct {
	LeftTable  string `json:"left_table"`
	RightTable string `json:"right_table"`
	LeftKey    string `json:"left_key"`
	RightKey   string `json:"right_key"`
}

// MetricDef defines a named metric. Formula references columns through
// {table.column} placeholders only; any other identifier is rejected at
// catalog load.
type MetricDef struct {
	Name           string   `json:"name"`
	Formula        string   `json:"formula"`
	Unit           string   `json:"unit"`
	RequiredFields []string `json:"required_fields"` // qualified "table.column"
}

// TemplateRule constrains what a plan with a given intent may contain.
// Strict promotes template violations from advisory to fatal.
type TemplateRule struct {
	Intent               string   `json:"intent"`
	AllowedDimensions    []string `json:"allowed_dimensions"`
	AllowedFilters       []string `json:"allowed_filters"`
	AllowedGranularities []string `json:"allowed_granularities,omitempty"`
	RequiredClauses      []string `json:"required_clauses,omitempty"` // "time_range", "sort", "limit"
	Strict               bool     `json:"strict"`
}
