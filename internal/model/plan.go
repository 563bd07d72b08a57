package model

// QueryPlan is the restricted DSL the plan generator must emit instead of
// raw SQL. Plans are immutable once produced: a repair attempt yields a new
// plan, never a mutation of the prior one.
type QueryPlan struct {
	Metric     string     `json:"metric"`
	Dimensions []string   `json:"dimensions"` // qualified "table.column" identifiers
	Filters    []Filter   `json:"filters"`
	TimeRange  *TimeRange `json:"time_range,omitempty"`
	TablesHint []string   `json:"tables_hint,omitempty"`
	Intent     string     `json:"intent,omitempty"` // "trend", "aggregate", "rank", "compare", "detail"
	Sort       *SortSpec  `json:"sort,omitempty"`
	Limit      *int       `json:"limit,omitempty"`
}

// Clone returns a deep copy. Attempt trails and audit records hold plans
// long after generation, so sharing backing arrays with a later repair is
// never safe.
func (p QueryPlan) Clone() QueryPlan {
	out := p
	if p.Dimensions != nil {
		out.Dimensions = append([]string(nil), p.Dimensions...)
	}
	if p.Filters != nil {
		out.Filters = append([]Filter(nil), p.Filters...)
	}
	if p.TablesHint != nil {
		out.TablesHint = append([]string(nil), p.TablesHint...)
	}
	if p.TimeRange != nil {
		tr := *p.TimeRange
		out.TimeRange = &tr
	}
	if p.Sort != nil {
		s := *p.Sort
		out.Sort = &s
	}
	if p.Limit != nil {
		l := *p.Limit
		out.Limit = &l
	}
	return out
}

type Filter struct {
	Field    string      `json:"field"` // qualified "table.column"
	Operator string      `json:"operator"`
	Value    interface{} `json:"value"`
}

type TimeRange struct {
	Start       string `json:"start"`
	End         string `json:"end"`
	Granularity string `json:"granularity,omitempty"` // "15m", "hour", "day", "week", "month"
}

type SortSpec struct {
	By    string `json:"by"`    // "metric", "time_bucket" or a qualified column
	Order string `json:"order"` // "asc" | "desc"
}

// Granularities lists every bucket size a plan may request. Template rules
// may narrow this further per intent.
var Granularities = []string{"15m", "hour", "day", "week", "month"}

// FilterOperators is the closed set of comparison operators a plan filter
// may use.
var FilterOperators = []string{"=", "!=", ">", ">=", "<", "<=", "in", "like", "between"}
