package planner

import (
	"encoding/json"
	"fmt"
	"strings"
)

// promptTopK caps how many identifiers of each kind a prompt carries. The
// retrieval ranking puts question-relevant entries first, so a large catalog
// does not flood the context window.
const promptTopK = 24

// BuildPrompt renders the instruction text for one generation attempt. The
// knowledge base snapshot supplies the only identifiers the model may use,
// scoped to the question by evidence retrieval.
func BuildPrompt(pc PromptContext) string {
	evidence := pc.Index.RetrieveEvidence(pc.Question, promptTopK)

	var sb strings.Builder
	sb.WriteString(basePrompt)
	sb.WriteString("\n\nKnown metrics:\n")
	for _, m := range evidence.Metrics {
		sb.WriteString("  - " + m + "\n")
	}
	sb.WriteString("\nKnown columns (table.column):\n")
	for _, col := range evidence.Columns {
		sb.WriteString("  - " + col + "\n")
	}

	if pc.PriorPlan != nil {
		planJSON, _ := json.Marshal(pc.PriorPlan)
		errsJSON, _ := json.Marshal(pc.PriorErrors)
		sb.WriteString("\nYour previous plan was rejected. Fix every listed error and respond with a complete corrected plan.\n")
		sb.WriteString(fmt.Sprintf("Previous plan: %s\n", planJSON))
		sb.WriteString(fmt.Sprintf("Validation errors: %s\n", errsJSON))
	}

	sb.WriteString(fmt.Sprintf("\nUser question: %q\n\nJSON plan:", pc.Question))
	return sb.String()
}

const basePrompt = `Translate the user's question about power-grid data into a query plan. Respond ONLY with a single valid JSON object, no introductory text and no markdown fences. Never write SQL.

Plan format:
{
  "metric": string,                      // one of the known metrics
  "dimensions": [string],                // qualified "table.column" grouping identifiers
  "filters": [{"field": string, "operator": "="|"!="|">"|">="|"<"|"<="|"in"|"like"|"between", "value": any}],
  "time_range": {"start": "YYYY-MM-DD", "end": "YYYY-MM-DD", "granularity": "15m"|"hour"|"day"|"week"|"month"} | null,
  "tables_hint": [string] | null,
  "intent": "trend"|"aggregate"|"rank"|"compare"|"detail",
  "sort": {"by": "metric"|"time_bucket"|string, "order": "asc"|"desc"} | null,
  "limit": number | null
}

Every field and table identifier must come from the lists below. Filter values are data, not identifiers.`
