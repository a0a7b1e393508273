// Package nlquery turns a free-form text query into the ParsedQuery output
// contract of §4.6. The heuristics below (regex triggers, entity spans)
// are implementation-defined, as the specification allows; only the
// output shape is canonical.
package nlquery

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/blackcore/queryengine/pkg/queryengine/model"
)

// intentTrigger pairs a regex with the intent it signals, tried in order
// so the first match wins — the tie-break the specification leaves open
// for overlapping triggers (e.g. "find" vs "show").
type intentTrigger struct {
	pattern *regexp.Regexp
	intent  model.Intent
}

var intentTriggers = []intentTrigger{
	{regexp.MustCompile(`(?i)\bcompare\b`), model.IntentCompareEntities},
	{regexp.MustCompile(`(?i)\b(explain|describe|tell me about)\b`), model.IntentExplainEntity},
	{regexp.MustCompile(`(?i)\b(related to|connected to|relationship)\b`), model.IntentFindRelationship},
	{regexp.MustCompile(`(?i)\b(count|total|sum|average|how many)\b`), model.IntentAggregateData},
	{regexp.MustCompile(`(?i)\bsort(ed)? by\b`), model.IntentSortResults},
	{regexp.MustCompile(`(?i)\bwhere\b`), model.IntentFilterResults},
	{regexp.MustCompile(`(?i)\b(find|show|search|list|get)\b`), model.IntentSearchEntity},
}

var (
	emailPattern = regexp.MustCompile(`[\w.+-]+@[\w-]+\.[\w.-]+`)
	datePattern  = regexp.MustCompile(`\b\d{4}-\d{2}-\d{2}\b`)
	limitPattern = regexp.MustCompile(`(?i)\b(?:top|first|limit)\s+(\d+)\b`)
	quotedEntity = regexp.MustCompile(`"([^"]+)"`)
)

// Parse produces a ParsedQuery from free text; context is accepted for
// API symmetry with the orchestrator's execute_natural contract and
// currently unused by these heuristics.
func Parse(text string, context map[string]interface{}) model.ParsedQuery {
	intent := classifyIntent(text)
	entities := extractEntities(text)
	limit := extractLimit(text)

	confidence := 0.5
	if intent != model.IntentUnknown {
		confidence += 0.2
	}
	if len(entities) > 0 {
		confidence += 0.1 * float64(len(entities))
		if confidence > 1 {
			confidence = 1
		}
	}

	return model.ParsedQuery{
		Intent:       intent,
		Entities:     entities,
		Filters:      map[string]interface{}{},
		SortCriteria: extractSortCriteria(text),
		Limit:        limit,
		Confidence:   confidence,
	}
}

func classifyIntent(text string) model.Intent {
	for _, trig := range intentTriggers {
		if trig.pattern.MatchString(text) {
			return trig.intent
		}
	}
	return model.IntentUnknown
}

func extractEntities(text string) []model.Entity {
	var entities []model.Entity

	for _, m := range emailPattern.FindAllStringIndex(text, -1) {
		entities = append(entities, model.Entity{
			Text: text[m[0]:m[1]], Type: "email", Confidence: 0.95, SpanStart: m[0], SpanEnd: m[1],
		})
	}
	for _, m := range datePattern.FindAllStringIndex(text, -1) {
		entities = append(entities, model.Entity{
			Text: text[m[0]:m[1]], Type: "date", Confidence: 0.9, SpanStart: m[0], SpanEnd: m[1],
		})
	}
	for _, m := range quotedEntity.FindAllStringSubmatchIndex(text, -1) {
		entities = append(entities, model.Entity{
			Text: text[m[2]:m[3]], Type: "literal", Confidence: 0.8, SpanStart: m[2], SpanEnd: m[3],
		})
	}

	return entities
}

func extractLimit(text string) int {
	m := limitPattern.FindStringSubmatch(text)
	if m == nil {
		return 0
	}
	n, err := strconv.Atoi(m[1])
	if err != nil {
		return 0
	}
	return n
}

var sortPattern = regexp.MustCompile(`(?i)sort(?:ed)? by\s+([a-zA-Z0-9_.]+)(\s+desc(?:ending)?)?`)

func extractSortCriteria(text string) []model.SortField {
	m := sortPattern.FindStringSubmatch(text)
	if m == nil {
		return nil
	}
	order := model.Asc
	if strings.TrimSpace(m[2]) != "" {
		order = model.Desc
	}
	return []model.SortField{{Field: m[1], Order: order}}
}
