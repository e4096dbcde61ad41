package research

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// QueryPlan is the validated output of query generation.
type QueryPlan struct {
	Rationale string
	Queries   []Query
}

type queryPlanPayload struct {
	Rationale string   `json:"rationale"`
	Queries   []string `json:"queries"`
}

// decodeQueryPlan parses and validates query generator output. Queries beyond
// limit are dropped; an empty list or an empty query is malformed.
func decodeQueryPlan(raw string, limit int) (QueryPlan, error) {
	var payload queryPlanPayload
	if err := json.Unmarshal([]byte(stripCodeFence(raw)), &payload); err != nil {
		return QueryPlan{}, fmt.Errorf("json parse error: %w", err)
	}
	if len(payload.Queries) == 0 {
		return QueryPlan{}, errors.New("empty queries list")
	}

	rationale := strings.TrimSpace(payload.Rationale)
	plan := QueryPlan{Rationale: rationale}
	for i, q := range payload.Queries {
		q = strings.TrimSpace(q)
		if q == "" {
			return QueryPlan{}, fmt.Errorf("query %d is empty", i)
		}
		if len(plan.Queries) < limit {
			plan.Queries = append(plan.Queries, Query{Text: q, Rationale: rationale})
		}
	}
	return plan, nil
}

// generateQueries turns the topic into at most count search queries.
func (e *Engine) generateQueries(ctx context.Context, topic string, count int, date string) (QueryPlan, error) {
	e.logger.Info("Generating search queries", "count", count)

	var plan QueryPlan
	err := e.generateStructured(ctx, "query_generation", e.models.QueryGenerator,
		queryWriterSystemPrompt, buildQueryWriterPrompt(topic, count, date),
		func(content string) error {
			p, err := decodeQueryPlan(content, count)
			if err != nil {
				return err
			}
			plan = p
			return nil
		})
	if err != nil {
		return QueryPlan{}, err
	}

	e.logger.Info("Generated queries", "queries", queryTexts(plan.Queries), "rationale", plan.Rationale)
	return plan, nil
}

func queryTexts(qs []Query) []string {
	out := make([]string, len(qs))
	for i, q := range qs {
		out[i] = q.Text
	}
	return out
}
