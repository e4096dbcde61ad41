package research

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// Reflection is the validated verdict of the reflection step.
type Reflection struct {
	Sufficient      bool
	KnowledgeGap    string
	FollowUpQueries []string
}

type reflectionPayload struct {
	IsSufficient    *bool    `json:"is_sufficient"`
	KnowledgeGap    string   `json:"knowledge_gap"`
	FollowUpQueries []string `json:"follow_up_queries"`
}

func decodeReflection(raw string) (Reflection, error) {
	var payload reflectionPayload
	if err := json.Unmarshal([]byte(stripCodeFence(raw)), &payload); err != nil {
		return Reflection{}, fmt.Errorf("json parse error: %w", err)
	}
	if payload.IsSufficient == nil {
		return Reflection{}, errors.New("is_sufficient is missing")
	}

	r := Reflection{
		Sufficient:   *payload.IsSufficient,
		KnowledgeGap: strings.TrimSpace(payload.KnowledgeGap),
	}
	for i, q := range payload.FollowUpQueries {
		q = strings.TrimSpace(q)
		if q == "" {
			return Reflection{}, fmt.Errorf("follow-up query %d is empty", i)
		}
		r.FollowUpQueries = append(r.FollowUpQueries, q)
	}
	return r, nil
}

// reflect judges every summary gathered so far.
func (e *Engine) reflect(ctx context.Context, st *State, date string) (Reflection, error) {
	e.logger.Info("Starting reflection phase", "loop", st.LoopCount, "summaries", len(st.Summaries))

	var verdict Reflection
	err := e.generateStructured(ctx, "reflection", e.models.Reflector,
		reflectionSystemPrompt, buildReflectionPrompt(st.Topic, st.Summaries, st.LoopCount, st.MaxLoops, date),
		func(content string) error {
			r, err := decodeReflection(content)
			if err != nil {
				return err
			}
			verdict = r
			return nil
		})
	if err != nil {
		return Reflection{}, err
	}

	e.logger.Info("Reflection complete",
		"sufficient", verdict.Sufficient,
		"knowledge_gap", verdict.KnowledgeGap,
		"follow_ups", len(verdict.FollowUpQueries))
	return verdict, nil
}
