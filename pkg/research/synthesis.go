package research

import (
	"context"
	"fmt"
	"strings"

	"github.com/tmc/langchaingo/llms"
)

// insufficientEvidenceAnswer is returned instead of calling the model when no
// query contributed anything.
func insufficientEvidenceAnswer(topic string) string {
	return fmt.Sprintf("Insufficient evidence: the research found no usable sources to answer %q.", topic)
}

// synthesize writes the final answer and keeps only the sources it cites.
func (e *Engine) synthesize(ctx context.Context, st *State, date string) (string, []Source, error) {
	e.logger.Info("Compiling final answer", "summaries", len(st.Summaries), "sources", st.Sources.Len())

	if len(st.Summaries) == 0 {
		e.logger.Warn("No evidence gathered, returning insufficient evidence answer")
		return insufficientEvidenceAnswer(st.Topic), []Source{}, nil
	}

	prompt := buildAnswerPrompt(st.Topic, st.Summaries, st.Sources.Sources(), st.Sources, date)
	raw, err := generateText(ctx, e.models.Answerer, answerSystemPrompt, prompt, llms.WithTemperature(0))
	if err != nil {
		return "", nil, fmt.Errorf("answer synthesis: %w", err)
	}
	if strings.TrimSpace(raw) == "" {
		return "", nil, ErrEmptyFinalAnswer
	}

	resolved, err := st.Sources.ResolveMarkers(strings.TrimSpace(raw))
	if err != nil {
		return "", nil, fmt.Errorf("answer synthesis: %w", err)
	}
	if resolved.Sources == nil {
		resolved.Sources = []Source{}
	}

	e.logger.Info("Final answer generated",
		"length", len(resolved.Text),
		"cited_sources", len(resolved.Sources),
		"gathered_sources", st.Sources.Len())
	return resolved.Text, resolved.Sources, nil
}
