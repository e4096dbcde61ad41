package research

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/tmc/langchaingo/llms"

	"github.com/mikeboe/deep-research/pkg/metrics"
)

// structuredAttempts is the first call plus one retry with identical input.
const structuredAttempts = 2

// generateText makes a single model call and returns the first choice.
func generateText(ctx context.Context, model llms.Model, system, user string, opts ...llms.CallOption) (string, error) {
	resp, err := model.GenerateContent(ctx, []llms.MessageContent{
		llms.TextParts(llms.ChatMessageTypeSystem, system),
		llms.TextParts(llms.ChatMessageTypeHuman, user),
	}, opts...)
	if err != nil {
		return "", fmt.Errorf("llm generation failed: %w", err)
	}
	if resp == nil || len(resp.Choices) == 0 {
		return "", errors.New("llm returned no choices")
	}
	return resp.Choices[0].Content, nil
}

// generateStructured asks for JSON and hands the content to decode. A failed
// decode or provider error is retried once with the same prompts; context
// errors are returned immediately.
func (e *Engine) generateStructured(ctx context.Context, stage string, model llms.Model, system, user string, decode func(string) error) error {
	var (
		lastErr   error
		lastRaw   string
		malformed bool
	)

	for attempt := 1; attempt <= structuredAttempts; attempt++ {
		if attempt > 1 {
			metrics.ModelRetries.WithLabelValues(stage).Inc()
			e.logger.Warn("Retrying model generation", "stage", stage, "attempt", attempt, "last_error", lastErr)
			if err := sleepCtx(ctx, e.retryBackoff); err != nil {
				return err
			}
		}

		content, err := generateText(ctx, model, system, user, llms.WithJSONMode())
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return ctxErr
			}
			lastErr, lastRaw, malformed = err, "", false
			continue
		}

		if err := decode(content); err != nil {
			lastErr, lastRaw, malformed = err, content, true
			continue
		}
		return nil
	}

	if !malformed {
		return fmt.Errorf("%s failed after %d attempts: %w", stage, structuredAttempts, lastErr)
	}
	return &MalformedOutputError{Stage: stage, Raw: lastRaw, Err: lastErr}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// stripCodeFence removes a surrounding ```json fence some models add even in JSON mode.
func stripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if nl := strings.IndexByte(s, '\n'); nl >= 0 {
		s = s[nl+1:]
	} else {
		s = strings.TrimPrefix(s, "json")
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
