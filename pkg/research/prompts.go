package research

import (
	"fmt"
	"strings"
)

const queryWriterSystemPrompt = `You are a research planner writing web search queries for an automated research tool.

Rules:
- Prefer a single query; add more only when the question has several distinct aspects.
- Never produce more than the requested number of queries.
- Each query must target one specific aspect and be self-contained.
- Do not produce near-duplicate queries.
- Favor queries that surface the most recent information.

Respond with a JSON object only, no surrounding text:
{"rationale": "<why these queries cover the topic>", "queries": ["<query>", ...]}`

const summarizerSystemPrompt = `You are a research assistant condensing one search result for a specific query.

Rules:
- Use only facts stated in the provided content. Never add outside knowledge.
- If the content does not help answer the query, mark it irrelevant.
- Keep the summary short and factual.

Respond with a JSON object only, no surrounding text:
{"relevant": true|false, "summary": "<summary, empty when irrelevant>"}`

const reflectionSystemPrompt = `You are a research reviewer judging whether the gathered summaries answer the research topic.

Rules:
- If the summaries are sufficient, set is_sufficient to true and return no follow-up queries.
- Otherwise describe the knowledge gap and write follow-up queries that close it.
- Follow-up queries must be self-contained web search queries.

Respond with a JSON object only, no surrounding text:
{"is_sufficient": true|false, "knowledge_gap": "<missing information or empty>", "follow_up_queries": ["<query>", ...]}`

const answerSystemPrompt = `You write the final answer of a multi-step research process.

Rules:
- Answer the research topic using only the provided summaries.
- Summaries contain citation markers such as [[cite:tag:S1]]. Copy the marker of every source you rely on verbatim, directly after the sentence it supports.
- Never invent markers and never alter their spelling.
- Do not mention that you are the final step of a process.`

func buildQueryWriterPrompt(topic string, count int, date string) string {
	return fmt.Sprintf(`Current date: %s
Maximum number of queries: %d

Research topic:
%s`, date, count, topic)
}

func buildSummarizerPrompt(query string, result SearchResult, content, date string) string {
	return fmt.Sprintf(`Current date: %s

Query: %s

Result title: %s
Result URL: %s

Content:
%s`, date, query, result.Title, result.URL, content)
}

func buildReflectionPrompt(topic string, summaries []string, loop, maxLoops int, date string) string {
	joined := strings.Join(summaries, "\n\n---\n\n")
	if joined == "" {
		joined = "(no usable summaries were gathered)"
	}
	return fmt.Sprintf(`Current date: %s
Research loop: %d of %d

Research topic:
%s

Summaries:
%s`, date, loop, maxLoops, topic, joined)
}

func buildAnswerPrompt(topic string, summaries []string, sources []Source, reg *SourceRegistry, date string) string {
	var list strings.Builder
	for _, src := range sources {
		fmt.Fprintf(&list, "- %s %s (%s)\n", reg.Marker(src), src.Title, src.URL)
	}
	return fmt.Sprintf(`Current date: %s

Research topic:
%s

Sources:
%s
Summaries:
%s`, date, topic, list.String(), strings.Join(summaries, "\n---\n\n"))
}
