package research

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/mikeboe/deep-research/pkg/metrics"
)

const dateLayout = "January 2, 2006"

// State is the bookkeeping of one research run. Only the engine goroutine
// driving the run mutates it; search branches touch nothing but Sources.
type State struct {
	Topic          string
	Stage          Stage
	LoopCount      int
	MaxLoops       int
	PendingQueries []Query
	// Summaries is append-only, in query submission order across rounds.
	Summaries    []string
	Sources      *SourceRegistry
	Sufficient   *bool
	KnowledgeGap string
	Executed     []Query

	seen map[string]bool
}

func newState(topic string, maxLoops int, reg *SourceRegistry) *State {
	return &State{
		Topic:    topic,
		Stage:    StageInit,
		MaxLoops: maxLoops,
		Sources:  reg,
		seen:     make(map[string]bool),
	}
}

// dispatch replaces the pending queries for the next search round.
func (s *State) dispatch(queries []Query) {
	s.PendingQueries = queries
	for _, q := range queries {
		s.seen[normalizeQuery(q.Text)] = true
		s.Executed = append(s.Executed, q)
	}
}

// applySearchRound folds a joined round into the state. Sources were already
// registered by the branches.
func (s *State) applySearchRound(outcomes []SearchOutcome) {
	for _, o := range outcomes {
		if o.Summary != "" {
			s.Summaries = append(s.Summaries, o.Summary)
		}
	}
	s.LoopCount++
}

// applyReflection records the verdict and returns the next round of queries,
// or nil when the run should finalize. Follow-ups already executed are
// dropped and at most limit are kept.
func (s *State) applyReflection(r Reflection, limit int) []Query {
	sufficient := r.Sufficient
	s.Sufficient = &sufficient
	s.KnowledgeGap = r.KnowledgeGap

	if r.Sufficient || s.LoopCount >= s.MaxLoops {
		return nil
	}

	var next []Query
	picked := make(map[string]bool)
	for _, text := range r.FollowUpQueries {
		key := normalizeQuery(text)
		if s.seen[key] || picked[key] {
			continue
		}
		picked[key] = true
		next = append(next, Query{Text: text, Rationale: r.KnowledgeGap})
		if len(next) == limit {
			break
		}
	}
	return next
}

func (s *State) event() Event {
	ev := Event{
		Stage:        s.Stage,
		Loop:         s.LoopCount,
		Summaries:    len(s.Summaries),
		Sources:      s.Sources.Len(),
		Sufficient:   s.Sufficient,
		KnowledgeGap: s.KnowledgeGap,
	}
	if s.Stage == StageSearching {
		ev.Queries = append([]Query(nil), s.PendingQueries...)
	}
	return ev
}

func normalizeQuery(q string) string {
	return strings.ToLower(strings.Join(strings.Fields(q), " "))
}

// Engine runs research sessions. It holds no per-run state and can be reused
// for sequential or concurrent runs.
type Engine struct {
	cfg          Config
	models       Models
	searcher     Searcher
	logger       *slog.Logger
	clipper      Clipper
	onEvent      func(Event)
	now          func() time.Time
	retryBackoff time.Duration
	runTag       func() string
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

// WithEventHandler registers a callback invoked on every state transition.
func WithEventHandler(fn func(Event)) Option {
	return func(e *Engine) { e.onEvent = fn }
}

// WithClock overrides the clock used for the current date in prompts.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithRetryBackoff sets the pause before retrying malformed model output.
func WithRetryBackoff(d time.Duration) Option {
	return func(e *Engine) { e.retryBackoff = d }
}

// WithRunTag fixes the citation marker tag instead of minting one per run.
func WithRunTag(tag string) Option {
	return func(e *Engine) { e.runTag = func() string { return tag } }
}

// WithClipper sets how result content is bounded before summarization.
func WithClipper(c Clipper) Option {
	return func(e *Engine) {
		if c != nil {
			e.clipper = c
		}
	}
}

// NewEngine wires the stage models and search backend into an engine.
func NewEngine(cfg Config, models Models, searcher Searcher, opts ...Option) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if err := models.validate(); err != nil {
		return nil, err
	}
	if searcher == nil {
		return nil, fmt.Errorf("%w: searcher is required", ErrInvalidConfig)
	}

	e := &Engine{
		cfg:          cfg,
		models:       models,
		searcher:     searcher,
		logger:       slog.Default(),
		clipper:      RuneClipper(4000),
		now:          time.Now,
		retryBackoff: time.Second,
		runTag:       newRunTag,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

func newRunTag() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
}

// Run researches topic and returns a cited answer. Fatal conditions abort the
// run with an error and no partial answer.
func (e *Engine) Run(ctx context.Context, topic string, overrides Overrides) (*Result, error) {
	emit := e.onEvent
	if emit == nil {
		emit = func(Event) {}
	}
	return e.run(ctx, topic, overrides, emit)
}

// Stream runs a research session and yields one event per state transition.
// The last event has StageDone and carries the result. A fatal error is
// yielded as the final element. Stopping the iteration cancels the run.
func (e *Engine) Stream(ctx context.Context, topic string, overrides Overrides) iter.Seq2[Event, error] {
	return func(yield func(Event, error) bool) {
		ctx, cancel := context.WithCancel(ctx)
		defer cancel()

		stopped := false
		emit := func(ev Event) {
			if stopped {
				return
			}
			if e.onEvent != nil {
				e.onEvent(ev)
			}
			if !yield(ev, nil) {
				stopped = true
				cancel()
			}
		}

		if _, err := e.run(ctx, topic, overrides, emit); err != nil && !stopped {
			yield(Event{}, err)
		}
	}
}

func (e *Engine) run(ctx context.Context, topic string, overrides Overrides, emit func(Event)) (res *Result, err error) {
	cfg := overrides.Apply(e.cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	topic = strings.TrimSpace(topic)
	if topic == "" {
		return nil, ErrEmptyTopic
	}

	tag := e.runTag()
	run := *e
	run.logger = e.logger.With("run", tag)

	start := time.Now()
	defer func() {
		status := "completed"
		switch {
		case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
			status = "canceled"
		case err != nil:
			status = "failed"
		}
		metrics.RunsTotal.WithLabelValues(status).Inc()
		metrics.RunDuration.Observe(time.Since(start).Seconds())
		if err != nil {
			run.logger.Error("Research run failed", "error", err)
		}
	}()

	return run.loop(ctx, topic, cfg, tag, emit)
}

func (e *Engine) loop(ctx context.Context, topic string, cfg Config, tag string, emit func(Event)) (*Result, error) {
	date := e.now().Format(dateLayout)
	st := newState(topic, cfg.MaxResearchLoops, NewSourceRegistry(tag))

	e.logger.Info("Starting research loop",
		"topic", topic,
		"initial_queries", cfg.InitialQueryCount,
		"max_loops", cfg.MaxResearchLoops)
	emit(st.event())

	st.Stage = StageGeneratingQueries
	emit(st.event())
	plan, err := e.generateQueries(ctx, topic, cfg.InitialQueryCount, date)
	if err != nil {
		return nil, fmt.Errorf("query generation failed: %w", err)
	}
	st.dispatch(plan.Queries)

	for {
		st.Stage = StageSearching
		emit(st.event())

		outcomes, err := e.searchAll(ctx, st.PendingQueries, st.Sources, cfg, date)
		if err != nil {
			return nil, fmt.Errorf("search phase aborted: %w", err)
		}
		st.applySearchRound(outcomes)

		st.Stage = StageReflecting
		emit(st.event())

		verdict, err := e.reflect(ctx, st, date)
		if err != nil {
			return nil, fmt.Errorf("reflection failed: %w", err)
		}
		next := st.applyReflection(verdict, cfg.InitialQueryCount)
		if next == nil {
			e.logger.Info("Research loop finished",
				"loop", st.LoopCount,
				"sufficient", verdict.Sufficient,
				"reached_max", st.LoopCount >= st.MaxLoops)
			break
		}
		e.logger.Info("Continuing research", "loop", st.LoopCount, "follow_ups", queryTexts(next))
		st.dispatch(next)
	}

	st.Stage = StageFinalizing
	emit(st.event())

	answer, sources, err := e.synthesize(ctx, st, date)
	if err != nil {
		return nil, err
	}

	metrics.ResearchLoops.Observe(float64(st.LoopCount))
	res := &Result{
		Answer:    answer,
		Sources:   sources,
		Loops:     st.LoopCount,
		Queries:   append([]Query(nil), st.Executed...),
		Summaries: append([]string(nil), st.Summaries...),
	}

	st.Stage = StageDone
	done := st.event()
	done.Result = res
	emit(done)
	return res, nil
}
