// Package cortex answers free-text questions about a tenant's properties.
//
// A question is looked up in the answer cache, classified, and declined with
// a clarification when the intent is not confident enough. Otherwise its
// entities are extracted, the Grounder fetches the facts and the
// AnswerGenerator writes the reply, which is cached.
package cortex

import (
	"context"
	"errors"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/hostpilotpro/captain-cortex/internal/cache"
	"github.com/hostpilotpro/captain-cortex/internal/metrics"
)

const declineMessage = `I'm not entirely sure how to help with that question. Could you please rephrase it to be more specific about:
- Which property/villa you're asking about
- What information you need (bills, tasks, bookings, finances)
- The time period or dates if relevant

Example questions:
- "Is Villa Samui's October electricity bill paid?"
- "How many pending tasks does Test Villa have?"
- "What's the net profit for September 2025?"
- "Is Test Villa booked next weekend?"`

const logQuestionLimit = 100

type EngineConfig struct {
	Grounder  Grounder
	Answerer  AnswerGenerator
	Cache     *cache.Cache[AnswerResult]
	Detector  *IntentDetector
	Extractor *EntityExtractor
	// Coalesce makes concurrent identical questions share one grounding and
	// answer computation.
	Coalesce bool
	Logger   *zap.Logger
}

type Engine struct {
	grounder  Grounder
	answerer  AnswerGenerator
	cache     *cache.Cache[AnswerResult]
	detector  *IntentDetector
	extractor *EntityExtractor
	coalesce  bool
	group     singleflight.Group
	logger    *zap.Logger
}

func NewEngine(cfg EngineConfig) (*Engine, error) {
	if cfg.Grounder == nil {
		return nil, errors.New("cortex: grounder is required")
	}
	if cfg.Answerer == nil {
		return nil, errors.New("cortex: answer generator is required")
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.Cache == nil {
		cfg.Cache = cache.New[AnswerResult](cache.NewMemoryStore[AnswerResult](), cache.Config{Logger: cfg.Logger})
	}
	if cfg.Detector == nil {
		cfg.Detector = defaultDetector
	}
	if cfg.Extractor == nil {
		cfg.Extractor = defaultExtractor
	}

	return &Engine{
		grounder:  cfg.Grounder,
		answerer:  cfg.Answerer,
		cache:     cfg.Cache,
		detector:  cfg.Detector,
		extractor: cfg.Extractor,
		coalesce:  cfg.Coalesce,
		logger:    cfg.Logger,
	}, nil
}

// ProcessQuestion answers req. Errors from the Grounder or AnswerGenerator
// are logged and returned unchanged; nothing is retried.
func (e *Engine) ProcessQuestion(ctx context.Context, req Request) (*Response, error) {
	start := time.Now()
	log := e.logger.With(
		zap.String("question", truncate(req.Question, logQuestionLimit)),
		zap.String("organization_id", req.OrganizationID),
		zap.String("user_id", req.UserID),
	)

	key := cache.GenerateKey(req.Question, req.OrganizationID)
	if cached, ok := e.cache.Get(key); ok {
		metrics.CacheHits.WithLabelValues("answer").Inc()
		metrics.QueryTotal.WithLabelValues("cached").Inc()
		log.Info("Cortex cache hit", zap.Int64("latency_ms", elapsedMillis(start)))

		cached.Cached = true
		cached.Sources = cloneSources(cached.Sources)
		return e.respond(req, cached), nil
	}
	metrics.CacheMisses.WithLabelValues("answer").Inc()

	intent := e.detector.Detect(req.Question)
	metrics.IntentConfidence.WithLabelValues(string(intent.Type)).Observe(intent.Confidence)

	if !e.detector.IsActionable(intent) {
		log.Warn("Low confidence intent",
			zap.String("intent", string(intent.Type)),
			zap.Float64("confidence", intent.Confidence),
		)
		metrics.QueryTotal.WithLabelValues("declined").Inc()

		return e.respond(req, AnswerResult{
			Answer:     declineMessage,
			Sources:    []Source{},
			Latency:    elapsedMillis(start),
			Cached:     false,
			Intent:     intent.Type,
			Confidence: intent.Confidence,
		}), nil
	}

	result, err := e.answer(ctx, key, req, intent, log)
	if err != nil {
		log.Error("Cortex error",
			zap.String("intent", string(intent.Type)),
			zap.Int64("latency_ms", elapsedMillis(start)),
			zap.Error(err),
		)
		metrics.QueryTotal.WithLabelValues("error").Inc()
		return nil, err
	}

	result.Latency = elapsedMillis(start)
	result.Cached = false

	routes := make([]string, 0, len(result.Sources))
	for _, s := range result.Sources {
		routes = append(routes, s.Route)
	}
	log.Info("Cortex complete",
		zap.String("intent", string(intent.Type)),
		zap.Strings("routes", routes),
		zap.Int64("latency_ms", result.Latency),
		zap.Bool("cache_hit", false),
	)
	metrics.QueryTotal.WithLabelValues("answered").Inc()
	metrics.QueryDuration.WithLabelValues(string(intent.Type)).Observe(time.Since(start).Seconds())

	return e.respond(req, result), nil
}

// answer grounds and answers the question and caches the result. With
// coalescing enabled, concurrent callers for the same key share the first
// caller's computation and its context; a waiter whose own context ends
// stops waiting without cancelling the shared run.
func (e *Engine) answer(ctx context.Context, key string, req Request, intent DetectedIntent, log *zap.Logger) (AnswerResult, error) {
	run := func() (AnswerResult, error) {
		entities := e.extractor.Extract(req.Question)
		log.Info("Cortex processing",
			zap.String("intent", string(intent.Type)),
			zap.Float64("confidence", intent.Confidence),
			zap.Any("entities", entities),
		)

		grounded, err := e.grounder.GroundQuestion(ctx, intent, entities, req.OrganizationID)
		if err != nil {
			return AnswerResult{}, err
		}

		generated, err := e.answerer.GenerateAnswer(ctx, req.Question, intent, grounded)
		if err != nil {
			return AnswerResult{}, err
		}

		result := *generated
		if result.Sources == nil {
			result.Sources = []Source{}
		}
		if result.Intent == "" {
			result.Intent = intent.Type
			result.Confidence = intent.Confidence
		}

		stored := result
		stored.Sources = cloneSources(result.Sources)
		e.cache.Set(key, stored)
		return result, nil
	}

	if !e.coalesce {
		return run()
	}

	ch := e.group.DoChan(key, func() (interface{}, error) {
		return run()
	})

	var res singleflight.Result
	select {
	case <-ctx.Done():
		return AnswerResult{}, ctx.Err()
	case res = <-ch:
	}
	if res.Shared {
		metrics.CoalescedQueries.Inc()
	}
	if res.Err != nil {
		return AnswerResult{}, res.Err
	}

	result := res.Val.(AnswerResult)
	result.Sources = cloneSources(result.Sources)
	return result, nil
}

// cloneSources deep-copies sources so callers never share slices or param
// maps with the cache or with other waiters.
func cloneSources(sources []Source) []Source {
	if sources == nil {
		return nil
	}
	out := make([]Source, len(sources))
	for i, src := range sources {
		out[i] = src
		if src.Params != nil {
			params := make(map[string]any, len(src.Params))
			for k, v := range src.Params {
				params[k] = v
			}
			out[i].Params = params
		}
	}
	return out
}

func (e *Engine) respond(req Request, result AnswerResult) *Response {
	return &Response{
		AnswerResult:   result,
		Question:       req.Question,
		OrganizationID: req.OrganizationID,
	}
}

// InvalidateCache drops cached answers whose key contains pattern, or all of
// them when pattern is empty.
func (e *Engine) InvalidateCache(pattern string) int {
	removed := e.cache.Invalidate(pattern)
	metrics.CacheInvalidations.Add(float64(removed))
	return removed
}

// InvalidateOrganization drops every cached answer of one tenant.
func (e *Engine) InvalidateOrganization(organizationID string) int {
	return e.InvalidateCache(cache.OrganizationPattern(organizationID))
}

func (e *Engine) CacheStats() cache.Stats {
	return e.cache.Stats()
}

func truncate(s string, limit int) string {
	if utf8.RuneCountInString(s) <= limit {
		return s
	}
	return string([]rune(s)[:limit])
}
