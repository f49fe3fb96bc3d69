// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Ballast Contributors

// Package handler is the façade the numerical engines call when a
// protected operation fails. It classifies the failure, picks a
// fallback (cached result, playbook default, rule-based stance, or
// simplified variant), and guarantees the caller always gets a
// well-formed degraded result. Failures never propagate past it.
package handler

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/ballast-dev/ballast/internal/breaker"
	"github.com/ballast-dev/ballast/internal/classify"
	"github.com/ballast-dev/ballast/internal/fallback"
	"github.com/ballast-dev/ballast/internal/health"
	"github.com/ballast-dev/ballast/internal/metrics"
	ballasterr "github.com/ballast-dev/ballast/pkg/errors"
	"github.com/ballast-dev/ballast/pkg/result"
)

// Protected operation kinds. They name the façade entry points and
// prefix fallback cache keys.
const (
	KindPrediction     = "prediction"
	KindRecommendation = "recommendation"
	KindRisk           = "risk"
	KindQuery          = "query"
	KindSentiment      = "sentiment"
)

// Confidence attached to rule-based and simplified fallbacks. Cached
// results keep the confidence they were computed with; fixed defaults
// take theirs from the playbook.
const (
	rulesConfidence      = 0.45
	simplifiedConfidence = 0.40
)

// Key builds the fallback cache key for a kind and subject. Engines use
// it when caching known-good results so the façade finds them later.
func Key(kind, subject string) string {
	return kind + ":" + subject
}

// Handler routes handled failures to degraded results.
type Handler struct {
	cache    *fallback.Cache
	breakers *breaker.Registry
	window   *health.Window
	stats    *Stats
	playbook *Playbook
	service  string
	logger   *slog.Logger
	nowFunc  func() time.Time
}

// New wires a Handler. cache, stats, and playbook get defaults when
// nil; breakers and window may stay nil, which skips breaker-state
// lookups and error-window feeding. service is the circuit breaker
// name consulted for dependency failures.
func New(cache *fallback.Cache, breakers *breaker.Registry, window *health.Window, stats *Stats, playbook *Playbook, service string, logger *slog.Logger) *Handler {
	if cache == nil {
		cache = fallback.New()
	}
	if stats == nil {
		stats = NewStats()
	}
	if playbook == nil {
		playbook = DefaultPlaybook()
	}
	if service == "" {
		service = "model_service"
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		cache:    cache,
		breakers: breakers,
		window:   window,
		stats:    stats,
		playbook: playbook,
		service:  service,
		logger:   logger,
		nowFunc:  time.Now,
	}
}

// CacheFallbackData stores a known-good payload for later degraded
// serving. Engines call it opportunistically after every success.
func (h *Handler) CacheFallbackData(key string, payload any, ttl time.Duration) {
	h.cache.Put(key, payload, ttl)
}

// Sweep evicts expired fallback entries and returns how many were
// removed.
func (h *Handler) Sweep() int {
	return h.cache.Sweep()
}

// StatsReport combines façade counters with circuit breaker snapshots
// for external reporting.
type StatsReport struct {
	Handler  StatsSnapshot            `json:"handler"`
	Breakers map[string]breaker.Stats `json:"breakers"`
}

// ErrorStats returns the aggregate counters and per-service breaker
// snapshots.
func (h *Handler) ErrorStats() StatsReport {
	report := StatsReport{Handler: h.stats.Snapshot()}
	if h.breakers != nil {
		report.Breakers = h.breakers.Snapshots()
	}
	return report
}

// SetNowFunc overrides the time source (for testing). Call it before
// the handler starts serving.
func (h *Handler) SetNowFunc(fn func() time.Time) { h.nowFunc = fn }

// ----------------------------------------------------------------------------
// Entry points
// ----------------------------------------------------------------------------

// HandlePredictionError converts a failed prediction into a degraded
// result.
func (h *Handler) HandlePredictionError(err error, symbol string, ectx classify.Context) (res result.Prediction) {
	info := h.classifyAndLog(err, ectx)
	defer func() {
		if r := recover(); r != nil {
			h.logger.Error("fallback production panicked", "kind", KindPrediction, "panic", r)
			res = result.MinimalPrediction(symbol, string(info.Category), h.nowFunc())
		}
		h.settle(&info, KindPrediction, res.FallbackSource)
	}()

	now := h.nowFunc()
	switch info.Category {
	case ballasterr.CategoryDataUnavailable:
		if p, ok := h.cachedPrediction(info, symbol, now); ok {
			return p
		}
		return h.defaultPrediction(info, symbol, now, h.playbook.Prediction.Message)
	case ballasterr.CategoryDependencyFailure:
		if p, ok := h.cachedPrediction(info, symbol, now); ok {
			return p
		}
		return result.Prediction{
			Meta:       result.NewMeta(result.SourceRules, string(info.Category), h.ruleMessage(), now),
			Symbol:     symbol,
			Direction:  result.DirectionFlat,
			Confidence: rulesConfidence,
		}
	case ballasterr.CategoryModelFailure, ballasterr.CategoryPerformance:
		return result.Prediction{
			Meta:       result.NewMeta(result.SourceSimplified, string(info.Category), simplifiedMessage(info), now),
			Symbol:     symbol,
			Direction:  result.DirectionFlat,
			Confidence: simplifiedConfidence,
		}
	default:
		return h.defaultPrediction(info, symbol, now, degradedMessage(info))
	}
}

// HandleRecommendationError converts a failed recommendation into a
// degraded result.
func (h *Handler) HandleRecommendationError(err error, symbol string, ectx classify.Context) (res result.Recommendation) {
	info := h.classifyAndLog(err, ectx)
	defer func() {
		if r := recover(); r != nil {
			h.logger.Error("fallback production panicked", "kind", KindRecommendation, "panic", r)
			res = result.MinimalRecommendation(symbol, string(info.Category), h.nowFunc())
		}
		h.settle(&info, KindRecommendation, res.FallbackSource)
	}()

	now := h.nowFunc()
	switch info.Category {
	case ballasterr.CategoryDataUnavailable:
		if r, ok := h.cachedRecommendation(info, symbol, now); ok {
			return r
		}
		return h.defaultRecommendation(info, symbol, now, h.playbook.Recommendation.Message)
	case ballasterr.CategoryDependencyFailure:
		if r, ok := h.cachedRecommendation(info, symbol, now); ok {
			return r
		}
		return result.Recommendation{
			Meta:       result.NewMeta(result.SourceRules, string(info.Category), h.ruleMessage(), now),
			Symbol:     symbol,
			Action:     result.ActionHold,
			Confidence: rulesConfidence,
			Reasons: []string{
				"model service unavailable",
				"holding is the minimum-risk action without fresh analysis",
			},
		}
	case ballasterr.CategoryModelFailure, ballasterr.CategoryPerformance:
		return result.Recommendation{
			Meta:       result.NewMeta(result.SourceSimplified, string(info.Category), simplifiedMessage(info), now),
			Symbol:     symbol,
			Action:     result.ActionHold,
			Confidence: simplifiedConfidence,
			Reasons:    []string{"simplified evaluation without model explanation"},
		}
	default:
		return h.defaultRecommendation(info, symbol, now, degradedMessage(info))
	}
}

// HandleRiskError converts a failed risk assessment into a degraded
// result.
func (h *Handler) HandleRiskError(err error, symbol string, ectx classify.Context) (res result.Risk) {
	info := h.classifyAndLog(err, ectx)
	defer func() {
		if r := recover(); r != nil {
			h.logger.Error("fallback production panicked", "kind", KindRisk, "panic", r)
			res = result.MinimalRisk(symbol, string(info.Category), h.nowFunc())
		}
		h.settle(&info, KindRisk, res.FallbackSource)
	}()

	now := h.nowFunc()
	switch info.Category {
	case ballasterr.CategoryDataUnavailable:
		if r, ok := h.cachedRisk(info, symbol, now); ok {
			return r
		}
		return h.defaultRisk(info, symbol, now, h.playbook.Risk.Message)
	case ballasterr.CategoryDependencyFailure:
		if r, ok := h.cachedRisk(info, symbol, now); ok {
			return r
		}
		// Without data, the conservative rule is to assume moderate risk
		// rather than none.
		return result.Risk{
			Meta:       result.NewMeta(result.SourceRules, string(info.Category), h.ruleMessage(), now),
			Symbol:     symbol,
			RiskLevel:  result.RiskModerate,
			Confidence: rulesConfidence,
		}
	case ballasterr.CategoryModelFailure, ballasterr.CategoryPerformance:
		return result.Risk{
			Meta:       result.NewMeta(result.SourceSimplified, string(info.Category), simplifiedMessage(info), now),
			Symbol:     symbol,
			RiskLevel:  result.RiskModerate,
			Confidence: simplifiedConfidence,
		}
	default:
		return h.defaultRisk(info, symbol, now, degradedMessage(info))
	}
}

// HandleQueryError converts a failed natural-language query into a
// degraded answer. The query text itself is the cache subject.
func (h *Handler) HandleQueryError(err error, query string, ectx classify.Context) (res result.Query) {
	info := h.classifyAndLog(err, ectx)
	defer func() {
		if r := recover(); r != nil {
			h.logger.Error("fallback production panicked", "kind", KindQuery, "panic", r)
			res = result.MinimalQuery(query, string(info.Category), h.nowFunc())
		}
		h.settle(&info, KindQuery, res.FallbackSource)
	}()

	now := h.nowFunc()
	switch info.Category {
	case ballasterr.CategoryDataUnavailable:
		if q, ok := h.cachedQuery(info, query, now); ok {
			return q
		}
		return h.defaultQuery(info, query, now, h.playbook.Query.Message)
	case ballasterr.CategoryDependencyFailure:
		if q, ok := h.cachedQuery(info, query, now); ok {
			return q
		}
		return result.Query{
			Meta:       result.NewMeta(result.SourceRules, string(info.Category), h.ruleMessage(), now),
			Query:      query,
			Answer:     "The analysis model is unreachable right now. Numerical results remain valid; please retry shortly.",
			Confidence: rulesConfidence,
		}
	case ballasterr.CategoryModelFailure, ballasterr.CategoryPerformance:
		return result.Query{
			Meta:       result.NewMeta(result.SourceSimplified, string(info.Category), simplifiedMessage(info), now),
			Query:      query,
			Answer:     fmt.Sprintf("Full analysis for %q is unavailable; only precomputed figures can be served at the moment.", query),
			Confidence: simplifiedConfidence,
		}
	default:
		return h.defaultQuery(info, query, now, degradedMessage(info))
	}
}

// HandleSentimentError converts a failed sentiment analysis into a
// degraded result.
func (h *Handler) HandleSentimentError(err error, symbol string, ectx classify.Context) (res result.Sentiment) {
	info := h.classifyAndLog(err, ectx)
	defer func() {
		if r := recover(); r != nil {
			h.logger.Error("fallback production panicked", "kind", KindSentiment, "panic", r)
			res = result.MinimalSentiment(symbol, string(info.Category), h.nowFunc())
		}
		h.settle(&info, KindSentiment, res.FallbackSource)
	}()

	now := h.nowFunc()
	switch info.Category {
	case ballasterr.CategoryDataUnavailable:
		if s, ok := h.cachedSentiment(info, symbol, now); ok {
			return s
		}
		return h.defaultSentiment(info, symbol, now, h.playbook.Sentiment.Message)
	case ballasterr.CategoryDependencyFailure:
		if s, ok := h.cachedSentiment(info, symbol, now); ok {
			return s
		}
		return result.Sentiment{
			Meta:       result.NewMeta(result.SourceRules, string(info.Category), h.ruleMessage(), now),
			Symbol:     symbol,
			Label:      "neutral",
			Confidence: rulesConfidence,
		}
	case ballasterr.CategoryModelFailure, ballasterr.CategoryPerformance:
		return result.Sentiment{
			Meta:       result.NewMeta(result.SourceSimplified, string(info.Category), simplifiedMessage(info), now),
			Symbol:     symbol,
			Label:      "neutral",
			Confidence: simplifiedConfidence,
		}
	default:
		return h.defaultSentiment(info, symbol, now, degradedMessage(info))
	}
}

// ----------------------------------------------------------------------------
// Shared plumbing
// ----------------------------------------------------------------------------

// classifyAndLog is step one for every entry point: normalize the
// failure, log it structurally, count it, and feed the error window.
func (h *Handler) classifyAndLog(err error, ectx classify.Context) classify.Info {
	info := classify.Classify(err, ectx)

	component := info.Context.Component
	if component == "" {
		component = "unknown"
	}

	args := []any{
		"category", string(info.Category),
		"severity", string(info.Severity),
		"component", component,
		"operation", info.Context.Operation,
	}
	if info.Context.Symbol != "" {
		args = append(args, "symbol", info.Context.Symbol)
	}
	if info.Context.RequestID != "" {
		args = append(args, "request_id", info.Context.RequestID)
	}
	if info.Err != nil {
		args = append(args, "error", info.Err)
	}

	if info.Severity.AtLeast(ballasterr.SeverityHigh) {
		h.logger.Error("handled failure", args...)
	} else {
		h.logger.Warn("handled failure", args...)
	}

	metrics.ErrorsTotal.WithLabelValues(string(info.Category), component).Inc()
	if h.window != nil {
		h.window.RecordFailure()
	}
	return info
}

// settle runs exactly once per handled failure, after the degraded
// result exists.
func (h *Handler) settle(info *classify.Info, kind string, source result.Source) {
	info.FallbackUsed = true
	h.stats.Record(*info, source)
	metrics.FallbacksTotal.WithLabelValues(kind, string(source)).Inc()
}

// ruleMessage names why a rule-based stance is being served, including
// the breaker verdict when the circuit is open.
func (h *Handler) ruleMessage() string {
	if h.breakers != nil && h.breakers.StateOf(h.service) == breaker.StateOpen {
		return "model service circuit is open; rule-based result served"
	}
	return "model service unavailable; rule-based result served"
}

func simplifiedMessage(info classify.Info) string {
	return fmt.Sprintf("model inference degraded (%s); simplified result served", info.Category)
}

func degradedMessage(info classify.Info) string {
	return fmt.Sprintf("degraded due to %s failure", info.Category)
}

// ----------------------------------------------------------------------------
// Cached lookups
// ----------------------------------------------------------------------------

const cachedMessage = "serving last known good result"

func (h *Handler) cachedPrediction(info classify.Info, symbol string, now time.Time) (result.Prediction, bool) {
	raw, ok := h.cache.Get(Key(KindPrediction, symbol))
	if !ok {
		return result.Prediction{}, false
	}
	var p result.Prediction
	switch v := raw.(type) {
	case result.Prediction:
		p = v
	case *result.Prediction:
		p = *v
	default:
		h.logUnexpectedPayload(KindPrediction, symbol)
		return result.Prediction{}, false
	}
	p.Meta = result.NewMeta(result.SourceCache, string(info.Category), cachedMessage, now)
	return p, true
}

func (h *Handler) cachedRecommendation(info classify.Info, symbol string, now time.Time) (result.Recommendation, bool) {
	raw, ok := h.cache.Get(Key(KindRecommendation, symbol))
	if !ok {
		return result.Recommendation{}, false
	}
	var r result.Recommendation
	switch v := raw.(type) {
	case result.Recommendation:
		r = v
	case *result.Recommendation:
		r = *v
	default:
		h.logUnexpectedPayload(KindRecommendation, symbol)
		return result.Recommendation{}, false
	}
	r.Meta = result.NewMeta(result.SourceCache, string(info.Category), cachedMessage, now)
	return r, true
}

func (h *Handler) cachedRisk(info classify.Info, symbol string, now time.Time) (result.Risk, bool) {
	raw, ok := h.cache.Get(Key(KindRisk, symbol))
	if !ok {
		return result.Risk{}, false
	}
	var r result.Risk
	switch v := raw.(type) {
	case result.Risk:
		r = v
	case *result.Risk:
		r = *v
	default:
		h.logUnexpectedPayload(KindRisk, symbol)
		return result.Risk{}, false
	}
	r.Meta = result.NewMeta(result.SourceCache, string(info.Category), cachedMessage, now)
	return r, true
}

func (h *Handler) cachedQuery(info classify.Info, query string, now time.Time) (result.Query, bool) {
	raw, ok := h.cache.Get(Key(KindQuery, query))
	if !ok {
		return result.Query{}, false
	}
	var q result.Query
	switch v := raw.(type) {
	case result.Query:
		q = v
	case *result.Query:
		q = *v
	default:
		h.logUnexpectedPayload(KindQuery, query)
		return result.Query{}, false
	}
	q.Meta = result.NewMeta(result.SourceCache, string(info.Category), cachedMessage, now)
	return q, true
}

func (h *Handler) cachedSentiment(info classify.Info, symbol string, now time.Time) (result.Sentiment, bool) {
	raw, ok := h.cache.Get(Key(KindSentiment, symbol))
	if !ok {
		return result.Sentiment{}, false
	}
	var s result.Sentiment
	switch v := raw.(type) {
	case result.Sentiment:
		s = v
	case *result.Sentiment:
		s = *v
	default:
		h.logUnexpectedPayload(KindSentiment, symbol)
		return result.Sentiment{}, false
	}
	s.Meta = result.NewMeta(result.SourceCache, string(info.Category), cachedMessage, now)
	return s, true
}

func (h *Handler) logUnexpectedPayload(kind, subject string) {
	h.logger.Warn("cached fallback payload has unexpected type, ignoring",
		"key", Key(kind, subject))
}

// ----------------------------------------------------------------------------
// Playbook defaults
// ----------------------------------------------------------------------------

func (h *Handler) defaultPrediction(info classify.Info, symbol string, now time.Time, message string) result.Prediction {
	pb := h.playbook.Prediction
	return result.Prediction{
		Meta:       result.NewMeta(result.SourceDefault, string(info.Category), message, now),
		Symbol:     symbol,
		Direction:  result.Direction(pb.Direction),
		Confidence: pb.Confidence,
	}
}

func (h *Handler) defaultRecommendation(info classify.Info, symbol string, now time.Time, message string) result.Recommendation {
	pb := h.playbook.Recommendation
	return result.Recommendation{
		Meta:       result.NewMeta(result.SourceDefault, string(info.Category), message, now),
		Symbol:     symbol,
		Action:     result.Action(pb.Action),
		Confidence: pb.Confidence,
	}
}

func (h *Handler) defaultRisk(info classify.Info, symbol string, now time.Time, message string) result.Risk {
	pb := h.playbook.Risk
	return result.Risk{
		Meta:       result.NewMeta(result.SourceDefault, string(info.Category), message, now),
		Symbol:     symbol,
		RiskLevel:  result.RiskLevel(pb.Level),
		Confidence: pb.Confidence,
	}
}

func (h *Handler) defaultQuery(info classify.Info, query string, now time.Time, message string) result.Query {
	pb := h.playbook.Query
	return result.Query{
		Meta:       result.NewMeta(result.SourceDefault, string(info.Category), message, now),
		Query:      query,
		Answer:     pb.Answer,
		Confidence: pb.Confidence,
	}
}

func (h *Handler) defaultSentiment(info classify.Info, symbol string, now time.Time, message string) result.Sentiment {
	pb := h.playbook.Sentiment
	return result.Sentiment{
		Meta:       result.NewMeta(result.SourceDefault, string(info.Category), message, now),
		Symbol:     symbol,
		Score:      pb.Score,
		Label:      pb.Label,
		Confidence: pb.Confidence,
	}
}
