// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Ballast Contributors

// Package result defines the degraded analytics results the error
// handler returns when the real computation fails. Every type carries
// an explicit Fallback flag so callers can always distinguish a
// degraded answer from a fully-computed one.
package result

import "time"

// Source identifies where a degraded result came from.
type Source string

const (
	// SourceCache means the result was served from the fallback cache.
	SourceCache Source = "cache"
	// SourceDefault means a fixed low-confidence default was returned.
	SourceDefault Source = "default"
	// SourceRules means a rule-based alternative produced the result
	// without touching the model service.
	SourceRules Source = "rules"
	// SourceSimplified means a cheaper variant of the computation ran.
	SourceSimplified Source = "simplified"
	// SourceNone means every fallback failed and the result is the
	// minimal shape for its kind.
	SourceNone Source = "none"
)

// Valid reports whether the source is a known fallback origin.
func (s Source) Valid() bool {
	switch s {
	case SourceCache, SourceDefault, SourceRules, SourceSimplified, SourceNone:
		return true
	default:
		return false
	}
}

// DefaultConfidence is the confidence attached to fixed defaults when
// no cached or rule-derived answer exists.
const DefaultConfidence = 0.5

// Meta is embedded in every degraded result.
type Meta struct {
	Fallback        bool      `json:"fallback"`
	FallbackSource  Source    `json:"fallback_source"`
	FailureCategory string    `json:"failure_category"`
	Message         string    `json:"message,omitempty"`
	GeneratedAt     time.Time `json:"generated_at"`
}

// Direction is a coarse price movement call.
type Direction string

const (
	DirectionUp   Direction = "up"
	DirectionDown Direction = "down"
	DirectionFlat Direction = "flat"
)

// Prediction is a degraded price prediction.
type Prediction struct {
	Meta
	Symbol     string    `json:"symbol"`
	Direction  Direction `json:"direction"`
	Confidence float64   `json:"confidence"`
}

// Action is a coarse trading call.
type Action string

const (
	ActionBuy  Action = "buy"
	ActionHold Action = "hold"
	ActionSell Action = "sell"
)

// Recommendation is a degraded trade recommendation.
type Recommendation struct {
	Meta
	Symbol     string   `json:"symbol"`
	Action     Action   `json:"action"`
	Confidence float64  `json:"confidence"`
	Reasons    []string `json:"reasons,omitempty"`
}

// RiskLevel is a coarse risk bucket.
type RiskLevel string

const (
	RiskLow      RiskLevel = "low"
	RiskModerate RiskLevel = "moderate"
	RiskHigh     RiskLevel = "high"
	RiskUnknown  RiskLevel = "unknown"
)

// Risk is a degraded risk assessment.
type Risk struct {
	Meta
	Symbol     string    `json:"symbol"`
	RiskLevel  RiskLevel `json:"risk_level"`
	Volatility float64   `json:"volatility"`
	VaR95      float64   `json:"var_95"`
	Confidence float64   `json:"confidence"`
}

// Query is a degraded natural-language query answer.
type Query struct {
	Meta
	Query      string  `json:"query"`
	Answer     string  `json:"answer"`
	Confidence float64 `json:"confidence"`
}

// Sentiment is a degraded sentiment score. Score ranges -1 to 1.
type Sentiment struct {
	Meta
	Symbol     string  `json:"symbol"`
	Score      float64 `json:"score"`
	Label      string  `json:"label"`
	Confidence float64 `json:"confidence"`
}

// meta builds the embedded Meta for a degraded result.
func meta(source Source, category, message string, at time.Time) Meta {
	return Meta{
		Fallback:        true,
		FallbackSource:  source,
		FailureCategory: category,
		Message:         message,
		GeneratedAt:     at,
	}
}

// NewMeta is the constructor handlers use when assembling a degraded
// result from cache or rules.
func NewMeta(source Source, category, message string, at time.Time) Meta {
	return meta(source, category, message, at)
}

// MinimalPrediction is the shape returned when every fallback failed.
func MinimalPrediction(symbol, category string, at time.Time) Prediction {
	return Prediction{
		Meta:      meta(SourceNone, category, "all fallbacks failed", at),
		Symbol:    symbol,
		Direction: DirectionFlat,
	}
}

// MinimalRecommendation is the shape returned when every fallback failed.
func MinimalRecommendation(symbol, category string, at time.Time) Recommendation {
	return Recommendation{
		Meta:   meta(SourceNone, category, "all fallbacks failed", at),
		Symbol: symbol,
		Action: ActionHold,
	}
}

// MinimalRisk is the shape returned when every fallback failed.
func MinimalRisk(symbol, category string, at time.Time) Risk {
	return Risk{
		Meta:      meta(SourceNone, category, "all fallbacks failed", at),
		Symbol:    symbol,
		RiskLevel: RiskUnknown,
	}
}

// MinimalQuery is the shape returned when every fallback failed.
func MinimalQuery(query, category string, at time.Time) Query {
	return Query{
		Meta:   meta(SourceNone, category, "all fallbacks failed", at),
		Query:  query,
		Answer: "unable to answer right now",
	}
}

// MinimalSentiment is the shape returned when every fallback failed.
func MinimalSentiment(symbol, category string, at time.Time) Sentiment {
	return Sentiment{
		Meta:   meta(SourceNone, category, "all fallbacks failed", at),
		Symbol: symbol,
		Label:  "neutral",
	}
}
