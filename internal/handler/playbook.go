// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Ballast Contributors

package handler

import (
	_ "embed"
	"os"

	ballasterr "github.com/ballast-dev/ballast/pkg/errors"
	"github.com/ballast-dev/ballast/pkg/result"
	"gopkg.in/yaml.v3"
)

//go:embed playbook.yaml.default
var defaultPlaybookYAML []byte

// Playbook holds the fixed degraded defaults served per operation kind
// when no cached result exists. Values ship embedded and can be
// overridden wholesale from a YAML file.
type Playbook struct {
	Prediction     PredictionDefaults     `yaml:"prediction"`
	Recommendation RecommendationDefaults `yaml:"recommendation"`
	Risk           RiskDefaults           `yaml:"risk"`
	Query          QueryDefaults          `yaml:"query"`
	Sentiment      SentimentDefaults      `yaml:"sentiment"`
}

// PredictionDefaults is the degraded prediction shape.
type PredictionDefaults struct {
	Direction  string  `yaml:"direction"`
	Confidence float64 `yaml:"confidence"`
	Message    string  `yaml:"message"`
}

// RecommendationDefaults is the degraded recommendation shape.
type RecommendationDefaults struct {
	Action     string  `yaml:"action"`
	Confidence float64 `yaml:"confidence"`
	Message    string  `yaml:"message"`
}

// RiskDefaults is the degraded risk assessment shape.
type RiskDefaults struct {
	Level      string  `yaml:"level"`
	Confidence float64 `yaml:"confidence"`
	Message    string  `yaml:"message"`
}

// QueryDefaults is the degraded query answer shape.
type QueryDefaults struct {
	Answer     string  `yaml:"answer"`
	Confidence float64 `yaml:"confidence"`
	Message    string  `yaml:"message"`
}

// SentimentDefaults is the degraded sentiment shape.
type SentimentDefaults struct {
	Label      string  `yaml:"label"`
	Score      float64 `yaml:"score"`
	Confidence float64 `yaml:"confidence"`
	Message    string  `yaml:"message"`
}

// DefaultPlaybook parses the embedded playbook. The embedded file is
// validated by tests, so a parse failure here is a build defect and
// panics.
func DefaultPlaybook() *Playbook {
	pb, err := parsePlaybook(defaultPlaybookYAML)
	if err != nil {
		panic("embedded playbook is invalid: " + err.Error())
	}
	return pb
}

// LoadPlaybook returns the embedded defaults overlaid with the YAML
// file at path. An empty path returns the defaults unchanged.
func LoadPlaybook(path string) (*Playbook, error) {
	pb := DefaultPlaybook()
	if path == "" {
		return pb, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, ballasterr.Wrapf(err, ballasterr.CategoryValidation, "read playbook %s", path)
	}
	if err := yaml.Unmarshal(data, pb); err != nil {
		return nil, ballasterr.Wrapf(err, ballasterr.CategoryValidation, "parse playbook %s", path)
	}
	if err := pb.validate(); err != nil {
		return nil, err
	}
	return pb, nil
}

func parsePlaybook(data []byte) (*Playbook, error) {
	var pb Playbook
	if err := yaml.Unmarshal(data, &pb); err != nil {
		return nil, ballasterr.Wrap(err, ballasterr.CategoryValidation, "parse playbook")
	}
	if err := pb.validate(); err != nil {
		return nil, err
	}
	return &pb, nil
}

func (p *Playbook) validate() error {
	switch result.Direction(p.Prediction.Direction) {
	case result.DirectionUp, result.DirectionDown, result.DirectionFlat:
	default:
		return ballasterr.Errorf(ballasterr.CategoryValidation,
			"playbook: prediction.direction %q is not one of up, down, flat", p.Prediction.Direction)
	}
	switch result.Action(p.Recommendation.Action) {
	case result.ActionBuy, result.ActionHold, result.ActionSell:
	default:
		return ballasterr.Errorf(ballasterr.CategoryValidation,
			"playbook: recommendation.action %q is not one of buy, hold, sell", p.Recommendation.Action)
	}
	switch result.RiskLevel(p.Risk.Level) {
	case result.RiskLow, result.RiskModerate, result.RiskHigh, result.RiskUnknown:
	default:
		return ballasterr.Errorf(ballasterr.CategoryValidation,
			"playbook: risk.level %q is not one of low, moderate, high, unknown", p.Risk.Level)
	}
	if p.Query.Answer == "" {
		return ballasterr.New(ballasterr.CategoryValidation, "playbook: query.answer must not be empty")
	}
	if p.Sentiment.Label == "" {
		return ballasterr.New(ballasterr.CategoryValidation, "playbook: sentiment.label must not be empty")
	}
	if p.Sentiment.Score < -1 || p.Sentiment.Score > 1 {
		return ballasterr.Errorf(ballasterr.CategoryValidation,
			"playbook: sentiment.score %v must be between -1 and 1", p.Sentiment.Score)
	}

	for name, c := range map[string]float64{
		"prediction.confidence":     p.Prediction.Confidence,
		"recommendation.confidence": p.Recommendation.Confidence,
		"risk.confidence":           p.Risk.Confidence,
		"query.confidence":          p.Query.Confidence,
		"sentiment.confidence":      p.Sentiment.Confidence,
	} {
		if c < 0 || c > 1 {
			return ballasterr.Errorf(ballasterr.CategoryValidation,
				"playbook: %s %v must be between 0 and 1", name, c)
		}
	}
	return nil
}
