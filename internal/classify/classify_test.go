// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Ballast Contributors

package classify_test

import (
	stderrors "errors"
	"testing"

	"github.com/ballast-dev/ballast/internal/classify"
	ballasterr "github.com/ballast-dev/ballast/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassify_KeywordPriority(t *testing.T) {
	tests := []struct {
		name    string
		msg     string
		wantCat ballasterr.Category
		wantSev ballasterr.Severity
	}{
		{"connection refused", "connection refused by peer", ballasterr.CategoryNetwork, ballasterr.SeverityHigh},
		{"timeout", "request timeout after 5s", ballasterr.CategoryNetwork, ballasterr.SeverityHigh},
		{"ollama down", "ollama is not responding", ballasterr.CategoryDependencyFailure, ballasterr.SeverityMedium},
		{"local model phrase", "local model produced no output", ballasterr.CategoryDependencyFailure, ballasterr.SeverityMedium},
		{"model service phrase", "model service returned status 500", ballasterr.CategoryDependencyFailure, ballasterr.SeverityMedium},
		{"missing data", "no data for symbol", ballasterr.CategoryDataUnavailable, ballasterr.SeverityMedium},
		{"not found", "price history not found", ballasterr.CategoryDataUnavailable, ballasterr.SeverityMedium},
		{"model diverged", "model failed to converge", ballasterr.CategoryModelFailure, ballasterr.SeverityHigh},
		{"prediction failed", "prediction produced NaN", ballasterr.CategoryModelFailure, ballasterr.SeverityHigh},
		{"out of memory", "out of memory while scoring", ballasterr.CategoryPerformance, ballasterr.SeverityHigh},
		{"resource exhausted", "resource limits exceeded", ballasterr.CategoryPerformance, ballasterr.SeverityHigh},
		{"unknown text", "something inexplicable happened", ballasterr.CategorySystem, ballasterr.SeverityMedium},
		{"empty message", "", ballasterr.CategorySystem, ballasterr.SeverityMedium},
	}

	ctx := classify.Context{Component: "test", Operation: "op"}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			info := classify.Classify(stderrors.New(tt.msg), ctx)
			assert.Equal(t, tt.wantCat, info.Category)
			assert.Equal(t, tt.wantSev, info.Severity)
			assert.Equal(t, tt.msg, info.Message)
			assert.Equal(t, ctx.Component, info.Context.Component)
			assert.False(t, info.Timestamp.IsZero())
		})
	}
}

// A timeout wording beats model wording because network keywords are
// scanned first.
func TestClassify_PriorityOrderTies(t *testing.T) {
	info := classify.Classify(stderrors.New("model generation timeout"), classify.Context{})
	assert.Equal(t, ballasterr.CategoryNetwork, info.Category)

	info = classify.Classify(stderrors.New("training data for model missing"), classify.Context{})
	assert.Equal(t, ballasterr.CategoryDataUnavailable, info.Category)
}

func TestClassify_DeterministicForEqualInputs(t *testing.T) {
	err := stderrors.New("connection reset while loading model")
	ctx := classify.NewContext("prediction_engine", "predict")

	a := classify.Classify(err, ctx)
	b := classify.Classify(err, ctx)
	assert.Equal(t, a.Category, b.Category)
	assert.Equal(t, a.Severity, b.Severity)
	assert.Equal(t, a.Message, b.Message)
}

func TestClassify_DeclaredCategoryWinsVerbatim(t *testing.T) {
	// Message says "timeout" but the declaration says data unavailable;
	// the declaration must win.
	err := ballasterr.New(ballasterr.CategoryDataUnavailable, "timeout while reading cache")
	info := classify.Classify(err, classify.Context{})
	assert.Equal(t, ballasterr.CategoryDataUnavailable, info.Category)
	assert.Equal(t, ballasterr.SeverityMedium, info.Severity)
}

func TestClassify_DeclaredSeverityWinsVerbatim(t *testing.T) {
	err := ballasterr.NewWithSeverity(ballasterr.CategoryDependencyFailure, ballasterr.SeverityCritical, "ollama gone")
	info := classify.Classify(err, classify.Context{})
	assert.Equal(t, ballasterr.CategoryDependencyFailure, info.Category)
	assert.Equal(t, ballasterr.SeverityCritical, info.Severity)
}

func TestClassify_NilError(t *testing.T) {
	info := classify.Classify(nil, classify.Context{Component: "x"})
	assert.Equal(t, ballasterr.CategorySystem, info.Category)
	assert.Equal(t, ballasterr.SeverityLow, info.Severity)
	assert.Nil(t, info.Err)
}

func TestClassify_OutcomeFlagsStartFalse(t *testing.T) {
	info := classify.Classify(stderrors.New("boom"), classify.Context{})
	assert.False(t, info.RecoveryAttempted)
	assert.False(t, info.RecoverySucceeded)
	assert.False(t, info.FallbackUsed)
}

func TestClassify_InternalPanicFallsBackToSystem(t *testing.T) {
	restore := classify.SetScanFunc(func(string) ballasterr.Category { panic("scanner exploded") })
	defer restore()

	info := classify.Classify(stderrors.New("plain failure"), classify.Context{Component: "x"})
	assert.Equal(t, ballasterr.CategorySystem, info.Category)
	assert.Equal(t, ballasterr.SeverityMedium, info.Severity)
	assert.Equal(t, "classification failed", info.Message)
	require.NotNil(t, info.Err)
	assert.Equal(t, "x", info.Context.Component)
}

func TestNewContext(t *testing.T) {
	ctx := classify.NewContext("risk_engine", "assess_risk")
	assert.Equal(t, "risk_engine", ctx.Component)
	assert.Equal(t, "assess_risk", ctx.Operation)
	assert.NotEmpty(t, ctx.RequestID)
	assert.False(t, ctx.CreatedAt.IsZero())

	other := classify.NewContext("risk_engine", "assess_risk")
	assert.NotEqual(t, ctx.RequestID, other.RequestID, "request ids must be unique")
}

func TestContext_WithCopiesValue(t *testing.T) {
	base := classify.NewContext("c", "o")
	withSym := base.WithSymbol("NVDA")
	assert.Empty(t, base.Symbol, "original must stay untouched")
	assert.Equal(t, "NVDA", withSym.Symbol)

	withAttr := base.WithAttr("attempt", 2)
	assert.Nil(t, base.Attrs)
	assert.Equal(t, 2, withAttr.Attrs["attempt"])

	chained := withAttr.WithAttr("window", "30d")
	assert.Len(t, withAttr.Attrs, 1, "chaining must not mutate the parent copy")
	assert.Len(t, chained.Attrs, 2)
}
