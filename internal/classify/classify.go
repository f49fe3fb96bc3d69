// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Ballast Contributors

// Package classify normalizes raised failures into a (category,
// severity) pair the error handler can branch on. Classification is a
// pure function of the failure and never performs I/O.
package classify

import (
	"strings"
	"time"

	ballasterr "github.com/ballast-dev/ballast/pkg/errors"
	"github.com/google/uuid"
)

// Context captures where a failure happened. Values are copied on
// mutation so a Context handed to concurrent call sites stays stable.
type Context struct {
	Component string
	Operation string
	Symbol    string
	RequestID string
	CreatedAt time.Time
	Attrs     map[string]any
}

// NewContext stamps a fresh failure context for one operation.
func NewContext(component, operation string) Context {
	return Context{
		Component: component,
		Operation: operation,
		RequestID: uuid.NewString(),
		CreatedAt: time.Now().UTC(),
	}
}

// WithSymbol returns a copy carrying the analytics subject.
func (c Context) WithSymbol(symbol string) Context {
	c.Symbol = symbol
	return c
}

// WithAttr returns a copy carrying one extra attribute.
func (c Context) WithAttr(key string, value any) Context {
	attrs := make(map[string]any, len(c.Attrs)+1)
	for k, v := range c.Attrs {
		attrs[k] = v
	}
	attrs[key] = value
	c.Attrs = attrs
	return c
}

// Info is one classified failure. The three outcome flags start false
// and are set exactly once while the handler processes the failure.
type Info struct {
	Category          ballasterr.Category
	Severity          ballasterr.Severity
	Message           string
	Err               error
	Context           Context
	RecoveryAttempted bool
	RecoverySucceeded bool
	FallbackUsed      bool
	Timestamp         time.Time
}

// categoryFromText maps a failure message to a category by keyword.
// Priority order matters: "model service timeout" is a network failure,
// not a model failure.
func categoryFromText(msg string) ballasterr.Category {
	lower := strings.ToLower(msg)

	switch {
	case strings.Contains(lower, "connection"), strings.Contains(lower, "timeout"):
		return ballasterr.CategoryNetwork
	case strings.Contains(lower, "ollama"),
		strings.Contains(lower, "local model"),
		strings.Contains(lower, "model service"):
		return ballasterr.CategoryDependencyFailure
	case strings.Contains(lower, "data"), strings.Contains(lower, "not found"):
		return ballasterr.CategoryDataUnavailable
	case strings.Contains(lower, "model"), strings.Contains(lower, "prediction"):
		return ballasterr.CategoryModelFailure
	case strings.Contains(lower, "memory"), strings.Contains(lower, "resource"):
		return ballasterr.CategoryPerformance
	default:
		return ballasterr.CategorySystem
	}
}

// scanText is swapped in tests to exercise the recover path.
var scanText = categoryFromText

// Classify maps a failure to an Info. A declared category and severity
// on the error chain win verbatim; otherwise the message is scanned for
// keywords. Classification never panics: internal failures degrade to a
// generic system classification.
func Classify(err error, ctx Context) (info Info) {
	now := time.Now().UTC()

	defer func() {
		if r := recover(); r != nil {
			info = Info{
				Category:  ballasterr.CategorySystem,
				Severity:  ballasterr.SeverityMedium,
				Message:   "classification failed",
				Err:       err,
				Context:   ctx,
				Timestamp: now,
			}
		}
	}()

	if err == nil {
		return Info{
			Category:  ballasterr.CategorySystem,
			Severity:  ballasterr.SeverityLow,
			Message:   "no failure provided",
			Context:   ctx,
			Timestamp: now,
		}
	}

	info = Info{
		Message:   err.Error(),
		Err:       err,
		Context:   ctx,
		Timestamp: now,
	}

	if cat, sev, ok := ballasterr.Declared(err); ok {
		info.Category = cat
		info.Severity = sev
		return info
	}

	info.Category = scanText(err.Error())
	info.Severity = ballasterr.DefaultSeverity(info.Category)
	return info
}
