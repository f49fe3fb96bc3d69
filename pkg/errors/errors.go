// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Ballast Contributors

// Package errors defines the failure taxonomy shared by the resilience
// layer and the analytics engines that report into it. Failures carry a
// Category and a Severity through the error chain so that downstream
// classification can recover them verbatim.
package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"

	"github.com/samber/oops"
)

// Category identifies the origin of a failure.
type Category string

const (
	CategoryDataUnavailable   Category = "data_unavailable"
	CategoryModelFailure      Category = "model_failure"
	CategoryDependencyFailure Category = "dependency_failure"
	CategoryNetwork           Category = "network"
	CategoryValidation        Category = "validation"
	CategoryPerformance       Category = "performance"
	CategorySystem            Category = "system"
)

// Severity ranks how urgently a failure needs attention.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// severityKey is the oops context key carrying the declared severity.
const severityKey = "ballast.severity"

var severityRank = map[Severity]int{
	SeverityLow:      1,
	SeverityMedium:   2,
	SeverityHigh:     3,
	SeverityCritical: 4,
}

// AtLeast reports whether s ranks at or above min. Unknown severities
// rank below SeverityLow.
func (s Severity) AtLeast(min Severity) bool {
	return severityRank[s] >= severityRank[min]
}

// KnownCategory reports whether c is one of the defined categories.
func KnownCategory(c Category) bool {
	switch c {
	case CategoryDataUnavailable, CategoryModelFailure, CategoryDependencyFailure,
		CategoryNetwork, CategoryValidation, CategoryPerformance, CategorySystem:
		return true
	}
	return false
}

// DefaultSeverity returns the severity a category implies when the
// failure does not declare one. Network, model, and performance failures
// degrade user-visible output directly and rank High; the rest rank
// Medium except Validation, which callers can always retry.
func DefaultSeverity(c Category) Severity {
	switch c {
	case CategoryNetwork, CategoryModelFailure, CategoryPerformance:
		return SeverityHigh
	case CategoryValidation:
		return SeverityLow
	default:
		return SeverityMedium
	}
}

// Attr is a structured key/value context attached to an error.
type Attr struct {
	Key   string
	Value any
}

// Field creates a structured error field.
func Field(key string, value any) Attr {
	return Attr{Key: key, Value: value}
}

func FieldComponent(value string) Attr {
	return Field("component", value)
}

func FieldOperation(value string) Attr {
	return Field("operation", value)
}

func FieldSymbol(value string) Attr {
	return Field("symbol", value)
}

func FieldRequestID(value string) Attr {
	return Field("request_id", value)
}

func FieldService(value string) Attr {
	return Field("service", value)
}

func FieldModel(value string) Attr {
	return Field("model", value)
}

// New creates an error declared with the given category and its default
// severity.
func New(cat Category, msg string, fields ...Attr) error {
	return builder(cat, DefaultSeverity(cat), fields).New(msg)
}

// NewWithSeverity creates an error with an explicit severity override.
func NewWithSeverity(cat Category, sev Severity, msg string, fields ...Attr) error {
	return builder(cat, sev, fields).New(msg)
}

func Errorf(cat Category, format string, args ...any) error {
	return builder(cat, DefaultSeverity(cat), nil).Errorf(format, args...)
}

func Wrap(err error, cat Category, msg string, fields ...Attr) error {
	if err == nil {
		return nil
	}

	return builder(cat, DefaultSeverity(cat), fields).Wrapf(err, "%s", msg)
}

func Wrapf(err error, cat Category, format string, args ...any) error {
	if err == nil {
		return nil
	}

	return builder(cat, DefaultSeverity(cat), nil).Wrapf(err, format, args...)
}

// WrapWithSeverity wraps with an explicit severity override.
func WrapWithSeverity(err error, cat Category, sev Severity, msg string, fields ...Attr) error {
	if err == nil {
		return nil
	}

	return builder(cat, sev, fields).Wrapf(err, "%s", msg)
}

// With adds structured fields to an existing error chain, preserving its
// declared category and severity.
func With(err error, fields ...Attr) error {
	if err == nil {
		return nil
	}

	cat, sev, ok := Declared(err)
	if !ok {
		cat, sev = CategorySystem, SeverityMedium
	}

	return builder(cat, sev, fields).Wrap(err)
}

func builder(cat Category, sev Severity, fields []Attr) oops.OopsErrorBuilder {
	pairs := append(flatten(fields), severityKey, string(sev))
	return oops.Code(string(cat)).With(pairs...)
}

// Declared returns the category and severity the error chain carries,
// if any. Errors without a recognized category report ok=false.
func Declared(err error) (Category, Severity, bool) {
	if err == nil {
		return "", "", false
	}

	oopsErr, ok := oops.AsOops(err)
	if !ok {
		return "", "", false
	}

	cat := Category(fmt.Sprintf("%v", oopsErr.Code()))
	if !KnownCategory(cat) {
		return "", "", false
	}

	sev := DefaultSeverity(cat)
	if raw, ok := oopsErr.Context()[severityKey].(string); ok && severityRank[Severity(raw)] > 0 {
		sev = Severity(raw)
	}

	return cat, sev, true
}

// CategoryOf returns the declared category, or "" when none is declared.
func CategoryOf(err error) Category {
	cat, _, ok := Declared(err)
	if !ok {
		return ""
	}
	return cat
}

// SeverityOf returns the declared or implied severity, or "" when the
// error declares no category.
func SeverityOf(err error) Severity {
	_, sev, ok := Declared(err)
	if !ok {
		return ""
	}
	return sev
}

func HasCategory(err error, cat Category) bool {
	return err != nil && CategoryOf(err) == cat
}

func IsDataUnavailable(err error) bool {
	return HasCategory(err, CategoryDataUnavailable)
}

func IsDependencyFailure(err error) bool {
	return HasCategory(err, CategoryDependencyFailure)
}

func IsNetwork(err error) bool {
	return HasCategory(err, CategoryNetwork)
}

func FieldsOf(err error) map[string]any {
	if err == nil {
		return nil
	}

	oopsErr, ok := oops.AsOops(err)
	if !ok {
		return nil
	}

	return oopsErr.Context()
}

// HTTPStatus maps a declared category to the status the ops API returns
// for it.
func HTTPStatus(err error) int {
	switch CategoryOf(err) {
	case CategoryValidation:
		return http.StatusBadRequest
	case CategoryDataUnavailable:
		return http.StatusNotFound
	case CategoryNetwork, CategoryModelFailure:
		return http.StatusBadGateway
	case CategoryDependencyFailure:
		return http.StatusServiceUnavailable
	case CategoryPerformance:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func Join(errs ...error) error {
	return oops.Code(string(CategorySystem)).Wrap(stderrors.Join(errs...))
}

func flatten(fields []Attr) []any {
	pairs := make([]any, 0, len(fields)*2+2)
	for _, field := range fields {
		if field.Key == "" {
			continue
		}
		pairs = append(pairs, field.Key, field.Value)
	}
	return pairs
}
