// SPDX-License-Identifier: Apache-2.0
// Package telemetry provides logging, tracing and metrics for Stevedore.
package telemetry

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/jllopis/stevedore/pkg/errors"
)

// FingerprintMetrics counts the work done by fingerprint computations.
type FingerprintMetrics struct {
	// runCounter tracks completed fingerprint computations by algorithm
	runCounter metric.Int64Counter

	// roleCounter tracks roles hashed, dependencies included
	roleCounter metric.Int64Counter

	// fileCounter tracks files streamed into a digest
	fileCounter metric.Int64Counter

	// byteCounter tracks file bytes streamed into a digest
	byteCounter metric.Int64Counter

	// errorCounter tracks failures by code and component
	errorCounter metric.Int64Counter
}

// NewFingerprintMetrics creates counters on the global meter provider.
func NewFingerprintMetrics() (*FingerprintMetrics, error) {
	meter := otel.Meter("stevedore/fingerprint")

	runCounter, err := meter.Int64Counter(
		"stevedore.fingerprint.runs",
		metric.WithDescription("Completed fingerprint computations by algorithm"),
	)
	if err != nil {
		return nil, err
	}

	roleCounter, err := meter.Int64Counter(
		"stevedore.fingerprint.roles",
		metric.WithDescription("Roles hashed, dependencies included"),
	)
	if err != nil {
		return nil, err
	}

	fileCounter, err := meter.Int64Counter(
		"stevedore.fingerprint.files",
		metric.WithDescription("Files streamed into a fingerprint digest"),
	)
	if err != nil {
		return nil, err
	}

	byteCounter, err := meter.Int64Counter(
		"stevedore.fingerprint.bytes",
		metric.WithDescription("File bytes streamed into a fingerprint digest"),
		metric.WithUnit("By"),
	)
	if err != nil {
		return nil, err
	}

	errorCounter, err := meter.Int64Counter(
		"stevedore.errors.total",
		metric.WithDescription("Total errors by code and component"),
	)
	if err != nil {
		return nil, err
	}

	return &FingerprintMetrics{
		runCounter:   runCounter,
		roleCounter:  roleCounter,
		fileCounter:  fileCounter,
		byteCounter:  byteCounter,
		errorCounter: errorCounter,
	}, nil
}

// RecordRun records one finished fingerprint computation.
func (fm *FingerprintMetrics) RecordRun(ctx context.Context, algorithm string, roles, files int, bytes int64) {
	if fm == nil {
		return
	}
	attrs := metric.WithAttributes(attribute.String(AttrFingerprintAlgorithm, algorithm))
	fm.runCounter.Add(ctx, 1, attrs)
	fm.roleCounter.Add(ctx, int64(roles), attrs)
	fm.fileCounter.Add(ctx, int64(files), attrs)
	fm.byteCounter.Add(ctx, bytes, attrs)
}

// RecordError increments the error counter for the given error and component.
func (fm *FingerprintMetrics) RecordError(ctx context.Context, err error, component string) {
	if fm == nil || err == nil {
		return
	}
	code := string(errors.CodeOf(err))
	if code == "" {
		code = "UNKNOWN"
	}
	recoverable := false
	if se := errors.AsStevedoreError(err); se != nil {
		recoverable = se.Recoverable
	}
	fm.errorCounter.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String(AttrErrorCode, code),
			attribute.Bool(AttrErrorRecoverable, recoverable),
			attribute.String("component", component),
		),
	)
}
