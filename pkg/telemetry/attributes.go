// Copyright 2026 © The Stevedore Authors
// SPDX-License-Identifier: Apache-2.0

package telemetry

import (
	"sort"

	"go.opentelemetry.io/otel/attribute"

	"github.com/jllopis/stevedore/pkg/errors"
)

// Semantic conventions for Stevedore telemetry.
const (
	// Role attributes
	AttrRoleName  = "stevedore.role.name"
	AttrRolePath  = "stevedore.role.path"
	AttrRoleDepth = "stevedore.role.depth"

	// Fingerprint attributes
	AttrFingerprintAlgorithm = "stevedore.fingerprint.algorithm"
	AttrFingerprintDigest    = "stevedore.fingerprint.digest"
	AttrFingerprintFiles     = "stevedore.fingerprint.files"
	AttrFingerprintBytes     = "stevedore.fingerprint.bytes"
	AttrFingerprintRoles     = "stevedore.fingerprint.roles"

	// Error attributes
	AttrErrorCode        = "error.code"
	AttrErrorRecoverable = "error.recoverable"
	attrErrorPrefix      = "stevedore.error."

	// Scaffold attributes
	AttrScaffoldWritten = "stevedore.scaffold.written"
	AttrScaffoldBackups = "stevedore.scaffold.backups"
)

// RoleAttributes returns attributes for a per-role span.
func RoleAttributes(name, path string, depth int) []attribute.KeyValue {
	attrs := []attribute.KeyValue{
		attribute.String(AttrRoleName, name),
		attribute.Int(AttrRoleDepth, depth),
	}
	if path != "" {
		attrs = append(attrs, attribute.String(AttrRolePath, path))
	}
	return attrs
}

// FingerprintAttributes returns attributes describing a finished fingerprint.
func FingerprintAttributes(algorithm, digest string, roles, files int, bytes int64) []attribute.KeyValue {
	attrs := []attribute.KeyValue{
		attribute.String(AttrFingerprintAlgorithm, algorithm),
		attribute.Int(AttrFingerprintRoles, roles),
		attribute.Int(AttrFingerprintFiles, files),
		attribute.Int64(AttrFingerprintBytes, bytes),
	}
	if digest != "" {
		attrs = append(attrs, attribute.String(AttrFingerprintDigest, digest))
	}
	return attrs
}

// ScaffoldAttributes returns attributes for a scaffold generation.
func ScaffoldAttributes(role string, written, backups int) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(AttrRoleName, role),
		attribute.Int(AttrScaffoldWritten, written),
		attribute.Int(AttrScaffoldBackups, backups),
	}
}

// ErrorAttributes describes err for span events: its code, whether it is
// recoverable and the attributes it carries under the stevedore.error prefix.
func ErrorAttributes(err error) []attribute.KeyValue {
	se := errors.AsStevedoreError(err)
	if se == nil {
		return nil
	}
	attrs := []attribute.KeyValue{
		attribute.String(AttrErrorCode, string(se.Code)),
		attribute.Bool(AttrErrorRecoverable, se.Recoverable),
	}
	keys := make([]string, 0, len(se.Attributes))
	for k := range se.Attributes {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		attrs = append(attrs, attribute.String(attrErrorPrefix+k, se.Attributes[k]))
	}
	return attrs
}
