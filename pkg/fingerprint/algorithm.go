// Copyright 2026 © The Stevedore Authors
// SPDX-License-Identifier: Apache-2.0

package fingerprint

import (
	"crypto/sha256"
	"hash"
	"strings"

	"github.com/zeebo/blake3"

	"github.com/jllopis/stevedore/pkg/errors"
)

// Algorithm names the digest a fingerprint is computed with. Both produce
// 256-bit digests.
type Algorithm string

const (
	SHA256 Algorithm = "sha256"
	BLAKE3 Algorithm = "blake3"
)

// ParseAlgorithm validates a configured algorithm name. Empty selects SHA256.
func ParseAlgorithm(name string) (Algorithm, error) {
	switch Algorithm(strings.ToLower(strings.TrimSpace(name))) {
	case "", SHA256:
		return SHA256, nil
	case BLAKE3:
		return BLAKE3, nil
	default:
		return "", errors.Newf(errors.CodeInvalidInput, "unknown fingerprint algorithm %q", name).
			WithContext("supported", []string{string(SHA256), string(BLAKE3)})
	}
}

func (a Algorithm) newHash() hash.Hash {
	if a == BLAKE3 {
		return blake3.New()
	}
	return sha256.New()
}
