package ir

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// Domain prefixes for content-addressed identity.
// The version suffix leaves room for algorithm migration.
const (
	DomainModule = "docprobe/module/v1"
	DomainResult = "docprobe/result/v1"
)

// hashWithDomain computes SHA-256 with domain separation:
// SHA256(domain + 0x00 + data). The null byte prevents domain/data
// boundary ambiguity.
func hashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// ModuleID returns the content hash of a candidate source file.
// Identical bytes always produce the same ID.
func ModuleID(source []byte) string {
	return hashWithDomain(DomainModule, source)
}

// ResultDigest hashes the deterministic part of an analysis result.
// snapshot must be canonically marshalable (see MarshalCanonical).
func ResultDigest(snapshot map[string]any) (string, error) {
	canonical, err := MarshalCanonical(snapshot)
	if err != nil {
		return "", fmt.Errorf("ResultDigest: failed to marshal: %w", err)
	}
	return hashWithDomain(DomainResult, canonical), nil
}
