package ir

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// Domain prefixes for content-addressed identity.
// Version suffix enables future algorithm migration.
const (
	DomainScene    = "fieldnet/scene/v1"
	DomainSnapshot = "fieldnet/snapshot/v1"
)

// hashWithDomain computes SHA-256 hash with domain separation.
// Format: SHA256(domain + 0x00 + data)
// The null byte separator prevents domain/data boundary ambiguity.
func hashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// SceneHash computes the content hash of a scene spec. Two specs that
// declare the same nodes, fields and routes in the same order hash equal.
func SceneHash(spec SceneSpec) (string, error) {
	canonical, err := MarshalCanonical(spec.IR())
	if err != nil {
		return "", fmt.Errorf("SceneHash: failed to marshal: %w", err)
	}
	return hashWithDomain(DomainScene, canonical), nil
}

// SnapshotHash computes the content hash of a set of field values. Entry
// order does not matter.
func SnapshotHash(scene string, entries []SnapshotEntry) (string, error) {
	values := make(IRObject, len(entries))
	for _, e := range entries {
		values[e.Field] = IRString(e.Value)
	}
	obj := IRObject{
		"scene":  IRString(scene),
		"values": values,
	}
	canonical, err := MarshalCanonical(obj)
	if err != nil {
		return "", fmt.Errorf("SnapshotHash: failed to marshal: %w", err)
	}
	return hashWithDomain(DomainSnapshot, canonical), nil
}

// MustSceneHash is like SceneHash but panics on error.
// Use only in tests or when inputs are known to be valid.
func MustSceneHash(spec SceneSpec) string {
	h, err := SceneHash(spec)
	if err != nil {
		panic(err)
	}
	return h
}
