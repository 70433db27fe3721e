// Package idempotency derives the deterministic keys that make activation,
// evidence, and notification handling safe to retry. A key is an opaque
// fixed-shape string "<namespace>:<64 hex chars>"; distinct purposes use
// distinct namespaces so keys from different flows can never collide even
// when their raw inputs coincide.
package idempotency

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
)

// Key namespaces. The "evidence:" prefix is a stable contract for callers
// that construct evidence keys directly.
const (
	NamespaceValidation   = "validation"
	NamespaceEvidence     = "evidence"
	NamespaceNotification = "notification"
)

// ValidationKey identifies one validation run of a deal's condition against
// one game. Identical inputs always yield the identical key; changing any
// component changes the key.
func ValidationKey(dealID, gameID, conditionSignature string) string {
	return derive(NamespaceValidation, dealID, gameID, conditionSignature)
}

// EvidenceKey identifies a piece of evidentiary content by its hash, for
// content-level dedup independent of any deal or game.
func EvidenceKey(evidenceHash string) string {
	return derive(NamespaceEvidence, evidenceHash)
}

// NotificationKey identifies one outbound notification per recipient and
// channel for an activation, so the notification layer dedups separately
// from activation itself.
func NotificationKey(dealID, gameID, recipient, channel string) string {
	return derive(NamespaceNotification, dealID, gameID, recipient, channel)
}

// derive hashes the input components with each component length-prefixed, so
// ("ab","c") and ("a","bc") can never produce the same digest.
func derive(namespace string, parts ...string) string {
	h := sha256.New()
	var prefix [8]byte
	for _, part := range parts {
		binary.BigEndian.PutUint64(prefix[:], uint64(len(part)))
		h.Write(prefix[:])
		h.Write([]byte(part))
	}
	return namespace + ":" + hex.EncodeToString(h.Sum(nil))
}
