package models

import (
	"fmt"
	"strings"
)

// KeyPrefix partitions the counter store namespace by purpose.
type KeyPrefix string

const (
	// KeyPrefixRate namespaces fixed-window request counters.
	KeyPrefixRate KeyPrefix = "rl"
	// KeyPrefixFailure namespaces auth failure counters.
	KeyPrefixFailure KeyPrefix = "fail"
	// KeyPrefixBlock namespaces brute-force block entries.
	KeyPrefixBlock KeyPrefix = "block"
)

// CounterKey is a value object encapsulating counter key construction.
// It centralizes key format and sanitization to prevent key collision attacks.
type CounterKey struct {
	prefix   KeyPrefix
	identity string
	class    EndpointClass // optional, empty for failure/block keys
}

// NewRateKey creates a counter key for a (client identity, endpoint class) pair.
func NewRateKey(identity string, class EndpointClass) CounterKey {
	return CounterKey{
		prefix:   KeyPrefixRate,
		identity: sanitizeKeySegment(identity),
		class:    class,
	}
}

// NewFailureKey creates the auth failure counter key for a client identity.
func NewFailureKey(identity string) CounterKey {
	return CounterKey{
		prefix:   KeyPrefixFailure,
		identity: sanitizeKeySegment(identity),
	}
}

// NewBlockKey creates the block list key for a client identity.
func NewBlockKey(identity string) CounterKey {
	return CounterKey{
		prefix:   KeyPrefixBlock,
		identity: sanitizeKeySegment(identity),
	}
}

// String returns the formatted key for storage lookup.
func (k CounterKey) String() string {
	if k.class == "" {
		return fmt.Sprintf("%s:%s", k.prefix, k.identity)
	}
	return fmt.Sprintf("%s:%s:%s", k.prefix, k.class, k.identity)
}

// sanitizeKeySegment escapes delimiter characters in counter key segments so
// user-controlled identifiers containing ':' cannot collide with adjacent
// buckets.
//
// Escape rules (order matters):
//  1. Escape '_' to '__' (escape the escape character first)
//  2. Escape ':' to '_c' (escape the delimiter)
//
// No two distinct inputs produce the same sanitized output.
func sanitizeKeySegment(s string) string {
	s = strings.ReplaceAll(s, "_", "__")
	s = strings.ReplaceAll(s, ":", "_c")
	return s
}
