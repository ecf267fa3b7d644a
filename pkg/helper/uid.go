// Package helper holds small, independently testable algorithms shared
// across layers: message id generation, the disjoint-paths predicate,
// and vector-clock comparison.
package helper

import "github.com/google/uuid"

// GenerateMsgID returns a fresh, globally unique message id. Replaces
// the "author_id*37 + broadcast_count + hash(msg)" derived-id scheme
// of the original implementation, which the source's own design notes
// flag as vestigial: every layer only ever needs one stable id per
// original application message, not a per-phase derivative of it.
func GenerateMsgID() string {
	return uuid.New().String()
}
