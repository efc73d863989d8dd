// Package order computes and applies chat display ordering.
package order

import (
	"sort"

	"github.com/matheus3301/chatdeck/internal/store"
)

// Compute returns chat ids ordered by descending last-message timestamp.
// Chats with no messages sort last. Ties keep the input order, which the
// store supplies in insertion order.
func Compute(chats []*store.Chat) []string {
	ordered := make([]*store.Chat, len(chats))
	copy(ordered, chats)

	sort.SliceStable(ordered, func(i, j int) bool {
		a, b := ordered[i], ordered[j]
		if (a.LastMessage == nil) != (b.LastMessage == nil) {
			return b.LastMessage == nil
		}
		if a.LastMessage == nil {
			return false
		}
		return a.LastMessageAt > b.LastMessageAt
	})

	ids := make([]string, len(ordered))
	for i, c := range ordered {
		ids[i] = c.ID
	}
	return ids
}
