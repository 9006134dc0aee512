package model

import "time"

// AffinityTTL is the sticky-session window: a conversation keeps favouring
// the same account for this long after its most recent success.
const AffinityTTL = 60 * time.Minute

// ConversationAffinity is the cache-resident conversationId -> accountId
// mapping. Updated only on success (see internal/pool).
type ConversationAffinity struct {
	ConversationID string
	AccountID      int64
	UpdatedAt      time.Time
}
