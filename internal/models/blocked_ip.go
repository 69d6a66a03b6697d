package models

import "time"

// BlockedIP is an administrative or threat-response block on an address.
// The login pre-check only reads this table; blocks are produced elsewhere.
type BlockedIP struct {
	ID        string     `json:"id"`
	Address   string     `json:"address"`
	Reason    string     `json:"reason"`
	BlockedAt time.Time  `json:"blocked_at"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"` // nil means indefinite
}

// Active reports whether the block is in force at the given instant.
func (b *BlockedIP) Active(now time.Time) bool {
	return b.ExpiresAt == nil || now.Before(*b.ExpiresAt)
}
