package model

import "time"

// ReasonNoCredentials marks a sync that found no active credential.
const ReasonNoCredentials = "no_credentials"

// SyncResult is the outcome of one user sync.
type SyncResult struct {
	Synced      bool   `json:"synced"`
	NewListings int    `json:"new_listings"`
	TotalSeen   int    `json:"total_seen"`
	Reason      string `json:"reason,omitempty"`
}

// SyncStatus is what a caller sees about the freshness of a user's inventory.
type SyncStatus struct {
	LastSyncAt      *time.Time `json:"last_sync_at"`
	LatestFirstSeen *time.Time `json:"latest_first_seen"`
	TotalListings   int64      `json:"total_listings"`
}
