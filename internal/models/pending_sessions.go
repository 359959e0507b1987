package models

import "time"

// PendingSession is a proof request that was issued but not yet verified.
type PendingSession struct {
	SessionID  string    `json:"sessionId"`
	ProviderID string    `json:"providerId,omitempty"`
	Mode       string    `json:"mode"`
	RequestURL string    `json:"requestUrl"`
	ExpiresAt  time.Time `json:"expiresAt"`
	CreatedAt  time.Time `json:"createdAt"`
}
