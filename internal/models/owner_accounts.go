package models

import "time"

// OwnerAccount is the account a verified proof is attached to.
type OwnerAccount struct {
	ID        string    `json:"id" db:"id"`
	SteamID   string    `json:"steamId" db:"steam_id"` // STEAM_<sessionId>
	CreatedAt time.Time `json:"createdAt" db:"created_at"`
}
