package store

// SessionRecord is the persisted shape of one session. Refresh and id-refresh
// token hashes are hex-encoded SHA-256 digests; the raw secrets never touch
// Redis.
type SessionRecord struct {
	SessionHandle        string         `json:"sessionHandle"`
	UserID               string         `json:"userId"`
	RefreshTokenHash     string         `json:"refreshTokenHash1"`
	PrevRefreshTokenHash string         `json:"refreshTokenHash2,omitempty"`
	IdRefreshTokenHash   string         `json:"idRefreshTokenHash"`
	SessionData          map[string]any `json:"sessionData"`
	AccessTokenPayload   map[string]any `json:"accessTokenPayload"`
	Grants               map[string]any `json:"grants"`
	TimeCreatedMS        int64          `json:"timeCreated"`
	ExpiryMS             int64          `json:"expiry"`
}
