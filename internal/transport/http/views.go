package http

import (
	"time"

	"seraphix/internal/store"
)

// Response is the standard success envelope:
// {"message": "...", "data": {...}, "executionTime": "1.23ms"}
type Response struct {
	Message       string      `json:"message"`
	Data          interface{} `json:"data,omitempty"`
	ExecutionTime string      `json:"executionTime"`
}

// KeysystemView is the response-safe projection of a keysystem. Checkpoint
// contents are reduced to a count; key material (values, HWIDs, sessions)
// never appears in any response.
type KeysystemView struct {
	ID             string    `json:"_id"`
	Name           string    `json:"name"`
	MaxKeyPerforum int       `json:"maxKeyPerforum"`
	KeyTier        string    `json:"keyTier"`
	KeyCooldown    int       `json:"keyCooldown"`
	MaxKeyLeft     int       `json:"maxKeyLeft"`
	WebhookURL     string    `json:"webhookUrl"`
	Active         bool      `json:"active"`
	CreatedAt      time.Time `json:"createdAt"`
	Checkpoints    int       `json:"checkpoints"`
	Owner          string    `json:"owner"`
}

// NewKeysystemView projects a keysystem document into its public shape
func NewKeysystemView(ks *store.Keysystem) KeysystemView {
	return KeysystemView{
		ID:             ks.ID,
		Name:           ks.Name,
		MaxKeyPerforum: ks.MaxKeyPerforum,
		KeyTier:        ks.KeyTier,
		KeyCooldown:    ks.KeyCooldown,
		MaxKeyLeft:     ks.MaxKeyLeft,
		WebhookURL:     ks.WebhookURL,
		Active:         ks.Active,
		CreatedAt:      ks.CreatedAt,
		Checkpoints:    len(ks.Checkpoints),
		Owner:          ks.Owner,
	}
}

// ProfileView is the caller-profile projection; the API token itself is
// never echoed back.
type ProfileView struct {
	Username        string    `json:"username"`
	DiscordID       string    `json:"discord_id"`
	CreatedAt       time.Time `json:"created_at"`
	APIKeyCreatedAt time.Time `json:"api_key_created_at"`
}

// NewProfileView projects a customer into its public shape
func NewProfileView(c *store.Customer) ProfileView {
	return ProfileView{
		Username:        c.Username,
		DiscordID:       c.DiscordID,
		CreatedAt:       c.CreatedAt,
		APIKeyCreatedAt: c.APITokenCreatedAt,
	}
}

// StatusView is the liveness/info response
type StatusView struct {
	Message       string  `json:"message"`
	Version       string  `json:"version"`
	Timestamp     string  `json:"timestamp"`
	Uptime        float64 `json:"uptime"`
	Environment   string  `json:"environment"`
	ExecutionTime string  `json:"executionTime"`
}
