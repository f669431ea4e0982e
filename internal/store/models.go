package store

import (
	"sort"
	"time"
)

// KeyStatusActive is the only status under which a key validates; any other
// value is treated as expired.
const KeyStatusActive = "active"

// Customer is one row per customer; the keysystems document is embedded as a
// JSON column, preserving the nested customer -> keysystem -> session -> key
// layout of the upstream store.
type Customer struct {
	ID                uint          `gorm:"primaryKey" json:"-"`
	Username          string        `json:"username"`
	DiscordID         string        `gorm:"uniqueIndex;column:discord_id" json:"discord_id"`
	APIToken          string        `gorm:"uniqueIndex;column:api_token" json:"-"`
	APITokenCreatedAt time.Time     `gorm:"column:api_token_created_at" json:"api_token_created_at"`
	CreatedAt         time.Time     `json:"created_at"`
	Keysystems        KeysystemList `gorm:"serializer:json" json:"keysystems"`
}

// KeysystemList is the embedded keysystems document
type KeysystemList []Keysystem

// Keysystem is a named license pool. Its identifier is globally unique
// across all customers; lookups by id alone are unambiguous.
type Keysystem struct {
	ID             string             `json:"_id"`
	Name           string             `json:"name"`
	Active         bool               `json:"active"`
	CreatedAt      time.Time          `json:"createdAt"`
	MaxKeyPerforum int                `json:"maxKeyPerforum"`
	KeyTier        string             `json:"keyTier"`
	KeyCooldown    int                `json:"keyCooldown"`
	MaxKeyLeft     int                `json:"maxKeyLeft"`
	WebhookURL     string             `json:"webhookUrl"`
	Checkpoints    []Checkpoint       `json:"checkpoints"`
	Owner          string             `json:"owner"`
	Sessions       map[string]*KeySet `json:"sessions"`
}

// Checkpoint contents are internal-only; responses expose the count alone.
type Checkpoint struct {
	Name string `json:"name"`
	URL  string `json:"url"`
}

// KeySet is an ordered sequence of keys grouped under a session
type KeySet struct {
	Keys []Key `json:"keys"`
}

// Key is the unit of validation. HWID is nil until first successful use;
// OwnerID is the consuming end-user's identity, distinct from the
// keysystem owner.
type Key struct {
	Value     string     `json:"value"`
	Status    string     `json:"status"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
	HWID      *string    `json:"hwid"`
	OwnerID   *string    `json:"owner_id,omitempty"`
}

// SessionIDs returns the session identifiers in lexicographic order. The
// sessions map carries no stored order, so the scan order over sessions is
// fixed here: sorted session id, then key slice order within each session.
func (ks *Keysystem) SessionIDs() []string {
	ids := make([]string, 0, len(ks.Sessions))
	for id := range ks.Sessions {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// FindKey returns a pointer to the first key whose value matches, following
// the documented scan order, or nil when no key matches.
func (ks *Keysystem) FindKey(value string) *Key {
	for _, sid := range ks.SessionIDs() {
		set := ks.Sessions[sid]
		if set == nil {
			continue
		}
		for i := range set.Keys {
			if set.Keys[i].Value == value {
				return &set.Keys[i]
			}
		}
	}
	return nil
}

// HasHWID reports whether the key is already bound to a device
func (k *Key) HasHWID() bool {
	return k.HWID != nil && *k.HWID != ""
}
