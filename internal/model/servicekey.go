package model

import "time"

// Environment tags carried in every service key secret.
const (
	EnvironmentProd = "prod"
	EnvironmentDev  = "dev"
)

// ServiceKey is a credential record issued to a client application. The raw
// secret is never stored; only its SHA-256 hash and a short display prefix
// are persisted. Rotation inserts a new row with the same KeyName and the
// next Generation instead of overwriting the old one.
type ServiceKey struct {
	ID          string     `json:"id" db:"id"`
	KeyName     string     `json:"key_name" db:"key_name"`
	Generation  int        `json:"generation" db:"generation"`
	SecretHash  string     `json:"-" db:"secret_hash"` // SHA-256 hash, never expose
	KeyPrefix   string     `json:"key_prefix" db:"key_prefix"`
	Environment string     `json:"environment" db:"environment"`
	Active      bool       `json:"active" db:"active"`
	CreatedAt   time.Time  `json:"created_at" db:"created_at"`
	ExpiresAt   *time.Time `json:"expires_at" db:"expires_at"`
}

// Usable reports whether the key may authenticate at the given instant:
// it must be active and either never expire or expire strictly after now.
func (k *ServiceKey) Usable(now time.Time) bool {
	if !k.Active {
		return false
	}
	return k.ExpiresAt == nil || k.ExpiresAt.After(now)
}

// IssuedKey is returned exactly once, at issuance time. It is the only
// place the plaintext secret ever appears.
type IssuedKey struct {
	ID          string    `json:"id"`
	KeyName     string    `json:"key_name"`
	ServiceKey  string    `json:"service_key"`
	Environment string    `json:"-"`
	CreatedAt   time.Time `json:"created_at"`
}

// RotatedKey is the result of a zero-downtime rotation: the replacement
// secret and the instant the previous secret stops validating.
type RotatedKey struct {
	NewKey          string    `json:"new_key"`
	OldKeyExpiresAt time.Time `json:"old_key_expires_at"`
}
