package service

import (
	"crypto/sha256"
	"crypto/subtle"
)

// AdminAuth checks the single statically configured admin credential.
type AdminAuth struct {
	digest [sha256.Size]byte
	set    bool
}

// NewAdminAuth returns a checker for key. An empty key rejects everything.
func NewAdminAuth(key string) *AdminAuth {
	if key == "" {
		return &AdminAuth{}
	}
	return &AdminAuth{digest: sha256.Sum256([]byte(key)), set: true}
}

// Check reports whether presented matches the admin key. Both sides are
// hashed first so the comparison takes the same time whatever their length.
func (a *AdminAuth) Check(presented string) bool {
	if !a.set || presented == "" {
		return false
	}
	got := sha256.Sum256([]byte(presented))
	return subtle.ConstantTimeCompare(got[:], a.digest[:]) == 1
}
