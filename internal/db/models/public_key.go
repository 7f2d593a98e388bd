package models

import "time"

// PublicKey represents an SSH public key attached to a user account.
// Fingerprint is the SHA256 form produced at upload time; the raw key
// material is preserved verbatim in PublicKeyText.
type PublicKey struct {
	ID            string
	UserID        string
	PublicKeyText string
	Fingerprint   string
	KeyType       string // e.g. "ssh-ed25519", "ssh-rsa"
	KeySize       int    // bits; 0 when not derivable from the key type
	Comment       string
	CreatedAt     time.Time
	// Joined fields (not stored in public_keys table)
	Username string
}
