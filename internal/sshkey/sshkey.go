// Package sshkey parses OpenSSH public key lines (authorized_keys format)
// into the normalized form groupkeeper stores: algorithm, SHA256 fingerprint,
// bit size, and comment. Parsing is strict so invalid key material is
// rejected at upload time rather than discovered by consumers.
package sshkey

import (
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/rsa"
	"fmt"
	"strings"

	"golang.org/x/crypto/ssh"
)

// ParsedKey is the result of parsing one public key line
type ParsedKey struct {
	Type        string // e.g. "ssh-ed25519", "ssh-rsa"
	Fingerprint string // SHA256 form, e.g. "SHA256:..."
	Size        int    // bits; 0 when not derivable
	Comment     string
	Normalized  string // "type base64 comment", options stripped
}

// Parse validates a raw public key line and returns its normalized form.
// Leading authorized_keys options (from="...", command="...") are accepted
// and dropped.
func Parse(raw string) (*ParsedKey, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, fmt.Errorf("empty public key")
	}
	if strings.ContainsAny(raw, "\n\r") {
		return nil, fmt.Errorf("public key must be a single line")
	}

	key, comment, _, _, err := ssh.ParseAuthorizedKey([]byte(raw))
	if err != nil {
		return nil, fmt.Errorf("invalid public key: %w", err)
	}

	parsed := &ParsedKey{
		Type:        key.Type(),
		Fingerprint: ssh.FingerprintSHA256(key),
		Size:        bitSize(key),
		Comment:     comment,
	}

	normalized := strings.TrimSpace(string(ssh.MarshalAuthorizedKey(key)))
	if comment != "" {
		normalized += " " + comment
	}
	parsed.Normalized = normalized

	return parsed, nil
}

// bitSize derives the key size in bits where the underlying algorithm
// exposes one
func bitSize(key ssh.PublicKey) int {
	cryptoKey, ok := key.(ssh.CryptoPublicKey)
	if !ok {
		return 0
	}
	switch k := cryptoKey.CryptoPublicKey().(type) {
	case *rsa.PublicKey:
		return k.N.BitLen()
	case *ecdsa.PublicKey:
		return k.Curve.Params().BitSize
	case ed25519.PublicKey:
		return 256
	default:
		return 0
	}
}
