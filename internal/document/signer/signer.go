// Package signer fingerprints canonical document content and signs the
// fingerprint with a rotating keyring.
package signer

import (
	"crypto/subtle"
	"encoding/base64"
	"fmt"

	"docverify/internal/document/canonical"
)

// Signature is what gets stored next to a document record.
type Signature struct {
	ContentHash string
	Value       string
	KeyID       string
	Algorithm   Algorithm
}

type Signer struct {
	keys *Keyring
}

func New(keys *Keyring) *Signer {
	return &Signer{keys: keys}
}

func (s *Signer) Keyring() *Keyring { return s.keys }

// ActiveKeyID returns the id of the signing key, or "" if none is active.
func (s *Signer) ActiveKeyID() string {
	k, err := s.keys.Active()
	if err != nil {
		return ""
	}
	return k.ID
}

// Sign hashes canonical content and signs the hex hash with the active key.
func (s *Signer) Sign(content []byte) (Signature, error) {
	key, err := s.keys.Active()
	if err != nil {
		return Signature{}, err
	}
	method, err := key.Algorithm.method()
	if err != nil {
		return Signature{}, err
	}
	hash := canonical.Hash(content)
	raw, err := method.Sign(hash, key.signKey)
	if err != nil {
		return Signature{}, fmt.Errorf("sign with %s: %w", key.ID, err)
	}
	return Signature{
		ContentHash: hash,
		Value:       base64.RawURLEncoding.EncodeToString(raw),
		KeyID:       key.ID,
		Algorithm:   key.Algorithm,
	}, nil
}

// Verify checks signature over contentHash with the key named keyID. Unknown
// keys, malformed signatures and mismatches all yield false.
func (s *Signer) Verify(contentHash, signature, keyID string) bool {
	key, ok := s.keys.Get(keyID)
	if !ok || contentHash == "" {
		return false
	}
	method, err := key.Algorithm.method()
	if err != nil {
		return false
	}
	raw, err := base64.RawURLEncoding.DecodeString(signature)
	if err != nil || len(raw) == 0 {
		return false
	}
	return method.Verify(contentHash, raw, key.verifyKey) == nil
}

// VerifyContent re-derives the hash from canonical content before checking
// the signature, so a record whose stored hash was edited is also caught.
func (s *Signer) VerifyContent(content []byte, contentHash, signature, keyID string) bool {
	derived := canonical.Hash(content)
	hashOK := subtle.ConstantTimeCompare([]byte(derived), []byte(contentHash)) == 1
	sigOK := s.Verify(contentHash, signature, keyID)
	return hashOK && sigOK
}
