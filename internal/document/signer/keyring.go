package signer

import (
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/golang-jwt/jwt/v5"
)

// Algorithm names follow the JOSE identifiers.
type Algorithm string

const (
	AlgEdDSA Algorithm = "EdDSA"
	AlgES256 Algorithm = "ES256"
	// AlgHS256 is only used for ephemeral development keys.
	AlgHS256 Algorithm = "HS256"
)

func (a Algorithm) method() (jwt.SigningMethod, error) {
	switch a {
	case AlgEdDSA:
		return jwt.SigningMethodEdDSA, nil
	case AlgES256:
		return jwt.SigningMethodES256, nil
	case AlgHS256:
		return jwt.SigningMethodHS256, nil
	default:
		return nil, fmt.Errorf("unsupported algorithm %q", a)
	}
}

// Key is one entry of the keyring. Historical keys may be verify-only.
type Key struct {
	ID        string
	Algorithm Algorithm
	signKey   any
	verifyKey any
}

// CanSign reports whether the key holds private material.
func (k *Key) CanSign() bool { return k.signKey != nil }

var (
	ErrUnknownKey   = errors.New("signer: unknown key id")
	ErrVerifyOnly   = errors.New("signer: key cannot sign")
	ErrNoActiveKey  = errors.New("signer: no active signing key")
	ErrDuplicateKey = errors.New("signer: duplicate key id")
)

// Keyring holds every key that ever signed a document still in circulation.
type Keyring struct {
	mu     sync.RWMutex
	keys   map[string]*Key
	active string
}

func NewKeyring() *Keyring {
	return &Keyring{keys: make(map[string]*Key)}
}

// Add registers key. The first signing key added becomes active unless
// SetActive picks another one.
func (r *Keyring) Add(k *Key) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.keys[k.ID]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateKey, k.ID)
	}
	r.keys[k.ID] = k
	if r.active == "" && k.CanSign() {
		r.active = k.ID
	}
	return nil
}

// SetActive selects the key used for new signatures.
func (r *Keyring) SetActive(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	k, ok := r.keys[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownKey, id)
	}
	if !k.CanSign() {
		return fmt.Errorf("%w: %s", ErrVerifyOnly, id)
	}
	r.active = id
	return nil
}

func (r *Keyring) Active() (*Key, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.active == "" {
		return nil, ErrNoActiveKey
	}
	return r.keys[r.active], nil
}

func (r *Keyring) Get(id string) (*Key, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	k, ok := r.keys[id]
	return k, ok
}

// IDs lists key ids in lexical order.
func (r *Keyring) IDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.keys))
	for id := range r.keys {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// GenerateEd25519 creates a fresh Ed25519 signing key.
func GenerateEd25519(id string) (*Key, error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("generate ed25519 key: %w", err)
	}
	return &Key{ID: id, Algorithm: AlgEdDSA, signKey: priv, verifyKey: pub}, nil
}

// GenerateES256 creates a fresh P-256 signing key.
func GenerateES256(id string) (*Key, error) {
	priv, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("generate ecdsa key: %w", err)
	}
	return &Key{ID: id, Algorithm: AlgES256, signKey: priv, verifyKey: &priv.PublicKey}, nil
}

// NewHMACKey wraps a shared secret. Development only.
func NewHMACKey(id string, secret []byte) *Key {
	return &Key{ID: id, Algorithm: AlgHS256, signKey: secret, verifyKey: secret}
}

// ParsePEMKey reads a PKCS#8 / SEC1 private key or a PKIX public key.
func ParsePEMKey(id string, data []byte) (*Key, error) {
	block, _ := pem.Decode(data)
	if block == nil {
		return nil, fmt.Errorf("key %s: no PEM block", id)
	}
	switch block.Type {
	case "PRIVATE KEY":
		if priv, err := jwt.ParseEdPrivateKeyFromPEM(data); err == nil {
			edPriv, ok := priv.(ed25519.PrivateKey)
			if !ok {
				return nil, fmt.Errorf("key %s: unexpected ed25519 key type", id)
			}
			return &Key{ID: id, Algorithm: AlgEdDSA, signKey: edPriv, verifyKey: edPriv.Public()}, nil
		}
		fallthrough
	case "EC PRIVATE KEY":
		priv, err := jwt.ParseECPrivateKeyFromPEM(data)
		if err != nil {
			return nil, fmt.Errorf("key %s: %w", id, err)
		}
		if priv.Curve != elliptic.P256() {
			return nil, fmt.Errorf("key %s: ES256 requires P-256", id)
		}
		return &Key{ID: id, Algorithm: AlgES256, signKey: priv, verifyKey: &priv.PublicKey}, nil
	case "PUBLIC KEY":
		if pub, err := jwt.ParseEdPublicKeyFromPEM(data); err == nil {
			return &Key{ID: id, Algorithm: AlgEdDSA, verifyKey: pub}, nil
		}
		pub, err := jwt.ParseECPublicKeyFromPEM(data)
		if err != nil {
			return nil, fmt.Errorf("key %s: %w", id, err)
		}
		if pub.Curve != elliptic.P256() {
			return nil, fmt.Errorf("key %s: ES256 requires P-256", id)
		}
		return &Key{ID: id, Algorithm: AlgES256, verifyKey: pub}, nil
	default:
		return nil, fmt.Errorf("key %s: unsupported PEM block %q", id, block.Type)
	}
}

// LoadDir loads "<kid>.pem" (private) and "<kid>.pub.pem" (public) files.
// When both exist for one kid, the private key wins.
func LoadDir(dir, activeID string) (*Keyring, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read key dir: %w", err)
	}
	byID := make(map[string]*Key)
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, ".pem") {
			continue
		}
		id := strings.TrimSuffix(strings.TrimSuffix(name, ".pem"), ".pub")
		data, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			return nil, fmt.Errorf("read key %s: %w", name, err)
		}
		k, err := ParsePEMKey(id, data)
		if err != nil {
			return nil, err
		}
		if existing, ok := byID[id]; ok && existing.CanSign() {
			continue
		}
		byID[id] = k
	}

	ring := NewKeyring()
	ids := make([]string, 0, len(byID))
	for id := range byID {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		if err := ring.Add(byID[id]); err != nil {
			return nil, err
		}
	}
	if activeID != "" {
		if err := ring.SetActive(activeID); err != nil {
			return nil, err
		}
	}
	return ring, nil
}

// EncodePEM returns the private and public PEM encodings of a signing key.
func EncodePEM(k *Key) (privatePEM, publicPEM []byte, err error) {
	if k.Algorithm == AlgHS256 {
		return nil, nil, errors.New("signer: HMAC keys have no PEM form")
	}
	if !k.CanSign() {
		return nil, nil, ErrVerifyOnly
	}
	privDER, err := x509.MarshalPKCS8PrivateKey(k.signKey)
	if err != nil {
		return nil, nil, fmt.Errorf("marshal private key: %w", err)
	}
	pubDER, err := x509.MarshalPKIXPublicKey(k.verifyKey)
	if err != nil {
		return nil, nil, fmt.Errorf("marshal public key: %w", err)
	}
	privatePEM = pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: privDER})
	publicPEM = pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: pubDER})
	return privatePEM, publicPEM, nil
}
