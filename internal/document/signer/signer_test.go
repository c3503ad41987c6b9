package signer

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"docverify/internal/document/canonical"
)

type SignerSuite struct {
	suite.Suite
	content []byte
}

func TestSignerSuite(t *testing.T) {
	suite.Run(t, new(SignerSuite))
}

func (s *SignerSuite) SetupTest() {
	var err error
	s.content, err = canonical.Canonicalize(canonical.Content{
		Version:          canonical.CurrentVersion,
		DocumentID:       "6f1c2e4a-1b7d-4c1e-9a55-0f3f0c8d2b11",
		DocumentType:     "passport",
		IssuedAt:         time.Date(2024, 1, 9, 8, 0, 0, 0, time.UTC),
		IssuerOffice:     "Johannesburg",
		VerificationCode: "ABCDE-FGHJK-7",
		ApplicantDigest:  map[string]string{"full_name": strings.Repeat("a", 64)},
	})
	s.Require().NoError(err)
}

func (s *SignerSuite) ring(keys ...*Key) *Keyring {
	r := NewKeyring()
	for _, k := range keys {
		s.Require().NoError(r.Add(k))
	}
	return r
}

func (s *SignerSuite) TestSignAndVerifyPerAlgorithm() {
	ed, err := GenerateEd25519("ed-2024")
	s.Require().NoError(err)
	ec, err := GenerateES256("ec-2024")
	s.Require().NoError(err)
	hm := NewHMACKey("dev", []byte("development-only-secret"))

	for _, k := range []*Key{ed, ec, hm} {
		s.Run(string(k.Algorithm), func() {
			sg := New(s.ring(k))
			sig, err := sg.Sign(s.content)
			s.Require().NoError(err)
			s.Equal(k.ID, sig.KeyID)
			s.Equal(k.Algorithm, sig.Algorithm)
			s.Equal(canonical.Hash(s.content), sig.ContentHash)

			s.True(sg.Verify(sig.ContentHash, sig.Value, sig.KeyID))
			s.True(sg.VerifyContent(s.content, sig.ContentHash, sig.Value, sig.KeyID))

			// signing twice verifies both times
			again, err := sg.Sign(s.content)
			s.Require().NoError(err)
			s.True(sg.Verify(again.ContentHash, again.Value, again.KeyID))
		})
	}
}

func (s *SignerSuite) TestVerifyFailuresAreFalse() {
	k, err := GenerateEd25519("ed-1")
	s.Require().NoError(err)
	sg := New(s.ring(k))
	sig, err := sg.Sign(s.content)
	s.Require().NoError(err)

	tampered := []byte(strings.Replace(string(s.content), "Johannesburg", "Durban", 1))

	s.False(sg.Verify(sig.ContentHash, sig.Value, "missing-key"))
	s.False(sg.Verify(sig.ContentHash, "%%%not-base64", sig.KeyID))
	s.False(sg.Verify(sig.ContentHash, "", sig.KeyID))
	s.False(sg.Verify(canonical.Hash(tampered), sig.Value, sig.KeyID))
	s.False(sg.VerifyContent(tampered, sig.ContentHash, sig.Value, sig.KeyID))
	s.False(sg.Verify("", sig.Value, sig.KeyID))
}

func (s *SignerSuite) TestRotationKeepsOldSignaturesValid() {
	oldKey, err := GenerateEd25519("2023")
	s.Require().NoError(err)
	newKey, err := GenerateES256("2024")
	s.Require().NoError(err)

	ring := s.ring(oldKey, newKey)
	sg := New(ring)
	oldSig, err := sg.Sign(s.content)
	s.Require().NoError(err)
	s.Equal("2023", oldSig.KeyID)

	s.Require().NoError(ring.SetActive("2024"))
	newSig, err := sg.Sign(s.content)
	s.Require().NoError(err)
	s.Equal("2024", newSig.KeyID)

	s.True(sg.Verify(oldSig.ContentHash, oldSig.Value, oldSig.KeyID))
	s.True(sg.Verify(newSig.ContentHash, newSig.Value, newSig.KeyID))
	s.False(sg.Verify(oldSig.ContentHash, oldSig.Value, "2024"))
}

func (s *SignerSuite) TestNoActiveKey() {
	_, err := New(NewKeyring()).Sign(s.content)
	s.ErrorIs(err, ErrNoActiveKey)
}

func (s *SignerSuite) TestDuplicateKey() {
	k := NewHMACKey("dup", []byte("x"))
	r := s.ring(k)
	s.ErrorIs(r.Add(k), ErrDuplicateKey)
}

func TestLoadDir_RoundTripsPEM(t *testing.T) {
	dir := t.TempDir()
	writeKey := func(k *Key, withPrivate bool) {
		priv, pub, err := EncodePEM(k)
		require.NoError(t, err)
		if withPrivate {
			require.NoError(t, os.WriteFile(filepath.Join(dir, k.ID+".pem"), priv, 0o600))
		}
		require.NoError(t, os.WriteFile(filepath.Join(dir, k.ID+".pub.pem"), pub, 0o600))
	}

	retired, err := GenerateEd25519("2023-ed")
	require.NoError(t, err)
	current, err := GenerateES256("2024-ec")
	require.NoError(t, err)
	writeKey(retired, false)
	writeKey(current, true)

	// signature produced by the retired key before it was taken offline
	content := []byte(canonical.Prefix + `{"x":1}`)
	oldSig, err := New(func() *Keyring { r := NewKeyring(); require.NoError(t, r.Add(retired)); return r }()).Sign(content)
	require.NoError(t, err)

	ring, err := LoadDir(dir, "2024-ec")
	require.NoError(t, err)
	require.Equal(t, []string{"2023-ed", "2024-ec"}, ring.IDs())

	loaded, ok := ring.Get("2023-ed")
	require.True(t, ok)
	require.False(t, loaded.CanSign())

	sg := New(ring)
	require.True(t, sg.Verify(oldSig.ContentHash, oldSig.Value, "2023-ed"))

	sig, err := sg.Sign(content)
	require.NoError(t, err)
	require.Equal(t, "2024-ec", sig.KeyID)
	require.True(t, sg.Verify(sig.ContentHash, sig.Value, sig.KeyID))

	_, err = LoadDir(dir, "2023-ed")
	require.ErrorIs(t, err, ErrVerifyOnly)
}
