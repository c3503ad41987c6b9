package artifact

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"docverify/internal/document/encoder"
)

func testInput(t *testing.T) Input {
	t.Helper()
	enc, err := encoder.New("https://verify.example.gov", []byte("secret"))
	require.NoError(t, err)
	code, err := encoder.NewVerificationCode()
	require.NoError(t, err)
	features, err := enc.Encode(encoder.Input{DocumentID: "3f2a9c1e-7b4d-4e0a-9f6b-1c2d3e4f5a6b", VerificationCode: code})
	require.NoError(t, err)
	return Input{
		DocumentID:       "3f2a9c1e-7b4d-4e0a-9f6b-1c2d3e4f5a6b",
		DocumentTitle:    "Birth Certificate",
		IssuedAt:         time.Date(2026, 5, 4, 10, 0, 0, 0, time.UTC),
		IssuerOffice:     "Civil Registry Cape Town",
		VerificationCode: code,
		ContentHash:      "ab12",
		KeyID:            "k1",
		ApplicantData:    map[string]string{"full_name": "Zoë Mokoena", "date_of_birth": "2001-02-03"},
		Features:         features,
	}
}

func TestRenderPDF(t *testing.T) {
	pdf, err := RenderPDF(testInput(t))
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(pdf, []byte("%PDF-")))
	assert.Greater(t, len(pdf), 1000)
}

func TestMemoryStore(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	_, err := s.Get(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, s.Put(ctx, "doc", []byte("%PDF-1.3")))
	data, err := s.Get(ctx, "doc")
	require.NoError(t, err)
	assert.Equal(t, []byte("%PDF-1.3"), data)

	u, err := s.URL(ctx, "doc")
	require.NoError(t, err)
	assert.Empty(t, u)
}

func TestFieldLabel(t *testing.T) {
	assert.Equal(t, "Date Of Birth", fieldLabel("date_of_birth"))
}
