package encoder

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
)

type EncoderSuite struct {
	suite.Suite
	enc  *Encoder
	code string
}

func TestEncoderSuite(t *testing.T) {
	suite.Run(t, new(EncoderSuite))
}

func (s *EncoderSuite) SetupTest() {
	enc, err := New("https://verify.example.gov/", []byte("microprint-secret"))
	s.Require().NoError(err)
	s.enc = enc
	code, err := NewVerificationCode()
	s.Require().NoError(err)
	s.code = code
}

func (s *EncoderSuite) input() Input {
	return Input{
		DocumentID:       "3f2a9c1e-7b4d-4e0a-9f6b-1c2d3e4f5a6b",
		VerificationCode: s.code,
		ContentHash:      "ABCDEF0123456789abcdef",
	}
}

func (s *EncoderSuite) TestEncode() {
	s.Run("features embed the code", func() {
		f, err := s.enc.Encode(s.input())
		s.Require().NoError(err)

		s.Equal("https://verify.example.gov/verify/"+s.code+"?h=abcdef01", f.QRPayload)
		s.Equal("DV|"+s.code+"|3F2A9C1E", f.BarcodeSymbol)
		s.Equal("OFFICIAL • "+s.code+" • NOT VALID WITHOUT VERIFICATION", f.WatermarkText)
		s.Len(f.MicroprintToken, 16)
		s.Equal(strings.ToUpper(f.MicroprintToken), f.MicroprintToken)
	})

	s.Run("deterministic for the same input", func() {
		a, err := s.enc.Encode(s.input())
		s.Require().NoError(err)
		b, err := s.enc.Encode(s.input())
		s.Require().NoError(err)
		s.Equal(a, b)
	})

	s.Run("microprint depends on secret and document", func() {
		base, err := s.enc.Encode(s.input())
		s.Require().NoError(err)

		other, err := New("https://verify.example.gov", []byte("another-secret"))
		s.Require().NoError(err)
		f, err := other.Encode(s.input())
		s.Require().NoError(err)
		s.NotEqual(base.MicroprintToken, f.MicroprintToken)

		in := s.input()
		in.DocumentID = "doc-2"
		f, err = s.enc.Encode(in)
		s.Require().NoError(err)
		s.NotEqual(base.MicroprintToken, f.MicroprintToken)
	})

	s.Run("hash prefix omitted when no content hash", func() {
		in := s.input()
		in.ContentHash = ""
		f, err := s.enc.Encode(in)
		s.Require().NoError(err)
		s.NotContains(f.QRPayload, "?")
	})

	s.Run("lowercase code input is normalized", func() {
		in := s.input()
		in.VerificationCode = strings.ToLower(strings.ReplaceAll(s.code, "-", ""))
		f, err := s.enc.Encode(in)
		s.Require().NoError(err)
		s.Contains(f.QRPayload, "/verify/"+s.code)
	})
}

func (s *EncoderSuite) TestEncodeRejectsBadInput() {
	cases := map[string]func(*Input){
		"empty document id":  func(in *Input) { in.DocumentID = " " },
		"long document id":   func(in *Input) { in.DocumentID = strings.Repeat("a", 65) },
		"empty code":         func(in *Input) { in.VerificationCode = "" },
		"long code":          func(in *Input) { in.VerificationCode = strings.Repeat("A", 33) },
		"bad check symbol":   func(in *Input) { in.VerificationCode = flipCheck(s.code) },
		"non hex hash":       func(in *Input) { in.ContentHash = "zzzzzzzzzz" },
		"short content hash": func(in *Input) { in.ContentHash = "abc" },
	}
	for name, mutate := range cases {
		s.Run(name, func() {
			in := s.input()
			mutate(&in)
			_, err := s.enc.Encode(in)
			s.ErrorIs(err, ErrInvalidInput)
		})
	}
}

func (s *EncoderSuite) TestParseQRPayload() {
	f, err := s.enc.Encode(s.input())
	s.Require().NoError(err)

	code, h, err := ParseQRPayload(f.QRPayload)
	s.Require().NoError(err)
	s.Equal(s.code, code)
	s.Equal("abcdef01", h)

	_, _, err = ParseQRPayload("https://verify.example.gov/other/" + s.code)
	s.ErrorIs(err, ErrInvalidInput)

	_, _, err = ParseQRPayload("https://verify.example.gov/verify/" + s.code + "?h=xyz")
	s.ErrorIs(err, ErrInvalidInput)
}

func TestNew_RejectsBadConfig(t *testing.T) {
	_, err := New("not a url", []byte("s"))
	assert.Error(t, err)
	_, err = New("https://verify.example.gov", nil)
	assert.Error(t, err)
}

func TestVerificationCode(t *testing.T) {
	seen := map[string]bool{}
	for range 200 {
		code, err := NewVerificationCode()
		require.NoError(t, err)
		require.Len(t, code, 13)
		assert.Equal(t, byte('-'), code[5])
		assert.Equal(t, byte('-'), code[11])
		assert.True(t, ValidCode(code), code)
		seen[code] = true
	}
	assert.Greater(t, len(seen), 195)
}

func TestNormalizeCode(t *testing.T) {
	assert.Equal(t, "01ABC", NormalizeCode(" o-i ab c"))
	assert.Equal(t, "011", NormalizeCode("OlI"))
}

func TestValidCode_SingleSymbolChangeDetected(t *testing.T) {
	code, err := NewVerificationCode()
	require.NoError(t, err)
	n := NormalizeCode(code)

	for i := range codeDigits {
		for j := range len(crockford) {
			if crockford[j] == n[i] {
				continue
			}
			mutated := n[:i] + string(crockford[j]) + n[i+1:]
			assert.False(t, ValidCode(mutated), "substitution at %d not detected", i)
		}
	}
}

func TestRender(t *testing.T) {
	pngMagic := []byte{0x89, 'P', 'N', 'G'}

	qrPNG, err := RenderQRPNG("https://verify.example.gov/verify/ABCDE-FGHJK-M", 256)
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(qrPNG, pngMagic))

	barPNG, err := RenderBarcodePNG("DV|ABCDE-FGHJK-M|3F2A9C1E", 400, 80)
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(barPNG, pngMagic))
}

func flipCheck(code string) string {
	n := NormalizeCode(code)
	last := n[len(n)-1]
	for i := range len(checkSymbols) {
		if checkSymbols[i] != last {
			return n[:len(n)-1] + string(checkSymbols[i])
		}
	}
	return n
}
