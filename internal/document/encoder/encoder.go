// Package encoder derives the printed security features of a document from its
// identifiers. Everything here is a pure function of its inputs.
package encoder

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strings"

	"golang.org/x/crypto/hkdf"
)

const (
	maxDocumentIDLen = 64
	maxCodeLen       = 32
	hashPrefixLen    = 8
	microprintBytes  = 8
)

var ErrInvalidInput = errors.New("encoder: invalid input")

type Input struct {
	DocumentID       string
	VerificationCode string
	// ContentHash is optional; when set its prefix is bound into the QR payload.
	ContentHash string
}

type Features struct {
	QRPayload       string
	BarcodeSymbol   string
	WatermarkText   string
	MicroprintToken string
}

type Encoder struct {
	baseURL *url.URL
	secret  []byte
}

// New builds an encoder for QR payloads rooted at baseURL.
func New(baseURL string, microprintSecret []byte) (*Encoder, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("encoder: invalid base url %q", baseURL)
	}
	if len(microprintSecret) == 0 {
		return nil, errors.New("encoder: microprint secret is required")
	}
	return &Encoder{baseURL: u, secret: microprintSecret}, nil
}

func (e *Encoder) Encode(in Input) (Features, error) {
	docID := strings.TrimSpace(in.DocumentID)
	if docID == "" || len(docID) > maxDocumentIDLen {
		return Features{}, fmt.Errorf("%w: document id", ErrInvalidInput)
	}
	if len(in.VerificationCode) > maxCodeLen || !ValidCode(in.VerificationCode) {
		return Features{}, fmt.Errorf("%w: verification code", ErrInvalidInput)
	}
	code := FormatCode(in.VerificationCode)

	hashPrefix := ""
	if in.ContentHash != "" {
		if len(in.ContentHash) < hashPrefixLen || !isHex(in.ContentHash) {
			return Features{}, fmt.Errorf("%w: content hash", ErrInvalidInput)
		}
		hashPrefix = strings.ToLower(in.ContentHash[:hashPrefixLen])
	}

	token, err := e.microprint(docID, code)
	if err != nil {
		return Features{}, err
	}

	return Features{
		QRPayload:       e.qrPayload(code, hashPrefix),
		BarcodeSymbol:   barcodeSymbol(docID, code),
		WatermarkText:   "OFFICIAL • " + code + " • NOT VALID WITHOUT VERIFICATION",
		MicroprintToken: token,
	}, nil
}

func (e *Encoder) qrPayload(code, hashPrefix string) string {
	u := *e.baseURL
	u.Path = strings.TrimRight(u.Path, "/") + "/verify/" + code
	u.RawQuery = ""
	if hashPrefix != "" {
		u.RawQuery = url.Values{"h": {hashPrefix}}.Encode()
	}
	return u.String()
}

// ParseQRPayload extracts the verification code and optional hash prefix
// from a scanned payload. Payloads pointing at another host are accepted as
// long as the path has the /verify/<code> shape, since verifiers may scan
// documents printed by a sibling deployment.
func ParseQRPayload(payload string) (code, hashPrefix string, err error) {
	u, err := url.Parse(strings.TrimSpace(payload))
	if err != nil {
		return "", "", fmt.Errorf("%w: qr payload", ErrInvalidInput)
	}
	idx := strings.LastIndex(u.Path, "/verify/")
	if idx < 0 {
		return "", "", fmt.Errorf("%w: qr payload path", ErrInvalidInput)
	}
	raw := u.Path[idx+len("/verify/"):]
	if raw == "" || strings.Contains(raw, "/") {
		return "", "", fmt.Errorf("%w: qr payload code", ErrInvalidInput)
	}
	hashPrefix = u.Query().Get("h")
	if hashPrefix != "" && (len(hashPrefix) != hashPrefixLen || !isHex(hashPrefix)) {
		return "", "", fmt.Errorf("%w: qr payload hash", ErrInvalidInput)
	}
	return FormatCode(raw), strings.ToLower(hashPrefix), nil
}

func barcodeSymbol(docID, code string) string {
	short := strings.ToUpper(strings.ReplaceAll(docID, "-", ""))
	if len(short) > 8 {
		short = short[:8]
	}
	return "DV|" + code + "|" + short
}

func (e *Encoder) microprint(docID, code string) (string, error) {
	r := hkdf.New(sha256.New, e.secret, []byte(docID), []byte("microprint:"+code))
	out := make([]byte, microprintBytes)
	if _, err := io.ReadFull(r, out); err != nil {
		return "", fmt.Errorf("encoder: microprint: %w", err)
	}
	return strings.ToUpper(hex.EncodeToString(out)), nil
}

func isHex(s string) bool {
	for i := range len(s) {
		c := s[i]
		if !('0' <= c && c <= '9' || 'a' <= c && c <= 'f' || 'A' <= c && c <= 'F') {
			return false
		}
	}
	return true
}
