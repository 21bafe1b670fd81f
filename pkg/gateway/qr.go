package gateway

import (
	"encoding/base64"
	"fmt"
	"strings"

	qrcode "github.com/skip2/go-qrcode"
)

// qrPayload covers the response shapes gateways use for QR data. Newer
// versions nest it under "qrcode", older ones inline base64/code fields.
type qrPayload struct {
	Base64 string `json:"base64"`
	Code   string `json:"code"`
	QRCode *struct {
		Base64 string `json:"base64"`
		Code   string `json:"code"`
	} `json:"qrcode"`
}

func (p qrPayload) value() string {
	if p.Base64 != "" {
		return p.Base64
	}
	if p.QRCode != nil {
		if p.QRCode.Base64 != "" {
			return p.QRCode.Base64
		}
		if p.QRCode.Code != "" {
			return p.QRCode.Code
		}
	}
	return p.Code
}

const dataURIPrefix = "data:image/png;base64,"

// NormalizeQR converts whatever QR representation the gateway produced into a
// data-URI PNG, so callers never branch on format:
//
//   - an already-prefixed data URI passes through unchanged
//   - a raw base64 PNG gets the data-URI prefix
//   - a bare pairing code is rendered to a QR PNG locally
//
// An empty payload normalizes to "".
func NormalizeQR(payload string) (string, error) {
	payload = strings.TrimSpace(payload)
	if payload == "" {
		return "", nil
	}
	if strings.HasPrefix(payload, "data:") {
		return payload, nil
	}
	if isBase64Image(payload) {
		return dataURIPrefix + payload, nil
	}

	// Pairing-code payloads (e.g. "2@abc,def,...") are not themselves images;
	// render one so the API contract stays uniform.
	png, err := qrcode.Encode(payload, qrcode.Medium, 256)
	if err != nil {
		return "", fmt.Errorf("rendering pairing code QR: %w", err)
	}
	return dataURIPrefix + base64.StdEncoding.EncodeToString(png), nil
}

// isBase64Image reports whether payload plausibly is a base64-encoded image:
// it must decode cleanly and carry more bytes than any pairing code would.
func isBase64Image(payload string) bool {
	decoded, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return false
	}
	return len(decoded) > 128
}
