package totp

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"image/png"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
)

const qrSize = 256

// Enrollment holds a freshly generated TOTP secret together with its
// provisioning URI rendered as a scannable QR code (PNG data URL).
type Enrollment struct {
	Secret string
	URI    string
	QRCode string
}

// Generate creates a new TOTP secret for the account and renders the
// provisioning QR code authenticator apps scan.
func Generate(issuer, accountName string) (*Enrollment, error) {
	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      issuer,
		AccountName: accountName,
		Period:      30,
		SecretSize:  20,
		Algorithm:   otp.AlgorithmSHA1,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to generate totp secret: %w", err)
	}

	img, err := key.Image(qrSize, qrSize)
	if err != nil {
		return nil, fmt.Errorf("failed to render qr code: %w", err)
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("failed to encode qr code: %w", err)
	}

	return &Enrollment{
		Secret: key.Secret(),
		URI:    key.URL(),
		QRCode: "data:image/png;base64," + base64.StdEncoding.EncodeToString(buf.Bytes()),
	}, nil
}

// Validate checks a 6-digit code against the secret using the standard
// one-step tolerance window.
func Validate(code, secret string) bool {
	return totp.Validate(code, secret)
}
