package pairing

import (
	"strings"
)

const (
	// QrServiceNamePrefix keeps generated names apart from the `adb-` names
	// devices advertise for themselves.
	QrServiceNamePrefix = "studio-"

	qrServiceNameLength = 10
	qrPasswordLength    = 12

	// PairingCodeLength is the number of digits a phone shows for code pairing.
	PairingCodeLength = 6

	// Neither alphabet contains characters that need escaping in a WIFI: payload (;,:\").
	serviceNameAlphabet = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789+-"
	passwordAlphabet    = "ABCDEFGHJKLMNPQRSTUVWXYZabcdefghijkmnopqrstuvwxyz23456789!@#$%^&*()"
)

// RandomSource is satisfied by *math/rand.Rand. The same seed yields the same secret.
type RandomSource interface {
	Intn(n int) int
}

// QrCodeSecret is the service name and password conveyed to the phone in a QR code.
type QrCodeSecret struct {
	ServiceName    string
	Password       string
	PairingPayload string
}

// NewQrCodeSecret builds the secret and its `WIFI:T:ADB;S:<name>;P:<password>;;` payload.
func NewQrCodeSecret(serviceName, password string) QrCodeSecret {
	return QrCodeSecret{
		ServiceName:    serviceName,
		Password:       password,
		PairingPayload: "WIFI:T:ADB;S:" + serviceName + ";P:" + password + ";;",
	}
}

// GenerateQrCodeSecret draws the service name first and the password second from rnd.
func GenerateQrCodeSecret(rnd RandomSource) QrCodeSecret {
	name := QrServiceNamePrefix + randomString(rnd, serviceNameAlphabet, qrServiceNameLength)
	password := randomString(rnd, passwordAlphabet, qrPasswordLength)
	return NewQrCodeSecret(name, password)
}

func randomString(rnd RandomSource, alphabet string, length int) string {
	var b strings.Builder
	b.Grow(length)
	for i := 0; i < length; i++ {
		b.WriteByte(alphabet[rnd.Intn(len(alphabet))])
	}
	return b.String()
}

// NormalizePairingCode trims the code and checks it is exactly six ASCII digits.
func NormalizePairingCode(code string) (string, error) {
	code = strings.TrimSpace(code)
	if len(code) != PairingCodeLength {
		return "", ErrInvalidPairingCode
	}
	for _, c := range code {
		if c < '0' || c > '9' {
			return "", ErrInvalidPairingCode
		}
	}
	return code, nil
}
