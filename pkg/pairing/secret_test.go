package pairing

import (
	"math/rand"
	"strings"
	"testing"
)

func TestGenerateQrCodeSecretDeterministic(t *testing.T) {
	a := GenerateQrCodeSecret(rand.New(rand.NewSource(10)))
	b := GenerateQrCodeSecret(rand.New(rand.NewSource(10)))
	if a != b {
		t.Fatalf("same seed produced different secrets: %+v vs %+v", a, b)
	}
	c := GenerateQrCodeSecret(rand.New(rand.NewSource(11)))
	if a == c {
		t.Fatalf("different seeds produced the same secret %+v", a)
	}
}

func TestGenerateQrCodeSecretShape(t *testing.T) {
	rnd := rand.New(rand.NewSource(1))
	for i := 0; i < 50; i++ {
		s := GenerateQrCodeSecret(rnd)
		if !strings.HasPrefix(s.ServiceName, QrServiceNamePrefix) {
			t.Fatalf("service name %q lacks prefix", s.ServiceName)
		}
		if n := len(s.ServiceName) - len(QrServiceNamePrefix); n != qrServiceNameLength {
			t.Fatalf("service name suffix length = %d", n)
		}
		if len(s.Password) != qrPasswordLength {
			t.Fatalf("password length = %d", len(s.Password))
		}
		want := "WIFI:T:ADB;S:" + s.ServiceName + ";P:" + s.Password + ";;"
		if s.PairingPayload != want {
			t.Fatalf("payload = %q, want %q", s.PairingPayload, want)
		}
		if strings.ContainsAny(s.ServiceName+s.Password, ";:,\\\"") {
			t.Fatalf("secret %+v contains payload delimiters", s)
		}
		if classifyServiceName(s.ServiceName) != ServiceTypeQrCode {
			t.Fatalf("generated name %q not classified as qr code", s.ServiceName)
		}
	}
}

func TestNewQrCodeSecretPayload(t *testing.T) {
	s := NewQrCodeSecret("studio-+8nkUqLWv2", "R7)i3aUHnMnX")
	if s.PairingPayload != "WIFI:T:ADB;S:studio-+8nkUqLWv2;P:R7)i3aUHnMnX;;" {
		t.Fatalf("payload = %q", s.PairingPayload)
	}
}

func TestNormalizePairingCode(t *testing.T) {
	valid := map[string]string{
		"123456":   "123456",
		" 012345 ": "012345",
	}
	for in, want := range valid {
		got, err := NormalizePairingCode(in)
		if err != nil || got != want {
			t.Fatalf("NormalizePairingCode(%q) = %q, %v", in, got, err)
		}
	}
	for _, in := range []string{"", "12345", "1234567", "12a456", "١٢٣٤٥٦"} {
		if _, err := NormalizePairingCode(in); err != ErrInvalidPairingCode {
			t.Fatalf("NormalizePairingCode(%q) error = %v", in, err)
		}
	}
}
