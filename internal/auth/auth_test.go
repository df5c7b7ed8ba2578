package auth

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"testing"
	"time"
)

func newTestService(t *testing.T) *Service {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	privPEM := pem.EncodeToMemory(&pem.Block{Type: "RSA PRIVATE KEY", Bytes: x509.MarshalPKCS1PrivateKey(key)})
	pubDER, err := x509.MarshalPKIXPublicKey(&key.PublicKey)
	if err != nil {
		t.Fatalf("marshal public key: %v", err)
	}
	pubPEM := pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: pubDER})

	s, err := NewService(privPEM, pubPEM, time.Hour)
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	return s
}

func TestIssueAndValidate(t *testing.T) {
	s := newTestService(t)
	token, err := s.IssueAccessToken(42)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	claims, err := s.ValidateToken(token)
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if claims.OrganizerID != 42 || claims.Subject != "42" {
		t.Fatalf("unexpected claims %+v", claims)
	}
}

func TestValidateRejectsExpiredAndForeign(t *testing.T) {
	s := newTestService(t)
	token, err := s.IssueAccessToken(1)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	s.now = func() time.Time { return time.Now().Add(2 * time.Hour) }
	if _, err := s.ValidateToken(token); err == nil {
		t.Fatalf("expected expired token to be rejected")
	}

	other := newTestService(t)
	foreign, _ := other.IssueAccessToken(1)
	s.now = time.Now
	if _, err := s.ValidateToken(foreign); err == nil {
		t.Fatalf("expected token signed by another key to be rejected")
	}
	if _, err := s.ValidateToken(""); err == nil {
		t.Fatalf("expected empty token to be rejected")
	}
}

func TestNewServiceRequiresKeys(t *testing.T) {
	if _, err := NewService(nil, []byte("x"), time.Hour); err == nil {
		t.Fatalf("expected missing private key to fail")
	}
	if _, err := NewService([]byte("x"), nil, time.Hour); err == nil {
		t.Fatalf("expected missing public key to fail")
	}
}
