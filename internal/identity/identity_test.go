package identity

import (
	"errors"
	"testing"

	"github.com/oksentinel/engine/internal/ocerrors"
)

func TestCreateUserRejectsEmptyFields(t *testing.T) {
	if _, err := CreateUser("", "1234"); !errors.Is(err, ocerrors.ErrInvalidInput) {
		t.Errorf("expected ErrInvalidInput for empty username, got %v", err)
	}
	if _, err := CreateUser("alice", ""); !errors.Is(err, ocerrors.ErrInvalidInput) {
		t.Errorf("expected ErrInvalidInput for empty pin, got %v", err)
	}
}

func TestCreateUserAndUnwrapRoundTrip(t *testing.T) {
	user, err := CreateUser("alice", "1234")
	if err != nil {
		t.Fatalf("CreateUser failed: %v", err)
	}
	if user.Username != "alice" {
		t.Errorf("username = %q, want alice", user.Username)
	}
	if len(user.SealedKey) < sealedKeyMinLen {
		t.Errorf("sealed key too short: %d bytes", len(user.SealedKey))
	}

	priv, err := UnwrapPrivateKey(user.SealedKey, "1234")
	if err != nil {
		t.Fatalf("UnwrapPrivateKey failed: %v", err)
	}
	if priv.PublicKey.Size()*8 != 2048 {
		t.Errorf("unexpected key size: %d bits", priv.PublicKey.Size()*8)
	}
}

func TestVerifyPIN(t *testing.T) {
	user, err := CreateUser("bob", "5678")
	if err != nil {
		t.Fatalf("CreateUser failed: %v", err)
	}

	if !VerifyPIN(user.SealedKey, "5678") {
		t.Error("expected correct PIN to verify")
	}
	if VerifyPIN(user.SealedKey, "0000") {
		t.Error("expected wrong PIN to fail verification")
	}
}

func TestUnwrapPrivateKeyWrongPINFails(t *testing.T) {
	user, err := CreateUser("bob", "5678")
	if err != nil {
		t.Fatalf("CreateUser failed: %v", err)
	}

	_, err = UnwrapPrivateKey(user.SealedKey, "0000")
	if !errors.Is(err, ocerrors.ErrAuthFailed) {
		t.Errorf("expected ErrAuthFailed, got %v", err)
	}
}

func TestUnwrapPrivateKeyTruncatedBlobFails(t *testing.T) {
	_, err := UnwrapPrivateKey([]byte("too short"), "1234")
	if !errors.Is(err, ocerrors.ErrAuthFailed) {
		t.Errorf("expected ErrAuthFailed for truncated blob, got %v", err)
	}
}

func TestUnwrapPrivateKeyTamperedBlobFails(t *testing.T) {
	user, err := CreateUser("carol", "9999")
	if err != nil {
		t.Fatalf("CreateUser failed: %v", err)
	}

	tampered := append([]byte(nil), user.SealedKey...)
	tampered[len(tampered)-1] ^= 0xFF

	_, err = UnwrapPrivateKey(tampered, "9999")
	if !errors.Is(err, ocerrors.ErrAuthFailed) {
		t.Errorf("expected ErrAuthFailed for tampered blob, got %v", err)
	}
}
