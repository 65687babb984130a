package common

import (
	"encoding/hex"
	"errors"
	"fmt"
	"testing"
)

// ---------- MakeRandHexString ----------

func TestMakeRandHexString_LengthAndHex(t *testing.T) {
	const n = 16
	s, err := MakeRandHexString(n)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(s) != n*2 {
		t.Fatalf("expected hex length %d, got %d", n*2, len(s))
	}
	if _, err := hex.DecodeString(s); err != nil {
		t.Fatalf("string is not valid hex: %v", err)
	}
}

func TestMakeRandHexString_ZeroSize(t *testing.T) {
	s, err := MakeRandHexString(0)
	if err != nil {
		t.Fatalf("unexpected error for size=0: %v", err)
	}
	if s != "" {
		t.Fatalf("expected empty string for size=0, got %q", s)
	}
}

func TestMakeRandHexString_Distinct(t *testing.T) {
	const n = 32
	a, err := MakeRandHexString(n)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	b, err := MakeRandHexString(n)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if a == b {
		t.Fatalf("two MakeRandHexString(%d) results are identical", n)
	}
}

// ---------- RandomBytes ----------

func TestRandomBytes_Length(t *testing.T) {
	const n = 24
	buf, err := RandomBytes(n)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(buf) != n {
		t.Fatalf("expected length %d, got %d", n, len(buf))
	}
}

// ---------- WipeByteArray ----------

func TestWipeByteArray_ZerosBuffer(t *testing.T) {
	buf := []byte{1, 2, 3, 4, 5}
	WipeByteArray(buf)
	for i, v := range buf {
		if v != 0 {
			t.Fatalf("expected buf[%d]==0, got %d", i, v)
		}
	}
}

func TestWipeByteArray_NilSafe(t *testing.T) {
	WipeByteArray(nil)
}

// ---------- errors ----------

func TestRestoreErrors_Distinguishable(t *testing.T) {
	if ErrInvalidBackup.Error() != "Invalid backup file" {
		t.Fatalf("unexpected message: %q", ErrInvalidBackup.Error())
	}
	if ErrIntegrity.Error() != "Backup integrity check failed" {
		t.Fatalf("unexpected message: %q", ErrIntegrity.Error())
	}

	wrapped := fmt.Errorf("restore: %w", ErrEncryptionMismatch)
	if !errors.Is(wrapped, ErrEncryptionMismatch) {
		t.Fatalf("wrapped error must match its sentinel")
	}
	if errors.Is(wrapped, ErrIntegrity) || errors.Is(wrapped, ErrInvalidBackup) {
		t.Fatalf("restore sentinels must not match each other")
	}
}
