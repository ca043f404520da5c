package auth

import (
	"errors"
	"strings"
	"testing"
)

// =========================================================================
// CONSTRUCTION
// =========================================================================

func TestNewPasswordService_Cost(t *testing.T) {
	tests := []struct {
		name    string
		cost    int
		wantErr bool
	}{
		{name: "zero selects default", cost: 0},
		{name: "minimum", cost: 4},
		{name: "too low", cost: 3, wantErr: true},
		{name: "too high", cost: 32, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ps, err := NewPasswordService(tt.cost)
			if (err != nil) != tt.wantErr {
				t.Fatalf("NewPasswordService(%d) error = %v, wantErr %v", tt.cost, err, tt.wantErr)
			}
			if err == nil && tt.cost == 0 && ps.cost != DefaultCost {
				t.Errorf("cost = %d, want %d", ps.cost, DefaultCost)
			}
		})
	}
}

// =========================================================================
// Hash TESTS
// =========================================================================

func TestPasswordHash_OutputLooksBcrypt(t *testing.T) {
	ps := NewPasswordServiceForTest()

	hash, err := ps.Hash("password123")
	if err != nil {
		t.Fatalf("Hash() error = %v", err)
	}
	if !strings.HasPrefix(hash, "$2") {
		t.Errorf("Hash() does not look like a bcrypt hash: %q", hash)
	}
}

func TestPasswordHash_SaltIsRandom(t *testing.T) {
	ps := NewPasswordServiceForTest()

	hash1, _ := ps.Hash("same-password")
	hash2, _ := ps.Hash("same-password")

	if hash1 == hash2 {
		t.Error("Hash() produced identical hashes for the same password")
	}
}

func TestPasswordHash_Length(t *testing.T) {
	ps := NewPasswordServiceForTest()

	if _, err := ps.Hash(strings.Repeat("a", 73)); err == nil {
		t.Error("Hash() should reject passwords longer than 72 bytes")
	}
	if _, err := ps.Hash(strings.Repeat("a", 72)); err != nil {
		t.Errorf("Hash() should accept a 72-byte password, got error: %v", err)
	}
}

// =========================================================================
// Verify / Matches TESTS
// =========================================================================

func TestPasswordVerify(t *testing.T) {
	ps := NewPasswordServiceForTest()
	hash, err := ps.Hash("the-real-password")
	if err != nil {
		t.Fatalf("Hash() error = %v", err)
	}

	if err := ps.Verify(hash, "the-real-password"); err != nil {
		t.Errorf("Verify() correct password error = %v", err)
	}
	if err := ps.Verify(hash, "the-wrong-password"); !errors.Is(err, ErrPasswordMismatch) {
		t.Errorf("Verify() wrong password error = %v, want ErrPasswordMismatch", err)
	}
	if err := ps.Verify(hash, ""); !errors.Is(err, ErrPasswordMismatch) {
		t.Errorf("Verify() empty password error = %v, want ErrPasswordMismatch", err)
	}
}

func TestPasswordVerify_GarbageHash(t *testing.T) {
	ps := NewPasswordServiceForTest()

	err := ps.Verify("not-a-valid-bcrypt-hash", "password")
	if err == nil || errors.Is(err, ErrPasswordMismatch) {
		t.Fatalf("Verify() error = %v, want a hash error", err)
	}
	if ps.Matches("not-a-valid-bcrypt-hash", "password") {
		t.Error("Matches() should be false for a garbage hash")
	}
}

func TestPasswordHashMatches_RoundTrip(t *testing.T) {
	ps := NewPasswordServiceForTest()

	cases := []struct {
		name     string
		password string
	}{
		{"simple alphanumeric", "hello123"},
		{"special characters", "p@$$w0rd!#%"},
		{"unicode", "пароль-密码"},
		{"whitespace", "  leading and trailing  "},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			hash, err := ps.Hash(tc.password)
			if err != nil {
				t.Fatalf("Hash(%q) error = %v", tc.password, err)
			}
			if !ps.Matches(hash, tc.password) {
				t.Errorf("Matches() = false for %q", tc.password)
			}
		})
	}
}
