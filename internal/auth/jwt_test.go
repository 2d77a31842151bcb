package auth

import (
	"testing"
	"time"
)

func TestIssueParseRoundTrip(t *testing.T) {
	signed, exp, err := Issue("user-1", RoleLecturer, "cheqr", "test-key", time.Hour)
	if err != nil {
		t.Fatalf("Issue() error = %v", err)
	}
	if !exp.After(time.Now()) {
		t.Errorf("Issue() expiry %v not in the future", exp)
	}
	claims, err := Parse(signed, "test-key", "cheqr")
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if claims.Subject != "user-1" || claims.Role != RoleLecturer {
		t.Errorf("Parse() claims = %+v", claims)
	}
}

func TestParseRejects(t *testing.T) {
	signed, _, err := Issue("user-1", RoleStudent, "cheqr", "test-key", time.Hour)
	if err != nil {
		t.Fatalf("Issue() error = %v", err)
	}
	expired, _, err := Issue("user-1", RoleStudent, "cheqr", "test-key", -time.Minute)
	if err != nil {
		t.Fatalf("Issue() error = %v", err)
	}

	tests := []struct {
		name   string
		token  string
		key    string
		issuer string
	}{
		{name: "wrong key", token: signed, key: "other-key", issuer: "cheqr"},
		{name: "wrong issuer", token: signed, key: "test-key", issuer: "someone-else"},
		{name: "expired", token: expired, key: "test-key", issuer: "cheqr"},
		{name: "garbage", token: "not.a.jwt", key: "test-key", issuer: "cheqr"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Parse(tt.token, tt.key, tt.issuer); err == nil {
				t.Error("Parse() succeeded, want error")
			}
		})
	}
}

func TestPasswordHashing(t *testing.T) {
	hash, err := HashPassword("s3cret-pass")
	if err != nil {
		t.Fatalf("HashPassword() error = %v", err)
	}
	if !CheckPassword(hash, "s3cret-pass") {
		t.Error("CheckPassword() rejected correct password")
	}
	if CheckPassword(hash, "wrong") {
		t.Error("CheckPassword() accepted wrong password")
	}
}
