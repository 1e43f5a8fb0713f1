package domain

import (
	"encoding/json"
	"testing"
)

func TestNewUserID(t *testing.T) {
	id1 := NewUserID()
	id2 := NewUserID()

	if id1.ID == "" {
		t.Error("NewUserID() should generate non-empty ID")
	}

	if id1.ID == id2.ID {
		t.Error("NewUserID() should generate unique IDs")
	}
}

func TestUserIDFromString(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"empty string", "", ""},
		{"uuid string", "550e8400-e29b-41d4-a716-446655440000", "550e8400-e29b-41d4-a716-446655440000"},
		{"simple string", "test-id", "test-id"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := UserIDFromString(tt.input)
			if result.String() != tt.expected {
				t.Errorf("UserIDFromString(%q) = %q, want %q", tt.input, result.String(), tt.expected)
			}
		})
	}
}

func TestUser_SecretsNotSerialized(t *testing.T) {
	hash := "$2a$10$hash"
	user := User{
		UUID:         UserIDFromString("user-1"),
		Username:     "alice",
		DID:          "did:key:zDnae",
		PasswordHash: &hash,
		Keys:         []byte(`{"privateKey":{}}`),
	}

	data, err := json.Marshal(user)
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}

	var out map[string]interface{}
	if err := json.Unmarshal(data, &out); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	if _, ok := out["keys"]; ok {
		t.Error("keys must not be serialized")
	}
	if _, ok := out["password_hash"]; ok {
		t.Error("password hash must not be serialized")
	}
	if out["username"] != "alice" {
		t.Errorf("username = %v, want alice", out["username"])
	}
}
