package domain

import (
	"encoding/json"
	"testing"
	"time"
)

func TestCredentialFormat_Constants(t *testing.T) {
	tests := []struct {
		format   CredentialFormat
		expected string
	}{
		{FormatJWTVC, "jwt_vc"},
		{FormatJWTVCJSON, "jwt_vc_json"},
		{FormatLDPVC, "ldp_vc"},
		{FormatSDJWTVC, "vc+sd-jwt"},
	}

	for _, tt := range tests {
		t.Run(string(tt.format), func(t *testing.T) {
			if string(tt.format) != tt.expected {
				t.Errorf("Format = %q, want %q", tt.format, tt.expected)
			}
		})
	}

	if FormatJWTVP != "jwt_vp" {
		t.Errorf("FormatJWTVP = %q, want jwt_vp", FormatJWTVP)
	}
}

func TestVerifiableCredential_JSONFieldNames(t *testing.T) {
	vc := VerifiableCredential{
		HolderDID:            "did:key:holder",
		CredentialIdentifier: "urn:credential:123",
		Credential:           "eyJhbGciOiJFUzI1NiJ9.e30.sig",
		Format:               FormatJWTVC,
		IssuerDID:            "did:ebsi:issuer",
		IssuerURL:            "https://issuer.example.com",
		IssuerFriendlyName:   "Example University",
		LogoURL:              "https://issuer.example.com/logo.png",
		BackgroundColor:      "#D3D3D3",
		IssuanceDate:         time.Unix(1700000000, 0).UTC(),
	}

	data, err := json.Marshal(vc)
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}

	var out map[string]interface{}
	if err := json.Unmarshal(data, &out); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}

	for _, key := range []string{"holderDID", "credentialIdentifier", "issuerDID", "issuerURL", "issuerFriendlyName", "logoURL", "backgroundColor", "issuanceDate"} {
		if _, ok := out[key]; !ok {
			t.Errorf("expected JSON key %q", key)
		}
	}
}
