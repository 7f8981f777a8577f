package server

import "testing"

func TestVerifySignature(t *testing.T) {
	payload := []byte(`{"ref":"refs/heads/main"}`)
	secret := "test-secret-at-least-32-chars-long-here"

	testCases := []struct {
		name      string
		payload   []byte
		signature string
		secret    string
		expected  bool
	}{
		{"valid", payload, MakeTestSignature(payload, secret), secret, true},
		{"empty signature", payload, "", secret, false},
		{"missing prefix", payload, "abcdef", secret, false},
		{"wrong secret", payload, MakeTestSignature(payload, "another-secret-32-chars-long-xxxxx"), secret, false},
		{"tampered payload", []byte(`{"ref":"refs/heads/evil"}`), MakeTestSignature(payload, secret), secret, false},
		{"garbage digest", payload, SignaturePrefix + "nothex", secret, false},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if got := VerifySignature(tc.payload, tc.signature, tc.secret); got != tc.expected {
				t.Errorf("VerifySignature = %v, expected %v", got, tc.expected)
			}
		})
	}
}
