package mail

import (
	"errors"
	"testing"
)

func TestEncryptionFromString(t *testing.T) {

	cases := []struct {
		in   string
		want Encryption
	}{
		{"", EncryptionNone},
		{"none", EncryptionNone},
		{"NONE", EncryptionNone},
		{"ssl", EncryptionSSL},
		{" SSL ", EncryptionSSL},
		{"starttls", EncryptionSTARTTLS},
		{"StartTLS", EncryptionSTARTTLS},
	}

	for _, c := range cases {
		got, err := EncryptionFromString(c.in)
		if err != nil {
			t.Fatalf("EncryptionFromString(%q) returned error: %v", c.in, err)
		}
		if got != c.want {
			t.Fatalf("EncryptionFromString(%q) = %q, want %q", c.in, got, c.want)
		}
	}

	if _, err := EncryptionFromString("tlsv1"); !errors.Is(err, ErrSMTPEncryption) {
		t.Fatalf("expected ErrSMTPEncryption for unknown mode, got %v", err)
	}
}
