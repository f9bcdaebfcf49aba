package gpgx

import (
	"errors"
	"testing"
	"time"
)

// colonOutput is trimmed gpg --list-secret-keys --with-colons output
// with one non-expiring key and one expired key.
const colonOutput = `sec:u:4096:1:AAAA1111BBBB2222:1500000000::u:::scESC:::+:::23::0:
fpr:::::::::0123456789ABCDEF0123456789ABCDEF01234567:
uid:u::::1500000000::HASH::Release Bot <release@example.com>::::::::::0:
sec:e:4096:1:CCCC3333DDDD4444:1400000000:1500000000:u:::scESC:::+:::23::0:
uid:e::::1400000000::HASH::Old Key <old@example.com>::::::::::0:
`

func TestParseColonKeys(t *testing.T) {
	keys := parseColonKeys([]byte(colonOutput))
	if len(keys) != 2 {
		t.Fatalf("got %d keys, want 2", len(keys))
	}

	if keys[0].ID != "AAAA1111BBBB2222" {
		t.Errorf("keys[0].ID = %q", keys[0].ID)
	}
	if keys[0].UserID != "Release Bot <release@example.com>" {
		t.Errorf("keys[0].UserID = %q", keys[0].UserID)
	}
	if keys[0].Expired() {
		t.Error("keys[0] reported expired")
	}

	if !keys[1].Expired() {
		t.Error("keys[1] not reported expired")
	}
	if keys[1].ExpiresAt != time.Unix(1500000000, 0) {
		t.Errorf("keys[1].ExpiresAt = %v", keys[1].ExpiresAt)
	}
}

func TestPickKey(t *testing.T) {
	keys := parseColonKeys([]byte(colonOutput))

	// Default: first non-expired key.
	k, err := PickKey(keys, "")
	if err != nil {
		t.Fatalf("PickKey() failed: %v", err)
	}
	if k.ID != "AAAA1111BBBB2222" {
		t.Errorf("PickKey() = %s", k.ID)
	}

	// Short ID suffix match.
	k, err = PickKey(keys, "BBBB2222")
	if err != nil {
		t.Fatalf("PickKey(suffix) failed: %v", err)
	}
	if k.ID != "AAAA1111BBBB2222" {
		t.Errorf("PickKey(suffix) = %s", k.ID)
	}

	// Expired key selected explicitly.
	if _, err := PickKey(keys, "CCCC3333DDDD4444"); !errors.Is(err, ErrKeyExpired) {
		t.Errorf("PickKey(expired) error = %v, want ErrKeyExpired", err)
	}

	// Unknown key.
	if _, err := PickKey(keys, "FFFF0000"); !errors.Is(err, ErrNoSecretKey) {
		t.Errorf("PickKey(unknown) error = %v, want ErrNoSecretKey", err)
	}

	// No usable keys at all.
	if _, err := PickKey(keys[1:], ""); !errors.Is(err, ErrNoSecretKey) {
		t.Errorf("PickKey(only expired) error = %v, want ErrNoSecretKey", err)
	}
}
