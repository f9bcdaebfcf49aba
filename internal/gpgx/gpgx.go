// Package gpgx wraps gpg key inspection and configures git to sign
// commits and tags with a chosen key.
package gpgx

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"relkit/internal/execx"
	"relkit/internal/gitx"
)

var (
	// ErrGPGNotInstalled is returned when the gpg binary is missing.
	ErrGPGNotInstalled = errors.New("gpg not installed")

	// ErrNoSecretKey is returned when no usable secret key exists.
	ErrNoSecretKey = errors.New("no gpg secret key available")

	// ErrKeyExpired is returned when the selected key is expired.
	ErrKeyExpired = errors.New("gpg key is expired")
)

// Key describes a gpg secret key.
type Key struct {
	ID        string
	UserID    string
	CreatedAt time.Time
	ExpiresAt time.Time // zero when the key does not expire
}

// Expired reports whether the key is past its expiry.
func (k Key) Expired() bool {
	return !k.ExpiresAt.IsZero() && time.Now().After(k.ExpiresAt)
}

// Installed reports whether the gpg binary is available.
func Installed() bool {
	_, err := execx.LookPath("gpg")
	return err == nil
}

// Version returns the gpg version string.
func Version(ctx context.Context) (string, error) {
	out, err := execx.RunContext(ctx, execx.DefaultTimeout, "", "gpg", "--version")
	if err != nil {
		return "", err
	}
	lines := execx.ParseLines(out)
	if len(lines) == 0 {
		return "", fmt.Errorf("unexpected gpg --version output")
	}
	return strings.TrimPrefix(lines[0], "gpg (GnuPG) "), nil
}

// SecretKeys lists the available secret keys using gpg's
// machine-readable colon format.
func SecretKeys(ctx context.Context) ([]Key, error) {
	if !Installed() {
		return nil, ErrGPGNotInstalled
	}

	out, err := execx.RunContext(ctx, execx.DefaultTimeout, "",
		"gpg", "--list-secret-keys", "--with-colons")
	if err != nil {
		return nil, err
	}
	return parseColonKeys(out), nil
}

// parseColonKeys parses --with-colons output. Each "sec" record starts
// a key; the following "uid" record names it.
//
// Field layout (gpg doc/DETAILS): type:validity:len:algo:keyid:created:expires:...
func parseColonKeys(out []byte) []Key {
	var keys []Key
	var current *Key

	for _, line := range execx.ParseLines(out) {
		fields := strings.Split(line, ":")
		switch fields[0] {
		case "sec":
			if current != nil {
				keys = append(keys, *current)
			}
			k := Key{}
			if len(fields) > 4 {
				k.ID = fields[4]
			}
			if len(fields) > 5 {
				k.CreatedAt = parseEpoch(fields[5])
			}
			if len(fields) > 6 {
				k.ExpiresAt = parseEpoch(fields[6])
			}
			current = &k
		case "uid":
			if current != nil && current.UserID == "" && len(fields) > 9 {
				current.UserID = fields[9]
			}
		}
	}
	if current != nil {
		keys = append(keys, *current)
	}
	return keys
}

func parseEpoch(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	var epoch int64
	if _, err := fmt.Sscanf(s, "%d", &epoch); err != nil {
		return time.Time{}
	}
	return time.Unix(epoch, 0)
}

// PickKey returns the key matching keyID, or the first usable key when
// keyID is empty.
func PickKey(keys []Key, keyID string) (Key, error) {
	if keyID != "" {
		for _, k := range keys {
			if strings.HasSuffix(k.ID, keyID) || k.ID == keyID {
				if k.Expired() {
					return Key{}, fmt.Errorf("%w: %s", ErrKeyExpired, k.ID)
				}
				return k, nil
			}
		}
		return Key{}, fmt.Errorf("%w: %s", ErrNoSecretKey, keyID)
	}

	for _, k := range keys {
		if !k.Expired() {
			return k, nil
		}
	}
	return Key{}, ErrNoSecretKey
}

// ConfigureGit writes the signing configuration into the repository:
// user.signingkey plus commit.gpgsign and tag.gpgsign.
func ConfigureGit(ctx context.Context, repo *gitx.Repo, key Key) error {
	if err := repo.ConfigSet(ctx, "user.signingkey", key.ID); err != nil {
		return err
	}
	if err := repo.ConfigSet(ctx, "commit.gpgsign", "true"); err != nil {
		return err
	}
	return repo.ConfigSet(ctx, "tag.gpgsign", "true")
}

// SigningReady reports whether the repository is set up for signed
// tags: a signing key configured in git and present in gpg.
func SigningReady(ctx context.Context, repo *gitx.Repo) error {
	keyID := repo.ConfigGet(ctx, "user.signingkey")
	if keyID == "" {
		return fmt.Errorf("%w: user.signingkey not set", ErrNoSecretKey)
	}

	keys, err := SecretKeys(ctx)
	if err != nil {
		return err
	}
	_, err = PickKey(keys, keyID)
	return err
}
