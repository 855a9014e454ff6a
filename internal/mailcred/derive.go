package mailcred

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
)

// Scheme selects the derivation formula. SchemeSignature is the authoritative
// scheme for new activations; SchemeHash remains for mailboxes provisioned
// before challenge signing was introduced.
type Scheme string

const (
	// SchemeHash derives from the account's stored password hash.
	SchemeHash Scheme = "v1"
	// SchemeSignature derives from a detached signature over a server-issued challenge.
	SchemeSignature Scheme = "v2"
)

// PasswordLength is the fixed length of derived mailbox passwords.
const PasswordLength = 32

var (
	// ErrMissingKeyMaterial indicates the stable secret needed for derivation
	// is absent. There is no random fallback: losing determinism would silently
	// change the effective mailbox password.
	ErrMissingKeyMaterial = errors.New("missing key material")

	// ErrUnknownScheme indicates an unrecognized derivation scheme tag.
	ErrUnknownScheme = errors.New("unknown derivation scheme")
)

// Deriver produces deterministic mailbox passwords from stable secret material.
// It is a pure function over (secret, email, scheme); identical inputs yield
// the identical password on every node.
type Deriver struct {
	salt string
}

// NewDeriver builds a Deriver bound to the deployment-wide derivation salt.
func NewDeriver(salt string) *Deriver {
	return &Deriver{salt: salt}
}

// Derive computes the mailbox password for the given email under the selected
// scheme. The output is alphanumeric and exactly PasswordLength characters,
// matching the character set Dovecot accepts.
func (d *Deriver) Derive(secret []byte, email string, scheme Scheme) (string, error) {
	if len(secret) == 0 {
		return "", ErrMissingKeyMaterial
	}

	canonical := d.salt + "|" + NormalizeEmail(email) + "|" + string(scheme)

	var digest []byte
	switch scheme {
	case SchemeHash:
		material := make([]byte, 0, len(secret)+len(canonical))
		material = append(material, secret...)
		material = append(material, canonical...)
		sum := sha256.Sum256(material)
		digest = sum[:]
	case SchemeSignature:
		mac := hmac.New(sha256.New, secret)
		mac.Write([]byte(canonical))
		digest = mac.Sum(nil)
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownScheme, scheme)
	}

	sum := sha256.Sum256(digest)
	block := sum[:]

	// Base64 stripped of +/= can come up short of 32 usable characters, so
	// keep re-hashing the block until enough alphanumerics accumulate.
	var out strings.Builder
	for out.Len() < PasswordLength {
		out.WriteString(stripNonAlnum(base64.StdEncoding.EncodeToString(block)))
		next := sha256.Sum256(block)
		block = next[:]
	}
	return out.String()[:PasswordLength], nil
}

// DovecotEntry renders the derived password in the form stored in the mail
// user table.
func DovecotEntry(password string) string {
	return "{PLAIN}" + password
}

// NormalizeEmail canonicalizes an address the same way for derivation and
// storage lookups.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func stripNonAlnum(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			b.WriteRune(r)
		}
	}
	return b.String()
}
