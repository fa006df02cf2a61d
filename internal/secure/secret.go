package secure

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"

	"github.com/awnumar/memguard"
)

// ErrEmptySecret is returned when revealing a secret that holds no value.
var ErrEmptySecret = errors.New("secret is empty")

// Secret keeps an API secret sealed in a memguard enclave. Plaintext only exists
// inside Reveal; String, GoString and MarshalJSON all return the masked form.
type Secret struct {
	enclave     *memguard.Enclave
	fingerprint string
	masked      string
}

// NewSecret seals value. An empty value yields an empty Secret.
func NewSecret(value string) Secret {
	if value == "" {
		return Secret{}
	}
	sum := sha256.Sum256([]byte(value))
	// NewEnclave wipes the buffer it is given.
	buf := []byte(value)
	return Secret{
		enclave:     memguard.NewEnclave(buf),
		fingerprint: hex.EncodeToString(sum[:]),
		masked:      Mask(value),
	}
}

// Reveal decrypts the secret. Callers should keep the result on the stack and
// drop it as soon as the upstream call has been made.
func (s Secret) Reveal() (string, error) {
	if s.enclave == nil {
		return "", ErrEmptySecret
	}
	locked, err := s.enclave.Open()
	if err != nil {
		return "", err
	}
	defer locked.Destroy()
	return string(locked.Bytes()), nil
}

// IsEmpty reports whether the secret holds no value.
func (s Secret) IsEmpty() bool { return s.enclave == nil }

// Fingerprint is a stable sha256 digest used to deduplicate secrets without revealing them.
func (s Secret) Fingerprint() string { return s.fingerprint }

// Equal compares two secrets by fingerprint.
func (s Secret) Equal(other Secret) bool {
	return s.fingerprint != "" && s.fingerprint == other.fingerprint
}

func (s Secret) String() string {
	if s.enclave == nil {
		return ""
	}
	return s.masked
}

func (s Secret) GoString() string { return "secure.Secret(" + s.String() + ")" }

func (s Secret) MarshalJSON() ([]byte, error) { return json.Marshal(s.String()) }

// Mask renders a secret for display: first four and last four characters only.
func Mask(value string) string {
	if len(value) <= 12 {
		return "****"
	}
	return value[:4] + "..." + value[len(value)-4:]
}

// Purge wipes every enclave and locked buffer held by the process.
func Purge() { memguard.Purge() }
