package crypto

import (
	"bytes"
	"crypto/ecdsa"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"regexp"

	"github.com/ethereum/go-ethereum/crypto"
)

// ErrInvalidAccountID is returned when an account identifier fails validation.
var ErrInvalidAccountID = errors.New("crypto: invalid account id")

const (
	minAccountIDLen = 2
	maxAccountIDLen = 64
)

// Account identifiers are dot-separated segments of lowercase alphanumerics,
// with dashes and underscores allowed inside a segment but never at its edges.
var accountIDPattern = regexp.MustCompile(`^(([a-z\d]+[-_])*[a-z\d]+\.)*([a-z\d]+[-_])*[a-z\d]+$`)

// AccountID names a signer or contract account on the backend network.
type AccountID string

// ParseAccountID validates raw and returns it as an AccountID.
func ParseAccountID(raw string) (AccountID, error) {
	if len(raw) < minAccountIDLen || len(raw) > maxAccountIDLen {
		return "", fmt.Errorf("%w: %q must be between %d and %d characters", ErrInvalidAccountID, raw, minAccountIDLen, maxAccountIDLen)
	}
	if !accountIDPattern.MatchString(raw) {
		return "", fmt.Errorf("%w: %q", ErrInvalidAccountID, raw)
	}
	return AccountID(raw), nil
}

// MustParseAccountID is ParseAccountID for known-good literals.
func MustParseAccountID(raw string) AccountID {
	id, err := ParseAccountID(raw)
	if err != nil {
		panic(err)
	}
	return id
}

func (a AccountID) String() string { return string(a) }

// KeyPair is a signing credential held on behalf of an account. The bridge
// treats it as opaque: it is identified and compared by public key only, and
// handed to the backend client when a mutating call needs a signer.
type KeyPair struct {
	key *ecdsa.PrivateKey
	pub string
}

// GenerateKeyPair creates a fresh secp256k1 key pair.
func GenerateKeyPair() (*KeyPair, error) {
	key, err := ecdsa.GenerateKey(crypto.S256(), rand.Reader)
	if err != nil {
		return nil, err
	}
	return NewKeyPair(key), nil
}

// NewKeyPair wraps an existing private key.
func NewKeyPair(key *ecdsa.PrivateKey) *KeyPair {
	return &KeyPair{key: key, pub: hex.EncodeToString(crypto.CompressPubkey(&key.PublicKey))}
}

// PublicKey returns the hex-encoded compressed public key identifying the pair.
func (kp *KeyPair) PublicKey() string {
	if kp == nil {
		return ""
	}
	return kp.pub
}

// Equal reports whether both pairs wrap the same key material.
func (kp *KeyPair) Equal(other *KeyPair) bool {
	if kp == nil || other == nil {
		return kp == other
	}
	return bytes.Equal(crypto.FromECDSA(kp.key), crypto.FromECDSA(other.key))
}

// Private exposes the underlying key for the backend client's signer.
func (kp *KeyPair) Private() *ecdsa.PrivateKey {
	if kp == nil {
		return nil
	}
	return kp.key
}
