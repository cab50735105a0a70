package envelope

import (
	"crypto/subtle"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/gowebpki/jcs"
	"golang.org/x/crypto/blake2b"

	"github.com/ppiankov/invariant/internal/model"
)

// TokenPrefix marks the token format version
const TokenPrefix = "inv1:"

var (
	// ErrMalformedToken means the token is not an inv1 token
	ErrMalformedToken = errors.New("malformed verification token")
	// ErrTokenMismatch means the token was not minted for these facts and rules
	ErrTokenMismatch = errors.New("verification token does not match facts and rulespec")
	// ErrUnstamped means the envelope carries no token
	ErrUnstamped = errors.New("envelope has no verification token")
)

// Signer mints and verifies tokens with a keyed BLAKE2b-256 MAC
type Signer struct {
	key []byte
}

// NewSigner creates a signer from a KeySize-byte key
func NewSigner(key []byte) (*Signer, error) {
	if len(key) != KeySize {
		return nil, fmt.Errorf("verification key must be %d bytes, got %d", KeySize, len(key))
	}
	return &Signer{key: append([]byte(nil), key...)}, nil
}

// Mint computes the token binding facts to the rulespec they satisfied
func (s *Signer) Mint(facts model.Value, rs *model.Rulespec) (string, error) {
	sum, err := s.mac(facts, rs)
	if err != nil {
		return "", err
	}
	return TokenPrefix + base64.RawURLEncoding.EncodeToString(sum), nil
}

// Verify recomputes the token for the envelope's facts and compares it with
// the stored one. The verified field itself is never part of the MAC input.
func (s *Signer) Verify(env *model.Envelope, rs *model.Rulespec) error {
	if env.Verified == "" {
		return ErrUnstamped
	}
	encoded, ok := strings.CutPrefix(env.Verified, TokenPrefix)
	if !ok {
		return ErrMalformedToken
	}
	got, err := base64.RawURLEncoding.DecodeString(encoded)
	if err != nil || len(got) != blake2b.Size256 {
		return ErrMalformedToken
	}

	want, err := s.mac(env.Facts, rs)
	if err != nil {
		return err
	}
	if subtle.ConstantTimeCompare(got, want) != 1 {
		return ErrTokenMismatch
	}
	return nil
}

func (s *Signer) mac(facts model.Value, rs *model.Rulespec) ([]byte, error) {
	if rs == nil {
		rs = &model.Rulespec{}
	}
	factsJSON, err := canonical(facts)
	if err != nil {
		return nil, fmt.Errorf("canonicalize facts: %w", err)
	}
	rulesJSON, err := canonical(rs)
	if err != nil {
		return nil, fmt.Errorf("canonicalize rulespec: %w", err)
	}

	h, err := blake2b.New256(s.key)
	if err != nil {
		return nil, fmt.Errorf("init mac: %w", err)
	}
	h.Write(factsJSON)
	h.Write([]byte{0})
	h.Write(rulesJSON)
	return h.Sum(nil), nil
}

func canonical(v any) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return jcs.Transform(data)
}
