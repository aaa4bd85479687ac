package receipt

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"io"

	"github.com/fxamacker/cbor/v2"
	"github.com/veraison/go-cose"

	"github.com/cloudx-io/openmarket/core"
)

// Signer seals COSE_Sign1 (ES256) receipts. It implements engine.Sealer.
type Signer struct {
	key    *ecdsa.PrivateKey
	signer cose.Signer
	clock  core.Clock
	rand   io.Reader
}

// NewSigner generates a fresh P-256 key.
func NewSigner() (*Signer, error) {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("failed to generate key: %w", err)
	}
	return NewSignerFromKey(key)
}

// NewSignerFromKey signs with an existing P-256 key.
func NewSignerFromKey(key *ecdsa.PrivateKey) (*Signer, error) {
	if key == nil || key.Curve != elliptic.P256() {
		return nil, errors.New("receipt key must be ECDSA P-256")
	}
	signer, err := cose.NewSigner(cose.AlgorithmES256, key)
	if err != nil {
		return nil, fmt.Errorf("create signer: %w", err)
	}
	return &Signer{key: key, signer: signer, clock: core.SystemClock, rand: rand.Reader}, nil
}

// WithClock returns a copy of s that stamps statements with clock.
func (s *Signer) WithClock(clock core.Clock) *Signer {
	c := *s
	c.clock = clock
	return &c
}

// PublicKey is the key receipts verify against.
func (s *Signer) PublicKey() *ecdsa.PublicKey {
	return &s.key.PublicKey
}

// PublicKeyPEM returns the public key in PEM format.
func (s *Signer) PublicKeyPEM() (string, error) {
	return EncodePublicKeyPEM(s.PublicKey())
}

// Seal signs the settlement of order over ledger.
func (s *Signer) Seal(order core.Order, ledger []core.Bid) ([]byte, error) {
	nonce, err := s.nonce()
	if err != nil {
		return nil, err
	}

	statement := newStatement(order, ledger, nonce, s.clock.Now().Unix())
	payload, err := cbor.Marshal(statement)
	if err != nil {
		return nil, fmt.Errorf("marshal statement: %w", err)
	}

	msg := cose.NewSign1Message()
	msg.Headers.Protected.SetAlgorithm(cose.AlgorithmES256)
	msg.Payload = payload
	if err := msg.Sign(s.rand, nil, s.signer); err != nil {
		return nil, fmt.Errorf("sign statement: %w", err)
	}

	out, err := msg.MarshalCBOR()
	if err != nil {
		return nil, fmt.Errorf("marshal COSE_Sign1: %w", err)
	}
	return out, nil
}

func (s *Signer) nonce() (string, error) {
	b := make([]byte, 32) // 256 bits of entropy
	if _, err := io.ReadFull(s.rand, b); err != nil {
		return "", fmt.Errorf("failed to generate nonce: %w", err)
	}
	return hex.EncodeToString(b), nil
}

// Verify checks a receipt's signature against pub and returns its
// statement.
func Verify(receipt []byte, pub *ecdsa.PublicKey) (*Statement, error) {
	var msg cose.Sign1Message
	if err := msg.UnmarshalCBOR(receipt); err != nil {
		return nil, fmt.Errorf("parse COSE_Sign1: %w", err)
	}

	alg, err := msg.Headers.Protected.Algorithm()
	if err != nil {
		return nil, fmt.Errorf("read algorithm: %w", err)
	}
	if alg != cose.AlgorithmES256 {
		return nil, fmt.Errorf("unexpected algorithm %v", alg)
	}

	verifier, err := cose.NewVerifier(cose.AlgorithmES256, pub)
	if err != nil {
		return nil, fmt.Errorf("create verifier: %w", err)
	}
	if err := msg.Verify(nil, verifier); err != nil {
		return nil, fmt.Errorf("COSE signature verification failed: %w", err)
	}

	var statement Statement
	if err := cbor.Unmarshal(msg.Payload, &statement); err != nil {
		return nil, fmt.Errorf("parse statement: %w", err)
	}
	if !statement.Consistent() {
		return nil, errors.New("ledger digest does not match bid hashes")
	}
	return &statement, nil
}
