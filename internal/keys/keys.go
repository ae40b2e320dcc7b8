// Package keys holds the issuer's secp256k1 key material. It is the only
// package that touches the private scalar; everything else signs through the
// Signer interface.
package keys

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/btcsuite/btcd/btcec"
	"github.com/btcsuite/btcutil/base58"
)

// AlgES256K is the JOSE identifier for ECDSA over secp256k1 with SHA-256.
const AlgES256K = "ES256K"

const scalarSize = 32

// secp256k1-pub multicodec prefix (0xe7 as unsigned varint).
var secp256k1Multicodec = []byte{0xe7, 0x01}

// Signer produces raw JOSE signatures. Implementations must be safe for
// concurrent use.
type Signer interface {
	Sign(payload []byte) ([]byte, error)
	Algorithm() string
	KeyID() string
}

// KeyMaterial is an immutable secp256k1 key pair plus its did:key identity.
type KeyMaterial struct {
	priv *btcec.PrivateKey
	pub  *btcec.PublicKey
	did  string
}

// FromHex derives key material from a hex-encoded 32-byte scalar. A leading
// "0x" is accepted.
func FromHex(secret string) (*KeyMaterial, error) {
	trimmed := strings.TrimPrefix(strings.TrimSpace(secret), "0x")
	raw, err := hex.DecodeString(trimmed)
	if err != nil {
		return nil, fmt.Errorf("decode issuer key: %w", err)
	}
	return FromBytes(raw)
}

// FromBytes derives key material from a raw 32-byte scalar.
func FromBytes(raw []byte) (*KeyMaterial, error) {
	if len(raw) != scalarSize {
		return nil, fmt.Errorf("issuer key must be %d bytes, got %d", scalarSize, len(raw))
	}
	d := new(big.Int).SetBytes(raw)
	if d.Sign() == 0 || d.Cmp(btcec.S256().N) >= 0 {
		return nil, errors.New("issuer key out of range for secp256k1")
	}
	priv, pub := btcec.PrivKeyFromBytes(btcec.S256(), raw)
	return &KeyMaterial{priv: priv, pub: pub, did: didKey(pub)}, nil
}

// Generate creates fresh key material, for development and tests.
func Generate() (*KeyMaterial, error) {
	raw := make([]byte, scalarSize)
	for {
		if _, err := rand.Read(raw); err != nil {
			return nil, fmt.Errorf("generate issuer key: %w", err)
		}
		km, err := FromBytes(raw)
		if err == nil {
			return km, nil
		}
	}
}

// Sign returns the 64-byte R||S signature over SHA-256(payload).
func (k *KeyMaterial) Sign(payload []byte) ([]byte, error) {
	digest := sha256.Sum256(payload)
	sig, err := k.priv.Sign(digest[:])
	if err != nil {
		return nil, fmt.Errorf("es256k sign: %w", err)
	}
	out := make([]byte, 2*scalarSize)
	sig.R.FillBytes(out[:scalarSize])
	sig.S.FillBytes(out[scalarSize:])
	return out, nil
}

// Algorithm implements Signer.
func (k *KeyMaterial) Algorithm() string {
	return AlgES256K
}

// KeyID is the verification method reference placed in JWS headers and proofs.
func (k *KeyMaterial) KeyID() string {
	return k.VerificationMethod()
}

// PublicKey returns the verification key.
func (k *KeyMaterial) PublicKey() *btcec.PublicKey {
	return k.pub
}

// DID returns the issuer's did:key identifier.
func (k *KeyMaterial) DID() string {
	return k.did
}

// VerificationMethod returns the did:key verification method URL.
func (k *KeyMaterial) VerificationMethod() string {
	return k.did + "#" + strings.TrimPrefix(k.did, "did:key:")
}

// PublicJWK returns the public key as a JWK object.
func (k *KeyMaterial) PublicJWK() map[string]string {
	return PublicJWK(k.pub)
}

// PublicJWK renders a secp256k1 public key as a JWK object.
func PublicJWK(pub *btcec.PublicKey) map[string]string {
	x := make([]byte, scalarSize)
	y := make([]byte, scalarSize)
	pub.X.FillBytes(x)
	pub.Y.FillBytes(y)
	return map[string]string{
		"kty": "EC",
		"crv": "secp256k1",
		"x":   base64.RawURLEncoding.EncodeToString(x),
		"y":   base64.RawURLEncoding.EncodeToString(y),
	}
}

// PublicKeyFromJWK parses the x/y coordinates of a secp256k1 JWK.
func PublicKeyFromJWK(x, y string) (*btcec.PublicKey, error) {
	xb, err := base64.RawURLEncoding.DecodeString(x)
	if err != nil {
		return nil, fmt.Errorf("decode jwk x: %w", err)
	}
	yb, err := base64.RawURLEncoding.DecodeString(y)
	if err != nil {
		return nil, fmt.Errorf("decode jwk y: %w", err)
	}
	px, py := new(big.Int).SetBytes(xb), new(big.Int).SetBytes(yb)
	if !btcec.S256().IsOnCurve(px, py) {
		return nil, errors.New("jwk point is not on secp256k1")
	}
	return &btcec.PublicKey{Curve: btcec.S256(), X: px, Y: py}, nil
}

// Verify checks a 64-byte R||S signature over SHA-256(payload).
func Verify(pub *btcec.PublicKey, payload, sig []byte) bool {
	if pub == nil || len(sig) != 2*scalarSize {
		return false
	}
	digest := sha256.Sum256(payload)
	s := &btcec.Signature{
		R: new(big.Int).SetBytes(sig[:scalarSize]),
		S: new(big.Int).SetBytes(sig[scalarSize:]),
	}
	return s.Verify(digest[:], pub)
}

func didKey(pub *btcec.PublicKey) string {
	buf := make([]byte, 0, len(secp256k1Multicodec)+btcec.PubKeyBytesLenCompressed)
	buf = append(buf, secp256k1Multicodec...)
	buf = append(buf, pub.SerializeCompressed()...)
	return "did:key:z" + base58.Encode(buf)
}

// PublicKeyFromDIDKey resolves a secp256k1 did:key (optionally with a
// fragment) to its public key.
func PublicKeyFromDIDKey(did string) (*btcec.PublicKey, error) {
	did, _, _ = strings.Cut(did, "#")
	encoded, ok := strings.CutPrefix(did, "did:key:z")
	if !ok {
		return nil, fmt.Errorf("not a base58btc did:key: %q", did)
	}
	raw := base58.Decode(encoded)
	if len(raw) != len(secp256k1Multicodec)+btcec.PubKeyBytesLenCompressed ||
		raw[0] != secp256k1Multicodec[0] || raw[1] != secp256k1Multicodec[1] {
		return nil, errors.New("did:key is not a secp256k1 key")
	}
	pub, err := btcec.ParsePubKey(raw[len(secp256k1Multicodec):], btcec.S256())
	if err != nil {
		return nil, fmt.Errorf("parse did:key public key: %w", err)
	}
	return pub, nil
}
