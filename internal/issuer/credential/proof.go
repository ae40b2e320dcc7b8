package credential

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/lestrrat-go/jwx/v2/jwk"

	"titulaciones/internal/issuer/models"
	"titulaciones/internal/keys"
	"titulaciones/pkg/canonicaljson"
	dErrors "titulaciones/pkg/domain-errors"
)

const defaultProofMaxAge = 5 * time.Minute

var proofAlgorithms = []string{
	keys.AlgES256K,
	jwt.SigningMethodES256.Alg(),
	jwt.SigningMethodES384.Alg(),
	jwt.SigningMethodEdDSA.Alg(),
}

// HolderProof is the verified content of a wallet's proof of possession.
type HolderProof struct {
	HolderID string
	Nonce    string
	IssuedAt time.Time
}

type proofClaims struct {
	Nonce string `json:"nonce"`
	jwt.RegisteredClaims
}

// ProofVerifier checks openid4vci-proof+jwt holder proofs.
type ProofVerifier struct {
	audience string
	maxAge   time.Duration
}

// NewProofVerifier expects proofs addressed to audience (the issuer URL).
func NewProofVerifier(audience string, maxAge time.Duration) *ProofVerifier {
	if maxAge <= 0 {
		maxAge = defaultProofMaxAge
	}
	return &ProofVerifier{audience: audience, maxAge: maxAge}
}

// Verify validates header, signature, audience and freshness, and resolves
// the holder identifier: the kid DID when present, otherwise did:jwk.
func (v *ProofVerifier) Verify(proofJWT string, now time.Time) (*HolderProof, error) {
	var holderID string
	parser := jwt.NewParser(
		jwt.WithValidMethods(proofAlgorithms),
		jwt.WithAudience(v.audience),
		jwt.WithIssuedAt(),
		jwt.WithLeeway(30*time.Second),
		jwt.WithTimeFunc(func() time.Time { return now }),
	)

	claims := &proofClaims{}
	_, err := parser.ParseWithClaims(proofJWT, claims, func(token *jwt.Token) (any, error) {
		if typ, _ := token.Header["typ"].(string); typ != models.ProofJWTType {
			return nil, fmt.Errorf("unexpected proof typ %q", typ)
		}
		key, id, err := resolveHolderKey(token.Header)
		if err != nil {
			return nil, err
		}
		holderID = id
		return key, nil
	})
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInvalidProof, "proof jwt rejected")
	}

	if claims.IssuedAt == nil {
		return nil, dErrors.New(dErrors.CodeInvalidProof, "proof jwt missing iat")
	}
	if now.Sub(claims.IssuedAt.Time) > v.maxAge {
		return nil, dErrors.New(dErrors.CodeInvalidProof, "proof jwt too old")
	}
	if claims.Nonce == "" {
		return nil, dErrors.New(dErrors.CodeInvalidProof, "proof jwt missing nonce")
	}

	return &HolderProof{
		HolderID: holderID,
		Nonce:    claims.Nonce,
		IssuedAt: claims.IssuedAt.Time,
	}, nil
}

// resolveHolderKey returns the verification key named by the proof header.
func resolveHolderKey(header map[string]any) (any, string, error) {
	if raw, ok := header["jwk"]; ok {
		jwkJSON, err := json.Marshal(raw)
		if err != nil {
			return nil, "", fmt.Errorf("encode header jwk: %w", err)
		}
		key, err := keyFromJWK(jwkJSON)
		if err != nil {
			return nil, "", err
		}
		canonical, err := canonicaljson.Canonicalize(jwkJSON)
		if err != nil {
			return nil, "", fmt.Errorf("canonicalize header jwk: %w", err)
		}
		return key, "did:jwk:" + base64.RawURLEncoding.EncodeToString(canonical), nil
	}

	kid, _ := header["kid"].(string)
	if kid == "" {
		return nil, "", errors.New("proof header carries neither jwk nor kid")
	}
	did, _, _ := strings.Cut(kid, "#")
	switch {
	case strings.HasPrefix(did, "did:key:"):
		pub, err := keys.PublicKeyFromDIDKey(did)
		if err != nil {
			return nil, "", err
		}
		return pub, did, nil
	case strings.HasPrefix(did, "did:jwk:"):
		jwkJSON, err := base64.RawURLEncoding.DecodeString(strings.TrimPrefix(did, "did:jwk:"))
		if err != nil {
			return nil, "", fmt.Errorf("decode did:jwk: %w", err)
		}
		key, err := keyFromJWK(jwkJSON)
		if err != nil {
			return nil, "", err
		}
		return key, did, nil
	default:
		return nil, "", fmt.Errorf("unsupported kid method %q", did)
	}
}

// keyFromJWK handles secp256k1 through the keys package and delegates every
// other curve to jwx.
func keyFromJWK(jwkJSON []byte) (any, error) {
	var peek struct {
		Kty string `json:"kty"`
		Crv string `json:"crv"`
		X   string `json:"x"`
		Y   string `json:"y"`
		D   string `json:"d"`
	}
	if err := json.Unmarshal(jwkJSON, &peek); err != nil {
		return nil, fmt.Errorf("decode jwk: %w", err)
	}
	if peek.D != "" {
		return nil, errors.New("jwk must not contain private material")
	}
	if peek.Kty == "EC" && peek.Crv == "secp256k1" {
		return keys.PublicKeyFromJWK(peek.X, peek.Y)
	}

	key, err := jwk.ParseKey(jwkJSON)
	if err != nil {
		return nil, fmt.Errorf("parse jwk: %w", err)
	}
	var raw any
	if err := key.Raw(&raw); err != nil {
		return nil, fmt.Errorf("extract jwk key: %w", err)
	}
	return raw, nil
}
