package credential

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"

	"titulaciones/internal/issuer/models"
	"titulaciones/internal/keys"
	titmodels "titulaciones/internal/titulacion/models"
	"titulaciones/pkg/canonicaljson"
	dErrors "titulaciones/pkg/domain-errors"
	"titulaciones/pkg/platform/sentinel"
)

// Detached JWS header with unencoded payload (RFC 7797).
var detachedHeader = map[string]any{
	"alg":  keys.AlgES256K,
	"b64":  false,
	"crit": []string{"b64"},
}

// NonceConsumer spends a c_nonce exactly once.
type NonceConsumer interface {
	Consume(ctx context.Context, value string, now time.Time) error
}

// TokenBinding is what the access token contributes to an issuance.
type TokenBinding struct {
	Subject   string
	CNonce    string
	ExpiresAt time.Time
}

// IssueRequest carries everything one issuance needs. It is built per
// request; nothing in it is shared.
type IssueRequest struct {
	Subject  titmodels.Subject
	Token    TokenBinding
	ProofJWT string
	Now      time.Time
}

// Signer assembles and signs TitulacionDigital credentials.
type Signer struct {
	key        *keys.KeyMaterial
	issuerName string
	proofs     *ProofVerifier
	nonces     NonceConsumer
}

func NewSigner(key *keys.KeyMaterial, issuerName string, proofs *ProofVerifier, nonces NonceConsumer) *Signer {
	return &Signer{
		key:        key,
		issuerName: issuerName,
		proofs:     proofs,
		nonces:     nonces,
	}
}

// IssuerDID returns the DID credentials are issued under.
func (s *Signer) IssuerDID() string {
	return s.key.DID()
}

// Issue verifies the holder proof against the token's nonce, consumes the
// nonce, and returns a fully signed credential. No partially built credential
// is ever returned.
func (s *Signer) Issue(ctx context.Context, req IssueRequest) (*models.VerifiableCredential, error) {
	if req.Token.CNonce == "" || req.Token.Subject == "" {
		return nil, dErrors.New(dErrors.CodeInvalidToken, "token not bound to an offer")
	}
	if req.Now.After(req.Token.ExpiresAt) {
		return nil, dErrors.New(dErrors.CodeInvalidToken, "token has expired")
	}
	if strings.TrimSpace(req.ProofJWT) == "" {
		return nil, dErrors.New(dErrors.CodeInvalidProof, "proof required")
	}

	holder, err := s.proofs.Verify(req.ProofJWT, req.Now)
	if err != nil {
		return nil, err
	}
	if holder.Nonce != req.Token.CNonce {
		return nil, dErrors.New(dErrors.CodeInvalidProof, "proof nonce does not match c_nonce")
	}
	if err := s.nonces.Consume(ctx, holder.Nonce, req.Now); err != nil {
		return nil, translateNonceError(err)
	}

	vc := models.VerifiableCredential{
		Context: []string{models.ContextCredentialsV1, models.ContextSecp256k1},
		ID:      "urn:uuid:" + uuid.NewString(),
		Type:    []string{models.TypeVerifiableCredential, models.TypeTitulacionDigital},
		Issuer: models.Issuer{
			ID:   s.key.DID(),
			Name: s.issuerName,
		},
		IssuanceDate: req.Now.UTC().Format(time.RFC3339),
		CredentialSubject: models.CredentialSubject{
			ID:            holder.HolderID,
			HasTitulacion: req.Subject,
		},
	}

	jws, err := s.sign(vc)
	if err != nil {
		return nil, err
	}
	vc.Proof = &models.Proof{
		Type:               models.ProofTypeSecp256k1,
		Created:            req.Now.UTC().Format(time.RFC3339),
		ProofPurpose:       models.ProofPurposeAssertion,
		VerificationMethod: s.key.VerificationMethod(),
		JWS:                jws,
	}
	return &vc, nil
}

// Verify checks the embedded proof against the issuer key.
func (s *Signer) Verify(vc *models.VerifiableCredential) error {
	if vc == nil || vc.Proof == nil {
		return dErrors.New(dErrors.CodeInvalidProof, "credential has no proof")
	}
	if vc.Proof.VerificationMethod != s.key.VerificationMethod() {
		return dErrors.New(dErrors.CodeInvalidProof, "unknown verification method")
	}

	protected, sig, ok := splitDetached(vc.Proof.JWS)
	if !ok {
		return dErrors.New(dErrors.CodeInvalidProof, "malformed detached jws")
	}
	payload, err := canonicaljson.Marshal(vc.Unsigned())
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to canonicalize credential")
	}
	signingInput := append([]byte(protected+"."), payload...)
	if !keys.Verify(s.key.PublicKey(), signingInput, sig) {
		return dErrors.New(dErrors.CodeInvalidProof, "credential signature invalid")
	}
	return nil
}

// sign produces a detached JWS over the canonical credential without proof.
func (s *Signer) sign(vc models.VerifiableCredential) (string, error) {
	headerJSON, err := json.Marshal(detachedHeader)
	if err != nil {
		return "", dErrors.Wrap(err, dErrors.CodeSigning, "failed to encode jws header")
	}
	payload, err := canonicaljson.Marshal(vc.Unsigned())
	if err != nil {
		return "", dErrors.Wrap(err, dErrors.CodeSigning, "failed to canonicalize credential")
	}

	protected := base64.RawURLEncoding.EncodeToString(headerJSON)
	signingInput := append([]byte(protected+"."), payload...)
	sig, err := s.key.Sign(signingInput)
	if err != nil {
		return "", dErrors.Wrap(err, dErrors.CodeSigning, "failed to sign credential")
	}
	return protected + ".." + base64.RawURLEncoding.EncodeToString(sig), nil
}

func translateNonceError(err error) error {
	switch {
	case errors.Is(err, sentinel.ErrAlreadyUsed):
		return dErrors.Wrap(err, dErrors.CodeAlreadyUsed, "c_nonce already consumed")
	case errors.Is(err, sentinel.ErrExpired):
		return dErrors.Wrap(err, dErrors.CodeExpired, "c_nonce expired")
	case errors.Is(err, sentinel.ErrNotFound):
		return dErrors.Wrap(err, dErrors.CodeInvalidProof, "unknown c_nonce")
	default:
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to consume c_nonce")
	}
}

func splitDetached(jws string) (string, []byte, bool) {
	protected, rest, ok := strings.Cut(jws, "..")
	if !ok || protected == "" || rest == "" {
		return "", nil, false
	}
	sig, err := base64.RawURLEncoding.DecodeString(rest)
	if err != nil {
		return "", nil, false
	}
	var header map[string]any
	raw, err := base64.RawURLEncoding.DecodeString(protected)
	if err != nil || json.Unmarshal(raw, &header) != nil || header["alg"] != keys.AlgES256K {
		return "", nil, false
	}
	return protected, sig, true
}
