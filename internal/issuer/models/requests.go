package models

import (
	"strings"

	dErrors "titulaciones/pkg/domain-errors"
	"titulaciones/pkg/platform/strutil"
)

// GrantTypePreAuthorizedCode is the OID4VCI pre-authorized code grant.
const GrantTypePreAuthorizedCode = "urn:ietf:params:oauth:grant-type:pre-authorized_code"

// ProofTypeJWT is the only holder proof type accepted.
const ProofTypeJWT = "jwt"

// ProofJWTType is the required typ header of a holder proof.
const ProofJWTType = "openid4vci-proof+jwt"

// CreateOfferRequest asks for a credential offer for one or more titulaciones.
type CreateOfferRequest struct {
	PreAuthorizedCode string   `json:"preAuthorizedCode"`
	CredentialToIssue string   `json:"credentialToIssue"`
	Credentials       []string `json:"credentials,omitempty"`
	UserPinRequired   *bool    `json:"userPinRequired,omitempty"`
}

// CredentialIDs merges the single and list forms, dropping blanks and duplicates.
func (r *CreateOfferRequest) CredentialIDs() []string {
	return strutil.DedupeAndTrim(append([]string{r.CredentialToIssue}, r.Credentials...)...)
}

// Validate checks the request shape.
func (r *CreateOfferRequest) Validate() error {
	if len(r.CredentialIDs()) == 0 {
		return dErrors.New(dErrors.CodeInvalidRequest, "credentialToIssue is required")
	}
	if len(r.PreAuthorizedCode) > 256 {
		return dErrors.New(dErrors.CodeInvalidRequest, "preAuthorizedCode too long")
	}
	return nil
}

// CreateOfferResult is returned to the offer creator.
type CreateOfferResult struct {
	URI               string `json:"uri"`
	Pin               string `json:"pin,omitempty"`
	PreAuthorizedCode string `json:"-"`
}

// CredentialOffer is the JSON object embedded in the offer URI.
type CredentialOffer struct {
	CredentialIssuer string                        `json:"credential_issuer"`
	Credentials      []string                      `json:"credentials"`
	Grants           map[string]PreAuthorizedGrant `json:"grants"`
}

// PreAuthorizedGrant is the pre-authorized_code grant entry of an offer.
type PreAuthorizedGrant struct {
	PreAuthorizedCode string `json:"pre-authorized_code"`
	UserPinRequired   bool   `json:"user_pin_required"`
}

// TokenRequest is the token endpoint input.
type TokenRequest struct {
	GrantType         string `json:"grant_type"`
	PreAuthorizedCode string `json:"pre-authorized_code"`
	UserPin           string `json:"user_pin"`
}

// Validate checks the grant shape.
func (r *TokenRequest) Validate() error {
	if r.GrantType != GrantTypePreAuthorizedCode {
		return dErrors.New(dErrors.CodeInvalidRequest, "unsupported grant_type")
	}
	if strings.TrimSpace(r.PreAuthorizedCode) == "" {
		return dErrors.New(dErrors.CodeInvalidRequest, "pre-authorized_code is required")
	}
	return nil
}

// TokenResult is the token endpoint output.
type TokenResult struct {
	AccessToken     string `json:"access_token"`
	TokenType       string `json:"token_type"`
	ExpiresIn       int    `json:"expires_in"`
	CNonce          string `json:"c_nonce"`
	CNonceExpiresIn int    `json:"c_nonce_expires_in"`
}

// CredentialRequest is the credential endpoint input.
type CredentialRequest struct {
	Format               string        `json:"format"`
	Types                []string      `json:"types,omitempty"`
	CredentialIdentifier string        `json:"credential_identifier,omitempty"`
	Proof                *ProofRequest `json:"proof,omitempty"`
}

// ProofRequest carries the holder's proof of possession.
type ProofRequest struct {
	ProofType string `json:"proof_type"`
	JWT       string `json:"jwt"`
}

// CredentialResult is the credential endpoint output.
type CredentialResult struct {
	Format     string               `json:"format"`
	Credential VerifiableCredential `json:"credential"`
}
