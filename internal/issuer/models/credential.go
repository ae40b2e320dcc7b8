package models

import (
	titmodels "titulaciones/internal/titulacion/models"
)

const (
	ContextCredentialsV1 = "https://www.w3.org/2018/credentials/v1"
	ContextSecp256k1     = "https://w3id.org/security/suites/secp256k1-2019/v1"

	TypeVerifiableCredential = "VerifiableCredential"
	TypeTitulacionDigital    = "TitulacionDigital"

	ProofTypeSecp256k1    = "EcdsaSecp256k1Signature2019"
	ProofPurposeAssertion = "assertionMethod"

	FormatLDPVC = "ldp_vc"
)

// VerifiableCredential is a W3C VC data model 1.1 credential. A value is built
// fresh per issuance and never mutated once Proof is set.
type VerifiableCredential struct {
	Context           []string          `json:"@context"`
	ID                string            `json:"id,omitempty"`
	Type              []string          `json:"type"`
	Issuer            Issuer            `json:"issuer"`
	IssuanceDate      string            `json:"issuanceDate"`
	CredentialSubject CredentialSubject `json:"credentialSubject"`
	Proof             *Proof            `json:"proof,omitempty"`
}

// Issuer identifies the signing party. Name is display decoration.
type Issuer struct {
	ID   string `json:"id"`
	Name string `json:"name,omitempty"`
}

// CredentialSubject binds the holder to the degree record.
type CredentialSubject struct {
	ID            string            `json:"id,omitempty"`
	HasTitulacion titmodels.Subject `json:"hasTitulacion"`
}

// Proof is an embedded linked-data style proof carrying a detached JWS.
type Proof struct {
	Type               string `json:"type"`
	Created            string `json:"created"`
	ProofPurpose       string `json:"proofPurpose"`
	VerificationMethod string `json:"verificationMethod"`
	JWS                string `json:"jws"`
}

// Unsigned returns a shallow copy without the proof, the signing input.
func (vc VerifiableCredential) Unsigned() VerifiableCredential {
	vc.Proof = nil
	return vc
}
