package revocation

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"

	issuermodels "titulaciones/internal/issuer/models"
	titmodels "titulaciones/internal/titulacion/models"
	"titulaciones/pkg/canonicaljson"
	dErrors "titulaciones/pkg/domain-errors"
)

// Salt is appended to the canonical content before digesting.
const Salt = "uva"

// ContentHash addresses a credential's content on the registry.
type ContentHash [32]byte

// String renders the hash as 0x-prefixed lowercase hex.
func (h ContentHash) String() string {
	return "0x" + hex.EncodeToString(h[:])
}

// ParseHash accepts the String form (the 0x prefix is optional).
func ParseHash(s string) (ContentHash, error) {
	var h ContentHash
	raw, err := hex.DecodeString(strings.TrimPrefix(strings.TrimPrefix(s, "0x"), "0X"))
	if err != nil || len(raw) != len(h) {
		return h, dErrors.New(dErrors.CodeInvalidRequest, "hash must be 32 bytes of hex")
	}
	copy(h[:], raw)
	return h, nil
}

// HashOf digests the revocation-relevant content of a degree: the subject
// without the revocada flag, under its credential key, canonically encoded.
func HashOf(subject titmodels.Subject) (ContentHash, error) {
	payload, err := canonicaljson.Marshal(map[string]any{"hasTitulacion": subject})
	if err != nil {
		return ContentHash{}, fmt.Errorf("canonicalize subject: %w", err)
	}
	return sha256.Sum256(append(payload, Salt...)), nil
}

// HashOfRecord hashes a stored record.
func HashOfRecord(record titmodels.Titulacion) (ContentHash, error) {
	return HashOf(record.Subject())
}

// HashOfCredential hashes an issued credential. The id, issuer, dates,
// holder binding and proof do not contribute.
func HashOfCredential(vc *issuermodels.VerifiableCredential) (ContentHash, error) {
	return HashOf(vc.CredentialSubject.HasTitulacion)
}
