// Package pkpass packages an issued TitulacionDigital credential as a wallet
// pass archive. Manifest signing is left to an external signer.
package pkpass

import (
	"archive/zip"
	"bytes"
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"maps"
	"slices"
	"strings"

	"titulaciones/internal/issuer/models"
	"titulaciones/internal/revocation"
	dErrors "titulaciones/pkg/domain-errors"
)

const (
	ContentType = "application/vnd.apple.pkpass"

	passFile     = "pass.json"
	manifestFile = "manifest.json"
)

// Verifier checks an issued credential's proof.
type Verifier interface {
	Verify(vc *models.VerifiableCredential) error
}

type Config struct {
	TypeIdentifier   string
	TeamIdentifier   string
	OrganizationName string
	BackgroundColor  string
	ForegroundColor  string
}

type Pass struct {
	FormatVersion      int       `json:"formatVersion"`
	PassTypeIdentifier string    `json:"passTypeIdentifier"`
	SerialNumber       string    `json:"serialNumber"`
	TeamIdentifier     string    `json:"teamIdentifier,omitempty"`
	OrganizationName   string    `json:"organizationName"`
	Description        string    `json:"description"`
	BackgroundColor    string    `json:"backgroundColor,omitempty"`
	ForegroundColor    string    `json:"foregroundColor,omitempty"`
	Generic            Structure `json:"generic"`
	Barcodes           []Barcode `json:"barcodes"`
}

type Structure struct {
	PrimaryFields   []Field `json:"primaryFields"`
	SecondaryFields []Field `json:"secondaryFields,omitempty"`
	AuxiliaryFields []Field `json:"auxiliaryFields,omitempty"`
	BackFields      []Field `json:"backFields,omitempty"`
}

type Field struct {
	Key   string `json:"key"`
	Label string `json:"label"`
	Value string `json:"value"`
}

type Barcode struct {
	Format          string `json:"format"`
	Message         string `json:"message"`
	MessageEncoding string `json:"messageEncoding"`
	AltText         string `json:"altText,omitempty"`
}

// Builder turns credentials into pass archives.
type Builder struct {
	cfg      Config
	verifier Verifier
}

// NewBuilder creates a Builder. A nil verifier skips the proof check.
func NewBuilder(cfg Config, verifier Verifier) *Builder {
	return &Builder{cfg: cfg, verifier: verifier}
}

// Build verifies vc and returns the zipped pass with its manifest.
func (b *Builder) Build(vc *models.VerifiableCredential) ([]byte, error) {
	pass, err := b.PassFor(vc)
	if err != nil {
		return nil, err
	}
	passJSON, err := json.MarshalIndent(pass, "", "  ")
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to encode pass")
	}
	archive, err := bundle(map[string][]byte{passFile: passJSON})
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to package pass")
	}
	return archive, nil
}

// PassFor builds the pass.json document for vc.
func (b *Builder) PassFor(vc *models.VerifiableCredential) (*Pass, error) {
	if vc == nil {
		return nil, dErrors.New(dErrors.CodeInvalidRequest, "credential is required")
	}
	t := vc.CredentialSubject.HasTitulacion
	if strings.TrimSpace(t.CodigoTitulacion) == "" || strings.TrimSpace(t.NombreTitulacion) == "" {
		return nil, dErrors.New(dErrors.CodeInvalidRequest, "credential has no titulacion")
	}
	if b.verifier != nil {
		if err := b.verifier.Verify(vc); err != nil {
			return nil, err
		}
	}
	hash, err := revocation.HashOfCredential(vc)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to hash credential")
	}

	serial := vc.ID
	if serial == "" {
		serial = hash.String()
	}
	return &Pass{
		FormatVersion:      1,
		PassTypeIdentifier: b.cfg.TypeIdentifier,
		SerialNumber:       serial,
		TeamIdentifier:     b.cfg.TeamIdentifier,
		OrganizationName:   b.cfg.OrganizationName,
		Description:        t.NombreTitulacion,
		BackgroundColor:    b.cfg.BackgroundColor,
		ForegroundColor:    b.cfg.ForegroundColor,
		Generic: Structure{
			PrimaryFields: []Field{{Key: "titulacion", Label: "Titulación", Value: t.NombreTitulacion}},
			SecondaryFields: []Field{
				{Key: "tipo", Label: "Tipo", Value: string(t.Tipo)},
				{Key: "promocion", Label: "Promoción", Value: t.Promocion},
			},
			AuxiliaryFields: []Field{
				{Key: "notaMedia", Label: "Nota media", Value: t.NotaMedia},
				{Key: "codigo", Label: "Código", Value: t.CodigoTitulacion},
			},
			BackFields: []Field{
				{Key: "emision", Label: "Fecha de emisión", Value: t.FechaHoraEmision},
				{Key: "titular", Label: "Titular", Value: vc.CredentialSubject.ID},
				{Key: "emisor", Label: "Emisor", Value: vc.Issuer.ID},
			},
		},
		Barcodes: []Barcode{{
			Format:          "PKBarcodeFormatQR",
			Message:         hash.String(),
			MessageEncoding: "iso-8859-1",
			AltText:         t.CodigoTitulacion,
		}},
	}, nil
}

// bundle zips files together with a manifest of their SHA-1 digests.
func bundle(files map[string][]byte) ([]byte, error) {
	manifest := make(map[string]string, len(files))
	for name, content := range files {
		sum := sha1.Sum(content)
		manifest[name] = hex.EncodeToString(sum[:])
	}
	manifestJSON, err := json.MarshalIndent(manifest, "", "  ")
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for _, name := range slices.Sorted(maps.Keys(files)) {
		if err := writeEntry(zw, name, files[name]); err != nil {
			return nil, err
		}
	}
	if err := writeEntry(zw, manifestFile, manifestJSON); err != nil {
		return nil, err
	}
	if err := zw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func writeEntry(zw *zip.Writer, name string, content []byte) error {
	f, err := zw.Create(name)
	if err != nil {
		return err
	}
	_, err = f.Write(content)
	return err
}
