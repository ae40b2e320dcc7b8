package pkpass

import (
	"archive/zip"
	"bytes"
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"titulaciones/internal/issuer/models"
	"titulaciones/internal/revocation"
	titmodels "titulaciones/internal/titulacion/models"
	dErrors "titulaciones/pkg/domain-errors"
)

type verifierFunc func(*models.VerifiableCredential) error

func (f verifierFunc) Verify(vc *models.VerifiableCredential) error { return f(vc) }

func informaticaCredential() *models.VerifiableCredential {
	return &models.VerifiableCredential{
		ID:     "urn:uuid:7f1d",
		Issuer: models.Issuer{ID: "did:key:zIssuer"},
		CredentialSubject: models.CredentialSubject{
			ID: "did:key:zHolder",
			HasTitulacion: titmodels.Subject{
				CodigoTitulacion: "83639",
				Tipo:             titmodels.TipoGrado,
				NombreTitulacion: "Ingenieria Informatica",
				Promocion:        "2021",
				NotaMedia:        "8.6",
				FechaHoraEmision: "2021-07-12T12:00:00Z",
			},
		},
	}
}

func readArchive(t *testing.T, archive []byte) map[string][]byte {
	t.Helper()
	zr, err := zip.NewReader(bytes.NewReader(archive), int64(len(archive)))
	require.NoError(t, err)
	files := make(map[string][]byte)
	for _, f := range zr.File {
		rc, err := f.Open()
		require.NoError(t, err)
		content, err := io.ReadAll(rc)
		require.NoError(t, err)
		require.NoError(t, rc.Close())
		files[f.Name] = content
	}
	return files
}

func TestBuild(t *testing.T) {
	b := NewBuilder(Config{TypeIdentifier: "pass.es.uva.titulacion", OrganizationName: "UVa"}, nil)
	vc := informaticaCredential()

	archive, err := b.Build(vc)
	require.NoError(t, err)

	files := readArchive(t, archive)
	require.Contains(t, files, "pass.json")
	require.Contains(t, files, "manifest.json")
	assert.Len(t, files, 2)

	var manifest map[string]string
	require.NoError(t, json.Unmarshal(files["manifest.json"], &manifest))
	sum := sha1.Sum(files["pass.json"])
	assert.Equal(t, hex.EncodeToString(sum[:]), manifest["pass.json"])

	var pass Pass
	require.NoError(t, json.Unmarshal(files["pass.json"], &pass))
	assert.Equal(t, 1, pass.FormatVersion)
	assert.Equal(t, "pass.es.uva.titulacion", pass.PassTypeIdentifier)
	assert.Equal(t, "urn:uuid:7f1d", pass.SerialNumber)
	assert.Equal(t, "Ingenieria Informatica", pass.Generic.PrimaryFields[0].Value)

	hash, err := revocation.HashOfCredential(vc)
	require.NoError(t, err)
	require.Len(t, pass.Barcodes, 1)
	assert.Equal(t, hash.String(), pass.Barcodes[0].Message)
}

func TestPassForSerialFallsBackToHash(t *testing.T) {
	vc := informaticaCredential()
	vc.ID = ""
	pass, err := NewBuilder(Config{}, nil).PassFor(vc)
	require.NoError(t, err)
	assert.Equal(t, pass.Barcodes[0].Message, pass.SerialNumber)
}

func TestBuildRejections(t *testing.T) {
	t.Run("nil credential", func(t *testing.T) {
		_, err := NewBuilder(Config{}, nil).Build(nil)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidRequest))
	})

	t.Run("no titulacion", func(t *testing.T) {
		vc := informaticaCredential()
		vc.CredentialSubject.HasTitulacion = titmodels.Subject{}
		_, err := NewBuilder(Config{}, nil).Build(vc)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidRequest))
	})

	t.Run("proof does not verify", func(t *testing.T) {
		reject := verifierFunc(func(*models.VerifiableCredential) error {
			return dErrors.New(dErrors.CodeInvalidProof, "credential signature invalid")
		})
		_, err := NewBuilder(Config{}, reject).Build(informaticaCredential())
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidProof))
	})
}
