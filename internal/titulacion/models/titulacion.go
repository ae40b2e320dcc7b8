package models

import (
	"strings"

	dErrors "titulaciones/pkg/domain-errors"
)

// TipoTitulacion is the academic degree level.
type TipoTitulacion string

const (
	TipoGrado  TipoTitulacion = "Grado"
	TipoMaster TipoTitulacion = "Master"
)

// IsValid reports whether t is a known degree level.
func (t TipoTitulacion) IsValid() bool {
	return t == TipoGrado || t == TipoMaster
}

// Titulacion is an academic degree record as emitted by the university
// registry. Values are immutable once emitted; Revocada is informational and
// the revocation registry remains the source of truth.
type Titulacion struct {
	CodigoTitulacion          string         `json:"codigoTitulacion"`
	Tipo                      TipoTitulacion `json:"tipo"`
	NombreTitulacion          string         `json:"nombreTitulacion"`
	Promocion                 string         `json:"promocion"`
	NotaMedia                 string         `json:"notaMedia"`
	FechaHoraEmision          string         `json:"fechaHoraEmision"`
	Revocada                  bool           `json:"revocada"`
	DecretoLey                string         `json:"decretoLey"`
	DescripcionRegistroFisico string         `json:"descripcionRegistroFisico"`
}

// Validate checks the fields a credential subject cannot do without.
func (t Titulacion) Validate() error {
	if strings.TrimSpace(t.CodigoTitulacion) == "" {
		return dErrors.New(dErrors.CodeInvalidRequest, "codigoTitulacion is required")
	}
	if strings.TrimSpace(t.NombreTitulacion) == "" {
		return dErrors.New(dErrors.CodeInvalidRequest, "nombreTitulacion is required")
	}
	if !t.Tipo.IsValid() {
		return dErrors.New(dErrors.CodeInvalidRequest, "tipo must be Grado or Master")
	}
	return nil
}

// ContentEquals compares the registry-owned fields, ignoring Revocada.
func (t Titulacion) ContentEquals(o Titulacion) bool {
	t.Revocada, o.Revocada = false, false
	return t == o
}

// Subject is the content-addressed part of the record: everything except the
// mutable Revocada flag. It is what a credential's hasTitulacion carries and
// what the revocation hash covers.
type Subject struct {
	CodigoTitulacion          string         `json:"codigoTitulacion"`
	Tipo                      TipoTitulacion `json:"tipo"`
	NombreTitulacion          string         `json:"nombreTitulacion"`
	Promocion                 string         `json:"promocion"`
	NotaMedia                 string         `json:"notaMedia"`
	FechaHoraEmision          string         `json:"fechaHoraEmision"`
	DecretoLey                string         `json:"decretoLey"`
	DescripcionRegistroFisico string         `json:"descripcionRegistroFisico"`
}

// Subject strips the volatile Revocada flag.
func (t Titulacion) Subject() Subject {
	return Subject{
		CodigoTitulacion:          t.CodigoTitulacion,
		Tipo:                      t.Tipo,
		NombreTitulacion:          t.NombreTitulacion,
		Promocion:                 t.Promocion,
		NotaMedia:                 t.NotaMedia,
		FechaHoraEmision:          t.FechaHoraEmision,
		DecretoLey:                t.DecretoLey,
		DescripcionRegistroFisico: t.DescripcionRegistroFisico,
	}
}
