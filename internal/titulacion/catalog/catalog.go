// Package catalog stands in for the university academic registry. It serves a
// fixed set of degree records; a real registry client can replace it behind
// the Fetcher interface.
package catalog

import (
	"context"
	"fmt"

	"titulaciones/internal/titulacion/models"
	"titulaciones/pkg/platform/sentinel"
)

// Fetcher looks up an emitted degree record by its code.
type Fetcher interface {
	FetchByCode(ctx context.Context, code string) (*models.Titulacion, error)
}

const emitted = "2021-07-12T12:00:00Z"

var uva = []models.Titulacion{
	{
		CodigoTitulacion:          "81639",
		Tipo:                      models.TipoGrado,
		NombreTitulacion:          "Ingenieria Industrial",
		Promocion:                 "2021",
		NotaMedia:                 "6",
		FechaHoraEmision:          emitted,
		DecretoLey:                "a",
		DescripcionRegistroFisico: "b",
	},
	{
		CodigoTitulacion:          "82639",
		Tipo:                      models.TipoGrado,
		NombreTitulacion:          "Filosofia",
		Promocion:                 "2017",
		NotaMedia:                 "5.9",
		FechaHoraEmision:          emitted,
		DecretoLey:                "a",
		DescripcionRegistroFisico: "b",
	},
	{
		CodigoTitulacion:          "83639",
		Tipo:                      models.TipoGrado,
		NombreTitulacion:          "Ingenieria Informatica",
		Promocion:                 "2020",
		NotaMedia:                 "8.6",
		FechaHoraEmision:          emitted,
		DecretoLey:                "a",
		DescripcionRegistroFisico: "b",
	},
}

// Static is an immutable in-process catalog.
type Static struct {
	byCode map[string]models.Titulacion
	order  []string
}

// NewUVa returns the University of Valladolid catalog.
func NewUVa() *Static {
	return NewStatic(uva...)
}

func NewStatic(records ...models.Titulacion) *Static {
	c := &Static{byCode: make(map[string]models.Titulacion, len(records))}
	for _, r := range records {
		if _, dup := c.byCode[r.CodigoTitulacion]; !dup {
			c.order = append(c.order, r.CodigoTitulacion)
		}
		c.byCode[r.CodigoTitulacion] = r
	}
	return c
}

func (c *Static) FetchByCode(_ context.Context, code string) (*models.Titulacion, error) {
	r, ok := c.byCode[code]
	if !ok {
		return nil, fmt.Errorf("titulacion %s: %w", code, sentinel.ErrNotFound)
	}
	return &r, nil
}

// All returns every record in catalog order.
func (c *Static) All() []models.Titulacion {
	out := make([]models.Titulacion, 0, len(c.order))
	for _, code := range c.order {
		out = append(out, c.byCode[code])
	}
	return out
}
