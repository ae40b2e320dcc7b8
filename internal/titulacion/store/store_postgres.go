package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"titulaciones/internal/titulacion/models"
	"titulaciones/pkg/platform/sentinel"
	"titulaciones/pkg/platform/tx"
)

// PostgresTitulacionStore persists records in the titulaciones table.
type PostgresTitulacionStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresTitulacionStore {
	return &PostgresTitulacionStore{db: db}
}

const titulacionColumns = `
	codigo_titulacion, tipo, nombre_titulacion, promocion, nota_media,
	fecha_hora_emision, revocada, decreto_ley, descripcion_registro_fisico
`

// Seed inserts missing records in one transaction; existing rows are kept.
func (s *PostgresTitulacionStore) Seed(ctx context.Context, records []models.Titulacion) error {
	query := `
		INSERT INTO titulaciones (` + titulacionColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (codigo_titulacion) DO NOTHING
	`
	return tx.Run(ctx, s.db, func(ctx context.Context) error {
		conn := tx.Conn(ctx, s.db)
		for _, r := range records {
			_, err := conn.ExecContext(ctx, query,
				r.CodigoTitulacion,
				string(r.Tipo),
				r.NombreTitulacion,
				r.Promocion,
				r.NotaMedia,
				r.FechaHoraEmision,
				r.Revocada,
				r.DecretoLey,
				r.DescripcionRegistroFisico,
			)
			if err != nil {
				return fmt.Errorf("seed titulacion %s: %w", r.CodigoTitulacion, err)
			}
		}
		return nil
	})
}

func (s *PostgresTitulacionStore) List(ctx context.Context) ([]models.Titulacion, error) {
	query := `SELECT ` + titulacionColumns + ` FROM titulaciones ORDER BY codigo_titulacion`
	rows, err := tx.Conn(ctx, s.db).QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query titulaciones: %w", err)
	}
	defer rows.Close()

	var out []models.Titulacion
	for rows.Next() {
		r, err := scanTitulacion(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate titulaciones: %w", err)
	}
	return out, nil
}

func (s *PostgresTitulacionStore) FindByCode(ctx context.Context, code string) (*models.Titulacion, error) {
	query := `SELECT ` + titulacionColumns + ` FROM titulaciones WHERE codigo_titulacion = $1`
	r, err := scanTitulacion(tx.Conn(ctx, s.db).QueryRowContext(ctx, query, code))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("titulacion %s: %w", code, sentinel.ErrNotFound)
	}
	return r, err
}

// Update only touches the row when some registry-owned field differs, so
// RowsAffected doubles as the "changed" answer.
func (s *PostgresTitulacionStore) Update(ctx context.Context, record models.Titulacion) (bool, error) {
	query := `
		UPDATE titulaciones SET
			tipo = $2, nombre_titulacion = $3, promocion = $4, nota_media = $5,
			fecha_hora_emision = $6, decreto_ley = $7, descripcion_registro_fisico = $8,
			updated_at = NOW()
		WHERE codigo_titulacion = $1
		  AND (tipo, nombre_titulacion, promocion, nota_media,
		       fecha_hora_emision, decreto_ley, descripcion_registro_fisico)
		      IS DISTINCT FROM ($2, $3, $4, $5, $6, $7, $8)
	`
	var changed bool
	err := tx.Run(ctx, s.db, func(ctx context.Context) error {
		res, err := tx.Conn(ctx, s.db).ExecContext(ctx, query,
			record.CodigoTitulacion,
			string(record.Tipo),
			record.NombreTitulacion,
			record.Promocion,
			record.NotaMedia,
			record.FechaHoraEmision,
			record.DecretoLey,
			record.DescripcionRegistroFisico,
		)
		if err != nil {
			return fmt.Errorf("update titulacion: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("update titulacion rows affected: %w", err)
		}
		if n > 0 {
			changed = true
			return nil
		}
		_, err = s.FindByCode(ctx, record.CodigoTitulacion)
		return err
	})
	if err != nil {
		return false, err
	}
	return changed, nil
}

func (s *PostgresTitulacionStore) MarkRevoked(ctx context.Context, code string) error {
	res, err := tx.Conn(ctx, s.db).ExecContext(ctx,
		`UPDATE titulaciones SET revocada = TRUE, updated_at = NOW() WHERE codigo_titulacion = $1`, code)
	if err != nil {
		return fmt.Errorf("mark titulacion revoked: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("titulacion %s: %w", code, sentinel.ErrNotFound)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTitulacion(row rowScanner) (*models.Titulacion, error) {
	var (
		r    models.Titulacion
		tipo string
	)
	err := row.Scan(
		&r.CodigoTitulacion,
		&tipo,
		&r.NombreTitulacion,
		&r.Promocion,
		&r.NotaMedia,
		&r.FechaHoraEmision,
		&r.Revocada,
		&r.DecretoLey,
		&r.DescripcionRegistroFisico,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan titulacion: %w", err)
	}
	r.Tipo = models.TipoTitulacion(tipo)
	return &r, nil
}
