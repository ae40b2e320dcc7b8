package service

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"titulaciones/internal/revocation"
	"titulaciones/internal/titulacion/models"
	dErrors "titulaciones/pkg/domain-errors"
	audit "titulaciones/pkg/platform/audit"
	"titulaciones/pkg/platform/sentinel"
	"titulaciones/pkg/requestcontext"
)

type Store interface {
	List(ctx context.Context) ([]models.Titulacion, error)
	FindByCode(ctx context.Context, code string) (*models.Titulacion, error)
	Update(ctx context.Context, record models.Titulacion) (bool, error)
	MarkRevoked(ctx context.Context, code string) error
}

// Revoker hashes a record's subject content and drives the revocation registry.
type Revoker interface {
	RevokeCredential(ctx context.Context, subject models.Subject) (*revocation.Receipt, error)
	CredentialStatus(ctx context.Context, subject models.Subject) (string, bool, error)
}

type AuditPublisher interface {
	Emit(ctx context.Context, event audit.Event) error
	List(ctx context.Context, subject string) ([]audit.Event, error)
}

// RevokeResult is the DELETE /titulaciones/{id} answer.
type RevokeResult struct {
	Message        string `json:"message"`
	Revoked        bool   `json:"revoked"`
	Hash           string `json:"hash"`
	TxHash         string `json:"txHash,omitempty"`
	AlreadyRevoked bool   `json:"alreadyRevoked"`
}

// Status is the read-only revocation view of a record.
type Status struct {
	CodigoTitulacion string `json:"codigoTitulacion"`
	Hash             string `json:"hash"`
	Revoked          bool   `json:"revoked"`
}

// Service manages degree records. Revocation truth lives in the registry; the
// stored Revocada flag only mirrors it.
type Service struct {
	store   Store
	revoker Revoker
	auditor AuditPublisher
	logger  *slog.Logger
}

func New(store Store, revoker Revoker, auditor AuditPublisher, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{store: store, revoker: revoker, auditor: auditor, logger: logger}
}

// List returns every record, or only the one matching id when id is set.
func (s *Service) List(ctx context.Context, id string) ([]models.Titulacion, error) {
	if id = strings.TrimSpace(id); id != "" {
		r, err := s.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		return []models.Titulacion{*r}, nil
	}
	records, err := s.store.List(ctx)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list titulaciones")
	}
	return records, nil
}

func (s *Service) Get(ctx context.Context, id string) (*models.Titulacion, error) {
	r, err := s.store.FindByCode(ctx, id)
	if err != nil {
		return nil, translateStoreError(err, "titulacion not found")
	}
	return r, nil
}

// Update replaces a record's registry-owned fields. A missing record and an
// update that changes nothing are both reported as not found.
func (s *Service) Update(ctx context.Context, id string, record models.Titulacion) (*models.Titulacion, error) {
	if record.CodigoTitulacion == "" {
		record.CodigoTitulacion = id
	}
	if record.CodigoTitulacion != id {
		return nil, dErrors.New(dErrors.CodeBadRequest, "codigoTitulacion does not match path")
	}
	if err := record.Validate(); err != nil {
		return nil, err
	}

	changed, err := s.store.Update(ctx, record)
	if err != nil {
		return nil, translateStoreError(err, "no titulacion matched")
	}
	if !changed {
		return nil, dErrors.New(dErrors.CodeNotFound, "titulacion unchanged")
	}

	s.emit(ctx, audit.Event{
		Subject: id,
		Action:  string(audit.EventTitulacionUpdated),
		ActorID: "admin",
	})
	return s.Get(ctx, id)
}

// Revoke marks the record's content hash revoked on the registry, then mirrors
// the flag locally. Repeating it is a no-op on the registry.
func (s *Service) Revoke(ctx context.Context, id string) (*RevokeResult, error) {
	r, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	receipt, err := s.revoker.RevokeCredential(ctx, r.Subject())
	if err != nil {
		s.emit(ctx, audit.Event{
			Subject:  id,
			Action:   string(audit.EventRevocationFailed),
			ActorID:  "admin",
			Decision: "failed",
			Reason:   err.Error(),
		})
		return nil, err
	}

	if err := s.store.MarkRevoked(ctx, id); err != nil {
		s.logger.WarnContext(ctx, "registry revoked but local flag not updated",
			"request_id", requestcontext.RequestID(ctx),
			"codigo_titulacion", id,
			"hash", receipt.Hash,
			"error", err,
		)
	}

	s.emit(ctx, audit.Event{
		Subject:     id,
		Action:      string(audit.EventTitulacionRevoked),
		ActorID:     "admin",
		Decision:    "revoked",
		ContentHash: receipt.Hash,
	})
	return &RevokeResult{
		Message:        "titulacion " + id + " revoked",
		Revoked:        true,
		Hash:           receipt.Hash,
		TxHash:         receipt.TxHash,
		AlreadyRevoked: receipt.AlreadyRevoked,
	}, nil
}

// Status reports the record's content hash and its registry status.
func (s *Service) Status(ctx context.Context, id string) (*Status, error) {
	r, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	hash, revoked, err := s.revoker.CredentialStatus(ctx, r.Subject())
	if err != nil {
		return nil, err
	}
	return &Status{CodigoTitulacion: id, Hash: hash, Revoked: revoked}, nil
}

// History returns the audit trail recorded for the record.
func (s *Service) History(ctx context.Context, id string) ([]audit.Event, error) {
	r, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if s.auditor == nil {
		return nil, dErrors.New(dErrors.CodeNotFound, "audit trail not available")
	}
	events, err := s.auditor.List(ctx, r.CodigoTitulacion)
	if err != nil {
		if errors.Is(err, audit.ErrNotReadable) {
			return nil, dErrors.New(dErrors.CodeNotFound, "audit trail not available")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to read audit trail")
	}
	if events == nil {
		events = []audit.Event{}
	}
	return events, nil
}

func (s *Service) emit(ctx context.Context, event audit.Event) {
	if s.auditor == nil {
		return
	}
	event.RequestID = requestcontext.RequestID(ctx)
	event.ClientIP = requestcontext.ClientIP(ctx)
	if err := s.auditor.Emit(ctx, event); err != nil {
		s.logger.WarnContext(ctx, "failed to emit audit event",
			"request_id", event.RequestID,
			"action", event.Action,
			"error", err,
		)
	}
}

func translateStoreError(err error, notFound string) error {
	if errors.Is(err, sentinel.ErrNotFound) {
		return dErrors.New(dErrors.CodeNotFound, notFound)
	}
	return dErrors.Wrap(err, dErrors.CodeInternal, "titulacion store failure")
}
