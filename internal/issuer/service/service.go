// Package service composes the offer and nonce stores, the token issuer, the
// credential signer and the revocation ledger into the four issuer
// operations. It owns no state.
package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"titulaciones/internal/issuer/credential"
	"titulaciones/internal/issuer/models"
	"titulaciones/internal/platform/metrics"
	"titulaciones/internal/revocation"
	titmodels "titulaciones/internal/titulacion/models"
	dErrors "titulaciones/pkg/domain-errors"
	audit "titulaciones/pkg/platform/audit"
	"titulaciones/pkg/platform/sentinel"
	"titulaciones/pkg/requestcontext"
)

const offerURIPrefix = "openid-credential-offer://?credential_offer="

type OfferStore interface {
	Create(ctx context.Context, code string, credentialIDs []string, pinRequired bool, now time.Time) (*models.OfferSession, string, error)
	Redeem(ctx context.Context, code, pin string, now time.Time) (*models.OfferSession, error)
}

type NonceIssuer interface {
	Issue(ctx context.Context, now time.Time) (*models.CNonce, error)
}

type TokenIssuer interface {
	GenerateAccessToken(subject, cnonce string, credentialIDs []string, now time.Time) (string, error)
	TTL() time.Duration
}

type CredentialSigner interface {
	Issue(ctx context.Context, req credential.IssueRequest) (*models.VerifiableCredential, error)
}

// RecordSource resolves credential ids to degree records.
type RecordSource interface {
	FindByCode(ctx context.Context, code string) (*titmodels.Titulacion, error)
}

type Ledger interface {
	IsRevoked(ctx context.Context, hash revocation.ContentHash) (bool, error)
	Revoke(ctx context.Context, hash revocation.ContentHash) (*revocation.Receipt, error)
}

type AuditPublisher interface {
	Emit(ctx context.Context, event audit.Event) error
}

// Config is the issuer's public identity.
type Config struct {
	CredentialIssuer string
	UserPinRequired  bool
}

type Service struct {
	cfg     Config
	offers  OfferStore
	nonces  NonceIssuer
	tokens  TokenIssuer
	signer  CredentialSigner
	records RecordSource
	ledger  Ledger
	auditor AuditPublisher
	metrics *metrics.Metrics
	logger  *slog.Logger

	hashCredential func(*models.VerifiableCredential) (revocation.ContentHash, error)
}

type Option func(*Service)

func WithAuditPublisher(p AuditPublisher) Option {
	return func(s *Service) {
		s.auditor = p
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func New(
	cfg Config,
	offers OfferStore,
	nonces NonceIssuer,
	tokens TokenIssuer,
	signer CredentialSigner,
	records RecordSource,
	ledger Ledger,
	opts ...Option,
) *Service {
	s := &Service{
		cfg:     cfg,
		offers:  offers,
		nonces:  nonces,
		tokens:  tokens,
		signer:  signer,
		records: records,
		ledger:  ledger,
		logger:  slog.Default(),

		hashCredential: revocation.HashOfCredential,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CreateOffer opens an offer session for existing, unrevoked records and
// returns the wallet-facing offer URI with the PIN, if one is required.
func (s *Service) CreateOffer(ctx context.Context, req *models.CreateOfferRequest) (*models.CreateOfferResult, error) {
	if req == nil {
		return nil, dErrors.New(dErrors.CodeBadRequest, "request is required")
	}
	if err := req.Validate(); err != nil {
		return nil, err
	}
	ids := req.CredentialIDs()
	for _, id := range ids {
		record, err := s.records.FindByCode(ctx, id)
		if err != nil {
			if errors.Is(err, sentinel.ErrNotFound) {
				return nil, dErrors.New(dErrors.CodeNotFound, "unknown titulacion "+id)
			}
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to look up titulacion")
		}
		if record.Revocada {
			return nil, dErrors.New(dErrors.CodeInvalidRequest, "titulacion "+id+" is revoked")
		}
	}

	pinRequired := s.cfg.UserPinRequired
	if req.UserPinRequired != nil {
		pinRequired = *req.UserPinRequired
	}

	now := requestcontext.Now(ctx)
	session, pin, err := s.offers.Create(ctx, req.PreAuthorizedCode, ids, pinRequired, now)
	if err != nil {
		if errors.Is(err, sentinel.ErrConflict) {
			return nil, dErrors.New(dErrors.CodeConflict, "pre-authorized code already in use")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to create offer")
	}

	uri, err := s.offerURI(session)
	if err != nil {
		return nil, err
	}

	if s.metrics != nil {
		s.metrics.IncrementOffersCreated()
	}
	s.emit(ctx, audit.Event{
		Subject:      offerRef(session.PreAuthorizedCode),
		Action:       string(audit.EventOfferCreated),
		CredentialID: strings.Join(ids, ","),
	})
	return &models.CreateOfferResult{
		URI:               uri,
		Pin:               pin,
		PreAuthorizedCode: session.PreAuthorizedCode,
	}, nil
}

func (s *Service) offerURI(session *models.OfferSession) (string, error) {
	offer := models.CredentialOffer{
		CredentialIssuer: s.cfg.CredentialIssuer,
		Credentials:      session.CredentialIDs,
		Grants: map[string]models.PreAuthorizedGrant{
			models.GrantTypePreAuthorizedCode: {
				PreAuthorizedCode: session.PreAuthorizedCode,
				UserPinRequired:   session.UserPinRequired,
			},
		},
	}
	raw, err := json.Marshal(offer)
	if err != nil {
		return "", dErrors.Wrap(err, dErrors.CodeInternal, "failed to encode offer")
	}
	return offerURIPrefix + url.QueryEscape(string(raw)), nil
}

// RedeemForToken spends a pre-authorized code and answers with an access token
// bound to a fresh c_nonce. Every failure of the code itself is invalid_grant.
func (s *Service) RedeemForToken(ctx context.Context, req *models.TokenRequest) (*models.TokenResult, error) {
	if req == nil {
		return nil, dErrors.New(dErrors.CodeBadRequest, "request is required")
	}
	if err := req.Validate(); err != nil {
		s.tokenRejected(ctx, req.PreAuthorizedCode, "invalid_request", err)
		return nil, err
	}

	now := requestcontext.Now(ctx)
	session, err := s.offers.Redeem(ctx, req.PreAuthorizedCode, req.UserPin, now)
	if err != nil {
		reason, derr := translateRedeemError(err)
		s.tokenRejected(ctx, req.PreAuthorizedCode, reason, err)
		return nil, derr
	}

	nonce, err := s.nonces.Issue(ctx, now)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to issue c_nonce")
	}
	token, err := s.tokens.GenerateAccessToken(session.PreAuthorizedCode, nonce.Value, session.CredentialIDs, now)
	if err != nil {
		s.logger.ErrorContext(ctx, "access token signing failed",
			"request_id", requestcontext.RequestID(ctx),
			"error", err,
		)
		return nil, err
	}

	if s.metrics != nil {
		s.metrics.IncrementTokensIssued()
	}
	s.emit(ctx, audit.Event{
		Subject:  offerRef(session.PreAuthorizedCode),
		Action:   string(audit.EventTokenIssued),
		Decision: "granted",
	})
	return &models.TokenResult{
		AccessToken:     token,
		TokenType:       "bearer",
		ExpiresIn:       int(s.tokens.TTL().Seconds()),
		CNonce:          nonce.Value,
		CNonceExpiresIn: nonce.ExpiresIn(now),
	}, nil
}

// translateRedeemError maps a store failure onto invalid_grant. The domain
// error wraps the bare sentinel so the store's wording is not repeated; the
// full store error is logged by tokenRejected.
func translateRedeemError(err error) (string, error) {
	switch {
	case errors.Is(err, sentinel.ErrNotFound):
		return "not_found", dErrors.Wrap(sentinel.ErrNotFound, dErrors.CodeInvalidGrant, "unknown pre-authorized code")
	case errors.Is(err, sentinel.ErrAlreadyUsed):
		return "already_redeemed", dErrors.Wrap(sentinel.ErrAlreadyUsed, dErrors.CodeInvalidGrant, "pre-authorized code already redeemed")
	case errors.Is(err, sentinel.ErrExpired):
		return "expired", dErrors.Wrap(sentinel.ErrExpired, dErrors.CodeInvalidGrant, "pre-authorized code expired")
	case errors.Is(err, sentinel.ErrInvalidPin):
		return "invalid_pin", dErrors.Wrap(sentinel.ErrInvalidPin, dErrors.CodeInvalidGrant, "invalid user pin")
	default:
		return "internal", dErrors.Wrap(err, dErrors.CodeInternal, "failed to redeem pre-authorized code")
	}
}

func (s *Service) tokenRejected(ctx context.Context, code, reason string, err error) {
	if s.metrics != nil {
		s.metrics.IncrementTokenFailure(reason)
	}
	s.logger.WarnContext(ctx, "token request rejected",
		"request_id", requestcontext.RequestID(ctx),
		"reason", reason,
		"error", err,
	)
	s.emit(ctx, audit.Event{
		Subject:  offerRef(code),
		Action:   string(audit.EventTokenRejected),
		Decision: "denied",
		Reason:   reason,
	})
}

// IssueCredentialInput is what the credential endpoint hands over after the
// bearer token has been validated.
type IssueCredentialInput struct {
	Token         credential.TokenBinding
	CredentialIDs []string
	Request       *models.CredentialRequest
}

// IssueCredential resolves the degree record bound to the token and returns a
// signed credential for the holder proven by the request's proof JWT.
func (s *Service) IssueCredential(ctx context.Context, in IssueCredentialInput) (*models.CredentialResult, error) {
	vc, err := s.issueCredential(ctx, in)
	if err != nil {
		reason := "internal"
		if de, ok := dErrors.From(err); ok {
			reason = string(de.Code)
		}
		if s.metrics != nil {
			s.metrics.IncrementCredentialFailure(reason)
		}
		s.emit(ctx, audit.Event{
			Subject:  offerRef(in.Token.Subject),
			Action:   string(audit.EventCredentialRejected),
			Decision: "denied",
			Reason:   reason,
		})
		return nil, err
	}

	if s.metrics != nil {
		s.metrics.IncrementCredentialsIssued()
	}
	event := audit.Event{
		Subject:      offerRef(in.Token.Subject),
		Action:       string(audit.EventCredentialIssued),
		Decision:     "issued",
		ActorID:      vc.CredentialSubject.ID,
		CredentialID: vc.ID,
	}
	if hash, err := s.hashCredential(vc); err != nil {
		s.logger.ErrorContext(ctx, "content hash of issued credential failed",
			"request_id", requestcontext.RequestID(ctx),
			"credential_id", vc.ID,
			"error", err,
		)
	} else {
		event.ContentHash = hash.String()
	}
	s.emit(ctx, event)
	return &models.CredentialResult{Format: models.FormatLDPVC, Credential: *vc}, nil
}

func (s *Service) issueCredential(ctx context.Context, in IssueCredentialInput) (*models.VerifiableCredential, error) {
	req := in.Request
	if req == nil {
		return nil, dErrors.New(dErrors.CodeInvalidRequest, "request is required")
	}
	if req.Format != "" && req.Format != models.FormatLDPVC {
		return nil, dErrors.New(dErrors.CodeInvalidRequest, "unsupported credential format")
	}
	if req.Proof == nil || req.Proof.JWT == "" {
		return nil, dErrors.New(dErrors.CodeInvalidProof, "proof required")
	}
	if req.Proof.ProofType != models.ProofTypeJWT {
		return nil, dErrors.New(dErrors.CodeInvalidProof, "unsupported proof_type")
	}

	id, err := selectCredential(in.CredentialIDs, req.CredentialIdentifier)
	if err != nil {
		return nil, err
	}
	record, err := s.records.FindByCode(ctx, id)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeInvalidRequest, "titulacion "+id+" no longer exists")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to look up titulacion")
	}
	if record.Revocada {
		return nil, dErrors.New(dErrors.CodeInvalidRequest, "titulacion "+id+" is revoked")
	}

	vc, err := s.signer.Issue(ctx, credential.IssueRequest{
		Subject:  record.Subject(),
		Token:    in.Token,
		ProofJWT: req.Proof.JWT,
		Now:      requestcontext.Now(ctx),
	})
	if err != nil {
		if _, ok := dErrors.From(err); !ok {
			return nil, dErrors.Wrap(err, dErrors.CodeSigning, "failed to sign credential")
		}
		return nil, err
	}
	return vc, nil
}

// selectCredential picks the offered record to issue. With a single offered
// id no identifier is needed.
func selectCredential(offered []string, identifier string) (string, error) {
	if len(offered) == 0 {
		return "", dErrors.New(dErrors.CodeInvalidToken, "token carries no credentials")
	}
	if identifier == "" {
		if len(offered) > 1 {
			return "", dErrors.New(dErrors.CodeInvalidRequest, "credential_identifier required when several credentials were offered")
		}
		return offered[0], nil
	}
	for _, id := range offered {
		if id == identifier {
			return id, nil
		}
	}
	return "", dErrors.New(dErrors.CodeInvalidRequest, "credential_identifier was not offered")
}

// RevokeCredential hashes the subject content and revokes it on the ledger.
// Revoking an already revoked hash succeeds without a new transaction.
func (s *Service) RevokeCredential(ctx context.Context, subject titmodels.Subject) (*revocation.Receipt, error) {
	hash, err := revocation.HashOf(subject)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to hash credential content")
	}
	receipt, err := s.ledger.Revoke(ctx, hash)
	if err != nil {
		if _, ok := dErrors.From(err); !ok {
			err = dErrors.Wrap(err, dErrors.CodeLedgerDown, "revocation registry unavailable, retry later")
		}
		return nil, err
	}
	return receipt, nil
}

// CredentialStatus returns the content hash of subject and whether it is revoked.
func (s *Service) CredentialStatus(ctx context.Context, subject titmodels.Subject) (string, bool, error) {
	hash, err := revocation.HashOf(subject)
	if err != nil {
		return "", false, dErrors.Wrap(err, dErrors.CodeInternal, "failed to hash credential content")
	}
	revoked, err := s.ledger.IsRevoked(ctx, hash)
	if err != nil {
		if _, ok := dErrors.From(err); !ok {
			err = dErrors.Wrap(err, dErrors.CodeLedgerDown, "revocation registry unavailable, retry later")
		}
		return "", false, err
	}
	return hash.String(), revoked, nil
}

func (s *Service) emit(ctx context.Context, event audit.Event) {
	if s.auditor == nil {
		return
	}
	event.RequestID = requestcontext.RequestID(ctx)
	event.ClientIP = requestcontext.ClientIP(ctx)
	event.Wallet = requestcontext.Wallet(ctx)
	result := "ok"
	if err := s.auditor.Emit(ctx, event); err != nil {
		result = "dropped"
		s.logger.WarnContext(ctx, "failed to emit audit event",
			"request_id", event.RequestID,
			"action", event.Action,
			"error", err,
		)
	}
	if s.metrics != nil {
		s.metrics.IncrementAuditEvent(result)
	}
}

// offerRef is a stable, non-reversible reference to a pre-authorized code so
// audit trails never hold the bearer secret itself.
func offerRef(code string) string {
	if code == "" {
		return ""
	}
	sum := sha256.Sum256([]byte(code))
	return "offer:" + hex.EncodeToString(sum[:8])
}
