package service_test

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/suite"
	"golang.org/x/crypto/bcrypt"

	"titulaciones/internal/issuer/credential"
	"titulaciones/internal/issuer/models"
	"titulaciones/internal/issuer/service"
	"titulaciones/internal/issuer/store/nonce"
	"titulaciones/internal/issuer/store/offer"
	jwttoken "titulaciones/internal/jwt_token"
	"titulaciones/internal/keys"
	"titulaciones/internal/revocation"
	"titulaciones/internal/titulacion/catalog"
	titstore "titulaciones/internal/titulacion/store"
	dErrors "titulaciones/pkg/domain-errors"
	"titulaciones/pkg/requestcontext"
)

const flowIssuerURL = "https://issuer.example.org"

// FlowSuite drives the issuer operations over the in-memory stores, the real
// token service, the real signer and the in-memory registry.
type FlowSuite struct {
	suite.Suite
	ctx      context.Context
	now      time.Time
	holder   *keys.KeyMaterial
	tokens   *jwttoken.JWTService
	signer   *credential.Signer
	records  *titstore.InMemoryTitulacionStore
	registry *revocation.InMemoryRegistry
	service  *service.Service
}

func TestFlowSuite(t *testing.T) {
	suite.Run(t, new(FlowSuite))
}

func (s *FlowSuite) SetupTest() {
	issuerKey, err := keys.Generate()
	s.Require().NoError(err)
	s.holder, err = keys.Generate()
	s.Require().NoError(err)

	s.now = time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC)
	s.ctx = requestcontext.WithTime(requestcontext.WithRequestID(context.Background(), "req-flow"), s.now)

	nonces := nonce.New(300 * time.Second)
	s.tokens = jwttoken.NewJWTService(issuerKey, flowIssuerURL, 200*time.Second)
	s.signer = credential.NewSigner(issuerKey, "Universidad de Valladolid",
		credential.NewProofVerifier(flowIssuerURL, time.Minute), nonces)
	s.records = titstore.NewInMemoryTitulacionStore()
	s.Require().NoError(s.records.Seed(context.Background(), catalog.NewUVa().All()))
	s.registry = revocation.NewInMemoryRegistry()

	s.service = service.New(
		service.Config{CredentialIssuer: flowIssuerURL, UserPinRequired: true},
		offer.New(offer.WithBcryptCost(bcrypt.MinCost)),
		nonces,
		s.tokens,
		s.signer,
		s.records,
		revocation.NewLedger(s.registry),
		service.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
	)
}

// holderProof signs an openid4vci proof with the holder's secp256k1 key.
func (s *FlowSuite) holderProof(cnonce string) string {
	token := jwt.NewWithClaims(keys.SigningMethodES256K, jwt.MapClaims{
		"nonce": cnonce,
		"aud":   flowIssuerURL,
		"iat":   s.now.Add(-time.Second).Unix(),
	})
	token.Header["typ"] = models.ProofJWTType
	token.Header["kid"] = s.holder.VerificationMethod()
	signed, err := token.SignedString(s.holder)
	s.Require().NoError(err)
	return signed
}

func (s *FlowSuite) TestOfferToRevocation() {
	created, err := s.service.CreateOffer(s.ctx, &models.CreateOfferRequest{
		PreAuthorizedCode: "ABC123",
		CredentialToIssue: "83639",
	})
	s.Require().NoError(err)
	s.Equal("ABC123", created.PreAuthorizedCode)
	s.NotEmpty(created.Pin)

	tokenReq := &models.TokenRequest{
		GrantType:         models.GrantTypePreAuthorizedCode,
		PreAuthorizedCode: "ABC123",
		UserPin:           created.Pin,
	}
	granted, err := s.service.RedeemForToken(s.ctx, tokenReq)
	s.Require().NoError(err)
	s.Equal("bearer", granted.TokenType)
	s.Equal(200, granted.ExpiresIn)

	s.Run("code is single use", func() {
		_, err := s.service.RedeemForToken(s.ctx, tokenReq)
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidGrant))
	})

	claims, err := s.tokens.ValidateToken(granted.AccessToken, s.now)
	s.Require().NoError(err)
	s.Equal(granted.CNonce, claims.CNonce)
	s.Equal([]string{"83639"}, claims.CredentialIDs)

	input := service.IssueCredentialInput{
		Token: credential.TokenBinding{
			Subject:   claims.Subject,
			CNonce:    claims.CNonce,
			ExpiresAt: claims.ExpiresAt.Time,
		},
		CredentialIDs: claims.CredentialIDs,
		Request: &models.CredentialRequest{
			Format: models.FormatLDPVC,
			Proof:  &models.ProofRequest{ProofType: models.ProofTypeJWT, JWT: s.holderProof(claims.CNonce)},
		},
	}
	issued, err := s.service.IssueCredential(s.ctx, input)
	s.Require().NoError(err)

	record, err := s.records.FindByCode(s.ctx, "83639")
	s.Require().NoError(err)
	vc := issued.Credential
	s.Equal(models.FormatLDPVC, issued.Format)
	s.Equal(record.Subject(), vc.CredentialSubject.HasTitulacion)
	s.Equal(s.holder.DID(), vc.CredentialSubject.ID)
	s.NoError(s.signer.Verify(&vc))

	s.Run("c_nonce is spent by the first issuance", func() {
		_, err := s.service.IssueCredential(s.ctx, input)
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeAlreadyUsed))
	})

	hash, revoked, err := s.service.CredentialStatus(s.ctx, record.Subject())
	s.Require().NoError(err)
	s.False(revoked)
	credHash, err := revocation.HashOfCredential(&vc)
	s.Require().NoError(err)
	s.Equal(credHash.String(), hash)

	receipt, err := s.service.RevokeCredential(s.ctx, record.Subject())
	s.Require().NoError(err)
	s.False(receipt.AlreadyRevoked)
	s.Equal(hash, receipt.Hash)

	again, err := s.service.RevokeCredential(s.ctx, record.Subject())
	s.Require().NoError(err)
	s.True(again.AlreadyRevoked)
	s.Equal(1, s.registry.Transactions())

	_, revoked, err = s.service.CredentialStatus(s.ctx, record.Subject())
	s.Require().NoError(err)
	s.True(revoked)
}
