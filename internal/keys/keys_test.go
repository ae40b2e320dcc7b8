package keys

import (
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testKeyHex = "0x4c0883a69102937d6231471b5dbb6204fe5129617082792ae468d01a3f362318"

func TestFromHex(t *testing.T) {
	t.Run("accepts 0x-prefixed scalar and is deterministic", func(t *testing.T) {
		a, err := FromHex(testKeyHex)
		require.NoError(t, err)
		b, err := FromHex(strings.TrimPrefix(testKeyHex, "0x"))
		require.NoError(t, err)

		assert.Equal(t, a.DID(), b.DID())
		assert.True(t, strings.HasPrefix(a.DID(), "did:key:z"))
		assert.True(t, strings.HasPrefix(a.VerificationMethod(), a.DID()+"#"))
	})

	t.Run("rejects wrong length", func(t *testing.T) {
		_, err := FromHex("0xdeadbeef")
		require.Error(t, err)
	})

	t.Run("rejects zero scalar", func(t *testing.T) {
		_, err := FromHex(strings.Repeat("00", 32))
		require.Error(t, err)
	})

	t.Run("rejects non-hex", func(t *testing.T) {
		_, err := FromHex("not-a-key")
		require.Error(t, err)
	})
}

func TestSignVerify(t *testing.T) {
	km, err := FromHex(testKeyHex)
	require.NoError(t, err)

	sig, err := km.Sign([]byte("payload"))
	require.NoError(t, err)
	require.Len(t, sig, 64)

	assert.True(t, Verify(km.PublicKey(), []byte("payload"), sig))
	assert.False(t, Verify(km.PublicKey(), []byte("tampered"), sig))

	other, err := Generate()
	require.NoError(t, err)
	assert.False(t, Verify(other.PublicKey(), []byte("payload"), sig))
}

func TestPublicJWKRoundTrip(t *testing.T) {
	km, err := Generate()
	require.NoError(t, err)

	jwk := km.PublicJWK()
	assert.Equal(t, "secp256k1", jwk["crv"])

	pub, err := PublicKeyFromJWK(jwk["x"], jwk["y"])
	require.NoError(t, err)
	assert.Equal(t, 0, pub.X.Cmp(km.PublicKey().X))
	assert.Equal(t, 0, pub.Y.Cmp(km.PublicKey().Y))
}

func TestSigningMethodES256K(t *testing.T) {
	km, err := Generate()
	require.NoError(t, err)

	tok := jwt.NewWithClaims(SigningMethodES256K, jwt.RegisteredClaims{
		Subject:   "ABC123",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Minute)),
	})
	signed, err := tok.SignedString(km)
	require.NoError(t, err)

	parsed, err := jwt.Parse(signed, func(t *jwt.Token) (any, error) {
		return km.PublicKey(), nil
	}, jwt.WithValidMethods([]string{AlgES256K}))
	require.NoError(t, err)
	assert.Equal(t, AlgES256K, parsed.Header["alg"])

	other, err := Generate()
	require.NoError(t, err)
	_, err = jwt.Parse(signed, func(t *jwt.Token) (any, error) {
		return other.PublicKey(), nil
	}, jwt.WithValidMethods([]string{AlgES256K}))
	require.ErrorIs(t, err, jwt.ErrTokenSignatureInvalid)
}

func TestPublicKeyFromDIDKey(t *testing.T) {
	key, err := Generate()
	require.NoError(t, err)

	t.Run("resolves own did", func(t *testing.T) {
		pub, err := PublicKeyFromDIDKey(key.DID())
		require.NoError(t, err)
		assert.True(t, pub.IsEqual(key.PublicKey()))
	})

	t.Run("accepts verification method url", func(t *testing.T) {
		pub, err := PublicKeyFromDIDKey(key.VerificationMethod())
		require.NoError(t, err)
		assert.True(t, pub.IsEqual(key.PublicKey()))
	})

	t.Run("rejects other methods", func(t *testing.T) {
		_, err := PublicKeyFromDIDKey("did:web:example.com")
		assert.Error(t, err)
	})

	t.Run("rejects non secp256k1 multicodec", func(t *testing.T) {
		// ed25519 did:key
		_, err := PublicKeyFromDIDKey("did:key:z6MkhaXgBZDvotDkL5257faiztiGiC2QtKLGpbnnEGta2doK")
		assert.Error(t, err)
	})
}
