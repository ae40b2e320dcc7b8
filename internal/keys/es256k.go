package keys

import (
	"errors"

	"github.com/btcsuite/btcd/btcec"
	"github.com/golang-jwt/jwt/v5"
)

var errES256KVerification = errors.New("es256k: verification error")

// SigningMethodES256K plugs secp256k1 into golang-jwt. Sign expects a Signer
// as key; Verify expects a *btcec.PublicKey.
var SigningMethodES256K jwt.SigningMethod = signingMethodES256K{}

func init() {
	jwt.RegisterSigningMethod(AlgES256K, func() jwt.SigningMethod {
		return SigningMethodES256K
	})
}

type signingMethodES256K struct{}

func (signingMethodES256K) Alg() string {
	return AlgES256K
}

func (signingMethodES256K) Sign(signingString string, key any) ([]byte, error) {
	signer, ok := key.(Signer)
	if !ok {
		return nil, jwt.ErrInvalidKeyType
	}
	return signer.Sign([]byte(signingString))
}

func (signingMethodES256K) Verify(signingString string, sig []byte, key any) error {
	pub, ok := key.(*btcec.PublicKey)
	if !ok {
		return jwt.ErrInvalidKeyType
	}
	if !Verify(pub, []byte(signingString), sig) {
		return errES256KVerification
	}
	return nil
}
