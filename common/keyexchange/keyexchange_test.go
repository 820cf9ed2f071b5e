package keyexchange

import (
	"crypto/ecdh"
	"crypto/rand"
	"testing"

	"github.com/stretchr/testify/suite"
)

type ECDHEKeyExchangeTestSuite struct {
	suite.Suite

	ke ecdheKeyExchange
}

func TestECDHEKeyExchangeTestSuite(t *testing.T) {
	suite.Run(t, new(ECDHEKeyExchangeTestSuite))
}

func (s *ECDHEKeyExchangeTestSuite) SetupTest() {
	s.ke = ecdheKeyExchange{curve: ecdh.P256()}
}

func (s *ECDHEKeyExchangeTestSuite) TestGenKeyPair() {
	priv, pub, err := s.ke.GenKeyPair(rand.Reader)
	s.Require().NoError(err)

	privKey, err := s.ke.curve.NewPrivateKey(priv)
	s.Require().NoError(err)
	s.NotNil(privKey)

	pubKey, err := s.ke.curve.NewPublicKey(pub)
	s.Require().NoError(err)
	s.NotNil(pubKey)
}

func (s *ECDHEKeyExchangeTestSuite) TestGenSharedSecret() {
	privA, pubA, err := s.ke.GenKeyPair(rand.Reader)
	s.Require().NoError(err)

	privB, pubB, err := s.ke.GenKeyPair(rand.Reader)
	s.Require().NoError(err)

	sharedA, err := s.ke.GenSharedSecret(privA, pubB)
	s.Require().NoError(err)

	sharedB, err := s.ke.GenSharedSecret(privB, pubA)
	s.Require().NoError(err)

	s.Equal(sharedA, sharedB)
}

func (s *ECDHEKeyExchangeTestSuite) TestGenSharedSecretX25519() {
	ke := ecdheKeyExchange{curve: ecdh.X25519()}

	privA, pubA, err := ke.GenKeyPair(rand.Reader)
	s.Require().NoError(err)

	privB, pubB, err := ke.GenKeyPair(rand.Reader)
	s.Require().NoError(err)

	sharedA, err := ke.GenSharedSecret(privA, pubB)
	s.Require().NoError(err)

	sharedB, err := ke.GenSharedSecret(privB, pubA)
	s.Require().NoError(err)

	s.Equal(sharedA, sharedB)
}

func (s *ECDHEKeyExchangeTestSuite) TestGenSharedSecretBadPeerKey() {
	priv, _, err := s.ke.GenKeyPair(rand.Reader)
	s.Require().NoError(err)

	_, err = s.ke.GenSharedSecret(priv, []byte{0x04, 0x00})
	s.Error(err)
}
