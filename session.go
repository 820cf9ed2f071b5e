package tlscore

import (
	"crypto/hmac"
	"hash"

	"tlscore/common/ciphersuite"
	"tlscore/internal/secret"
	"tlscore/internal/util/hkdf"

	"github.com/pkg/errors"
)

// session owns the key schedule for one handshake: the running transcript
// hash and the early -> handshake -> master stage-secret chain. Traffic
// secrets handed out by deriveHandshakeSecrets/deriveMasterSecrets become the
// property of the caller; the handshake traffic secrets are additionally
// retained here because the finished keys derive from them.
//
// Reference: https://datatracker.ietf.org/doc/html/rfc8446#section-7.1
type session struct {
	suite      ciphersuite.Suite
	transcript hash.Hash

	stageSecret []byte

	clientHsTraffic []byte
	serverHsTraffic []byte
}

func newSession(suite ciphersuite.Suite) *session {
	return &session{
		suite:      suite,
		transcript: suite.Hash().New(),
	}
}

func (s *session) writeTranscript(msg []byte) {
	s.transcript.Write(msg)
}

// transcriptHash reads the digest over every message written so far without
// disturbing the running state.
func (s *session) transcriptHash() []byte {
	return s.transcript.Sum(nil)
}

// setEarlySecret starts the chain. Without PSK support the input keying
// material is all zeros.
func (s *session) setEarlySecret() error {
	early, err := hkdf.Extract(s.suite, nil, nil)
	if err != nil {
		return errors.Wrap(err, "extracting early secret")
	}

	s.stageSecret = early
	return nil
}

// advance replaces the stage secret with Extract(ikm, Derive-Secret(current,
// "derived", "")), wiping the superseded secret.
func (s *session) advance(ikm []byte) error {
	emptyHash := s.suite.Hash().New().Sum(nil)

	salt, err := hkdf.DeriveSecret(s.suite, s.stageSecret, "derived", emptyHash)
	if err != nil {
		return errors.Wrap(err, "deriving chain salt")
	}

	next, err := hkdf.Extract(s.suite, ikm, salt)
	secret.Wipe(salt)
	if err != nil {
		return errors.Wrap(err, "extracting next stage secret")
	}

	secret.Wipe(s.stageSecret)
	s.stageSecret = next

	return nil
}

// deriveHandshakeSecrets advances to the handshake secret using the ECDHE
// shared secret and derives both handshake traffic secrets over the current
// transcript (through ServerHello).
func (s *session) deriveHandshakeSecrets(sharedSecret []byte) error {
	if err := s.advance(sharedSecret); err != nil {
		return err
	}

	th := s.transcriptHash()

	var err error
	s.clientHsTraffic, err = hkdf.DeriveSecret(s.suite, s.stageSecret, "c hs traffic", th)
	if err != nil {
		return errors.Wrap(err, "deriving client handshake traffic secret")
	}

	s.serverHsTraffic, err = hkdf.DeriveSecret(s.suite, s.stageSecret, "s hs traffic", th)
	if err != nil {
		return errors.Wrap(err, "deriving server handshake traffic secret")
	}

	return nil
}

// deriveMasterSecrets advances to the master secret and derives both
// application traffic secrets over the current transcript (through the
// server Finished). Ownership of the returned secrets moves to the caller.
func (s *session) deriveMasterSecrets() (clientApp, serverApp []byte, err error) {
	if err := s.advance(nil); err != nil {
		return nil, nil, err
	}

	th := s.transcriptHash()

	clientApp, err = hkdf.DeriveSecret(s.suite, s.stageSecret, "c ap traffic", th)
	if err != nil {
		return nil, nil, errors.Wrap(err, "deriving client application traffic secret")
	}

	serverApp, err = hkdf.DeriveSecret(s.suite, s.stageSecret, "s ap traffic", th)
	if err != nil {
		secret.Wipe(clientApp)
		return nil, nil, errors.Wrap(err, "deriving server application traffic secret")
	}

	return clientApp, serverApp, nil
}

// finishedMAC computes the Finished verify data for the side owning
// trafficSecret, over the given transcript hash.
//
// Reference: https://datatracker.ietf.org/doc/html/rfc8446#section-4.4.4
func (s *session) finishedMAC(trafficSecret, transcriptHash []byte) ([]byte, error) {
	key, err := hkdf.ExpandLabel(
		s.suite, trafficSecret, "finished", "", s.suite.Hash().Size(),
	)
	if err != nil {
		return nil, errors.Wrap(err, "expanding finished key")
	}
	defer secret.Wipe(key)

	mac := hmac.New(s.suite.Hash().New, key)
	mac.Write(transcriptHash)

	return mac.Sum(nil), nil
}

func (s *session) clientFinishedMAC() ([]byte, error) {
	return s.finishedMAC(s.clientHsTraffic, s.transcriptHash())
}

func (s *session) serverFinishedMAC() ([]byte, error) {
	return s.finishedMAC(s.serverHsTraffic, s.transcriptHash())
}

// dispose wipes every secret the session still holds. Safe to call more
// than once.
func (s *session) dispose() {
	secret.Wipe(s.stageSecret)
	secret.Wipe(s.clientHsTraffic)
	secret.Wipe(s.serverHsTraffic)
	s.stageSecret = nil
	s.clientHsTraffic = nil
	s.serverHsTraffic = nil
}
