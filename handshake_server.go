package tlscore

import (
	"crypto/hmac"
	"io"
	"slices"

	"tlscore/buffer"
	"tlscore/common"
	"tlscore/common/ciphersuite"
	"tlscore/common/keyexchange"
	"tlscore/internal/alert"
	"tlscore/internal/handshake"
	"tlscore/internal/handshake/extension"
	"tlscore/internal/secret"

	"github.com/pkg/errors"
)

// handleClientHello runs the whole server flight: it negotiates the
// parameters, emits ServerHello through Finished into sendBuf and leaves the
// connection waiting for the client Finished.
func (c *Conn) handleClientHello(sendBuf *buffer.Buffer, raw []byte) error {
	ch := &handshake.ClientHello{}
	if err := handshake.FromBytes(raw, ch); err != nil {
		return mapDecodeError(err)
	}

	if err := validateClientHello(ch); err != nil {
		return err
	}

	if ch.ExtServerNameList != nil && len(ch.ExtServerNameList.ServerNameList) > 0 {
		c.serverName = string(ch.ExtServerNameList.ServerNameList[0].Name)
	}

	suite, err := c.selectCipherSuite(ch.CipherSuites)
	if err != nil {
		return err
	}

	group, err := c.selectGroup(ch.ExtSupportedGroups.NamedGroupList)
	if err != nil {
		return err
	}

	var clientShare extension.KeyShareEntry
	found := false
	for _, entry := range ch.ExtKeyShares.KeyShares {
		if entry.Group == group.ID() {
			clientShare = entry
			found = true
			break
		}
	}
	if !found {
		// A retry round could recover this, but we do not speak it.
		return alert.NewError(
			errors.New("no key share for the negotiated group"), alert.HandshakeFailure,
		)
	}

	priv, pub, err := group.KeyExchange().GenKeyPair(c.config.Random)
	if err != nil {
		return errors.Wrap(err, "generating server key share")
	}

	shared, err := group.KeyExchange().GenSharedSecret(priv, clientShare.KeyExchange)
	secret.Wipe(priv)
	if err != nil {
		return alert.NewError(err, alert.IllegalParameter)
	}

	var random [32]byte
	if _, err := io.ReadFull(c.config.Random, random[:]); err != nil {
		return errors.Wrap(err, "generating server random")
	}

	sh := &handshake.ServerHello{
		Version:           common.VersionTLS12,
		Random:            random,
		SessionIDEcho:     ch.SessionID,
		CipherSuite:       suite.ID(),
		CompressionMethod: 0,

		ExtSupportedVersions: &extension.SupportedVersionsSH{
			SelectedVersion: common.VersionTLS13,
		},
		ExtKeyShareSH: &extension.KeyShareSH{
			KeyShare: extension.KeyShareEntry{Group: group.ID(), KeyExchange: pub},
		},
	}
	shRaw := handshake.ToBytes(sh)

	c.sess = newSession(suite)
	c.sess.writeTranscript(raw)
	c.sess.writeTranscript(shRaw)

	// ServerHello goes out in the clear; everything after travels under the
	// handshake keys.
	if err := c.writeHandshakeOut(sendBuf, shRaw); err != nil {
		return err
	}

	if err := c.sess.setEarlySecret(); err != nil {
		return err
	}
	if err := c.sess.deriveHandshakeSecrets(shared); err != nil {
		return err
	}
	secret.Wipe(shared)

	if err := c.out.setSecret(suite, cloneSecret(c.sess.serverHsTraffic)); err != nil {
		return err
	}
	if err := c.in.setSecret(suite, cloneSecret(c.sess.clientHsTraffic)); err != nil {
		return err
	}

	if err := c.sendServerParameters(sendBuf, ch); err != nil {
		return err
	}

	c.state = stateServerExpectFinished
	return nil
}

func validateClientHello(ch *handshake.ClientHello) error {
	if ch.ExtSupportedVersions == nil ||
		!slices.Contains(ch.ExtSupportedVersions.Versions, common.VersionTLS13) {
		return alert.NewError(
			errors.New("client does not offer tls 1.3"), alert.ProtocolVersion,
		)
	}

	if ch.ExtSupportedGroups == nil || ch.ExtKeyShares == nil || ch.ExtSignatureAlgos == nil {
		return alert.NewError(
			errors.New("client hello misses a mandatory extension"), alert.MissingExtension,
		)
	}

	if !slices.Contains(ch.CompressionMethods, 0) {
		return alert.NewError(
			errors.New("client does not offer null compression"), alert.IllegalParameter,
		)
	}

	return nil
}

// selectCipherSuite walks our preference order and takes the first suite the
// client also offers.
func (c *Conn) selectCipherSuite(offered []ciphersuite.ID) (ciphersuite.Suite, error) {
	for _, suite := range c.config.CipherSuites {
		if slices.Contains(offered, suite.ID()) {
			return suite, nil
		}
	}

	return ciphersuite.Suite{}, alert.NewError(
		errors.New("no mutually supported cipher suite"), alert.HandshakeFailure,
	)
}

func (c *Conn) selectGroup(offered []keyexchange.GroupID) (keyexchange.Group, error) {
	for _, group := range c.config.Groups {
		if slices.Contains(offered, group.ID()) {
			return group, nil
		}
	}

	return keyexchange.Group{}, alert.NewError(
		errors.New("no mutually supported group"), alert.HandshakeFailure,
	)
}

// sendServerParameters emits EncryptedExtensions, Certificate,
// CertificateVerify and Finished, then derives the application secrets. The
// client's application key is held back until its Finished verifies.
func (c *Conn) sendServerParameters(sendBuf *buffer.Buffer, ch *handshake.ClientHello) error {
	sendMsg := func(msg handshake.Handshake) error {
		raw := handshake.ToBytes(msg)
		if err := c.writeHandshakeOut(sendBuf, raw); err != nil {
			return err
		}
		c.sess.writeTranscript(raw)
		return nil
	}

	ee := &handshake.EncryptedExtensions{Extensions: extension.ExtensionsFrom()}
	if err := sendMsg(ee); err != nil {
		return err
	}

	scheme, sign, chain, err := c.config.Delegate.Lookup(
		c.serverName, ch.ExtSignatureAlgos.SupportedAlgos,
	)
	if err != nil {
		return err
	}

	if err := sendMsg(makeCertMessage(chain)); err != nil {
		return err
	}

	sig, err := sign(certificateSignatureInput(c.sess.transcriptHash(), true))
	if err != nil {
		return errors.Wrap(err, "signing handshake transcript")
	}

	cv := &handshake.CertificateVerify{Algorithm: scheme, Signature: sig}
	if err := sendMsg(cv); err != nil {
		return err
	}

	mac, err := c.sess.serverFinishedMAC()
	if err != nil {
		return err
	}
	if err := sendMsg(&handshake.Finished{VerifyData: mac}); err != nil {
		return err
	}

	clientApp, serverApp, err := c.sess.deriveMasterSecrets()
	if err != nil {
		return err
	}

	// We may send application data right away; reads stay on the handshake
	// key until the client Finished checks out.
	if err := c.out.setSecret(c.sess.suite, serverApp); err != nil {
		secret.Wipe(clientApp)
		return err
	}
	c.clientAppPending = clientApp

	return nil
}

func (c *Conn) handleClientFinished(raw []byte) error {
	fin := &handshake.Finished{}
	if err := handshake.FromBytes(raw, fin); err != nil {
		return mapDecodeError(err)
	}

	expected, err := c.sess.clientFinishedMAC()
	if err != nil {
		return err
	}
	if !hmac.Equal(expected, fin.VerifyData) {
		return alert.NewError(errors.New("finished mac mismatch"), alert.DecryptError)
	}

	c.sess.writeTranscript(raw)

	if err := c.in.setSecret(c.sess.suite, c.clientAppPending); err != nil {
		return err
	}
	c.clientAppPending = nil

	c.sess.dispose()
	c.state = stateEstablished
	return nil
}
