package tlscore

import (
	"bytes"
	"crypto/hmac"
	"io"

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

// Servers negotiating a pre-1.3 version stamp these sentinels into the
// trailing bytes of their random; seeing one through a 1.3 handshake means
// somebody stripped our highest offer.
//
// Reference: https://datatracker.ietf.org/doc/html/rfc8446#section-4.1.3
var (
	downgradeTLS12 = [8]byte{0x44, 0x4F, 0x57, 0x4E, 0x47, 0x52, 0x44, 0x01}
	downgradeTLS11 = [8]byte{0x44, 0x4F, 0x57, 0x4E, 0x47, 0x52, 0x44, 0x00}
)

func (c *Conn) sendClientHello(sendBuf *buffer.Buffer) error {
	var random [32]byte
	if _, err := io.ReadFull(c.config.Random, random[:]); err != nil {
		return errors.Wrap(err, "generating client random")
	}

	c.keyCandidates = make(map[keyexchange.GroupID][]byte, len(c.config.Groups))
	shares := make([]extension.KeyShareEntry, 0, len(c.config.Groups))
	for _, group := range c.config.Groups {
		priv, pub, err := group.KeyExchange().GenKeyPair(c.config.Random)
		if err != nil {
			return errors.Wrap(err, "generating key share")
		}

		c.keyCandidates[group.ID()] = priv
		shares = append(shares, extension.KeyShareEntry{
			Group:       group.ID(),
			KeyExchange: pub,
		})
	}

	ch := &handshake.ClientHello{
		Version:            common.VersionTLS12,
		Random:             random,
		SessionID:          []byte{},
		CipherSuites:       ciphersuite.AsIDs(c.config.CipherSuites),
		CompressionMethods: []byte{0},

		ExtSupportedVersions: &extension.SupportedVersionsCH{
			Versions: []common.Version{common.VersionTLS13},
		},
		ExtSupportedGroups: &extension.SupportedGroups{
			NamedGroupList: keyexchange.AsIDs(c.config.Groups),
		},
		ExtKeyShares: &extension.KeyShareCH{KeyShares: shares},
		ExtSignatureAlgos: &extension.SignatureAlgos{
			SupportedAlgos: c.config.SignatureAlgos,
		},
	}

	if c.serverName != "" {
		ch.ExtServerNameList = &extension.ServerNameList{
			ServerNameList: []extension.ServerName{{
				NameType: extension.ServerNameTypeHostName,
				Name:     []byte(c.serverName),
			}},
		}
	}

	c.chMsg = ch
	c.chRaw = handshake.ToBytes(ch)

	return c.writeHandshakeOut(sendBuf, c.chRaw)
}

func (c *Conn) handleServerHello(raw []byte) error {
	sh := &handshake.ServerHello{}
	if err := handshake.FromBytes(raw, sh); err != nil {
		return mapDecodeError(err)
	}

	if sh.IsHelloRetry() {
		// We offer a share for every group we support, so a retry request
		// can never be satisfied any better.
		return alert.NewError(
			errors.New("hello retry cannot improve our offer"), alert.HandshakeFailure,
		)
	}

	suite, err := c.validateServerHello(sh)
	if err != nil {
		return err
	}

	entry := sh.ExtKeyShareSH.KeyShare
	priv, offered := c.keyCandidates[entry.Group]
	if !offered {
		return alert.NewError(
			errors.New("key share for a group we did not offer"), alert.IllegalParameter,
		)
	}

	group, _ := keyexchange.Get(entry.Group)
	shared, err := group.KeyExchange().GenSharedSecret(priv, entry.KeyExchange)
	if err != nil {
		return alert.NewError(err, alert.IllegalParameter)
	}

	for _, p := range c.keyCandidates {
		secret.Wipe(p)
	}
	c.keyCandidates = nil

	c.sess = newSession(suite)
	c.sess.writeTranscript(c.chRaw)
	c.sess.writeTranscript(raw)
	c.chRaw = nil

	if err := c.sess.setEarlySecret(); err != nil {
		return err
	}
	if err := c.sess.deriveHandshakeSecrets(shared); err != nil {
		return err
	}
	secret.Wipe(shared)

	if err := c.in.setSecret(suite, cloneSecret(c.sess.serverHsTraffic)); err != nil {
		return err
	}
	if err := c.out.setSecret(suite, cloneSecret(c.sess.clientHsTraffic)); err != nil {
		return err
	}

	c.state = stateClientExpectEncryptedExtensions
	return nil
}

func (c *Conn) validateServerHello(sh *handshake.ServerHello) (ciphersuite.Suite, error) {
	if sh.ExtSupportedVersions == nil ||
		sh.ExtSupportedVersions.SelectedVersion != common.VersionTLS13 {
		return ciphersuite.Suite{}, alert.NewError(
			errors.New("server selected an unsupported version"), alert.ProtocolVersion,
		)
	}

	sentinel := [8]byte(sh.Random[24:])
	if sentinel == downgradeTLS12 || sentinel == downgradeTLS11 {
		return ciphersuite.Suite{}, alert.NewError(
			errors.New("downgrade sentinel in server random"), alert.IllegalParameter,
		)
	}

	if !bytes.Equal(sh.SessionIDEcho, c.chMsg.SessionID) {
		return ciphersuite.Suite{}, alert.NewError(
			errors.New("session id echo mismatch"), alert.IllegalParameter,
		)
	}

	if sh.CompressionMethod != 0 {
		return ciphersuite.Suite{}, alert.NewError(
			errors.New("server selected compression"), alert.IllegalParameter,
		)
	}

	var suite ciphersuite.Suite
	found := false
	for _, s := range c.config.CipherSuites {
		if s.ID() == sh.CipherSuite {
			suite = s
			found = true
			break
		}
	}
	if !found {
		return ciphersuite.Suite{}, alert.NewError(
			errors.New("server selected a suite we did not offer"), alert.IllegalParameter,
		)
	}

	if sh.ExtKeyShareSH == nil {
		return ciphersuite.Suite{}, alert.NewError(
			errors.New("server hello carries no key share"), alert.MissingExtension,
		)
	}

	return suite, nil
}

func (c *Conn) handleEncryptedExtensions(raw []byte) error {
	ee := &handshake.EncryptedExtensions{}
	if err := handshake.FromBytes(raw, ee); err != nil {
		return mapDecodeError(err)
	}

	// Unknown extensions are tolerated; nothing in there changes our state.
	c.sess.writeTranscript(raw)
	c.state = stateClientExpectCertificate
	return nil
}

func (c *Conn) handleCertificate(raw []byte) error {
	if err := handshake.FromBytes(raw, &handshake.CertificateRequest{}); err == nil {
		return alert.NewError(
			errors.New("client authentication is not supported"), alert.HandshakeFailure,
		)
	}

	cert := &handshake.Certificate{}
	if err := handshake.FromBytes(raw, cert); err != nil {
		return mapDecodeError(err)
	}

	chain, err := chainFromMessage(cert)
	if err != nil {
		return alert.NewError(err, alert.BadCertificate)
	}

	verify, err := c.config.Delegate.Verify(c.serverName, chain)
	if err != nil {
		return alert.NewError(err, alert.BadCertificate)
	}
	c.verifyCleanup = verify

	c.sess.writeTranscript(raw)
	c.state = stateClientExpectCertVerify
	return nil
}

func (c *Conn) handleCertificateVerify(raw []byte) error {
	cv := &handshake.CertificateVerify{}
	if err := handshake.FromBytes(raw, cv); err != nil {
		return mapDecodeError(err)
	}

	// The signature covers the transcript through Certificate.
	signed := certificateSignatureInput(c.sess.transcriptHash(), true)

	verify := c.verifyCleanup
	c.verifyCleanup = nil
	if err := verify(cv.Algorithm, signed, cv.Signature); err != nil {
		return alert.NewError(err, alert.DecryptError)
	}

	c.sess.writeTranscript(raw)
	c.state = stateClientExpectFinished
	return nil
}

func (c *Conn) handleServerFinished(sendBuf *buffer.Buffer, raw []byte) error {
	fin := &handshake.Finished{}
	if err := handshake.FromBytes(raw, fin); err != nil {
		return mapDecodeError(err)
	}

	expected, err := c.sess.serverFinishedMAC()
	if err != nil {
		return err
	}
	if !hmac.Equal(expected, fin.VerifyData) {
		return alert.NewError(errors.New("finished mac mismatch"), alert.DecryptError)
	}

	c.sess.writeTranscript(raw)

	clientApp, serverApp, err := c.sess.deriveMasterSecrets()
	if err != nil {
		return err
	}

	mac, err := c.sess.clientFinishedMAC()
	if err != nil {
		return err
	}

	// Our Finished still travels under the handshake keys.
	finRaw := handshake.ToBytes(&handshake.Finished{VerifyData: mac})
	if err := c.writeHandshakeOut(sendBuf, finRaw); err != nil {
		return err
	}
	c.sess.writeTranscript(finRaw)

	if err := c.out.setSecret(c.sess.suite, clientApp); err != nil {
		return err
	}
	if err := c.in.setSecret(c.sess.suite, serverApp); err != nil {
		return err
	}

	c.sess.dispose()
	c.state = stateEstablished
	return nil
}

func mapDecodeError(err error) error {
	if errors.Is(err, handshake.ErrNotExpectedHandshakeType) {
		return alert.NewError(err, alert.UnexpectedMessage)
	}
	return alert.NewError(err, alert.DecodeError)
}
