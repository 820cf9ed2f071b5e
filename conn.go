package tlscore

import (
	stderrors "errors"

	"tlscore/buffer"
	"tlscore/common"
	"tlscore/common/ciphersuite"
	"tlscore/common/keyexchange"
	"tlscore/internal/alert"
	"tlscore/internal/handshake"
	"tlscore/internal/secret"

	"github.com/pkg/errors"
)

type connState uint8

const (
	stateClientStart connState = iota
	stateClientExpectServerHello
	stateClientExpectEncryptedExtensions
	stateClientExpectCertificate
	stateClientExpectCertVerify
	stateClientExpectFinished
	stateServerExpectClientHello
	stateServerExpectFinished
	stateEstablished
	stateClosed
	stateFailed
)

// Conn is one endpoint of a TLS 1.3 connection. It performs no I/O of its
// own: Handshake, Send, Receive and UpdateKeys consume caller-provided bytes
// and append wire bytes to a caller-provided buffer. A Conn is not safe for
// concurrent use.
type Conn struct {
	isServer   bool
	state      connState
	config     Config
	serverName string

	sess *session
	in   protector
	out  protector

	// pending buffers inbound stream bytes that do not yet form a complete
	// record; msgBuf reassembles handshake messages across record borders.
	pending []byte
	msgBuf  []byte

	// verifyCleanup is the delegate's verify callback between a successful
	// chain verification and the signature check. It is invoked exactly
	// once per handshake, with zero arguments if the handshake dies first.
	verifyCleanup VerifySignFunc

	// echoKeyUpdate is set when the peer requested a key update; the echo
	// goes out in front of the next application record.
	echoKeyUpdate bool

	// Client handshake scratch.
	chMsg         *handshake.ClientHello
	chRaw         []byte
	keyCandidates map[keyexchange.GroupID][]byte

	// Server: the client's application traffic secret, held back until the
	// client Finished verifies.
	clientAppPending []byte
}

// CipherSuite reports the negotiated suite once the ServerHello fixed it.
func (c *Conn) CipherSuite() (ciphersuite.Suite, bool) {
	if c.sess == nil {
		return ciphersuite.Suite{}, false
	}
	return c.sess.suite, true
}

// IsServer reports which end of the connection this is.
func (c *Conn) IsServer() bool { return c.isServer }

// Handshake drives the handshake forward with the bytes in input, appending
// anything to be sent to sendBuf. ErrHandshakeInProgress is the only
// non-terminal error and reports consumed == len(input): a trailing partial
// record is buffered internally. A nil error means the connection is
// established; consumed then excludes any bytes past the final handshake
// record. Any other error is fatal, with the matching alert appended to
// sendBuf unless the failure was reported by the peer.
func (c *Conn) Handshake(sendBuf *buffer.Buffer, input []byte) (consumed int, err error) {
	switch c.state {
	case stateClosed, stateFailed:
		return 0, errors.WithStack(ErrConnClosed)
	case stateEstablished:
		return 0, errors.Wrap(ErrLibrary, "handshake already complete")
	}

	if c.state == stateClientStart {
		if err := c.sendClientHello(sendBuf); err != nil {
			return 0, c.abort(sendBuf, err)
		}
		c.state = stateClientExpectServerHello
	}

	c.pending = append(c.pending, input...)

	for c.state != stateEstablished {
		rec, n, err := parseRecord(c.pending)
		if err != nil {
			if stderrors.Is(err, common.ErrNeedMoreBytes) {
				return len(input), errors.WithStack(ErrHandshakeInProgress)
			}
			return len(input), c.abort(sendBuf, alert.NewError(err, alert.RecordOverflow))
		}

		c.pending = c.pending[n:]

		if err := c.processHandshakeRecord(sendBuf, rec); err != nil {
			return len(input), c.abort(sendBuf, err)
		}
	}

	// Bytes past the final handshake record belong to the caller. Surplus
	// buffered before this call stays pending and is drained by Receive.
	leftover := len(c.pending)
	if leftover <= len(input) {
		c.pending = nil
		return len(input) - leftover, nil
	}

	c.pending = append([]byte(nil), c.pending[:leftover-len(input)]...)
	return 0, nil
}

func (c *Conn) processHandshakeRecord(sendBuf *buffer.Buffer, rec tlsText) error {
	switch rec.contentType {
	case contentTypeChangeCipherSpec:
		// Middlebox compatibility noise.
		return nil

	case contentTypeAlert:
		return c.handleAlertFragment(rec.fragment)

	case contentTypeHandshake:
		if c.in.ready() {
			return alert.NewError(
				errors.New("cleartext handshake record after key installation"),
				alert.UnexpectedMessage,
			)
		}
		return c.drainMessages(sendBuf, rec.fragment)

	case contentTypeApplicationData:
		if !c.in.ready() {
			return alert.NewError(
				errors.New("protected record before key installation"),
				alert.UnexpectedMessage,
			)
		}

		inner, err := c.in.unprotect(rec)
		if err != nil {
			return alert.NewError(err, alert.BadRecordMAC)
		}

		switch inner.contentType {
		case contentTypeHandshake:
			return c.drainMessages(sendBuf, inner.content)
		case contentTypeAlert:
			return c.handleAlertFragment(inner.content)
		default:
			return alert.NewError(
				errors.Errorf("unexpected inner content type %d", inner.contentType),
				alert.UnexpectedMessage,
			)
		}
	}

	return alert.NewError(
		errors.Errorf("unknown content type %d", rec.contentType),
		alert.UnexpectedMessage,
	)
}

func (c *Conn) handleAlertFragment(frag []byte) error {
	if len(frag) != 2 {
		return alert.NewError(errors.New("malformed alert record"), alert.DecodeError)
	}

	a := alert.FromBytes([2]byte{frag[0], frag[1]})
	return errors.WithStack(alert.NewRemoteError(a.Description))
}

// drainMessages feeds a handshake fragment into the reassembly buffer and
// dispatches every complete message in it.
func (c *Conn) drainMessages(sendBuf *buffer.Buffer, frag []byte) error {
	c.msgBuf = append(c.msgBuf, frag...)

	for {
		n, ok := handshake.MessageLen(c.msgBuf)
		if !ok {
			return nil
		}

		raw := c.msgBuf[:n]
		c.msgBuf = c.msgBuf[n:]

		if err := c.handleMessage(sendBuf, raw); err != nil {
			return err
		}

		if c.state == stateEstablished {
			return nil
		}
	}
}

func (c *Conn) handleMessage(sendBuf *buffer.Buffer, raw []byte) error {
	switch c.state {
	case stateClientExpectServerHello:
		return c.handleServerHello(raw)
	case stateClientExpectEncryptedExtensions:
		return c.handleEncryptedExtensions(raw)
	case stateClientExpectCertificate:
		return c.handleCertificate(raw)
	case stateClientExpectCertVerify:
		return c.handleCertificateVerify(raw)
	case stateClientExpectFinished:
		return c.handleServerFinished(sendBuf, raw)
	case stateServerExpectClientHello:
		return c.handleClientHello(sendBuf, raw)
	case stateServerExpectFinished:
		return c.handleClientFinished(raw)
	case stateEstablished:
		return c.handlePostHandshakeMessage(raw)
	}

	return errors.Wrap(ErrLibrary, "message in unexpected connection state")
}

// handlePostHandshakeMessage tolerates NewSessionTicket (we do not resume)
// and applies KeyUpdate to the inbound direction.
func (c *Conn) handlePostHandshakeMessage(raw []byte) error {
	ku := &handshake.KeyUpdate{}
	if err := handshake.FromBytes(raw, ku); err == nil {
		return c.handleKeyUpdate(ku)
	}

	if err := handshake.FromBytes(raw, &handshake.NewSessionTicket{}); err == nil {
		return nil
	}

	return alert.NewError(
		errors.New("unsupported post-handshake message"), alert.UnexpectedMessage,
	)
}

func (c *Conn) handleKeyUpdate(ku *handshake.KeyUpdate) error {
	switch ku.RequestUpdate {
	case handshake.UpdateNotRequested:
	case handshake.UpdateRequested:
		c.echoKeyUpdate = true
	default:
		return alert.NewError(
			errors.Errorf("invalid key update request %d", ku.RequestUpdate),
			alert.IllegalParameter,
		)
	}

	if err := c.in.update(); err != nil {
		return err
	}

	return nil
}

// Send protects plaintext as application data records appended to sendBuf,
// fragmenting above the record size limit. A key update the peer requested
// is flushed first.
func (c *Conn) Send(sendBuf *buffer.Buffer, plaintext []byte) error {
	if err := c.requireEstablished(); err != nil {
		return err
	}

	if c.echoKeyUpdate {
		if err := c.sendKeyUpdate(sendBuf, handshake.UpdateNotRequested); err != nil {
			return err
		}
		c.echoKeyUpdate = false
	}

	rest := plaintext
	for {
		n := len(rest)
		if n > maxRecordLen {
			n = maxRecordLen
		}

		inner := tlsInnerPlainText{
			content:     rest[:n],
			contentType: contentTypeApplicationData,
		}
		if err := c.writeProtected(sendBuf, inner); err != nil {
			return err
		}

		rest = rest[n:]
		if len(rest) == 0 {
			return nil
		}
	}
}

// Receive unprotects at most one complete record from input, appending any
// application payload to plaintextBuf. consumed reports the bytes used; on
// incomplete input it returns (0, ErrWantRead) with the caller's bytes
// untouched. Post-handshake messages (tickets, key updates) produce no
// plaintext but still consume their record.
func (c *Conn) Receive(plaintextBuf *buffer.Buffer, input []byte) (consumed int, err error) {
	if err := c.requireEstablished(); err != nil {
		return 0, err
	}

	// Handshake surplus buffered before establishment is spliced in front
	// of the caller's bytes; once absorbed here, input counts as consumed.
	src := input
	absorbed := false
	if len(c.pending) > 0 {
		src = append(c.pending, input...)
		absorbed = true
	}

	rec, n, err := parseRecord(src)
	if err != nil {
		if !stderrors.Is(err, common.ErrNeedMoreBytes) {
			return 0, c.poison(alert.NewError(err, alert.RecordOverflow))
		}
		if absorbed {
			c.pending = src
			return len(input), errors.WithStack(ErrWantRead)
		}
		return 0, errors.WithStack(ErrWantRead)
	}

	if rec.contentType != contentTypeApplicationData {
		return 0, c.poison(alert.NewError(
			errors.Errorf("cleartext record type %d on established connection", rec.contentType),
			alert.UnexpectedMessage,
		))
	}

	// Reserve ahead of decryption so a memory failure leaves the record
	// sequence untouched and the call retryable.
	if err := plaintextBuf.Reserve(len(rec.fragment)); err != nil {
		return 0, err
	}

	inner, err := c.in.unprotect(rec)
	if err != nil {
		return 0, c.poison(alert.NewError(err, alert.BadRecordMAC))
	}

	if absorbed {
		c.pending = append([]byte(nil), src[n:]...)
		consumed = len(input)
	} else {
		consumed = n
	}

	switch inner.contentType {
	case contentTypeApplicationData:
		if _, err := plaintextBuf.Write(inner.content); err != nil {
			return consumed, err
		}
		return consumed, nil

	case contentTypeHandshake:
		if err := c.drainMessages(nil, inner.content); err != nil {
			return consumed, c.poison(err)
		}
		return consumed, nil

	case contentTypeAlert:
		err := c.handleAlertFragment(inner.content)
		c.teardown()
		var alertErr alert.Error
		if stderrors.As(err, &alertErr) && alertErr.Description == alert.CloseNotify {
			c.state = stateClosed
		} else {
			c.state = stateFailed
		}
		return consumed, err
	}

	return consumed, c.poison(alert.NewError(
		errors.Errorf("unexpected inner content type %d", inner.contentType),
		alert.UnexpectedMessage,
	))
}

// UpdateKeys re-keys the outbound direction, optionally asking the peer to
// do the same. The inbound direction is untouched until the peer's own
// KeyUpdate arrives.
func (c *Conn) UpdateKeys(sendBuf *buffer.Buffer, requestPeer bool) error {
	if err := c.requireEstablished(); err != nil {
		return err
	}

	req := handshake.UpdateNotRequested
	if requestPeer {
		req = handshake.UpdateRequested
	}

	c.echoKeyUpdate = false
	return c.sendKeyUpdate(sendBuf, req)
}

func (c *Conn) sendKeyUpdate(sendBuf *buffer.Buffer, req handshake.KeyUpdateRequest) error {
	raw := handshake.ToBytes(&handshake.KeyUpdate{RequestUpdate: req})
	if err := c.writeHandshakeOut(sendBuf, raw); err != nil {
		return err
	}

	return c.out.update()
}

// Close wipes every secret the connection still holds and poisons it. Safe
// to call at any time, any number of times.
func (c *Conn) Close() error {
	c.teardown()
	if c.state != stateFailed {
		c.state = stateClosed
	}
	return nil
}

func (c *Conn) requireEstablished() error {
	switch c.state {
	case stateEstablished:
		return nil
	case stateClosed, stateFailed:
		return errors.WithStack(ErrConnClosed)
	}
	return errors.WithStack(ErrNotEstablished)
}

// abort finishes a failed handshake: it fires the pending verify cleanup,
// notifies the peer unless the peer reported the failure, wipes all state
// and poisons the connection. The original error is passed through.
func (c *Conn) abort(sendBuf *buffer.Buffer, err error) error {
	c.runVerifyCleanup()

	desc := alert.InternalError
	remote := false

	var alertErr alert.Error
	if stderrors.As(err, &alertErr) {
		desc = alertErr.Description
		remote = alertErr.Remote
	}

	if !remote && sendBuf != nil {
		// Best effort; the failure being reported stays the primary error.
		_ = c.writeAlert(sendBuf, alert.Alert{
			Level:       alert.LevelFatal,
			Description: desc,
		})
	}

	c.teardown()
	c.state = stateFailed

	return err
}

// poison is abort for the established phase, where no outbound buffer is
// available to carry an alert.
func (c *Conn) poison(err error) error {
	c.teardown()
	c.state = stateFailed
	return err
}

func (c *Conn) runVerifyCleanup() {
	if c.verifyCleanup == nil {
		return
	}

	cleanup := c.verifyCleanup
	c.verifyCleanup = nil
	_ = cleanup(0, nil, nil)
}

func (c *Conn) teardown() {
	if c.sess != nil {
		c.sess.dispose()
	}
	c.in.wipe()
	c.out.wipe()

	for _, priv := range c.keyCandidates {
		secret.Wipe(priv)
	}
	c.keyCandidates = nil

	secret.Wipe(c.clientAppPending)
	c.clientAppPending = nil

	c.runVerifyCleanup()

	c.pending = nil
	c.msgBuf = nil
}

func (c *Conn) writeAlert(sendBuf *buffer.Buffer, a alert.Alert) error {
	if c.out.ready() {
		return c.writeProtected(sendBuf, tlsInnerPlainText{
			content:     a.Bytes(),
			contentType: contentTypeAlert,
		})
	}

	rec := tlsText{
		contentType: contentTypeAlert,
		version:     common.VersionTLS12,
		fragment:    a.Bytes(),
	}
	return rec.writeTo(sendBuf)
}

func (c *Conn) writeProtected(sendBuf *buffer.Buffer, inner tlsInnerPlainText) error {
	rec, err := c.out.protect(inner)
	if err != nil {
		return err
	}
	return rec.writeTo(sendBuf)
}

// writeHandshakeOut frames raw handshake bytes as records, protected when
// keys are up, fragmenting above the record size limit.
func (c *Conn) writeHandshakeOut(sendBuf *buffer.Buffer, raw []byte) error {
	for len(raw) > 0 {
		n := len(raw)
		if n > maxRecordLen {
			n = maxRecordLen
		}

		if c.out.ready() {
			err := c.writeProtected(sendBuf, tlsInnerPlainText{
				content:     raw[:n],
				contentType: contentTypeHandshake,
			})
			if err != nil {
				return err
			}
		} else {
			rec := tlsText{
				contentType: contentTypeHandshake,
				version:     common.VersionTLS12,
				fragment:    raw[:n],
			}
			if err := rec.writeTo(sendBuf); err != nil {
				return err
			}
		}

		raw = raw[n:]
	}

	return nil
}

func cloneSecret(b []byte) []byte {
	return append([]byte(nil), b...)
}
