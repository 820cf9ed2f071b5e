package tlscore

import (
	"bytes"
	"crypto/cipher"
	"encoding/binary"
	"math"

	"tlscore/buffer"
	"tlscore/common"
	"tlscore/common/ciphersuite"
	"tlscore/internal/secret"
	"tlscore/internal/util/hkdf"

	"github.com/pkg/errors"
)

type contentType uint8

// Reference: https://datatracker.ietf.org/doc/html/rfc8446#section-5.1
const (
	contentTypeInvalid          contentType = 0
	contentTypeChangeCipherSpec contentType = 20
	contentTypeAlert            contentType = 21
	contentTypeHandshake        contentType = 22
	contentTypeApplicationData  contentType = 23
)

const (
	recordHeaderLen = 5
	maxRecordLen    = 2 << 13
	// Protected fragments carry the AEAD tag and the inner content type on
	// top of the plaintext limit.
	maxProtectedLen = maxRecordLen + 256
)

var errRecordTooLong = errors.New("record fragment exceeds the length limit")

type tlsText struct {
	contentType contentType
	version     common.Version
	fragment    []byte
}

func (t tlsText) metadata() []byte {
	b := make([]byte, 0, recordHeaderLen)
	b = append(b, byte(t.contentType))
	b = append(b, t.version.Bytes()...)
	return binary.BigEndian.AppendUint16(b, uint16(len(t.fragment)))
}

// parseRecord decodes one record off the front of b without copying the
// fragment. It reports the exact byte count the record occupies;
// common.ErrNeedMoreBytes means b ends mid-record and nothing was consumed.
func parseRecord(b []byte) (rec tlsText, n int, err error) {
	if len(b) < recordHeaderLen {
		return tlsText{}, 0, errors.WithStack(common.ErrNeedMoreBytes)
	}

	length := int(binary.BigEndian.Uint16(b[3:5]))
	if length > maxProtectedLen {
		return tlsText{}, 0, errors.WithStack(errRecordTooLong)
	}

	n = recordHeaderLen + length
	if len(b) < n {
		return tlsText{}, 0, errors.WithStack(common.ErrNeedMoreBytes)
	}

	rec = tlsText{
		contentType: contentType(b[0]),
		version:     common.NewVersion([2]uint8{b[1], b[2]}),
		fragment:    b[recordHeaderLen:n],
	}

	return rec, n, nil
}

func (t tlsText) writeTo(buf *buffer.Buffer) error {
	if err := buf.Reserve(recordHeaderLen + len(t.fragment)); err != nil {
		return err
	}

	buf.Write(t.metadata())
	buf.Write(t.fragment)

	return nil
}

// Reference: https://datatracker.ietf.org/doc/html/rfc8446#section-5.2
type tlsInnerPlainText struct {
	content     []byte
	contentType contentType
}

func (t tlsInnerPlainText) bytes() []byte {
	b := make([]byte, 0, len(t.content)+1)
	b = append(b, t.content...)
	return append(b, byte(t.contentType))
}

func (t *tlsInnerPlainText) fillFrom(b []byte) error {
	trimmed := bytes.TrimRightFunc(b, func(r rune) bool { return r == 0 })
	if len(trimmed) == 0 {
		return errors.New("inner plaintext carries no content type")
	}

	t.content = trimmed[:len(trimmed)-1]
	t.contentType = contentType(trimmed[len(trimmed)-1])

	return nil
}

var errNonceExhausted = errors.New("sequence number space exhausted, re-key required")

// protector binds one traffic direction to one traffic secret. The secret is
// retained only to serve "traffic upd" re-keys and is wiped on replacement.
type protector struct {
	suite ciphersuite.Suite
	aead  cipher.AEAD

	secret []byte
	iv     []byte
	seq    uint64
}

func (p *protector) ready() bool { return p.aead != nil }

// setSecret installs trafficSecret, taking ownership of it. The sequence
// counter restarts at zero for the new key epoch.
func (p *protector) setSecret(suite ciphersuite.Suite, trafficSecret []byte) error {
	key, err := hkdf.ExpandLabel(suite, trafficSecret, "key", "", suite.AEAD().KeyLen())
	if err != nil {
		return errors.Wrap(err, "expanding write key")
	}
	defer secret.Wipe(key)

	iv, err := hkdf.ExpandLabel(suite, trafficSecret, "iv", "", aeadNonceLen)
	if err != nil {
		return errors.Wrap(err, "expanding write iv")
	}

	aead, err := suite.AEAD().New(key)
	if err != nil {
		return errors.Wrap(err, "constructing aead")
	}

	secret.Wipe(p.secret)
	secret.Wipe(p.iv)

	p.suite = suite
	p.aead = aead
	p.secret = trafficSecret
	p.iv = iv
	p.seq = 0

	return nil
}

const aeadNonceLen = 12

// update re-keys the direction per RFC 8446 section 7.2.
func (p *protector) update() error {
	next, err := hkdf.ExpandLabel(
		p.suite, p.secret, "traffic upd", "", p.suite.Hash().Size(),
	)
	if err != nil {
		return errors.Wrap(err, "deriving updated traffic secret")
	}

	return p.setSecret(p.suite, next)
}

func (p *protector) nonce() []byte {
	n := make([]byte, len(p.iv))
	binary.BigEndian.PutUint64(n[len(n)-8:], p.seq)
	for i := range n {
		n[i] ^= p.iv[i]
	}
	return n
}

func (p *protector) protect(inner tlsInnerPlainText) (tlsText, error) {
	if p.seq == math.MaxUint64 {
		return tlsText{}, errors.WithStack(errNonceExhausted)
	}

	plaintext := inner.bytes()
	rec := tlsText{
		contentType: contentTypeApplicationData,
		version:     common.VersionTLS12,
		// The header authenticated as additional data must already carry
		// the protected length.
		fragment: make([]byte, len(plaintext)+p.aead.Overhead()),
	}

	rec.fragment = p.aead.Seal(rec.fragment[:0], p.nonce(), plaintext, rec.metadata())
	p.seq++

	return rec, nil
}

func (p *protector) unprotect(rec tlsText) (inner tlsInnerPlainText, err error) {
	plaintext, err := p.aead.Open(nil, p.nonce(), rec.fragment, rec.metadata())
	if err != nil {
		return tlsInnerPlainText{}, errors.Wrap(err, "opening record")
	}
	p.seq++

	if err := inner.fillFrom(plaintext); err != nil {
		return tlsInnerPlainText{}, err
	}

	return inner, nil
}

func (p *protector) wipe() {
	secret.Wipe(p.secret)
	secret.Wipe(p.iv)
	p.secret = nil
	p.iv = nil
	p.aead = nil
	p.seq = 0
}
