package tlscore

import (
	stderrors "errors"

	"tlscore/buffer"
	"tlscore/internal/alert"

	"github.com/pkg/errors"
)

// Error classes partition every error code the core reports into alerts we
// generated, alerts the peer sent, and conditions that never reach the wire.
const (
	ClassSelfAlert = 0x000
	ClassPeerAlert = 0x100
	ClassInternal  = 0x200
)

// Codes for the internal class. Alert-class codes are the class bits ORed
// with the alert description.
const (
	CodeNoMemory            = ClassInternal | 0x01
	CodeHandshakeInProgress = ClassInternal | 0x02
	CodeLibrary             = ClassInternal | 0x03
	CodeIncompatibleKey     = ClassInternal | 0x04
)

var (
	// ErrNoMemory reports an output buffer that hit its growth limit.
	ErrNoMemory = buffer.ErrNoMemory

	// ErrHandshakeInProgress is the only non-terminal Handshake result: more
	// peer bytes are needed before the connection can establish.
	ErrHandshakeInProgress = errors.New("handshake in progress")

	// ErrLibrary marks a call the connection state does not permit.
	ErrLibrary = errors.New("library misuse")

	// ErrIncompatibleKey reports a certificate key that matches none of the
	// signature schemes the peer advertised.
	ErrIncompatibleKey = errors.New("certificate key incompatible with offered schemes")

	// ErrWantRead is returned by Receive when the input holds no complete
	// record. The caller's bytes are untouched; collect more and retry.
	ErrWantRead = errors.New("input holds no complete record")

	// ErrNotEstablished rejects Send/Receive before the handshake finished.
	ErrNotEstablished = errors.New("connection not established")

	// ErrConnClosed rejects any use of a closed or failed connection.
	ErrConnClosed = errors.New("connection closed")
)

// Code flattens err into the numeric taxonomy. Alerts we originated map to
// ClassSelfAlert|description, alerts received from the peer to
// ClassPeerAlert|description, everything else to the internal class.
func Code(err error) int {
	var alertErr alert.Error
	if stderrors.As(err, &alertErr) {
		if alertErr.Remote {
			return ClassPeerAlert | int(alertErr.Description)
		}
		return ClassSelfAlert | int(alertErr.Description)
	}

	switch {
	case stderrors.Is(err, ErrNoMemory):
		return CodeNoMemory
	case stderrors.Is(err, ErrHandshakeInProgress):
		return CodeHandshakeInProgress
	case stderrors.Is(err, ErrIncompatibleKey):
		return CodeIncompatibleKey
	}

	return CodeLibrary
}

// ErrorClass strips the description bits off a Code result.
func ErrorClass(code int) int { return code &^ 0xff }
