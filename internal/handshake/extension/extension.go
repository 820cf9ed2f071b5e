package extension

import (
	"bytes"
	"encoding/binary"
	"io"
	"reflect"
	"slices"
	"tlscore/common"
	"tlscore/internal/util"

	"github.com/pkg/errors"
)

type ExtensionType uint16

const (
	TypeServerName          ExtensionType = 0
	TypeMaxFragLength       ExtensionType = 1
	TypeStatusRequest       ExtensionType = 5
	TypeSupportedGroups     ExtensionType = 10
	TypeSignatureAlgos      ExtensionType = 13
	TypeALPN                ExtensionType = 16 // Application Layer Protocol Negotiation.
	TypePreSharedKey        ExtensionType = 41
	TypeEarlyData           ExtensionType = 42
	TypeSupportedVersions   ExtensionType = 43
	TypeCookie              ExtensionType = 44
	TypePskKeyExchangeModes ExtensionType = 45
	TypeCertAuthorities     ExtensionType = 47
	TypePostHandshakeAuth   ExtensionType = 49
	TypeSignatureAlgosCert  ExtensionType = 50
	TypeKeyShare            ExtensionType = 51
)

func (e ExtensionType) Bytes() []byte {
	b := make([]byte, 2)
	b[0] = uint8(e >> 8)
	b[1] = uint8(e)
	return b
}

// Reference: https://datatracker.ietf.org/doc/html/rfc8446#section-4.2
type Extension interface {
	ExtensionType() ExtensionType
	Length() uint16 // Length of data.
	Data() []byte

	fillFrom(raw rawExtension) error
}

type rawExtension struct {
	t      ExtensionType
	length uint16
	data   []byte
}

var _ util.VectorConv = rawExtension{}

func (r rawExtension) Bytes() []byte {
	buf := bytes.NewBuffer(nil)

	buf.Write(r.t.Bytes())
	buf.Write(common.ToBigEndianBytes(uint(r.length), 2))
	buf.Write(r.data)

	return buf.Bytes()
}

func (r rawExtension) FromBytes(b []byte) (out util.VectorConv, rest []byte, err error) {
	if len(b) < 2 {
		return nil, nil, common.ErrNeedMoreBytes
	}

	r.t = ExtensionType(binary.BigEndian.Uint16(b[0:2]))
	rest = b[2:]

	r.data, rest, err = util.FromVectorOpaque(2, rest, true)
	if err != nil {
		return nil, nil, errors.Wrap(err, "reading extension data")
	}
	r.length = uint16(len(r.data))

	return r, rest, nil
}

// ToRaw encodes the given extensions, skipping nil entries. Hello messages
// declare every extension they may carry and leave absent ones nil.
func ToRaw(exts ...Extension) []rawExtension {
	raws := make([]rawExtension, 0, len(exts))
	for _, ext := range exts {
		if isNil(ext) {
			continue
		}
		raws = append(raws, rawExtension{
			t:      ext.ExtensionType(),
			length: ext.Length(),
			data:   ext.Data(),
		})
	}
	return raws
}

func isNil(ext Extension) bool {
	if ext == nil {
		return true
	}
	v := reflect.ValueOf(ext)
	return v.Kind() == reflect.Pointer && v.IsNil()
}

// ByteLen reports the total encoded size of the non-nil extensions,
// excluding the 2-byte list length prefix.
func ByteLen(exts ...Extension) (l uint16) {
	for _, ext := range exts {
		if isNil(ext) {
			continue
		}
		l += 4 // extension type + length bytes.
		l += ext.Length()
	}
	return l
}

func WriteRaws(raws []rawExtension, w io.Writer) {
	l := uint16(0)
	for _, raw := range raws {
		l += 4 + raw.length
	}

	buf := bytes.NewBuffer(nil)
	buf.Write(common.ToBigEndianBytes(uint(l), 2))
	for _, raw := range raws {
		buf.Write(raw.Bytes())
	}

	buf.WriteTo(w) //nolint:errcheck // bytes.Buffer never fails.
}

func Parse(b []byte, allowRemain bool) ([]rawExtension, error) {
	raws, _, err := util.FromVector[rawExtension](2, b, allowRemain)
	if err != nil {
		return nil, errors.Wrap(err, "parsing extensions")
	}
	return raws, nil
}

// Extract fills a new T from the matching raw extension.
// It returns nil when the extension is absent.
func Extract[T any, PT interface {
	Extension
	*T
}](raws []rawExtension, _ PT) (PT, error) {
	out := PT(new(T))
	for _, raw := range raws {
		if raw.t != out.ExtensionType() {
			continue
		}
		if err := out.fillFrom(raw); err != nil {
			return nil, err
		}
		return out, nil
	}
	return nil, nil
}

// Equal compares two optional extensions by their encoded data.
func Equal[T any, PT interface {
	Extension
	*T
}](a, b PT) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return bytes.Equal(a.Data(), b.Data())
}

// Extensions is an ordered extension list carried as-is by messages that
// don't interpret their contents up front.
type Extensions struct{ raws []rawExtension }

func ExtensionsFrom(exts ...Extension) Extensions {
	return Extensions{raws: ToRaw(exts...)}
}

func ExtensionsFromRaw(b []byte) (Extensions, error) {
	extensions, _, err := util.FromVector[rawExtension](2, b, false)
	if err != nil {
		return Extensions{}, errors.Wrap(err, "parsing extensions")
	}

	return Extensions{raws: extensions}, nil
}

// Length doesn't include the length of the length field (2 bytes).
func (e Extensions) Length() (l uint16) {
	for _, ext := range e.raws {
		l += 4 // extension type + length bytes.
		l += ext.length
	}
	return
}

func (e Extensions) WriteTo(w io.Writer) (n int64, err error) {
	buf := bytes.NewBuffer(nil)

	// Write total length.
	buf.Write(common.ToBigEndianBytes(uint(e.Length()), 2))

	for _, raw := range e.raws {
		buf.Write(raw.Bytes())
	}

	return buf.WriteTo(w)
}

var ErrNoMatchingExtension = errors.New("no matching extension")

func (e Extensions) Extract(v Extension) error {
	for _, raw := range e.raws {
		if raw.t == v.ExtensionType() {
			return v.fillFrom(raw)
		}
	}

	return ErrNoMatchingExtension
}

func (e Extensions) Clone() Extensions {
	return Extensions{raws: slices.Clone(e.raws)}
}

func (e *Extensions) Set(v Extension) {
	input := rawExtension{
		t:      v.ExtensionType(),
		length: v.Length(),
		data:   v.Data(),
	}

	for idx, raw := range e.raws {
		if raw.t == input.t {
			e.raws[idx] = input
			return
		}
	}

	e.raws = append(e.raws, input)
}

func (e *Extensions) Has(t ExtensionType) bool {
	return slices.ContainsFunc(e.raws, func(ext rawExtension) bool {
		return ext.t == t
	})
}
