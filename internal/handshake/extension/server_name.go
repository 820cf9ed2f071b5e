package extension

import (
	"bytes"
	"tlscore/common"
	"tlscore/internal/util"

	"github.com/pkg/errors"
)

// Reference: https://datatracker.ietf.org/doc/html/rfc6066#section-3
type ServerNameType uint8

const (
	ServerNameTypeHostName ServerNameType = 0
)

type ServerName struct {
	NameType ServerNameType
	Name     []byte
}

var _ util.VectorConv = ServerName{}

func (s ServerName) Bytes() []byte {
	buf := bytes.NewBuffer(nil)
	buf.WriteByte(byte(s.NameType))
	buf.Write(util.ToVectorOpaque(2, s.Name))
	return buf.Bytes()
}

func (s ServerName) FromBytes(b []byte) (out util.VectorConv, rest []byte, err error) {
	if len(b) < 1 {
		return nil, nil, common.ErrNeedMoreBytes
	}

	s.NameType = ServerNameType(b[0])

	name, rest, err := util.FromVectorOpaque(2, b[1:], true)
	if err != nil {
		return nil, nil, errors.Wrap(err, "reading name")
	}
	s.Name = name

	return s, rest, nil
}

type ServerNameList struct {
	ServerNameList []ServerName
}

var _ Extension = (*ServerNameList)(nil)

func (s *ServerNameList) ExtensionType() ExtensionType {
	return TypeServerName
}

func (s *ServerNameList) Length() uint16 {
	l := uint16(2)
	for _, name := range s.ServerNameList {
		l += uint16(len(name.Bytes()))
	}
	return l
}

func (s *ServerNameList) Data() []byte {
	return util.ToVector(2, s.ServerNameList)
}

func (s *ServerNameList) fillFrom(raw rawExtension) error {
	names, _, err := util.FromVector[ServerName](2, raw.data, false)
	if err != nil {
		return errors.Wrap(err, "reading names")
	}

	s.ServerNameList = names
	return nil
}
