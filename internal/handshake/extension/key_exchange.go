package extension

import (
	"bytes"
	"tlscore/common/keyexchange"
	"tlscore/internal/util"

	"github.com/pkg/errors"
)

// Reference: https://datatracker.ietf.org/doc/html/rfc8446#section-4.2.7
type SupportedGroups struct {
	NamedGroupList []keyexchange.GroupID
}

var _ Extension = (*SupportedGroups)(nil)

func (s *SupportedGroups) ExtensionType() ExtensionType {
	return TypeSupportedGroups
}

func (s *SupportedGroups) Data() []byte {
	return util.ToVector(2, s.NamedGroupList)
}

func (s *SupportedGroups) Length() uint16 {
	return 2 + uint16(len(s.NamedGroupList))*2 // length + num named group * named group size
}

func (s *SupportedGroups) fillFrom(raw rawExtension) error {
	namedGroups, _, err := util.FromVector[keyexchange.GroupID](2, raw.data, false)
	if err != nil {
		return errors.Wrap(err, "reading named group list")
	}

	s.NamedGroupList = namedGroups
	return nil
}

// Reference: https://datatracker.ietf.org/doc/html/rfc8446#section-4.2.8
type KeyShareEntry struct {
	Group       keyexchange.GroupID
	KeyExchange []byte
}

var _ util.VectorConv = KeyShareEntry{}

func (k KeyShareEntry) Bytes() []byte {
	buf := bytes.NewBuffer(nil)

	buf.Write(k.Group.Bytes())
	buf.Write(util.ToVectorOpaque(2, k.KeyExchange))

	return buf.Bytes()
}

func (k KeyShareEntry) FromBytes(b []byte) (out util.VectorConv, rest []byte, err error) {
	group, rest, err := k.Group.FromBytes(b)
	if err != nil {
		return nil, nil, errors.Wrap(err, "reading group")
	}

	keyExchange, rest, err := util.FromVectorOpaque(2, rest, true)
	if err != nil {
		return nil, nil, errors.Wrap(err, "reading key exchange")
	}
	return KeyShareEntry{group.(keyexchange.GroupID), keyExchange}, rest, nil
}

type KeyShareCH struct{ KeyShares []KeyShareEntry }

var _ Extension = (*KeyShareCH)(nil)

func (k *KeyShareCH) ExtensionType() ExtensionType {
	return TypeKeyShare
}

func (k *KeyShareCH) Data() []byte {
	return util.ToVector(2, k.KeyShares)
}

func (k *KeyShareCH) Length() uint16 {
	dLen := uint16(2)
	for _, entry := range k.KeyShares {
		dLen += uint16(len(entry.Bytes()))
	}

	return dLen
}

func (k *KeyShareCH) fillFrom(raw rawExtension) error {
	entries, _, err := util.FromVector[KeyShareEntry](2, raw.data, false)
	if err != nil {
		return errors.Wrap(err, "reading key shares")
	}

	k.KeyShares = entries
	return nil
}

type KeyShareHRR struct{ SelectedGroup keyexchange.GroupID }

var _ Extension = (*KeyShareHRR)(nil)

func (k *KeyShareHRR) ExtensionType() ExtensionType {
	return TypeKeyShare
}

func (k *KeyShareHRR) Data() []byte {
	return k.SelectedGroup.Bytes()
}

func (k *KeyShareHRR) Length() uint16 {
	return 2
}

func (k *KeyShareHRR) fillFrom(raw rawExtension) error {
	group, rest, err := k.SelectedGroup.FromBytes(raw.data)
	if err != nil {
		return errors.Wrap(err, "reading group")
	}

	if len(rest) != 0 {
		return errors.New("invalid length")
	}

	k.SelectedGroup = group.(keyexchange.GroupID)
	return nil
}

type KeyShareSH struct{ KeyShare KeyShareEntry }

var _ Extension = (*KeyShareSH)(nil)

func (k *KeyShareSH) ExtensionType() ExtensionType {
	return TypeKeyShare
}

func (k *KeyShareSH) Data() []byte {
	return k.KeyShare.Bytes()
}

func (k *KeyShareSH) Length() uint16 {
	return uint16(len(k.KeyShare.Bytes()))
}

func (k *KeyShareSH) fillFrom(raw rawExtension) error {
	share, rest, err := k.KeyShare.FromBytes(raw.data)
	if err != nil {
		return errors.Wrap(err, "reading key share")
	}

	if len(rest) != 0 {
		return errors.New("invalid length")
	}

	k.KeyShare = share.(KeyShareEntry)
	return nil
}
