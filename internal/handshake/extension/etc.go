package extension

import (
	"tlscore/common"
	"tlscore/common/signature"
	"tlscore/internal/util"

	"github.com/pkg/errors"
)

// Reference: https://datatracker.ietf.org/doc/html/rfc8446#section-4.2.1
type SupportedVersionsCH struct{ Versions []common.Version }

var _ Extension = (*SupportedVersionsCH)(nil)

func (s *SupportedVersionsCH) ExtensionType() ExtensionType {
	return TypeSupportedVersions
}

func (s *SupportedVersionsCH) Data() []byte {
	return util.ToVector(1, s.Versions)
}

func (s *SupportedVersionsCH) Length() uint16 {
	return 1 + uint16(len(s.Versions)*2) // length of versions + sizeof(Version) * num versions
}

func (s *SupportedVersionsCH) fillFrom(raw rawExtension) error {
	out, _, err := util.FromVector[common.Version](1, raw.data, false)
	if err != nil {
		return errors.Wrap(err, "reading versions")
	}

	s.Versions = out
	return nil
}

// Reference: https://datatracker.ietf.org/doc/html/rfc8446#section-4.2.1
type SupportedVersionsSH struct{ SelectedVersion common.Version }

var _ Extension = (*SupportedVersionsSH)(nil)

func (s *SupportedVersionsSH) ExtensionType() ExtensionType {
	return TypeSupportedVersions
}

func (s *SupportedVersionsSH) Data() []byte {
	return s.SelectedVersion.Bytes()
}

func (s *SupportedVersionsSH) Length() uint16 {
	return 2
}

func (s *SupportedVersionsSH) fillFrom(raw rawExtension) error {
	if len(raw.data) != 2 {
		return errors.New("length doesn't match expectations")
	}

	s.SelectedVersion = common.NewVersion([2]uint8(raw.data))

	return nil
}

// Reference: https://datatracker.ietf.org/doc/html/rfc8446#section-4.2.2
type Cookie struct {
	Cookie []byte
}

var _ Extension = (*Cookie)(nil)

func (c *Cookie) ExtensionType() ExtensionType {
	return TypeCookie
}

func (c *Cookie) Data() []byte {
	return util.ToVectorOpaque(2, c.Cookie)
}

func (c *Cookie) Length() uint16 {
	return 2 + uint16(len(c.Cookie)) // length of cookie + actual cookie
}

func (c *Cookie) fillFrom(raw rawExtension) error {
	data, _, err := util.FromVectorOpaque(2, raw.data, false)
	if err != nil {
		return errors.Wrap(err, "reading cookie")
	}

	c.Cookie = data
	return nil
}

// Reference: https://datatracker.ietf.org/doc/html/rfc8446#section-4.2.3
type SignatureAlgos struct {
	SupportedAlgos []signature.Scheme
}

var _ Extension = (*SignatureAlgos)(nil)

func (s *SignatureAlgos) ExtensionType() ExtensionType { return TypeSignatureAlgos }

func (s *SignatureAlgos) Data() []byte {
	return util.ToVector(2, s.SupportedAlgos)
}

func (s *SignatureAlgos) Length() uint16 {
	return 2 + uint16(len(s.SupportedAlgos)*2)
}

func (s *SignatureAlgos) fillFrom(raw rawExtension) error {
	schemes, _, err := util.FromVector[signature.Scheme](2, raw.data, false)
	if err != nil {
		return errors.Wrap(err, "reading supported algorithms")
	}

	s.SupportedAlgos = schemes
	return nil
}

type SignatureAlgosCert struct{ SignatureAlgos }

var _ Extension = (*SignatureAlgosCert)(nil)

func (s *SignatureAlgosCert) ExtensionType() ExtensionType { return TypeSignatureAlgosCert }
