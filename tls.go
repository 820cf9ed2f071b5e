// Package tlscore is a transport-agnostic TLS 1.3 protocol core. A Conn
// drives the handshake and record protection over caller-supplied byte
// slices; all I/O belongs to the caller, which feeds received bytes in and
// collects outbound bytes from a growable buffer.Buffer.
package tlscore

import (
	"crypto/rand"
	"io"

	"tlscore/common/ciphersuite"
	"tlscore/common/keyexchange"
	"tlscore/common/signature"

	"github.com/pkg/errors"
)

// Config carries the negotiation preferences and the certificate delegate
// shared by any number of connections. The slices are ordered by preference;
// on the server side the first entry also present in the client's offer
// wins. A zero field falls back to the package default.
type Config struct {
	CipherSuites   []ciphersuite.Suite
	Groups         []keyexchange.Group
	SignatureAlgos []signature.Scheme

	Delegate CertificateDelegate

	// Random is the entropy source for hello randoms, key exchange and
	// signing. Defaults to crypto/rand.
	Random io.Reader
}

func defaultCipherSuites() []ciphersuite.Suite {
	ids := []ciphersuite.ID{
		ciphersuite.TLS_AES_128_GCM_SHA256,
		ciphersuite.TLS_AES_256_GCM_SHA384,
		ciphersuite.TLS_CHACHA20_POLY1305_SHA256,
	}

	suites := make([]ciphersuite.Suite, 0, len(ids))
	for _, id := range ids {
		if s, ok := ciphersuite.Get(id); ok {
			suites = append(suites, s)
		}
	}
	return suites
}

func defaultGroups() []keyexchange.Group {
	ids := []keyexchange.GroupID{
		keyexchange.Group_X25519,
		keyexchange.Group_Secp256r1,
		keyexchange.Group_Secp384r1,
	}

	groups := make([]keyexchange.Group, 0, len(ids))
	for _, id := range ids {
		if g, ok := keyexchange.Get(id); ok {
			groups = append(groups, g)
		}
	}
	return groups
}

func defaultSignatureAlgos() []signature.Scheme {
	return []signature.Scheme{
		signature.Scheme_ECDSA_Secp256r1_SHA256,
		signature.Scheme_ECDSA_Secp384r1_SHA384,
		signature.Scheme_RSA_PSS_RSAE_SHA256,
		signature.Scheme_RSA_PSS_RSAE_SHA384,
		signature.Scheme_RSA_PKCS1_SHA256,
		signature.Scheme_Ed25519,
	}
}

func (c Config) withDefaults() (Config, error) {
	if c.Delegate == nil {
		return Config{}, errors.New("config needs a certificate delegate")
	}

	if len(c.CipherSuites) == 0 {
		c.CipherSuites = defaultCipherSuites()
	}
	if len(c.Groups) == 0 {
		c.Groups = defaultGroups()
	}
	if len(c.SignatureAlgos) == 0 {
		c.SignatureAlgos = defaultSignatureAlgos()
	}
	if c.Random == nil {
		c.Random = rand.Reader
	}

	return c, nil
}

// Client builds the client end of a connection. serverName is the peer
// identity to request via SNI and to validate the certificate against; it
// may be empty when the delegate does not need one.
func Client(config Config, serverName string) (*Conn, error) {
	config, err := config.withDefaults()
	if err != nil {
		return nil, err
	}

	return &Conn{
		config:     config,
		serverName: serverName,
		state:      stateClientStart,
	}, nil
}

// Server builds the server end of a connection.
func Server(config Config) (*Conn, error) {
	config, err := config.withDefaults()
	if err != nil {
		return nil, err
	}

	return &Conn{
		config:   config,
		isServer: true,
		state:    stateServerExpectClientHello,
	}, nil
}
