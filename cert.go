package tlscore

import (
	"crypto"
	"crypto/rand"
	"crypto/x509"
	"io"

	"tlscore/common/signature"
	"tlscore/internal/handshake"
	"tlscore/internal/handshake/extension"
	"tlscore/lib/slice"

	"github.com/benbjohnson/clock"
	"github.com/pkg/errors"
)

// SignFunc signs the exact bytes the handshake puts into CertificateVerify.
type SignFunc func(data []byte) ([]byte, error)

// VerifySignFunc checks the peer's CertificateVerify signature over signed.
//
// Every handshake that obtained a VerifySignFunc calls it exactly once. When
// the handshake fails before a real signature arrives, the call is made with
// a zero scheme and nil slices so the delegate can release whatever state it
// pinned for the verification.
type VerifySignFunc func(scheme signature.Scheme, signed, sig []byte) error

// CertificateDelegate supplies and checks certificates. Implementations are
// free to keep private keys out of process; the core only ever sees the
// resulting signatures.
type CertificateDelegate interface {
	// Lookup picks the chain to present to a client that advertised
	// peerSchemes, and a signer for its leaf key. Server side, once per
	// handshake.
	Lookup(serverName string, peerSchemes []signature.Scheme) (
		signature.Scheme, SignFunc, CertificateChain, error,
	)

	// Verify validates the peer's chain for serverName and returns the
	// function that will later check the CertificateVerify signature.
	// Client side, once per handshake.
	Verify(serverName string, chain CertificateChain) (VerifySignFunc, error)
}

// CertificateChain is a leaf-first DER chain, with the leaf's private key
// when the chain is ours to present.
type CertificateChain struct {
	Chain   [][]byte
	PrivKey crypto.PrivateKey

	cachedX509Certs []*x509.Certificate
}

func (chain *CertificateChain) load() error {
	chain.cachedX509Certs = make([]*x509.Certificate, 0, len(chain.Chain))
	for _, rawCert := range chain.Chain {
		cert, err := x509.ParseCertificate(rawCert)
		if err != nil {
			return errors.Wrap(err, "parsing certificate")
		}

		chain.cachedX509Certs = append(chain.cachedX509Certs, cert)
	}

	return nil
}

func (chain *CertificateChain) leaf() *x509.Certificate {
	return chain.cachedX509Certs[0]
}

// chainFromMessage parses the peer's certificate chain. PrivKey stays nil.
func chainFromMessage(cert *handshake.Certificate) (CertificateChain, error) {
	chain := CertificateChain{
		Chain: make([][]byte, len(cert.CertList)),
	}
	for idx, raw := range cert.CertList {
		chain.Chain[idx] = raw.CertData
	}

	return chain, chain.load()
}

func makeCertMessage(chain CertificateChain) *handshake.Certificate {
	entries := sliceutil.Map(chain.Chain, func(cert []byte) handshake.CertificateEntry {
		return handshake.CertificateEntry{
			CertData:   cert,
			Extensions: extension.ExtensionsFrom(),
		}
	})

	return &handshake.Certificate{
		CertRequestContext: []byte{},
		CertList:           entries,
	}
}

var signatureInputPrefix = [64]byte{
	0x20, 0x20, 0x20, 0x20, 0x20, 0x20, 0x20, 0x20, 0x20, 0x20,
	0x20, 0x20, 0x20, 0x20, 0x20, 0x20, 0x20, 0x20, 0x20, 0x20,
	0x20, 0x20, 0x20, 0x20, 0x20, 0x20, 0x20, 0x20, 0x20, 0x20,
	0x20, 0x20, 0x20, 0x20, 0x20, 0x20, 0x20, 0x20, 0x20, 0x20,
	0x20, 0x20, 0x20, 0x20, 0x20, 0x20, 0x20, 0x20, 0x20, 0x20,
	0x20, 0x20, 0x20, 0x20, 0x20, 0x20, 0x20, 0x20, 0x20, 0x20,
	0x20, 0x20, 0x20, 0x20,
}

// Reference: https://datatracker.ietf.org/doc/html/rfc8446#section-4.4.3
func certificateSignatureInput(transcriptHash []byte, isServer bool) []byte {
	context := "TLS 1.3, client CertificateVerify"
	if isServer {
		context = "TLS 1.3, server CertificateVerify"
	}

	data := append(signatureInputPrefix[:], []byte(context)...)
	data = append(data, 0x00)
	data = append(data, transcriptHash...)
	return data
}

// X509Delegate is the stdlib-x509 CertificateDelegate. Chains serves the
// server side, Roots the client side; Clock pins certificate validity to an
// injectable time source.
type X509Delegate struct {
	Chains []CertificateChain
	Roots  *x509.CertPool

	Clock  clock.Clock
	Random io.Reader
}

var _ CertificateDelegate = (*X509Delegate)(nil)

func (d *X509Delegate) Lookup(
	serverName string, peerSchemes []signature.Scheme,
) (signature.Scheme, SignFunc, CertificateChain, error) {
	for idx := range d.Chains {
		// Work on a copy; delegates are shared between connections.
		chain := d.Chains[idx]
		if chain.cachedX509Certs == nil {
			if err := chain.load(); err != nil {
				return 0, nil, CertificateChain{}, err
			}
		}

		algo, err := signature.AlgorithmFromX509Cert(chain.leaf())
		if err != nil {
			continue
		}

		offered := false
		for _, scheme := range peerSchemes {
			if scheme == algo.ID() {
				offered = true
				break
			}
		}
		if !offered {
			continue
		}

		sign := func(data []byte) ([]byte, error) {
			return algo.Sign(d.random(), data, chain.PrivKey)
		}

		return algo.ID(), sign, chain, nil
	}

	return 0, nil, CertificateChain{}, errors.WithStack(ErrIncompatibleKey)
}

func (d *X509Delegate) Verify(
	serverName string, chain CertificateChain,
) (VerifySignFunc, error) {
	if len(chain.cachedX509Certs) == 0 {
		return nil, errors.New("empty certificate chain")
	}

	leaf := chain.leaf()

	_, err := leaf.Verify(x509.VerifyOptions{
		DNSName:       serverName,
		Roots:         d.Roots,
		Intermediates: newCertPoolOrNil(chain.cachedX509Certs[1:]),
		CurrentTime:   d.clock().Now(),
	})
	if err != nil {
		return nil, errors.Wrap(err, "validating certificate chain")
	}

	verify := func(scheme signature.Scheme, signed, sig []byte) error {
		if scheme == 0 && signed == nil && sig == nil {
			// Cleanup call: the handshake failed before a signature
			// arrived. Nothing pinned here, nothing to release.
			return nil
		}

		algo, ok := signature.Get(scheme)
		if !ok {
			return errors.New("unsupported signature scheme")
		}

		return algo.Verify(signed, sig, leaf.PublicKey)
	}

	return verify, nil
}

func (d *X509Delegate) clock() clock.Clock {
	if d.Clock == nil {
		return clock.New()
	}
	return d.Clock
}

func (d *X509Delegate) random() io.Reader {
	if d.Random == nil {
		return rand.Reader
	}
	return d.Random
}

func newCertPoolOrNil(certs []*x509.Certificate) *x509.CertPool {
	if len(certs) == 0 {
		return nil
	}

	pool := x509.NewCertPool()
	for _, cert := range certs {
		pool.AddCert(cert)
	}
	return pool
}
