package tlscore

import (
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"crypto/x509/pkix"
	"math/big"
	"testing"
	"time"

	"tlscore/buffer"

	"github.com/stretchr/testify/require"
)

const testServerName = "testsrv.example"

// fakeRand is a deterministic entropy source so two runs with the same seed
// produce byte-identical handshakes.
type fakeRand struct{ state uint64 }

func (f *fakeRand) Read(p []byte) (int, error) {
	for i := range p {
		f.state = f.state*6364136223846793005 + 1442695040888963407
		p[i] = byte(f.state >> 56)
	}
	return len(p), nil
}

func newTestChain(t *testing.T) (CertificateChain, *x509.CertPool) {
	t.Helper()

	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)

	tmpl := &x509.Certificate{
		SerialNumber:          big.NewInt(1),
		Subject:               pkix.Name{CommonName: testServerName},
		DNSNames:              []string{testServerName},
		NotBefore:             time.Now().Add(-time.Hour),
		NotAfter:              time.Now().Add(time.Hour),
		KeyUsage:              x509.KeyUsageDigitalSignature | x509.KeyUsageCertSign,
		BasicConstraintsValid: true,
		IsCA:                  true,
	}

	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, &key.PublicKey, key)
	require.NoError(t, err)

	cert, err := x509.ParseCertificate(der)
	require.NoError(t, err)

	pool := x509.NewCertPool()
	pool.AddCert(cert)

	return CertificateChain{Chain: [][]byte{der}, PrivKey: key}, pool
}

// newEd25519Chain builds a chain whose signatures never consume entropy, so
// handshakes over it are reproducible byte for byte.
func newEd25519Chain(t *testing.T) (CertificateChain, *x509.CertPool) {
	t.Helper()

	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)

	tmpl := &x509.Certificate{
		SerialNumber:          big.NewInt(2),
		Subject:               pkix.Name{CommonName: testServerName},
		DNSNames:              []string{testServerName},
		NotBefore:             time.Now().Add(-time.Hour),
		NotAfter:              time.Now().Add(time.Hour),
		KeyUsage:              x509.KeyUsageDigitalSignature | x509.KeyUsageCertSign,
		BasicConstraintsValid: true,
		IsCA:                  true,
	}

	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, pub, priv)
	require.NoError(t, err)

	cert, err := x509.ParseCertificate(der)
	require.NoError(t, err)

	pool := x509.NewCertPool()
	pool.AddCert(cert)

	return CertificateChain{Chain: [][]byte{der}, PrivKey: priv}, pool
}

func newTestPair(t *testing.T, mutate func(client, server *Config)) (*Conn, *Conn) {
	t.Helper()

	chain, pool := newTestChain(t)

	clientCfg := Config{Delegate: &X509Delegate{Roots: pool}}
	serverCfg := Config{Delegate: &X509Delegate{Chains: []CertificateChain{chain}}}
	if mutate != nil {
		mutate(&clientCfg, &serverCfg)
	}

	client, err := Client(clientCfg, testServerName)
	require.NoError(t, err)

	server, err := Server(serverCfg)
	require.NoError(t, err)

	return client, server
}

func newBuf(t *testing.T) *buffer.Buffer {
	t.Helper()

	buf, err := buffer.New(make([]byte, 64))
	require.NoError(t, err)
	return buf
}

// establish pumps the three handshake flights between client and server.
func establish(t *testing.T, client, server *Conn) {
	t.Helper()

	cout := newBuf(t)
	sout := newBuf(t)

	_, err := client.Handshake(cout, nil)
	require.ErrorIs(t, err, ErrHandshakeInProgress)

	n, err := server.Handshake(sout, cout.Bytes())
	require.ErrorIs(t, err, ErrHandshakeInProgress)
	require.Equal(t, cout.Len(), n)

	cout.Reset()
	n, err = client.Handshake(cout, sout.Bytes())
	require.NoError(t, err)
	require.Equal(t, sout.Len(), n)

	n, err = server.Handshake(newBuf(t), cout.Bytes())
	require.NoError(t, err)
	require.Equal(t, cout.Len(), n)
}

// roundTrip sends payload from one end and reads it back on the other.
func roundTrip(t *testing.T, from, to *Conn, payload []byte) {
	t.Helper()

	wire := newBuf(t)
	require.NoError(t, from.Send(wire, payload))

	got := newBuf(t)
	rest := wire.Bytes()
	for len(rest) > 0 {
		n, err := to.Receive(got, rest)
		require.NoError(t, err)
		rest = rest[n:]
	}

	require.Equal(t, payload, got.Bytes())
}
