package tlscore

import (
	"bytes"
	"sync"
	"testing"

	"tlscore/buffer"
	"tlscore/common/ciphersuite"
	"tlscore/common/keyexchange"
	"tlscore/internal/alert"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func mustSuite(t *testing.T, id ciphersuite.ID) ciphersuite.Suite {
	t.Helper()

	s, ok := ciphersuite.Get(id)
	require.True(t, ok)
	return s
}

// The baseline scenario: a full handshake over AES-128-GCM/SHA-256 in two
// round trips, then application data in both directions.
func TestPingPong(t *testing.T) {
	aes128 := []ciphersuite.Suite{mustSuite(t, ciphersuite.TLS_AES_128_GCM_SHA256)}
	client, server := newTestPair(t, func(c, s *Config) {
		c.CipherSuites = aes128
		s.CipherSuites = aes128
	})

	establish(t, client, server)

	assert.False(t, client.IsServer())
	assert.True(t, server.IsServer())

	suite, ok := server.CipherSuite()
	require.True(t, ok)
	assert.Equal(t, ciphersuite.TLS_AES_128_GCM_SHA256, suite.ID())

	roundTrip(t, client, server, []byte("ping"))
	roundTrip(t, server, client, []byte("pong"))
}

func TestRoundTripAllSuites(t *testing.T) {
	ids := []ciphersuite.ID{
		ciphersuite.TLS_AES_128_GCM_SHA256,
		ciphersuite.TLS_AES_256_GCM_SHA384,
		ciphersuite.TLS_CHACHA20_POLY1305_SHA256,
	}

	names := []string{"aes128gcm", "aes256gcm", "chacha20poly1305"}

	for idx, id := range ids {
		t.Run(names[idx], func(t *testing.T) {
			only := []ciphersuite.Suite{mustSuite(t, id)}
			client, server := newTestPair(t, func(c, s *Config) {
				c.CipherSuites = only
				s.CipherSuites = only
			})

			establish(t, client, server)

			suite, _ := client.CipherSuite()
			assert.Equal(t, id, suite.ID())

			payload := bytes.Repeat([]byte{0xA5}, 1000)
			roundTrip(t, client, server, payload)
			roundTrip(t, server, client, payload)
		})
	}
}

// pumpHandshake drives the whole handshake delivering bytes chunk-wise,
// returning the full wire output of each side.
func pumpHandshake(t *testing.T, client, server *Conn, chunk int) (clientWire, serverWire []byte) {
	t.Helper()

	cout, sout := newBuf(t), newBuf(t)

	_, err := client.Handshake(cout, nil)
	require.ErrorIs(t, err, ErrHandshakeInProgress)

	run := func(conn *Conn, out *buffer.Buffer, in []byte) bool {
		for len(in) > 0 {
			n := chunk
			if n > len(in) {
				n = len(in)
			}

			consumed, err := conn.Handshake(out, in[:n])
			if err == nil {
				require.Equal(t, n, consumed)
				require.Len(t, in[n:], 0)
				return true
			}

			require.ErrorIs(t, err, ErrHandshakeInProgress)
			require.Equal(t, n, consumed)
			in = in[n:]
		}
		return false
	}

	require.False(t, run(server, sout, cout.Bytes()))
	clientWire = append(clientWire, cout.Bytes()...)
	cout.Reset()

	require.True(t, run(client, cout, sout.Bytes()))
	serverWire = append(serverWire, sout.Bytes()...)

	require.True(t, run(server, newBuf(t), cout.Bytes()))
	clientWire = append(clientWire, cout.Bytes()...)

	return clientWire, serverWire
}

// Feeding the handshake byte by byte must neither change the outcome nor the
// bytes on the wire.
func TestHandshakeByteSplitDeterminism(t *testing.T) {
	// Ed25519 signatures and X25519 key shares consume a fixed amount of
	// entropy, so two runs over the same seeds emit identical bytes.
	chain, pool := newEd25519Chain(t)
	x25519, ok := keyexchange.Get(keyexchange.Group_X25519)
	require.True(t, ok)

	newSeededPair := func(t *testing.T) (*Conn, *Conn) {
		clientCfg := Config{
			Groups:   []keyexchange.Group{x25519},
			Delegate: &X509Delegate{Roots: pool},
			Random:   &fakeRand{state: 1},
		}
		serverCfg := Config{
			Groups:   []keyexchange.Group{x25519},
			Delegate: &X509Delegate{Chains: []CertificateChain{chain}},
			Random:   &fakeRand{state: 2},
		}

		client, err := Client(clientCfg, testServerName)
		require.NoError(t, err)
		server, err := Server(serverCfg)
		require.NoError(t, err)
		return client, server
	}

	client, server := newSeededPair(t)
	wholeClient, wholeServer := pumpHandshake(t, client, server, 1<<16)

	client, server = newSeededPair(t)
	splitClient, splitServer := pumpHandshake(t, client, server, 1)

	assert.Equal(t, wholeClient, splitClient)
	assert.Equal(t, wholeServer, splitServer)

	roundTrip(t, client, server, []byte("still works"))
}

func TestNegotiationServerPreference(t *testing.T) {
	aes128 := mustSuite(t, ciphersuite.TLS_AES_128_GCM_SHA256)
	aes256 := mustSuite(t, ciphersuite.TLS_AES_256_GCM_SHA384)

	cases := []struct {
		name         string
		serverPrefs  []ciphersuite.Suite
		clientOffers []ciphersuite.Suite
		want         ciphersuite.ID
	}{
		{"server order wins", []ciphersuite.Suite{aes256, aes128}, []ciphersuite.Suite{aes128, aes256}, aes256.ID()},
		{"swapped server order", []ciphersuite.Suite{aes128, aes256}, []ciphersuite.Suite{aes256, aes128}, aes128.ID()},
		{"client order irrelevant", []ciphersuite.Suite{aes256, aes128}, []ciphersuite.Suite{aes256, aes128}, aes256.ID()},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			client, server := newTestPair(t, func(c, s *Config) {
				c.CipherSuites = tc.clientOffers
				s.CipherSuites = tc.serverPrefs
			})

			establish(t, client, server)

			suite, ok := server.CipherSuite()
			require.True(t, ok)
			assert.Equal(t, tc.want, suite.ID())
		})
	}
}

func TestNegotiationGroupPreference(t *testing.T) {
	x25519, _ := keyexchange.Get(keyexchange.Group_X25519)
	p256, _ := keyexchange.Get(keyexchange.Group_Secp256r1)

	client, server := newTestPair(t, func(c, s *Config) {
		c.Groups = []keyexchange.Group{x25519, p256}
		s.Groups = []keyexchange.Group{p256, x25519}
	})

	establish(t, client, server)
	roundTrip(t, client, server, []byte("group ok"))
}

func TestNegotiationNoOverlap(t *testing.T) {
	client, server := newTestPair(t, func(c, s *Config) {
		c.CipherSuites = []ciphersuite.Suite{mustSuite(t, ciphersuite.TLS_AES_128_GCM_SHA256)}
		s.CipherSuites = []ciphersuite.Suite{mustSuite(t, ciphersuite.TLS_AES_256_GCM_SHA384)}
	})

	cout := newBuf(t)
	_, err := client.Handshake(cout, nil)
	require.ErrorIs(t, err, ErrHandshakeInProgress)

	sout := newBuf(t)
	_, err = server.Handshake(sout, cout.Bytes())
	require.Error(t, err)
	assert.Equal(t, ClassSelfAlert|int(alert.HandshakeFailure), Code(err))

	// The server notified the client; the client sees the peer's alert.
	cout.Reset()
	_, err = client.Handshake(cout, sout.Bytes())
	require.Error(t, err)
	assert.Equal(t, ClassPeerAlert|int(alert.HandshakeFailure), Code(err))
}

func TestTamperedRecord(t *testing.T) {
	client, server := newTestPair(t, nil)
	establish(t, client, server)

	wire := newBuf(t)
	require.NoError(t, client.Send(wire, []byte("integrity matters")))

	tampered := append([]byte(nil), wire.Bytes()...)
	tampered[recordHeaderLen+2] ^= 0x40

	out := newBuf(t)
	_, err := server.Receive(out, tampered)
	require.Error(t, err)
	assert.Equal(t, ClassSelfAlert|int(alert.BadRecordMAC), Code(err))
	assert.Zero(t, out.Len())

	// The failure poisons the connection.
	_, err = server.Receive(out, tampered)
	require.ErrorIs(t, err, ErrConnClosed)
}

func TestSequenceNumbersAdvance(t *testing.T) {
	client, server := newTestPair(t, nil)
	establish(t, client, server)

	payload := []byte("same bytes every time")

	first := newBuf(t)
	require.NoError(t, client.Send(first, payload))
	second := newBuf(t)
	require.NoError(t, client.Send(second, payload))

	// Fresh nonce per record: identical plaintext, distinct ciphertext.
	assert.NotEqual(t, first.Bytes(), second.Bytes())
	assert.EqualValues(t, 2, client.out.seq)

	for _, wire := range [][]byte{first.Bytes(), second.Bytes()} {
		got := newBuf(t)
		n, err := server.Receive(got, wire)
		require.NoError(t, err)
		assert.Equal(t, len(wire), n)
		assert.Equal(t, payload, got.Bytes())
	}
	assert.EqualValues(t, 2, server.in.seq)
}

func TestKeyUpdate(t *testing.T) {
	client, server := newTestPair(t, nil)
	establish(t, client, server)

	wire := newBuf(t)
	require.NoError(t, client.UpdateKeys(wire, false))
	assert.EqualValues(t, 0, client.out.seq)

	// The server applies the update to its inbound key; no plaintext comes out.
	out := newBuf(t)
	n, err := server.Receive(out, wire.Bytes())
	require.NoError(t, err)
	assert.Equal(t, wire.Len(), n)
	assert.Zero(t, out.Len())

	roundTrip(t, client, server, []byte("under new keys"))
	roundTrip(t, server, client, []byte("other direction untouched"))
}

func TestKeyUpdateRequested(t *testing.T) {
	client, server := newTestPair(t, nil)
	establish(t, client, server)

	wire := newBuf(t)
	require.NoError(t, client.UpdateKeys(wire, true))

	out := newBuf(t)
	_, err := server.Receive(out, wire.Bytes())
	require.NoError(t, err)
	require.True(t, server.echoKeyUpdate)

	// The echo precedes the server's next application record.
	reply := newBuf(t)
	require.NoError(t, server.Send(reply, []byte("echoed")))
	assert.False(t, server.echoKeyUpdate)

	got := newBuf(t)
	rest := reply.Bytes()
	for len(rest) > 0 {
		n, err := client.Receive(got, rest)
		require.NoError(t, err)
		rest = rest[n:]
	}
	assert.Equal(t, []byte("echoed"), got.Bytes())
}

func TestReceiveWantRead(t *testing.T) {
	client, server := newTestPair(t, nil)
	establish(t, client, server)

	wire := newBuf(t)
	require.NoError(t, client.Send(wire, []byte("split me")))

	out := newBuf(t)
	partial := wire.Bytes()[:wire.Len()-1]
	n, err := server.Receive(out, partial)
	require.ErrorIs(t, err, ErrWantRead)
	assert.Zero(t, n)
	assert.Zero(t, out.Len())

	// The caller keeps its bytes and feeds the full record later.
	n, err = server.Receive(out, wire.Bytes())
	require.NoError(t, err)
	assert.Equal(t, wire.Len(), n)
	assert.Equal(t, []byte("split me"), out.Bytes())
}

func TestSecretWipedOnClose(t *testing.T) {
	client, server := newTestPair(t, nil)
	establish(t, client, server)

	secrets := [][]byte{
		client.in.secret, client.in.iv,
		client.out.secret, client.out.iv,
	}
	for _, s := range secrets {
		require.NotEmpty(t, s)
	}

	require.NoError(t, client.Close())

	for _, s := range secrets {
		assert.Equal(t, make([]byte, len(s)), s)
	}

	_, err := client.Handshake(newBuf(t), nil)
	require.ErrorIs(t, err, ErrConnClosed)
	require.ErrorIs(t, client.Send(newBuf(t), []byte("x")), ErrConnClosed)

	// Close stays idempotent.
	require.NoError(t, client.Close())
	require.NoError(t, server.Close())
}

func TestSecretWipedOnFailure(t *testing.T) {
	client, server := newTestPair(t, nil)
	establish(t, client, server)

	inSecret, inIV := server.in.secret, server.in.iv

	wire := newBuf(t)
	require.NoError(t, client.Send(wire, []byte("payload")))
	tampered := append([]byte(nil), wire.Bytes()...)
	tampered[len(tampered)-1] ^= 0x01

	_, err := server.Receive(newBuf(t), tampered)
	require.Error(t, err)

	assert.Equal(t, make([]byte, len(inSecret)), inSecret)
	assert.Equal(t, make([]byte, len(inIV)), inIV)
}

func TestMisuseBeforeEstablished(t *testing.T) {
	client, _ := newTestPair(t, nil)

	require.ErrorIs(t, client.Send(newBuf(t), []byte("early")), ErrNotEstablished)

	_, err := client.Receive(newBuf(t), nil)
	require.ErrorIs(t, err, ErrNotEstablished)

	require.ErrorIs(t, client.UpdateKeys(newBuf(t), false), ErrNotEstablished)
}

func TestConcurrentConnections(t *testing.T) {
	defer goleak.VerifyNone(t)

	chain, pool := newTestChain(t)
	clientCfg := Config{Delegate: &X509Delegate{Roots: pool}}
	serverCfg := Config{Delegate: &X509Delegate{Chains: []CertificateChain{chain}}}

	const workers = 8
	errCh := make(chan error, workers)

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errCh <- runLoopback(clientCfg, serverCfg)
		}()
	}
	wg.Wait()
	close(errCh)

	for err := range errCh {
		require.NoError(t, err)
	}
}

// runLoopback is the assertion-free handshake+echo used by the concurrency
// test, where require cannot run off the test goroutine.
func runLoopback(clientCfg, serverCfg Config) error {
	client, err := Client(clientCfg, testServerName)
	if err != nil {
		return err
	}
	server, err := Server(serverCfg)
	if err != nil {
		return err
	}
	defer client.Close()
	defer server.Close()

	cout, err := buffer.New(make([]byte, 64))
	if err != nil {
		return err
	}
	sout, err := buffer.New(make([]byte, 64))
	if err != nil {
		return err
	}

	if _, err := client.Handshake(cout, nil); !isInProgress(err) {
		return err
	}
	if _, err := server.Handshake(sout, cout.Bytes()); !isInProgress(err) {
		return err
	}
	cout.Reset()
	if _, err := client.Handshake(cout, sout.Bytes()); err != nil {
		return err
	}
	sout.Reset()
	if _, err := server.Handshake(sout, cout.Bytes()); err != nil {
		return err
	}

	cout.Reset()
	if err := client.Send(cout, []byte("echo")); err != nil {
		return err
	}
	sout.Reset()
	if _, err := server.Receive(sout, cout.Bytes()); err != nil {
		return err
	}
	if !bytes.Equal(sout.Bytes(), []byte("echo")) {
		return errors.New("loopback payload mismatch")
	}
	return nil
}

func isInProgress(err error) bool {
	return err != nil && Code(err) == CodeHandshakeInProgress
}
