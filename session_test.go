package tlscore

import (
	"testing"

	"tlscore/common/ciphersuite"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestSessions(t *testing.T) (a, b *session) {
	t.Helper()

	suite, ok := ciphersuite.Get(ciphersuite.TLS_AES_128_GCM_SHA256)
	require.True(t, ok)

	return newSession(suite), newSession(suite)
}

// Two endpoints feeding the same transcript and shared secret through the
// schedule must land on the same traffic secrets.
func TestKeyScheduleAgreement(t *testing.T) {
	a, b := newTestSessions(t)

	transcript := [][]byte{[]byte("client hello bytes"), []byte("server hello bytes")}
	shared := []byte("ecdhe shared secret")

	for _, s := range []*session{a, b} {
		for _, msg := range transcript {
			s.writeTranscript(msg)
		}
		require.NoError(t, s.setEarlySecret())
		require.NoError(t, s.deriveHandshakeSecrets(append([]byte(nil), shared...)))
	}

	require.NotEmpty(t, a.clientHsTraffic)
	assert.Equal(t, a.clientHsTraffic, b.clientHsTraffic)
	assert.Equal(t, a.serverHsTraffic, b.serverHsTraffic)
	assert.NotEqual(t, a.clientHsTraffic, a.serverHsTraffic)

	aClient, aServer, err := a.deriveMasterSecrets()
	require.NoError(t, err)
	bClient, bServer, err := b.deriveMasterSecrets()
	require.NoError(t, err)

	assert.Equal(t, aClient, bClient)
	assert.Equal(t, aServer, bServer)
	assert.NotEqual(t, aClient, aServer)
}

func TestKeyScheduleTranscriptBinds(t *testing.T) {
	a, b := newTestSessions(t)

	a.writeTranscript([]byte("one transcript"))
	b.writeTranscript([]byte("another transcript"))

	for _, s := range []*session{a, b} {
		require.NoError(t, s.setEarlySecret())
		require.NoError(t, s.deriveHandshakeSecrets([]byte("same shared secret")))
	}

	assert.NotEqual(t, a.clientHsTraffic, b.clientHsTraffic)
}

func TestFinishedMACDeterministic(t *testing.T) {
	a, b := newTestSessions(t)

	for _, s := range []*session{a, b} {
		s.writeTranscript([]byte("hellos"))
		require.NoError(t, s.setEarlySecret())
		require.NoError(t, s.deriveHandshakeSecrets([]byte("shared")))
		s.writeTranscript([]byte("server params"))
	}

	aMAC, err := a.serverFinishedMAC()
	require.NoError(t, err)
	bMAC, err := b.serverFinishedMAC()
	require.NoError(t, err)
	assert.Equal(t, aMAC, bMAC)

	cMAC, err := a.clientFinishedMAC()
	require.NoError(t, err)
	assert.NotEqual(t, aMAC, cMAC)

	// More transcript, different verify data.
	a.writeTranscript([]byte("finished"))
	laterMAC, err := a.serverFinishedMAC()
	require.NoError(t, err)
	assert.NotEqual(t, aMAC, laterMAC)
}

func TestSessionDispose(t *testing.T) {
	s, _ := newTestSessions(t)

	s.writeTranscript([]byte("hellos"))
	require.NoError(t, s.setEarlySecret())
	require.NoError(t, s.deriveHandshakeSecrets([]byte("shared")))

	stage, client, server := s.stageSecret, s.clientHsTraffic, s.serverHsTraffic

	s.dispose()
	s.dispose() // idempotent

	assert.Nil(t, s.stageSecret)
	assert.Equal(t, make([]byte, len(stage)), stage)
	assert.Equal(t, make([]byte, len(client)), client)
	assert.Equal(t, make([]byte, len(server)), server)
}
