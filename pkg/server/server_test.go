package server_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	cbs "github.com/samsamfire/cbs"
	"github.com/samsamfire/cbs/pkg/client"
	"github.com/samsamfire/cbs/pkg/config"
	"github.com/samsamfire/cbs/pkg/crypto"
	"github.com/samsamfire/cbs/pkg/header"
	"github.com/samsamfire/cbs/pkg/message"
	"github.com/samsamfire/cbs/pkg/server"
)

func ltk(b byte) [cbs.LtkLen]byte {
	var k [cbs.LtkLen]byte
	for i := range k {
		k[i] = b
	}
	return k
}

func fakeIo(clock *cbs.Timestamp) cbs.Io {
	return cbs.Io{
		TRNG: crypto.TRNG,
		Now:  func() (cbs.Timestamp, cbs.Err) { return *clock, cbs.OK },
	}
}

func testServerConfig() *config.Server {
	return &config.Server{
		Config: config.ServerConfig{HeaderType: 1},
		Clients: []config.ServerClientConfig{
			{Sid: 1, Ltk: ltk(1)},
			{Sid: 2, Ltk: ltk(2)},
		},
		Groups: []config.GroupConfig{
			{
				Gid:                                0,
				MaxCtrNonceDelayMsgs:                16,
				CtrNonceUpperLimit:                  1_000_000,
				SessionDurationMillis:               3_600_000,
				DelayBetweenRenNotificationsMillis:  60_000,
				MaxSilenceIntervalMillis:             5_000,
				ClientSidsInGroupBitmap:              0b11,
			},
		},
	}
}

func testClientConfig(sid cbs.Sid, ltkByte byte) *config.Client {
	return &config.Client{
		Config: config.ClientConfig{HeaderType: 1, Sid: sid, Ltk: ltk(ltkByte)},
		Groups: []config.GroupConfig{
			{
				Gid:                                0,
				MaxCtrNonceDelayMsgs:                16,
				CtrNonceUpperLimit:                  1_000_000,
				SessionDurationMillis:               3_600_000,
				DelayBetweenRenNotificationsMillis:  60_000,
				MaxSilenceIntervalMillis:             5_000,
			},
		},
	}
}

func newParser() message.Parser {
	return message.Parser{
		HeaderType: 1,
		NewHash:    func() crypto.Hash { return &crypto.Blake2XOF{} },
		NewAEAD:    func() crypto.AEAD { return &crypto.ChaChaAEAD{} },
	}
}

func TestHandshakeEstablishesSession(t *testing.T) {
	clock := cbs.Timestamp(1000)
	srv, err := server.New(testServerConfig(), fakeIo(&clock))
	require.Equal(t, cbs.OK, err)
	cl, err := client.New(testClientConfig(1, 1), fakeIo(&clock))
	require.Equal(t, cbs.OK, err)

	req, err := cl.BuildRequest(0, clock)
	require.Equal(t, cbs.OK, err)

	parser := newParser()
	hdr, payload, perr := parser.ParseHeader(req)
	require.Equal(t, cbs.OK, perr)

	reaction, sdu, serr := srv.ProcessReceived(req, 0x100, clock)
	require.Equal(t, cbs.OK, serr)
	require.Nil(t, sdu)
	require.NotNil(t, reaction)

	resHdr, resPayload, perr := parser.ParseHeader(reaction)
	require.Equal(t, cbs.OK, perr)
	assert.Equal(t, cbs.PtyRES, resHdr.Pty)
	_ = hdr
	_ = payload
	_ = resPayload

	cerr := cl.ProcessReceivedResponse(resPayload, resHdr, clock)
	require.Equal(t, cbs.OK, cerr)
}

func TestSecuredFdRoundTripAfterHandshake(t *testing.T) {
	clock := cbs.Timestamp(1000)
	srv, _ := server.New(testServerConfig(), fakeIo(&clock))
	cl, _ := client.New(testClientConfig(1, 1), fakeIo(&clock))
	parser := newParser()

	req, _ := cl.BuildRequest(0, clock)
	reaction, _, _ := srv.ProcessReceived(req, 0x100, clock)
	resHdr, resPayload, _ := parser.ParseHeader(reaction)
	require.Equal(t, cbs.OK, cl.ProcessReceivedResponse(resPayload, resHdr, clock))

	sdfd, err := srv.BuildSecuredFd(0, []byte("hello client"))
	require.Equal(t, cbs.OK, err)

	hdr, payload, perr := parser.ParseHeader(sdfd)
	require.Equal(t, cbs.OK, perr)
	sdu, cerr := cl.ProcessReceivedSecuredFd(payload, hdr, clock, 0x200)
	require.Equal(t, cbs.OK, cerr)
	assert.Equal(t, "hello client", string(sdu.Bytes()))
	assert.True(t, sdu.WasSecured)
}

func TestBuildSecuredFdFailsWithoutAnyRequest(t *testing.T) {
	clock := cbs.Timestamp(1000)
	srv, _ := server.New(testServerConfig(), fakeIo(&clock))
	_, err := srv.BuildSecuredFd(0, []byte("no one is listening yet"))
	assert.Equal(t, cbs.ErrNoPotentialReceiver, err)
}

func TestProcessReceivedRejectsMessageFromServerSid(t *testing.T) {
	clock := cbs.Timestamp(1000)
	srv, _ := server.New(testServerConfig(), fakeIo(&clock))
	builder := message.Builder{
		HeaderType: 1,
		NewHash:    func() crypto.Hash { return &crypto.Blake2XOF{} },
		NewAEAD:    func() crypto.AEAD { return &crypto.ChaChaAEAD{} },
	}
	out := make([]byte, cbs.MaxCanFdLen)
	n, berr := builder.BuildUnsecured(out, 0, cbs.ServerSid, []byte("spoofed"))
	require.Equal(t, cbs.OK, berr)
	_, _, err := srv.ProcessReceived(out[:n], 0x100, clock)
	assert.Equal(t, cbs.ErrMessageFromMyself, err)
}

func TestProcessReceivedUnsecuredPassesThroughPlainly(t *testing.T) {
	clock := cbs.Timestamp(1000)
	srv, _ := server.New(testServerConfig(), fakeIo(&clock))
	builder := message.Builder{
		HeaderType: 1,
		NewHash:    func() crypto.Hash { return &crypto.Blake2XOF{} },
		NewAEAD:    func() crypto.AEAD { return &crypto.ChaChaAEAD{} },
	}
	out := make([]byte, cbs.MaxCanFdLen)
	n, berr := builder.BuildUnsecured(out, 0, 1, []byte("diagnostic ping"))
	require.Equal(t, cbs.OK, berr)

	_, sdu, err := srv.ProcessReceived(out[:n], 0x100, clock)
	require.Equal(t, cbs.OK, err)
	require.NotNil(t, sdu)
	assert.False(t, sdu.WasSecured)
	assert.True(t, sdu.IsForUser)
	assert.Equal(t, "diagnostic ping", string(sdu.Bytes()))
}

func TestForceSessionRenewalRequiresAPotentialReceiver(t *testing.T) {
	clock := cbs.Timestamp(1000)
	srv, _ := server.New(testServerConfig(), fakeIo(&clock))
	_, err := srv.ForceSessionRenewal(0, clock)
	assert.Equal(t, cbs.ErrNoPotentialReceiver, err)
}

func TestForceSessionRenewalBuildsRenAfterHandshake(t *testing.T) {
	clock := cbs.Timestamp(1000)
	srv, _ := server.New(testServerConfig(), fakeIo(&clock))
	cl, _ := client.New(testClientConfig(1, 1), fakeIo(&clock))
	parser := newParser()

	req, _ := cl.BuildRequest(0, clock)
	reaction, _, _ := srv.ProcessReceived(req, 0x100, clock)
	resHdr, resPayload, _ := parser.ParseHeader(reaction)
	require.Equal(t, cbs.OK, cl.ProcessReceivedResponse(resPayload, resHdr, clock))

	ren, err := srv.ForceSessionRenewal(0, clock)
	require.Equal(t, cbs.OK, err)
	hdr, _, perr := parser.ParseHeader(ren)
	require.Equal(t, cbs.OK, perr)
	assert.Equal(t, cbs.PtyREN, hdr.Pty)
}

func TestProcessReceivedSadtpReportsNotImplemented(t *testing.T) {
	clock := cbs.Timestamp(1000)
	srv, _ := server.New(testServerConfig(), fakeIo(&clock))
	out := make([]byte, header.Len(1))
	perr := header.Pack(out, 1, cbs.Header{Gid: 0, Sid: 1, Pty: cbs.PtySADTP})
	require.Equal(t, cbs.OK, perr)

	_, _, err := srv.ProcessReceived(out, 0x100, clock)
	assert.Equal(t, cbs.ErrNotImplemented, err)
}

func TestUnknownSourceRejected(t *testing.T) {
	clock := cbs.Timestamp(1000)
	srv, _ := server.New(testServerConfig(), fakeIo(&clock))
	cl, _ := client.New(testClientConfig(9, 9), fakeIo(&clock))
	req, _ := cl.BuildRequest(0, clock)
	_, _, err := srv.ProcessReceived(req, 0x100, clock)
	assert.Equal(t, cbs.ErrUnknownSource, err)
}
