package client_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	cbs "github.com/samsamfire/cbs"
	"github.com/samsamfire/cbs/pkg/client"
	"github.com/samsamfire/cbs/pkg/config"
	"github.com/samsamfire/cbs/pkg/crypto"
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

func testClientConfig() *config.Client {
	return &config.Client{
		Config: config.ClientConfig{HeaderType: 1, Sid: 1, Ltk: ltk(1)},
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

func TestBuildRequestRejectsUnknownGroup(t *testing.T) {
	clock := cbs.Timestamp(0)
	cl, err := client.New(testClientConfig(), fakeIo(&clock))
	require.Equal(t, cbs.OK, err)
	_, berr := cl.BuildRequest(7, clock)
	assert.Equal(t, cbs.ErrUnknownGroup, berr)
}

func TestBuildRequestRejectsHandshakeAlreadyOngoing(t *testing.T) {
	clock := cbs.Timestamp(0)
	cl, _ := client.New(testClientConfig(), fakeIo(&clock))
	_, err := cl.BuildRequest(0, clock)
	require.Equal(t, cbs.OK, err)
	_, err = cl.BuildRequest(0, clock)
	assert.Equal(t, cbs.ErrHandshakeOngoing, err)
}

func TestBuildSecuredFdRejectsBeforeSessionEstablished(t *testing.T) {
	clock := cbs.Timestamp(0)
	cl, _ := client.New(testClientConfig(), fakeIo(&clock))
	_, err := cl.BuildSecuredFd(0, []byte("too early"))
	assert.Equal(t, cbs.ErrSessionNotEstablished, err)
}

func TestProcessReceivedSecuredFdRejectsBeforeSessionEstablished(t *testing.T) {
	clock := cbs.Timestamp(0)
	cl, _ := client.New(testClientConfig(), fakeIo(&clock))
	_, err := cl.ProcessReceivedSecuredFd([]byte{0, 0, 0, 0}, cbs.Header{Gid: 0, Sid: cbs.ServerSid, Pty: cbs.PtySADFD}, clock, 0)
	assert.Equal(t, cbs.ErrSessionNotEstablished, err)
}

func TestProcessReceivedResponseRejectsNonServerSender(t *testing.T) {
	clock := cbs.Timestamp(0)
	cl, _ := client.New(testClientConfig(), fakeIo(&clock))
	err := cl.ProcessReceivedResponse([]byte{}, cbs.Header{Gid: 0, Sid: 5, Pty: cbs.PtyRES}, clock)
	assert.Equal(t, cbs.ErrServerOnlyMessage, err)
}

func TestProcessReceivedResponseIgnoredWithoutOngoingHandshake(t *testing.T) {
	clock := cbs.Timestamp(0)
	cl, _ := client.New(testClientConfig(), fakeIo(&clock))
	err := cl.ProcessReceivedResponse(make([]byte, 64), cbs.Header{Gid: 0, Sid: cbs.ServerSid, Pty: cbs.PtyRES}, clock)
	assert.Equal(t, cbs.ErrMsgIgnored, err)
}

func TestProcessReceivedRenewalRejectsNonServerSender(t *testing.T) {
	clock := cbs.Timestamp(0)
	cl, _ := client.New(testClientConfig(), fakeIo(&clock))
	_, err := cl.ProcessReceivedRenewal([]byte{}, cbs.Header{Gid: 0, Sid: 3, Pty: cbs.PtyREN}, clock)
	assert.Equal(t, cbs.ErrServerOnlyMessage, err)
}

func TestProcessReceivedRenewalRequiresEstablishedSession(t *testing.T) {
	clock := cbs.Timestamp(0)
	cl, _ := client.New(testClientConfig(), fakeIo(&clock))
	_, err := cl.ProcessReceivedRenewal([]byte{}, cbs.Header{Gid: 0, Sid: cbs.ServerSid, Pty: cbs.PtyREN}, clock)
	assert.Equal(t, cbs.ErrSessionNotEstablished, err)
}

func TestFindGroupIgnoresUnknownGroupOnReceive(t *testing.T) {
	clock := cbs.Timestamp(0)
	cl, _ := client.New(testClientConfig(), fakeIo(&clock))
	_, err := cl.ProcessReceivedSecuredFd([]byte{0, 0, 0, 0}, cbs.Header{Gid: 9, Sid: cbs.ServerSid, Pty: cbs.PtySADFD}, clock, 0)
	assert.Equal(t, cbs.ErrMsgIgnored, err)
}
