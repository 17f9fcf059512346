package message_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	cbs "github.com/samsamfire/cbs"
	"github.com/samsamfire/cbs/pkg/crypto"
	"github.com/samsamfire/cbs/pkg/message"
)

func newHash() crypto.Hash { return &crypto.Blake2XOF{} }
func newAEAD() crypto.AEAD { return &crypto.ChaChaAEAD{} }

func fixedKey(b byte) []byte {
	k := make([]byte, cbs.LtkLen)
	for i := range k {
		k[i] = b
	}
	return k
}

func newBuilder() *message.Builder {
	return &message.Builder{HeaderType: 0, NewHash: newHash, NewAEAD: newAEAD}
}

func newParser() *message.Parser {
	return &message.Parser{HeaderType: 0, NewHash: newHash, NewAEAD: newAEAD}
}

func TestRequestRoundTrip(t *testing.T) {
	b, p := newBuilder(), newParser()
	ltk := fixedKey(0x10)
	buf := make([]byte, 64)

	n, err := b.BuildRequest(buf, 3, 2, ltk, 0xDEADBEEFCAFEBABE)
	require.Equal(t, cbs.OK, err)
	require.Equal(t, 3+message.ReqPayloadLen, n)

	hdr, payload, err := p.ParseHeader(buf[:n])
	require.Equal(t, cbs.OK, err)
	assert.Equal(t, cbs.Header{Gid: 3, Sid: 2, Pty: cbs.PtyREQ}, hdr)

	reqNonce, err := p.ParseRequest(payload, hdr, ltk)
	require.Equal(t, cbs.OK, err)
	assert.Equal(t, cbs.ReqNonce(0xDEADBEEFCAFEBABE), reqNonce)
}

func TestRequestTamperedTagRejected(t *testing.T) {
	b, p := newBuilder(), newParser()
	ltk := fixedKey(0x20)
	buf := make([]byte, 64)

	n, err := b.BuildRequest(buf, 1, 1, ltk, 0x1122334455667788)
	require.Equal(t, cbs.OK, err)
	buf[n-1] ^= 0xFF

	hdr, payload, err := p.ParseHeader(buf[:n])
	require.Equal(t, cbs.OK, err)
	_, err = p.ParseRequest(payload, hdr, ltk)
	assert.Equal(t, cbs.ErrInvalidTag, err)
}

func TestRequestZeroNonceRejected(t *testing.T) {
	b, p := newBuilder(), newParser()
	ltk := fixedKey(0x30)
	buf := make([]byte, 64)

	n, err := b.BuildRequest(buf, 1, 1, ltk, 0)
	require.Equal(t, cbs.OK, err)
	hdr, payload, err := p.ParseHeader(buf[:n])
	require.Equal(t, cbs.OK, err)
	_, err = p.ParseRequest(payload, hdr, ltk)
	assert.Equal(t, cbs.ErrReceivedZeroReqNonce, err)
}

func TestResponseRoundTrip(t *testing.T) {
	b, p := newBuilder(), newParser()
	ltk := fixedKey(0x40)
	buf := make([]byte, 64)
	stk := fixedKey(0x99)

	const reqNonce cbs.ReqNonce = 0xAAAAAAAAAAAAAAAA
	const resNonce cbs.ResNonce = 0xBBBBBBBBBBBBBBBB
	n, err := b.BuildResponse(buf, 2, 5, ltk, 7, reqNonce, resNonce, stk)
	require.Equal(t, cbs.OK, err)
	require.Equal(t, 3+message.ResPayloadLen, n)

	hdr, payload, err := p.ParseHeader(buf[:n])
	require.Equal(t, cbs.OK, err)
	assert.Equal(t, cbs.Pty(cbs.PtyRES), hdr.Pty)

	fields, err := p.ParseResponse(payload, hdr, ltk, reqNonce)
	require.Equal(t, cbs.OK, err)
	assert.Equal(t, cbs.Sid(5), fields.ClientSid)
	assert.Equal(t, cbs.CtrNonce(7), fields.CtrNonce)
	assert.Equal(t, stk, fields.Stk[:])
}

func TestResponseWrongReqNonceFailsAead(t *testing.T) {
	b, p := newBuilder(), newParser()
	ltk := fixedKey(0x41)
	buf := make([]byte, 64)
	stk := fixedKey(0x98)

	n, err := b.BuildResponse(buf, 2, 5, ltk, 1, 111, 222, stk)
	require.Equal(t, cbs.OK, err)
	hdr, payload, err := p.ParseHeader(buf[:n])
	require.Equal(t, cbs.OK, err)
	_, err = p.ParseResponse(payload, hdr, ltk, 999)
	assert.Equal(t, cbs.ErrInvalidTag, err)
}

func TestRenewalRoundTrip(t *testing.T) {
	b, p := newBuilder(), newParser()
	previousStk := fixedKey(0x50)
	buf := make([]byte, 64)

	n, err := b.BuildRenewal(buf, 4, previousStk, 123)
	require.Equal(t, cbs.OK, err)
	require.Equal(t, 3+message.RenPayloadLen, n)

	hdr, payload, err := p.ParseHeader(buf[:n])
	require.Equal(t, cbs.OK, err)
	ctrNonce, err := p.ParseRenewal(payload, hdr, previousStk)
	require.Equal(t, cbs.OK, err)
	assert.Equal(t, cbs.CtrNonce(123), ctrNonce)
}

func TestSecuredFdRoundTrip(t *testing.T) {
	b, p := newBuilder(), newParser()
	stk := fixedKey(0x60)
	buf := make([]byte, 64)
	userData := []byte("engine-rpm=4200")

	n, err := b.BuildSecuredFd(buf, 6, 2, stk, 42, userData)
	require.Equal(t, cbs.OK, err)

	hdr, payload, err := p.ParseHeader(buf[:n])
	require.Equal(t, cbs.OK, err)
	assert.Equal(t, cbs.Sid(2), hdr.Sid)

	plain := make([]byte, len(userData))
	got, ctrNonce, err := p.ParseSecuredFd(payload, hdr, stk, plain)
	require.Equal(t, cbs.OK, err)
	assert.Equal(t, len(userData), got)
	assert.Equal(t, userData, plain)
	assert.Equal(t, cbs.CtrNonce(42), ctrNonce)
}

func TestSecuredFdEmptyPayload(t *testing.T) {
	b, p := newBuilder(), newParser()
	stk := fixedKey(0x61)
	buf := make([]byte, 64)

	n, err := b.BuildSecuredFd(buf, 1, 1, stk, 0, nil)
	require.Equal(t, cbs.OK, err)
	assert.Equal(t, 3+message.SadfdMetadataLen, n)

	hdr, payload, err := p.ParseHeader(buf[:n])
	require.Equal(t, cbs.OK, err)
	got, _, err := p.ParseSecuredFd(payload, hdr, stk, nil)
	require.Equal(t, cbs.OK, err)
	assert.Equal(t, 0, got)
}

func TestSecuredFdTooLongRejectedAtBuild(t *testing.T) {
	b := newBuilder()
	stk := fixedKey(0x62)
	buf := make([]byte, 64)
	tooLong := make([]byte, 64)
	_, err := b.BuildSecuredFd(buf, 1, 1, stk, 0, tooLong)
	assert.Equal(t, cbs.ErrTooLongSdu, err)
}

func TestUnsecuredRoundTrip(t *testing.T) {
	b, p := newBuilder(), newParser()
	buf := make([]byte, 64)
	payload := []byte("diagnostics-broadcast")

	n, err := b.BuildUnsecured(buf, 0, 9, payload)
	require.Equal(t, cbs.OK, err)

	hdr, got, err := p.ParseHeader(buf[:n])
	require.Equal(t, cbs.OK, err)
	assert.Equal(t, cbs.PtyUAD, hdr.Pty)
	assert.Equal(t, payload, got)
}
