package message

import (
	cbs "github.com/samsamfire/cbs"
	"github.com/samsamfire/cbs/pkg/crypto"
	"github.com/samsamfire/cbs/pkg/header"
	"github.com/samsamfire/cbs/pkg/wire"
)

// HashFactory returns a fresh, uninitialised Hash instance. Builder and
// Parser take one so callers can swap in a mock for testing without
// pkg/message depending on a concrete crypto type.
type HashFactory func() crypto.Hash

// AEADFactory returns a fresh, uninitialised AEAD instance.
type AEADFactory func() crypto.AEAD

// Builder assembles wire-format CBS messages: header (via pkg/header) plus
// payload, with the AEAD/Hash framing original_source's hzl_CommonBuild*.c
// files define per message type.
type Builder struct {
	HeaderType uint8
	NewHash    HashFactory
	NewAEAD    AEADFactory
}

func padNonce(material ...[]byte) []byte {
	nonce := make([]byte, aeadNonceLen)
	off := 0
	for _, m := range material {
		off += copy(nonce[off:], m)
	}
	return nonce
}

// BuildRequest writes a REQ message (header || reqnonce || tag) into out,
// which must have capacity for header.Len(HeaderType)+ReqPayloadLen. sid is
// the requesting Client's own Sid, carried in the header so the Server can
// look up the Client's LTK. The tag written after the reqnonce is
// hash(LTK, label || gid || sid || pty || reqnonce).
func (b *Builder) BuildRequest(out []byte, gid cbs.Gid, sid cbs.Sid, ltk []byte, reqNonce cbs.ReqNonce) (int, cbs.Err) {
	hdr := cbs.Header{Gid: gid, Sid: sid, Pty: cbs.PtyREQ}
	hdrLen := int(header.Len(b.HeaderType))
	total := hdrLen + ReqPayloadLen
	if len(out) < total {
		return 0, cbs.ErrNullPdu
	}
	if err := header.Pack(out[:hdrLen], b.HeaderType, hdr); err != cbs.OK {
		return 0, err
	}
	body := out[hdrLen:total]
	wire.PutLE64(body[reqReqNonceIdx:reqReqNonceEnd], reqNonce)

	h := b.NewHash()
	if err := h.Init(ltk); err != cbs.OK {
		return 0, err
	}
	h.Update([]byte(reqLabel))
	h.Update([]byte{hdr.Gid})
	h.Update([]byte{hdr.Sid})
	h.Update([]byte{hdr.Pty})
	h.Update(body[reqReqNonceIdx:reqReqNonceEnd])
	if err := h.Finalize(body[reqTagIdx:reqTagEnd]); err != cbs.OK {
		return 0, err
	}
	return total, cbs.OK
}

// BuildResponse writes a RES message. stk is encrypted under the LTK with
// AEAD nonce reqnonce||resnonce and associated data label||gid||sid||pty||
// clientSid||ctrnonce, per hzl_CommonAeadInitRes.
func (b *Builder) BuildResponse(out []byte, gid cbs.Gid, clientSid cbs.Sid, ltk []byte,
	ctrNonce cbs.CtrNonce, reqNonce cbs.ReqNonce, resNonce cbs.ResNonce, stk []byte) (int, cbs.Err) {
	hdr := cbs.Header{Gid: gid, Sid: cbs.Sid(cbs.ServerSid), Pty: cbs.PtyRES}
	hdrLen := int(header.Len(b.HeaderType))
	total := hdrLen + ResPayloadLen
	if len(out) < total {
		return 0, cbs.ErrNullPdu
	}
	if err := header.Pack(out[:hdrLen], b.HeaderType, hdr); err != cbs.OK {
		return 0, err
	}
	body := out[hdrLen:total]
	body[resClientIdx] = clientSid
	encodeLE24(body[resCtrNonceIdx:resCtrNonceEnd], ctrNonce)
	wire.PutLE64(body[resResNonceIdx:resResNonceEnd], resNonce)

	nonce := padNonce(wire.EncodeLE64(reqNonce), wire.EncodeLE64(resNonce))
	a := b.NewAEAD()
	if err := a.Init(ltk, nonce); err != cbs.OK {
		return 0, err
	}
	a.AssociatedData([]byte(resLabel))
	a.AssociatedData([]byte{hdr.Gid})
	a.AssociatedData([]byte{hdr.Sid})
	a.AssociatedData([]byte{hdr.Pty})
	a.AssociatedData([]byte{clientSid})
	a.AssociatedData(body[resCtrNonceIdx:resCtrNonceEnd])

	a.EncryptUpdate(body[resCtextIdx:resCtextEnd], stk)
	if err := a.EncryptFinish(nil, body[resTagIdx:resTagEnd], resTagLen); err != cbs.OK {
		return 0, err
	}
	return total, cbs.OK
}

// BuildRenewal writes a REN message (header || ctrnonce || tag), keyed by
// the outgoing Group's previous STK rather than the LTK: a REN bridges the
// old session to the new one, so it must authenticate under a key the
// receiving Client already holds from the session being retired.
func (b *Builder) BuildRenewal(out []byte, gid cbs.Gid, previousStk []byte, previousCtrNonce cbs.CtrNonce) (int, cbs.Err) {
	hdr := cbs.Header{Gid: gid, Sid: cbs.Sid(cbs.ServerSid), Pty: cbs.PtyREN}
	hdrLen := int(header.Len(b.HeaderType))
	total := hdrLen + RenPayloadLen
	if len(out) < total {
		return 0, cbs.ErrNullPdu
	}
	if err := header.Pack(out[:hdrLen], b.HeaderType, hdr); err != cbs.OK {
		return 0, err
	}
	body := out[hdrLen:total]
	encodeLE24(body[renCtrNonceIdx:renCtrNonceIdx+ctrNonceLen], previousCtrNonce)

	h := b.NewHash()
	if err := h.Init(previousStk); err != cbs.OK {
		return 0, err
	}
	h.Update([]byte(renLabel))
	h.Update([]byte{hdr.Gid})
	h.Update([]byte{hdr.Sid})
	h.Update([]byte{hdr.Pty})
	h.Update(body[renCtrNonceIdx : renCtrNonceIdx+ctrNonceLen])
	if err := h.Finalize(body[renTagIdx:renTagEnd]); err != cbs.OK {
		return 0, err
	}
	return total, cbs.OK
}

// BuildSecuredFd writes a SADFD message (header || ctrnonce || ptlen ||
// ctext || tag). AEAD key is the Group's current STK; nonce is
// ctrnonce||gid||sid zero-padded, per hzl_CommonAeadInitSadfd.
func (b *Builder) BuildSecuredFd(out []byte, gid cbs.Gid, sid cbs.Sid, stk []byte,
	ctrNonce cbs.CtrNonce, payload []byte) (int, cbs.Err) {
	hdr := cbs.Header{Gid: gid, Sid: sid, Pty: cbs.PtySADFD}
	hdrLen := int(header.Len(b.HeaderType))
	total := hdrLen + SadfdPayloadLen(len(payload))
	if total > cbs.MaxCanFdLen {
		return 0, cbs.ErrTooLongSdu
	}
	if len(out) < total {
		return 0, cbs.ErrNullPdu
	}
	if err := header.Pack(out[:hdrLen], b.HeaderType, hdr); err != cbs.OK {
		return 0, err
	}
	body := out[hdrLen:total]
	encodeLE24(body[sadfdCtrNonceIdx:sadfdCtrNonceEnd], ctrNonce)
	body[sadfdPtLenIdx] = byte(len(payload))

	nonceMaterial := make([]byte, ctrNonceLen)
	encodeLE24(nonceMaterial, ctrNonce)
	nonce := padNonce(nonceMaterial, []byte{hdr.Gid}, []byte{hdr.Sid})

	a := b.NewAEAD()
	if err := a.Init(stk, nonce); err != cbs.OK {
		return 0, err
	}
	a.AssociatedData([]byte(sadfdLabel))
	a.AssociatedData([]byte{hdr.Gid})
	a.AssociatedData([]byte{hdr.Sid})
	a.AssociatedData([]byte{hdr.Pty})
	a.AssociatedData([]byte{body[sadfdPtLenIdx]})

	ctEnd := sadfdCtextEnd(len(payload))
	a.EncryptUpdate(body[sadfdCtextIdx:ctEnd], payload)
	if err := a.EncryptFinish(nil, body[sadfdTagIdx(len(payload)):sadfdTagEnd(len(payload))], SadfdTagLen); err != cbs.OK {
		return 0, err
	}
	return total, cbs.OK
}

// BuildUnsecured writes a plain pass-through UAD message: header followed
// by the user payload, unencrypted and unauthenticated.
func (b *Builder) BuildUnsecured(out []byte, gid cbs.Gid, sid cbs.Sid, payload []byte) (int, cbs.Err) {
	hdr := cbs.Header{Gid: gid, Sid: sid, Pty: cbs.PtyUAD}
	hdrLen := int(header.Len(b.HeaderType))
	total := hdrLen + len(payload)
	if total > cbs.MaxCanFdLen {
		return 0, cbs.ErrTooLongSdu
	}
	if len(out) < total {
		return 0, cbs.ErrNullPdu
	}
	if err := header.Pack(out[:hdrLen], b.HeaderType, hdr); err != cbs.OK {
		return 0, err
	}
	copy(out[hdrLen:total], payload)
	return total, cbs.OK
}
