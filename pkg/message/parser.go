package message

import (
	cbs "github.com/samsamfire/cbs"
	"github.com/samsamfire/cbs/pkg/crypto"
	"github.com/samsamfire/cbs/pkg/header"
	"github.com/samsamfire/cbs/pkg/wire"
)

// Parser splits a received PDU into header and payload, and validates each
// secured payload kind's tag/ciphertext against a key the caller supplies.
// It never decides whose key to try, whether a Group or Sid is known, or
// whether a session is established — those are pkg/client/pkg/server
// concerns that sit above the wire format.
type Parser struct {
	HeaderType uint8
	NewHash    HashFactory
	NewAEAD    AEADFactory
}

// ParseHeader splits pdu into its unpacked header and the payload bytes
// following it.
func (p *Parser) ParseHeader(pdu []byte) (cbs.Header, []byte, cbs.Err) {
	hdrLen := int(header.Len(p.HeaderType))
	if len(pdu) < hdrLen {
		return cbs.Header{}, nil, cbs.ErrTooShortPduForHeader
	}
	hdr, err := header.Unpack(pdu[:hdrLen], p.HeaderType)
	if err != cbs.OK {
		return cbs.Header{}, nil, err
	}
	return hdr, pdu[hdrLen:], cbs.OK
}

// ParseRequest validates a REQ payload's tag under ltk and returns the
// Client-chosen request nonce carried in it.
func (p *Parser) ParseRequest(payload []byte, hdr cbs.Header, ltk []byte) (cbs.ReqNonce, cbs.Err) {
	if len(payload) < ReqPayloadLen {
		return 0, cbs.ErrTooShortPduForReq
	}
	reqNonce := wire.DecodeLE64(payload[reqReqNonceIdx:reqReqNonceEnd])
	if reqNonce == 0 {
		return 0, cbs.ErrReceivedZeroReqNonce
	}

	h := p.NewHash()
	if err := h.Init(ltk); err != cbs.OK {
		return 0, err
	}
	h.Update([]byte(reqLabel))
	h.Update([]byte{hdr.Gid})
	h.Update([]byte{hdr.Sid})
	h.Update([]byte{hdr.Pty})
	h.Update(payload[reqReqNonceIdx:reqReqNonceEnd])
	ok, err := h.FinalizeCheck(payload[reqTagIdx:reqTagEnd])
	if err != cbs.OK {
		return 0, err
	}
	if !ok {
		return 0, cbs.ErrInvalidTag
	}
	return reqNonce, cbs.OK
}

// ResponseFields is the validated content of a RES payload: the fresh STK
// and the Group counter-nonce value the Server's session starts from.
type ResponseFields struct {
	ClientSid cbs.Sid
	CtrNonce  cbs.CtrNonce
	Stk       [cbs.StkLen]byte
}

// ParseResponse decrypts and authenticates a RES payload under ltk, given
// the reqNonce the caller sent in its own REQ. The resnonce embedded in the
// payload is used only as AEAD nonce material; it is not returned.
func (p *Parser) ParseResponse(payload []byte, hdr cbs.Header, ltk []byte, reqNonce cbs.ReqNonce) (ResponseFields, cbs.Err) {
	var out ResponseFields
	if len(payload) < ResPayloadLen {
		return out, cbs.ErrTooShortPduForRes
	}
	out.ClientSid = payload[resClientIdx]
	out.CtrNonce = decodeLE24(payload[resCtrNonceIdx:resCtrNonceEnd])
	resNonce := wire.DecodeLE64(payload[resResNonceIdx:resResNonceEnd])

	nonce := padNonce(wire.EncodeLE64(reqNonce), wire.EncodeLE64(resNonce))
	a := p.NewAEAD()
	if err := a.Init(ltk, nonce); err != cbs.OK {
		return out, err
	}
	a.AssociatedData([]byte(resLabel))
	a.AssociatedData([]byte{hdr.Gid})
	a.AssociatedData([]byte{hdr.Sid})
	a.AssociatedData([]byte{hdr.Pty})
	a.AssociatedData([]byte{out.ClientSid})
	a.AssociatedData(payload[resCtrNonceIdx:resCtrNonceEnd])

	plain := make([]byte, resCtextLen)
	a.DecryptUpdate(plain, payload[resCtextIdx:resCtextEnd])
	if err := a.DecryptFinish(plain, payload[resTagIdx:resTagEnd], resTagLen); err != cbs.OK {
		return out, cbs.ErrInvalidTag
	}
	copy(out.Stk[:], plain)
	if isAllZero(out.Stk[:]) {
		return out, cbs.ErrReceivedZeroKey
	}
	return out, cbs.OK
}

// ParseRenewal validates a REN payload's tag under a Group's previous STK
// and returns the previous session's counter-nonce value it carries.
func (p *Parser) ParseRenewal(payload []byte, hdr cbs.Header, previousStk []byte) (cbs.CtrNonce, cbs.Err) {
	if len(payload) < RenPayloadLen {
		return 0, cbs.ErrTooShortPduForRen
	}
	ctrNonce := decodeLE24(payload[renCtrNonceIdx : renCtrNonceIdx+ctrNonceLen])

	h := p.NewHash()
	if err := h.Init(previousStk); err != cbs.OK {
		return 0, err
	}
	h.Update([]byte(renLabel))
	h.Update([]byte{hdr.Gid})
	h.Update([]byte{hdr.Sid})
	h.Update([]byte{hdr.Pty})
	h.Update(payload[renCtrNonceIdx : renCtrNonceIdx+ctrNonceLen])
	ok, err := h.FinalizeCheck(payload[renTagIdx:renTagEnd])
	if err != cbs.OK {
		return 0, err
	}
	if !ok {
		return 0, cbs.ErrInvalidTag
	}
	return ctrNonce, cbs.OK
}

// ParseSecuredFd decrypts and authenticates a SADFD payload under stk,
// writing the plaintext user data into plainOut (which must have capacity
// for the ciphertext length declared in the payload) and returning its
// length plus the carried counter-nonce.
func (p *Parser) ParseSecuredFd(payload []byte, hdr cbs.Header, stk []byte, plainOut []byte) (int, cbs.CtrNonce, cbs.Err) {
	if len(payload) < SadfdMetadataLen {
		return 0, 0, cbs.ErrTooShortPduForSadfd
	}
	ctrNonce := decodeLE24(payload[sadfdCtrNonceIdx:sadfdCtrNonceEnd])
	ptLen := int(payload[sadfdPtLenIdx])
	if len(payload) != SadfdPayloadLen(ptLen) {
		if len(payload) < SadfdPayloadLen(ptLen) {
			return 0, 0, cbs.ErrTooShortPduForSadfd
		}
		return 0, 0, cbs.ErrTooLongCiphertext
	}
	if len(plainOut) < ptLen {
		return 0, 0, cbs.ErrNullSdu
	}

	nonceMaterial := make([]byte, ctrNonceLen)
	encodeLE24(nonceMaterial, ctrNonce)
	nonce := padNonce(nonceMaterial, []byte{hdr.Gid}, []byte{hdr.Sid})

	a := p.NewAEAD()
	if err := a.Init(stk, nonce); err != cbs.OK {
		return 0, 0, err
	}
	a.AssociatedData([]byte(sadfdLabel))
	a.AssociatedData([]byte{hdr.Gid})
	a.AssociatedData([]byte{hdr.Sid})
	a.AssociatedData([]byte{hdr.Pty})
	a.AssociatedData([]byte{payload[sadfdPtLenIdx]})

	ctEnd := sadfdCtextEnd(ptLen)
	a.DecryptUpdate(plainOut[:ptLen], payload[sadfdCtextIdx:ctEnd])
	if err := a.DecryptFinish(plainOut[:ptLen], payload[sadfdTagIdx(ptLen):sadfdTagEnd(ptLen)], SadfdTagLen); err != cbs.OK {
		return 0, 0, cbs.ErrInvalidTag
	}
	return ptLen, ctrNonce, cbs.OK
}

func isAllZero(b []byte) bool {
	for _, v := range b {
		if v != 0 {
			return false
		}
	}
	return true
}

// compile-time assertions that the concrete crypto implementations satisfy
// the factory-produced interfaces pkg/message depends on.
var (
	_ crypto.Hash = (*crypto.Blake2XOF)(nil)
	_ crypto.AEAD = (*crypto.ChaChaAEAD)(nil)
)
