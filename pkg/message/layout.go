// Package message builds and parses the four secured CBS payload kinds
// (REQ, RES, REN, SADFD) plus the pass-through UAD kind. A message is the
// header (pkg/header, variable length per header type) followed by a
// payload whose layout depends on the payload type carried in the header.
//
// Grounded on original_source/src/common/hzl_CommonPayload.h (byte offsets),
// hzl_CommonBuildRequest.c, hzl_CommonBuildResponse.c,
// hzl_CommonBuildSecuredFd.c and src/server/hzl_ServerRenewalPhase.c (label
// strings, hash/AEAD associated-data composition).
package message

import (
	cbs "github.com/samsamfire/cbs"
	"github.com/samsamfire/cbs/pkg/wire"
)

const (
	ctrNonceLen = 3
	gidLen      = 1
	sidLen      = 1
	ptyLen      = 1
)

// REQ payload: reqnonce(8) || tag(16) = 24 bytes.
const (
	reqLabel = "cbs_request"

	reqReqNonceIdx = 0
	reqReqNonceLen = 8
	reqReqNonceEnd = reqReqNonceIdx + reqReqNonceLen

	reqTagIdx = reqReqNonceEnd
	reqTagLen = 16
	reqTagEnd = reqTagIdx + reqTagLen

	ReqPayloadLen = reqTagEnd
)

// RES payload: client(1) || ctrnonce(3) || resnonce(8) || ctext(16) || tag(16) = 44 bytes.
const (
	resLabel = "cbs_response"

	resClientIdx = 0
	resClientLen = 1
	resClientEnd = resClientIdx + resClientLen

	resCtrNonceIdx = resClientEnd
	resCtrNonceEnd = resCtrNonceIdx + ctrNonceLen

	resResNonceIdx = resCtrNonceEnd
	resResNonceLen = 8
	resResNonceEnd = resResNonceIdx + resResNonceLen

	resCtextIdx = resResNonceEnd
	resCtextLen = cbs.StkLen
	resCtextEnd = resCtextIdx + resCtextLen

	resTagIdx = resCtextEnd
	resTagLen = 16
	resTagEnd = resTagIdx + resTagLen

	ResPayloadLen = resTagEnd
)

// REN payload: ctrnonce(3) || tag(16) = 19 bytes.
const (
	renLabel = "cbs_renewal"

	renCtrNonceIdx = 0
	renCtrNonceEnd = renCtrNonceIdx + ctrNonceLen

	renTagIdx = renCtrNonceEnd
	renTagLen = 16
	renTagEnd = renTagIdx + renTagLen

	RenPayloadLen = renTagEnd
)

// SADFD payload: ctrnonce(3) || ptlen(1) || ctext(ptlen) || tag(8), >= 12 bytes.
const (
	sadfdLabel = "cbs_secured_fd"

	sadfdCtrNonceIdx = 0
	sadfdCtrNonceEnd = sadfdCtrNonceIdx + ctrNonceLen

	sadfdPtLenIdx = sadfdCtrNonceEnd
	sadfdPtLenLen = 1
	sadfdPtLenEnd = sadfdPtLenIdx + sadfdPtLenLen

	sadfdCtextIdx = sadfdPtLenEnd

	SadfdTagLen = 8

	// SadfdMetadataLen is the SADFD payload length with an empty SDU.
	SadfdMetadataLen = ctrNonceLen + sadfdPtLenLen + SadfdTagLen
)

func sadfdCtextEnd(ctLen int) int  { return sadfdCtextIdx + ctLen }
func sadfdTagIdx(ctLen int) int    { return sadfdCtextEnd(ctLen) }
func sadfdTagEnd(ctLen int) int    { return sadfdTagIdx(ctLen) + SadfdTagLen }
func SadfdPayloadLen(ctLen int) int { return SadfdMetadataLen + ctLen }

// aeadNonceLen is the nonce width the AEAD shim expects; CBS's own nonce
// material (reqnonce||resnonce, or ctrnonce||gid||sid) is zero-padded up to
// it by the callers below.
const aeadNonceLen = 16

func encodeLE24(dst []byte, v cbs.CtrNonce) {
	wire.EncodeLE24(dst, uint32(v))
}

func decodeLE24(src []byte) cbs.CtrNonce {
	return cbs.CtrNonce(wire.DecodeLE24(src))
}
