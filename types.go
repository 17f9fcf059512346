package cbs

// Identifiers carried in the CBS header.
type (
	// Gid identifies a Group: an overlapping set of parties enabled for reception.
	Gid = uint8
	// Sid identifies the transmitting party. The Server always uses ServerSid.
	Sid = uint8
	// Pty identifies the payload carried by a CBS message.
	Pty = uint8
	// CanID is the CAN identifier of the underlying frame. Opaque to the
	// core: it is only echoed back into RxSDU for the caller.
	CanID = uint32
	// ReqNonce is the 64-bit random nonce generated by a Client to start a handshake.
	ReqNonce = uint64
	// ResNonce is the 64-bit random nonce generated by the Server for a Response.
	ResNonce = uint64
)

// Payload types.
const (
	PtyREN   Pty = 0
	PtyRES   Pty = 1
	PtyREQ   Pty = 2
	PtySADTP Pty = 3
	PtySADFD Pty = 4
	PtyUAD   Pty = 5
	// PtyRfu6, PtyRfu7 are reserved for future use.
)

// ServerSid is the Source Identifier always used by the Server.
const ServerSid Sid = 0

// BroadcastGid is the Group Identifier reserved for broadcasting to every
// configured Client.
const BroadcastGid Gid = 0

// LtkLen is the length in bytes of a Long-Term Key.
const LtkLen = 16

// StkLen is the length in bytes of a Short-Term Key.
const StkLen = 16

// MaxCanFdLen is the maximum length in bytes of a CAN FD frame payload.
const MaxCanFdLen = 64

// MaxTrngTriesForNonZeroValue bounds the number of consecutive TRNG draws
// that may return an all-zero value before generation is given up as broken.
const MaxTrngTriesForNonZeroValue = 20

// LargestMaxCtrNonceDelay is the largest value a Group's configured max
// counter-nonce delay may take: 2^22.
const LargestMaxCtrNonceDelay = 1 << 22

// LargestCtrNonceUpperLimit is the largest value a Group's configured
// counter-nonce upper limit may take: 2^24 - 128.
const LargestCtrNonceUpperLimit = (1 << 24) - 128

// Header is an unpacked CBS header.
type Header struct {
	Gid Gid
	Sid Sid
	Pty Pty
}

// PDU is a packed CBS protocol data unit (CBS header || payload), ready to
// transmit or just received from the CAN FD transport. Length is bounded by
// MaxCanFdLen.
type PDU struct {
	Data [MaxCanFdLen]byte
	Len  int
}

// Bytes returns the valid portion of the PDU.
func (p *PDU) Bytes() []byte { return p.Data[:p.Len] }

// Reset zeroes the PDU, clearing any stale reaction data before a new RX call.
func (p *PDU) Reset() {
	for i := range p.Data {
		p.Data[i] = 0
	}
	p.Len = 0
}

// RxSDU is the unpacked received Service Data Unit after validation and
// optional decryption.
type RxSDU struct {
	Data       [MaxCanFdLen]byte
	Len        int
	CanID      CanID
	Gid        Gid
	Sid        Sid
	WasSecured bool
	IsForUser  bool
}

// Bytes returns the valid portion of the received user data.
func (r *RxSDU) Bytes() []byte { return r.Data[:r.Len] }

// Reset zeroes the RxSDU, preventing stale data from leaking out on any RX
// call that does not reach a successful completion.
func (r *RxSDU) Reset() {
	for i := range r.Data {
		r.Data[i] = 0
	}
	r.Len = 0
	r.CanID = 0
	r.Gid = 0
	r.Sid = 0
	r.WasSecured = false
	r.IsForUser = false
}
