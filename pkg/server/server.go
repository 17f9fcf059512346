// Package server implements the CBS Server: the party that mediates
// Short-Term Key distribution to every Client and authenticates and
// decrypts the Secured Application Data it receives from them.
//
// Grounded on original_source/src/server/hzl_ServerInit.c,
// hzl_ServerProcessReceived.c, hzl_ServerProcessReceivedRequest.c,
// hzl_ServerProcessReceivedSecuredFd.c, hzl_ServerRenewalPhase.c,
// hzl_ServerForceSessionRenewal.c, hzl_ServerBuildSecuredFd.c. Structural
// idiom (mutex-guarded struct, package-level logrus logger with bracketed
// tags) grounded on the teacher's sdo_server.go/nmt package conventions.
package server

import (
	log "github.com/sirupsen/logrus"

	"sync"

	cbs "github.com/samsamfire/cbs"
	"github.com/samsamfire/cbs/pkg/config"
	"github.com/samsamfire/cbs/pkg/crypto"
	"github.com/samsamfire/cbs/pkg/freshness"
	"github.com/samsamfire/cbs/pkg/header"
	"github.com/samsamfire/cbs/pkg/message"
	"github.com/samsamfire/cbs/pkg/wire"
)

func newHash() crypto.Hash { return &crypto.Blake2XOF{} }
func newAEAD() crypto.AEAD { return &crypto.ChaChaAEAD{} }

// groupState is one Group's live session bookkeeping: the freshness window
// plus the STKs and session-lifetime timestamps the freshness package
// doesn't know about.
type groupState struct {
	freshness.Session
	currentStk          [cbs.StkLen]byte
	previousStk         [cbs.StkLen]byte
	sessionStartInstant cbs.Timestamp
}

func (g *groupState) renewalPhaseIsActive() bool {
	return g.RenewalActive
}

// Server mediates STK distribution and receives Secured Application Data for
// every configured Group. Safe for concurrent use.
type Server struct {
	mu      sync.Mutex
	config  *config.Server
	io      cbs.Io
	groups  []*groupState // indexed by Gid, same density config.Server.Check guarantees
	builder message.Builder
	parser  message.Parser
}

// New validates cfg and starts a current Session (fresh STK, zeroed
// counter-nonce) for every configured Group.
func New(cfg *config.Server, io cbs.Io) (*Server, cbs.Err) {
	if err := cfg.Check(); err != cbs.OK {
		return nil, err
	}
	s := &Server{
		config: cfg,
		io:     io,
		groups: make([]*groupState, len(cfg.Groups)),
		builder: message.Builder{
			HeaderType: cfg.Config.HeaderType, NewHash: newHash, NewAEAD: newAEAD,
		},
		parser: message.Parser{
			HeaderType: cfg.Config.HeaderType, NewHash: newHash, NewAEAD: newAEAD,
		},
	}
	now, err := io.Now()
	if err != cbs.OK {
		return nil, err
	}
	for i := range cfg.Groups {
		gs := &groupState{sessionStartInstant: now}
		gs.CurrentRxLastMessageInstant = now
		if err := crypto.NonZeroTRNG(io.TRNG, gs.currentStk[:]); err != cbs.OK {
			return nil, err
		}
		s.groups[i] = gs
	}
	log.Debugf("[SERVER] started %d groups for %d clients", len(cfg.Groups), len(cfg.Clients))
	return s, cbs.OK
}

func (s *Server) validateSidAndGid(gid cbs.Gid, sid cbs.Sid) cbs.Err {
	if int(sid) >= len(s.config.Clients)+1 || sid == cbs.ServerSid {
		return cbs.ErrUnknownSource
	}
	if int(gid) >= len(s.config.Groups) {
		return cbs.ErrUnknownGroup
	}
	bit := uint32(1) << (sid - 1)
	if s.config.Groups[gid].ClientSidsInGroupBitmap&bit == 0 {
		return cbs.ErrNotInGroup
	}
	return cbs.OK
}

// ProcessReceived unpacks a received PDU, dispatches it by payload type and
// returns an optional reaction PDU to transmit (non-nil only for REQ, which
// always replies, and SADFD when renewal just started). sdu is filled only
// for a UAD or successfully decrypted SADFD message.
func (s *Server) ProcessReceived(rxPdu []byte, canID cbs.CanID, rxTimestamp cbs.Timestamp) (reaction []byte, sdu *cbs.RxSDU, err cbs.Err) {
	s.mu.Lock()
	defer s.mu.Unlock()

	hdr, payload, err := s.parser.ParseHeader(rxPdu)
	if err != cbs.OK {
		return nil, nil, err
	}
	if hdr.Sid == cbs.ServerSid {
		return nil, nil, cbs.ErrMessageFromMyself
	}

	switch hdr.Pty {
	case cbs.PtyREQ:
		reaction, err = s.processRequest(payload, hdr, rxTimestamp)
		return reaction, nil, err
	case cbs.PtyRES, cbs.PtyREN:
		return nil, nil, cbs.ErrServerOnlyMessage
	case cbs.PtySADTP:
		return nil, nil, cbs.ErrNotImplemented
	case cbs.PtySADFD:
		return s.processSecuredFd(payload, hdr, rxTimestamp, canID)
	case cbs.PtyUAD:
		out := &cbs.RxSDU{CanID: canID, Gid: hdr.Gid, Sid: hdr.Sid, Len: len(payload), IsForUser: true}
		copy(out.Data[:], payload)
		return nil, out, cbs.OK
	default:
		return nil, nil, cbs.ErrInvalidPayloadType
	}
}

func (s *Server) processRequest(payload []byte, hdr cbs.Header, rxTimestamp cbs.Timestamp) ([]byte, cbs.Err) {
	if err := s.validateSidAndGid(hdr.Gid, hdr.Sid); err != cbs.OK {
		return nil, err
	}
	client := s.config.Clients[hdr.Sid-1]
	reqNonce, err := s.parser.ParseRequest(payload, hdr, client.Ltk[:])
	if err != cbs.OK {
		log.Warnf("[SERVER][RX REQ] gid=%d sid=%d rejected: %v", hdr.Gid, hdr.Sid, err)
		return nil, err
	}

	gs := s.groups[hdr.Gid]
	if gs.CurrentRxLastMessageInstant == gs.sessionStartInstant {
		gs.CurrentRxLastMessageInstant = rxTimestamp
		if gs.CurrentRxLastMessageInstant == gs.sessionStartInstant {
			gs.CurrentRxLastMessageInstant = gs.sessionStartInstant.AddMillis(1)
		}
	}

	resNonceBytes := make([]byte, 8)
	if err := crypto.NonZeroTRNG(s.io.TRNG, resNonceBytes); err != cbs.OK {
		return nil, err
	}
	out := make([]byte, cbs.MaxCanFdLen)
	n, err := s.builder.BuildResponse(out, hdr.Gid, hdr.Sid, client.Ltk[:],
		gs.CurrentCtrNonce, reqNonce, wire.DecodeLE64(resNonceBytes), gs.currentStk[:])
	if err != cbs.OK {
		return nil, err
	}
	log.Debugf("[SERVER][TX RES] gid=%d sid=%d", hdr.Gid, hdr.Sid)
	return out[:n], cbs.OK
}

func (s *Server) processSecuredFd(payload []byte, hdr cbs.Header, rxTimestamp cbs.Timestamp, canID cbs.CanID) ([]byte, *cbs.RxSDU, cbs.Err) {
	if err := s.validateSidAndGid(hdr.Gid, hdr.Sid); err != cbs.OK {
		return nil, nil, err
	}
	gs := s.groups[hdr.Gid]
	groupCfg := s.config.Groups[hdr.Gid]
	s.exitRenewalIfNeeded(gs, groupCfg, rxTimestamp)

	fcfg := freshness.Config{
		MaxCtrNonceDelayMsgs:     cbs.CtrNonce(groupCfg.MaxCtrNonceDelayMsgs),
		MaxSilenceIntervalMillis: uint32(groupCfg.MaxSilenceIntervalMillis),
	}
	ctrNonce, perr := peekSadfdCtrNonce(payload)
	if perr != cbs.OK {
		return nil, nil, perr
	}
	isPrevious, err := freshness.CheckReceived(&gs.Session, fcfg, ctrNonce, rxTimestamp)
	if err != cbs.OK {
		return nil, nil, err
	}
	stk := gs.currentStk[:]
	if isPrevious {
		stk = gs.previousStk[:]
	}

	out := &cbs.RxSDU{CanID: canID, Gid: hdr.Gid, Sid: hdr.Sid}
	n, decodedCtrNonce, err := s.parser.ParseSecuredFd(payload, hdr, stk, out.Data[:])
	if err != cbs.OK {
		out.Reset()
		return nil, nil, err
	}
	out.Len = n
	out.WasSecured = true
	out.IsForUser = true
	freshness.Accept(&gs.Session, decodedCtrNonce, rxTimestamp, isPrevious)

	reaction, err := s.enterRenewalIfNeeded(gs, groupCfg, hdr.Gid, rxTimestamp)
	return reaction, out, err
}

// peekSadfdCtrNonce reads the counter-nonce without decrypting, so the
// freshness check can pick the right (previous/current) STK before the AEAD
// call. Mirrors the field read hzl_ServerProcessReceivedSecuredFd.c does
// directly from rxPdu before building the aead context.
func peekSadfdCtrNonce(payload []byte) (cbs.CtrNonce, cbs.Err) {
	if len(payload) < 3 {
		return 0, cbs.ErrTooShortPduForSadfd
	}
	return cbs.CtrNonce(uint32(payload[0]) | uint32(payload[1])<<8 | uint32(payload[2])<<16), cbs.OK
}

func (s *Server) exitRenewalIfNeeded(gs *groupState, g config.GroupConfig, now cbs.Timestamp) {
	if !gs.renewalPhaseIsActive() {
		return
	}
	enoughMsgs := uint64(gs.CurrentCtrNonce) >= 2*uint64(g.MaxCtrNonceDelayMsgs)
	enoughTime := gs.sessionStartInstant.Elapsed(now) > 6*g.DelayBetweenRenNotificationsMillis
	if enoughMsgs || enoughTime {
		gs.previousStk = [cbs.StkLen]byte{}
		freshness.ExitRenewal(&gs.Session)
	}
}

func (s *Server) sessionIsExpired(gs *groupState, g config.GroupConfig, now cbs.Timestamp) bool {
	enoughMsgs := gs.CurrentCtrNonce >= cbs.CtrNonce(g.CtrNonceUpperLimit)
	enoughTime := gs.sessionStartInstant.Elapsed(now) > g.SessionDurationMillis
	return enoughMsgs || enoughTime
}

func (s *Server) enterRenewalPhase(gs *groupState, gid cbs.Gid, now cbs.Timestamp) cbs.Err {
	gs.previousStk = gs.currentStk
	freshness.EnterRenewal(&gs.Session, now)
	gs.sessionStartInstant = now
	gs.CurrentRxLastMessageInstant = now
	return crypto.NonZeroTRNG(s.io.TRNG, gs.currentStk[:])
}

func (s *Server) buildRenewal(gs *groupState, gid cbs.Gid) ([]byte, cbs.Err) {
	out := make([]byte, cbs.MaxCanFdLen)
	n, err := s.builder.BuildRenewal(out, gid, gs.previousStk[:], gs.PreviousCtrNonce)
	if err != cbs.OK {
		return nil, err
	}
	gs.PreviousCtrNonce = gs.PreviousCtrNonce.Incr()
	log.Debugf("[SERVER][TX REN] gid=%d", gid)
	return out[:n], cbs.OK
}

func (s *Server) enterRenewalIfNeeded(gs *groupState, g config.GroupConfig, gid cbs.Gid, now cbs.Timestamp) ([]byte, cbs.Err) {
	if !s.sessionIsExpired(gs, g, now) {
		return nil, cbs.OK
	}
	if err := s.enterRenewalPhase(gs, gid, now); err != cbs.OK {
		return nil, err
	}
	return s.buildRenewal(gs, gid)
}

func (s *Server) didAnyClientAlreadyRequest(gs *groupState) bool {
	return gs.CurrentRxLastMessageInstant != gs.sessionStartInstant
}

// BuildSecuredFd encrypts payload under the current Session's STK and
// increments the Group's current counter-nonce. Fails with
// ErrNoPotentialReceiver if no Client has sent a valid REQ for the Group's
// current session yet, since nobody would hold the STK to decrypt it.
func (s *Server) BuildSecuredFd(gid cbs.Gid, payload []byte) ([]byte, cbs.Err) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if int(gid) >= len(s.groups) {
		return nil, cbs.ErrUnknownGroup
	}
	if len(payload) > cbs.MaxCanFdLen-int(header.Len(s.config.Config.HeaderType))-message.SadfdMetadataLen {
		return nil, cbs.ErrTooLongSdu
	}
	gs := s.groups[gid]
	if !s.didAnyClientAlreadyRequest(gs) {
		return nil, cbs.ErrNoPotentialReceiver
	}
	out := make([]byte, cbs.MaxCanFdLen)
	n, err := s.builder.BuildSecuredFd(out, gid, cbs.ServerSid, gs.currentStk[:], gs.CurrentCtrNonce, payload)
	if err != cbs.OK {
		return nil, err
	}
	gs.CurrentCtrNonce = gs.CurrentCtrNonce.Incr()
	return out[:n], cbs.OK
}

// ForceSessionRenewal manually starts (or continues) a Group's Session
// renewal, rebuilding the REN message. Useful after a suspected compromise.
// Fails with ErrNoPotentialReceiver if there is no previous Session and no
// Client has requested the current one, since no Client could possibly
// process the REN.
func (s *Server) ForceSessionRenewal(gid cbs.Gid, now cbs.Timestamp) ([]byte, cbs.Err) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if int(gid) >= len(s.groups) {
		return nil, cbs.ErrUnknownGroup
	}
	gs := s.groups[gid]
	renewalActive := gs.renewalPhaseIsActive()
	if !renewalActive && !s.didAnyClientAlreadyRequest(gs) {
		return nil, cbs.ErrNoPotentialReceiver
	}
	if !renewalActive {
		if err := s.enterRenewalPhase(gs, gid, now); err != cbs.OK {
			return nil, err
		}
	}
	return s.buildRenewal(gs, gid)
}

