// Package freshness implements the counter-nonce freshness check used by
// the Server and every Client: deciding whether a received SADFD/REN
// counter-nonce is fresh enough to accept, choosing whether it belongs to
// the outgoing (previous) or incoming (current) session during a renewal
// window, and updating session bookkeeping once a message is accepted. The
// tolerance check itself (withinTolerance/CtrDelay) is shared, but the
// Server and Client pick the previous-vs-current session differently (see
// CheckReceived vs CheckReceivedClient).
//
// Grounded on original_source/src/server/hzl_ServerProcessReceivedSecuredFd.c
// (hzl_ServerCheckRxCtrnonce / hzl_ServerGroupUpdateCtrnonceAndRxTimestamp),
// its Client-side mirror hzl_ClientProcessReceivedSecuredFd.c
// (hzl_ClientCheckRxCtrnonce, whose body was not retrieved), and the
// protocol specification's §4.4 note on the two parties' differing
// selection rules.
package freshness

import cbs "github.com/samsamfire/cbs"

// Session is one Group's freshness bookkeeping, as held by either a Server
// or a Client. During a renewal window both the previous and current
// session's counter-nonce/timestamp pair are tracked simultaneously so
// messages from either session are still accepted.
type Session struct {
	CurrentCtrNonce              cbs.CtrNonce
	CurrentRxLastMessageInstant  cbs.Timestamp
	PreviousCtrNonce             cbs.CtrNonce
	PreviousRxLastMessageInstant cbs.Timestamp
	// RenewalActive is true from EnterRenewal until ExitRenewal retires the
	// previous session (called from pkg/client's and pkg/server's
	// exitRenewalIfNeeded).
	RenewalActive bool
}

// Config is the Group's configured freshness tolerance.
type Config struct {
	// MaxCtrNonceDelayMsgs bounds how many counter-nonce steps behind the
	// last accepted value a message may still lag immediately after it,
	// tapering to zero as MaxSilenceIntervalMillis elapses.
	MaxCtrNonceDelayMsgs cbs.CtrNonce
	// MaxSilenceIntervalMillis is the time after which the tolerance has
	// fully tapered to zero: any further silence means only a
	// counter-nonce greater than or equal to the last one is accepted.
	MaxSilenceIntervalMillis uint32
}

// CtrDelay computes the Current Counter Nonce Delay: the tolerance, in
// counter-nonce units, for how far behind the last accepted value a newly
// received one may still be and be considered fresh. It tapers linearly
// from MaxCtrNonceDelayMsgs (no time elapsed since the last accepted
// message) down to 0 (MaxSilenceIntervalMillis or more elapsed).
//
// The exact taper formula is this repository's own reconstruction: the
// corresponding original_source function body was not retrieved, only its
// doc comment. See DESIGN.md Open Question #1 for the derivation and a
// check against the protocol specification's own worked example.
func CtrDelay(lastRxInstant, now cbs.Timestamp, cfg Config) cbs.CtrNonce {
	elapsed := lastRxInstant.Elapsed(now)
	if elapsed >= cfg.MaxSilenceIntervalMillis {
		return 0
	}
	if cfg.MaxSilenceIntervalMillis == 0 {
		return 0
	}
	remaining := uint64(cfg.MaxSilenceIntervalMillis - elapsed)
	return cbs.CtrNonce(uint64(cfg.MaxCtrNonceDelayMsgs) * remaining / uint64(cfg.MaxSilenceIntervalMillis))
}

func isOfPreviousSession(sess *Session, received cbs.CtrNonce) bool {
	average := (uint64(sess.CurrentCtrNonce) + uint64(sess.PreviousCtrNonce)) / 2
	return uint64(received) >= average
}

// withinTolerance reports whether received is no older than lastCtrNonce
// minus the adaptive tolerance for the elapsed time since lastRx.
func withinTolerance(lastRx, rxTimestamp cbs.Timestamp, lastCtrNonce, received cbs.CtrNonce, cfg Config) bool {
	delay := CtrDelay(lastRx, rxTimestamp, cfg)
	oldestTolerated := int64(lastCtrNonce) - int64(delay)
	return int64(received) >= oldestTolerated
}

// CheckReceived validates a received counter-nonce against Session's
// bookkeeping for Config's tolerance, returning which session (previous or
// current) it was matched against. During a renewal window the previous and
// current session are told apart by a midpoint tie-break: received is
// assigned to whichever session's last counter-nonce it's numerically
// closer to. This is the Server's selection rule, grounded on
// hzl_ServerCheckRxCtrnonce; the Client uses a different rule (see
// CheckReceivedClient). It does not mutate sess; call Accept once the
// message's tag/AEAD has also been validated.
func CheckReceived(sess *Session, cfg Config, received cbs.CtrNonce, rxTimestamp cbs.Timestamp) (isPrevious bool, err cbs.Err) {
	if received.IsExpired() {
		return false, cbs.ErrReceivedOverflownNonce
	}

	isPrevious = sess.RenewalActive && isOfPreviousSession(sess, received)

	var lastRx cbs.Timestamp
	var lastCtrNonce cbs.CtrNonce
	if isPrevious {
		lastRx = sess.PreviousRxLastMessageInstant
		lastCtrNonce = sess.PreviousCtrNonce
	} else {
		lastRx = sess.CurrentRxLastMessageInstant
		lastCtrNonce = sess.CurrentCtrNonce
	}

	if !withinTolerance(lastRx, rxTimestamp, lastCtrNonce, received, cfg) {
		return isPrevious, cbs.ErrOldMessage
	}
	return isPrevious, cbs.OK
}

// CheckReceivedClient is the Client's counter-nonce freshness check (spec
// §4.4: "on Client, the filter checks previous first, then current"),
// distinct from the Server's midpoint tie-break in CheckReceived. During a
// renewal window received is first checked against the previous session's
// tolerance; if it falls within that tolerance it's accepted as belonging
// to the previous session outright, regardless of how it compares to the
// current session. Only when it falls outside the previous session's
// tolerance (or no renewal is active) is it checked against the current
// session instead. It does not mutate sess; call Accept once the message's
// tag/AEAD has also been validated.
func CheckReceivedClient(sess *Session, cfg Config, received cbs.CtrNonce, rxTimestamp cbs.Timestamp) (isPrevious bool, err cbs.Err) {
	if received.IsExpired() {
		return false, cbs.ErrReceivedOverflownNonce
	}

	if sess.RenewalActive && withinTolerance(sess.PreviousRxLastMessageInstant, rxTimestamp, sess.PreviousCtrNonce, received, cfg) {
		return true, cbs.OK
	}

	if !withinTolerance(sess.CurrentRxLastMessageInstant, rxTimestamp, sess.CurrentCtrNonce, received, cfg) {
		return false, cbs.ErrOldMessage
	}
	return false, cbs.OK
}

// Accept updates sess's bookkeeping after a received message with counter-
// nonce received (matched to isPrevious by a prior CheckReceived call) has
// passed its AEAD/hash validation.
func Accept(sess *Session, received cbs.CtrNonce, rxTimestamp cbs.Timestamp, isPrevious bool) {
	if isPrevious {
		if received > sess.PreviousCtrNonce {
			sess.PreviousCtrNonce = received
		}
		sess.PreviousCtrNonce = sess.PreviousCtrNonce.Incr()
		sess.PreviousRxLastMessageInstant = rxTimestamp
		return
	}
	if received > sess.CurrentCtrNonce {
		sess.CurrentCtrNonce = received
	}
	sess.CurrentCtrNonce = sess.CurrentCtrNonce.Incr()
	sess.CurrentRxLastMessageInstant = rxTimestamp
}

// EnterRenewal snapshots the current session into the previous one and
// resets the current session to start a fresh one, marking the renewal
// window active. Callers (pkg/server, pkg/client) are responsible for
// rotating the STK itself; this only tracks the freshness bookkeeping.
func EnterRenewal(sess *Session, now cbs.Timestamp) {
	sess.PreviousCtrNonce = sess.CurrentCtrNonce
	sess.PreviousRxLastMessageInstant = sess.CurrentRxLastMessageInstant
	sess.CurrentCtrNonce = 0
	sess.CurrentRxLastMessageInstant = now
	sess.RenewalActive = true
}

// ExitRenewal retires the previous session's bookkeeping, ending the
// renewal window.
func ExitRenewal(sess *Session) {
	sess.PreviousCtrNonce = 0
	sess.PreviousRxLastMessageInstant = 0
	sess.RenewalActive = false
}
