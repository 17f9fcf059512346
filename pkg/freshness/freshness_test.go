package freshness_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	cbs "github.com/samsamfire/cbs"
	"github.com/samsamfire/cbs/pkg/freshness"
)

func TestCtrDelayTapersLinearly(t *testing.T) {
	cfg := freshness.Config{MaxCtrNonceDelayMsgs: 4, MaxSilenceIntervalMillis: 5000}
	assert.Equal(t, cbs.CtrNonce(4), freshness.CtrDelay(0, 0, cfg))
	assert.Equal(t, cbs.CtrNonce(3), freshness.CtrDelay(0, 100, cfg))
	assert.Equal(t, cbs.CtrNonce(0), freshness.CtrDelay(0, 5000, cfg))
	assert.Equal(t, cbs.CtrNonce(0), freshness.CtrDelay(0, 9000, cfg))
}

// Matches the protocol specification's own worked freshness example: with a
// max delay of 4 msgs over a 5000ms silence window, a message arriving
// 100ms after the last valid one tolerates a ctrnonce as old as
// current-3. A ctrnonce of exactly that boundary minus one is rejected; the
// boundary itself and anything newer is accepted.
func TestCheckReceivedMatchesSpecExample(t *testing.T) {
	cfg := freshness.Config{MaxCtrNonceDelayMsgs: 4, MaxSilenceIntervalMillis: 5000}
	sess := &freshness.Session{CurrentCtrNonce: 8, CurrentRxLastMessageInstant: 0}

	_, err := freshness.CheckReceived(sess, cfg, 4, 100)
	assert.Equal(t, cbs.ErrOldMessage, err, "8-3=5 is the oldest tolerated, so 4 must be rejected")

	_, err = freshness.CheckReceived(sess, cfg, 5, 100)
	assert.Equal(t, cbs.OK, err, "5 is exactly the oldest tolerated boundary")

	_, err = freshness.CheckReceived(sess, cfg, 7, 100)
	assert.Equal(t, cbs.OK, err)
}

func TestCheckReceivedExpiredNonceRejected(t *testing.T) {
	cfg := freshness.Config{MaxCtrNonceDelayMsgs: 4, MaxSilenceIntervalMillis: 5000}
	sess := &freshness.Session{}
	_, err := freshness.CheckReceived(sess, cfg, cbs.CtrNonceOverflowThreshold, 0)
	assert.Equal(t, cbs.ErrReceivedOverflownNonce, err)
}

func TestAcceptAdvancesCurrentSession(t *testing.T) {
	sess := &freshness.Session{CurrentCtrNonce: 5}
	freshness.Accept(sess, 9, 1234, false)
	assert.Equal(t, cbs.CtrNonce(10), sess.CurrentCtrNonce)
	assert.Equal(t, cbs.Timestamp(1234), sess.CurrentRxLastMessageInstant)
}

func TestAcceptDoesNotRegressOnOutOfOrderButStillFreshMessage(t *testing.T) {
	sess := &freshness.Session{CurrentCtrNonce: 10}
	freshness.Accept(sess, 7, 1000, false)
	assert.Equal(t, cbs.CtrNonce(11), sess.CurrentCtrNonce, "ctrnonce only advances, never regresses")
}

func TestRenewalLifecycle(t *testing.T) {
	cfg := freshness.Config{MaxCtrNonceDelayMsgs: 2, MaxSilenceIntervalMillis: 1000}
	sess := &freshness.Session{CurrentCtrNonce: 50, CurrentRxLastMessageInstant: 900}

	freshness.EnterRenewal(sess, 1000)
	require.True(t, sess.RenewalActive)
	assert.Equal(t, cbs.CtrNonce(50), sess.PreviousCtrNonce)
	assert.Equal(t, cbs.CtrNonce(0), sess.CurrentCtrNonce)

	// A message with a low ctrnonce, near the new session's counter, is
	// matched to the new (current) session.
	isPrevious, err := freshness.CheckReceived(sess, cfg, 1, 1000)
	require.Equal(t, cbs.OK, err)
	assert.False(t, isPrevious)

	// A message with a ctrnonce near the old session's last value is
	// matched to the previous session while renewal is active.
	isPrevious, err = freshness.CheckReceived(sess, cfg, 49, 1000)
	require.Equal(t, cbs.OK, err)
	assert.True(t, isPrevious)

	freshness.ExitRenewal(sess)
	assert.False(t, sess.RenewalActive)
	assert.Equal(t, cbs.CtrNonce(0), sess.PreviousCtrNonce)
}

// TestCheckReceivedClientPrefersPreviousOverMidpoint covers the divergence
// spec.md §4.4 calls out: the Client checks the previous session first and
// accepts there if in tolerance, even for a ctrnonce the Server's midpoint
// rule would have assigned to the current session instead.
func TestCheckReceivedClientPrefersPreviousOverMidpoint(t *testing.T) {
	cfg := freshness.Config{MaxCtrNonceDelayMsgs: 2, MaxSilenceIntervalMillis: 1000}
	sess := &freshness.Session{
		RenewalActive:                true,
		PreviousCtrNonce:             50,
		PreviousRxLastMessageInstant: 1000,
		CurrentCtrNonce:              48,
		CurrentRxLastMessageInstant:  1000,
	}

	// The midpoint of 48 and 50 is 49, so the Server's rule would assign 48
	// to the current session. 48 is inside the previous session's tolerance
	// (no time elapsed, oldest tolerated 50-2=48), so the previous-first rule
	// accepts it as previous outright.
	isPrevious, err := freshness.CheckReceivedClient(sess, cfg, 48, 1000)
	require.Equal(t, cbs.OK, err)
	assert.True(t, isPrevious)
}

func TestCheckReceivedClientFallsBackToCurrentWhenPreviousOutOfTolerance(t *testing.T) {
	cfg := freshness.Config{MaxCtrNonceDelayMsgs: 2, MaxSilenceIntervalMillis: 1000}
	sess := &freshness.Session{
		RenewalActive:                true,
		PreviousCtrNonce:             50,
		PreviousRxLastMessageInstant: 900,
		CurrentCtrNonce:              1,
		CurrentRxLastMessageInstant:  1000,
	}

	// 1 is far below previous's tolerance (oldest tolerated 49), so the
	// Client rule must fall through and check it against current instead.
	isPrevious, err := freshness.CheckReceivedClient(sess, cfg, 1, 1000)
	require.Equal(t, cbs.OK, err)
	assert.False(t, isPrevious)
}

func TestCheckReceivedClientExpiredNonceRejected(t *testing.T) {
	cfg := freshness.Config{MaxCtrNonceDelayMsgs: 4, MaxSilenceIntervalMillis: 5000}
	sess := &freshness.Session{}
	_, err := freshness.CheckReceivedClient(sess, cfg, cbs.CtrNonceOverflowThreshold, 0)
	assert.Equal(t, cbs.ErrReceivedOverflownNonce, err)
}
