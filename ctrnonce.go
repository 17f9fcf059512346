package cbs

// CtrNonce is a 24-bit monotonic counter nonce, stored in the low 24 bits of
// a uint32.
type CtrNonce uint32

// CtrNonceOverflowThreshold is the first value considered expired: 2^24 - 1.
const CtrNonceOverflowThreshold CtrNonce = (1 << 24) - 1

// IsExpired reports whether n has reached or passed the overflow threshold,
// at which point the session using it must be renewed.
func (n CtrNonce) IsExpired() bool {
	return n >= CtrNonceOverflowThreshold
}

// Incr advances n by one, saturating at CtrNonceOverflowThreshold instead of
// wrapping back to zero.
func (n CtrNonce) Incr() CtrNonce {
	if n >= CtrNonceOverflowThreshold {
		return CtrNonceOverflowThreshold
	}
	return n + 1
}
