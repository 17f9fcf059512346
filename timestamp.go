package cbs

// Timestamp is an opaque 32-bit millisecond rolling counter. It does not
// necessarily represent wall-clock time; only differences between
// timestamps are meaningful. Comparisons use modular subtraction so that
// elapsed-time measurements tolerate wraparound within the ~49 day window
// of a uint32 millisecond counter.
type Timestamp uint32

// Elapsed returns the number of milliseconds that passed from t to later,
// tolerating a single wraparound of the underlying uint32 counter.
func (t Timestamp) Elapsed(later Timestamp) uint32 {
	return uint32(later) - uint32(t)
}

// AddMillis returns t advanced by millis milliseconds, wrapping as uint32 arithmetic does.
func (t Timestamp) AddMillis(millis uint32) Timestamp {
	return Timestamp(uint32(t) + millis)
}

// TRNGFunc fills bytes with len(bytes) true-random bytes.
type TRNGFunc func(bytes []byte) Err

// TimestampFunc returns the current timestamp.
type TimestampFunc func() (Timestamp, Err)

// Io carries the collaborators a Party needs besides CAN transport: a true
// random number generator and a millisecond timestamp source.
type Io struct {
	TRNG TRNGFunc
	Now  TimestampFunc
}
