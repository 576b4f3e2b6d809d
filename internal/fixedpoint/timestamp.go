package fixedpoint

// Timestamp32 is a block timestamp truncated to 32 bits. It wraps every 2^32
// seconds. Elapsed is only meaningful when the two samples are less than one
// wrap period apart, so a pool must be synced at least once per period.
type Timestamp32 uint32

// TimestampFrom truncates a unix timestamp.
func TimestampFrom(unix uint64) Timestamp32 {
	return Timestamp32(uint32(unix))
}

// Elapsed returns t-since mod 2^32.
func (t Timestamp32) Elapsed(since Timestamp32) uint64 {
	return uint64(uint32(t - since))
}
