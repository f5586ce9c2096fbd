package vehicle

// Millis is a monotonically increasing millisecond clock value. It is
// deliberately 32 bits wide: long-running deployments wrap roughly every
// 49 days, so all interval comparisons must go through Elapsed rather
// than comparing Millis values directly.
type Millis uint32

// Elapsed returns the milliseconds between since and now. Unsigned
// subtraction keeps the result correct across a clock wraparound.
func Elapsed(now, since Millis) uint32 {
	return uint32(now - since)
}
