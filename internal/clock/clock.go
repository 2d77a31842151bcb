package clock

import "time"

// Institutional is the fixed UTC+8 offset every issue, expiry and
// display timestamp in the system is expressed in.
var Institutional = time.FixedZone("UTC+8", 8*60*60)

// Clock supplies the current time. Expiry math must go through a Clock
// so boundary cases can be pinned down in tests.
type Clock interface {
	Now() time.Time
}

// System reads the wall clock and converts it to the institutional zone.
type System struct{}

// Now returns the current time in the institutional timezone.
func (System) Now() time.Time {
	return time.Now().In(Institutional)
}

// Fixed is a clock frozen at a single instant, for tests.
type Fixed struct {
	T time.Time
}

// Now returns the frozen instant in the institutional timezone.
func (f Fixed) Now() time.Time {
	return f.T.In(Institutional)
}
