// Package indicator provides incremental technical indicator units.
//
// Every unit is constructed with validated parameters and advanced one
// candle at a time via its Next method. Units are deterministic, keep no
// state beyond what the calculation requires, and resolve degenerate input
// (zero range, insufficient history) to a defined neutral output instead of
// failing.
package indicator

// bodyTop returns the higher of open and close.
func bodyTop(open, close float64) float64 {
	if close > open {
		return close
	}
	return open
}

// bodyBottom returns the lower of open and close.
func bodyBottom(open, close float64) float64 {
	if close > open {
		return open
	}
	return close
}
