// Package timing implements spec.md §4.3: timestamp rescaling across time
// bases, benchmark counters sampled from the OS, and the periodic
// human/machine progress report.
package timing

import "math"

// Rational is a (numerator, denominator) time base.
type Rational struct {
	Num, Den int64
}

// MicrosecondBase is the canonical time base every rescale target uses
// internally (spec.md GLOSSARY: "Time base").
var MicrosecondBase = Rational{Num: 1, Den: 1_000_000}

// Unset is the sentinel for "no timestamp known yet", matching FFmpeg's
// AV_NOPTS_VALUE convention (INT64_MIN).
const Unset = int64(math.MinInt64)

// RescaleQ rescales ts from the `from` time base into the `to` time base,
// rounding to nearest with ties away from zero, mirroring FFmpeg's
// av_rescale_q. Unset propagates unchanged.
func RescaleQ(ts int64, from, to Rational) int64 {
	if ts == Unset {
		return Unset
	}
	if from.Den == 0 || to.Den == 0 || from.Num == 0 {
		return Unset
	}
	// ts * (from.Num * to.Den) / (from.Den * to.Num), done in two
	// multiplications to cut overflow risk for typical codec time bases.
	num := ts * from.Num * to.Den
	den := from.Den * to.Num
	return roundDiv(num, den)
}

// RescaleToMicros is the common case of rescaling into the canonical base.
func RescaleToMicros(ts int64, from Rational) int64 {
	return RescaleQ(ts, from, MicrosecondBase)
}

func roundDiv(num, den int64) int64 {
	if den < 0 {
		num, den = -num, -den
	}
	if num >= 0 {
		return (num + den/2) / den
	}
	return -((-num + den/2) / den)
}
