// Copyright (c) 2018-2019 Tigera, Inc. All rights reserved.

// Package units provides newtype-wrapped scalar quantities (data rate,
// data volume, power, ratio) used throughout the flow simulator, with
// epsilon-tolerant approximate equality and strict ordering.
package units

import "math"

// Epsilon is the default tolerance used by the Approx* family of
// comparisons. a ≈ b iff |a-b| <= Epsilon*max(|a|,|b|,1).
const Epsilon = 1e-6

// DataRate is a non-negative rational scalar in bits per second. It is
// used for both demand and realized throughput.
type DataRate float64

// Bps constructs a DataRate from a raw bits/s value.
func Bps(v float64) DataRate { return DataRate(v) }

// Kbps constructs a DataRate from a kilobits/s value (the unit used by
// topology JSON documents, see topology.Spec).
func Kbps(v float64) DataRate { return DataRate(v * 1000) }

// Mbps returns the DataRate expressed in megabits/s.
func (r DataRate) Mbps() float64 { return float64(r) / 1e6 }

// Kbps returns the DataRate expressed in kilobits/s.
func (r DataRate) Kbps() float64 { return float64(r) / 1e3 }

// Add returns r+o.
func (r DataRate) Add(o DataRate) DataRate { return r + o }

// Sub returns r-o. Sub itself may return a negative DataRate; callers
// that need a non-negative result clamp it themselves.
func (r DataRate) Sub(o DataRate) DataRate { return r - o }

// Less reports whether r is strictly less than o, ignoring Epsilon.
func (r DataRate) Less(o DataRate) bool { return r < o }

// Approx reports whether r and o are equal within Epsilon.
func (r DataRate) Approx(o DataRate) bool {
	return approxEqual(float64(r), float64(o), Epsilon)
}

// ApproxLess reports whether r is less than o and not Approx-equal to it.
func (r DataRate) ApproxLess(o DataRate) bool {
	return r < o && !r.Approx(o)
}

// ApproxGreater reports whether r exceeds o and not Approx-equal to it.
func (r DataRate) ApproxGreater(o DataRate) bool {
	return r > o && !r.Approx(o)
}

// Data is a non-negative scalar in bits, e.g. total bits transferred.
type Data float64

// Bits constructs a Data value from a raw bit count.
func Bits(v float64) Data { return Data(v) }

// Add returns d+o.
func (d Data) Add(o Data) Data { return d + o }

// Over computes the volume transferred at rate r over duration t.
func Over(r DataRate, t Time) Data { return Data(float64(r) * t.Seconds()) }

// Power is a non-negative scalar in watts.
type Power float64

// Watts constructs a Power value.
func Watts(v float64) Power { return Power(v) }

// Add returns p+o.
func (p Power) Add(o Power) Power { return p + o }

// Approx reports whether p and o are equal within Epsilon.
func (p Power) Approx(o Power) bool {
	return approxEqual(float64(p), float64(o), Epsilon)
}

// Time is a point in, or duration of, simulated wall-clock time
// expressed in seconds as a float64 so sub-millisecond virtual steps
// are representable.
type Time float64

// Seconds constructs a Time from a raw second count.
func Seconds(v float64) Time { return Time(v) }

// Seconds returns the raw second count.
func (t Time) Seconds() float64 { return float64(t) }

// Sub returns t-o as an elapsed duration.
func (t Time) Sub(o Time) Time { return t - o }

// Joules integrates power p held constant over duration t into energy.
func Joules(p Power, t Time) Data {
	return Data(float64(p) * t.Seconds())
}

// Ratio is an optional [0,1]-ish scalar (throughput/demand); division by
// zero demand yields a null Ratio rather than a NaN.
type Ratio struct {
	Value float64
	Valid bool
}

// NullRatio is the zero-value-equivalent invalid Ratio.
var NullRatio = Ratio{}

// RatioOf computes numerator/denominator, returning a null Ratio when
// denominator is (approximately) zero.
func RatioOf(numerator, denominator DataRate) Ratio {
	if approxEqual(float64(denominator), 0, Epsilon) {
		return NullRatio
	}
	return Ratio{Value: float64(numerator) / float64(denominator), Valid: true}
}

func approxEqual(a, b, eps float64) bool {
	diff := math.Abs(a - b)
	scale := math.Max(math.Abs(a), math.Abs(b))
	scale = math.Max(scale, 1)
	return diff <= eps*scale
}
