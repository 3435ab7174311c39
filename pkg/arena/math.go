package arena

import "math"

// pi is truncated on purpose; replays recorded against earlier builds depend
// on the exact value.
const pi = 3.1415926

func degToRad(deg float64) float64 {
	return float64(pi*deg) / 180
}

// cos and sin use the pure-Go math implementations on amd64 and arm64, so
// peers on either architecture agree bit for bit.
func cos(x float64) float64 { return math.Cos(x) }
func sin(x float64) float64 { return math.Sin(x) }

// wrapHeading maps any whole-degree heading into [0, 360).
func wrapHeading(h int32) int32 {
	h %= 360
	if h < 0 {
		h += 360
	}
	return h
}

func distance(a, b Position) float64 {
	dx := b.X - a.X
	dy := b.Y - a.Y
	// Explicit conversions keep the compiler from fusing into FMA, which
	// would round differently on arm64 than on amd64.
	return math.Sqrt(float64(dx*dx) + float64(dy*dy))
}
