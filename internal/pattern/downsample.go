package pattern

import "math"

// Downsample reduces an ordered series to at most maxPoints entries by
// keeping every ceil(n/maxPoints)-th point. The first and last original
// points survive so the rendered extent matches the data; when the
// budget is already full the final kept point is replaced by the true
// endpoint. A non-positive maxPoints returns the series unchanged.
func Downsample[T any](series []T, maxPoints int) []T {
	n := len(series)
	if maxPoints <= 0 || n <= maxPoints {
		return series
	}
	stride := int(math.Ceil(float64(n) / float64(maxPoints)))
	out := make([]T, 0, n/stride+2)
	for i := 0; i < n; i += stride {
		out = append(out, series[i])
	}
	if (n-1)%stride != 0 {
		if len(out) < maxPoints {
			out = append(out, series[n-1])
		} else {
			out[len(out)-1] = series[n-1]
		}
	}
	return out
}
