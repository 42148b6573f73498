package pattern

import (
	"errors"
	"fmt"
	"math"

	"github.com/bingo-data/beamscope/internal/efield"
)

// ErrLengthMismatch reports element-field and array-factor series whose
// lengths differ. The two are parallel arrays over the same angles, so
// a mismatch means the request was assembled wrong.
var ErrLengthMismatch = errors.New("element field and array factor lengths differ")

// ErrInputEmpty reports a request with no antennas or no element-field
// samples.
var ErrInputEmpty = errors.New("input is empty")

// CombineFields multiplies each element-field sample by the matching
// array factor and returns the total field magnitude per sample:
// sqrt(|Etheta*AF|^2 + |Ephi*AF|^2). A sample whose product comes out
// non-finite contributes magnitude zero; the batch keeps going.
func CombineFields(samples []efield.Sample, af []complex128) ([]float64, error) {
	if len(samples) != len(af) {
		return nil, fmt.Errorf("%w: %d samples, %d array factor values", ErrLengthMismatch, len(samples), len(af))
	}
	mags := make([]float64, len(samples))
	malformed := 0
	for i, smp := range samples {
		et := smp.ETheta() * af[i]
		ep := smp.EPhi() * af[i]
		mag := math.Sqrt(real(et)*real(et) + imag(et)*imag(et) + real(ep)*real(ep) + imag(ep)*imag(ep))
		if math.IsNaN(mag) || math.IsInf(mag, 0) {
			malformed++
			mag = 0
		}
		mags[i] = mag
	}
	if malformed > 0 {
		logf("absorbed %d malformed samples of %d (magnitude forced to zero)", malformed, len(samples))
	}
	return mags, nil
}
