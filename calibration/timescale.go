package calibration

import "fmt"

// TimeScale computes the linear time-dependence scalar for an exposure epoch:
// 0 at epoch1, 1 at epoch2, linear in between. Values outside [0, 1] are
// permitted and simply extrapolate the trend; whether extrapolation is
// acceptable is the caller's call.
func TimeScale(epoch, epoch1, epoch2 float64) (float64, error) {
	if epoch1 == epoch2 {
		return 0, fmt.Errorf("%w: epochs %g and %g coincide", ErrInvalidRange, epoch1, epoch2)
	}
	return (epoch - epoch1) / (epoch2 - epoch1), nil
}

// TimeScale returns the scalar for this set's epochs.
func (s *Set) TimeScale(epoch float64) (float64, error) {
	return TimeScale(epoch, s.Epoch1, s.Epoch2)
}
