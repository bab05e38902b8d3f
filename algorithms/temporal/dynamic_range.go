package temporal

import (
	"github.com/RyanBlaney/sonido-critique/algorithms/common"
)

// CrestFactorDB is the peak-to-RMS ratio in dB; it is independent of overall gain
func CrestFactorDB(signal []float64) float64 {
	rms := common.RMS(signal)
	if rms <= 0 {
		return 0
	}
	return common.AmplitudeToDB(common.Peak(signal) / rms)
}
