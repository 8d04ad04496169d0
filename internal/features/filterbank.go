package features

import "math"

// Slaney mel scale constants
const (
	melFSp       = 200.0 / 3
	melMinLogHz  = 1000.0
	melMinLogMel = melMinLogHz / melFSp
	melLogStep   = 0.06875177742094912 // ln(6.4) / 27
)

// hzToMel converts frequency to the Slaney mel scale: linear below 1 kHz
// and logarithmic above.
func hzToMel(hz float64) float64 {
	if hz < melMinLogHz {
		return hz / melFSp
	}
	return melMinLogMel + math.Log(hz/melMinLogHz)/melLogStep
}

func melToHz(mel float64) float64 {
	if mel < melMinLogMel {
		return mel * melFSp
	}
	return melMinLogHz * math.Exp(melLogStep*(mel-melMinLogMel))
}

// melFilterbank builds nMels triangular filters over nfft/2+1 FFT bins
// between fmin and fmax, area normalized per the Slaney convention.
// The result is indexed [mel][bin].
func melFilterbank(sampleRate, nfft, nMels int, fmin, fmax float64) [][]float64 {
	nBins := nfft/2 + 1

	fftFreqs := make([]float64, nBins)
	for i := range fftFreqs {
		fftFreqs[i] = float64(i) * float64(sampleRate) / float64(nfft)
	}

	// nMels+2 points evenly spaced in mel
	minMel, maxMel := hzToMel(fmin), hzToMel(fmax)
	melPoints := make([]float64, nMels+2)
	for i := range melPoints {
		melPoints[i] = melToHz(minMel + (maxMel-minMel)*float64(i)/float64(nMels+1))
	}

	weights := make([][]float64, nMels)
	for m := range nMels {
		lower, center, upper := melPoints[m], melPoints[m+1], melPoints[m+2]
		norm := 2.0 / (upper - lower)

		row := make([]float64, nBins)
		for k, f := range fftFreqs {
			rising := (f - lower) / (center - lower)
			falling := (upper - f) / (upper - center)
			row[k] = max(0, min(rising, falling)) * norm
		}
		weights[m] = row
	}
	return weights
}
