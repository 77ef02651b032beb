package audiolevel

import (
	"math"

	"gonum.org/v1/gonum/dsp/fourier"
)

const (
	minDecibels = -100.0
	maxDecibels = -30.0
	smoothing   = 0.8
)

// analyser turns a PCM window into byte-scaled per-bin energy the way a browser
// AnalyserNode does: Blackman window, FFT, time smoothing, dB mapped to 0..255.
type analyser struct {
	size   int
	fft    *fourier.FFT
	window []float64
	buf    []float64
	coeffs []complex128
	prev   []float64
}

func newAnalyser(size int) *analyser {
	a := &analyser{
		size:   size,
		fft:    fourier.NewFFT(size),
		window: blackman(size),
		buf:    make([]float64, size),
		prev:   make([]float64, size/2),
	}
	return a
}

func blackman(n int) []float64 {
	const alpha = 0.16
	a0, a1, a2 := (1-alpha)/2, 0.5, alpha/2
	w := make([]float64, n)
	for i := range w {
		x := 2 * math.Pi * float64(i) / float64(n)
		w[i] = a0 - a1*math.Cos(x) + a2*math.Cos(2*x)
	}
	return w
}

// average returns the mean byte-scaled energy over all frequency bins.
func (a *analyser) average(samples []float64) float64 {
	for i := range a.buf {
		var s float64
		if i < len(samples) {
			s = samples[i]
		}
		a.buf[i] = s * a.window[i]
	}
	a.coeffs = a.fft.Coefficients(a.coeffs, a.buf)

	var sum float64
	n := float64(a.size)
	for k := range a.prev {
		mag := cmplxAbs(a.coeffs[k]) / n
		a.prev[k] = smoothing*a.prev[k] + (1-smoothing)*mag
		sum += toByte(a.prev[k])
	}
	return sum / float64(len(a.prev))
}

func toByte(mag float64) float64 {
	if mag <= 0 {
		return 0
	}
	db := 20 * math.Log10(mag)
	v := 255 * (db - minDecibels) / (maxDecibels - minDecibels)
	return math.Max(0, math.Min(255, v))
}

func cmplxAbs(c complex128) float64 {
	return math.Hypot(real(c), imag(c))
}

// normalize maps an average byte energy to 0..100 against ceiling.
func normalize(avg, ceiling float64) int {
	if ceiling <= 0 {
		ceiling = DefaultConfig().Ceiling
	}
	v := int(math.Round(avg / ceiling * 100))
	return max(0, min(100, v))
}
