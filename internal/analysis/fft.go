package analysis

import (
	"fmt"
	"math"
	"math/cmplx"

	"gonum.org/v1/gonum/dsp/fourier"
	"gonum.org/v1/gonum/stat"
)

// Column extracts one named column from a trace.
func Column(header []string, states [][]float64, name string) ([]float64, error) {
	idx := -1
	for i, h := range header {
		if h == name {
			idx = i
			break
		}
	}
	if idx < 0 {
		return nil, fmt.Errorf("unknown column %q", name)
	}
	out := make([]float64, len(states))
	for i, row := range states {
		if idx < len(row) {
			out[i] = row[idx]
		}
	}
	return out, nil
}

// PowerSpectrum returns the magnitude of every non-negative frequency bin of
// data with its mean removed.
func PowerSpectrum(data []float64) []float64 {
	if len(data) < 2 {
		return nil
	}
	mean := stat.Mean(data, nil)
	centered := make([]float64, len(data))
	for i, v := range data {
		centered[i] = v - mean
	}
	coeff := fourier.NewFFT(len(centered)).Coefficients(nil, centered)
	ps := make([]float64, len(coeff))
	for i, c := range coeff {
		ps[i] = cmplx.Abs(c)
	}
	return ps
}

// Spectrum returns the frequency in Hz and magnitude of every bin for
// samples spaced dt apart.
func Spectrum(data []float64, dt float64) (freqs, power []float64) {
	power = PowerSpectrum(data)
	if power == nil || dt <= 0 {
		return nil, nil
	}
	fft := fourier.NewFFT(len(data))
	freqs = make([]float64, len(power))
	for i := range freqs {
		freqs[i] = fft.Freq(i) / dt
	}
	return freqs, power
}

// DominantFrequency is the strongest non-zero frequency of data. A constant
// signal reports zero.
func DominantFrequency(data []float64, dt float64) (freq, power float64) {
	freqs, ps := Spectrum(data, dt)
	for i := 1; i < len(ps); i++ {
		if ps[i] > power {
			power, freq = ps[i], freqs[i]
		}
	}
	if power < 1e-12 {
		return 0, 0
	}
	return freq, power
}

type Summary struct {
	Mean, Std  float64
	Min, Max   float64
	Final      float64
	Settled    bool
	SettleTime float64
}

// Summarize describes one column. A column has settled when it stays within
// tol of its final value for the rest of the run.
func Summarize(data, times []float64, tol float64) Summary {
	if len(data) == 0 {
		return Summary{}
	}
	var s Summary
	s.Mean, s.Std = stat.MeanStdDev(data, nil)
	s.Min, s.Max = math.Inf(1), math.Inf(-1)
	for _, v := range data {
		s.Min = math.Min(s.Min, v)
		s.Max = math.Max(s.Max, v)
	}
	s.Final = data[len(data)-1]

	settle := len(data) - 1
	for settle > 0 && math.Abs(data[settle-1]-s.Final) <= tol {
		settle--
	}
	if settle < len(data)-1 || len(data) == 1 {
		s.Settled = true
		if settle < len(times) {
			s.SettleTime = times[settle]
		}
	}
	return s
}
