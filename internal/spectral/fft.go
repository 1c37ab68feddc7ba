package spectral

import "math"

// fft computes the discrete Fourier transform of input via recursive
// Cooley-Tukey radix-2 decimation. len(input) must be a power of two.
func fft(input []complex128) []complex128 {
	n := len(input)
	if n <= 1 {
		return input
	}

	even := make([]complex128, n/2)
	odd := make([]complex128, n/2)
	for i := 0; i < n/2; i++ {
		even[i] = input[2*i]
		odd[i] = input[2*i+1]
	}

	even = fft(even)
	odd = fft(odd)

	out := make([]complex128, n)
	for k := 0; k < n/2; k++ {
		angle := -2 * math.Pi * float64(k) / float64(n)
		twiddle := complex(math.Cos(angle), math.Sin(angle))
		out[k] = even[k] + twiddle*odd[k]
		out[k+n/2] = even[k] - twiddle*odd[k]
	}
	return out
}

// FFT computes the FFT of a real-valued frame, returning len(frame)
// complex bins. len(frame) must be a power of two.
func FFT(frame []float64) []complex128 {
	complexFrame := make([]complex128, len(frame))
	for i, v := range frame {
		complexFrame[i] = complex(v, 0)
	}
	return fft(complexFrame)
}
