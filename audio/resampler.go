package audio

// Resampler converts mono int16 audio between sample rates by linear
// interpolation. It keeps the last input sample so consecutive frames join
// without a discontinuity, and reuses its output buffer between calls.
type Resampler struct {
	inputRate  int
	outputRate int
	last       int16
	position   float64
	out        []int16
}

// NewResampler creates a resampler from inputRate to outputRate.
func NewResampler(inputRate, outputRate int) *Resampler {
	return &Resampler{inputRate: inputRate, outputRate: outputRate}
}

// InputRate returns the input sample rate.
func (r *Resampler) InputRate() int { return r.inputRate }

// OutputRate returns the output sample rate.
func (r *Resampler) OutputRate() int { return r.outputRate }

// Resample converts one block. The returned slice is valid until the next
// call.
func (r *Resampler) Resample(input []int16) []int16 {
	if len(input) == 0 {
		return r.out[:0]
	}
	if r.inputRate == r.outputRate {
		r.out = append(r.out[:0], input...)
		r.last = input[len(input)-1]
		return r.out
	}

	ratio := float64(r.inputRate) / float64(r.outputRate)
	r.out = r.out[:0]

	// position is measured from the last sample of the previous block, which
	// sits at index -1 of input.
	for {
		idx := int(r.position)
		if idx >= len(input) {
			break
		}
		frac := r.position - float64(idx)

		var a int16
		if idx == 0 {
			a = r.last
		} else {
			a = input[idx-1]
		}
		b := input[idx]
		r.out = append(r.out, int16(float64(a)+(float64(b)-float64(a))*frac))
		r.position += ratio
	}

	r.position -= float64(len(input))
	r.last = input[len(input)-1]
	return r.out
}

// Reset forgets the carried state.
func (r *Resampler) Reset() {
	r.last = 0
	r.position = 0
	r.out = r.out[:0]
}
