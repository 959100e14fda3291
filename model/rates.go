package model

// RateSequence is an optional ordered series of measured frames-per-second
// samples. An absent sequence and a present but empty one are different values.
type RateSequence struct {
	samples []float64
	present bool
}

func NewRateSequence(samples []float64) RateSequence {
	if samples == nil {
		samples = []float64{}
	}
	return RateSequence{samples: samples, present: true}
}

func AbsentRates() RateSequence {
	return RateSequence{}
}

func (r RateSequence) Present() bool {
	return r.present
}

func (r RateSequence) Len() int {
	return len(r.samples)
}

// At returns the sample aligned with frame i. It is the only alignment rule:
// a sample applies iff the sequence is present and i is a valid index into it.
func (r RateSequence) At(i int) (float64, bool) {
	if !r.present || i < 0 || i >= len(r.samples) {
		return 0, false
	}
	return r.samples[i], true
}

func (r RateSequence) Mean() float64 {
	if len(r.samples) == 0 {
		return 0
	}
	var sum float64
	for _, s := range r.samples {
		sum += s
	}
	return sum / float64(len(r.samples))
}
