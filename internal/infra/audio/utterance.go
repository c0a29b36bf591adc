package audio

// utterance collects microphone frames until the speaker goes quiet for a
// second after at least a second of audio, or the length cap is reached.
type utterance struct {
	threshold     int16
	minSamples    int
	maxSilence    int
	maxSamples    int
	samples       []int16
	silentSamples int
}

func newUtterance(sampleRate, maxSamples int) *utterance {
	return &utterance{
		threshold:  500,
		minSamples: sampleRate,
		maxSilence: sampleRate,
		maxSamples: maxSamples,
		samples:    make([]int16, 0, maxSamples),
	}
}

// add appends a frame and reports whether recording should stop.
func (u *utterance) add(frame []int16) bool {
	u.samples = append(u.samples, frame...)

	if isSilent(frame, u.threshold) {
		u.silentSamples += len(frame)
	} else {
		u.silentSamples = 0
	}

	if u.silentSamples > u.maxSilence && len(u.samples) > u.minSamples {
		return true
	}
	return len(u.samples) >= u.maxSamples
}

func isSilent(frame []int16, threshold int16) bool {
	for _, sample := range frame {
		if sample > threshold || sample < -threshold {
			return false
		}
	}
	return true
}
