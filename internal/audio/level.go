package audio

import "math"

// CalculateRMS calculates the root mean square (RMS) of audio samples
// Useful for detecting audio levels and silence
func CalculateRMS(samples []int16) float64 {
	if len(samples) == 0 {
		return 0.0
	}

	sum := 0.0
	for _, sample := range samples {
		sum += float64(sample) * float64(sample)
	}

	return math.Sqrt(sum / float64(len(samples)))
}

// LevelReport summarizes the loudness of an uploaded recording
type LevelReport struct {
	RMS     float64
	Silent  bool
	Checked bool // false when the buffer was not 16-bit PCM WAV
}

// InspectLevel reports whether a WAV recording is below the energy threshold.
// Buffers that are not 16-bit PCM WAV are never reported as silent, since
// the speech-to-text provider accepts more formats than this check reads.
func InspectLevel(data []byte, threshold float64) LevelReport {
	if threshold <= 0 {
		return LevelReport{}
	}
	samples, err := PCM16Samples(data)
	if err != nil {
		return LevelReport{}
	}
	rms := CalculateRMS(samples)
	return LevelReport{
		RMS:     rms,
		Silent:  rms < threshold,
		Checked: true,
	}
}
