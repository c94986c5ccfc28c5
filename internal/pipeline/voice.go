package pipeline

import (
	"strings"
	"time"

	"github.com/MrWong99/intervoxa/internal/interview"
)

// fillerWords drag the fluency score down.
var fillerWords = map[string]bool{
	"um": true, "uh": true, "er": true, "ah": true,
	"like": true, "literally": true, "basically": true,
}

// hedgePhrases drag the confidence score down.
var hedgePhrases = []string{
	"i think", "i guess", "maybe", "probably", "not sure",
	"i believe", "kind of", "sort of",
}

// Comfortable spoken pace in words per minute. Rates inside the band score
// full marks; the score decays linearly outside it.
const (
	paceLow  = 100
	paceHigh = 170
)

// AnalyzeSpeech derives heuristic voice metrics from a transcript and the
// audio duration, for STT providers that return text only. Returns nil when
// there is not enough signal to measure anything.
//
// The heuristics are deliberately coarse: pace from word count over duration,
// fluency from the filler-word ratio, confidence from hedging phrases.
// Intonation cannot be recovered from text and is fixed at a neutral value.
func AnalyzeSpeech(transcript string, duration time.Duration) *interview.VoiceMetrics {
	words := strings.Fields(transcript)
	if len(words) == 0 || duration <= 0 {
		return nil
	}

	seconds := duration.Seconds()
	wpm := int(float64(len(words)) / seconds * 60.0)

	fillers := 0
	for _, w := range words {
		if fillerWords[strings.ToLower(strings.Trim(w, ".,!?;:"))] {
			fillers++
		}
	}
	fillerRatio := float64(fillers) / float64(len(words))

	lower := strings.ToLower(transcript)
	hedges := 0
	for _, phrase := range hedgePhrases {
		hedges += strings.Count(lower, phrase)
	}
	hedgeRatio := float64(hedges) / float64(len(words))

	return &interview.VoiceMetrics{
		// No pitch data from a transcript; neutral placeholder.
		Intonation:      0.6,
		Fluency:         clamp01(1.0 - 4.0*fillerRatio),
		Confidence:      clamp01(paceScore(wpm)*0.5 + (1.0-8.0*hedgeRatio)*0.5),
		SpeakingRateWPM: wpm,
		DurationSeconds: seconds,
	}
}

// paceScore maps words-per-minute onto [0, 1] with a plateau over the
// comfortable band.
func paceScore(wpm int) float64 {
	switch {
	case wpm >= paceLow && wpm <= paceHigh:
		return 1.0
	case wpm < paceLow:
		return clamp01(float64(wpm) / paceLow)
	default:
		// Decays to zero at double the upper bound.
		return clamp01(1.0 - float64(wpm-paceHigh)/paceHigh)
	}
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
