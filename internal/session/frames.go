// Package session is the protocol and orchestration layer of one interview
// session: it decodes inbound frames, drives the interview aggregate through
// an answer turn (STT, dual-channel evaluation, follow-up decision,
// completion) and emits the outbound frames in the order the protocol
// guarantees.
//
// The orchestrator is stateless with respect to the interview: it re-loads
// the aggregate from storage at the start of every turn and persists every
// transition before the corresponding outbound frame is emitted. The only
// per-session state lives in [Session]: the audio chunk assembly buffer and
// the last answer kept for request_retry.
package session

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"math"

	"github.com/MrWong99/intervoxa/internal/interview"
)

// Inbound frame types.
const (
	TypeStartSession    = "start_session"
	TypeTextAnswer      = "text_answer"
	TypeAudioChunk      = "audio_chunk"
	TypeGetNextQuestion = "get_next_question"
	TypeRequestRetry    = "request_retry"
	TypeCancel          = "cancel"
)

// Outbound frame types.
const (
	TypeQuestion          = "question"
	TypeFollowUpQuestion  = "follow_up_question"
	TypeTranscription     = "transcription"
	TypeVoiceMetrics      = "voice_metrics"
	TypeEvaluation        = "evaluation"
	TypeInterviewComplete = "interview_complete"
	TypeError             = "error"
)

// InboundFrame is the decoded form of one inbound text frame. It is a flat
// union of every inbound payload; DecodeInbound validates that the fields
// required by the frame's type are present.
type InboundFrame struct {
	Type string `json:"type"`

	// text_answer and audio_chunk.
	QuestionID string `json:"question_id,omitempty"`

	// text_answer.
	AnswerText string `json:"answer_text,omitempty"`

	// audio_chunk.
	ChunkIndex int    `json:"chunk_index,omitempty"`
	IsFinal    bool   `json:"is_final,omitempty"`
	Format     string `json:"format,omitempty"`
	AudioData  string `json:"audio_data,omitempty"`

	// request_retry.
	Of string `json:"of,omitempty"`
}

// knownInboundTypes guards against typos and unknown frame types.
var knownInboundTypes = map[string]bool{
	TypeStartSession:    true,
	TypeTextAnswer:      true,
	TypeAudioChunk:      true,
	TypeGetNextQuestion: true,
	TypeRequestRetry:    true,
	TypeCancel:          true,
}

// DecodeInbound parses one inbound text frame. It validates only shape, never
// domain state: unknown types, missing discriminators and type-specific
// required fields fail here, everything else is the orchestrator's problem.
func DecodeInbound(data []byte) (*InboundFrame, error) {
	var f InboundFrame
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("session: malformed frame: %w", err)
	}
	if f.Type == "" {
		return nil, fmt.Errorf("session: frame has no type")
	}
	if !knownInboundTypes[f.Type] {
		return nil, fmt.Errorf("session: unknown frame type %q", f.Type)
	}

	switch f.Type {
	case TypeTextAnswer:
		if f.QuestionID == "" || f.AnswerText == "" {
			return nil, fmt.Errorf("session: text_answer requires question_id and answer_text")
		}
	case TypeAudioChunk:
		if f.QuestionID == "" {
			return nil, fmt.Errorf("session: audio_chunk requires question_id")
		}
	case TypeRequestRetry:
		if f.Of == "" {
			return nil, fmt.Errorf("session: request_retry requires of")
		}
	}
	return &f, nil
}

// AudioBytes decodes the frame's base64 audio payload. Empty payloads decode
// to nil, which is legal for header-only chunks followed by binary frames.
func (f *InboundFrame) AudioBytes() ([]byte, error) {
	if f.AudioData == "" {
		return nil, nil
	}
	b, err := base64.StdEncoding.DecodeString(f.AudioData)
	if err != nil {
		return nil, fmt.Errorf("session: audio_data is not valid base64: %w", err)
	}
	return b, nil
}

// ─── Outbound frames ───

// QuestionFrame presents one main question to the candidate.
type QuestionFrame struct {
	Type       string `json:"type"`
	QuestionID string `json:"question_id"`
	Text       string `json:"text"`

	// Index is the zero-based plan position; Total the plan length.
	Index int `json:"index"`
	Total int `json:"total"`

	// AudioData is the base64 TTS rendering; empty when synthesis was skipped
	// or failed (the preceding error frame then names text_mode).
	AudioData   string `json:"audio_data,omitempty"`
	AudioFormat string `json:"audio_format,omitempty"`
}

// FollowUpQuestionFrame presents one generated follow-up.
type FollowUpQuestionFrame struct {
	Type             string   `json:"type"`
	QuestionID       string   `json:"question_id"`
	ParentQuestionID string   `json:"parent_question_id"`
	Text             string   `json:"text"`
	GeneratedReason  []string `json:"generated_reason"`
	OrderInSequence  int      `json:"order_in_sequence"`

	AudioData   string `json:"audio_data,omitempty"`
	AudioFormat string `json:"audio_format,omitempty"`
}

// TranscriptionFrame reports the STT result for a spoken answer.
type TranscriptionFrame struct {
	Type       string  `json:"type"`
	Text       string  `json:"text"`
	IsFinal    bool    `json:"is_final"`
	Confidence float64 `json:"confidence"`
}

// VoiceMetricsFrame reports the acoustic measurements of a spoken answer.
type VoiceMetricsFrame struct {
	Type            string  `json:"type"`
	Intonation      float64 `json:"intonation"`
	Fluency         float64 `json:"fluency"`
	Confidence      float64 `json:"confidence"`
	SpeakingRateWPM int     `json:"speaking_rate_wpm"`

	// RealTime is false: metrics are computed once per utterance, not streamed.
	RealTime bool `json:"real_time"`
}

// EvaluationFrame reports the dual-channel verdict on one answer.
type EvaluationFrame struct {
	Type     string `json:"type"`
	AnswerID string `json:"answer_id"`

	// Score is the final score rounded to one decimal place.
	Score float64 `json:"score"`

	Feedback   string   `json:"feedback"`
	Strengths  []string `json:"strengths"`
	Weaknesses []string `json:"weaknesses"`

	SimilarityScore float64       `json:"similarity_score"`
	Gaps            interview.Gap `json:"gaps"`

	VoiceMetrics *VoiceMetricsFrame `json:"voice_metrics,omitempty"`
}

// CompleteFrame carries the completion summary.
type CompleteFrame struct {
	Type string `json:"type"`
	interview.CompletionSummary
}

// ErrorFrame is the wire form of a [Error].
type ErrorFrame struct {
	Type           string `json:"type"`
	Code           string `json:"code"`
	Message        string `json:"message"`
	Recoverable    bool   `json:"recoverable"`
	RetryAvailable bool   `json:"retry_available"`
	FallbackOption string `json:"fallback_option,omitempty"`
}

// round1 rounds to one decimal place. Scores keep full double precision
// internally and are rounded only here, at the message boundary.
func round1(x float64) float64 {
	return math.Round(x*10) / 10
}

// voiceFrame converts domain voice metrics into their wire form, or nil.
func voiceFrame(v *interview.VoiceMetrics) *VoiceMetricsFrame {
	if v == nil {
		return nil
	}
	return &VoiceMetricsFrame{
		Type:            TypeVoiceMetrics,
		Intonation:      v.Intonation,
		Fluency:         v.Fluency,
		Confidence:      v.Confidence,
		SpeakingRateWPM: v.SpeakingRateWPM,
	}
}
