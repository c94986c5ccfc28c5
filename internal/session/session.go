package session

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/coder/websocket"

	"github.com/MrWong99/intervoxa/internal/observe"
	"github.com/MrWong99/intervoxa/pkg/provider/stt"
)

// wire is the subset of [*websocket.Conn] the session uses, extracted so
// tests can drive the loop without a real socket.
type wire interface {
	Read(ctx context.Context) (websocket.MessageType, []byte, error)
	Write(ctx context.Context, typ websocket.MessageType, data []byte) error
	Close(code websocket.StatusCode, reason string) error
}

// chunkBuffer assembles one spoken answer from its streamed chunks.
type chunkBuffer struct {
	active     bool
	questionID string
	format     string
	next       int
	data       []byte
}

func (b *chunkBuffer) reset() { *b = chunkBuffer{} }

// Session binds one websocket connection to one interview. It reads inbound
// frames strictly sequentially: frame n+1 is not decoded until every outbound
// frame of frame n has been written, which gives the protocol its per-session
// ordering guarantee for free.
type Session struct {
	conn        wire
	orch        *Orchestrator
	interviewID string
	metrics     *observe.Metrics
	log         *slog.Logger

	// writeMu serialises Emit so concurrent emitters (none today, but the
	// turn fan-out may grow some) cannot interleave partial writes.
	writeMu sync.Mutex

	audio chunkBuffer

	// lastAnswer is the most recent complete answer input, kept for
	// request_retry.
	lastAnswer *AnswerInput

	cancelled bool
}

// NewSession binds conn to the interview. The caller owns the connection's
// lifetime; Run closes it on normal termination.
func NewSession(conn *websocket.Conn, orch *Orchestrator, interviewID string) *Session {
	return newSession(conn, orch, interviewID)
}

func newSession(conn wire, orch *Orchestrator, interviewID string) *Session {
	return &Session{
		conn:        conn,
		orch:        orch,
		interviewID: interviewID,
		metrics:     orch.cfg.Metrics,
		log:         slog.Default().With("interview_id", interviewID),
	}
}

var _ Emitter = (*Session)(nil)

// Emit implements [Emitter]: it marshals the frame and writes it as one text
// message.
func (s *Session) Emit(ctx context.Context, frame any) error {
	data, err := json.Marshal(frame)
	if err != nil {
		return fmt.Errorf("session: encode frame: %w", err)
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if err := s.conn.Write(ctx, websocket.MessageText, data); err != nil {
		return fmt.Errorf("session: write frame: %w", err)
	}
	s.metrics.RecordFrameOut(ctx, outboundType(frame))
	return nil
}

// Run processes inbound frames until the connection closes, the context ends
// or the interview is cancelled. It always returns after the connection is no
// longer usable; a nil error means an orderly shutdown.
func (s *Session) Run(ctx context.Context) error {
	s.metrics.ActiveSessions.Add(ctx, 1)
	defer s.metrics.ActiveSessions.Add(ctx, -1)

	for {
		typ, data, err := s.conn.Read(ctx)
		if err != nil {
			if ctx.Err() != nil {
				_ = s.conn.Close(websocket.StatusGoingAway, "server shutting down")
				return nil
			}
			// Peer closed or connection dropped.
			return nil
		}

		switch typ {
		case websocket.MessageBinary:
			s.handleBinary(ctx, data)
		default:
			s.handleText(ctx, data)
		}

		if s.cancelled {
			_ = s.conn.Close(websocket.StatusNormalClosure, "interview cancelled")
			return nil
		}
	}
}

// handleText decodes and dispatches one inbound text frame.
func (s *Session) handleText(ctx context.Context, data []byte) {
	frame, err := DecodeInbound(data)
	if err != nil {
		s.metrics.RecordFrameIn(ctx, "invalid")
		s.emitError(ctx, invalidMessage(err.Error(), err))
		return
	}
	s.metrics.RecordFrameIn(ctx, frame.Type)

	switch frame.Type {
	case TypeStartSession:
		s.report(ctx, s.orch.StartSession(ctx, s, s.interviewID))
	case TypeTextAnswer:
		in := AnswerInput{QuestionID: frame.QuestionID, Transcript: frame.AnswerText}
		s.audio.reset()
		s.runAnswer(ctx, in)
	case TypeAudioChunk:
		s.handleAudioChunk(ctx, frame)
	case TypeGetNextQuestion:
		s.report(ctx, s.orch.NextQuestion(ctx, s, s.interviewID))
	case TypeRequestRetry:
		if s.lastAnswer == nil {
			s.emitError(ctx, invalidMessage("no answer to retry", nil))
			return
		}
		s.runAnswer(ctx, *s.lastAnswer)
	case TypeCancel:
		if err := s.orch.Cancel(ctx, s.interviewID); err != nil {
			s.report(ctx, err)
			return
		}
		s.cancelled = true
	}
}

// handleAudioChunk validates ordering and accumulates the chunk; the final
// chunk runs the answer turn.
func (s *Session) handleAudioChunk(ctx context.Context, frame *InboundFrame) {
	if !s.audio.active {
		if frame.ChunkIndex != 0 {
			s.emitError(ctx, audioFormatUnsupported(
				fmt.Sprintf("answer must start at chunk_index 0, got %d", frame.ChunkIndex)))
			return
		}
		if !stt.IsSupportedFormat(frame.Format) {
			s.emitError(ctx, audioFormatUnsupported("unsupported audio format "+frame.Format))
			return
		}
		s.audio = chunkBuffer{active: true, questionID: frame.QuestionID, format: frame.Format}
	}

	switch {
	case frame.QuestionID != s.audio.questionID:
		s.audio.reset()
		s.emitError(ctx, audioFormatUnsupported("audio chunk for a different question mid-answer"))
		return
	case frame.ChunkIndex != s.audio.next:
		// Non-monotonic or duplicate: reject and drop the whole assembly.
		s.audio.reset()
		s.emitError(ctx, audioFormatUnsupported(
			fmt.Sprintf("chunk_index out of order: got %d, want %d", frame.ChunkIndex, s.audio.next)))
		return
	}

	payload, err := frame.AudioBytes()
	if err != nil {
		s.audio.reset()
		s.emitError(ctx, invalidMessage(err.Error(), err))
		return
	}
	s.audio.data = append(s.audio.data, payload...)
	s.audio.next++

	if frame.IsFinal {
		in := AnswerInput{
			QuestionID: s.audio.questionID,
			Audio:      s.audio.data,
			Format:     s.audio.format,
			Spoken:     true,
		}
		s.audio.reset()
		s.runAnswer(ctx, in)
	}
}

// handleBinary appends a raw continuation chunk to the active assembly.
func (s *Session) handleBinary(ctx context.Context, data []byte) {
	s.metrics.RecordFrameIn(ctx, "binary")
	if !s.audio.active {
		s.emitError(ctx, audioFormatUnsupported("binary frame without a preceding audio_chunk header"))
		return
	}
	s.audio.data = append(s.audio.data, data...)
	s.audio.next++
}

// runAnswer executes one answer turn and remembers the input for retry.
func (s *Session) runAnswer(ctx context.Context, in AnswerInput) {
	s.lastAnswer = &in
	s.report(ctx, s.orch.HandleAnswer(ctx, s, s.interviewID, in))
}

// report converts an orchestrator error into an error frame. Nil is a no-op.
func (s *Session) report(ctx context.Context, err error) {
	if err == nil {
		return
	}
	s.emitError(ctx, Classify(err))
}

func (s *Session) emitError(ctx context.Context, serr *Error) {
	s.log.Warn("session error", "code", serr.Code, "error", serr)
	if err := s.Emit(ctx, serr.Frame()); err != nil {
		s.log.Warn("failed to emit error frame", "error", err)
	}
}

// outboundType maps a frame value to its wire type for metrics.
func outboundType(frame any) string {
	switch f := frame.(type) {
	case *QuestionFrame:
		return f.Type
	case *FollowUpQuestionFrame:
		return f.Type
	case *TranscriptionFrame:
		return f.Type
	case *VoiceMetricsFrame:
		return f.Type
	case *EvaluationFrame:
		return f.Type
	case *CompleteFrame:
		return f.Type
	case *ErrorFrame:
		return f.Type
	default:
		return "unknown"
	}
}
