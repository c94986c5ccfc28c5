package session

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/coder/websocket"
)

// fakeWire is a scripted connection: Read pops queued messages and fails once
// the queue is empty, which ends the session loop like a peer close would.
type fakeWire struct {
	mu      sync.Mutex
	inbound []wireMsg
	writes  [][]byte

	closed      bool
	closeCode   websocket.StatusCode
	closeReason string
}

type wireMsg struct {
	typ  websocket.MessageType
	data []byte
}

func (w *fakeWire) Read(ctx context.Context) (websocket.MessageType, []byte, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if len(w.inbound) == 0 {
		return 0, nil, errors.New("fakeWire: connection closed")
	}
	msg := w.inbound[0]
	w.inbound = w.inbound[1:]
	return msg.typ, msg.data, nil
}

func (w *fakeWire) Write(_ context.Context, _ websocket.MessageType, data []byte) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.writes = append(w.writes, append([]byte(nil), data...))
	return nil
}

func (w *fakeWire) Close(code websocket.StatusCode, reason string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.closed = true
	w.closeCode = code
	w.closeReason = reason
	return nil
}

func (w *fakeWire) queueText(t *testing.T, frame any) {
	t.Helper()
	data, err := json.Marshal(frame)
	if err != nil {
		t.Fatalf("marshal inbound frame: %v", err)
	}
	w.inbound = append(w.inbound, wireMsg{typ: websocket.MessageText, data: data})
}

func (w *fakeWire) queueRaw(data string) {
	w.inbound = append(w.inbound, wireMsg{typ: websocket.MessageText, data: []byte(data)})
}

func (w *fakeWire) queueBinary(data []byte) {
	w.inbound = append(w.inbound, wireMsg{typ: websocket.MessageBinary, data: data})
}

// writtenTypes decodes every outbound write down to its type discriminator.
func (w *fakeWire) writtenTypes(t *testing.T) []string {
	t.Helper()
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([]string, len(w.writes))
	for i, data := range w.writes {
		var head struct {
			Type string `json:"type"`
		}
		if err := json.Unmarshal(data, &head); err != nil {
			t.Fatalf("outbound frame %d is not JSON: %v", i, err)
		}
		out[i] = head.Type
	}
	return out
}

// written decodes the i-th outbound write into a generic map.
func (w *fakeWire) written(t *testing.T, i int) map[string]any {
	t.Helper()
	w.mu.Lock()
	defer w.mu.Unlock()
	if i >= len(w.writes) {
		t.Fatalf("outbound frame %d does not exist (have %d)", i, len(w.writes))
	}
	var m map[string]any
	if err := json.Unmarshal(w.writes[i], &m); err != nil {
		t.Fatalf("outbound frame %d: %v", i, err)
	}
	return m
}

func runSession(t *testing.T, f *fixture, conn *fakeWire) {
	t.Helper()
	s := newSession(conn, f.orch, "iv-1")
	if err := s.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
}

func sameTypes(got, want []string) bool {
	if len(got) != len(want) {
		return false
	}
	for i := range want {
		if got[i] != want[i] {
			return false
		}
	}
	return true
}

func TestSessionDispatchesFullTextTurn(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.seedIdle(t, "q-1", "q-2")

	conn := &fakeWire{}
	conn.queueText(t, map[string]any{"type": "start_session"})
	conn.queueText(t, map[string]any{
		"type": "text_answer", "question_id": "q-1", "answer_text": "a typed answer",
	})
	runSession(t, f, conn)

	got := conn.writtenTypes(t)
	want := []string{TypeQuestion, TypeEvaluation, TypeQuestion}
	if !sameTypes(got, want) {
		t.Fatalf("outbound = %v, want %v", got, want)
	}
	next := conn.written(t, 2)
	if next["question_id"] != "q-2" {
		t.Errorf("advanced to %v, want q-2", next["question_id"])
	}
}

func TestSessionMalformedFrameKeepsSessionAlive(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.seedIdle(t, "q-1")

	conn := &fakeWire{}
	conn.queueRaw(`{"type":`)
	conn.queueRaw(`{"type":"warp_core_breach"}`)
	conn.queueText(t, map[string]any{"type": "start_session"})
	runSession(t, f, conn)

	got := conn.writtenTypes(t)
	want := []string{TypeError, TypeError, TypeQuestion}
	if !sameTypes(got, want) {
		t.Fatalf("outbound = %v, want %v", got, want)
	}
	for i := 0; i < 2; i++ {
		if ef := conn.written(t, i); ef["code"] != CodeInvalidMessage {
			t.Errorf("frame %d code = %v, want INVALID_MESSAGE", i, ef["code"])
		}
	}
}

func TestSessionAssemblesChunkedAudio(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.seedIdle(t, "q-1", "q-2")

	conn := &fakeWire{}
	conn.queueText(t, map[string]any{"type": "start_session"})
	conn.queueText(t, map[string]any{
		"type": "audio_chunk", "question_id": "q-1", "chunk_index": 0,
		"format": "webm", "audio_data": base64.StdEncoding.EncodeToString([]byte("abc")),
	})
	conn.queueBinary([]byte("def"))
	conn.queueText(t, map[string]any{
		"type": "audio_chunk", "question_id": "q-1", "chunk_index": 2, "is_final": true,
		"audio_data": base64.StdEncoding.EncodeToString([]byte("ghi")),
	})
	runSession(t, f, conn)

	got := conn.writtenTypes(t)
	want := []string{TypeQuestion, TypeTranscription, TypeEvaluation, TypeQuestion}
	if !sameTypes(got, want) {
		t.Fatalf("outbound = %v, want %v", got, want)
	}

	if n := f.sttp.CallCount(); n != 1 {
		t.Fatalf("STT calls = %d", n)
	}
	req := f.sttp.Calls[0]
	if string(req.Audio) != "abcdefghi" {
		t.Errorf("assembled audio = %q, want %q", req.Audio, "abcdefghi")
	}
	if req.Format != "webm" {
		t.Errorf("format = %q, want webm", req.Format)
	}
}

func TestSessionRejectsOutOfOrderChunks(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.seedIdle(t, "q-1")

	conn := &fakeWire{}
	conn.queueText(t, map[string]any{"type": "start_session"})
	conn.queueText(t, map[string]any{
		"type": "audio_chunk", "question_id": "q-1", "chunk_index": 0, "format": "wav",
		"audio_data": base64.StdEncoding.EncodeToString([]byte("abc")),
	})
	// Duplicate of chunk 0: non-monotonic, drops the whole assembly.
	conn.queueText(t, map[string]any{
		"type": "audio_chunk", "question_id": "q-1", "chunk_index": 0, "format": "wav",
		"audio_data": base64.StdEncoding.EncodeToString([]byte("abc")),
	})
	runSession(t, f, conn)

	got := conn.writtenTypes(t)
	want := []string{TypeQuestion, TypeError}
	if !sameTypes(got, want) {
		t.Fatalf("outbound = %v, want %v", got, want)
	}
	if ef := conn.written(t, 1); ef["code"] != CodeAudioFormatUnsupported {
		t.Errorf("code = %v, want AUDIO_FORMAT_UNSUPPORTED", ef["code"])
	}
	if f.sttp.CallCount() != 0 {
		t.Errorf("STT ran on a rejected assembly")
	}
}

func TestSessionRejectsUnknownAudioFormat(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.seedIdle(t, "q-1")

	conn := &fakeWire{}
	conn.queueText(t, map[string]any{"type": "start_session"})
	conn.queueText(t, map[string]any{
		"type": "audio_chunk", "question_id": "q-1", "chunk_index": 0, "format": "flac",
	})
	runSession(t, f, conn)

	got := conn.writtenTypes(t)
	if !sameTypes(got, []string{TypeQuestion, TypeError}) {
		t.Fatalf("outbound = %v", got)
	}
	if ef := conn.written(t, 1); ef["code"] != CodeAudioFormatUnsupported {
		t.Errorf("code = %v, want AUDIO_FORMAT_UNSUPPORTED", ef["code"])
	}
}

func TestSessionRejectsBinaryWithoutHeader(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.seedIdle(t, "q-1")

	conn := &fakeWire{}
	conn.queueBinary([]byte("raw"))
	runSession(t, f, conn)

	got := conn.writtenTypes(t)
	if !sameTypes(got, []string{TypeError}) {
		t.Fatalf("outbound = %v", got)
	}
	if ef := conn.written(t, 0); ef["code"] != CodeAudioFormatUnsupported {
		t.Errorf("code = %v, want AUDIO_FORMAT_UNSUPPORTED", ef["code"])
	}
}

func TestSessionRequestRetryReplaysLastAnswer(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.seedIdle(t, "q-1", "q-2")
	f.sttp.Err = errors.New("whisper flaked")
	f.sttp.ErrCount = 1

	conn := &fakeWire{}
	conn.queueText(t, map[string]any{"type": "start_session"})
	conn.queueText(t, map[string]any{
		"type": "audio_chunk", "question_id": "q-1", "chunk_index": 0, "is_final": true,
		"format": "wav", "audio_data": base64.StdEncoding.EncodeToString([]byte("riff")),
	})
	conn.queueText(t, map[string]any{"type": "request_retry", "of": "q-1"})
	runSession(t, f, conn)

	got := conn.writtenTypes(t)
	want := []string{TypeQuestion, TypeError, TypeTranscription, TypeEvaluation, TypeQuestion}
	if !sameTypes(got, want) {
		t.Fatalf("outbound = %v, want %v", got, want)
	}

	ef := conn.written(t, 1)
	if ef["code"] != CodeSTTFailed || ef["retry_available"] != true || ef["fallback_option"] != FallbackTextMode {
		t.Errorf("STT error frame = %v", ef)
	}
	if n := f.sttp.CallCount(); n != 2 {
		t.Errorf("STT calls = %d, want 2 (original + retry)", n)
	}
}

func TestSessionRetryWithoutPriorAnswerRejected(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.seedIdle(t, "q-1")

	conn := &fakeWire{}
	conn.queueText(t, map[string]any{"type": "request_retry", "of": "q-1"})
	runSession(t, f, conn)

	got := conn.writtenTypes(t)
	if !sameTypes(got, []string{TypeError}) {
		t.Fatalf("outbound = %v", got)
	}
	if ef := conn.written(t, 0); ef["code"] != CodeInvalidMessage {
		t.Errorf("code = %v, want INVALID_MESSAGE", ef["code"])
	}
}

func TestSessionCancelClosesConnection(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.seedIdle(t, "q-1")

	conn := &fakeWire{}
	conn.queueText(t, map[string]any{"type": "start_session"})
	conn.queueText(t, map[string]any{"type": "cancel"})
	// Anything queued after cancel must never be read.
	conn.queueText(t, map[string]any{"type": "get_next_question"})
	runSession(t, f, conn)

	if !conn.closed || conn.closeCode != websocket.StatusNormalClosure {
		t.Errorf("close = %v code %d", conn.closed, conn.closeCode)
	}
	if len(conn.inbound) != 1 {
		t.Errorf("session kept reading after cancel")
	}
	got := conn.writtenTypes(t)
	if !sameTypes(got, []string{TypeQuestion}) {
		t.Errorf("outbound = %v", got)
	}
}

func TestDecodeInbound(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name    string
		data    string
		wantErr bool
	}{
		{"start session", `{"type":"start_session"}`, false},
		{"text answer", `{"type":"text_answer","question_id":"q-1","answer_text":"hi"}`, false},
		{"audio chunk", `{"type":"audio_chunk","question_id":"q-1","chunk_index":0,"format":"wav"}`, false},
		{"retry", `{"type":"request_retry","of":"q-1"}`, false},
		{"cancel", `{"type":"cancel"}`, false},
		{"malformed json", `{"type":`, true},
		{"no type", `{"question_id":"q-1"}`, true},
		{"unknown type", `{"type":"teleport"}`, true},
		{"text answer missing text", `{"type":"text_answer","question_id":"q-1"}`, true},
		{"audio chunk missing question", `{"type":"audio_chunk","chunk_index":0}`, true},
		{"retry missing of", `{"type":"request_retry"}`, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodeInbound([]byte(tt.data))
			if (err != nil) != tt.wantErr {
				t.Errorf("DecodeInbound(%s) error = %v, wantErr %v", tt.data, err, tt.wantErr)
			}
		})
	}
}

func TestAudioBytes(t *testing.T) {
	t.Parallel()

	f := &InboundFrame{AudioData: base64.StdEncoding.EncodeToString([]byte("pcm"))}
	b, err := f.AudioBytes()
	if err != nil || string(b) != "pcm" {
		t.Errorf("AudioBytes = %q, %v", b, err)
	}

	empty := &InboundFrame{}
	if b, err := empty.AudioBytes(); err != nil || b != nil {
		t.Errorf("empty AudioBytes = %v, %v", b, err)
	}

	bad := &InboundFrame{AudioData: "not base64!!"}
	if _, err := bad.AudioBytes(); err == nil {
		t.Error("invalid base64 accepted")
	}
}

func TestOutboundFramesRoundScoresAtBoundary(t *testing.T) {
	t.Parallel()

	ef := &EvaluationFrame{Type: TypeEvaluation, Score: round1(87.4499)}
	data, err := json.Marshal(ef)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if want := `"score":87.4`; !strings.Contains(string(data), want) {
		t.Errorf("payload %s missing %s", data, want)
	}
}
