package session

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	sdkmetric "go.opentelemetry.io/otel/sdk/metric"

	"github.com/MrWong99/intervoxa/internal/assess"
	assessmock "github.com/MrWong99/intervoxa/internal/assess/mock"
	"github.com/MrWong99/intervoxa/internal/completion"
	"github.com/MrWong99/intervoxa/internal/interview"
	"github.com/MrWong99/intervoxa/internal/observe"
	"github.com/MrWong99/intervoxa/internal/pipeline"
	"github.com/MrWong99/intervoxa/internal/resilience"
	"github.com/MrWong99/intervoxa/internal/store/memstore"
	"github.com/MrWong99/intervoxa/pkg/provider/stt"
	sttmock "github.com/MrWong99/intervoxa/pkg/provider/stt/mock"
	ttsmock "github.com/MrWong99/intervoxa/pkg/provider/tts/mock"
	vectormock "github.com/MrWong99/intervoxa/pkg/provider/vector/mock"
)

// recorder is an in-memory Emitter capturing frames in emission order.
type recorder struct {
	frames []any
}

func (r *recorder) Emit(_ context.Context, frame any) error {
	r.frames = append(r.frames, frame)
	return nil
}

func (r *recorder) types() []string {
	out := make([]string, len(r.frames))
	for i, f := range r.frames {
		out[i] = outboundType(f)
	}
	return out
}

// fixture wires an orchestrator over the in-memory store and mock adapters.
type fixture struct {
	store    *memstore.Store
	assessor *assessmock.Assessor
	sttp     *sttmock.Provider
	ttsp     *ttsmock.Provider
	scorer   *vectormock.Scorer
	orch     *Orchestrator
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	f := &fixture{
		store:    memstore.New(),
		assessor: &assessmock.Assessor{},
		sttp:     &sttmock.Provider{},
		ttsp:     &ttsmock.Provider{},
		scorer:   &vectormock.Scorer{Score: 0.9},
	}

	proc, err := pipeline.NewProcessor(pipeline.Config{
		Assessor: f.assessor,
		Scorer:   f.scorer,
		Retry:    resilience.RetryConfig{MaxAttempts: 1},
	})
	if err != nil {
		t.Fatalf("NewProcessor: %v", err)
	}

	mp := sdkmetric.NewMeterProvider()
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })
	metrics, err := observe.NewMetrics(mp)
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}

	f.orch, err = New(Config{
		Store:      f.store,
		Pipeline:   proc,
		Assessor:   f.assessor,
		Completion: completion.NewEngine(f.store, f.assessor),
		STT:        f.sttp,
		TTS:        f.ttsp,
		Metrics:    metrics,
		Retry:      resilience.RetryConfig{MaxAttempts: 1},
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return f
}

// seedIdle creates an IDLE interview with the given plan and one stored
// question per plan entry.
func (f *fixture) seedIdle(t *testing.T, questionIDs ...string) {
	t.Helper()
	ctx := context.Background()

	for _, qid := range questionIDs {
		if err := f.store.Questions().Put(ctx, &interview.Question{
			ID:          qid,
			Prompt:      "Explain " + qid + ".",
			IdealAnswer: "The ideal answer for " + qid + ".",
			Skills:      []string{"databases"},
		}); err != nil {
			t.Fatalf("Put(%s): %v", qid, err)
		}
	}

	iv := interview.New("iv-1", "cand-1")
	iv.QuestionIDs = questionIDs
	if err := iv.MarkReady("cv-1"); err != nil {
		t.Fatalf("MarkReady: %v", err)
	}
	if err := f.store.Interviews().Create(ctx, iv); err != nil {
		t.Fatalf("Create: %v", err)
	}
}

func (f *fixture) start(t *testing.T) *recorder {
	t.Helper()
	rec := &recorder{}
	if err := f.orch.StartSession(context.Background(), rec, "iv-1"); err != nil {
		t.Fatalf("StartSession: %v", err)
	}
	return rec
}

func (f *fixture) reload(t *testing.T) *interview.Interview {
	t.Helper()
	iv, err := f.store.Interviews().Get(context.Background(), "iv-1")
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	return iv
}

func errCode(t *testing.T, err error) string {
	t.Helper()
	var se *Error
	if !errors.As(err, &se) {
		t.Fatalf("error %v is not a session.Error", err)
	}
	return se.Code
}

func TestStartSessionEmitsFirstQuestion(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.seedIdle(t, "q-1", "q-2")

	rec := f.start(t)

	if len(rec.frames) != 1 {
		t.Fatalf("frames = %v", rec.types())
	}
	q, ok := rec.frames[0].(*QuestionFrame)
	if !ok {
		t.Fatalf("frame 0 = %T", rec.frames[0])
	}
	if q.QuestionID != "q-1" || q.Index != 0 || q.Total != 2 {
		t.Errorf("question frame = %+v", q)
	}
	if q.AudioData == "" || q.AudioFormat != "wav" {
		t.Errorf("question audio missing: %+v", q)
	}

	iv := f.reload(t)
	if iv.Status != interview.StatusQuestioning || iv.StartedAt == nil {
		t.Errorf("aggregate after start: status=%s startedAt=%v", iv.Status, iv.StartedAt)
	}
}

func TestStartSessionRejectsNonIdle(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.seedIdle(t, "q-1")
	f.start(t)

	err := f.orch.StartSession(context.Background(), &recorder{}, "iv-1")
	if errCode(t, err) != CodeInvalidState {
		t.Errorf("code = %s, want INVALID_STATE", errCode(t, err))
	}
}

func TestStartSessionUnknownInterview(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	err := f.orch.StartSession(context.Background(), &recorder{}, "missing")
	if errCode(t, err) != CodeInterviewNotFound {
		t.Errorf("code = %s, want INTERVIEW_NOT_FOUND", errCode(t, err))
	}
}

func TestHighQualityAnswerAdvancesToNextQuestion(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.seedIdle(t, "q-1", "q-2")
	f.start(t)
	f.scorer.Score = 0.92
	f.assessor.Evaluations = []assess.EvaluationResult{{
		RawScore: 88.46, Completeness: 85, Relevance: 90,
		Sentiment: "confident", Reasoning: "thorough and accurate",
		Strengths: []string{"depth"},
	}}

	rec := &recorder{}
	err := f.orch.HandleAnswer(context.Background(), rec, "iv-1", AnswerInput{
		QuestionID: "q-1", Transcript: "a strong answer",
	})
	if err != nil {
		t.Fatalf("HandleAnswer: %v", err)
	}

	got := rec.types()
	want := []string{TypeEvaluation, TypeQuestion}
	if len(got) != len(want) || got[0] != want[0] || got[1] != want[1] {
		t.Fatalf("frame order = %v, want %v", got, want)
	}

	ev := rec.frames[0].(*EvaluationFrame)
	if ev.Score != 88.5 {
		t.Errorf("frame score = %v, want 88.5 (rounded at the boundary)", ev.Score)
	}
	if ev.SimilarityScore != 0.92 {
		t.Errorf("similarity = %v", ev.SimilarityScore)
	}
	if ev.Feedback != "thorough and accurate" {
		t.Errorf("feedback = %q", ev.Feedback)
	}

	q := rec.frames[1].(*QuestionFrame)
	if q.QuestionID != "q-2" || q.Index != 1 {
		t.Errorf("next question frame = %+v", q)
	}

	iv := f.reload(t)
	if iv.Status != interview.StatusQuestioning || iv.CurrentIndex != 1 {
		t.Errorf("aggregate = status %s index %d", iv.Status, iv.CurrentIndex)
	}

	// Stored records keep full precision; rounding is wire-only.
	answer, err := f.store.Answers().GetByQuestion(context.Background(), "iv-1", "q-1")
	if err != nil {
		t.Fatalf("answer not persisted: %v", err)
	}
	evaluation, err := f.store.Evaluations().Get(context.Background(), answer.EvaluationID)
	if err != nil {
		t.Fatalf("evaluation not persisted: %v", err)
	}
	if evaluation.FinalScore != 88.46 {
		t.Errorf("stored FinalScore = %v, want 88.46", evaluation.FinalScore)
	}
}

func TestLowQualityAnswerTriggersFollowUp(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.seedIdle(t, "q-1", "q-2")
	f.start(t)
	f.scorer.Score = 0.4
	f.assessor.Evaluations = []assess.EvaluationResult{{
		RawScore: 52, Reasoning: "missing the core concept",
		Gaps: interview.Gap{Concepts: []string{"write amplification"}, Confirmed: true},
	}}
	f.assessor.FollowUpText = "What does write amplification mean for an LSM tree?"

	rec := &recorder{}
	err := f.orch.HandleAnswer(context.Background(), rec, "iv-1", AnswerInput{
		QuestionID: "q-1", Transcript: "a shallow answer",
	})
	if err != nil {
		t.Fatalf("HandleAnswer: %v", err)
	}

	got := rec.types()
	if len(got) != 2 || got[0] != TypeEvaluation || got[1] != TypeFollowUpQuestion {
		t.Fatalf("frame order = %v", got)
	}

	fu := rec.frames[1].(*FollowUpQuestionFrame)
	if fu.ParentQuestionID != "q-1" || fu.OrderInSequence != 1 {
		t.Errorf("follow-up frame = %+v", fu)
	}
	if len(fu.GeneratedReason) != 1 || fu.GeneratedReason[0] != "write amplification" {
		t.Errorf("generated_reason = %v", fu.GeneratedReason)
	}
	if fu.Text != f.assessor.FollowUpText {
		t.Errorf("follow-up text = %q", fu.Text)
	}

	iv := f.reload(t)
	if iv.Status != interview.StatusFollowUp || iv.FollowupCount != 1 || iv.CurrentParentID != "q-1" {
		t.Errorf("aggregate = %+v", iv)
	}
	stored, err := f.store.FollowUps().Get(context.Background(), fu.QuestionID)
	if err != nil {
		t.Fatalf("follow-up not persisted: %v", err)
	}
	if stored.Ordinal != 1 || stored.ParentQuestionID != "q-1" {
		t.Errorf("stored follow-up = %+v", stored)
	}
}

func TestFollowUpAnswerResolvingGapsAdvances(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.seedIdle(t, "q-1", "q-2")
	f.start(t)

	// Main answer: poor, confirmed gap -> follow-up.
	f.scorer.Scores = []float64{0.4, 0.9}
	f.assessor.Evaluations = []assess.EvaluationResult{
		{RawScore: 50, Gaps: interview.Gap{Concepts: []string{"checkpointing"}, Confirmed: true}},
		{RawScore: 85},
	}
	rec := &recorder{}
	if err := f.orch.HandleAnswer(context.Background(), rec, "iv-1", AnswerInput{
		QuestionID: "q-1", Transcript: "vague answer",
	}); err != nil {
		t.Fatalf("main answer: %v", err)
	}
	fuID := rec.frames[1].(*FollowUpQuestionFrame).QuestionID

	// Follow-up answer: quality threshold met -> advance to q-2.
	rec = &recorder{}
	if err := f.orch.HandleAnswer(context.Background(), rec, "iv-1", AnswerInput{
		QuestionID: fuID, Transcript: "checkpointing flushes the WAL up to a known LSN",
	}); err != nil {
		t.Fatalf("follow-up answer: %v", err)
	}

	got := rec.types()
	if len(got) != 2 || got[0] != TypeEvaluation || got[1] != TypeQuestion {
		t.Fatalf("frame order = %v", got)
	}
	iv := f.reload(t)
	if iv.Status != interview.StatusQuestioning || iv.CurrentIndex != 1 {
		t.Errorf("aggregate = status %s index %d", iv.Status, iv.CurrentIndex)
	}
	if iv.CurrentParentID != "" || iv.FollowupCount != 0 {
		t.Errorf("follow-up sequence not reset: parent=%q count=%d", iv.CurrentParentID, iv.FollowupCount)
	}

	// The follow-up generator saw the cumulative gap context.
	if len(f.assessor.FollowUpCalls) != 1 {
		t.Fatalf("FollowUpCalls = %d", len(f.assessor.FollowUpCalls))
	}
	call := f.assessor.FollowUpCalls[0]
	if call.Ordinal != 1 || len(call.MissingConcepts) != 1 || call.MissingConcepts[0] != "checkpointing" {
		t.Errorf("follow-up input = %+v", call)
	}
}

func TestFollowUpCapForcesAdvance(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.seedIdle(t, "q-1", "q-2")
	f.start(t)

	// Every answer is poor with a fresh confirmed gap: three follow-ups get
	// asked, the fourth poor answer advances regardless.
	f.scorer.Score = 0.3
	f.assessor.Evaluations = []assess.EvaluationResult{
		{RawScore: 40, Gaps: interview.Gap{Concepts: []string{"alpha"}, Confirmed: true}},
		{RawScore: 42, Gaps: interview.Gap{Concepts: []string{"beta"}, Confirmed: true}},
		{RawScore: 44, Gaps: interview.Gap{Concepts: []string{"gamma"}, Confirmed: true}},
		{RawScore: 46, Gaps: interview.Gap{Concepts: []string{"delta"}, Confirmed: true}},
	}

	pending := "q-1"
	for i := 0; i < 3; i++ {
		rec := &recorder{}
		if err := f.orch.HandleAnswer(context.Background(), rec, "iv-1", AnswerInput{
			QuestionID: pending, Transcript: "still vague",
		}); err != nil {
			t.Fatalf("answer %d: %v", i, err)
		}
		fu, ok := rec.frames[1].(*FollowUpQuestionFrame)
		if !ok {
			t.Fatalf("answer %d second frame = %T", i, rec.frames[1])
		}
		if fu.OrderInSequence != i+1 {
			t.Errorf("follow-up %d ordinal = %d", i, fu.OrderInSequence)
		}
		pending = fu.QuestionID
	}

	rec := &recorder{}
	if err := f.orch.HandleAnswer(context.Background(), rec, "iv-1", AnswerInput{
		QuestionID: pending, Transcript: "still vague",
	}); err != nil {
		t.Fatalf("capped answer: %v", err)
	}
	got := rec.types()
	if len(got) != 2 || got[1] != TypeQuestion {
		t.Fatalf("capped answer frames = %v, want advance to next question", got)
	}

	iv := f.reload(t)
	if iv.CurrentIndex != 1 || iv.FollowupCount != 0 || len(iv.FollowUpIDs) != 3 {
		t.Errorf("aggregate = index %d count %d followups %d", iv.CurrentIndex, iv.FollowupCount, len(iv.FollowUpIDs))
	}
}

func TestLastQuestionTriggersCompletion(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.seedIdle(t, "q-1")
	f.start(t)
	f.scorer.Score = 0.95
	f.assessor.Evaluations = []assess.EvaluationResult{{RawScore: 82}}
	f.assessor.Recs = assess.Recommendations{
		Strengths:   []string{"clear structure"},
		StudyTopics: []string{"query planning"},
	}

	rec := &recorder{}
	if err := f.orch.HandleAnswer(context.Background(), rec, "iv-1", AnswerInput{
		QuestionID: "q-1", Transcript: "a complete answer",
	}); err != nil {
		t.Fatalf("HandleAnswer: %v", err)
	}

	got := rec.types()
	if len(got) != 2 || got[0] != TypeEvaluation || got[1] != TypeInterviewComplete {
		t.Fatalf("frame order = %v", got)
	}

	cf := rec.frames[1].(*CompleteFrame)
	if cf.TotalQuestions != 1 || cf.TotalFollowUps != 0 {
		t.Errorf("summary totals = %+v", cf.CompletionSummary)
	}
	// Text-only interview: theoretical 82, speaking defaults to 50.
	wantOverall := 0.7*82 + 0.3*50
	if math.Abs(cf.OverallScore-round1(wantOverall)) > 1e-9 {
		t.Errorf("overall = %v, want %v", cf.OverallScore, round1(wantOverall))
	}
	if len(cf.StudyTopics) != 1 || cf.StudyTopics[0] != "query planning" {
		t.Errorf("study topics = %v", cf.StudyTopics)
	}

	iv := f.reload(t)
	if iv.Status != interview.StatusComplete || iv.Summary() == nil {
		t.Errorf("aggregate = status %s summary %v", iv.Status, iv.Summary())
	}
}

func TestSpokenAnswerEmitsTranscriptionAndVoiceMetrics(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.seedIdle(t, "q-1", "q-2")
	f.start(t)
	f.sttp.Result = stt.Result{
		Text:       "a spoken answer",
		Confidence: 0.93,
		Duration:   20 * time.Second,
		Voice:      &stt.VoiceMetrics{Intonation: 0.6, Fluency: 0.8, Confidence: 0.7, SpeakingRateWPM: 130},
	}
	f.assessor.Evaluations = []assess.EvaluationResult{{RawScore: 75}}

	rec := &recorder{}
	if err := f.orch.HandleAnswer(context.Background(), rec, "iv-1", AnswerInput{
		QuestionID: "q-1", Audio: []byte("riff"), Format: "wav", Spoken: true,
	}); err != nil {
		t.Fatalf("HandleAnswer: %v", err)
	}

	got := rec.types()
	want := []string{TypeTranscription, TypeVoiceMetrics, TypeEvaluation, TypeQuestion}
	if len(got) != len(want) {
		t.Fatalf("frames = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("frames = %v, want %v", got, want)
		}
	}

	tr := rec.frames[0].(*TranscriptionFrame)
	if tr.Text != "a spoken answer" || !tr.IsFinal || tr.Confidence != 0.93 {
		t.Errorf("transcription frame = %+v", tr)
	}

	// Weighted final: 0.7*75 + 0.3*((0.6+0.8+0.7)/3*100) = 73.5.
	ev := rec.frames[2].(*EvaluationFrame)
	if ev.Score != 73.5 {
		t.Errorf("spoken score = %v, want 73.5", ev.Score)
	}
	if ev.VoiceMetrics == nil || ev.VoiceMetrics.SpeakingRateWPM != 130 {
		t.Errorf("voice metrics on evaluation frame = %+v", ev.VoiceMetrics)
	}

	answer, err := f.store.Answers().GetByQuestion(context.Background(), "iv-1", "q-1")
	if err != nil {
		t.Fatalf("answer: %v", err)
	}
	if answer.Voice == nil || answer.Voice.DurationSeconds != 20 {
		t.Errorf("persisted voice = %+v", answer.Voice)
	}
}

func TestSTTFailureLeavesAggregateUntouched(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.seedIdle(t, "q-1")
	f.start(t)
	f.sttp.Err = errors.New("whisper unreachable")

	rec := &recorder{}
	err := f.orch.HandleAnswer(context.Background(), rec, "iv-1", AnswerInput{
		QuestionID: "q-1", Audio: []byte("riff"), Format: "wav", Spoken: true,
	})

	var se *Error
	if !errors.As(err, &se) || se.Code != CodeSTTFailed {
		t.Fatalf("error = %v, want STT_FAILED", err)
	}
	if !se.Recoverable || !se.RetryAvailable || se.FallbackOption != FallbackTextMode {
		t.Errorf("error shape = %+v", se)
	}
	if len(rec.frames) != 0 {
		t.Errorf("frames emitted despite STT failure: %v", rec.types())
	}

	iv := f.reload(t)
	if iv.Status != interview.StatusQuestioning {
		t.Errorf("status = %s, want QUESTIONING (unchanged)", iv.Status)
	}
}

func TestUnsupportedAudioFormatRejected(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.seedIdle(t, "q-1")
	f.start(t)

	err := f.orch.HandleAnswer(context.Background(), &recorder{}, "iv-1", AnswerInput{
		QuestionID: "q-1", Audio: []byte("x"), Format: "flac", Spoken: true,
	})
	if errCode(t, err) != CodeAudioFormatUnsupported {
		t.Errorf("code = %s, want AUDIO_FORMAT_UNSUPPORTED", errCode(t, err))
	}
	if f.sttp.CallCount() != 0 {
		t.Errorf("STT called for unsupported format")
	}
}

func TestAnswerToWrongQuestionRejected(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.seedIdle(t, "q-1", "q-2")
	f.start(t)

	err := f.orch.HandleAnswer(context.Background(), &recorder{}, "iv-1", AnswerInput{
		QuestionID: "q-2", Transcript: "answering ahead",
	})
	if errCode(t, err) != CodeInvalidMessage {
		t.Errorf("code = %s, want INVALID_MESSAGE", errCode(t, err))
	}
	if iv := f.reload(t); iv.Status != interview.StatusQuestioning {
		t.Errorf("status = %s, want QUESTIONING", iv.Status)
	}
}

func TestAnswerRejectedBeforeStart(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.seedIdle(t, "q-1")

	err := f.orch.HandleAnswer(context.Background(), &recorder{}, "iv-1", AnswerInput{
		QuestionID: "q-1", Transcript: "eager",
	})
	var se *Error
	if !errors.As(err, &se) || se.Code != CodeInvalidState {
		t.Fatalf("error = %v, want INVALID_STATE", err)
	}
	// The session survives a rejected frame; retrying the same frame is
	// pointless, so none is offered.
	if !se.Recoverable || se.RetryAvailable {
		t.Errorf("frame flags = recoverable %v retry %v, want recoverable without retry", se.Recoverable, se.RetryAvailable)
	}
}

func TestEvaluatingRetryAccepted(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.seedIdle(t, "q-1", "q-2")
	f.start(t)

	// Simulate a turn that died after the begin_evaluation write.
	ctx := context.Background()
	iv := f.reload(t)
	if err := iv.BeginEvaluation(); err != nil {
		t.Fatalf("BeginEvaluation: %v", err)
	}
	if err := f.store.Interviews().Update(ctx, iv); err != nil {
		t.Fatalf("Update: %v", err)
	}

	rec := &recorder{}
	if err := f.orch.HandleAnswer(ctx, rec, "iv-1", AnswerInput{
		QuestionID: "q-1", Transcript: "the resubmitted answer",
	}); err != nil {
		t.Fatalf("retry answer: %v", err)
	}
	got := rec.types()
	if len(got) != 2 || got[0] != TypeEvaluation || got[1] != TypeQuestion {
		t.Errorf("frames = %v", got)
	}
}

// failingEmitter rejects every frame, simulating a connection that dropped
// after the persist transaction committed.
type failingEmitter struct{}

func (failingEmitter) Emit(context.Context, any) error {
	return errors.New("connection reset")
}

func TestEvaluatingRetryReplacesSupersededEvaluation(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.seedIdle(t, "q-1", "q-2")
	f.start(t)
	f.assessor.Evaluations = []assess.EvaluationResult{
		{RawScore: 40, Reasoning: "first attempt"},
		{RawScore: 75, Reasoning: "second attempt"},
	}

	// The first turn persists answer and evaluation, then dies on the
	// evaluation frame: the aggregate is left in EVALUATING.
	ctx := context.Background()
	err := f.orch.HandleAnswer(ctx, failingEmitter{}, "iv-1", AnswerInput{
		QuestionID: "q-1", Transcript: "the original answer",
	})
	if err == nil {
		t.Fatal("expected the dropped connection to surface as an error")
	}
	if iv := f.reload(t); iv.Status != interview.StatusEvaluating {
		t.Fatalf("status after failed emit = %s, want EVALUATING", iv.Status)
	}

	rec := &recorder{}
	if err := f.orch.HandleAnswer(ctx, rec, "iv-1", AnswerInput{
		QuestionID: "q-1", Transcript: "the resubmitted answer",
	}); err != nil {
		t.Fatalf("retry answer: %v", err)
	}

	// The retry must replace the superseded evaluation, not sit beside it:
	// interview averages count every stored evaluation.
	evals, err := f.store.Evaluations().ListByInterview(ctx, "iv-1")
	if err != nil {
		t.Fatalf("ListByInterview: %v", err)
	}
	if len(evals) != 1 {
		t.Fatalf("stored evaluations = %d, want 1", len(evals))
	}
	answer, err := f.store.Answers().GetByQuestion(ctx, "iv-1", "q-1")
	if err != nil {
		t.Fatalf("GetByQuestion: %v", err)
	}
	if evals[0].ID != answer.EvaluationID {
		t.Errorf("surviving evaluation %s is not the one the answer references (%s)", evals[0].ID, answer.EvaluationID)
	}
	if evals[0].FinalScore != 75 {
		t.Errorf("surviving FinalScore = %v, want the retry's 75", evals[0].FinalScore)
	}
}

func TestTTSFailureDegradesToTextOnlyQuestion(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.seedIdle(t, "q-1")
	f.ttsp.Err = errors.New("voice service down")

	rec := &recorder{}
	if err := f.orch.StartSession(context.Background(), rec, "iv-1"); err != nil {
		t.Fatalf("StartSession: %v", err)
	}

	got := rec.types()
	if len(got) != 2 || got[0] != TypeError || got[1] != TypeQuestion {
		t.Fatalf("frames = %v, want [error question]", got)
	}
	ef := rec.frames[0].(*ErrorFrame)
	if ef.Code != CodeTTSFailed || ef.FallbackOption != FallbackTextMode {
		t.Errorf("error frame = %+v", ef)
	}
	q := rec.frames[1].(*QuestionFrame)
	if q.AudioData != "" || q.AudioFormat != "" {
		t.Errorf("question should be text-only: %+v", q)
	}
}

func TestNextQuestionReemitsPendingFollowUp(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.seedIdle(t, "q-1", "q-2")
	f.start(t)
	f.scorer.Score = 0.3
	f.assessor.Evaluations = []assess.EvaluationResult{{
		RawScore: 45, Gaps: interview.Gap{Concepts: []string{"sharding"}, Confirmed: true},
	}}

	rec := &recorder{}
	if err := f.orch.HandleAnswer(context.Background(), rec, "iv-1", AnswerInput{
		QuestionID: "q-1", Transcript: "thin answer",
	}); err != nil {
		t.Fatalf("HandleAnswer: %v", err)
	}
	asked := rec.frames[1].(*FollowUpQuestionFrame)

	rec = &recorder{}
	if err := f.orch.NextQuestion(context.Background(), rec, "iv-1"); err != nil {
		t.Fatalf("NextQuestion: %v", err)
	}
	again, ok := rec.frames[len(rec.frames)-1].(*FollowUpQuestionFrame)
	if !ok {
		t.Fatalf("re-emit = %v", rec.types())
	}
	if again.QuestionID != asked.QuestionID || again.Text != asked.Text {
		t.Errorf("re-emitted follow-up differs: %+v vs %+v", again, asked)
	}
}

func TestCancelTerminatesInterview(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.seedIdle(t, "q-1")
	f.start(t)

	if err := f.orch.Cancel(context.Background(), "iv-1"); err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	if iv := f.reload(t); iv.Status != interview.StatusCancelled {
		t.Errorf("status = %s, want CANCELLED", iv.Status)
	}

	// Terminal: further answers are rejected.
	err := f.orch.HandleAnswer(context.Background(), &recorder{}, "iv-1", AnswerInput{
		QuestionID: "q-1", Transcript: "too late",
	})
	if errCode(t, err) != CodeInvalidState {
		t.Errorf("code = %s, want INVALID_STATE", errCode(t, err))
	}
}
