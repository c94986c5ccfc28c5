package session

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/metric"

	"github.com/MrWong99/intervoxa/internal/assess"
	"github.com/MrWong99/intervoxa/internal/completion"
	"github.com/MrWong99/intervoxa/internal/followup"
	"github.com/MrWong99/intervoxa/internal/interview"
	"github.com/MrWong99/intervoxa/internal/observe"
	"github.com/MrWong99/intervoxa/internal/pipeline"
	"github.com/MrWong99/intervoxa/internal/resilience"
	"github.com/MrWong99/intervoxa/internal/store"
	"github.com/MrWong99/intervoxa/pkg/provider/stt"
	"github.com/MrWong99/intervoxa/pkg/provider/tts"
)

// Turn and adapter budgets. Config may tighten them, never widen past these
// defaults plus the turn deadline.
const (
	DefaultTurnDeadline = 30 * time.Second
	DefaultSTTTimeout   = 10 * time.Second
	DefaultTTSTimeout   = 5 * time.Second
	DefaultLLMTimeout   = 15 * time.Second

	// DefaultInterviewFollowUpBudget caps follow-ups across the whole
	// interview.
	DefaultInterviewFollowUpBudget = 15
)

// ttsAudioFormat is the container the TTS port contract guarantees.
const ttsAudioFormat = "wav"

// priorAnswerLimit bounds the semantic-retrieval context handed to the
// follow-up generator.
const priorAnswerLimit = 3

// Emitter delivers outbound frames to the client. The session transport
// implements it; tests substitute a recorder. Emit must preserve call order.
type Emitter interface {
	Emit(ctx context.Context, frame any) error
}

// AnswerInput is one complete answer, text or assembled audio.
type AnswerInput struct {
	// QuestionID names the main or follow-up question being answered.
	QuestionID string

	// Transcript is the answer text for text answers; empty for audio.
	Transcript string

	// Audio is the complete recording for spoken answers.
	Audio  []byte
	Format string

	// Spoken selects the audio path: STT first, then the speaking channel.
	Spoken bool
}

// Config assembles an [Orchestrator].
type Config struct {
	Store      store.Store
	Pipeline   *pipeline.Processor
	Assessor   assess.Assessor
	Completion *completion.Engine

	// STT transcribes spoken answers. Optional: without it audio answers fail
	// with STT_FAILED and the client falls back to text.
	STT stt.Provider

	// TTS renders question prompts. Optional: without it questions are
	// delivered text-only.
	TTS tts.Provider

	// Metrics defaults to [observe.DefaultMetrics].
	Metrics *observe.Metrics

	// Retry wraps the STT, TTS and follow-up LLM calls.
	Retry resilience.RetryConfig

	// SimilarityThreshold is the follow-up quality bar; zero selects
	// [followup.DefaultSimilarityThreshold].
	SimilarityThreshold float64

	// InterviewFollowUpBudget caps follow-ups per interview; zero selects
	// [DefaultInterviewFollowUpBudget], negative disables the cap.
	InterviewFollowUpBudget int

	// PerQuestionFollowUpCap lowers the per-question follow-up cap below the
	// domain hard limit. Zero selects the hard limit.
	PerQuestionFollowUpCap int

	TurnDeadline time.Duration
	STTTimeout   time.Duration
	TTSTimeout   time.Duration
	LLMTimeout   time.Duration

	// Voice and Speed configure synthesis.
	Voice string
	Speed float64
}

// Orchestrator drives one interview turn at a time. It holds no interview
// state: the aggregate is re-loaded from storage at every entry point, so a
// failed turn leaves nothing cached to go stale.
//
// Safe for concurrent use across sessions; within a session the transport
// guarantees sequential calls.
type Orchestrator struct {
	cfg Config
}

// New validates cfg and builds an orchestrator.
func New(cfg Config) (*Orchestrator, error) {
	if cfg.Store == nil {
		return nil, fmt.Errorf("session: store is required")
	}
	if cfg.Pipeline == nil {
		return nil, fmt.Errorf("session: pipeline is required")
	}
	if cfg.Assessor == nil {
		return nil, fmt.Errorf("session: assessor is required")
	}
	if cfg.Completion == nil {
		return nil, fmt.Errorf("session: completion engine is required")
	}
	if cfg.Metrics == nil {
		cfg.Metrics = observe.DefaultMetrics()
	}
	if cfg.TurnDeadline <= 0 {
		cfg.TurnDeadline = DefaultTurnDeadline
	}
	if cfg.STTTimeout <= 0 {
		cfg.STTTimeout = DefaultSTTTimeout
	}
	if cfg.TTSTimeout <= 0 {
		cfg.TTSTimeout = DefaultTTSTimeout
	}
	if cfg.LLMTimeout <= 0 {
		cfg.LLMTimeout = DefaultLLMTimeout
	}
	if cfg.InterviewFollowUpBudget == 0 {
		cfg.InterviewFollowUpBudget = DefaultInterviewFollowUpBudget
	}
	return &Orchestrator{cfg: cfg}, nil
}

// StartSession begins the interview and emits the first question frame.
// The interview must be IDLE with a non-empty plan.
func (o *Orchestrator) StartSession(ctx context.Context, emit Emitter, interviewID string) error {
	iv, err := o.cfg.Store.Interviews().Get(ctx, interviewID)
	if err != nil {
		return Classify(err)
	}
	if iv.Status != interview.StatusIdle {
		return invalidState("session can only start while the interview is IDLE, current status is "+string(iv.Status), nil)
	}
	if err := iv.Start(); err != nil {
		if errors.Is(err, interview.ErrEmptyPlan) {
			return invalidState("interview has no question plan", err)
		}
		return Classify(err)
	}
	if err := o.cfg.Store.Interviews().Update(ctx, iv); err != nil {
		return Classify(err)
	}
	return o.emitCurrentQuestion(ctx, emit, iv)
}

// HandleAnswer runs one complete answer turn: transcription (for audio),
// dual-channel evaluation, atomic persistence, the follow-up decision and
// either a follow-up, the next question or completion. Every aggregate write
// is durable before the frame announcing it is emitted.
func (o *Orchestrator) HandleAnswer(ctx context.Context, emit Emitter, interviewID string, in AnswerInput) error {
	ctx, cancel := context.WithTimeout(ctx, o.cfg.TurnDeadline)
	defer cancel()

	start := time.Now()
	defer func() {
		o.cfg.Metrics.TurnDuration.Record(ctx, time.Since(start).Seconds())
	}()

	iv, err := o.cfg.Store.Interviews().Get(ctx, interviewID)
	if err != nil {
		return Classify(err)
	}

	// EVALUATING is accepted as a retry of a turn that failed after the
	// begin_evaluation write: the client resubmits the same answer and the
	// transition is skipped.
	retrying := iv.Status == interview.StatusEvaluating
	if !retrying && iv.Status != interview.StatusQuestioning && iv.Status != interview.StatusFollowUp {
		return invalidState("answers are not accepted in status "+string(iv.Status), nil)
	}
	if !o.answersPendingQuestion(iv, in.QuestionID) {
		return invalidMessage("question_id does not match the pending question", nil)
	}

	// STT runs before the begin_evaluation transition so a transcription
	// failure leaves the aggregate exactly where it was.
	transcript, voice, duration, err := o.resolveTranscript(ctx, emit, in)
	if err != nil {
		return err
	}
	if transcript == "" {
		return invalidMessage("answer has no content", nil)
	}

	if !retrying {
		if err := iv.BeginEvaluation(); err != nil {
			return Classify(err)
		}
		if err := o.cfg.Store.Interviews().Update(ctx, iv); err != nil {
			return Classify(err)
		}
	}

	parentID := iv.CurrentMainQuestionID()
	prompt, ideal, skills, err := o.questionContext(ctx, iv, in.QuestionID, parentID)
	if err != nil {
		return err
	}

	res, err := o.cfg.Pipeline.Evaluate(ctx, pipeline.Input{
		QuestionPrompt: prompt,
		IdealAnswer:    ideal,
		Skills:         skills,
		Transcript:     transcript,
		Spoken:         in.Spoken,
		Voice:          voice,
		AudioDuration:  duration,
	})
	if err != nil {
		return Classify(err)
	}

	answer, evaluation := o.buildRecords(iv, in.QuestionID, transcript, res)
	err = o.cfg.Store.WithinTx(ctx, func(ctx context.Context, tx store.Store) error {
		// A retried turn replaces its earlier answer, so the evaluation the
		// old answer pointed at must go with it or interview averages would
		// count the question twice.
		prior, err := tx.Answers().GetByQuestion(ctx, iv.ID, in.QuestionID)
		if err != nil && !errors.Is(err, store.ErrNotFound) {
			return err
		}
		if err := tx.Answers().Upsert(ctx, answer); err != nil {
			return err
		}
		if err := tx.Evaluations().Create(ctx, evaluation); err != nil {
			return err
		}
		if prior != nil && prior.EvaluationID != "" && prior.EvaluationID != evaluation.ID {
			return tx.Evaluations().Delete(ctx, prior.EvaluationID)
		}
		return nil
	})
	if err != nil {
		return Classify(err)
	}

	if err := emit.Emit(ctx, &EvaluationFrame{
		Type:            TypeEvaluation,
		AnswerID:        answer.ID,
		Score:           round1(evaluation.FinalScore),
		Feedback:        evaluation.Reasoning,
		Strengths:       emptySlice(evaluation.Strengths),
		Weaknesses:      emptySlice(evaluation.Weaknesses),
		SimilarityScore: answer.Similarity,
		Gaps:            answer.Gaps,
		VoiceMetrics:    voiceFrame(answer.Voice),
	}); err != nil {
		return Classify(err)
	}

	priorGaps, err := o.priorGaps(ctx, iv, in.QuestionID, parentID)
	if err != nil {
		return err
	}
	decision := followup.Decide(followup.Input{
		Similarity:          answer.Similarity,
		Gaps:                answer.Gaps,
		PriorGaps:           priorGaps,
		FollowupsAsked:      iv.FollowupCount,
		InterviewTotal:      len(iv.FollowUpIDs),
		InterviewBudget:     o.cfg.InterviewFollowUpBudget,
		PerQuestionCap:      o.cfg.PerQuestionFollowUpCap,
		SimilarityThreshold: o.cfg.SimilarityThreshold,
	})

	if decision.NeedsFollowUp {
		return o.askFollowUp(ctx, emit, iv, answer, decision, parentID)
	}
	return o.advance(ctx, emit, iv)
}

// NextQuestion re-emits the currently pending question or follow-up, for
// clients that reconnect their UI or skipped the audio.
func (o *Orchestrator) NextQuestion(ctx context.Context, emit Emitter, interviewID string) error {
	iv, err := o.cfg.Store.Interviews().Get(ctx, interviewID)
	if err != nil {
		return Classify(err)
	}
	switch iv.Status {
	case interview.StatusQuestioning:
		return o.emitCurrentQuestion(ctx, emit, iv)
	case interview.StatusFollowUp:
		if len(iv.FollowUpIDs) == 0 {
			return Classify(fmt.Errorf("session: FOLLOW_UP status with no follow-up on record"))
		}
		fu, err := o.cfg.Store.FollowUps().Get(ctx, iv.FollowUpIDs[len(iv.FollowUpIDs)-1])
		if err != nil {
			return Classify(err)
		}
		audio := o.synthesize(ctx, emit, fu.Prompt)
		return o.emitOrClassify(emit.Emit(ctx, &FollowUpQuestionFrame{
			Type:             TypeFollowUpQuestion,
			QuestionID:       fu.ID,
			ParentQuestionID: fu.ParentQuestionID,
			Text:             fu.Prompt,
			GeneratedReason:  emptySlice(fu.Reason),
			OrderInSequence:  fu.Ordinal,
			AudioData:        audio,
			AudioFormat:      audioFormatFor(audio),
		}))
	default:
		return invalidState("no question is pending in status "+string(iv.Status), nil)
	}
}

// Cancel terminates the interview. The transport closes the session after.
func (o *Orchestrator) Cancel(ctx context.Context, interviewID string) error {
	iv, err := o.cfg.Store.Interviews().Get(ctx, interviewID)
	if err != nil {
		return Classify(err)
	}
	if err := iv.Cancel(); err != nil {
		return Classify(err)
	}
	if err := o.cfg.Store.Interviews().Update(ctx, iv); err != nil {
		return Classify(err)
	}
	return nil
}

// ─── turn internals ───

// answersPendingQuestion reports whether questionID matches what the
// aggregate is currently waiting on. During an EVALUATING retry both the main
// question and the latest follow-up are acceptable.
func (o *Orchestrator) answersPendingQuestion(iv *interview.Interview, questionID string) bool {
	main := iv.CurrentMainQuestionID()
	var lastFU string
	if len(iv.FollowUpIDs) > 0 {
		lastFU = iv.FollowUpIDs[len(iv.FollowUpIDs)-1]
	}
	switch iv.Status {
	case interview.StatusQuestioning:
		return questionID == main
	case interview.StatusFollowUp:
		return questionID == lastFU
	case interview.StatusEvaluating:
		return questionID == main || (lastFU != "" && questionID == lastFU)
	}
	return false
}

// resolveTranscript returns the answer text, running STT for spoken answers
// and emitting the transcription and voice_metrics frames on success.
func (o *Orchestrator) resolveTranscript(ctx context.Context, emit Emitter, in AnswerInput) (string, *interview.VoiceMetrics, time.Duration, error) {
	if !in.Spoken {
		return in.Transcript, nil, 0, nil
	}
	if o.cfg.STT == nil {
		return "", nil, 0, sttFailed(fmt.Errorf("no STT provider configured"))
	}
	if !stt.IsSupportedFormat(in.Format) {
		return "", nil, 0, audioFormatUnsupported("unsupported audio format " + in.Format)
	}

	var result *stt.Result
	sttStart := time.Now()
	err := resilience.Retry(ctx, o.cfg.Retry, "stt.transcribe", func(ctx context.Context) error {
		callCtx, cancel := context.WithTimeout(ctx, o.cfg.STTTimeout)
		defer cancel()
		res, err := o.cfg.STT.Transcribe(callCtx, stt.Request{Audio: in.Audio, Format: in.Format})
		if err != nil {
			return err
		}
		result = res
		return nil
	})
	o.cfg.Metrics.STTDuration.Record(ctx, time.Since(sttStart).Seconds())
	if err != nil {
		o.cfg.Metrics.RecordProviderError(ctx, "stt", "transcribe")
		return "", nil, 0, sttFailed(err)
	}

	if err := emit.Emit(ctx, &TranscriptionFrame{
		Type:       TypeTranscription,
		Text:       result.Text,
		IsFinal:    true,
		Confidence: result.Confidence,
	}); err != nil {
		return "", nil, 0, Classify(err)
	}

	var voice *interview.VoiceMetrics
	if result.Voice != nil {
		voice = &interview.VoiceMetrics{
			Intonation:      result.Voice.Intonation,
			Fluency:         result.Voice.Fluency,
			Confidence:      result.Voice.Confidence,
			SpeakingRateWPM: result.Voice.SpeakingRateWPM,
			DurationSeconds: result.Duration.Seconds(),
		}
		if err := emit.Emit(ctx, &VoiceMetricsFrame{
			Type:            TypeVoiceMetrics,
			Intonation:      voice.Intonation,
			Fluency:         voice.Fluency,
			Confidence:      voice.Confidence,
			SpeakingRateWPM: voice.SpeakingRateWPM,
		}); err != nil {
			return "", nil, 0, Classify(err)
		}
	}
	return result.Text, voice, result.Duration, nil
}

// questionContext resolves the prompt, ideal answer and skills the pipeline
// scores against. Follow-up answers score against the follow-up's prompt but
// the parent's ideal answer and skills.
func (o *Orchestrator) questionContext(ctx context.Context, iv *interview.Interview, questionID, parentID string) (prompt, ideal string, skills []string, err error) {
	q, err := o.cfg.Store.Questions().Get(ctx, parentID)
	switch {
	case err == nil:
		prompt, ideal, skills = q.Prompt, q.IdealAnswer, q.Skills
	case errors.Is(err, store.ErrNotFound):
		// Plans may reference questions held upstream; evaluation degrades to
		// the open-ended path.
	default:
		return "", "", nil, Classify(err)
	}

	if questionID != parentID {
		fu, err := o.cfg.Store.FollowUps().Get(ctx, questionID)
		if err != nil {
			return "", "", nil, Classify(err)
		}
		prompt = fu.Prompt
	}
	return prompt, ideal, skills, nil
}

// buildRecords assembles the Answer and Evaluation rows from the pipeline
// result. IDs are assigned here so the transaction only writes.
func (o *Orchestrator) buildRecords(iv *interview.Interview, questionID, transcript string, res *pipeline.Result) (*interview.Answer, *interview.Evaluation) {
	now := time.Now().UTC()
	answer := &interview.Answer{
		ID:          uuid.NewString(),
		InterviewID: iv.ID,
		QuestionID:  questionID,
		Transcript:  transcript,
		Voice:       res.Voice,
		Similarity:  res.Similarity,
		Gaps:        res.Gaps,
		Embedding:   res.Embedding,
		CreatedAt:   now,
	}
	evaluation := res.Evaluation
	evaluation.ID = uuid.NewString()
	evaluation.AnswerID = answer.ID
	evaluation.QuestionID = questionID
	evaluation.InterviewID = iv.ID
	evaluation.CreatedAt = now
	answer.EvaluationID = evaluation.ID
	return answer, &evaluation
}

// priorGaps collects the confirmed gap sets of the earlier answers under the
// same parent: the main answer plus every already-answered follow-up, oldest
// first, excluding the answer just given.
func (o *Orchestrator) priorGaps(ctx context.Context, iv *interview.Interview, questionID, parentID string) ([][]string, error) {
	if questionID == parentID {
		return nil, nil
	}

	var prior [][]string
	if main, err := o.cfg.Store.Answers().GetByQuestion(ctx, iv.ID, parentID); err == nil {
		if main.Gaps.Confirmed {
			prior = append(prior, main.Gaps.Concepts)
		}
	} else if !errors.Is(err, store.ErrNotFound) {
		return nil, Classify(err)
	}

	followups, err := o.cfg.Store.FollowUps().ListByParent(ctx, iv.ID, parentID)
	if err != nil {
		return nil, Classify(err)
	}
	for _, fu := range followups {
		if fu.ID == questionID {
			continue
		}
		fa, err := o.cfg.Store.Answers().GetByQuestion(ctx, iv.ID, fu.ID)
		if errors.Is(err, store.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, Classify(err)
		}
		if fa.Gaps.Confirmed {
			prior = append(prior, fa.Gaps.Concepts)
		}
	}
	return prior, nil
}

// askFollowUp generates the follow-up text, persists the question together
// with the aggregate transition, and emits the follow_up_question frame.
func (o *Orchestrator) askFollowUp(ctx context.Context, emit Emitter, iv *interview.Interview, answer *interview.Answer, decision followup.Decision, parentID string) error {
	parentPrompt := ""
	if q, err := o.cfg.Store.Questions().Get(ctx, parentID); err == nil {
		parentPrompt = q.Prompt
	}

	priorAnswers, err := o.relatedTranscripts(ctx, iv.ID, answer)
	if err != nil {
		return err
	}

	var text string
	llmStart := time.Now()
	err = resilience.Retry(ctx, o.cfg.Retry, "llm.followup", func(ctx context.Context) error {
		callCtx, cancel := context.WithTimeout(ctx, o.cfg.LLMTimeout)
		defer cancel()
		t, err := o.cfg.Assessor.GenerateFollowUp(callCtx, assess.FollowUpInput{
			ParentPrompt:    parentPrompt,
			AnswerText:      answer.Transcript,
			MissingConcepts: decision.CumulativeGaps,
			Ordinal:         decision.Ordinal,
			PriorAnswers:    priorAnswers,
		})
		if err != nil {
			return err
		}
		text = t
		return nil
	})
	o.cfg.Metrics.LLMDuration.Record(ctx, time.Since(llmStart).Seconds(),
		metric.WithAttributes(observe.Attr("op", "followup")))
	if err != nil {
		o.cfg.Metrics.RecordProviderError(ctx, "llm", "followup")
		return Classify(err)
	}

	fu := &interview.FollowUpQuestion{
		ID:               uuid.NewString(),
		InterviewID:      iv.ID,
		ParentQuestionID: parentID,
		Prompt:           text,
		Ordinal:          decision.Ordinal,
		Reason:           decision.CumulativeGaps,
		CreatedAt:        time.Now().UTC(),
	}
	err = o.cfg.Store.WithinTx(ctx, func(ctx context.Context, tx store.Store) error {
		if err := tx.FollowUps().Create(ctx, fu); err != nil {
			return err
		}
		if err := iv.AskFollowup(fu.ID, parentID); err != nil {
			return err
		}
		return tx.Interviews().Update(ctx, iv)
	})
	if err != nil {
		return Classify(err)
	}
	o.cfg.Metrics.RecordFollowUp(ctx, decision.Reason)

	audio := o.synthesize(ctx, emit, fu.Prompt)
	return o.emitOrClassify(emit.Emit(ctx, &FollowUpQuestionFrame{
		Type:             TypeFollowUpQuestion,
		QuestionID:       fu.ID,
		ParentQuestionID: fu.ParentQuestionID,
		Text:             fu.Prompt,
		GeneratedReason:  emptySlice(fu.Reason),
		OrderInSequence:  fu.Ordinal,
		AudioData:        audio,
		AudioFormat:      audioFormatFor(audio),
	}))
}

// relatedTranscripts retrieves up to priorAnswerLimit semantically related
// earlier answers of the same interview, for the follow-up prompt context.
// Requires the current answer to carry an embedding; returns nil otherwise.
func (o *Orchestrator) relatedTranscripts(ctx context.Context, interviewID string, answer *interview.Answer) ([]string, error) {
	if len(answer.Embedding) == 0 {
		return nil, nil
	}
	vecStart := time.Now()
	similar, err := o.cfg.Store.Answers().FindSimilar(ctx, interviewID, answer.Embedding, priorAnswerLimit+1)
	o.cfg.Metrics.VectorDuration.Record(ctx, time.Since(vecStart).Seconds())
	if err != nil {
		return nil, Classify(err)
	}
	var out []string
	for _, a := range similar {
		if a.ID == answer.ID || len(out) == priorAnswerLimit {
			continue
		}
		out = append(out, a.Transcript)
	}
	return out, nil
}

// advance closes the current main question: next question or completion.
func (o *Orchestrator) advance(ctx context.Context, emit Emitter, iv *interview.Interview) error {
	if iv.CurrentIndex+1 >= len(iv.QuestionIDs) {
		// Plan exhausted: the completion engine owns the final transition and
		// the atomic summary write.
		summary, err := o.cfg.Completion.Complete(ctx, iv.ID)
		if err != nil {
			return Classify(err)
		}
		o.cfg.Metrics.Completions.Add(ctx, 1, metric.WithAttributes(observe.Attr("outcome", "complete")))
		return o.emitOrClassify(emit.Emit(ctx, completeFrame(summary)))
	}

	if err := iv.ProceedToNextQuestion(); err != nil {
		return Classify(err)
	}
	if err := o.cfg.Store.Interviews().Update(ctx, iv); err != nil {
		return Classify(err)
	}
	return o.emitCurrentQuestion(ctx, emit, iv)
}

// emitCurrentQuestion renders and emits the plan's current main question.
func (o *Orchestrator) emitCurrentQuestion(ctx context.Context, emit Emitter, iv *interview.Interview) error {
	qid := iv.CurrentMainQuestionID()
	if qid == "" {
		return Classify(fmt.Errorf("session: no current question (index %d of %d)", iv.CurrentIndex, len(iv.QuestionIDs)))
	}
	q, err := o.cfg.Store.Questions().Get(ctx, qid)
	if err != nil {
		return Classify(fmt.Errorf("session: load question %s: %w", qid, err))
	}

	audio := o.synthesize(ctx, emit, q.Prompt)
	return o.emitOrClassify(emit.Emit(ctx, &QuestionFrame{
		Type:        TypeQuestion,
		QuestionID:  q.ID,
		Text:        q.Prompt,
		Index:       iv.CurrentIndex,
		Total:       len(iv.QuestionIDs),
		AudioData:   audio,
		AudioFormat: audioFormatFor(audio),
	}))
}

// synthesize renders text through the TTS provider. Failure degrades: a
// TTS_FAILED error frame is emitted and the question ships text-only.
func (o *Orchestrator) synthesize(ctx context.Context, emit Emitter, text string) string {
	if o.cfg.TTS == nil {
		return ""
	}
	var audio []byte
	ttsStart := time.Now()
	err := resilience.Retry(ctx, o.cfg.Retry, "tts.synthesize", func(ctx context.Context) error {
		callCtx, cancel := context.WithTimeout(ctx, o.cfg.TTSTimeout)
		defer cancel()
		b, err := o.cfg.TTS.Synthesize(callCtx, tts.Request{Text: text, Voice: o.cfg.Voice, Speed: o.cfg.Speed})
		if err != nil {
			return err
		}
		audio = b
		return nil
	})
	o.cfg.Metrics.TTSDuration.Record(ctx, time.Since(ttsStart).Seconds())
	if err != nil {
		o.cfg.Metrics.RecordProviderError(ctx, "tts", "synthesize")
		// Best effort; a failed error frame means the transport is gone and
		// the next emit will surface it.
		_ = emit.Emit(ctx, ttsFailed(err).Frame())
		return ""
	}
	return base64.StdEncoding.EncodeToString(audio)
}

// emitOrClassify wraps a final emit so transport failures surface typed.
func (o *Orchestrator) emitOrClassify(err error) error {
	if err != nil {
		return Classify(err)
	}
	return nil
}

// completeFrame copies the summary into its wire form with the aggregate
// scores rounded at the boundary.
func completeFrame(s *interview.CompletionSummary) *CompleteFrame {
	cp := *s
	cp.OverallScore = round1(cp.OverallScore)
	cp.TheoreticalAvg = round1(cp.TheoreticalAvg)
	cp.SpeakingAvg = round1(cp.SpeakingAvg)
	for i := range cp.Questions {
		cp.Questions[i].Score = round1(cp.Questions[i].Score)
	}
	return &CompleteFrame{Type: TypeInterviewComplete, CompletionSummary: cp}
}

// emptySlice normalises nil to an empty slice so frames always carry arrays.
func emptySlice(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

// audioFormatFor returns the wire audio format for a clip, empty when there
// is no clip.
func audioFormatFor(audio string) string {
	if audio == "" {
		return ""
	}
	return ttsAudioFormat
}
