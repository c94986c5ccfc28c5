// Package memstore is the in-memory store.Store implementation, used by the
// test suite and by single-process runs without PostgreSQL. Transactions are
// implemented by snapshotting all tables and restoring them on rollback, so
// the atomicity guarantees match the SQL implementation for a single process.
package memstore

import (
	"context"
	"sort"
	"sync"

	"github.com/MrWong99/intervoxa/internal/interview"
	"github.com/MrWong99/intervoxa/internal/store"
	"github.com/MrWong99/intervoxa/pkg/provider/vector"
)

var _ store.Store = (*Store)(nil)

// Store is an in-memory store.Store. Safe for concurrent use; transactions
// are serialised.
type Store struct {
	mu sync.RWMutex

	// txMu serialises WithinTx so that a snapshot sees no concurrent writers.
	txMu sync.Mutex

	interviews  map[string]*interview.Interview
	questions   map[string]*interview.Question
	followups   map[string]*interview.FollowUpQuestion
	followupSeq []string
	answers     map[answerKey]*interview.Answer
	answerSeq   []answerKey
	evaluations map[string]*interview.Evaluation
	evalSeq     []string
}

type answerKey struct {
	interviewID string
	questionID  string
}

// New creates an empty store.
func New() *Store {
	return &Store{
		interviews:  map[string]*interview.Interview{},
		questions:   map[string]*interview.Question{},
		followups:   map[string]*interview.FollowUpQuestion{},
		answers:     map[answerKey]*interview.Answer{},
		evaluations: map[string]*interview.Evaluation{},
	}
}

func (s *Store) Interviews() store.InterviewRepo   { return (*interviewRepo)(s) }
func (s *Store) Questions() store.QuestionRepo     { return (*questionRepo)(s) }
func (s *Store) FollowUps() store.FollowUpRepo     { return (*followupRepo)(s) }
func (s *Store) Answers() store.AnswerRepo         { return (*answerRepo)(s) }
func (s *Store) Evaluations() store.EvaluationRepo { return (*evaluationRepo)(s) }

// snapshot captures every table for rollback.
type snapshot struct {
	interviews  map[string]*interview.Interview
	questions   map[string]*interview.Question
	followups   map[string]*interview.FollowUpQuestion
	followupSeq []string
	answers     map[answerKey]*interview.Answer
	answerSeq   []answerKey
	evaluations map[string]*interview.Evaluation
	evalSeq     []string
}

// WithinTx implements store.Store. fn runs against the store itself; on error
// or panic every table is restored to its pre-transaction content.
func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context, tx store.Store) error) error {
	s.txMu.Lock()
	defer s.txMu.Unlock()

	s.mu.Lock()
	snap := s.take()
	s.mu.Unlock()

	restored := false
	restore := func() {
		s.mu.Lock()
		s.apply(snap)
		s.mu.Unlock()
		restored = true
	}
	defer func() {
		if r := recover(); r != nil {
			if !restored {
				restore()
			}
			panic(r)
		}
	}()

	if err := fn(ctx, s); err != nil {
		restore()
		return err
	}
	return nil
}

// take deep-copies all tables. Callers must hold mu.
func (s *Store) take() snapshot {
	snap := snapshot{
		interviews:  make(map[string]*interview.Interview, len(s.interviews)),
		questions:   make(map[string]*interview.Question, len(s.questions)),
		followups:   make(map[string]*interview.FollowUpQuestion, len(s.followups)),
		followupSeq: append([]string(nil), s.followupSeq...),
		answers:     make(map[answerKey]*interview.Answer, len(s.answers)),
		answerSeq:   append([]answerKey(nil), s.answerSeq...),
		evaluations: make(map[string]*interview.Evaluation, len(s.evaluations)),
		evalSeq:     append([]string(nil), s.evalSeq...),
	}
	for k, v := range s.interviews {
		snap.interviews[k] = v.Clone()
	}
	for k, v := range s.questions {
		snap.questions[k] = cloneQuestion(v)
	}
	for k, v := range s.followups {
		snap.followups[k] = cloneFollowUp(v)
	}
	for k, v := range s.answers {
		snap.answers[k] = cloneAnswer(v)
	}
	for k, v := range s.evaluations {
		snap.evaluations[k] = cloneEvaluation(v)
	}
	return snap
}

// apply restores a snapshot. Callers must hold mu.
func (s *Store) apply(snap snapshot) {
	s.interviews = snap.interviews
	s.questions = snap.questions
	s.followups = snap.followups
	s.followupSeq = snap.followupSeq
	s.answers = snap.answers
	s.answerSeq = snap.answerSeq
	s.evaluations = snap.evaluations
	s.evalSeq = snap.evalSeq
}

// ─── interviews ──────────────────────────────────────────────────────────────

type interviewRepo Store

func (r *interviewRepo) Create(ctx context.Context, iv *interview.Interview) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	iv.Version = 1
	r.interviews[iv.ID] = iv.Clone()
	return nil
}

func (r *interviewRepo) Get(ctx context.Context, id string) (*interview.Interview, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	iv, ok := r.interviews[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return iv.Clone(), nil
}

func (r *interviewRepo) Update(ctx context.Context, iv *interview.Interview) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.interviews[iv.ID]
	if !ok {
		return store.ErrNotFound
	}
	if stored.Version != iv.Version {
		return store.ErrStaleAggregate
	}
	iv.Version++
	r.interviews[iv.ID] = iv.Clone()
	return nil
}

// ─── questions ───────────────────────────────────────────────────────────────

type questionRepo Store

func (r *questionRepo) Put(ctx context.Context, q *interview.Question) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.questions[q.ID] = cloneQuestion(q)
	return nil
}

func (r *questionRepo) Get(ctx context.Context, id string) (*interview.Question, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	q, ok := r.questions[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return cloneQuestion(q), nil
}

// ─── follow-ups ──────────────────────────────────────────────────────────────

type followupRepo Store

func (r *followupRepo) Create(ctx context.Context, f *interview.FollowUpQuestion) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.followups[f.ID]; !exists {
		r.followupSeq = append(r.followupSeq, f.ID)
	}
	r.followups[f.ID] = cloneFollowUp(f)
	return nil
}

func (r *followupRepo) Get(ctx context.Context, id string) (*interview.FollowUpQuestion, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	f, ok := r.followups[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return cloneFollowUp(f), nil
}

func (r *followupRepo) ListByParent(ctx context.Context, interviewID, parentQuestionID string) ([]*interview.FollowUpQuestion, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := []*interview.FollowUpQuestion{}
	for _, id := range r.followupSeq {
		f := r.followups[id]
		if f.InterviewID == interviewID && f.ParentQuestionID == parentQuestionID {
			out = append(out, cloneFollowUp(f))
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Ordinal < out[j].Ordinal })
	return out, nil
}

func (r *followupRepo) ListByInterview(ctx context.Context, interviewID string) ([]*interview.FollowUpQuestion, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := []*interview.FollowUpQuestion{}
	for _, id := range r.followupSeq {
		if f := r.followups[id]; f.InterviewID == interviewID {
			out = append(out, cloneFollowUp(f))
		}
	}
	return out, nil
}

// ─── answers ─────────────────────────────────────────────────────────────────

type answerRepo Store

func (r *answerRepo) Upsert(ctx context.Context, a *interview.Answer) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := answerKey{interviewID: a.InterviewID, questionID: a.QuestionID}
	if _, exists := r.answers[key]; !exists {
		r.answerSeq = append(r.answerSeq, key)
	}
	r.answers[key] = cloneAnswer(a)
	return nil
}

func (r *answerRepo) GetByQuestion(ctx context.Context, interviewID, questionID string) (*interview.Answer, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.answers[answerKey{interviewID: interviewID, questionID: questionID}]
	if !ok {
		return nil, store.ErrNotFound
	}
	return cloneAnswer(a), nil
}

func (r *answerRepo) ListByInterview(ctx context.Context, interviewID string) ([]*interview.Answer, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := []*interview.Answer{}
	for _, key := range r.answerSeq {
		if key.interviewID == interviewID {
			out = append(out, cloneAnswer(r.answers[key]))
		}
	}
	return out, nil
}

func (r *answerRepo) FindSimilar(ctx context.Context, interviewID string, embedding []float32, limit int) ([]*interview.Answer, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	type scored struct {
		answer     *interview.Answer
		similarity float64
	}
	var candidates []scored
	for _, key := range r.answerSeq {
		if key.interviewID != interviewID {
			continue
		}
		a := r.answers[key]
		if len(a.Embedding) == 0 {
			continue
		}
		candidates = append(candidates, scored{
			answer:     cloneAnswer(a),
			similarity: vector.Cosine(embedding, a.Embedding),
		})
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].similarity > candidates[j].similarity
	})
	if limit > 0 && len(candidates) > limit {
		candidates = candidates[:limit]
	}
	out := make([]*interview.Answer, len(candidates))
	for i, c := range candidates {
		out[i] = c.answer
	}
	return out, nil
}

// ─── evaluations ─────────────────────────────────────────────────────────────

type evaluationRepo Store

func (r *evaluationRepo) Create(ctx context.Context, e *interview.Evaluation) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.evaluations[e.ID]; !exists {
		r.evalSeq = append(r.evalSeq, e.ID)
	}
	r.evaluations[e.ID] = cloneEvaluation(e)
	return nil
}

func (r *evaluationRepo) Get(ctx context.Context, id string) (*interview.Evaluation, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.evaluations[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return cloneEvaluation(e), nil
}

func (r *evaluationRepo) Delete(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.evaluations[id]; !ok {
		return nil
	}
	delete(r.evaluations, id)
	for i, eid := range r.evalSeq {
		if eid == id {
			r.evalSeq = append(r.evalSeq[:i], r.evalSeq[i+1:]...)
			break
		}
	}
	return nil
}

func (r *evaluationRepo) ListByInterview(ctx context.Context, interviewID string) ([]*interview.Evaluation, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := []*interview.Evaluation{}
	for _, id := range r.evalSeq {
		if e := r.evaluations[id]; e.InterviewID == interviewID {
			out = append(out, cloneEvaluation(e))
		}
	}
	return out, nil
}

// ─── copies ──────────────────────────────────────────────────────────────────

func cloneQuestion(q *interview.Question) *interview.Question {
	cp := *q
	cp.Skills = append([]string(nil), q.Skills...)
	cp.IdealEmbedding = append([]float32(nil), q.IdealEmbedding...)
	return &cp
}

func cloneFollowUp(f *interview.FollowUpQuestion) *interview.FollowUpQuestion {
	cp := *f
	cp.Reason = append([]string(nil), f.Reason...)
	return &cp
}

func cloneAnswer(a *interview.Answer) *interview.Answer {
	cp := *a
	cp.Gaps.Concepts = append([]string(nil), a.Gaps.Concepts...)
	cp.Embedding = append([]float32(nil), a.Embedding...)
	if a.Voice != nil {
		v := *a.Voice
		cp.Voice = &v
	}
	return &cp
}

func cloneEvaluation(e *interview.Evaluation) *interview.Evaluation {
	cp := *e
	cp.Strengths = append([]string(nil), e.Strengths...)
	cp.Weaknesses = append([]string(nil), e.Weaknesses...)
	if e.Voice != nil {
		v := *e.Voice
		cp.Voice = &v
	}
	return &cp
}
