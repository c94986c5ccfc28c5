// Package followup decides whether an evaluated answer warrants another probe
// of the same question. The decision is a pure function of the evaluation and
// the interview's follow-up history, so it is trivially testable and the
// session layer never second-guesses it.
package followup

import (
	"strings"

	"github.com/antzucaro/matchr"

	"github.com/MrWong99/intervoxa/internal/interview"
)

// Decision reasons, recorded on the follow-up question and surfaced to the
// client in the follow-up frame.
const (
	ReasonBudgetExhausted = "interview_followup_budget_exhausted"
	ReasonMaxReached      = "max_followups_reached"
	ReasonQualityMet      = "quality_threshold_met"
	ReasonNoConfirmedGaps = "no_confirmed_gaps"
	ReasonConfirmedGaps   = "confirmed_gaps_below_threshold"
)

// Input is everything the decision depends on.
type Input struct {
	// Similarity is the answer's vector similarity to the ideal answer,
	// in [0, 1] (floor-clamped upstream).
	Similarity float64

	// Gaps is the current evaluation's gap report.
	Gaps interview.Gap

	// PriorGaps are the confirmed gap sets of earlier follow-ups under the
	// same parent question, oldest first.
	PriorGaps [][]string

	// FollowupsAsked is how many follow-ups the parent question already has.
	FollowupsAsked int

	// InterviewTotal is how many follow-ups the whole interview has used.
	InterviewTotal int

	// InterviewBudget is the per-interview follow-up cap; zero or negative
	// disables the budget rule.
	InterviewBudget int

	// PerQuestionCap overrides the per-question follow-up cap. Zero selects
	// [interview.MaxFollowupsPerQuestion]; values above the hard limit are
	// clamped to it.
	PerQuestionCap int

	// SimilarityThreshold is the quality bar; answers at or above it never
	// get a follow-up. Zero selects [DefaultSimilarityThreshold].
	SimilarityThreshold float64
}

// DefaultSimilarityThreshold is the similarity at which an answer is
// considered good enough to move on.
const DefaultSimilarityThreshold = 0.8

// Decision is the outcome of [Decide].
type Decision struct {
	// NeedsFollowUp is true when another probe of the same question is due.
	NeedsFollowUp bool

	// Reason names the rule that fired.
	Reason string

	// Ordinal is the 1-based position the next follow-up would take.
	// Only meaningful when NeedsFollowUp is true.
	Ordinal int

	// CumulativeGaps is the deduplicated union of all confirmed gap concepts
	// for the parent question, the current evaluation included. This is what
	// the follow-up generator targets.
	CumulativeGaps []string
}

// Decide applies the follow-up rules in precedence order: caps first, then
// quality, then gap presence. A capped question never gets a follow-up no
// matter how poor the answer.
func Decide(in Input) Decision {
	threshold := in.SimilarityThreshold
	if threshold <= 0 {
		threshold = DefaultSimilarityThreshold
	}

	perQuestion := in.PerQuestionCap
	if perQuestion <= 0 || perQuestion > interview.MaxFollowupsPerQuestion {
		perQuestion = interview.MaxFollowupsPerQuestion
	}

	cumulative := mergeGaps(in.PriorGaps, in.Gaps)

	switch {
	case in.InterviewBudget > 0 && in.InterviewTotal >= in.InterviewBudget:
		return Decision{Reason: ReasonBudgetExhausted, CumulativeGaps: cumulative}
	case in.FollowupsAsked >= perQuestion:
		return Decision{Reason: ReasonMaxReached, CumulativeGaps: cumulative}
	case in.Similarity >= threshold:
		return Decision{Reason: ReasonQualityMet, CumulativeGaps: cumulative}
	case !in.Gaps.Confirmed || len(in.Gaps.Concepts) == 0:
		return Decision{Reason: ReasonNoConfirmedGaps, CumulativeGaps: cumulative}
	}

	return Decision{
		NeedsFollowUp:  true,
		Reason:         ReasonConfirmedGaps,
		Ordinal:        in.FollowupsAsked + 1,
		CumulativeGaps: cumulative,
	}
}

// mergeGaps unions the prior gap sets with the current evaluation's confirmed
// concepts, deduplicating near-identical phrasings. Unconfirmed current gaps
// do not join the cumulative set.
func mergeGaps(prior [][]string, current interview.Gap) []string {
	var merged []string
	for _, set := range prior {
		for _, c := range set {
			merged = appendConcept(merged, c)
		}
	}
	if current.Confirmed {
		for _, c := range current.Concepts {
			merged = appendConcept(merged, c)
		}
	}
	if merged == nil {
		merged = []string{}
	}
	return merged
}

// appendConcept adds concept to list unless an existing entry is the same
// concept under a different spelling. Levenshtein distance ≤1 on the folded
// form catches singular/plural and single-typo variants without merging
// genuinely distinct concepts.
func appendConcept(list []string, concept string) []string {
	concept = strings.TrimSpace(concept)
	if concept == "" {
		return list
	}
	folded := strings.ToLower(concept)
	for _, existing := range list {
		if matchr.Levenshtein(strings.ToLower(existing), folded) <= 1 {
			return list
		}
	}
	return append(list, concept)
}
