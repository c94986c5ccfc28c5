package followup

import (
	"reflect"
	"testing"

	"github.com/MrWong99/intervoxa/internal/interview"
)

func confirmedGaps(concepts ...string) interview.Gap {
	return interview.Gap{Concepts: concepts, Confirmed: true}
}

func TestDecideRulePrecedence(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		in         Input
		wantFollow bool
		wantReason string
	}{
		{
			name: "interview budget trumps everything",
			in: Input{
				Similarity:      0.1,
				Gaps:            confirmedGaps("indexes"),
				FollowupsAsked:  0,
				InterviewTotal:  15,
				InterviewBudget: 15,
			},
			wantReason: ReasonBudgetExhausted,
		},
		{
			name: "per-question cap beats poor similarity",
			in: Input{
				Similarity:     0.1,
				Gaps:           confirmedGaps("indexes"),
				FollowupsAsked: 3,
			},
			wantReason: ReasonMaxReached,
		},
		{
			name: "good answer never probed even with confirmed gaps",
			in: Input{
				Similarity: 0.85,
				Gaps:       confirmedGaps("minor detail"),
			},
			wantReason: ReasonQualityMet,
		},
		{
			name: "similarity exactly at threshold counts as met",
			in: Input{
				Similarity: DefaultSimilarityThreshold,
				Gaps:       confirmedGaps("x"),
			},
			wantReason: ReasonQualityMet,
		},
		{
			name: "unconfirmed gaps do not trigger",
			in: Input{
				Similarity: 0.4,
				Gaps:       interview.Gap{Concepts: []string{"maybe missing"}, Confirmed: false},
			},
			wantReason: ReasonNoConfirmedGaps,
		},
		{
			name: "confirmed flag with empty concepts does not trigger",
			in: Input{
				Similarity: 0.4,
				Gaps:       interview.Gap{Confirmed: true},
			},
			wantReason: ReasonNoConfirmedGaps,
		},
		{
			name: "poor answer with confirmed gaps triggers",
			in: Input{
				Similarity: 0.4,
				Gaps:       confirmedGaps("replication lag"),
			},
			wantFollow: true,
			wantReason: ReasonConfirmedGaps,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := Decide(tt.in)
			if got.NeedsFollowUp != tt.wantFollow {
				t.Errorf("NeedsFollowUp = %v, want %v", got.NeedsFollowUp, tt.wantFollow)
			}
			if got.Reason != tt.wantReason {
				t.Errorf("Reason = %q, want %q", got.Reason, tt.wantReason)
			}
		})
	}
}

func TestDecideOrdinalProgression(t *testing.T) {
	t.Parallel()

	for asked := 0; asked < interview.MaxFollowupsPerQuestion; asked++ {
		got := Decide(Input{
			Similarity:     0.3,
			Gaps:           confirmedGaps("sharding"),
			FollowupsAsked: asked,
		})
		if !got.NeedsFollowUp {
			t.Fatalf("asked=%d: expected follow-up", asked)
		}
		if got.Ordinal != asked+1 {
			t.Errorf("asked=%d: Ordinal = %d, want %d", asked, got.Ordinal, asked+1)
		}
	}

	got := Decide(Input{
		Similarity:     0.3,
		Gaps:           confirmedGaps("sharding"),
		FollowupsAsked: interview.MaxFollowupsPerQuestion,
	})
	if got.NeedsFollowUp {
		t.Error("fourth follow-up must never be granted")
	}
}

func TestDecideCumulativeGapsAccumulate(t *testing.T) {
	t.Parallel()

	got := Decide(Input{
		Similarity: 0.3,
		Gaps:       confirmedGaps("write amplification"),
		PriorGaps: [][]string{
			{"compaction"},
			{"bloom filters"},
		},
		FollowupsAsked: 2,
	})
	want := []string{"compaction", "bloom filters", "write amplification"}
	if !reflect.DeepEqual(got.CumulativeGaps, want) {
		t.Errorf("CumulativeGaps = %v, want %v", got.CumulativeGaps, want)
	}
}

func TestDecideCumulativeGapsFuzzyDedup(t *testing.T) {
	t.Parallel()

	got := Decide(Input{
		Similarity: 0.3,
		Gaps:       confirmedGaps("Indexes", "index"),
		PriorGaps:  [][]string{{"indexes"}},
	})
	if len(got.CumulativeGaps) != 1 {
		t.Errorf("CumulativeGaps = %v, want single deduplicated entry", got.CumulativeGaps)
	}
}

func TestDecideCumulativeGapsExcludeUnconfirmed(t *testing.T) {
	t.Parallel()

	got := Decide(Input{
		Similarity: 0.3,
		Gaps:       interview.Gap{Concepts: []string{"speculative"}, Confirmed: false},
		PriorGaps:  [][]string{{"locking"}},
	})
	want := []string{"locking"}
	if !reflect.DeepEqual(got.CumulativeGaps, want) {
		t.Errorf("CumulativeGaps = %v, want %v", got.CumulativeGaps, want)
	}
}

func TestDecideCumulativeGapsNeverNil(t *testing.T) {
	t.Parallel()

	got := Decide(Input{Similarity: 0.9})
	if got.CumulativeGaps == nil {
		t.Error("CumulativeGaps must be an empty slice, not nil")
	}
}

func TestDecidePerQuestionCapOverride(t *testing.T) {
	t.Parallel()

	poor := Input{
		Similarity:     0.2,
		Gaps:           confirmedGaps("sharding"),
		FollowupsAsked: 1,
	}

	if got := Decide(poor); !got.NeedsFollowUp {
		t.Errorf("default cap: Reason = %q, want follow-up", got.Reason)
	}

	poor.PerQuestionCap = 1
	if got := Decide(poor); got.NeedsFollowUp || got.Reason != ReasonMaxReached {
		t.Errorf("cap 1: NeedsFollowUp = %v, Reason = %q", got.NeedsFollowUp, got.Reason)
	}

	// Values above the hard limit clamp down to it.
	poor.PerQuestionCap = 10
	poor.FollowupsAsked = interview.MaxFollowupsPerQuestion
	if got := Decide(poor); got.NeedsFollowUp || got.Reason != ReasonMaxReached {
		t.Errorf("cap 10: NeedsFollowUp = %v, Reason = %q", got.NeedsFollowUp, got.Reason)
	}
}
