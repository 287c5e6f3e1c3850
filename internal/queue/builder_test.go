package queue

import (
	"context"
	"errors"
	"math/rand"
	"testing"
	"time"

	"github.com/p-n-ai/pai-sched/internal/fsrs"
	"github.com/p-n-ai/pai-sched/internal/scheduler"
)

var buildNow = time.Date(2026, 4, 20, 9, 0, 0, 0, time.UTC)

type fixture struct {
	cards  *scheduler.MemoryCardStore
	stats  *scheduler.MemoryStatsStore
	labels map[string]string
	b      *Builder
}

type mapLabels map[string]string

func (m mapLabels) DifficultyLabel(itemID string) string { return m[itemID] }

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		cards:  scheduler.NewMemoryCardStore(),
		stats:  scheduler.NewMemoryStatsStore(),
		labels: map[string]string{},
	}
	b, err := NewBuilder(f.cards, f.stats, mapLabels(f.labels))
	if err != nil {
		t.Fatalf("NewBuilder() error = %v", err)
	}
	f.b = b
	return f
}

// seedCard stores a Review-state card with the given stability, last
// reviewed elapsedDays ago and due dueOffset from now.
func (f *fixture) seedCard(t *testing.T, learnerID, itemID string, stability float64, elapsedDays int, dueOffset time.Duration) {
	t.Helper()
	last := buildNow.AddDate(0, 0, -elapsedDays)
	card := &scheduler.StoredCard{
		Key: scheduler.CardKey{LearnerID: learnerID, ItemID: itemID},
		Card: fsrs.Card{
			Stability:  stability,
			Difficulty: 5,
			State:      fsrs.Review,
			Due:        buildNow.Add(dueOffset),
			Reps:       3,
			LastReview: &last,
		},
	}
	if err := f.cards.Put(context.Background(), card); err != nil {
		t.Fatalf("seed card %s: %v", itemID, err)
	}
}

func topicsOf(sel []Selection) []string {
	out := make([]string, len(sel))
	for i, s := range sel {
		out[i] = s.Topic
	}
	return out
}

func TestBuild_NeverExceedsTargetAndNeverDuplicates(t *testing.T) {
	f := newFixture(t)
	pool := map[string][]string{
		"algebra":  {"a1", "a2", "a3", "a4"},
		"geometry": {"g1", "g2", "g3"},
	}
	for _, id := range []string{"a1", "a2", "g1"} {
		f.seedCard(t, "l", id, 5, 6, -time.Hour)
	}

	got, err := f.b.Build(context.Background(), "l", pool, 5, buildNow, Options{})
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	if len(got) > 5 {
		t.Errorf("Build() returned %d items, want <= 5", len(got))
	}
	seen := map[string]bool{}
	for _, s := range got {
		if seen[s.ItemID] {
			t.Errorf("duplicate item %s in queue", s.ItemID)
		}
		seen[s.ItemID] = true
	}
}

func TestBuild_UnderflowReturnsShorterList(t *testing.T) {
	f := newFixture(t)
	pool := map[string][]string{"algebra": {"a1", "a2"}}

	got, err := f.b.Build(context.Background(), "l", pool, 10, buildNow, Options{})
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	if len(got) != 2 {
		t.Errorf("Build() returned %d items, want all 2 candidates", len(got))
	}
}

func TestBuild_DueReviewScoresAboveEverything(t *testing.T) {
	f := newFixture(t)
	pool := map[string][]string{
		"algebra": {"due-1", "fresh-1", "new-1"},
	}
	// Overdue card, low retrievability.
	f.seedCard(t, "l", "due-1", 4, 10, -48*time.Hour)
	// Reviewed two days ago with high stability: not due, retention still
	// high, so it is not a candidate at all.
	f.seedCard(t, "l", "fresh-1", 20, 2, 18*24*time.Hour)

	got, err := f.b.Build(context.Background(), "l", pool, 3, buildNow, Options{})
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("Build() returned %d items, want 2 (due + new)", len(got))
	}
	if got[0].ItemID != "due-1" || got[0].Bucket != BucketDueReview {
		t.Errorf("first item = %s (%s), want due-1 (due_review)", got[0].ItemID, got[0].Bucket)
	}
	if got[0].Score < 100 {
		t.Errorf("due review score = %v, want >= 100", got[0].Score)
	}
	if got[1].ItemID != "new-1" || got[1].Bucket != BucketNewContent {
		t.Errorf("second item = %s (%s), want new-1 (new_content)", got[1].ItemID, got[1].Bucket)
	}
}

func TestBuild_LowRetentionBucket(t *testing.T) {
	f := newFixture(t)
	pool := map[string][]string{"algebra": {"slipping"}}
	// Not due for another ten days, but reviewed so long ago relative to
	// its stability that retrievability has fallen under 0.7.
	f.seedCard(t, "l", "slipping", 2, 10, 10*24*time.Hour)

	got, err := f.b.Build(context.Background(), "l", pool, 3, buildNow, Options{})
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	if len(got) != 1 || got[0].Bucket != BucketLowRetention {
		t.Fatalf("got %+v, want one low_retention selection", got)
	}
	if got[0].Retrievability >= 0.7 {
		t.Errorf("retrievability = %v, want < 0.7", got[0].Retrievability)
	}
	if got[0].Score < 80 || got[0].Score >= 100 {
		t.Errorf("score = %v, want in the low-retention band [80, 100)", got[0].Score)
	}
}

func TestBuild_MasteredItemsOnlyFillLeftoverSlots(t *testing.T) {
	f := newFixture(t)
	pool := map[string][]string{"algebra": {"mastered-1", "due-1", "new-1"}}
	// Stable, recently confirmed card: long-mastered.
	f.seedCard(t, "l", "mastered-1", 60, 3, 50*24*time.Hour)
	f.seedCard(t, "l", "due-1", 6, 7, -time.Hour)

	got, err := f.b.Build(context.Background(), "l", pool, 3, buildNow, Options{})
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("Build() returned %d items, want 3", len(got))
	}
	last := got[2]
	if last.ItemID != "mastered-1" || last.Bucket != BucketReinforcement {
		t.Errorf("last slot = %s (%s), want mastered-1 (reinforcement)", last.ItemID, last.Bucket)
	}
}

func TestBuild_RecencyExcludesReinforcementNotDue(t *testing.T) {
	f := newFixture(t)
	pool := map[string][]string{"algebra": {"mastered-now", "due-now"}}
	// Mastered and reviewed three hours ago: inside the exclusion window.
	f.seedCard(t, "l", "mastered-now", 60, 0, 50*24*time.Hour)
	// Due item also reviewed today: due-ness overrides recency.
	f.seedCard(t, "l", "due-now", 4, 0, -time.Hour)

	got, err := f.b.Build(context.Background(), "l", pool, 5, buildNow, Options{})
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("Build() returned %d items, want only the due one", len(got))
	}
	if got[0].ItemID != "due-now" {
		t.Errorf("selected %s, want due-now", got[0].ItemID)
	}
}

func TestBuild_TopicInterleaving(t *testing.T) {
	// Ten due items, seven in topic A and three in topic B: the output
	// must alternate rather than front-load the dominant topic.
	f := newFixture(t)
	pool := map[string][]string{
		"topic-a": {"a1", "a2", "a3", "a4", "a5", "a6", "a7"},
		"topic-b": {"b1", "b2", "b3"},
	}
	for i, id := range pool["topic-a"] {
		f.seedCard(t, "l", id, 5, 6+i, -time.Hour)
	}
	for i, id := range pool["topic-b"] {
		f.seedCard(t, "l", id, 5, 6+i, -2*time.Hour)
	}

	got, err := f.b.Build(context.Background(), "l", pool, 6, buildNow, Options{})
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	if len(got) != 6 {
		t.Fatalf("Build() returned %d items, want 6", len(got))
	}

	topics := topicsOf(got)
	for i := 1; i < len(topics); i++ {
		if topics[i] == topics[i-1] {
			t.Fatalf("consecutive same-topic items at %d: %v", i, topics)
		}
	}
	// No prefix of length >= 4 may hold more than one extra topic-a item.
	for n := 4; n <= len(topics); n++ {
		a, bCount := 0, 0
		for _, tp := range topics[:n] {
			if tp == "topic-a" {
				a++
			} else {
				bCount++
			}
		}
		if a-bCount > 1 {
			t.Errorf("prefix %d unbalanced: %d a vs %d b", n, a, bCount)
		}
	}
}

func TestBuild_SingleRemainingTopicMayRun(t *testing.T) {
	f := newFixture(t)
	pool := map[string][]string{
		"topic-a": {"a1", "a2", "a3", "a4"},
		"topic-b": {"b1"},
	}
	for i, id := range pool["topic-a"] {
		f.seedCard(t, "l", id, 5, 6+i, -time.Hour)
	}
	f.seedCard(t, "l", "b1", 5, 6, -time.Hour)

	got, err := f.b.Build(context.Background(), "l", pool, 5, buildNow, Options{})
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	if len(got) != 5 {
		t.Fatalf("Build() returned %d items, want 5", len(got))
	}
	// Once topic-b is exhausted the remaining topic-a items may run
	// consecutively.
	if got[1].Topic != "topic-b" && got[0].Topic != "topic-b" {
		t.Errorf("topic-b item missing from the first round: %v", topicsOf(got))
	}
}

func TestBuild_QuotaRolloverWhenBucketShort(t *testing.T) {
	// No due items at all: the due quota rolls into low-retention and
	// new content, still filling the queue.
	f := newFixture(t)
	pool := map[string][]string{"algebra": {"slip-1", "slip-2", "n1", "n2", "n3", "n4"}}
	f.seedCard(t, "l", "slip-1", 2, 10, 10*24*time.Hour)
	f.seedCard(t, "l", "slip-2", 2, 12, 10*24*time.Hour)

	got, err := f.b.Build(context.Background(), "l", pool, 6, buildNow, Options{})
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	if len(got) != 6 {
		t.Fatalf("Build() returned %d items, want 6 after rollover", len(got))
	}
	counts := map[Bucket]int{}
	for _, s := range got {
		counts[s.Bucket]++
	}
	if counts[BucketLowRetention] != 2 {
		t.Errorf("low_retention count = %d, want 2", counts[BucketLowRetention])
	}
	if counts[BucketNewContent] != 4 {
		t.Errorf("new_content count = %d, want 4", counts[BucketNewContent])
	}
}

func TestBuild_LowFocusDemotesNewContent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	pool := map[string][]string{"algebra": {"due-1", "new-1"}}
	// Barely-due card with high retrievability scores near the bottom of
	// the due band.
	f.seedCard(t, "l", "due-1", 20, 1, -time.Minute)

	if err := f.stats.SetBehaviorScores(ctx, "l", 30, 90); err != nil {
		t.Fatal(err)
	}

	got, err := f.b.Build(ctx, "l", pool, 2, buildNow, Options{})
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	if got[0].ItemID != "due-1" {
		t.Errorf("first item = %s, want the boosted due review", got[0].ItemID)
	}
	for _, s := range got {
		switch s.Bucket {
		case BucketNewContent:
			if s.Score > newContentBase-focusNewContentPenalty+newContentJitterMax {
				t.Errorf("new content score %v not demoted under low focus", s.Score)
			}
		case BucketDueReview:
			if s.Score < dueReviewBase+focusDueReviewBoost {
				t.Errorf("due review score %v not boosted under low focus", s.Score)
			}
		}
	}
}

func TestBuild_LowConfidenceShiftsByDifficultyLabel(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	pool := map[string][]string{"algebra": {"adv-1", "beg-1"}}
	f.labels["adv-1"] = "advanced"
	f.labels["beg-1"] = "beginner"

	if err := f.stats.SetBehaviorScores(ctx, "l", 90, 30); err != nil {
		t.Fatal(err)
	}

	got, err := f.b.Build(ctx, "l", pool, 2, buildNow, Options{})
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("Build() returned %d items, want 2", len(got))
	}
	if got[0].ItemID != "beg-1" {
		t.Errorf("first item = %s, want the promoted beginner item", got[0].ItemID)
	}
	if diff := got[0].Score - got[1].Score; diff != confidenceBeginnerBoost+confidenceAdvancedPenalty {
		t.Errorf("score gap = %v, want %v", diff, confidenceBeginnerBoost+confidenceAdvancedPenalty)
	}
}

func TestBuild_DeterministicWithoutRand(t *testing.T) {
	f := newFixture(t)
	pool := map[string][]string{
		"algebra":  {"a1", "a2", "n1"},
		"geometry": {"g1", "n2"},
	}
	f.seedCard(t, "l", "a1", 4, 8, -time.Hour)
	f.seedCard(t, "l", "g1", 4, 8, -time.Hour)

	first, err := f.b.Build(context.Background(), "l", pool, 5, buildNow, Options{})
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 10; i++ {
		again, err := f.b.Build(context.Background(), "l", pool, 5, buildNow, Options{})
		if err != nil {
			t.Fatal(err)
		}
		if len(again) != len(first) {
			t.Fatalf("run %d: length %d != %d", i, len(again), len(first))
		}
		for j := range again {
			if again[j] != first[j] {
				t.Fatalf("run %d: position %d differs: %+v != %+v", i, j, again[j], first[j])
			}
		}
	}
}

func TestBuild_JitterStaysInsideNewContentBand(t *testing.T) {
	f := newFixture(t)
	pool := map[string][]string{"algebra": {"n1", "n2", "n3"}}
	rng := rand.New(rand.NewSource(7))

	got, err := f.b.Build(context.Background(), "l", pool, 3, buildNow, Options{Rand: rng})
	if err != nil {
		t.Fatal(err)
	}
	for _, s := range got {
		if s.Score < newContentBase || s.Score >= newContentBase+newContentJitterMax {
			t.Errorf("jittered score %v outside [%v, %v)", s.Score, newContentBase, newContentBase+newContentJitterMax)
		}
	}
}

func TestBuild_InputValidation(t *testing.T) {
	f := newFixture(t)
	pool := map[string][]string{"algebra": {"a1"}}

	if _, err := f.b.Build(context.Background(), "", pool, 3, buildNow, Options{}); !errors.Is(err, ErrInvalidInput) {
		t.Errorf("empty learner error = %v, want ErrInvalidInput", err)
	}
	if _, err := f.b.Build(context.Background(), "l", pool, -1, buildNow, Options{}); !errors.Is(err, ErrInvalidInput) {
		t.Errorf("negative target error = %v, want ErrInvalidInput", err)
	}

	got, err := f.b.Build(context.Background(), "l", pool, 0, buildNow, Options{})
	if err != nil || got != nil {
		t.Errorf("zero target = (%v, %v), want empty and no error", got, err)
	}
}

func TestBuild_CardWithoutReviewHistoryIsNewContent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	pool := map[string][]string{"algebra": {"overdue-1", "migrated-1"}}
	f.seedCard(t, "l", "overdue-1", 5, 6, -time.Hour)
	// A card row with no review behind it, as a legacy migration of a
	// never-studied record would leave. Its zero due time must not read
	// as infinitely overdue.
	migrated := &scheduler.StoredCard{
		Key:  scheduler.CardKey{LearnerID: "l", ItemID: "migrated-1"},
		Card: fsrs.FromLegacy(2.5, 0, 0),
	}
	if err := f.cards.Put(ctx, migrated); err != nil {
		t.Fatalf("seed card: %v", err)
	}

	got, err := f.b.Build(ctx, "l", pool, 2, buildNow, Options{})
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("Build() returned %d items, want 2", len(got))
	}
	if got[0].ItemID != "overdue-1" || got[0].Bucket != BucketDueReview {
		t.Errorf("first item = %s (%s), want overdue-1 (due_review)", got[0].ItemID, got[0].Bucket)
	}
	if got[1].ItemID != "migrated-1" || got[1].Bucket != BucketNewContent {
		t.Errorf("second item = %s (%s), want migrated-1 (new_content)", got[1].ItemID, got[1].Bucket)
	}
	if got[1].Score != newContentBase {
		t.Errorf("unreviewed card score = %v, want the plain new-content score %v", got[1].Score, newContentBase)
	}
}

func TestBuild_BoostedItemLeadsItsTopic(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	pool := map[string][]string{"algebra": {"due-1", "gap-1"}}
	f.labels["gap-1"] = "beginner"
	// Barely-due card near the bottom of the due band.
	f.seedCard(t, "l", "due-1", 20, 1, -time.Hour)
	// Badly decayed but not yet due; the beginner boost lifts it past the
	// due review's score.
	f.seedCard(t, "l", "gap-1", 2, 200, 5*24*time.Hour)

	if err := f.stats.SetBehaviorScores(ctx, "l", 90, 30); err != nil {
		t.Fatal(err)
	}

	got, err := f.b.Build(ctx, "l", pool, 2, buildNow, Options{})
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("Build() returned %d items, want 2", len(got))
	}
	// Within a topic the higher score goes first even when it comes from
	// a lower-priority bucket.
	if got[0].ItemID != "gap-1" || got[0].Bucket != BucketLowRetention {
		t.Errorf("first item = %s (%s), want gap-1 (low_retention)", got[0].ItemID, got[0].Bucket)
	}
	if got[1].ItemID != "due-1" {
		t.Errorf("second item = %s, want due-1", got[1].ItemID)
	}
	if got[0].Score <= got[1].Score {
		t.Errorf("scores = %v then %v, want descending", got[0].Score, got[1].Score)
	}
}
