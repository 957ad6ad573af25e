package match

import (
	"context"
	"errors"
	"testing"

	"github.com/franz/dupe-janitor/internal/store"
)

// pairs builds a symmetric PairFunc from an explicit list of matching id pairs
func pairs(matches ...[2]int64) PairFunc {
	set := make(map[[2]int64]bool)
	for _, m := range matches {
		set[m] = true
		set[[2]int64{m[1], m[0]}] = true
	}
	return func(a, b *store.FileRecord) bool {
		return set[[2]int64{a.ID, b.ID}]
	}
}

func files(ids ...int64) []*store.FileRecord {
	out := make([]*store.FileRecord, len(ids))
	for i, id := range ids {
		out[i] = &store.FileRecord{ID: id}
	}
	return out
}

func TestAnchorIsNotTransitive(t *testing.T) {
	// A~B and B~C but not A~C: C is compared with the anchor A only
	groups, err := Anchor(context.Background(), files(1, 2, 3), pairs([2]int64{1, 2}, [2]int64{2, 3}), 1, Hooks{})
	if err != nil {
		t.Fatalf("Anchor: %v", err)
	}

	got := groupIDs(groups)
	if len(got) != 1 || len(got[0]) != 2 || got[0][0] != 1 || got[0][1] != 2 {
		t.Errorf("groups = %v, want [[1 2]]", got)
	}
}

func TestAnchorOrderAndSingletons(t *testing.T) {
	match := pairs([2]int64{2, 5}, [2]int64{2, 4}, [2]int64{1, 6}, [2]int64{4, 5})
	groups, err := Anchor(context.Background(), files(1, 2, 3, 4, 5, 6), match, 1, Hooks{})
	if err != nil {
		t.Fatalf("Anchor: %v", err)
	}

	got := groupIDs(groups)
	want := [][]int64{{1, 6}, {2, 4, 5}}
	if len(got) != len(want) {
		t.Fatalf("groups = %v, want %v", got, want)
	}
	for i := range want {
		for j := range want[i] {
			if got[i][j] != want[i][j] {
				t.Fatalf("groups = %v, want %v", got, want)
			}
		}
	}
}

func TestAnchorHooks(t *testing.T) {
	var progress [][2]int
	var emitted [][]int64

	hooks := Hooks{
		OnProgress: func(filesProcessed, comparisons int) {
			progress = append(progress, [2]int{filesProcessed, comparisons})
		},
		OnGroup: func(members []*store.FileRecord) {
			emitted = append(emitted, groupIDs([][]*store.FileRecord{members})[0])
		},
	}

	_, err := Anchor(context.Background(), files(1, 2, 3, 4), pairs([2]int64{1, 3}), 1, hooks)
	if err != nil {
		t.Fatalf("Anchor: %v", err)
	}

	// Anchors 1, 2 and 4 run; 3 joins 1's group
	want := [][2]int{{2, 3}, {3, 4}, {4, 4}}
	if len(progress) != len(want) {
		t.Fatalf("progress = %v, want %v", progress, want)
	}
	for i := range want {
		if progress[i] != want[i] {
			t.Errorf("progress[%d] = %v, want %v", i, progress[i], want[i])
		}
	}
	if len(emitted) != 1 || emitted[0][0] != 1 || emitted[0][1] != 3 {
		t.Errorf("emitted groups = %v, want [[1 3]]", emitted)
	}
}

func TestAnchorStopsWithinOneComparison(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	calls := 0
	match := func(a, b *store.FileRecord) bool {
		calls++
		if calls == 2 {
			cancel()
		}
		return false
	}

	_, err := Anchor(ctx, files(1, 2, 3, 4, 5), match, 1, Hooks{})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if calls != 2 {
		t.Errorf("expected to stop right after the cancelling comparison, made %d", calls)
	}
}
