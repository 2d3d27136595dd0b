package history

import (
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/require"
)

func openJournal(t *testing.T) *Journal {
	t.Helper()
	j, err := Open(filepath.Join(t.TempDir(), "nested", "history.db"))
	require.NoError(t, err)
	t.Cleanup(func() { j.Close() })
	return j
}

func TestRecordAndList(t *testing.T) {
	j := openJournal(t)
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	ok := Begin("dslim/bert-base-NER", "bert-base-ner-converted", "token")
	ok.Started = base
	ok.Finish("/models/bert-base-ner-converted", 6, 431_000_000, nil)
	ok.Duration = 95 * time.Second

	bad := Begin("sentence-transformers/all-MiniLM-L6-v2", "", "feature")
	bad.Started = base.Add(time.Minute)
	bad.Finish("/models/sentence-transformers/all-MiniLM-L6-v2", 0, 0, errors.New("export failed: model resolution failed"))
	bad.Duration = 2 * time.Second

	require.NoError(t, j.Record(t.Context(), ok))
	require.NoError(t, j.Record(t.Context(), bad))

	entries, err := j.List(t.Context(), 0)
	require.NoError(t, err)

	want := []Entry{*bad, *ok}
	if diff := cmp.Diff(want, entries, cmpopts.EquateApproxTime(time.Millisecond)); diff != "" {
		t.Errorf("entries mismatch (-want +got):\n%s", diff)
	}

	if entries[0].Status != StatusFailed || entries[1].Status != StatusSucceeded {
		t.Errorf("unexpected statuses %q, %q", entries[0].Status, entries[1].Status)
	}

	limited, err := j.List(t.Context(), 1)
	require.NoError(t, err)
	if len(limited) != 1 || limited[0].ID != bad.ID {
		t.Errorf("List(1) = %+v", limited)
	}
}

func TestRecordReplaces(t *testing.T) {
	j := openJournal(t)

	e := Begin("bert-base-uncased", "", "feature")
	require.NoError(t, j.Record(t.Context(), e))

	e.Finish("/models/bert-base-uncased", 4, 100, nil)
	require.NoError(t, j.Record(t.Context(), e))

	entries, err := j.List(t.Context(), 10)
	require.NoError(t, err)
	if len(entries) != 1 || entries[0].Files != 4 {
		t.Errorf("expected one updated entry, got %+v", entries)
	}
}

func TestRecordRequiresID(t *testing.T) {
	j := openJournal(t)
	if err := j.Record(t.Context(), &Entry{Model: "x"}); err == nil {
		t.Fatal("expected an error")
	}
}

func TestReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.db")

	j, err := Open(path)
	require.NoError(t, err)
	e := Begin("dslim/bert-base-NER", "ner", "token")
	e.Finish("/m/ner", 3, 10, nil)
	require.NoError(t, j.Record(t.Context(), e))
	require.NoError(t, j.Close())

	j, err = Open(path)
	require.NoError(t, err)
	defer j.Close()

	entries, err := j.List(t.Context(), 0)
	require.NoError(t, err)
	if len(entries) != 1 || entries[0].ID != e.ID {
		t.Errorf("entries after reopen: %+v", entries)
	}
}

func TestBeginAssignsUniqueIDs(t *testing.T) {
	seen := map[string]bool{}
	for range 100 {
		id := Begin("m", "", "feature").ID
		if seen[id] {
			t.Fatalf("duplicate id %s", id)
		}
		seen[id] = true
	}
}
