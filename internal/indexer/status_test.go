package indexer

import (
	"testing"

	"github.com/google/uuid"
)

func TestStatusBoard_GetUnknownIsIdle(t *testing.T) {
	b := NewStatusBoard()
	if st := b.Get(uuid.New()); st.IsIndexing || st.ErrorMessage != "" {
		t.Errorf("unknown document status = %+v", st)
	}
}

func TestStatusBoard_SetAndClear(t *testing.T) {
	b := NewStatusBoard()
	id := uuid.New()

	b.Set(id, Status{IsIndexing: true})
	if !b.Get(id).IsIndexing {
		t.Error("expected indexing")
	}
	b.Set(id, Status{ErrorMessage: "boom"})
	if st := b.Get(id); st.IsIndexing || st.ErrorMessage != "boom" {
		t.Errorf("status = %+v", st)
	}
	if len(b.Snapshot()) != 1 {
		t.Error("expected one tracked status")
	}

	b.Set(id, Status{})
	if len(b.Snapshot()) != 0 {
		t.Error("idle status without error should not be tracked")
	}
}

func TestStatusBoard_SnapshotIsCopy(t *testing.T) {
	b := NewStatusBoard()
	id := uuid.New()
	b.Set(id, Status{IsIndexing: true})

	snap := b.Snapshot()
	snap[id] = Status{ErrorMessage: "changed"}
	if b.Get(id).ErrorMessage != "" {
		t.Error("mutating a snapshot changed the board")
	}
}

func TestStatusBoard_Subscribe(t *testing.T) {
	b := NewStatusBoard()
	id := uuid.New()
	events, unsubscribe := b.Subscribe()

	b.Set(id, Status{IsIndexing: true})
	b.Remove(id)

	ev := <-events
	if ev.DocumentID != id || !ev.Status.IsIndexing {
		t.Errorf("first event = %+v", ev)
	}
	ev = <-events
	if ev.DocumentID != id || ev.Status.IsIndexing {
		t.Errorf("second event = %+v", ev)
	}

	unsubscribe()
	unsubscribe()
	if _, open := <-events; open {
		t.Error("channel should be closed after unsubscribe")
	}
	// Publishing after unsubscribe must not panic.
	b.Set(id, Status{IsIndexing: true})
}

func TestStatusBoard_SlowSubscriberDoesNotBlock(t *testing.T) {
	b := NewStatusBoard()
	_, unsubscribe := b.Subscribe()
	defer unsubscribe()

	id := uuid.New()
	for i := 0; i < subscriberBuffer*3; i++ {
		b.Set(id, Status{IsIndexing: i%2 == 0})
	}
}
