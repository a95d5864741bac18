package crawler

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func receive(t *testing.T, d *debouncer) []change {
	t.Helper()
	select {
	case batch := <-d.output():
		return batch
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for debounced batch")
		return nil
	}
}

func TestDebouncer_CoalescesPerPath(t *testing.T) {
	// Given: a debouncer with a short window
	d := newDebouncer(30 * time.Millisecond)
	defer d.stop()

	// When: bursts arrive for several paths
	d.add(change{rel: "new.txt", op: opCreate})
	d.add(change{rel: "new.txt", op: opModify})
	d.add(change{rel: "edited.txt", op: opModify})
	d.add(change{rel: "edited.txt", op: opModify})
	d.add(change{rel: "replaced.txt", op: opDelete})
	d.add(change{rel: "replaced.txt", op: opCreate})
	d.add(change{rel: "gone.txt", op: opModify})
	d.add(change{rel: "gone.txt", op: opDelete})

	// Then: one batch with one change per path, in first-seen order
	batch := receive(t, d)
	assert.Equal(t, []change{
		{rel: "new.txt", op: opCreate},
		{rel: "edited.txt", op: opModify},
		{rel: "replaced.txt", op: opModify},
		{rel: "gone.txt", op: opDelete},
	}, batch)
}

func TestDebouncer_CreateThenDeleteCancels(t *testing.T) {
	// Given: a debouncer
	d := newDebouncer(30 * time.Millisecond)
	defer d.stop()

	// When: a file is created and removed inside the window, next to a real change
	d.add(change{rel: "temp.txt", op: opCreate})
	d.add(change{rel: "temp.txt", op: opDelete})
	d.add(change{rel: "kept.txt", op: opModify})

	// Then: only the real change is emitted
	batch := receive(t, d)
	require.Len(t, batch, 1)
	assert.Equal(t, "kept.txt", batch[0].rel)
}

func TestDebouncer_StopIsIdempotent(t *testing.T) {
	d := newDebouncer(time.Hour)
	d.add(change{rel: "a", op: opModify})
	d.stop()
	d.stop()

	_, ok := <-d.output()
	assert.False(t, ok)

	// adds after stop are dropped
	d.add(change{rel: "b", op: opModify})
}
