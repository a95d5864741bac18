package index

import (
	"context"
	"fmt"
	"time"
)

// Operation is what an item asks the index stage to do.
type Operation int

const (
	// OpAdd indexes (or re-indexes) a resource.
	OpAdd Operation = iota
	// OpDelete removes a resource's document.
	OpDelete
)

// String returns a human-readable representation of the operation.
func (op Operation) String() string {
	switch op {
	case OpAdd:
		return "add"
	case OpDelete:
		return "delete"
	default:
		return "unknown"
	}
}

// Runnable is deferred work executed on the run stage.
type Runnable func(ctx context.Context) error

// Document is the preprocessed, indexable property map for a resource.
type Document map[string]any

// Item is the pipeline's unit of work: a resource add/delete or a runnable.
// An item sits in at most one queue at a time and is completed exactly once.
type Item struct {
	op       Operation
	id       string
	res      Resource
	run      Runnable
	pri      Priority
	seq      uint64
	task     *Task
	enqueued time.Time
	doc      Document
}

func newResourceItem(task *Task, op Operation, id string, res Resource, pri Priority) *Item {
	return &Item{
		op:       op,
		id:       id,
		res:      res,
		pri:      pri.normalize(),
		task:     task,
		enqueued: time.Now(),
	}
}

func newRunnableItem(task *Task, r Runnable, pri Priority) *Item {
	return &Item{
		run:      r,
		pri:      pri.normalize(),
		task:     task,
		id:       fmt.Sprintf("runnable@%p", r),
		enqueued: time.Now(),
	}
}

// ID returns the resource identifier (or a synthetic id for runnables).
func (i *Item) ID() string { return i.id }

// Priority returns the item's priority.
func (i *Item) Priority() Priority { return i.pri }

// Op returns the item's operation.
func (i *Item) Op() Operation { return i.op }

// complete reports the item's outcome to its owning task, if any.
func (i *Item) complete(success bool) {
	if i.task != nil {
		i.task.completeItem(i, success)
	}
}

type messageKind uint8

const (
	msgData messageKind = iota
	msgCommitCheck
)

// message is what the queues carry: either a data item or the commit-check control message.
type message struct {
	kind messageKind
	item *Item
}

func dataMessage(i *Item) message { return message{kind: msgData, item: i} }

var commitCheck = message{kind: msgCommitCheck}

func (m message) priority() Priority {
	if m.kind == msgCommitCheck {
		return PriorityCommit
	}
	return m.item.pri
}

func (m message) isCommitCheck() bool { return m.kind == msgCommitCheck }
