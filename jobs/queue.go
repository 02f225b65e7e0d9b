package jobs

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/smallnest/murmur/internal/logger"
	"github.com/smallnest/murmur/memory"
	"go.uber.org/zap"
)

// Task is one unit of background memory work.
type Task interface {
	taskName() string
}

// SaveAtomTask persists an atom and derives its vector.
type SaveAtomTask struct {
	Atom memory.Atom
}

func (SaveAtomTask) taskName() string { return "save_atom" }

// UpdateDailyTask folds new conversation text into the day's rolling
// summary.
type UpdateDailyTask struct {
	Day       string
	SessionID string
	Text      string
}

func (UpdateDailyTask) taskName() string { return "update_daily" }

// LogLedgerTask records an influence ledger entry.
type LogLedgerTask struct {
	Entry memory.LedgerEntry
}

func (LogLedgerTask) taskName() string { return "log_ledger" }

// Queue processes memory write tasks on a single background worker, in
// enqueue order. A task failure is logged and the worker moves on.
type Queue struct {
	store   *memory.Store
	vectors *VectorJobs

	maxSummaryBytes int

	tasks   chan Task
	mu      sync.Mutex
	running bool
	done    chan struct{}
}

// QueueOptions configures the background queue.
type QueueOptions struct {
	// BufferSize bounds the pending task channel.
	BufferSize int
	// MaxSummaryBytes caps the rolling summary in UTF-8 bytes.
	MaxSummaryBytes int
}

// NewQueue creates a background queue over the store and vector jobs.
func NewQueue(store *memory.Store, vectors *VectorJobs, opts QueueOptions) *Queue {
	if opts.BufferSize <= 0 {
		opts.BufferSize = 256
	}
	if opts.MaxSummaryBytes <= 0 {
		opts.MaxSummaryBytes = 50000
	}
	return &Queue{
		store:           store,
		vectors:         vectors,
		maxSummaryBytes: opts.MaxSummaryBytes,
		tasks:           make(chan Task, opts.BufferSize),
	}
}

// Start launches the worker. Starting a running queue is a no-op.
func (q *Queue) Start(ctx context.Context) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.running {
		return
	}
	q.running = true
	q.done = make(chan struct{})

	go q.worker(ctx)
	logger.Info("background queue started")
}

// Stop drains pending tasks and waits for the worker to exit.
func (q *Queue) Stop() {
	q.mu.Lock()
	if !q.running {
		q.mu.Unlock()
		return
	}
	q.running = false
	close(q.tasks)
	done := q.done
	q.mu.Unlock()

	<-done
	logger.Info("background queue stopped")
}

// Enqueue submits a task. Returns an error when the queue is stopped or
// the buffer is full; callers treat both as a dropped maintenance task,
// not a conversational failure.
func (q *Queue) Enqueue(task Task) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if !q.running {
		return fmt.Errorf("queue is not running")
	}

	select {
	case q.tasks <- task:
		logger.Debug("task enqueued", zap.String("type", task.taskName()))
		return nil
	default:
		return fmt.Errorf("queue is full")
	}
}

func (q *Queue) worker(ctx context.Context) {
	defer close(q.done)

	for task := range q.tasks {
		if err := q.process(ctx, task); err != nil {
			logger.Error("background task failed",
				zap.String("type", task.taskName()), zap.Error(err))
		}
	}
}

func (q *Queue) process(ctx context.Context, task Task) error {
	switch t := task.(type) {
	case SaveAtomTask:
		return q.saveAtom(ctx, t)
	case UpdateDailyTask:
		return q.updateDaily(ctx, t)
	case LogLedgerTask:
		_, err := q.store.LogLedger(ctx, &t.Entry)
		return err
	default:
		logger.Warn("unknown task type", zap.String("type", task.taskName()))
		return nil
	}
}

func (q *Queue) saveAtom(ctx context.Context, task SaveAtomTask) error {
	atom, err := q.store.CreateAtom(ctx, &task.Atom)
	if err != nil {
		return err
	}
	// Vector maintenance is best-effort once the row is durable.
	if q.vectors != nil {
		if err := q.vectors.UpsertAtom(ctx, atom); err != nil {
			logger.Warn("atom saved without vector", zap.Int64("id", atom.ID))
		}
	}
	return nil
}

func (q *Queue) updateDaily(ctx context.Context, task UpdateDailyTask) error {
	if task.Text == "" {
		return nil
	}

	dc, err := q.store.GetOrCreateDaily(ctx, task.Day, task.SessionID)
	if err != nil {
		return err
	}

	summary := rollSummary(dc.RollingSummary, task.Text, q.maxSummaryBytes)
	_, err = q.store.UpdateDaily(ctx, task.Day, memory.DailyUpdate{RollingSummary: &summary})
	return err
}

// rollSummary appends new text to the rolling summary and trims the
// front to stay under maxBytes of UTF-8, keeping the newest content.
func rollSummary(current, text string, maxBytes int) string {
	addition := truncateRunes(strings.TrimSpace(text), 200)

	combined := addition
	if current != "" {
		combined = current + "\n" + addition
	}
	if len(combined) <= maxBytes {
		return combined
	}

	cut := combined[len(combined)-maxBytes:]
	// Never start mid-rune after a byte cut.
	for i := 0; i < utf8.UTFMax && i < len(cut); i++ {
		if utf8.RuneStart(cut[i]) {
			return cut[i:]
		}
	}
	return cut
}
