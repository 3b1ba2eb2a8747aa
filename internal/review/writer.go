package review

import (
	"sync"

	"github.com/sirupsen/logrus"

	"image-bias-audit/backend/internal/store"
)

// Writer appends disagreeing cases to the persistent review queue without
// blocking the evaluation path. Each enqueue is its own append; there is no
// shared buffer to lose on crash beyond the in-flight goroutines, which
// Close waits out.
type Writer struct {
	db *store.Database
	wg sync.WaitGroup

	mu     sync.Mutex
	closed bool
}

// NewWriter wraps the database in an asynchronous queue writer.
func NewWriter(db *store.Database) *Writer {
	return &Writer{db: db}
}

// Enqueue persists the item in the background. Evaluation results are valid
// whether or not the write succeeds; failures are logged, never returned.
func (w *Writer) Enqueue(item store.ReviewItem) {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		logrus.WithField("case_id", item.CaseID).Warn("review writer closed, dropping item")
		return
	}
	w.wg.Add(1)
	w.mu.Unlock()

	go func() {
		defer w.wg.Done()
		if err := w.db.AppendReviewItem(&item); err != nil {
			logrus.WithError(err).WithField("case_id", item.CaseID).Warn("append review item")
		}
	}()
}

// Flush waits for in-flight appends without closing the writer. Callers
// must not enqueue concurrently with Flush.
func (w *Writer) Flush() {
	w.wg.Wait()
}

// Close waits for all in-flight appends to land.
func (w *Writer) Close() {
	w.mu.Lock()
	w.closed = true
	w.mu.Unlock()
	w.wg.Wait()
}
