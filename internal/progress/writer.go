package progress

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"log/slog"

	applog "github.com/tatami-reader/tatami/internal/log"
	"github.com/tatami-reader/tatami/pkg/models"
)

// DefaultDebounce is how long the writer waits after the last position
// change before touching disk. Rapid page flips coalesce into one write.
const DefaultDebounce = 500 * time.Millisecond

// Writer debounces position saves onto a single background goroutine.
// Save never blocks; Close performs a final synchronous flush so the last
// position is never lost on exit.
type Writer struct {
	store    *Store
	debounce time.Duration
	log      *slog.Logger

	stamp atomic.Int64

	mu      sync.Mutex
	pending *stamped
	timer   *time.Timer
	closed  bool
}

type stamped struct {
	pos   models.ReadingPosition
	stamp int64
}

// NewWriter wraps the store. A non-positive debounce gets the default.
func NewWriter(store *Store, debounce time.Duration) *Writer {
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	return &Writer{
		store:    store,
		debounce: debounce,
		log:      applog.WithComponent("progress"),
	}
}

// Save records pos as the latest position and (re)arms the debounce timer.
// Stamps are assigned here, in call order, so the store's stale-write guard
// sees writes in the order the reader produced them even if flushes race.
func (w *Writer) Save(pos models.ReadingPosition) {
	s := &stamped{pos: pos, stamp: w.stamp.Add(1)}

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return
	}
	w.pending = s
	if w.timer == nil {
		w.timer = time.AfterFunc(w.debounce, w.fire)
	} else {
		w.timer.Reset(w.debounce)
	}
}

func (w *Writer) fire() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := w.Flush(ctx); err != nil {
		w.log.Warn("position flush failed", slog.Any("err", err))
	}
}

// Flush writes the pending position, if any, synchronously.
func (w *Writer) Flush(ctx context.Context) error {
	w.mu.Lock()
	s := w.pending
	w.pending = nil
	if w.timer != nil {
		w.timer.Stop()
	}
	w.mu.Unlock()

	if s == nil {
		return nil
	}
	err := w.store.SavePosition(ctx, s.pos, s.stamp)
	if errors.Is(err, ErrStaleWrite) {
		// A newer write already landed; nothing was lost.
		return nil
	}
	return err
}

// Close flushes the pending position and stops accepting saves.
func (w *Writer) Close() error {
	w.mu.Lock()
	w.closed = true
	w.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return w.Flush(ctx)
}
