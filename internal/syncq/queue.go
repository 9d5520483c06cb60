// Package syncq keeps candy earned while offline until `pk sync` replays it.
package syncq

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"

	"pokeclicker/internal/candy"

	"github.com/google/uuid"
)

type Entry struct {
	Amount         candy.Amount `json:"amount"`
	IdempotencyKey string       `json:"idempotency_key"`
	QueuedAt       time.Time    `json:"queued_at"`
}

type FlushResult struct {
	Sent      int          `json:"sent"`
	Remaining int          `json:"remaining"`
	Total     candy.Amount `json:"total"`
}

type Queue struct {
	mu   sync.Mutex
	path string
	now  func() time.Time
}

func Open(dir string) (*Queue, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, err
	}
	return &Queue{path: filepath.Join(dir, "queue.json"), now: time.Now}, nil
}

func (q *Queue) Load() ([]Entry, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.load()
}

func (q *Queue) load() ([]Entry, error) {
	raw, err := os.ReadFile(q.path)
	if err != nil {
		if os.IsNotExist(err) {
			return []Entry{}, nil
		}
		return nil, err
	}
	if len(raw) == 0 {
		return []Entry{}, nil
	}
	var out []Entry
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (q *Queue) save(entries []Entry) error {
	raw, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return err
	}
	tmp := q.path + ".tmp"
	if err := os.WriteFile(tmp, raw, 0o600); err != nil {
		return err
	}
	return os.Rename(tmp, q.path)
}

// Push queues amount under a fresh idempotency key. Zero amounts are dropped.
func (q *Queue) Push(amount candy.Amount) (Entry, error) {
	entry := Entry{Amount: amount, IdempotencyKey: uuid.NewString(), QueuedAt: q.now().UTC()}
	if amount.IsZero() {
		return entry, nil
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	entries, err := q.load()
	if err != nil {
		return Entry{}, err
	}
	entries = append(entries, entry)
	return entry, q.save(entries)
}

// Pending sums everything still queued.
func (q *Queue) Pending() (candy.Amount, int, error) {
	entries, err := q.Load()
	if err != nil {
		return candy.Zero, 0, err
	}
	total := candy.Zero
	for _, e := range entries {
		total = total.Add(e.Amount)
	}
	return total, len(entries), nil
}

// Flush sends entries in order and stops at the first failure. Sent entries
// are removed; the rest stay queued under the same idempotency keys.
func (q *Queue) Flush(ctx context.Context, send func(context.Context, Entry) error) (FlushResult, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := FlushResult{Total: candy.Zero}
	entries, err := q.load()
	if err != nil {
		return out, err
	}
	var sendErr error
	sent := 0
	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			sendErr = err
			break
		}
		if err := send(ctx, e); err != nil {
			sendErr = err
			break
		}
		sent++
		out.Total = out.Total.Add(e.Amount)
	}
	out.Sent = sent
	out.Remaining = len(entries) - sent
	if sent > 0 {
		if err := q.save(entries[sent:]); err != nil {
			return out, err
		}
	}
	return out, sendErr
}
