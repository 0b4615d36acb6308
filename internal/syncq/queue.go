// Package syncq keeps fruitctl commands that could not reach the API so a
// later `fruitctl sync` can replay them with their original idempotency keys.
package syncq

import (
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"github.com/cockroachdb/errors"
)

type Command struct {
	Method         string         `json:"method"`
	Path           string         `json:"path"`
	Body           map[string]any `json:"body,omitempty"`
	IdempotencyKey string         `json:"idempotency_key"`
	QueuedAt       time.Time      `json:"queued_at"`
}

type Queue struct {
	path string
}

func Open(dir string) (*Queue, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, errors.Wrap(err, "create queue dir")
	}
	return &Queue{path: filepath.Join(dir, "queue.json")}, nil
}

func (q *Queue) Load() ([]Command, error) {
	raw, err := os.ReadFile(q.path)
	if err != nil {
		if os.IsNotExist(err) {
			return []Command{}, nil
		}
		return nil, errors.Wrap(err, "read queue")
	}
	if len(raw) == 0 {
		return []Command{}, nil
	}
	var out []Command
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, errors.Wrap(err, "decode queue")
	}
	return out, nil
}

func (q *Queue) Save(commands []Command) error {
	raw, err := json.MarshalIndent(commands, "", "  ")
	if err != nil {
		return errors.Wrap(err, "encode queue")
	}
	tmp := q.path + ".tmp"
	if err := os.WriteFile(tmp, raw, 0o600); err != nil {
		return errors.Wrap(err, "write queue")
	}
	return errors.Wrap(os.Rename(tmp, q.path), "replace queue")
}

// Push appends cmd unless a command with the same idempotency key is
// already queued.
func (q *Queue) Push(cmd Command) error {
	commands, err := q.Load()
	if err != nil {
		return err
	}
	for _, c := range commands {
		if cmd.IdempotencyKey != "" && c.IdempotencyKey == cmd.IdempotencyKey {
			return nil
		}
	}
	if cmd.QueuedAt.IsZero() {
		cmd.QueuedAt = time.Now().UTC()
	}
	return q.Save(append(commands, cmd))
}

// Outcome classifies one replay attempt.
type Outcome int

const (
	// Done drops the command: it succeeded or was rejected for good.
	Done Outcome = iota
	// Keep leaves the command queued for the next sync.
	Keep
)

// Replay runs fn over the queued commands in order and keeps only those
// fn asks to keep. It returns how many were dropped.
func (q *Queue) Replay(fn func(Command) Outcome) (int, error) {
	commands, err := q.Load()
	if err != nil {
		return 0, err
	}
	kept := commands[:0]
	for _, c := range commands {
		if fn(c) == Keep {
			kept = append(kept, c)
		}
	}
	dropped := len(commands) - len(kept)
	if dropped == 0 {
		return 0, nil
	}
	return dropped, q.Save(kept)
}
