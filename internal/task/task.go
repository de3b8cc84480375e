// Package task defines the tagged task variants that flow through
// fastsum's three queues, per spec.md §3 and the design note in §9
// favoring an explicit sum type over one struct overlaying both shapes.
package task

import "github.com/matejcik/fastsum/internal/record"

// Task is implemented by FileTask and HashTask, the two task variants
// carried as opaque items through internal/queue.
type Task interface {
	taskVariant()
}

// FileTask flows through the file queue as "a path to stat and read",
// and through the completed queue as the file-worker's signal that it
// has finished dispatching every level-1 block for Record (a
// "file-task completion" in spec.md §4.4).
type FileTask struct {
	Record *record.File
}

func (FileTask) taskVariant() {}

// HashTask flows through the hash queue as "a buffer to hash", and
// through the completed queue once a hash-worker has filled Out.
//
// For a level-1 block, Data is a freshly allocated, exclusively owned
// read buffer and Out is a 32-byte slice into Record.L1Hashes. For the
// level-2 task (Level2 true), Data is Record.L1Hashes itself — not
// owned by the task — and Out is Record.Digest[:].
type HashTask struct {
	Data   []byte
	Out    []byte
	Record *record.File
	Level2 bool
}

func (HashTask) taskVariant() {}
