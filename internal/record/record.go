// Package record implements the per-file state machine described in
// spec.md §3-§4.4: a file moves through STARTED, POSTED and L1DONE as
// its level-1 blocks and level-2 digest complete.
package record

// State is one phase of a File's lifecycle.
type State int32

const (
	// Started is the state from creation until the owning file-worker
	// has posted every level-1 hash-task and pushed the file-task
	// completion that confirms WorkPosted.
	Started State = iota
	// Posted is entered once the file-task completion has been
	// processed; WorkPosted is now final and block completions that
	// arrive are compared against it directly.
	Posted
	// L1Done is entered once every level-1 block has completed and the
	// level-2 hash-task has been scheduled; the next completion for
	// this record is necessarily the level-2 result.
	L1Done
)

func (s State) String() string {
	switch s {
	case Started:
		return "STARTED"
	case Posted:
		return "POSTED"
	case L1Done:
		return "L1DONE"
	default:
		return "UNKNOWN"
	}
}

// File is the per-path record threaded through the pipeline's three
// queues. Its fields are mutated by exactly one goroutine at a time:
// the file-worker that owns it during read-and-dispatch, and
// afterwards the single completion worker — the happens-before edge is
// the push/pop pair on the completed queue that hands it over, so File
// itself carries no lock.
type File struct {
	Path string
	Size int64

	// L1Hashes is the concatenation of level-1 block digests, 32 bytes
	// each, in file-offset order. Its length is always WorkPosted*32.
	L1Hashes []byte

	// WorkPosted is the number of level-1 hash-tasks dispatched for
	// this file; written once by the file-worker before it posts the
	// file-task completion. WorkCompleted is how many of those level-1
	// tasks have completed (the level-2 task is not counted); it is
	// incremented only by the completion worker.
	WorkPosted    int
	WorkCompleted int

	State State

	// Err holds the first error encountered while stat-ing or reading
	// the file. A non-nil Err short-circuits finish-level-1: the error
	// is reported and the record freed without ever scheduling a
	// level-2 hash-task.
	Err error

	// Digest is the level-2 result, valid once State is L1Done and the
	// level-2 hash-task has completed.
	Digest [32]byte
}

// New creates a File record in the STARTED state.
func New(path string) *File {
	return &File{Path: path, State: Started}
}
