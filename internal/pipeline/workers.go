package pipeline

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/matejcik/fastsum/internal/digest"
	"github.com/matejcik/fastsum/internal/record"
	"github.com/matejcik/fastsum/internal/task"
	"github.com/matejcik/fastsum/internal/xmem"
)

// fileWorker pops file tasks, stats and reads each one, and feeds the
// hash queue one level-1 block at a time (spec.md §4.2).
func (o *Orchestrator) fileWorker() {
	defer o.fileWG.Done()
	for {
		item := o.fileQueue.Pop()
		if item == nil {
			return
		}
		ft := item.(*task.FileTask)
		if o.redirectToWalk(ft.Record) {
			continue
		}
		o.readAndDispatch(ft.Record)
		o.completedQueue.Push(ft)
	}
}

// redirectToWalk stats path, following symlinks. Readdir does not
// follow symlinks, so a symlink to a directory is discovered only
// here, as a file task that turns out to be a directory after all. In
// that case it is walked synchronously in place of being hashed, and
// the premature filesPosted count from the walk that enqueued it is
// corrected. Anything that is neither a regular file nor a directory
// (FIFOs, sockets, devices, ...) is reported as an error instead of
// being handed to readAndDispatch, which would block or read forever.
func (o *Orchestrator) redirectToWalk(rec *record.File) bool {
	info, err := os.Stat(rec.Path)
	if err != nil {
		rec.Err = err
		return false
	}
	if info.IsDir() {
		// Increment dirsInFlight before undoing the placeholder file
		// count, so the termination predicate never observes a window
		// where both counters look settled before the walk has begun.
		o.dirsInFlight.Add(1)
		o.filesPosted.Add(-1)
		o.walkDirectory(rec.Path)
		return true
	}
	if !info.Mode().IsRegular() {
		rec.Err = fmt.Errorf("Not a regular file")
		return false
	}
	rec.Size = info.Size()
	return false
}

// readAndDispatch opens rec.Path and dispatches one HashTask per
// 16KiB block, per the digest definition in spec.md §6. It sets
// rec.WorkPosted to the number of blocks actually dispatched, which
// is less than the chunk count predicted by Size if the file shrank
// between stat and read. It never exceeds that count: a file that
// grows past it stops the read loop with an error.
func (o *Orchestrator) readAndDispatch(rec *record.File) {
	if rec.Err != nil {
		return
	}

	chunks := digest.Chunks(rec.Size)
	rec.L1Hashes = xmem.Alloc(chunks * digest.Size)

	// The spec's own open question about the big-file lock concludes
	// that a clean implementation skips it entirely for small files;
	// only files at or above the threshold pay for serialization.
	if rec.Size >= digest.BigFileThreshold {
		o.bigFile.Lock()
		defer o.bigFile.Unlock()
	}

	f, err := os.Open(rec.Path)
	if err != nil {
		rec.Err = err
		rec.L1Hashes = nil
		return
	}
	defer f.Close()

	posted := 0
	for {
		buf := xmem.Alloc(digest.BlockSize)
		n, rerr := io.ReadFull(f, buf)
		if n == 0 {
			break
		}
		if posted >= chunks {
			rec.Err = fmt.Errorf("file grew while hashing")
			break
		}
		out := rec.L1Hashes[posted*digest.Size : (posted+1)*digest.Size]
		o.stats.bytesHashed.Add(int64(n))
		o.hashQueue.Push(&task.HashTask{Data: buf[:n], Out: out, Record: rec})
		posted++

		if rerr == io.EOF || rerr == io.ErrUnexpectedEOF {
			break
		}
		if rerr != nil {
			rec.Err = rerr
			break
		}
	}

	rec.L1Hashes = rec.L1Hashes[:posted*digest.Size]
	rec.WorkPosted = posted
}

// hashWorker pops hash tasks and fills in Out with the SHA-256 of
// Data, for both level-1 blocks and the level-2 digest-of-digests
// (spec.md §6).
func (o *Orchestrator) hashWorker() {
	defer o.hashWG.Done()
	for {
		item := o.hashQueue.Pop()
		if item == nil {
			return
		}
		ht := item.(*task.HashTask)
		sum := digest.Sum(ht.Data)
		copy(ht.Out, sum[:])
		o.completedQueue.Push(ht)
	}
}

// completionWorker is the single consumer of the completed queue. It
// owns every record's state transitions exclusively, so record.File
// needs no mutex of its own: each handoff into this goroutine happens
// through a queue push/pop pair, which is already a happens-before
// edge (spec.md §4.4, §9).
func (o *Orchestrator) completionWorker() {
	defer close(o.completionDone)
	for {
		item := o.completedQueue.Pop()
		if item == nil {
			return
		}
		switch t := item.(type) {
		case *task.FileTask:
			o.handleFileTaskCompletion(t.Record)
		case *task.HashTask:
			o.handleHashCompletion(t)
		}
		o.bar.Describe(o.stats)
	}
}

// handleFileTaskCompletion processes a file worker's signal that it
// has finished dispatching every level-1 block for rec. A record must
// still be STARTED when this arrives; anything else is the internal
// invariant breach spec.md §7 documents.
func (o *Orchestrator) handleFileTaskCompletion(rec *record.File) {
	if rec.State != record.Started {
		o.reportInvariantBreach(rec.Path)
		return
	}
	if rec.Err != nil {
		o.reportError(rec.Path, rec.Err)
		o.filesDone.Add(1)
		o.stats.filesCompleted.Add(1)
		return
	}
	rec.State = record.Posted
	if rec.WorkCompleted == rec.WorkPosted {
		// Every block finished hashing before the file task itself did.
		o.finishLevel1(rec)
	}
}

// handleHashCompletion processes one finished hash task: a level-1
// block, or the level-2 digest-of-digests.
func (o *Orchestrator) handleHashCompletion(ht *task.HashTask) {
	rec := ht.Record
	if ht.Level2 {
		o.finishLevel2(rec)
		return
	}
	rec.WorkCompleted++
	// Only POSTED may trigger finish-level-1 here: while still STARTED,
	// WorkPosted has not reached its final value yet, and finishing now
	// would race the file task that is still counting blocks.
	if rec.State == record.Posted && rec.WorkCompleted == rec.WorkPosted {
		o.finishLevel1(rec)
	}
}

// finishLevel1 marks rec's block hashes complete and queues the
// level-2 digest-of-digests over them.
func (o *Orchestrator) finishLevel1(rec *record.File) {
	rec.State = record.L1Done
	o.hashQueue.Push(&task.HashTask{
		Data:   rec.L1Hashes,
		Out:    rec.Digest[:],
		Record: rec,
		Level2: true,
	})
}

// finishLevel2 emits the final digest line and marks rec done.
func (o *Orchestrator) finishLevel2(rec *record.File) {
	fmt.Fprintf(o.opts.Stdout, "%x  %s\n", rec.Digest, rec.Path)
	o.filesDone.Add(1)
	o.stats.filesCompleted.Add(1)
}

// walkDirectory synchronously and recursively lists path, pushing one
// FileTask per non-directory entry and recursing directly into real
// subdirectories (spec.md §4.6). The caller must have already
// incremented dirsInFlight; walkDirectory balances it on return.
func (o *Orchestrator) walkDirectory(path string) {
	defer o.dirsInFlight.Add(-1)

	entries, err := os.ReadDir(path)
	if err != nil {
		// Route through the completed queue, like every other per-file
		// error, so the completion worker stays the single writer that
		// serializes stdout/stderr; a direct write here would interleave
		// with it across concurrently walking file workers.
		rec := record.New(path)
		rec.Err = err
		o.filesPosted.Add(1)
		o.completedQueue.Push(&task.FileTask{Record: rec})
		return
	}

	for _, entry := range entries {
		child := filepath.Join(path, entry.Name())
		if entry.IsDir() {
			o.dirsInFlight.Add(1)
			o.walkDirectory(child)
			continue
		}
		rec := record.New(child)
		o.filesPosted.Add(1)
		o.fileQueue.Push(&task.FileTask{Record: rec})
	}
}
