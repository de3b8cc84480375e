// Package pipeline implements fastsum's worker pool and orchestrator
// (spec.md §4.2-§4.4, §4.7): file workers that stat and read, hash
// workers that compute one block digest each, a single completion
// worker that advances the per-file state machine, and an orchestrator
// that spawns the fleet, walks directory arguments, and polls the
// fleet-wide termination predicate.
package pipeline

import (
	"fmt"
	"io"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/matejcik/fastsum/internal/progress"
	"github.com/matejcik/fastsum/internal/queue"
	"github.com/matejcik/fastsum/internal/record"
	"github.com/matejcik/fastsum/internal/task"
)

// Queue capacities from spec.md §4.7.
const (
	fileQueueCapacity      = 16384
	hashQueueCapacity      = 16384
	completedQueueGrowth   = 16384
	terminationPollInterval = 100 * time.Millisecond
)

// Options configures an Orchestrator.
type Options struct {
	FileWorkers  int
	HashWorkers  int
	Stdout       io.Writer
	Stderr       io.Writer
	ShowProgress bool
}

// Orchestrator owns the three queues, the worker pools, the big-file
// lock and the atomic counters the termination predicate reads.
//
// It is designed for single use: construct with New, call Run once.
type Orchestrator struct {
	opts Options

	fileQueue      *queue.Queue
	hashQueue      *queue.Queue
	completedQueue *queue.Queue

	bigFile sync.Mutex

	filesPosted  atomic.Int64
	filesDone    atomic.Int64
	dirsInFlight atomic.Int64

	fileWG sync.WaitGroup
	hashWG sync.WaitGroup

	completionDone chan struct{}

	bar   *progress.Bar
	stats *stats
}

// stats tracks run-wide progress for the optional spinner, mirroring
// the counter+String pattern dupedog's scanner/verifier/deduper stages
// use for their own progress bars.
type stats struct {
	filesCompleted atomic.Int64
	bytesHashed    atomic.Int64
	startTime      time.Time
}

func (s *stats) String() string {
	return fmt.Sprintf("hashed %s across %d files in %.1fs",
		humanize.IBytes(uint64(s.bytesHashed.Load())), s.filesCompleted.Load(), time.Since(s.startTime).Seconds())
}

// New creates an Orchestrator ready to Run.
func New(opts Options) *Orchestrator {
	if opts.Stdout == nil {
		opts.Stdout = os.Stdout
	}
	if opts.Stderr == nil {
		opts.Stderr = os.Stderr
	}
	return &Orchestrator{opts: opts}
}

// Run hashes every path (expanding directories recursively), writing
// one digest line to Stdout per successful file and one error line to
// Stderr per failure, then returns once every posted file has reached
// a terminal state (spec.md §4.7's termination predicate).
func (o *Orchestrator) Run(paths []string) {
	o.fileQueue = queue.New(fileQueueCapacity)
	o.hashQueue = queue.New(hashQueueCapacity)
	o.completedQueue = queue.NewDynamic(completedQueueGrowth)
	o.completionDone = make(chan struct{})
	o.bar = progress.New(o.opts.ShowProgress, -1)
	o.stats = &stats{startTime: time.Now()}
	o.bar.Describe(o.stats)

	for i := 0; i < o.opts.FileWorkers; i++ {
		o.fileWG.Add(1)
		go o.fileWorker()
	}
	for i := 0; i < o.opts.HashWorkers; i++ {
		o.hashWG.Add(1)
		go o.hashWorker()
	}
	go o.completionWorker()

	for _, p := range paths {
		o.submitArgument(p)
	}

	for {
		if o.filesPosted.Load() == o.filesDone.Load() && o.dirsInFlight.Load() == 0 {
			break
		}
		time.Sleep(terminationPollInterval)
	}

	// Shut down in producer order: no more file tasks means file workers
	// will post no more hash tasks, so it's only safe to close each
	// queue once the stage that feeds it has fully stopped.
	o.fileQueue.Close()
	o.fileWG.Wait()
	o.hashQueue.Close()
	o.hashWG.Wait()
	o.completedQueue.Close()
	<-o.completionDone

	o.bar.Finish(o.stats)
}

// submitArgument handles one top-level CLI path argument. It is pushed
// as an ordinary file task; the file worker that picks it up stats it
// and redirects to a synchronous walk if it turns out to name a
// directory (see redirectToWalk), so top-level arguments and
// directory entries share one stat-and-classify path.
func (o *Orchestrator) submitArgument(path string) {
	rec := record.New(stripTrailingSlash(path))
	o.filesPosted.Add(1)
	o.fileQueue.Push(&task.FileTask{Record: rec})
}

func stripTrailingSlash(path string) string {
	for len(path) > 1 && path[len(path)-1] == '/' {
		path = path[:len(path)-1]
	}
	return path
}

// reportInvariantBreach is the internal invariant check from spec.md
// §4.4/§7: a file-task completion must only ever be observed while the
// record is STARTED.
func (o *Orchestrator) reportInvariantBreach(path string) {
	fmt.Fprintf(o.opts.Stderr, "While processing %s: invalid state of file in queue\n", path)
}

func (o *Orchestrator) reportError(path string, err error) {
	fmt.Fprintf(o.opts.Stderr, "Error processing %s: %v\n", path, err)
}
