// Package scan implements the directory-to-plan-tree pipeline: discover
// candidate files, extract DICOM headers on a worker pool, join doses and
// structure sets to their plans, and publish an immutable result tree.
package scan

import (
	"errors"
	"fmt"
	"path/filepath"
	"runtime"
	"sync"

	"github.com/gofrs/uuid"

	"github.com/cutright/rtscan/internal/dicom"
)

// State is a run's position in the pipeline.
type State string

const (
	StateIdle          State = "idle"
	StateDiscovering   State = "discovering"
	StateExtracting    State = "extracting"
	StateResolving     State = "resolving"
	StateMaterialized  State = "materialized"
	StateDetailParsing State = "detail_parsing"
	StateDone          State = "done"
	StateFailed        State = "failed"
	StateSuperseded    State = "superseded"
)

// ErrSuperseded is reported by runs abandoned because a newer run started.
var ErrSuperseded = errors.New("run superseded by a newer scan")

// Options configures one run.
type Options struct {
	// Recurse walks subdirectories of the root.
	Recurse bool
	// Workers sizes both worker pools; <= 0 means runtime.NumCPU().
	Workers int
	// KnownBadPatterns overrides the reader's vendor defect patterns when
	// non-empty.
	KnownBadPatterns []string
	// Observer receives progress and results; nil means no notifications.
	Observer Observer
}

// Scanner starts runs and enforces supersession: only the most recently
// started run publishes results or notifies its observer. Older runs drain
// their pools naturally and discard everything at the publish step.
type Scanner struct {
	mu         sync.Mutex
	generation uint64
}

// NewScanner returns a Scanner with no runs started.
func NewScanner() *Scanner {
	return &Scanner{}
}

// Start launches a run over root and returns its handle immediately. Any
// run still in flight is superseded.
func (s *Scanner) Start(root string, opts Options) *Run {
	s.mu.Lock()
	s.generation++
	gen := s.generation
	s.mu.Unlock()

	if opts.Observer == nil {
		opts.Observer = NopObserver{}
	}

	reader := dicom.NewReader()
	if len(opts.KnownBadPatterns) > 0 {
		reader.KnownBadPatterns = opts.KnownBadPatterns
	}

	r := &Run{
		ID:      uuid.Must(uuid.NewV4()),
		scanner: s,
		gen:     gen,
		root:    root,
		opts:    opts,
		reader:  reader,
		state:   StateIdle,
		done:    make(chan struct{}),
	}
	go r.execute()
	return r
}

func (s *Scanner) isCurrent(gen uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.generation == gen
}

// Run is the handle for one pipeline execution. Each run owns its
// AssociationIndex; nothing is shared between concurrent runs.
type Run struct {
	ID      uuid.UUID
	scanner *Scanner
	gen     uint64
	root    string
	opts    Options
	reader  *dicom.Reader

	mu    sync.Mutex
	state State
	tree  *ResultTree
	err   error

	done chan struct{}
}

// Wait blocks until the run finishes and returns its error, if any.
// Superseded runs return ErrSuperseded.
func (r *Run) Wait() error {
	<-r.done
	return r.Err()
}

// Done is closed when the run has finished, failed or been superseded.
func (r *Run) Done() <-chan struct{} { return r.done }

// Tree returns the published ResultTree, nil until the run reaches
// StateMaterialized and always nil for failed or superseded runs.
func (r *Run) Tree() *ResultTree {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.tree
}

// Err returns the run's terminal error, nil while running or on success.
func (r *Run) Err() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.err
}

// State returns the run's current pipeline state.
func (r *Run) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

func (r *Run) execute() {
	defer close(r.done)

	r.setState(StateDiscovering)
	r.notifyProgress(Event{Stage: StageDiscovering, Label: r.root, Fraction: 0})

	paths, err := EnumerateFiles(r.root, r.opts.Recurse)
	if err != nil {
		r.fail(fmt.Errorf("discover: %w", err))
		return
	}
	r.notifyProgress(Event{
		Stage:    StageDiscovering,
		Label:    fmt.Sprintf("%d candidate files", len(paths)),
		Fraction: 1.0,
	})

	r.setState(StateExtracting)
	ix := NewAssociationIndex()
	if fatal := r.extract(paths, ix); fatal != nil {
		r.fail(fatal)
		return
	}

	// Hard barrier: every extraction outcome is indexed before the joins
	// run, because association needs the complete reference graph.
	r.setState(StateResolving)
	r.notifyProgress(Event{Stage: StageResolving, Label: "resolving associations", Fraction: 0})
	ix.Resolve()
	tree := ix.Materialize(len(paths))
	r.notifyProgress(Event{Stage: StageResolving, Label: "associations resolved", Fraction: 1.0})

	if !r.publish(tree) {
		return
	}
	r.opts.Observer.TreeReady(tree)

	r.setState(StateDetailParsing)
	n := r.parseDetails(tree)

	if r.current() {
		r.opts.Observer.ParsingComplete(n)
		r.setState(StateDone)
	} else {
		r.supersede()
	}
}

// extract runs the header pool over paths, feeding outcomes into ix. It
// returns the fatal decode error, if any; the pool is always drained fully
// first so abandoned workers never touch a newer run's state.
func (r *Run) extract(paths []string, ix *AssociationIndex) error {
	total := len(paths)
	if total == 0 {
		r.notifyProgress(Event{Stage: StageExtracting, Label: "no files", Fraction: 1.0})
		return nil
	}

	workers := poolSize(r.opts.Workers, total)

	type outcome struct {
		path string
		rec  *dicom.TagRecord
		err  error
	}
	taskChan := make(chan string, total)
	resultChan := make(chan outcome, total)

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for path := range taskChan {
				rec, err := r.reader.ReadHeader(path)
				resultChan <- outcome{path: path, rec: rec, err: err}
			}
		}()
	}

	for _, path := range paths {
		taskChan <- path
	}
	close(taskChan)

	go func() {
		wg.Wait()
		close(resultChan)
	}()

	completed := 0
	var fatal error
	for out := range resultChan {
		completed++
		if fatal == nil {
			switch {
			case out.err == nil:
				ix.Add(out.rec)
			default:
				var skip *dicom.SkipError
				var decode *dicom.FatalDecodeError
				switch {
				case errors.As(out.err, &skip):
					ix.AddSkip(skip.Path, skip.Reason)
				case errors.As(out.err, &decode):
					fatal = decode
				default:
					ix.AddSkip(out.path, dicom.SkipNotDICOM)
				}
			}
		}
		r.notifyProgress(Event{
			Stage:    StageExtracting,
			Label:    filepath.Base(out.path),
			Fraction: float64(completed) / float64(total),
		})
	}
	return fatal
}

// publish installs the tree on the handle, unless a newer run has started,
// in which case everything this run produced is discarded.
func (r *Run) publish(tree *ResultTree) bool {
	if !r.current() {
		r.supersede()
		return false
	}
	r.mu.Lock()
	r.tree = tree
	r.state = StateMaterialized
	r.mu.Unlock()
	return true
}

func (r *Run) fail(err error) {
	r.mu.Lock()
	r.state = StateFailed
	r.err = err
	r.mu.Unlock()
	if r.current() {
		r.opts.Observer.RunFailed(err)
	}
}

func (r *Run) supersede() {
	r.mu.Lock()
	r.state = StateSuperseded
	r.err = ErrSuperseded
	r.tree = nil
	r.mu.Unlock()
}

func (r *Run) setState(st State) {
	r.mu.Lock()
	r.state = st
	r.mu.Unlock()
}

func (r *Run) current() bool {
	return r.scanner.isCurrent(r.gen)
}

// notifyProgress forwards an event to the observer unless the run has been
// superseded, keeping stale runs silent.
func (r *Run) notifyProgress(ev Event) {
	if r.current() {
		r.opts.Observer.Progress(ev)
	}
}

func poolSize(requested, tasks int) int {
	n := requested
	if n <= 0 {
		n = runtime.NumCPU()
	}
	if n > tasks {
		n = tasks
	}
	return n
}
