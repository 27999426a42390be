package engine

import (
	"fmt"
	"sync"

	"github.com/bamsammich/fcp/internal/copyerr"
	"github.com/bamsammich/fcp/internal/platform"
)

// Strategy records how an entry was produced at the destination.
type Strategy int

const (
	StrategyNone Strategy = iota
	StrategyReflink
	StrategyCopyFileRange
	StrategySendfile
	StrategyReadWrite
	StrategyHardlink
	StrategySymlink
	StrategyDirectory
	StrategySpecial
	StrategyAttributesOnly
)

var strategyNames = [...]string{
	StrategyNone:           "none",
	StrategyReflink:        "reflink",
	StrategyCopyFileRange:  "copy_file_range",
	StrategySendfile:       "sendfile",
	StrategyReadWrite:      "read_write",
	StrategyHardlink:       "hardlink",
	StrategySymlink:        "symlink",
	StrategyDirectory:      "directory",
	StrategySpecial:        "special",
	StrategyAttributesOnly: "attributes_only",
}

func (s Strategy) String() string {
	if int(s) >= 0 && int(s) < len(strategyNames) {
		return strategyNames[s]
	}
	return "unknown"
}

func strategyOf(m platform.CopyMethod) Strategy {
	switch m {
	case platform.Clone:
		return StrategyReflink
	case platform.CopyFileRange:
		return StrategyCopyFileRange
	case platform.Sendfile:
		return StrategySendfile
	default:
		return StrategyReadWrite
	}
}

// Outcome is the result of copying one entry.
type Outcome struct {
	Src      string
	Dst      string
	Strategy Strategy
	Bytes    int64
	// HolesPreserved is true when the destination was written sparse.
	HolesPreserved bool
	// Skipped entries were left alone by policy; Err then says why.
	Skipped bool
	// Backup is where a replaced destination was moved to.
	Backup   string
	Err      error
	Warnings []error
}

// Failed reports whether the entry counts as a failure.
func (o Outcome) Failed() bool { return o.Err != nil && !o.Skipped }

func failed(src, dst string, err error) Outcome {
	return Outcome{Src: src, Dst: dst, Err: err}
}

// Failure pairs an error with the entry it belongs to.
type Failure struct {
	Src string
	Dst string
	Err error
}

func (f Failure) Error() string {
	if copyerr.KindOf(f.Err) != copyerr.Unknown {
		return f.Err.Error()
	}
	return fmt.Sprintf("'%s' -> '%s': %v", f.Src, f.Dst, f.Err)
}

func (f Failure) Unwrap() error { return f.Err }

// Report aggregates the outcomes of a run or of one directory tree. It is
// safe for concurrent use.
type Report struct {
	mu        sync.Mutex
	processed int64
	skipped   int64
	failures  []Failure
}

// Record adds one outcome.
func (r *Report) Record(o Outcome) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.processed++
	if o.Skipped {
		r.skipped++
	}
	if o.Failed() {
		r.failures = append(r.failures, Failure{Src: o.Src, Dst: o.Dst, Err: o.Err})
	}
}

// addFailure records a failure for an entry that was already counted.
func (r *Report) addFailure(f Failure) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failures = append(r.failures, f)
}

// Merge adds everything recorded in other.
func (r *Report) Merge(other *Report) {
	other.mu.Lock()
	processed, skipped := other.processed, other.skipped
	failures := append([]Failure(nil), other.failures...)
	other.mu.Unlock()

	r.mu.Lock()
	defer r.mu.Unlock()
	r.processed += processed
	r.skipped += skipped
	r.failures = append(r.failures, failures...)
}

// Processed returns how many entries were handled, including failures.
func (r *Report) Processed() int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.processed
}

// Skipped returns how many entries were left alone by policy.
func (r *Report) Skipped() int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.skipped
}

// Failures returns a copy of the recorded failures.
func (r *Report) Failures() []Failure {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Failure(nil), r.failures...)
}

// OK reports whether no entry failed.
func (r *Report) OK() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.failures) == 0
}
