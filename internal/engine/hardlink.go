package engine

import (
	"context"

	"github.com/puzpuzpuz/xsync/v3"
)

// DevIno uniquely identifies an inode for hardlink detection.
type DevIno struct {
	Dev uint64
	Ino uint64
}

// LinkClaim is the table entry for one source inode. The first entry to
// claim an inode copies it and calls Finish; later entries Wait and link to
// Dst.
type LinkClaim struct {
	Dst  string
	done chan struct{}
	err  error
}

// Finish publishes the result of copying the claimed inode.
func (c *LinkClaim) Finish(err error) {
	c.err = err
	close(c.done)
}

// Wait blocks until the claiming copy finishes and returns its error.
func (c *LinkClaim) Wait(ctx context.Context) error {
	select {
	case <-c.done:
		return c.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// HardlinkTable maps source inodes to the first destination path created
// for them during a run. It is shared by every worker of the run.
type HardlinkTable struct {
	m *xsync.MapOf[DevIno, *LinkClaim]
}

// NewHardlinkTable returns an empty table.
func NewHardlinkTable() *HardlinkTable {
	return &HardlinkTable{m: xsync.NewMapOf[DevIno, *LinkClaim]()}
}

// Claim atomically looks up key and, when absent, records dst for it. first
// is true for the caller that created the entry.
func (t *HardlinkTable) Claim(key DevIno, dst string) (claim *LinkClaim, first bool) {
	claim, loaded := t.m.LoadOrStore(key, &LinkClaim{Dst: dst, done: make(chan struct{})})
	return claim, !loaded
}

// Len returns the number of inodes recorded.
func (t *HardlinkTable) Len() int { return t.m.Size() }
