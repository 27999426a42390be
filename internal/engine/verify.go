package engine

import (
	"context"
	"encoding/hex"
	"fmt"
	"io"
	"os"

	"github.com/zeebo/blake3"
	"golang.org/x/sync/errgroup"

	"github.com/bamsammich/fcp/internal/copyerr"
	"github.com/bamsammich/fcp/internal/event"
)

// MismatchError records a checksum mismatch between a source and its copy.
type MismatchError struct {
	SrcHash string
	DstHash string
}

func (e *MismatchError) Error() string {
	return fmt.Sprintf("checksum mismatch: source %s, destination %s", e.SrcHash, e.DstHash)
}

// HashFile returns the hex BLAKE3 digest of the file at path.
func HashFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	h := blake3.New()
	if _, err := io.CopyBuffer(h, f, make([]byte, 256*1024)); err != nil {
		return "", fmt.Errorf("hash %s: %w", path, err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// VerifyFile hashes src and dst concurrently and compares the digests.
func VerifyFile(src, dst string) error {
	var srcHash, dstHash string
	var g errgroup.Group
	g.Go(func() (err error) {
		srcHash, err = HashFile(src)
		return err
	})
	g.Go(func() (err error) {
		dstHash, err = HashFile(dst)
		return err
	})
	if err := g.Wait(); err != nil {
		return err
	}
	if srcHash != dstHash {
		return &MismatchError{SrcHash: srcHash, DstHash: dstHash}
	}
	return nil
}

// verify re-reads a finished copy and reports a mismatch as a data failure.
func (c *Copier) verify(ctx context.Context, src, dst string) error {
	err := VerifyFile(src, dst)
	if err != nil {
		c.deps.Stats.AddFilesVerifyFailed(1)
		c.emit(ctx, event.Event{Type: event.VerifyFailed, Src: src, Dst: dst, Error: err})
		return copyerr.New(copyerr.DataCopyFailed, "verify", src, dst, err)
	}
	c.deps.Stats.AddFilesVerified(1)
	c.emit(ctx, event.Event{Type: event.VerifyOK, Src: src, Dst: dst})
	return nil
}
