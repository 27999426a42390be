package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/bamsammich/fcp/internal/engine"
)

// resolveTargets turns the operands into (source, destination) pairs.
// With a target directory every source is copied into it under its base
// name. Otherwise the last operand is the destination: a directory receives
// the sources by name, anything else is the exact destination of a single
// source.
func resolveTargets(args []string, targetDir string, noTargetDir bool) ([]engine.Pair, error) {
	if targetDir != "" && noTargetDir {
		return nil, errors.New("cannot combine --target-directory (-t) and --no-target-directory (-T)")
	}

	if targetDir != "" {
		if len(args) == 0 {
			return nil, errors.New("missing file operand")
		}
		if !isDir(targetDir) {
			return nil, fmt.Errorf("target directory '%s' is not a directory", targetDir)
		}
		return into(args, targetDir), nil
	}

	switch len(args) {
	case 0:
		return nil, errors.New("missing file operand")
	case 1:
		return nil, fmt.Errorf("missing destination file operand after '%s'", args[0])
	}
	srcs, dst := args[:len(args)-1], args[len(args)-1]

	if noTargetDir {
		if len(srcs) > 1 {
			return nil, fmt.Errorf("extra operand '%s'", args[2])
		}
		return []engine.Pair{{Src: srcs[0], Dst: dst}}, nil
	}
	if isDir(dst) {
		return into(srcs, dst), nil
	}
	if len(srcs) > 1 {
		return nil, fmt.Errorf("target '%s' is not a directory", dst)
	}
	return []engine.Pair{{Src: srcs[0], Dst: dst}}, nil
}

func into(srcs []string, dir string) []engine.Pair {
	pairs := make([]engine.Pair, len(srcs))
	for i, src := range srcs {
		pairs[i] = engine.Pair{Src: src, Dst: filepath.Join(dir, filepath.Base(src))}
	}
	return pairs
}

func isDir(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}
