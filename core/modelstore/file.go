package modelstore

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/kilianp07/atmcast/core/prediction"
)

// DefaultPattern names artifacts atm_<id>.json.
const DefaultPattern = "atm_{atm_id}.json"

// FileLoader reads JSON artifacts from a directory.
type FileLoader struct {
	Dir string
	// Pattern is the file name with {atm_id} as placeholder.
	Pattern string
}

// Path resolves the artifact path for atmID.
func (l FileLoader) Path(atmID string) (string, error) {
	if atmID == "" || strings.ContainsAny(atmID, `/\`) || atmID == "." || atmID == ".." {
		return "", fmt.Errorf("invalid atm id %q", atmID)
	}
	pattern := l.Pattern
	if pattern == "" {
		pattern = DefaultPattern
	}
	return filepath.Join(l.Dir, strings.ReplaceAll(pattern, "{atm_id}", atmID)), nil
}

// Load implements Loader. Decoding runs in its own goroutine so that ctx
// bounds how long the caller waits.
func (l FileLoader) Load(ctx context.Context, atmID string) (prediction.Model, error) {
	path, err := l.Path(atmID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", prediction.ErrModelNotFound, err)
	}
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", prediction.ErrModelNotFound, path)
		}
		return nil, fmt.Errorf("%w: open %s: %v", prediction.ErrModelCorrupt, path, err)
	}

	type result struct {
		m   *prediction.AdditiveModel
		err error
	}
	done := make(chan result, 1)
	go func() {
		defer func() { _ = f.Close() }()
		m, err := prediction.DecodeArtifact(f)
		done <- result{m, err}
	}()
	select {
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.Canceled) {
			return nil, fmt.Errorf("%s: %w", path, ctx.Err())
		}
		return nil, fmt.Errorf("%w: %s: %w", prediction.ErrModelCorrupt, path, ctx.Err())
	case r := <-done:
		if r.err != nil {
			return nil, fmt.Errorf("%s: %w", path, r.err)
		}
		return r.m, nil
	}
}
