// Package audit keeps a rotating JSONL trail of every dashboard refresh.
package audit

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/kilianp07/atmcast/core/dashboard"
	"github.com/kilianp07/atmcast/infra/logger"
)

// Config controls file location and rotation.
type Config struct {
	Enabled    bool   `json:"enabled"`
	Path       string `json:"path" default:"data/audit.jsonl"`
	MaxSizeMB  int    `json:"max_size_mb" default:"10"`
	MaxBackups int    `json:"max_backups" default:"5"`
	MaxAgeDays int    `json:"max_age_days" default:"30"`
	Compress   bool   `json:"compress"`
}

// Record is one audit line.
type Record struct {
	Timestamp    time.Time `json:"timestamp"`
	SnapshotID   string    `json:"snapshot_id"`
	ATMID        string    `json:"atm_id"`
	Status       string    `json:"status"`
	ErrorKind    string    `json:"error_kind,omitempty"`
	Diagnostic   string    `json:"diagnostic,omitempty"`
	Horizon      int       `json:"horizon"`
	Points       int       `json:"points"`
	MaxPredicted *float64  `json:"max_predicted,omitempty"`
	Threshold    *float64  `json:"threshold,omitempty"`
	IsAlert      bool      `json:"is_alert"`
}

// FromSnapshot flattens a snapshot into an audit record.
func FromSnapshot(s dashboard.Snapshot) Record {
	r := Record{
		Timestamp:  s.GeneratedAt,
		SnapshotID: s.ID,
		ATMID:      s.ATMID,
		Status:     string(s.Status),
		ErrorKind:  s.ErrorKind,
		Diagnostic: s.Diagnostic,
		Horizon:    s.Horizon,
		Points:     len(s.Window.Future()),
	}
	if v := s.Verdict; v != nil {
		r.MaxPredicted = &v.MaxPredicted
		r.Threshold = &v.Threshold
		r.IsAlert = v.IsAlert
	}
	return r
}

// Query filters records. Zero values mean no restriction.
type Query struct {
	ATMID string
	Start time.Time
	End   time.Time
}

// Log stores records in a JSONL file with automatic rotation.
type Log struct {
	writer *lumberjack.Logger
	path   string
	log    logger.Logger
}

// New creates a Log writing to cfg.Path.
func New(cfg Config) (*Log, error) {
	if cfg.Path == "" {
		return nil, errors.New("audit path is required")
	}
	if dir := filepath.Dir(cfg.Path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}
	return &Log{
		writer: &lumberjack.Logger{
			Filename:   cfg.Path,
			MaxSize:    cfg.MaxSizeMB,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAgeDays,
			Compress:   cfg.Compress,
		},
		path: cfg.Path,
		log:  logger.New("audit"),
	}, nil
}

// Append writes the record and triggers rotation if needed.
func (l *Log) Append(_ context.Context, rec Record) error {
	return json.NewEncoder(l.writer).Encode(rec)
}

// Run appends every snapshot received on events until the channel is closed
// or ctx is canceled.
func (l *Log) Run(ctx context.Context, events <-chan dashboard.Snapshot) {
	for {
		select {
		case <-ctx.Done():
			return
		case snap, ok := <-events:
			if !ok {
				return
			}
			if err := l.Append(ctx, FromSnapshot(snap)); err != nil {
				l.log.Errorf("audit append: %v", err)
			}
		}
	}
}

// Query reads the active file and its uncompressed backups, oldest first.
func (l *Log) Query(ctx context.Context, q Query) ([]Record, error) {
	ext := filepath.Ext(l.path)
	files, err := filepath.Glob(strings.TrimSuffix(l.path, ext) + "*" + ext)
	if err != nil {
		return nil, err
	}
	var res []Record
	for _, f := range files {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		recs, err := readFile(f, q)
		if err != nil {
			l.log.Warnf("audit read %s: %v", f, err)
			continue
		}
		res = append(res, recs...)
	}
	sort.SliceStable(res, func(i, j int) bool { return res[i].Timestamp.Before(res[j].Timestamp) })
	return res, nil
}

func readFile(path string, q Query) ([]Record, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = file.Close() }()

	var res []Record
	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		var r Record
		if err := json.Unmarshal(scanner.Bytes(), &r); err != nil {
			continue
		}
		if q.ATMID != "" && r.ATMID != q.ATMID {
			continue
		}
		if !q.Start.IsZero() && r.Timestamp.Before(q.Start) {
			continue
		}
		if !q.End.IsZero() && r.Timestamp.After(q.End) {
			continue
		}
		res = append(res, r)
	}
	return res, scanner.Err()
}

// Close closes the underlying writer.
func (l *Log) Close() error {
	return l.writer.Close()
}
