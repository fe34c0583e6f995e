// Package replay records published frames as zstd-compressed JSON lines and
// reads them back for inspection.
package replay

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/klauspost/compress/zstd"

	"github.com/talgya/swift-dreams/internal/engine"
)

// Ext is the suffix of every segment file.
const Ext = ".jsonl.zst"

// Writer appends frames to numbered segment files under one directory.
// A segment holds at most PerSegment frames.
type Writer struct {
	dir        string
	prefix     string
	perSegment int
	every      uint64

	mu      sync.Mutex
	segment int
	written int
	f       *os.File
	enc     *zstd.Encoder
	w       *bufio.Writer
}

// NewWriter creates a writer for run prefix. Only frames whose tick is a
// multiple of every are kept. Segments already on disk for prefix are left
// alone; the writer continues after the highest one.
func NewWriter(dir, prefix string, perSegment, every int) *Writer {
	if perSegment <= 0 {
		perSegment = 1800
	}
	if every <= 0 {
		every = 1
	}
	return &Writer{
		dir:        dir,
		prefix:     prefix,
		perSegment: perSegment,
		every:      uint64(every),
		segment:    lastSegment(dir, prefix),
	}
}

// lastSegment returns the highest segment index of prefix in dir, or -1.
func lastSegment(dir, prefix string) int {
	files, err := ListSegments(dir, prefix)
	if err != nil {
		return -1
	}
	last := -1
	for _, f := range files {
		if n, ok := segmentIndex(filepath.Base(f), prefix); ok && n > last {
			last = n
		}
	}
	return last
}

// segmentIndex parses "<prefix>-NNNNNN.jsonl.zst".
func segmentIndex(name, prefix string) (int, bool) {
	rest, ok := strings.CutPrefix(name, prefix+"-")
	if !ok {
		return 0, false
	}
	digits, ok := strings.CutSuffix(rest, Ext)
	if !ok || len(digits) != 6 {
		return 0, false
	}
	n, err := strconv.Atoi(digits)
	if err != nil || n < 0 {
		return 0, false
	}
	return n, true
}

// WriteFrame records f, rotating to a fresh segment when the current one is full.
func (w *Writer) WriteFrame(f *engine.Frame) error {
	if f == nil || f.Tick%w.every != 0 {
		return nil
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if w.w == nil || w.written >= w.perSegment {
		if err := w.rotateLocked(); err != nil {
			return fmt.Errorf("rotate replay segment: %w", err)
		}
	}

	b, err := json.Marshal(f)
	if err != nil {
		return fmt.Errorf("encode frame %d: %w", f.Tick, err)
	}
	if _, err := w.w.Write(b); err != nil {
		return err
	}
	if err := w.w.WriteByte('\n'); err != nil {
		return err
	}
	w.written++
	return w.w.Flush()
}

// Segments returns how many segments the run has, counting those written
// before this writer was created.
func (w *Writer) Segments() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.segment + 1
}

// Close flushes and closes the current segment.
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.closeLocked()
}

func (w *Writer) rotateLocked() error {
	if err := w.closeLocked(); err != nil {
		return err
	}
	if err := os.MkdirAll(w.dir, 0o755); err != nil {
		return err
	}
	w.segment++
	path := SegmentPath(w.dir, w.prefix, w.segment)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_EXCL, 0o644)
	if err != nil {
		return err
	}
	enc, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedFastest))
	if err != nil {
		_ = f.Close()
		return err
	}
	w.f = f
	w.enc = enc
	w.w = bufio.NewWriterSize(enc, 128*1024)
	w.written = 0
	return nil
}

func (w *Writer) closeLocked() error {
	var errs []error
	if w.w != nil {
		errs = append(errs, w.w.Flush())
		w.w = nil
	}
	if w.enc != nil {
		errs = append(errs, w.enc.Close())
		w.enc = nil
	}
	if w.f != nil {
		errs = append(errs, w.f.Close())
		w.f = nil
	}
	return errors.Join(errs...)
}

// SegmentPath returns the file holding segment n of run prefix.
func SegmentPath(dir, prefix string, n int) string {
	return filepath.Join(dir, fmt.Sprintf("%s-%06d%s", prefix, n, Ext))
}
