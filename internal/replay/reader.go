package replay

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/klauspost/compress/zstd"

	"github.com/talgya/swift-dreams/internal/engine"
)

// ListSegments returns the segment files of run prefix in recording order.
// An empty prefix lists every run in dir.
func ListSegments(dir, prefix string) ([]string, error) {
	ents, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var names []string
	for _, e := range ents {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if !strings.HasSuffix(name, Ext) {
			continue
		}
		if prefix != "" {
			if _, ok := segmentIndex(name, prefix); !ok {
				continue
			}
		}
		names = append(names, name)
	}
	sort.Strings(names)
	out := make([]string, len(names))
	for i, name := range names {
		out[i] = filepath.Join(dir, name)
	}
	return out, nil
}

// ReadSegment decodes every frame in one segment file, in order.
func ReadSegment(path string, fn func(*engine.Frame) error) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	dec, err := zstd.NewReader(f)
	if err != nil {
		return err
	}
	defer dec.Close()

	sc := bufio.NewScanner(dec)
	sc.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	line := 0
	for sc.Scan() {
		line++
		if len(sc.Bytes()) == 0 {
			continue
		}
		var fr engine.Frame
		if err := json.Unmarshal(sc.Bytes(), &fr); err != nil {
			return fmt.Errorf("%s:%d: %w", filepath.Base(path), line, err)
		}
		if err := fn(&fr); err != nil {
			return err
		}
	}
	return sc.Err()
}

// Summary aggregates a recorded run.
type Summary struct {
	Segments    int
	Frames      int
	FirstTick   uint64
	LastTick    uint64
	Transitions map[string]int // Keyed by the behavior entered
	Events      map[string]int // Keyed by category
	Effects     map[string]int // Keyed by the effect entered
	Rounds      int
	FinalScore  int
}

// Summarize reads every segment of run prefix.
func Summarize(dir, prefix string) (*Summary, error) {
	files, err := ListSegments(dir, prefix)
	if err != nil {
		return nil, err
	}
	s := &Summary{
		Segments:    len(files),
		Transitions: make(map[string]int),
		Events:      make(map[string]int),
		Effects:     make(map[string]int),
	}
	for _, path := range files {
		err := ReadSegment(path, func(f *engine.Frame) error {
			if s.Frames == 0 {
				s.FirstTick = f.Tick
			}
			s.Frames++
			s.LastTick = f.Tick
			s.FinalScore = f.Score.Score
			if f.RoundOver {
				s.Rounds++
			}
			for _, t := range f.Transitions {
				s.Transitions[kindOf(t.To)]++
			}
			for _, e := range f.Events {
				s.Events[e.Category]++
			}
			for _, c := range f.Effects {
				s.Effects[c.To.String()]++
			}
			return nil
		})
		if err != nil {
			return nil, err
		}
	}
	return s, nil
}

// kindOf strips the destination suffix from a behavior key string.
func kindOf(key string) string {
	if i := strings.IndexByte(key, '('); i >= 0 {
		return key[:i]
	}
	return key
}
