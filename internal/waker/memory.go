package waker

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"

	"github.com/talgya/swift-dreams/internal/agents"
)

const maxRecords = 20

// CycleRecord captures what happened in a single waker cycle.
type CycleRecord struct {
	Tick      uint64         `json:"tick"`
	Action    string         `json:"action"`
	Agent     agents.AgentID `json:"agent,omitempty"`
	Level     string         `json:"level"`
	Rationale string         `json:"rationale,omitempty"`
}

// CycleMemory manages a ring of recent cycle records, kept on disk between runs.
type CycleMemory struct {
	Records []CycleRecord `json:"records"`

	path string
}

// LoadMemory reads the memory file at path. Returns empty memory if it is
// missing or unreadable.
func LoadMemory(path string) *CycleMemory {
	mem := &CycleMemory{path: path}
	data, err := os.ReadFile(path)
	if err != nil {
		return mem
	}
	if err := json.Unmarshal(data, mem); err != nil {
		slog.Warn("waker memory corrupted, starting fresh", "error", err)
		return &CycleMemory{path: path}
	}
	return mem
}

// Save writes the memory to disk. Memory without a path is kept in process only.
func (m *CycleMemory) Save() error {
	if m.path == "" {
		return nil
	}
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal waker memory: %w", err)
	}
	if err := os.WriteFile(m.path, data, 0o644); err != nil {
		return fmt.Errorf("write waker memory: %w", err)
	}
	return nil
}

// Record adds a cycle record, trimming to maxRecords.
func (m *CycleMemory) Record(r CycleRecord) {
	m.Records = append(m.Records, r)
	if len(m.Records) > maxRecords {
		m.Records = m.Records[len(m.Records)-maxRecords:]
	}
}

// LastStruck returns the agent hit by the most recent strike, if any.
func (m *CycleMemory) LastStruck() (agents.AgentID, bool) {
	for i := len(m.Records) - 1; i >= 0; i-- {
		if r := m.Records[i]; r.Action == ActionInterrupt {
			return r.Agent, true
		}
	}
	return 0, false
}
