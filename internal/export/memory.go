package export

import (
	"context"
	"fmt"
	"slices"
	"sync"
)

// MemoryWriter keeps checklists in process. It backs the export endpoint
// when no spreadsheet is configured.
type MemoryWriter struct {
	mu         sync.Mutex
	checklists []Checklist
}

var _ Writer = (*MemoryWriter)(nil)

func NewMemoryWriter() *MemoryWriter {
	return &MemoryWriter{}
}

func (m *MemoryWriter) WriteChecklist(_ context.Context, c Checklist) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.checklists = append(m.checklists, c)
	return fmt.Sprintf("mem:%d", len(m.checklists)), nil
}

func (m *MemoryWriter) Checklists() []Checklist {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.checklists)
}
