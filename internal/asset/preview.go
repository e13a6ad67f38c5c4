package asset

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// Preview is a revocable handle to the original bytes of an asset.
type Preview struct {
	ID        string
	MimeType  string
	Data      []byte
	CreatedAt time.Time
}

// Previews keeps preview handles until they are released.
type Previews struct {
	mu    sync.RWMutex
	items map[string]*Preview
}

func NewPreviews() *Previews {
	return &Previews{items: make(map[string]*Preview)}
}

// Create registers data and returns a fresh handle, even for identical bytes.
func (p *Previews) Create(data []byte, mimeType string) string {
	id := uuid.New().String()
	p.mu.Lock()
	p.items[id] = &Preview{
		ID:        id,
		MimeType:  mimeType,
		Data:      data,
		CreatedAt: time.Now(),
	}
	p.mu.Unlock()
	return id
}

func (p *Previews) Get(id string) (*Preview, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	pv, ok := p.items[id]
	return pv, ok
}

// Release drops a handle. It reports whether the handle was live.
func (p *Previews) Release(id string) bool {
	if id == "" {
		return false
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.items[id]; !ok {
		return false
	}
	delete(p.items, id)
	return true
}

func (p *Previews) Len() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.items)
}
