package keygate

import (
	"context"
	"strings"
	"sync"
)

// ConfigHost serves the credential from process configuration. Selecting a
// key re-reads it through reload.
type ConfigHost struct {
	mu     sync.RWMutex
	key    string
	reload func() (string, error)
}

func NewConfigHost(key string, reload func() (string, error)) *ConfigHost {
	return &ConfigHost{key: strings.TrimSpace(key), reload: reload}
}

func (h *ConfigHost) HasSelectedAPIKey(ctx context.Context) (bool, error) {
	return h.APIKey() != "", nil
}

func (h *ConfigHost) OpenSelectKey(ctx context.Context) error {
	if h.reload == nil {
		return ErrHostUnavailable
	}
	key, err := h.reload()
	if err != nil {
		return err
	}
	key = strings.TrimSpace(key)
	if key == "" {
		return nil
	}
	h.mu.Lock()
	h.key = key
	h.mu.Unlock()
	return nil
}

// APIKey returns the active credential.
func (h *ConfigHost) APIKey() string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.key
}
