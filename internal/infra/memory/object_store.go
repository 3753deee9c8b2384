package memory

import (
	"context"
	"strings"
	"sync"

	"engagement-service/internal/domain"
	"github.com/cockroachdb/errors"
)

const objectScheme = "mem://"

// ObjectStore keeps uploaded files in a map. Locators look like mem://<key>.
type ObjectStore struct {
	mu      sync.RWMutex
	objects map[string][]byte
}

func NewObjectStore() *ObjectStore {
	return &ObjectStore{objects: make(map[string][]byte)}
}

func (o *ObjectStore) Put(_ context.Context, key string, data []byte) (string, error) {
	if key == "" {
		return "", errors.Wrap(domain.ErrValidation, "object key is required")
	}
	o.mu.Lock()
	o.objects[key] = append([]byte(nil), data...)
	o.mu.Unlock()
	return objectScheme + key, nil
}

func (o *ObjectStore) Get(_ context.Context, locator string) ([]byte, error) {
	key, ok := strings.CutPrefix(locator, objectScheme)
	if !ok {
		return nil, errors.Wrapf(domain.ErrNotFound, "object %s", locator)
	}
	o.mu.RLock()
	defer o.mu.RUnlock()
	data, ok := o.objects[key]
	if !ok {
		return nil, errors.Wrapf(domain.ErrNotFound, "object %s", locator)
	}
	return append([]byte(nil), data...), nil
}

// Count returns the number of stored objects.
func (o *ObjectStore) Count() int {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return len(o.objects)
}
