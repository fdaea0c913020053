// Package blob abstracts the object store generated PDFs are written to.
package blob

import (
	"context"
	"fmt"
	"strings"
	"sync"
)

const ContentTypePDF = "application/pdf"

// ObjectStore uploads with upsert semantics: an existing object at key is
// replaced.
type ObjectStore interface {
	Upload(ctx context.Context, key string, data []byte, contentType string) error
	PublicURL(key string) string
}

// Object is what Memory keeps per key.
type Object struct {
	Data        []byte
	ContentType string
}

// Memory is an in-process ObjectStore.
type Memory struct {
	mu      sync.Mutex
	bucket  string
	objects map[string]Object

	// Err, when set, is returned by every Upload.
	Err error
	// Uploads counts Upload calls, failed ones included.
	Uploads int
}

func NewMemory(bucket string) *Memory {
	return &Memory{bucket: bucket, objects: map[string]Object{}}
}

func (m *Memory) Upload(ctx context.Context, key string, data []byte, contentType string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Uploads++
	if m.Err != nil {
		return m.Err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	cp := make([]byte, len(data))
	copy(cp, data)
	m.objects[key] = Object{Data: cp, ContentType: contentType}
	return nil
}

func (m *Memory) PublicURL(key string) string {
	return fmt.Sprintf("memory://%s/%s", m.bucket, strings.TrimPrefix(key, "/"))
}

// Get returns the stored object at key.
func (m *Memory) Get(key string) (Object, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.objects[key]
	return o, ok
}

// Keys lists stored keys in no particular order.
func (m *Memory) Keys() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	keys := make([]string, 0, len(m.objects))
	for k := range m.objects {
		keys = append(keys, k)
	}
	return keys
}
