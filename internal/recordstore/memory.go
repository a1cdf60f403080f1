package recordstore

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
)

// Memory is an in-memory Store keyed by collection and document key. It
// round-trips documents through JSON so its overwrite/merge semantics match
// the remote backends, which makes it a faithful stand-in for tests.
type Memory struct {
	mu   sync.RWMutex
	docs map[string]map[string]map[string]any
}

// NewMemory constructs an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{docs: make(map[string]map[string]map[string]any)}
}

// Write upserts the full document at key.
func (m *Memory) Write(ctx context.Context, collection, key string, doc any) error {
	fields, err := toFields(doc)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.docs[collection] == nil {
		m.docs[collection] = make(map[string]map[string]any)
	}
	m.docs[collection][key] = fields
	return nil
}

// Update merges fields into an existing document.
func (m *Memory) Update(ctx context.Context, collection, key string, fields map[string]any) error {
	merged, err := toFields(fields)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	doc, ok := m.docs[collection][key]
	if !ok {
		return ErrNotFound
	}
	for k, v := range merged {
		doc[k] = v
	}
	return nil
}

// Get returns a copy of the stored document, or ErrNotFound.
func (m *Memory) Get(collection, key string) (map[string]any, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	doc, ok := m.docs[collection][key]
	if !ok {
		return nil, ErrNotFound
	}
	out := make(map[string]any, len(doc))
	for k, v := range doc {
		out[k] = v
	}
	return out, nil
}

func toFields(doc any) (map[string]any, error) {
	raw, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("encode document: %w", err)
	}
	var fields map[string]any
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, fmt.Errorf("decode document: %w", err)
	}
	return fields, nil
}
