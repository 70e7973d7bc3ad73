package memory

import (
	"context"
	"sync"
)

type DedupIndex struct {
	mu   sync.RWMutex
	keys map[string]map[string]struct{}
}

func NewDedupIndex() *DedupIndex {
	return &DedupIndex{keys: map[string]map[string]struct{}{}}
}

func (i *DedupIndex) MarkKnown(ctx context.Context, source string, keys ...string) error {
	i.mu.Lock()
	defer i.mu.Unlock()
	set, ok := i.keys[source]
	if !ok {
		set = map[string]struct{}{}
		i.keys[source] = set
	}
	for _, k := range keys {
		set[k] = struct{}{}
	}
	return nil
}

func (i *DedupIndex) IsKnown(ctx context.Context, source, key string) (bool, error) {
	i.mu.RLock()
	defer i.mu.RUnlock()
	_, ok := i.keys[source][key]
	return ok, nil
}
