package reconcile

import (
	"github.com/hashicorp/golang-lru/v2"
)

const DefaultCacheSize = 1024

// Reconciler memoizes Reconcile results keyed by the raw payload.
// Alert history is re-fetched wholesale, so most payloads repeat.
type Reconciler struct {
	cache *lru.Cache[string, StatusReport]
}

// NewReconciler creates a reconciler with an LRU of the given size
func NewReconciler(size int) *Reconciler {
	if size <= 0 {
		size = DefaultCacheSize
	}
	cache, _ := lru.New[string, StatusReport](size)
	return &Reconciler{cache: cache}
}

func (r *Reconciler) Reconcile(raw string) StatusReport {
	if r == nil || r.cache == nil {
		return Reconcile(raw)
	}
	if report, ok := r.cache.Get(raw); ok {
		return report
	}
	report := Reconcile(raw)
	r.cache.Add(raw, report)
	return report
}

// Len returns the number of cached payloads
func (r *Reconciler) Len() int {
	if r == nil || r.cache == nil {
		return 0
	}
	return r.cache.Len()
}
