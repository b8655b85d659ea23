package engine

import "sync"

// Tagger attaches a diagnostic workload tag to remote calls for quota accounting.
type Tagger interface {
	SetWorkloadTag(tag string)
	ResetWorkloadTag()
}

// WithWorkloadTag sets tag for the duration of fn. The tag is reset on every
// exit path, including errors and panics.
func WithWorkloadTag(t Tagger, tag string, fn func() error) error {
	t.SetWorkloadTag(tag)
	defer t.ResetWorkloadTag()
	return fn()
}

// WorkloadTag holds the current tag. Embed it to implement Tagger.
type WorkloadTag struct {
	mu  sync.Mutex
	tag string
}

func (w *WorkloadTag) SetWorkloadTag(tag string) {
	w.mu.Lock()
	w.tag = tag
	w.mu.Unlock()
}

func (w *WorkloadTag) ResetWorkloadTag() {
	w.SetWorkloadTag("")
}

// CurrentWorkloadTag returns the tag in effect, or "" when none is set.
func (w *WorkloadTag) CurrentWorkloadTag() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.tag
}
