package playback

import "github.com/MrWong99/kioskvoice/pkg/audio"

// ready is a synthesized unit waiting for its turn on the speaker.
type ready struct {
	seq   uint64
	clip  audio.Clip
	err   error
	blank bool
}

// readyHeap implements [container/heap.Interface] as a min-heap on seq, so
// the top is always the lowest-numbered unit that has finished synthesis.
type readyHeap []ready

func (h readyHeap) Len() int           { return len(h) }
func (h readyHeap) Less(i, j int) bool { return h[i].seq < h[j].seq }
func (h readyHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }

// Push appends x to the heap. Called by [container/heap.Push]; callers must
// not invoke this directly.
func (h *readyHeap) Push(x any) {
	*h = append(*h, x.(ready))
}

// Pop removes and returns the last element. Called by [container/heap.Pop];
// callers must not invoke this directly.
func (h *readyHeap) Pop() any {
	old := *h
	n := len(old)
	e := old[n-1]
	old[n-1] = ready{}
	*h = old[:n-1]
	return e
}
