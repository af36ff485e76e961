package audio

// Drain reads from ch until the channel is closed, discarding all values.
// Use this to avoid leaking a producer goroutine when the consumer stops
// early.
func Drain[T any](ch <-chan T) {
	for range ch {
	}
}
