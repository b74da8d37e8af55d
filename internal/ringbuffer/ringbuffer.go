// Package ringbuffer implements the fixed-capacity chunk queue that sits
// between the decoder goroutine and the audio device callback (C1).
//
// It is a pre-allocated circular buffer of fixed-size sample chunks, not a
// byte ring: Append and Popleft move one decoded chunk at a time, mirroring
// the producer/consumer split between a reader thread and a device callback
// that the buffer is meant to decouple.
package ringbuffer

import "sync"

// Buffer is a fixed-capacity, pre-allocated circular queue of interleaved
// float32 sample chunks. It never grows after construction: Append on a
// full buffer fails rather than allocating. Safe for concurrent use by one
// writer (the decoder) and one reader (the device callback).
type Buffer struct {
	mu sync.Mutex

	maxChunks int
	chunkSize int // samples per channel
	channels  int

	storage    [][]float32 // maxChunks slices, each len chunkSize*channels capacity
	chunkLen   []int       // actual interleaved sample count (all channels) written to storage[i]
	writeIdx   int
	readIdx    int
	count      int
}

// New allocates a Buffer holding up to maxChunks chunks of chunkSize frames
// at channels channels each.
func New(maxChunks, chunkSize, channels int) *Buffer {
	storage := make([][]float32, maxChunks)
	for i := range storage {
		storage[i] = make([]float32, chunkSize*channels)
	}
	return &Buffer{
		maxChunks: maxChunks,
		chunkSize: chunkSize,
		channels:  channels,
		storage:   storage,
		chunkLen:  make([]int, maxChunks),
	}
}

// Append copies chunk (interleaved, frames*channels float32s) into the next
// free slot. It reports false without blocking if the buffer is full.
func (b *Buffer) Append(chunk []float32) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.count >= b.maxChunks {
		return false
	}

	dst := b.storage[b.writeIdx]
	n := len(chunk)
	if n > len(dst) {
		n = len(dst)
	}
	copy(dst, chunk[:n])
	b.chunkLen[b.writeIdx] = n

	b.writeIdx = (b.writeIdx + 1) % b.maxChunks
	b.count++
	return true
}

// Popleft removes and returns the oldest chunk, or nil if the buffer is
// empty. The returned slice is a copy: the caller owns it.
func (b *Buffer) Popleft() []float32 {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.count == 0 {
		return nil
	}

	n := b.chunkLen[b.readIdx]
	out := make([]float32, n)
	copy(out, b.storage[b.readIdx][:n])

	b.readIdx = (b.readIdx + 1) % b.maxChunks
	b.count--
	return out
}

// Clear discards all buffered chunks. Used on seek and on session restart so
// a stale decode never reaches the device.
func (b *Buffer) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.writeIdx = 0
	b.readIdx = 0
	b.count = 0
}

// Len reports the number of chunks currently queued.
func (b *Buffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.count
}

// IsFull reports whether Append would currently fail.
func (b *Buffer) IsFull() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.count >= b.maxChunks
}

// FillRatio reports how full the buffer is, in [0,1]. Used by the buffer-wait
// logic (§4.3 buffer_time) to decide when enough has been decoded to start
// playback without an immediate underrun.
func (b *Buffer) FillRatio() float64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.maxChunks == 0 {
		return 1
	}
	return float64(b.count) / float64(b.maxChunks)
}
