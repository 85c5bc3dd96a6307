package audio

import (
	"sync"
)

// RingBuffer is a thread-safe byte ring used to smooth outbound PCM frames
// between the playback pipeline and a listener connection.
type RingBuffer struct {
	buffer []byte
	size   int
	read   int
	write  int
	count  int
	mu     sync.Mutex
}

// NewRingBuffer creates a ring buffer holding up to size bytes.
func NewRingBuffer(size int) *RingBuffer {
	if size <= 0 {
		size = 1
	}
	return &RingBuffer{
		buffer: make([]byte, size),
		size:   size,
	}
}

// Write copies data into the buffer and returns the number of bytes
// accepted. Writes never block; excess bytes are rejected when full.
func (rb *RingBuffer) Write(data []byte) int {
	rb.mu.Lock()
	defer rb.mu.Unlock()

	n := len(data)
	if space := rb.size - rb.count; n > space {
		n = space
	}

	for i := 0; i < n; {
		chunk := copy(rb.buffer[rb.write:], data[i:n])
		rb.write = (rb.write + chunk) % rb.size
		i += chunk
	}
	rb.count += n
	return n
}

// Read copies up to len(data) bytes out of the buffer and returns the
// number of bytes read.
func (rb *RingBuffer) Read(data []byte) int {
	rb.mu.Lock()
	defer rb.mu.Unlock()

	n := len(data)
	if n > rb.count {
		n = rb.count
	}

	for i := 0; i < n; {
		end := rb.read + (n - i)
		if end > rb.size {
			end = rb.size
		}
		chunk := copy(data[i:n], rb.buffer[rb.read:end])
		rb.read = (rb.read + chunk) % rb.size
		i += chunk
	}
	rb.count -= n
	return n
}

// Available returns the number of bytes ready to read.
func (rb *RingBuffer) Available() int {
	rb.mu.Lock()
	defer rb.mu.Unlock()
	return rb.count
}

// Space returns the number of bytes that can be written without dropping.
func (rb *RingBuffer) Space() int {
	rb.mu.Lock()
	defer rb.mu.Unlock()
	return rb.size - rb.count
}

// Clear discards all buffered data.
func (rb *RingBuffer) Clear() {
	rb.mu.Lock()
	defer rb.mu.Unlock()
	rb.read = 0
	rb.write = 0
	rb.count = 0
}

// IsEmpty returns true if the buffer holds no data.
func (rb *RingBuffer) IsEmpty() bool {
	rb.mu.Lock()
	defer rb.mu.Unlock()
	return rb.count == 0
}

// IsFull returns true if no more bytes can be written.
func (rb *RingBuffer) IsFull() bool {
	rb.mu.Lock()
	defer rb.mu.Unlock()
	return rb.count == rb.size
}
