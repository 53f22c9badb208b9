// Package stream turns a file into an ordered sequence of fixed-size chunks
// and reassembles them on the other side.
package stream

import (
	"context"
	"errors"
	"fmt"
	"io"
)

// ChunkSize is the size of every chunk except possibly the last.
const ChunkSize = 16 * 1024

var (
	ErrChannelClosed  = errors.New("channel closed")
	ErrChannelNotOpen = errors.New("channel not open")
	ErrOverflow       = errors.New("received more bytes than announced")
)

// Sink is the unary send primitive chunks are written to.
type Sink interface {
	Send([]byte) error
	IsOpen() bool
}

// Windowed is implemented by sinks that apply flow control. WaitForWindow
// blocks until another chunk may be queued.
type Windowed interface {
	WaitForWindow(ctx context.Context) error
}

// Drainer is implemented by sinks that queue outgoing data. WaitForDrain
// blocks until the queue is empty.
type Drainer interface {
	WaitForDrain(ctx context.Context) error
}

// ChunkCount returns the number of chunks a file of size bytes is split into.
func ChunkCount(size int64) int64 {
	if size <= 0 {
		return 0
	}
	return (size + ChunkSize - 1) / ChunkSize
}

// Sender emits a file as sequential chunks.
type Sender struct {
	sink   Sink
	buffer []byte
}

// NewSender creates a Sender writing to sink.
func NewSender(sink Sink) *Sender {
	return &Sender{
		sink:   sink,
		buffer: make([]byte, ChunkSize),
	}
}

// SendChunks reads [0, size) from src in ChunkSize steps and sends each chunk
// in increasing offset order. onProgress receives the new offset after every
// chunk. Read failures and a sink that stops being open end the loop. When
// the sink is a Drainer, SendChunks returns only after its queue has emptied.
func (s *Sender) SendChunks(ctx context.Context, src io.ReaderAt, size int64, onProgress func(int64)) error {
	if !s.sink.IsOpen() {
		return ErrChannelNotOpen
	}

	var offset int64
	for offset < size {
		if err := ctx.Err(); err != nil {
			return err
		}
		if !s.sink.IsOpen() {
			return ErrChannelClosed
		}

		if w, ok := s.sink.(Windowed); ok {
			if err := w.WaitForWindow(ctx); err != nil {
				return err
			}
		}

		n := int64(ChunkSize)
		if rest := size - offset; rest < n {
			n = rest
		}

		read, err := src.ReadAt(s.buffer[:n], offset)
		if int64(read) < n {
			if err == nil || errors.Is(err, io.EOF) {
				err = io.ErrUnexpectedEOF
			}
			return fmt.Errorf("read at %d: %w", offset, err)
		}

		if err := s.sink.Send(s.buffer[:n]); err != nil {
			if !s.sink.IsOpen() {
				return fmt.Errorf("%w: %v", ErrChannelClosed, err)
			}
			return fmt.Errorf("send at %d: %w", offset, err)
		}

		offset += n
		if onProgress != nil {
			onProgress(offset)
		}
	}

	if d, ok := s.sink.(Drainer); ok {
		if err := d.WaitForDrain(ctx); err != nil {
			return fmt.Errorf("drain: %w", err)
		}
	}
	return nil
}

// Assembler accumulates chunks in arrival order until the announced size is reached.
type Assembler struct {
	size     int64
	received int64
	w        io.Writer
	complete bool
}

// NewAssembler writes chunks for a file of size bytes to w.
// A zero-size file is complete from the start.
func NewAssembler(size int64, w io.Writer) *Assembler {
	return &Assembler{
		size:     size,
		w:        w,
		complete: size == 0,
	}
}

// Add appends one chunk. It reports true exactly once, for the chunk that
// brings the received total to the announced size. A chunk that would push
// the total past the size is rejected with ErrOverflow and nothing is written.
func (a *Assembler) Add(chunk []byte) (bool, error) {
	if len(chunk) == 0 {
		return false, nil
	}
	if a.received+int64(len(chunk)) > a.size {
		return false, fmt.Errorf("%w: %d + %d > %d", ErrOverflow, a.received, len(chunk), a.size)
	}

	if _, err := a.w.Write(chunk); err != nil {
		return false, fmt.Errorf("write chunk: %w", err)
	}
	a.received += int64(len(chunk))

	if a.received == a.size && !a.complete {
		a.complete = true
		return true, nil
	}
	return false, nil
}

// Received returns the number of bytes accepted so far.
func (a *Assembler) Received() int64 {
	return a.received
}

// Size returns the announced size.
func (a *Assembler) Size() int64 {
	return a.size
}

// Complete reports whether all bytes have arrived.
func (a *Assembler) Complete() bool {
	return a.complete
}
