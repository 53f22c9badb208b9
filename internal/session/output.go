package session

import (
	"bytes"
	"io"
)

// Source is the file an initiator offers.
type Source struct {
	File   Descriptor
	Reader io.ReaderAt
}

// Output receives the responder's reassembled bytes. Commit is called once
// every byte has arrived; Discard drops a partial file.
type Output interface {
	io.Writer
	Commit() (string, error)
	Discard() error
}

// MemoryOutput keeps the received file in memory.
type MemoryOutput struct {
	bytes.Buffer
	Committed bool
	Discarded bool
}

func (m *MemoryOutput) Commit() (string, error) {
	m.Committed = true
	return "", nil
}

func (m *MemoryOutput) Discard() error {
	m.Discarded = true
	m.Reset()
	return nil
}
