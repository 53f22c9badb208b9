package session

import (
	"errors"
	"fmt"
)

var (
	ErrTimeout           = errors.New("timeout")
	ErrPeerDisconnected  = errors.New("peer disconnected")
	ErrTransferCancelled = errors.New("transfer cancelled by peer")
	ErrCancelled         = errors.New("transfer cancelled")
	ErrDeclined          = errors.New("transfer declined")
	ErrRoomNotFound      = errors.New("invalid code")
	ErrRoomFull          = errors.New("room is full")
	ErrAlreadyInRoom     = errors.New("already in a room")
	ErrInvalidCode       = errors.New("please enter a valid 4-digit code")
	ErrSignalingLost     = errors.New("signaling connection lost")
	ErrConnectionLost    = errors.New("connection to peer lost")
	ErrInvalidMetadata   = errors.New("invalid file metadata")
	ErrServer            = errors.New("signaling server error")
)

// TransferError carries the operation a session failure happened in.
type TransferError struct {
	Op      string
	Err     error
	Details string
}

func (e *TransferError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("%s: %v (%s)", e.Op, e.Err, e.Details)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *TransferError) Unwrap() error {
	return e.Err
}

func NewError(op string, err error) *TransferError {
	return &TransferError{Op: op, Err: err}
}

func WrapError(op string, err error, details string) *TransferError {
	return &TransferError{Op: op, Err: err, Details: details}
}
