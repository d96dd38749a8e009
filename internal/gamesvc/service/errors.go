package service

import (
	"errors"
	"fmt"

	"github.com/avvvet/whodidichoose/internal/comm"
	"github.com/avvvet/whodidichoose/internal/gamesvc/store"
)

var (
	ErrNotFound         = errors.New("not found")
	ErrFull             = errors.New("game is full")
	ErrNotEnoughPlayers = errors.New("not enough players")
	ErrPlayersNotReady  = errors.New("players not ready")
	ErrUnauthorized     = errors.New("unauthorized")
	ErrWriteConflict    = errors.New("write conflict")
	ErrInvalidPhase     = errors.New("invalid phase")
	ErrInvalidInput     = errors.New("invalid input")
)

// fromStore maps store sentinels onto service ones, keeping both in the chain.
func fromStore(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, store.ErrNoRows), errors.Is(err, store.ErrReference):
		return fmt.Errorf("%w: %w", ErrNotFound, err)
	case errors.Is(err, store.ErrStaleVersion), errors.Is(err, store.ErrDuplicate):
		return fmt.Errorf("%w: %w", ErrWriteConflict, err)
	}
	return err
}

// ErrorCode returns the wire code for err.
func ErrorCode(err error) string {
	switch {
	case errors.Is(err, ErrNotFound):
		return comm.CodeNotFound
	case errors.Is(err, ErrFull):
		return comm.CodeFull
	case errors.Is(err, ErrNotEnoughPlayers):
		return comm.CodeNotEnoughPlayers
	case errors.Is(err, ErrPlayersNotReady):
		return comm.CodePlayersNotReady
	case errors.Is(err, ErrUnauthorized):
		return comm.CodeUnauthorized
	case errors.Is(err, ErrWriteConflict):
		return comm.CodeWriteConflict
	case errors.Is(err, ErrInvalidPhase):
		return comm.CodeInvalidPhase
	case errors.Is(err, ErrInvalidInput):
		return comm.CodeInvalidInput
	}
	return comm.CodeInternal
}

// WireError converts err for the envelope. Internal details are not leaked.
func WireError(err error) *comm.Error {
	code := ErrorCode(err)
	if code == comm.CodeInternal {
		return &comm.Error{Code: code, Message: "internal error"}
	}
	return &comm.Error{Code: code, Message: err.Error()}
}

// FromWire turns a wire error back into a service error.
func FromWire(e *comm.Error) error {
	if e == nil {
		return nil
	}
	var sentinel error
	switch e.Code {
	case comm.CodeNotFound:
		sentinel = ErrNotFound
	case comm.CodeFull:
		sentinel = ErrFull
	case comm.CodeNotEnoughPlayers:
		sentinel = ErrNotEnoughPlayers
	case comm.CodePlayersNotReady:
		sentinel = ErrPlayersNotReady
	case comm.CodeUnauthorized:
		sentinel = ErrUnauthorized
	case comm.CodeWriteConflict:
		sentinel = ErrWriteConflict
	case comm.CodeInvalidPhase:
		sentinel = ErrInvalidPhase
	case comm.CodeInvalidInput:
		sentinel = ErrInvalidInput
	default:
		return errors.New(e.Message)
	}
	return fmt.Errorf("%w: %s", sentinel, e.Message)
}
