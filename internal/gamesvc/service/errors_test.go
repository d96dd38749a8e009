package service

import (
	"errors"
	"fmt"
	"testing"

	"github.com/avvvet/whodidichoose/internal/comm"
	"github.com/avvvet/whodidichoose/internal/gamesvc/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorCode(t *testing.T) {
	tests := []struct {
		err  error
		code string
	}{
		{fmt.Errorf("join: %w", ErrNotFound), comm.CodeNotFound},
		{ErrFull, comm.CodeFull},
		{ErrNotEnoughPlayers, comm.CodeNotEnoughPlayers},
		{ErrPlayersNotReady, comm.CodePlayersNotReady},
		{ErrUnauthorized, comm.CodeUnauthorized},
		{ErrWriteConflict, comm.CodeWriteConflict},
		{ErrInvalidPhase, comm.CodeInvalidPhase},
		{ErrInvalidInput, comm.CodeInvalidInput},
		{errors.New("boom"), comm.CodeInternal},
		{fromStore(store.ErrStaleVersion), comm.CodeWriteConflict},
		{fromStore(fmt.Errorf("get game: %w", store.ErrNoRows)), comm.CodeNotFound},
		{fromStore(store.ErrReference), comm.CodeNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			assert.Equal(t, tt.code, ErrorCode(tt.err))
		})
	}
}

func TestWireErrorHidesInternals(t *testing.T) {
	e := WireError(errors.New("pq: connection refused"))
	assert.Equal(t, comm.CodeInternal, e.Code)
	assert.NotContains(t, e.Message, "connection")

	e = WireError(fmt.Errorf("%w: only the turn holder can flip cards", ErrUnauthorized))
	assert.Equal(t, comm.CodeUnauthorized, e.Code)
	assert.Contains(t, e.Message, "turn holder")
}

func TestFromWire(t *testing.T) {
	require.NoError(t, FromWire(nil))

	err := FromWire(&comm.Error{Code: comm.CodeWriteConflict, Message: "stale"})
	require.ErrorIs(t, err, ErrWriteConflict)

	err = FromWire(&comm.Error{Code: comm.CodeInternal, Message: "internal error"})
	require.Error(t, err)
	assert.Equal(t, comm.CodeInternal, ErrorCode(err))
}
