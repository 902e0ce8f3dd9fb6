package ws

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"chat-relay/errors"
)

func TestErrorCode_Taxonomy(t *testing.T) {
	req := require.New(t)
	tests := []struct {
		err  error
		code string
	}{
		{errors.ErrRoomNotFound, "NOT_FOUND"},
		{errors.ErrNotParticipant, "NOT_AUTHORIZED"},
		{errors.ErrNotInRoom, "NOT_IN_ROOM"},
		{errors.ErrContentTooLong, "CONTENT_TOO_LONG"},
		{errors.ErrPersistence, "PERSISTENCE_FAILURE"},
		{errors.ErrAuthenticationFailed, "AUTH_FAILED"},
		{fmt.Errorf("anything else"), "INTERNAL"},
		// Wrapped sentinels still map to their code.
		{fmt.Errorf("%w: disk error", errors.ErrPersistence), "PERSISTENCE_FAILURE"},
	}

	for _, tt := range tests {
		req.Equal(tt.code, errorCode(tt.err), "error %v", tt.err)
	}
}
