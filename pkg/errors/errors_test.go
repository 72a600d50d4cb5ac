package errors

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromErrorKeepsTypedError(t *testing.T) {
	err := fmt.Errorf("outer: %w", Clone(ErrNotFound, "topic not found"))
	appErr := FromError(err)
	require.NotNil(t, appErr)
	assert.Equal(t, ErrNotFound.Code, appErr.Code)
	assert.Equal(t, "topic not found", appErr.Message)
}

func TestFromErrorWrapsUnknownAsInternal(t *testing.T) {
	appErr := FromError(errors.New("boom"))
	assert.Equal(t, ErrInternal.Code, appErr.Code)
	assert.Equal(t, http.StatusInternalServerError, appErr.Status)
}

func TestIsMatchesByCode(t *testing.T) {
	err := Wrap(errors.New("lock lost"), ErrConflict.Code, ErrConflict.Status, "concurrent update")
	assert.ErrorIs(t, err, ErrConflict)
	assert.NotErrorIs(t, err, ErrNotFound)
}

func TestWithDetailsDoesNotMutateOriginal(t *testing.T) {
	detailed := WithDetails(ErrConflict, "committee busy", []string{"DA-2025-000001"})
	assert.Equal(t, []string{"DA-2025-000001"}, detailed.Details)
	assert.Nil(t, ErrConflict.Details)
	assert.Equal(t, "conflict", ErrConflict.Message)
}
