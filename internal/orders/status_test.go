package orders

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCanTransition(t *testing.T) {
	assert.True(t, CanTransition(StatusPending, StatusProcessing))
	assert.True(t, CanTransition(StatusPending, StatusCancelled))
	assert.False(t, CanTransition(StatusProcessing, StatusPending))
	assert.False(t, CanTransition(StatusCancelled, StatusProcessing))
	assert.False(t, CanTransition(Status("UNKNOWN"), StatusProcessing))
}

func TestStatusValid(t *testing.T) {
	for _, s := range AllStatuses {
		assert.True(t, s.Valid(), s)
	}
	assert.False(t, Status("pending").Valid())
}
