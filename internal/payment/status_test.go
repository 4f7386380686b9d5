package payment

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPaymentTransitions(t *testing.T) {
	assert.True(t, CanTransition(StatusPending, StatusProcessing))
	assert.True(t, CanTransition(StatusPending, StatusSucceeded))
	assert.True(t, CanTransition(StatusProcessing, StatusFailed))
	assert.True(t, CanTransition(StatusSucceeded, StatusRefunded))

	assert.False(t, CanTransition(StatusSucceeded, StatusFailed))
	assert.False(t, CanTransition(StatusFailed, StatusSucceeded))
	assert.False(t, CanTransition(StatusRefunded, StatusSucceeded))
	assert.False(t, CanTransition(StatusCancelled, StatusProcessing))
}
