package driver

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStatus_String(t *testing.T) {
	assert.Equal(t, "OK", StatusOK.String())
	assert.Equal(t, "WARNING", StatusWarning.String())
	assert.Equal(t, "ERROR", StatusError.String())
	assert.Equal(t, "UNKNOWN", Status(99).String())
}

func TestStatusCell_CompareAndSwap(t *testing.T) {
	c := newStatusCell(StatusOK)
	assert.True(t, c.compareAndSwap(StatusOK, StatusWarning))
	assert.Equal(t, StatusWarning, c.load())

	// a stale old value must not win
	assert.False(t, c.compareAndSwap(StatusOK, StatusError))
	assert.Equal(t, StatusWarning, c.load())
}

func TestStatusCell_StoreOverridesUnconditionally(t *testing.T) {
	c := newStatusCell(StatusWarning)
	c.store(StatusError)
	assert.Equal(t, StatusError, c.load())
}
