package forkserver

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRunOnceRejectsWrongState(t *testing.T) {
	d := &Driver{state: stateUninitialised}
	_, _, err := d.RunOnce(time.Second)
	assert.Error(t, err)
}

func TestConstants(t *testing.T) {
	assert.Equal(t, 198, ForksrvFD)
	assert.EqualValues(t, 9, TimeoutSentinel)
}
