package commands

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestBackoffDelay(t *testing.T) {
	assert.Equal(t, 5*time.Second, backoffDelay(1))
	assert.Equal(t, 10*time.Second, backoffDelay(2))
	assert.Equal(t, 20*time.Second, backoffDelay(3))
	assert.Equal(t, 30*time.Second, backoffDelay(4))
	assert.Equal(t, 30*time.Second, backoffDelay(10), "ceiling holds for long outages")
}
