package vla

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHash64StableAndSensitive(t *testing.T) {
	assert.Equal(t, Hash64("abc"), Hash64("abc"))
	assert.NotEqual(t, Hash64("abc"), Hash64("abd"))
}

func TestHashRequestIgnoresCallMetadata(t *testing.T) {
	a := baseRequest()
	b := baseRequest()
	b.RunID = "different-run"
	b.NodeName = "different-node"
	b.TickIndex = 99

	assert.Equal(t, HashRequest(a), HashRequest(b))
}

func TestHashRequestSensitiveToActionSpace(t *testing.T) {
	a := baseRequest()
	b := baseRequest()
	b.ActionSpace.Bounds[0].Hi = 2.0

	assert.NotEqual(t, HashRequest(a), HashRequest(b))
}
