package interpreter

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGenerateRunIDIsUniquePerCall(t *testing.T) {
	a := generateRunID("grasp")
	b := generateRunID("grasp")
	assert.NotEqual(t, a, b)
	assert.True(t, strings.HasPrefix(a, "grasp-"))
	assert.True(t, strings.HasPrefix(b, "grasp-"))
}

func TestGenerateRunIDSanitizesDottedLeafNames(t *testing.T) {
	id := generateRunID("arm.grasp")
	assert.True(t, strings.HasPrefix(id, "arm-grasp-"))
	assert.False(t, strings.Contains(strings.TrimPrefix(id, "arm-grasp-"), "."))
}
