package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestQuestionFingerprint(t *testing.T) {
	a := QuestionFingerprint("Is Villa Samui booked?", "org1")

	assert.Len(t, a, 64)
	assert.Equal(t, a, QuestionFingerprint("  is villa samui BOOKED?\n", "org1"))
	assert.NotEqual(t, a, QuestionFingerprint("Is Villa Samui booked?", "org2"))
	assert.NotEqual(t, QuestionFingerprint("a", "bc"), QuestionFingerprint("ab", "c"))
}
