package gemini

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsRateLimited(t *testing.T) {
	assert.False(t, isRateLimited(nil))
	assert.False(t, isRateLimited(errors.New("invalid argument")))

	assert.True(t, isRateLimited(errors.New("googleapi: Error 429: Resource exhausted")))
	assert.True(t, isRateLimited(errors.New("Rate limit exceeded")))
	assert.True(t, isRateLimited(errors.New("quota exceeded for model")))
}
