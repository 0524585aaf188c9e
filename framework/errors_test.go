package framework

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKindOf(t *testing.T) {
	assert.Equal(t, KindFailure, KindOf(errors.New("plain")))
	assert.Equal(t, KindFailure, KindOf(Failure("bad %d", 1)))
	assert.Equal(t, KindNotSupported, KindOf(NotSupported("no group endpoint")))

	wrapped := fmt.Errorf("kick-off: %w", NotSupported("no group endpoint"))
	assert.Equal(t, KindNotSupported, KindOf(wrapped))
	assert.True(t, IsNotSupported(wrapped))
	assert.False(t, IsNotSupported(nil))
}

func TestTestErrorMessage(t *testing.T) {
	cause := errors.New("connection refused")
	err := &TestError{Kind: KindFailure, Message: "token request", Cause: cause}
	assert.Equal(t, "token request: connection refused", err.Error())
	assert.True(t, errors.Is(err, cause))
	assert.Equal(t, "not supported", (&TestError{Kind: KindNotSupported}).Error())
}
