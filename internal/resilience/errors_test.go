package resilience

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/sells-group/prospect-cli/internal/apperr"
)

type timeoutErr struct{}

func (timeoutErr) Error() string   { return "deadline" }
func (timeoutErr) Timeout() bool   { return true }
func (timeoutErr) Temporary() bool { return true }

func TestIsTransient(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"explicit", &TransientError{Err: errors.New("x"), StatusCode: 503}, true},
		{"wrapped explicit", fmt.Errorf("call: %w", &TransientError{Err: errors.New("x")}), true},
		{"net timeout", timeoutErr{}, true},
		{"reset string", errors.New("read tcp: connection reset by peer"), true},
		{"permanent", errors.New("invalid api key"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsTransient(tt.err))
		})
	}
}

func TestStatusError(t *testing.T) {
	err := StatusError("hunter", 429, []byte(`{"errors":"rate limited"}`))
	assert.True(t, apperr.Is(err, apperr.KindProviderUnavailable))
	assert.True(t, IsTransient(err))
	assert.Contains(t, err.Error(), "unexpected status 429")

	err = StatusError("hunter", 401, []byte("unauthorized"))
	assert.True(t, apperr.Is(err, apperr.KindProviderUnavailable))
	assert.False(t, IsTransient(err))
}

func TestUnavailable_KeepsExistingKind(t *testing.T) {
	v := apperr.Validation("op", "bad")
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(Unavailable("x", v)))
	assert.Equal(t, apperr.KindProviderUnavailable, apperr.KindOf(Unavailable("x", errors.New("boom"))))
	assert.NoError(t, Unavailable("x", nil))
}

type codeErr int

func (c codeErr) Error() string   { return fmt.Sprintf("status %d", int(c)) }
func (c codeErr) HTTPStatus() int { return int(c) }

func TestClassify(t *testing.T) {
	assert.True(t, IsTransient(Classify(codeErr(503))))
	assert.True(t, IsTransient(Classify(fmt.Errorf("wrapped: %w", codeErr(429)))))
	assert.False(t, IsTransient(Classify(codeErr(404))))
	assert.NoError(t, Classify(nil))
	plain := errors.New("x")
	assert.Equal(t, plain, Classify(plain))
}
