package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestError_Message(t *testing.T) {
	err := NotFound("store: get lead", "lead", 42)
	assert.Equal(t, "store: get lead: lead not found: 42", err.Error())

	wrapped := Wrap(KindProviderUnavailable, "google: search", errors.New("timeout"))
	assert.Equal(t, "google: search: timeout", wrapped.Error())
}

func TestWrap_Nil(t *testing.T) {
	assert.Nil(t, Wrap(KindInternal, "op", nil))
}

func TestKindOf_ThroughWrapping(t *testing.T) {
	base := New(KindStale, "store: transition", "status changed")
	outer := fmt.Errorf("outreach: %w", base)

	assert.Equal(t, KindStale, KindOf(outer))
	assert.True(t, Is(outer, KindStale))
	assert.False(t, Is(outer, KindNotFound))
	assert.Equal(t, KindUnknown, KindOf(errors.New("plain")))
	assert.False(t, Is(nil, KindUnknown))
}

func TestHTTPStatus(t *testing.T) {
	tests := []struct {
		kind Kind
		want int
	}{
		{KindNotFound, http.StatusNotFound},
		{KindValidation, http.StatusBadRequest},
		{KindConflict, http.StatusConflict},
		{KindInvalidTransition, http.StatusConflict},
		{KindProviderUnavailable, http.StatusBadGateway},
		{KindInternal, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.kind.String(), func(t *testing.T) {
			assert.Equal(t, tt.want, HTTPStatus(New(tt.kind, "op", "msg")))
		})
	}
	assert.Equal(t, http.StatusInternalServerError, HTTPStatus(errors.New("boom")))
}
