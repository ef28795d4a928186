package jina

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRead_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/https://acme.example", r.URL.Path)
		assert.Equal(t, "Bearer key", r.Header.Get("Authorization"))
		assert.Equal(t, "html", r.Header.Get("X-Return-Format"))
		_, _ = w.Write([]byte(`{"code":200,"data":{"title":"Acme","url":"https://acme.example","html":"<a href=\"mailto:hi@acme.example\">mail</a>"}}`))
	}))
	defer srv.Close()

	resp, err := NewClient("key", WithBaseURL(srv.URL)).Read(context.Background(), "https://acme.example", FormatHTML)
	require.NoError(t, err)
	assert.Equal(t, "Acme", resp.Data.Title)
	assert.Contains(t, resp.Data.Body(), "mailto:hi@acme.example")
}

func TestRead_AnonymousDefaultsToMarkdown(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Empty(t, r.Header.Get("Authorization"))
		assert.Equal(t, "markdown", r.Header.Get("X-Return-Format"))
		_, _ = w.Write([]byte(`{"code":200,"data":{"content":"# Acme"}}`))
	}))
	defer srv.Close()

	resp, err := NewClient("", WithBaseURL(srv.URL)).Read(context.Background(), "https://acme.example", "")
	require.NoError(t, err)
	assert.Equal(t, "# Acme", resp.Data.Body())
}

func TestRead_StatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte("slow down"))
	}))
	defer srv.Close()

	_, err := NewClient("key", WithBaseURL(srv.URL)).Read(context.Background(), "https://acme.example", FormatMarkdown)
	var se *StatusError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, http.StatusTooManyRequests, se.HTTPStatus())
	assert.Contains(t, se.Error(), "slow down")
}
