package scrape

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalScraper_KeepsMarkup(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Contains(t, r.Header.Get("User-Agent"), "ProspectBot")
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte(`<html><head><title> Acme Bakery </title></head>
<body><a href="mailto:hello@acme.example">Email us</a></body></html>`))
	}))
	defer srv.Close()

	page, err := NewLocalScraper(0, nil).Scrape(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.Equal(t, "local_http", page.Source)
	assert.Equal(t, "Acme Bakery", page.Title)
	assert.Contains(t, page.HTML, "mailto:hello@acme.example")
}

func TestLocalScraper_Failures(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
		wantErr string
	}{
		{"cloudflare", func(w http.ResponseWriter, _ *http.Request) {
			w.Header().Set("Cf-Ray", "abc123")
			w.WriteHeader(http.StatusForbidden)
		}, "blocked"},
		{"not found", func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte("<html><body>missing page here</body></html>"))
		}, "status 404"},
		{"empty", func(w http.ResponseWriter, _ *http.Request) {
			_, _ = w.Write([]byte("   "))
		}, "empty page"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(tt.handler)
			defer srv.Close()

			_, err := NewLocalScraper(0, nil).Scrape(context.Background(), srv.URL)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
