package netx

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestDownload(t *testing.T) {
	payload := []byte(`{"metadata":{},"content":""}`)

	t.Run("success 200 OK", func(t *testing.T) {
		var gotMethod, gotQuery string

		ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			gotMethod = r.Method
			gotQuery = r.URL.RawQuery
			_, _ = w.Write(payload)
		}))
		defer ts.Close()

		got, err := Download(context.Background(), ts.URL+"/backups/b.json?X-Amz-Signature=abc")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if gotMethod != http.MethodGet {
			t.Fatalf("method = %q, want GET", gotMethod)
		}
		if gotQuery != "X-Amz-Signature=abc" {
			t.Fatalf("query = %q, want the presigned signature", gotQuery)
		}
		if string(got) != string(payload) {
			t.Fatalf("body = %q, want %q", got, payload)
		}
	})

	t.Run("non-200 -> error", func(t *testing.T) {
		ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusForbidden)
			_, _ = w.Write([]byte("SignatureDoesNotMatch"))
		}))
		defer ts.Close()

		_, err := Download(context.Background(), ts.URL)
		if err == nil {
			t.Fatal("expected error, got nil")
		}
		if !strings.Contains(err.Error(), "download failed: 403") || !strings.Contains(err.Error(), "SignatureDoesNotMatch") {
			t.Fatalf("error = %q, want status and body", err.Error())
		}
	})

	t.Run("network error", func(t *testing.T) {
		ts := httptest.NewServer(http.NotFoundHandler())
		ts.Close()

		_, err := Download(context.Background(), ts.URL)
		if err == nil {
			t.Fatal("expected error, got nil")
		}
		if strings.Contains(err.Error(), "download failed") {
			t.Fatalf("got wrong kind of error: %v", err)
		}
	})

	t.Run("context deadline", func(t *testing.T) {
		ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			<-r.Context().Done()
		}))
		defer ts.Close()

		ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
		defer cancel()

		_, err := Download(ctx, ts.URL)
		if !errors.Is(err, context.DeadlineExceeded) {
			t.Fatalf("error = %v, want deadline exceeded", err)
		}
	})

	t.Run("bad url", func(t *testing.T) {
		if _, err := Download(context.Background(), "://nope"); err == nil {
			t.Fatal("expected error, got nil")
		}
	})
}
