package httpclient

import (
	"bytes"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestNewDefaults(t *testing.T) {
	client := New(Options{})
	if client.Timeout != defaultTimeout {
		t.Fatalf("timeout = %v", client.Timeout)
	}
	transport, ok := client.Transport.(*http.Transport)
	if !ok {
		t.Fatalf("transport = %T", client.Transport)
	}
	if transport.ResponseHeaderTimeout != defaultTimeout {
		t.Fatalf("header timeout = %v", transport.ResponseHeaderTimeout)
	}

	client = New(Options{Timeout: 5 * time.Second, PreferIPv4: true})
	if client.Timeout != 5*time.Second {
		t.Fatalf("timeout = %v", client.Timeout)
	}
}

func TestLoggingTransportOmitsCredentials(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))
	defer srv.Close()

	var buf bytes.Buffer
	log := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	client := New(Options{Logger: log})

	req, err := http.NewRequest(http.MethodPost, srv.URL+"/v1beta/models/m:generateContent?key=secret-key", nil)
	if err != nil {
		t.Fatal(err)
	}
	req.Header.Set("x-goog-api-key", "secret-key")
	resp, err := client.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()

	out := buf.String()
	if !strings.Contains(out, "status=418") || !strings.Contains(out, "path=/v1beta/models/m:generateContent") {
		t.Fatalf("log = %s", out)
	}
	if strings.Contains(out, "secret-key") {
		t.Fatalf("credential leaked into log: %s", out)
	}
}
