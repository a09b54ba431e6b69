package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"

	"github.com/angelmondragon/mandi-backend/pkg/logger"
)

func TestRequestIDEchoesWellFormedHeader(t *testing.T) {
	handler := RequestID(logger.Nop())(okHandler())
	req := httptest.NewRequest(http.MethodGet, "/health/live", nil)
	req.Header.Set(requestIDHeader, "edge-7f3a.01_b")
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	if got := rec.Header().Get(requestIDHeader); got != "edge-7f3a.01_b" {
		t.Fatalf("expected echoed id, got %q", got)
	}
}

func TestRequestIDReplacesMalformedHeader(t *testing.T) {
	cases := map[string]string{
		"missing":    "",
		"too long":   strings.Repeat("a", maxRequestIDLen+1),
		"whitespace": "abc def",
		"newline":    "abc\nlevel=error",
	}
	handler := RequestID(logger.Nop())(okHandler())
	for name, header := range cases {
		t.Run(name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/health/live", nil)
			if header != "" {
				req.Header[requestIDHeader] = []string{header}
			}
			rec := httptest.NewRecorder()

			handler.ServeHTTP(rec, req)

			got := rec.Header().Get(requestIDHeader)
			if _, err := uuid.Parse(got); err != nil {
				t.Fatalf("expected generated uuid, got %q", got)
			}
		})
	}
}
