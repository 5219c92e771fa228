package obs

import (
	"net/http"
	"net/http/httptest"
	"runtime"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestCanonicalPath(t *testing.T) {
	cases := map[string]string{
		"":                          "/",
		"/metrics":                  "/metrics",
		"/v1/events/abc":            "/v1/events/:id",
		"/v1/events/abc/reschedule": "/v1/events/:id/reschedule",
		"/v1/events/abc/messages":   "/v1/events/:id/messages",
		"/v1/events/abc/extra":      "/v1/events/abc/extra",
		"/v1/cases/abc/documents":   "/v1/cases/:id/documents",
		"/v1/cases?limit=10":        "/v1/cases",
		"/v1/agenda/export":         "/v1/agenda/export",
		"/v1/contacts":              "/v1/contacts",
		"/v1/files/cases/c1/x.pdf":  "/v1/files/:key",
	}
	for input, expected := range cases {
		if got := CanonicalPath(input); got != expected {
			t.Fatalf("CanonicalPath(%q)=%q, want %q", input, got, expected)
		}
	}
}

func TestInstrumentCountsCanonicalPath(t *testing.T) {
	h := Instrument(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))
	before := testutil.ToFloat64(httpRequestsTotal.WithLabelValues(http.MethodGet, "/v1/events/:id", "418"))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/v1/events/e-42", nil))
	after := testutil.ToFloat64(httpRequestsTotal.WithLabelValues(http.MethodGet, "/v1/events/:id", "418"))
	if after-before != 1 {
		t.Fatalf("expected one request counted, got %v", after-before)
	}
}

func TestObserveRemote(t *testing.T) {
	before := testutil.ToFloat64(RemoteOps.WithLabelValues("insert_contact", "rolled_back"))
	ObserveRemote("insert_contact", "rolled_back")
	if got := testutil.ToFloat64(RemoteOps.WithLabelValues("insert_contact", "rolled_back")); got-before != 1 {
		t.Fatalf("counter delta %v", got-before)
	}
}

func TestNewLoggerDefaults(t *testing.T) {
	l, err := NewLogger("bogus", "json", "casedesk")
	if err != nil {
		t.Fatalf("NewLogger: %v", err)
	}
	if !l.Core().Enabled(0) || l.Core().Enabled(-1) {
		t.Fatalf("unknown level should fall back to info")
	}
	if OrNop(nil) == nil {
		t.Fatalf("OrNop must never return nil")
	}
}

func TestInitBuildInfo(t *testing.T) {
	InitBuildInfo("1.2.3", "abc123")
	InitBuildInfo("1.2.3", "abc123")
	if got := testutil.ToFloat64(buildInfo.WithLabelValues("1.2.3", "abc123", runtime.Version())); got != 1 {
		t.Fatalf("build info = %v, want 1", got)
	}
}
