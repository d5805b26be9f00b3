package server

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	dto "github.com/prometheus/client_model/go"

	"github.com/54b3r/docchat-go/internal/chat"
	"github.com/54b3r/docchat-go/internal/ingestion"
	"github.com/54b3r/docchat-go/internal/rag"
	"github.com/54b3r/docchat-go/internal/store"
)

// gathered returns the metric family with the given name, or nil.
func gathered(t *testing.T, reg *prometheus.Registry, name string) *dto.MetricFamily {
	t.Helper()
	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	for _, mf := range mfs {
		if mf.GetName() == name {
			return mf
		}
	}
	return nil
}

// labelled returns the metric in mf whose labels include every pair in want.
func labelled(mf *dto.MetricFamily, want map[string]string) *dto.Metric {
	if mf == nil {
		return nil
	}
	for _, m := range mf.GetMetric() {
		hits := 0
		for _, lp := range m.GetLabel() {
			if v, ok := want[lp.GetName()]; ok && v == lp.GetValue() {
				hits++
			}
		}
		if hits == len(want) {
			return m
		}
	}
	return nil
}

func Test_Metrics_EndpointReturns200(t *testing.T) {
	t.Parallel()
	reg := prometheus.NewRegistry()
	NewMetrics(reg)

	srv := httptest.NewServer(promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	t.Cleanup(srv.Close)

	req, err := http.NewRequestWithContext(t.Context(), http.MethodGet, srv.URL+"/metrics", nil)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("GET /metrics: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Errorf("want 200, got %d", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); !strings.HasPrefix(ct, "text/plain") {
		t.Errorf("want text/plain content-type, got %q", ct)
	}
}

func Test_Metrics_Observers(t *testing.T) {
	t.Parallel()
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	m.ObserveBranch(chat.BranchGrounded)
	m.ObserveBranch(chat.BranchGrounded)
	m.ObserveBranch(chat.BranchFallback)
	m.ObserveTier(rag.TierFallback)
	m.ObserveIngest(ingestion.OutcomeIndexed, 7)
	m.ObserveIngest(ingestion.OutcomeIndexed, 5)
	m.observeChat(chat.BranchGeneral, 1500*time.Millisecond)

	tests := []struct {
		family string
		labels map[string]string
		want   float64
	}{
		{"docchat_chat_turns_total", map[string]string{"branch": "grounded"}, 2},
		{"docchat_chat_turns_total", map[string]string{"branch": "fallback"}, 1},
		{"docchat_retrieval_searches_total", map[string]string{"tier": "fallback"}, 1},
		{"docchat_ingestion_documents_total", map[string]string{"outcome": string(ingestion.OutcomeIndexed)}, 2},
		{"docchat_ingestion_chunks_total", nil, 12},
	}
	for _, tt := range tests {
		metric := labelled(gathered(t, reg, tt.family), tt.labels)
		if metric == nil {
			t.Errorf("%s%v not gathered", tt.family, tt.labels)
			continue
		}
		if got := metric.GetCounter().GetValue(); got != tt.want {
			t.Errorf("%s%v = %v, want %v", tt.family, tt.labels, got, tt.want)
		}
	}

	h := labelled(gathered(t, reg, "docchat_chat_duration_seconds"), map[string]string{"branch": "general"})
	if h == nil || h.GetHistogram().GetSampleCount() != 1 || h.GetHistogram().GetSampleSum() != 1.5 {
		t.Errorf("chat duration histogram not observed: %v", h)
	}
}

func Test_Metrics_NilSafe(t *testing.T) {
	t.Parallel()
	var m *Metrics
	m.ObserveBranch(chat.BranchError)
	m.ObserveTier(rag.TierNone)
	m.ObserveIngest(ingestion.OutcomeFailed, 0)
	m.observeChat(chat.BranchError, time.Second)
	if h := m.instrument(okHandler); h == nil {
		t.Error("instrument on nil metrics must return the handler")
	}
}

func Test_Metrics_HTTPInstrumentedByPattern(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	_, tok := env.user(t, "m@example.com", store.RoleUser)

	wantStatus(t, env.do(t, http.MethodGet, "/api/health", "", nil), http.StatusOK)
	wantStatus(t, env.do(t, http.MethodGet, "/api/threads/abc", tok, nil), http.StatusMethodNotAllowed)
	wantStatus(t, env.do(t, http.MethodGet, "/nowhere", "", nil), http.StatusNotFound)

	mf := gathered(t, env.reg, "docchat_http_requests_total")
	if labelled(mf, map[string]string{"handler": "GET /api/health", "code": "200"}) == nil {
		t.Error("health request not recorded under its route pattern")
	}
	if labelled(mf, map[string]string{"handler": "unmatched", "code": "404"}) == nil {
		t.Error("unmatched request not recorded")
	}
}
