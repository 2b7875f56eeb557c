package api

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/dgnsrekt/rewardrunner/internal/cdpcontrol"
	"github.com/dgnsrekt/rewardrunner/internal/controller"
	"github.com/dgnsrekt/rewardrunner/internal/events"
	"github.com/dgnsrekt/rewardrunner/internal/runner"
)

type stubService struct {
	status   controller.Status
	start    controller.StartResult
	startErr error
	catalog  controller.CatalogInfo
}

func (s *stubService) Status(ctx context.Context) (controller.Status, error) { return s.status, nil }

func (s *stubService) StartSearches(ctx context.Context) (controller.StartResult, error) {
	return s.start, s.startErr
}

func (s *stubService) HandleMessage(ctx context.Context, msg controller.Message) (any, error) {
	switch msg.Action {
	case controller.ActionGetStatus:
		return s.status.StatusReply, nil
	case controller.ActionStartSearches:
		return s.start, nil
	default:
		return nil, cdpcontrol.NewError(cdpcontrol.CodeValidation, "unknown action", nil)
	}
}

func (s *stubService) Catalog(ctx context.Context) (controller.CatalogInfo, error) {
	return s.catalog, nil
}

func serve(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, r)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func TestDocsDarkMode(t *testing.T) {
	h := NewServer(&stubService{}, nil)
	w := serve(t, h, http.MethodGet, "/docs", "")

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	if !strings.Contains(w.Body.String(), `data-theme="dark"`) {
		t.Fatalf("docs missing dark theme marker")
	}
}

func TestHealth(t *testing.T) {
	h := NewServer(&stubService{}, nil)
	w := serve(t, h, http.MethodGet, "/health", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	if !strings.Contains(w.Body.String(), `"status":"ok"`) {
		t.Fatalf("body = %s", w.Body.String())
	}
}

func TestStatusUsesCamelCaseFields(t *testing.T) {
	h := NewServer(&stubService{status: controller.Status{
		StatusReply: controller.StatusReply{IsSearching: true, CurrentSearchCount: 2, TotalSearches: 5},
		RunID:       "run-1",
	}}, nil)
	w := serve(t, h, http.MethodGet, "/api/v1/status", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	var got map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got["isSearching"] != true || got["currentSearchCount"] != float64(2) || got["totalSearches"] != float64(5) {
		t.Fatalf("status body = %v", got)
	}
	if got["runId"] != "run-1" {
		t.Fatalf("runId = %v", got["runId"])
	}
	if _, ok := got["startedAt"]; ok {
		t.Fatalf("startedAt should be omitted when unset: %v", got)
	}
}

func TestStartSearchesStatusCodes(t *testing.T) {
	tests := []struct {
		name   string
		result string
		want   int
	}{
		{"started", controller.StartStarted, http.StatusAccepted},
		{"busy", controller.StartBusy, http.StatusConflict},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewServer(&stubService{start: controller.StartResult{Status: tt.result}}, nil)
			w := serve(t, h, http.MethodPost, "/api/v1/searches/start", "")
			if w.Code != tt.want {
				t.Fatalf("status = %d, want %d (body %s)", w.Code, tt.want, w.Body.String())
			}
			if !strings.Contains(w.Body.String(), `"status":"`+tt.result+`"`) {
				t.Fatalf("body = %s", w.Body.String())
			}
		})
	}
}

func TestMessageGetStatus(t *testing.T) {
	h := NewServer(&stubService{status: controller.Status{
		StatusReply: controller.StatusReply{CurrentSearchCount: 1, TotalSearches: 5},
		RunID:       "run-1",
	}}, nil)
	w := serve(t, h, http.MethodPost, "/api/v1/message", `{"action":"getStatus"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d (body %s)", w.Code, http.StatusOK, w.Body.String())
	}
	var got map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	delete(got, "$schema")
	if len(got) != 3 || got["currentSearchCount"] != float64(1) || got["isSearching"] != false {
		t.Fatalf("getStatus reply = %v", got)
	}
}

func TestMessageUnknownAction(t *testing.T) {
	h := NewServer(&stubService{}, nil)
	w := serve(t, h, http.MethodPost, "/api/v1/message", `{"action":"stopSearches"}`)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusBadRequest)
	}
}

func TestCatalog(t *testing.T) {
	h := NewServer(&stubService{catalog: controller.CatalogInfo{Count: 2, Terms: []string{"a", "b"}}}, nil)
	w := serve(t, h, http.MethodGet, "/api/v1/catalog", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	if !strings.Contains(w.Body.String(), `"terms":["a","b"]`) {
		t.Fatalf("body = %s", w.Body.String())
	}
}

func TestMetricsEndpointRecordsRoutePattern(t *testing.T) {
	h := NewServer(&stubService{}, nil)
	serve(t, h, http.MethodGet, "/api/v1/status", "")

	w := serve(t, h, http.MethodGet, "/metrics", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	body := w.Body.String()
	want := `rewardrunner_http_requests_total{method="GET",path="/api/v1/status",status="200"}`
	if !strings.Contains(body, want) {
		t.Fatalf("metrics missing %s", want)
	}
}

func TestEventStream(t *testing.T) {
	broker := events.NewBroker()
	srv := httptest.NewServer(NewServer(&stubService{}, broker))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/api/v1/events?types=run_finished", nil)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("GET events: %v", err)
	}
	defer resp.Body.Close()
	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("Content-Type = %q", ct)
	}

	go func() {
		for broker.ClientCount() == 0 {
			time.Sleep(5 * time.Millisecond)
		}
		broker.Publish(events.New(events.TypeRunStarted, "run-1", nil))
		broker.Publish(events.New(events.TypeRunFinished, "run-1", map[string]any{"outcome": "completed"}))
	}()

	scanner := bufio.NewScanner(resp.Body)
	for scanner.Scan() {
		line := scanner.Text()
		if strings.HasPrefix(line, "event: ") {
			if got := strings.TrimPrefix(line, "event: "); got != events.TypeRunFinished {
				t.Fatalf("event = %q, want %q", got, events.TypeRunFinished)
			}
			return
		}
	}
	t.Fatalf("stream ended without an event: %v", scanner.Err())
}

func TestMapErr(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"validation", cdpcontrol.NewError(cdpcontrol.CodeValidation, "bad", nil), http.StatusBadRequest},
		{"tab not found", cdpcontrol.NewError(cdpcontrol.CodeTabNotFound, "gone", nil), http.StatusNotFound},
		{"element not found", cdpcontrol.NewError(cdpcontrol.CodeElementNotFound, "gone", nil), http.StatusNotFound},
		{"busy", fmt.Errorf("start: %w", runner.ErrBusy), http.StatusConflict},
		{"navigation", cdpcontrol.NewError(cdpcontrol.CodeNavigation, "dns", nil), http.StatusBadGateway},
		{"cdp", cdpcontrol.NewError(cdpcontrol.CodeCDPUnavailable, "down", nil), http.StatusBadGateway},
		{"timeout", cdpcontrol.NewError(cdpcontrol.CodeEvalTimeout, "slow", nil), http.StatusGatewayTimeout},
		{"eval", cdpcontrol.NewError(cdpcontrol.CodeEvalFailure, "boom", nil), http.StatusInternalServerError},
		{"plain", errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var se huma.StatusError
			if !errors.As(mapErr(tt.err), &se) {
				t.Fatalf("mapErr() = %T, want huma.StatusError", mapErr(tt.err))
			}
			if se.GetStatus() != tt.want {
				t.Fatalf("status = %d, want %d", se.GetStatus(), tt.want)
			}
		})
	}
	if mapErr(nil) != nil {
		t.Fatal("mapErr(nil) != nil")
	}
}
