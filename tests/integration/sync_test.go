package integration

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/trafficdeck/trafficdeck/internal/api"
	"github.com/trafficdeck/trafficdeck/internal/domain"
	"github.com/trafficdeck/trafficdeck/internal/editor"
	"github.com/trafficdeck/trafficdeck/internal/httpserver/deps"
	"github.com/trafficdeck/trafficdeck/internal/httpserver/routes"
	"github.com/trafficdeck/trafficdeck/internal/logger"
	"github.com/trafficdeck/trafficdeck/internal/notify"
	"github.com/trafficdeck/trafficdeck/internal/registry"
	"github.com/trafficdeck/trafficdeck/internal/scheduler"
	"github.com/trafficdeck/trafficdeck/internal/stream"
)

// controlServer fakes the upstream Traefik service manager: the realtime
// websocket endpoint plus the snapshot and write-back HTTP endpoints.
type controlServer struct {
	*httptest.Server

	mu       sync.Mutex
	conns    []*websocket.Conn
	snapshot []domain.ServiceRecord
	updates  []updateBody
}

type updateBody struct {
	ServiceName string           `json:"service_name"`
	Backends    []domain.Backend `json:"backends"`
}

func newControlServer(t *testing.T, snapshot []domain.ServiceRecord) *controlServer {
	t.Helper()

	cs := &controlServer{snapshot: snapshot}
	upgrader := websocket.Upgrader{}

	mux := http.NewServeMux()
	mux.HandleFunc("/ws/traefik-services", func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		cs.mu.Lock()
		full, _ := json.Marshal(map[string]interface{}{"type": "full", "data": cs.snapshot})
		cs.conns = append(cs.conns, conn)
		cs.mu.Unlock()

		if err := conn.WriteMessage(websocket.TextMessage, full); err != nil {
			return
		}
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	})
	mux.HandleFunc("/api/traefik-services", func(w http.ResponseWriter, r *http.Request) {
		cs.mu.Lock()
		defer cs.mu.Unlock()
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"code": http.StatusOK,
			"data": cs.snapshot,
		})
	})
	mux.HandleFunc("/api/update-traffic-config", func(w http.ResponseWriter, r *http.Request) {
		var body updateBody
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		cs.mu.Lock()
		cs.updates = append(cs.updates, body)
		cs.mu.Unlock()
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"code":    http.StatusOK,
			"message": "Update successful",
		})
	})

	cs.Server = httptest.NewServer(mux)
	t.Cleanup(cs.Close)
	return cs
}

func (cs *controlServer) wsURL() string {
	return "ws" + strings.TrimPrefix(cs.URL, "http") + "/ws/traefik-services"
}

// push sends an update frame on every open realtime connection.
func (cs *controlServer) push(t *testing.T, record domain.ServiceRecord) {
	t.Helper()
	frame, _ := json.Marshal(map[string]interface{}{
		"type": "update",
		"data": []domain.ServiceRecord{record},
	})
	cs.mu.Lock()
	defer cs.mu.Unlock()
	for _, conn := range cs.conns {
		if err := conn.WriteMessage(websocket.TextMessage, frame); err != nil {
			t.Fatalf("push update frame: %v", err)
		}
	}
}

func (cs *controlServer) receivedUpdates() []updateBody {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	out := make([]updateBody, len(cs.updates))
	copy(out, cs.updates)
	return out
}

// stack wires the full pipeline the way the app does: realtime manager into
// the registry, HTTP client into the editor, everything exposed through the
// chi router.
type stack struct {
	registry *registry.Registry
	manager  *stream.Manager
	dash     *httptest.Server
	trigger  chan struct{}
}

func newStack(t *testing.T, cs *controlServer) *stack {
	t.Helper()

	log := logger.New("error", false)
	reg := registry.New()
	throttle := notify.New(30*time.Second, nil)

	client := api.NewClient(api.ClientConfig{
		BaseURL: cs.URL,
		Timeout: 2 * time.Second,
	}, log)

	router := stream.NewRouter(reg, throttle, log)
	manager := stream.NewManager(stream.ManagerConfig{
		URL:               cs.wsURL(),
		ReconnectInterval: 20 * time.Millisecond,
	}, router, throttle, log)
	t.Cleanup(manager.Stop)

	trigger := make(chan struct{}, 1)

	r := chi.NewRouter()
	routes.RegisterAll(r, deps.Deps{
		Logger:         log,
		StartTime:      time.Now(),
		Version:        "test",
		Registry:       reg,
		Stream:         manager,
		Editor:         editor.New(reg, client, log),
		RefreshTrigger: trigger,
		MetricsHandler: http.NotFoundHandler(),
	})

	dash := httptest.NewServer(r)
	t.Cleanup(dash.Close)

	return &stack{registry: reg, manager: manager, dash: dash, trigger: trigger}
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

func twoServices() []domain.ServiceRecord {
	return []domain.ServiceRecord{
		{
			Service: "web-service",
			Status:  domain.StatusOnline,
			Backends: []domain.Backend{
				{ID: "backend-1", Name: "backend-1", Namespace: "default", Port: 8080, Ratio: 50},
				{ID: "backend-2", Name: "backend-2", Namespace: "default", Port: 8080, Ratio: 50},
			},
		},
		{
			Service:  "api-service",
			Status:   domain.StatusOnline,
			Backends: []domain.Backend{{ID: "api-1", Name: "api-1", Ratio: 100}},
		},
	}
}

type listResponse struct {
	Connected bool                   `json:"connected"`
	Services  []domain.ServiceRecord `json:"services"`
}

func TestRealtimeSyncToAPI(t *testing.T) {
	cs := newControlServer(t, twoServices())
	st := newStack(t, cs)

	st.manager.Start()
	waitFor(t, 2*time.Second, func() bool { return st.registry.Count() == 2 })

	resp, err := http.Get(st.dash.URL + "/api/services")
	if err != nil {
		t.Fatalf("GET /api/services: %v", err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	var list listResponse
	if err := json.NewDecoder(resp.Body).Decode(&list); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if !list.Connected {
		t.Error("expected connected=true after websocket dial")
	}
	if len(list.Services) != 2 {
		t.Fatalf("expected 2 services, got %d", len(list.Services))
	}
	if list.Services[0].Service != "web-service" {
		t.Errorf("service order not preserved: got %q first", list.Services[0].Service)
	}

	// An update frame changes ratios without touching the other service.
	cs.push(t, domain.ServiceRecord{
		Service: "web-service",
		Backends: []domain.Backend{
			{ID: "backend-1", Name: "backend-1", Ratio: 80},
			{ID: "backend-2", Name: "backend-2", Ratio: 20},
		},
	})
	waitFor(t, 2*time.Second, func() bool {
		rec, ok := st.registry.Get("web-service")
		return ok && rec.Backends[0].Ratio == 80
	})

	rec, _ := st.registry.Get("web-service")
	if rec.Status != domain.StatusOnline {
		t.Errorf("sparse update must keep status, got %q", rec.Status)
	}
	if other, ok := st.registry.Get("api-service"); !ok || other.Backends[0].Ratio != 100 {
		t.Error("update frame leaked into an unrelated service")
	}
}

func TestTrafficEditRoundTrip(t *testing.T) {
	cs := newControlServer(t, twoServices())
	st := newStack(t, cs)

	st.manager.Start()
	waitFor(t, 2*time.Second, func() bool { return st.registry.Count() == 2 })

	body := []byte(`{"backends":[{"id":"backend-1","ratio":70},{"id":"backend-2","ratio":30}]}`)
	resp, err := http.Post(st.dash.URL+"/api/services/web-service/traffic", "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("POST traffic: %v", err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	updates := cs.receivedUpdates()
	if len(updates) != 1 {
		t.Fatalf("expected 1 write-back, got %d", len(updates))
	}
	if updates[0].ServiceName != "web-service" {
		t.Errorf("write-back service = %q, want web-service", updates[0].ServiceName)
	}
	if got := domain.RatioSum(updates[0].Backends); got != 100 {
		t.Errorf("write-back ratios sum to %d, want 100", got)
	}

	// The local table must not change until the server echoes the edit.
	rec, _ := st.registry.Get("web-service")
	if rec.Backends[0].Ratio != 50 {
		t.Errorf("registry changed before server echo: ratio=%d", rec.Backends[0].Ratio)
	}

	unbalanced := []byte(`{"backends":[{"id":"backend-1","ratio":70},{"id":"backend-2","ratio":50}]}`)
	resp2, err := http.Post(st.dash.URL+"/api/services/web-service/traffic", "application/json", bytes.NewReader(unbalanced))
	if err != nil {
		t.Fatalf("POST unbalanced traffic: %v", err)
	}
	defer func() { _ = resp2.Body.Close() }()
	if resp2.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422 for unbalanced ratios, got %d", resp2.StatusCode)
	}
	if len(cs.receivedUpdates()) != 1 {
		t.Error("unbalanced edit must not reach the server")
	}
}

func TestManualRefreshFallback(t *testing.T) {
	cs := newControlServer(t, twoServices())
	st := newStack(t, cs)

	log := logger.New("error", false)
	client := api.NewClient(api.ClientConfig{BaseURL: cs.URL, Timeout: 2 * time.Second}, log)
	refresher := scheduler.NewRefresher(client, st.registry, log, st.trigger)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	refresher.Start(ctx)
	defer refresher.Stop()

	// Start seeds the registry over HTTP even with no websocket connection.
	waitFor(t, 2*time.Second, func() bool { return st.registry.Count() == 2 })

	// Grow the upstream snapshot, then ask for a refresh through the API.
	cs.mu.Lock()
	cs.snapshot = append(cs.snapshot, domain.ServiceRecord{
		Service:  "new-service",
		Backends: []domain.Backend{{Name: "solo", Ratio: 100}},
	})
	cs.mu.Unlock()

	resp, err := http.Post(st.dash.URL+"/api/refresh", "application/json", http.NoBody)
	if err != nil {
		t.Fatalf("POST /api/refresh: %v", err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("expected 202, got %d", resp.StatusCode)
	}

	waitFor(t, 2*time.Second, func() bool { return st.registry.Count() == 3 })
}
