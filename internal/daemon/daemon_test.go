package daemon

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/matheus3301/chatdeck/internal/config"
	"go.uber.org/fx"
)

func writeConfig(t *testing.T, mutate func(*config.Config)) string {
	t.Helper()
	cfg := config.Default()
	cfg.LogPath = ""
	if mutate != nil {
		mutate(cfg)
	}
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := config.Save(path, cfg); err != nil {
		t.Fatal(err)
	}
	return path
}

// Regression guard for the fx graph: a provider signature change that fx
// cannot resolve should fail here, not at daemon startup.
func TestModuleGraphResolves(t *testing.T) {
	path := writeConfig(t, nil)
	if err := fx.ValidateApp(Module(Params{ConfigPath: path}), fx.NopLogger); err != nil {
		t.Fatalf("fx graph does not resolve: %v", err)
	}
}

func TestDaemonLifecycle(t *testing.T) {
	var chatCalls atomic.Int32
	upgrader := websocket.Upgrader{}

	mux := http.NewServeMux()
	mux.HandleFunc("/chats", func(w http.ResponseWriter, r *http.Request) {
		chatCalls.Add(1)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`[]`))
	})
	mux.HandleFunc("/stream", func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	path := writeConfig(t, func(cfg *config.Config) {
		cfg.API.BaseURL = srv.URL
		cfg.API.StreamURL = "ws" + strings.TrimPrefix(srv.URL, "http") + "/stream"
		cfg.Sync.PollIntervalMS = 100
		cfg.Sync.GlobalThrottleMS = 1
	})

	app := fx.New(Module(Params{ConfigPath: path}), fx.NopLogger)

	startCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := app.Start(startCtx); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	// The synchronizer's initial cycle should hit the chat list endpoint.
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) && chatCalls.Load() == 0 {
		time.Sleep(10 * time.Millisecond)
	}
	if chatCalls.Load() == 0 {
		t.Error("no chat list fetch after startup")
	}

	stopCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := app.Stop(stopCtx); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}
}
