// Command duelserver runs one authoritative two-player match over
// websockets and writes its replay artifact on exit. Env vars are read
// once at startup, never mid-tick; construction errors fail loudly rather
// than limping along in a half-initialized state.
package main

import (
	"context"
	"encoding/json"
	stdlog "log"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"duelcore/internal/telemetry/promexport"
	"duelcore/logging"
	"duelcore/logging/sinks"
	"duelcore/match"
	"duelcore/transport/wsadapter"
)

func main() {
	logConfig := logging.DefaultConfig()
	sinkSet := map[string]logging.Sink{
		"console": sinks.NewConsoleSink(os.Stdout),
	}
	if path := os.Getenv("LOG_JSON_PATH"); path != "" {
		jsonSink, err := sinks.NewJSONSink(logging.JSONConfig{FilePath: path})
		if err != nil {
			stdlog.Fatalf("duelserver: open json log sink: %v", err)
		}
		sinkSet["json"] = jsonSink
		logConfig.EnabledSinks = append(logConfig.EnabledSinks, "json")
	}
	router, err := logging.NewRouter(logConfig, logging.SystemClock{}, stdlog.Default(), sinkSet)
	if err != nil {
		stdlog.Fatalf("duelserver: construct logging router: %v", err)
	}
	defer func() {
		if cerr := router.Close(context.Background()); cerr != nil {
			stdlog.Printf("duelserver: close logging router: %v", cerr)
		}
	}()

	exporter := promexport.New("duelcore")

	cfg := match.Config{
		Seed:                 match.DeriveSeed(envOr("MATCH_SEED", "duelcore")),
		TickRateHz:           envInt("TICK_RATE_HZ", 60),
		MaxFutureTicks:       uint64(envInt("MAX_FUTURE_TICKS", 30)),
		InputLeadTicks:       1,
		InputRateLimitPerSec: envInt("INPUT_RATE_LIMIT_PER_SEC", 120),
		MatchDurationTicks:   uint64(envInt("MATCH_DURATION_TICKS", 36000)),
		ConnectTimeout:       time.Duration(envInt("CONNECT_TIMEOUT_MS", 30000)) * time.Millisecond,
		TickDrainBound:       5 * time.Millisecond,
		ArtifactDir:          envOr("ARTIFACT_DIR", "./replays"),
		MatchID:              envOr("MATCH_ID", defaultMatchID()),
		Metrics:              exporter,
	}

	m, err := match.New(cfg, router)
	if err != nil {
		stdlog.Fatalf("duelserver: construct match: %v", err)
	}
	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		w.Write([]byte("ok"))
	})
	mux.HandleFunc("/diagnostics", func(w http.ResponseWriter, r *http.Request) {
		payload := struct {
			Status      string            `json:"status"`
			ServerTime  int64             `json:"serverTime"`
			CurrentTick uint64            `json:"currentTick"`
			Started     bool              `json:"started"`
			Logging     map[string]uint64 `json:"logging"`
		}{
			Status:      "ok",
			ServerTime:  time.Now().UnixMilli(),
			CurrentTick: m.CurrentTick(),
			Started:     m.Started(),
			Logging:     router.MetricsSnapshot(),
		}
		data, err := json.Marshal(payload)
		if err != nil {
			http.Error(w, "failed to encode", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write(data)
	})
	mux.Handle("/metrics", promhttp.HandlerFor(exporter.Registry(), promhttp.HandlerOpts{}))

	upgrader := websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin:     func(r *http.Request) bool { return true },
	}
	mux.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			stdlog.Printf("duelserver: websocket upgrade failed: %v", err)
			return
		}
		peer := wsadapter.New(conn)
		if _, err := m.BindPeer(r.Context(), peer); err != nil {
			stdlog.Printf("duelserver: bind session: %v", err)
			peer.Close()
		}
	})

	server := &http.Server{Addr: envOr("LISTEN_ADDR", ":8080"), Handler: mux}
	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			stdlog.Fatalf("duelserver: http server: %v", err)
		}
	}()

	ctx := context.Background()
	if err := m.AwaitSecondPeer(ctx); err != nil {
		stdlog.Printf("%s: %v", match.AbortedLogToken, err)
		os.Exit(1)
	}

	path, err := m.Run(ctx)
	if err != nil {
		stdlog.Fatalf("duelserver: match loop exited with error: %v", err)
	}
	stdlog.Printf("duelserver: match complete, artifact written to %s", path)
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		stdlog.Printf("duelserver: invalid %s=%q: %v", key, raw, err)
		return fallback
	}
	return value
}

func defaultMatchID() string {
	return "duelcore-" + strconv.FormatInt(time.Now().UnixNano(), 36)
}
