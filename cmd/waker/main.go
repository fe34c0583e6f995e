// Command waker is the automated player of a dweebs run. On a schedule it
// observes the run, picks a sleeper to strike and interrupts it through the
// admin API.
package main

import (
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/talgya/swift-dreams/internal/waker"
)

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	apiURL := envOrDefault("DWEEBS_API_URL", "http://localhost:8080")
	adminKey := os.Getenv("DWEEBS_ADMIN_KEY")
	interval := envOrDefault("WAKER_INTERVAL", "5s")
	memoryPath := envOrDefault("WAKER_MEMORY", "data/waker_memory.json")
	seed := envInt64OrDefault("WAKER_SEED", time.Now().UnixNano())

	if adminKey == "" {
		slog.Error("DWEEBS_ADMIN_KEY is required")
		os.Exit(1)
	}

	slog.Info("waker starting", "api_url", apiURL, "interval", interval, "seed", seed)

	w := waker.New(apiURL, adminKey, seed, waker.LoadMemory(memoryPath))

	slog.Info("waiting for dweebs API...")
	waitForAPI(apiURL)

	runCycle(w)

	c := cron.New()
	if _, err := c.AddFunc("@every "+interval, func() { runCycle(w) }); err != nil {
		slog.Error("invalid WAKER_INTERVAL", "interval", interval, "error", err)
		os.Exit(1)
	}
	c.Start()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	slog.Info("received signal, shutting down", "signal", sig)
	<-c.Stop().Done()
	fmt.Println("Waker stopped.")
}

func runCycle(w *waker.Waker) {
	decision, err := w.RunCycle()
	if err != nil {
		slog.Error("waker cycle failed", "error", err)
		return
	}
	if decision.Action == waker.ActionNone {
		slog.Info("waker cycle complete, no strike", "rationale", decision.Rationale)
	}
}

func envOrDefault(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func envInt64OrDefault(key string, defaultVal int64) int64 {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			return n
		}
	}
	return defaultVal
}

// waitForAPI polls the status endpoint with exponential backoff until it
// responds. Exits after 5 minutes if the API never becomes ready.
func waitForAPI(apiURL string) {
	backoff := 2 * time.Second
	maxBackoff := 30 * time.Second
	deadline := time.Now().Add(5 * time.Minute)

	for {
		resp, err := http.Get(apiURL + "/api/v1/status")
		if err == nil {
			resp.Body.Close()
			if resp.StatusCode == http.StatusOK {
				slog.Info("dweebs API is ready")
				return
			}
		}
		if time.Now().After(deadline) {
			slog.Error("dweebs API did not become ready within 5 minutes")
			os.Exit(1)
		}
		slog.Info("dweebs API not ready, retrying...", "backoff", backoff)
		time.Sleep(backoff)
		backoff = min(backoff*2, maxBackoff)
	}
}
