package main

import (
	"fmt"
	"io"
	"log"
	"net/http"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/tidehook/tidehook/internal/config"
	"github.com/tidehook/tidehook/internal/signer"
)

const (
	sigHeader = "X-Tidehook-Signature"
	tsHeader  = "X-Tidehook-Timestamp"
)

// receiver is a configurable webhook endpoint for local and integration
// testing: it verifies signatures, simulates flakiness, and exposes a
// permanently-gone route.
type receiver struct {
	secret     string
	failFirstN int
	delay      time.Duration
	maxSkew    time.Duration
	reqCount   atomic.Int64
}

func main() {
	cfg := config.FromEnv().Receiver

	rcv := &receiver{
		secret:     cfg.Secret,
		failFirstN: cfg.FailFirstN,
		delay:      cfg.ResponseDelay,
		maxSkew:    5 * time.Minute,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) { _, _ = w.Write([]byte(`{"ok":true}`)) })
	mux.HandleFunc("/hook", rcv.handleHook)
	mux.HandleFunc("/gone", func(w http.ResponseWriter, _ *http.Request) {
		// Simulates a decommissioned endpoint; the sender should disable us.
		http.Error(w, "this endpoint no longer exists", http.StatusGone)
	})

	srv := &http.Server{
		Addr:         cfg.Port,
		Handler:      mux,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}
	log.Printf("fake-receiver listening on %s", cfg.Port)
	log.Fatal(srv.ListenAndServe())
}

func (rc *receiver) handleHook(w http.ResponseWriter, r *http.Request) {
	count := rc.reqCount.Add(1)
	b, _ := io.ReadAll(r.Body)
	defer r.Body.Close()

	if rc.delay > 0 {
		time.Sleep(rc.delay)
	}

	if rc.secret != "" {
		if ok, msg := rc.verify(b, r.Header.Get(tsHeader), r.Header.Get(sigHeader)); !ok {
			log.Printf("fake-receiver failed to verify signature: %s", msg)
			http.Error(w, "invalid signature: "+msg, http.StatusUnauthorized)
			return
		}
	}

	// Simulate flakiness: first N requests -> 500
	if count <= int64(rc.failFirstN) {
		log.Printf("FAILING (%d/%d) %s headers=%d body=%s", count, rc.failFirstN, r.URL.Path, len(r.Header), truncate(string(b), 160))
		http.Error(w, "temporary failure", http.StatusInternalServerError)
		return
	}

	log.Printf("fake-receiver OK %s  headers=%d body=%q", r.URL.Path, len(r.Header), truncate(string(b), 160))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`ok`))
}

// verify checks the hex HMAC-SHA256 of the exact body bytes and rejects stale
// timestamps.
func (rc *receiver) verify(body []byte, ts, sig string) (bool, string) {
	if ts == "" || sig == "" {
		return false, "missing headers"
	}
	unix, err := strconv.ParseInt(ts, 10, 64)
	if err != nil {
		return false, "invalid timestamp"
	}
	now := time.Now().Unix()
	if abs64(now-unix) > int64(rc.maxSkew.Seconds()) {
		return false, "timestamp too far from now (outside leeway)"
	}
	if !signer.Verify(rc.secret, body, sig) {
		return false, "sig mismatch"
	}
	return true, ""
}

// abs64 returns the absolute value of an int64
func abs64(x int64) int64 {
	if x < 0 {
		return -x
	}
	return x
}

// truncate truncates a string to the specified length and adds an ellipsis if truncated
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return fmt.Sprintf("%s...", s[:n])
}
