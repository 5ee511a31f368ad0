package main

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tidehook/tidehook/internal/config"
)

// nsqStats is the slice of nsqd's /stats JSON this monitor reads.
type nsqStats struct {
	Topics []struct {
		TopicName string `json:"topic_name"`
		Channels  []struct {
			ChannelName   string `json:"channel_name"`
			Depth         int64  `json:"depth"`
			InFlightCount int64  `json:"in_flight_count"`
		} `json:"channels"`
		Depth int64 `json:"depth"`
	} `json:"topics"`
}

var (
	// Total delivery-task backlog, the main alerting signal.
	queueBacklog = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "tidehook_queue_backlog",
		Help: "Messages waiting in the worker channel of the deliveries topic",
	})

	dlqDepth = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "tidehook_dlq_depth",
		Help: "Messages sitting in the dead letter topic",
	})

	channelDepth = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "tidehook_nsq_channel_depth",
		Help: "Depth of NSQ channels by topic and channel",
	}, []string{"topic", "channel"})

	channelInflight = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "tidehook_nsq_channel_inflight",
		Help: "In-flight messages for NSQ channels by topic and channel",
	}, []string{"topic", "channel"})
)

func init() {
	prometheus.MustRegister(queueBacklog)
	prometheus.MustRegister(dlqDepth)
	prometheus.MustRegister(channelDepth)
	prometheus.MustRegister(channelInflight)
}

// watched names the topics and the worker channel the monitor cares about.
type watched struct {
	DeliveriesTopic string
	DLQTopic        string
	WorkerChannel   string
}

func main() {
	cfg := config.FromEnv()
	nsqdHTTPAddr := getenv("NSQD_HTTP_ADDR", "nsqd:4151")
	port := getenv("MONITOR_PORT", "8084")
	interval := getenvDuration("POLL_INTERVAL", 15*time.Second)

	w := watched{
		DeliveriesTopic: cfg.NSQ.DeliveriesTopic,
		DLQTopic:        cfg.NSQ.DLQTopic,
		WorkerChannel:   cfg.NSQ.WorkerChannel,
	}

	log.Printf("nsq-monitor starting on port %s", port)
	log.Printf("monitoring nsqd at %s every %s", nsqdHTTPAddr, interval)

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		statsURL := fmt.Sprintf("http://%s/stats?format=json", nsqdHTTPAddr)
		for range ticker.C {
			if err := updateMetrics(statsURL, w); err != nil {
				log.Printf("stats update failed: %v", err)
			}
		}
	}()

	http.Handle("/metrics", promhttp.Handler())
	http.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		fmt.Fprintln(w, "OK")
	})

	log.Fatal(http.ListenAndServe(":"+port, nil))
}

// updateMetrics pulls one stats snapshot and refreshes the gauges.
func updateMetrics(statsURL string, w watched) error {
	resp, err := http.Get(statsURL)
	if err != nil {
		return fmt.Errorf("get nsq stats: %w", err)
	}
	defer resp.Body.Close()

	var stats nsqStats
	if err := json.NewDecoder(resp.Body).Decode(&stats); err != nil {
		return fmt.Errorf("decode nsq stats: %w", err)
	}

	for _, topic := range stats.Topics {
		switch topic.TopicName {
		case w.DeliveriesTopic:
			for _, channel := range topic.Channels {
				if channel.ChannelName == w.WorkerChannel {
					queueBacklog.Set(float64(channel.Depth))
				}
				channelDepth.WithLabelValues(topic.TopicName, channel.ChannelName).Set(float64(channel.Depth))
				channelInflight.WithLabelValues(topic.TopicName, channel.ChannelName).Set(float64(channel.InFlightCount))
			}
		case w.DLQTopic:
			dlqDepth.Set(float64(topic.Depth))
		}
	}
	return nil
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}
