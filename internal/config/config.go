package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

type DB struct {
	User string
	Pass string
	Host string
	Port string
	Name string
}

type NSQ struct {
	NsqdTCPAddr     string // e.g. nsqd:4150
	LookupHTTPAddr  string // e.g. http://nsqlookupd:4161
	DeliveriesTopic string // NSQ topic carrying delivery tasks
	DLQTopic        string // dead letter topic
	WorkerChannel   string // NSQ channel name for workers
}

type Backoff struct {
	Base       time.Duration // delay after the first failed attempt
	Multiplier float64
	Ceiling    time.Duration
	JitterPct  float64 // 0.0-1.0
}

type Worker struct {
	Backoff       Backoff
	SweepInterval time.Duration // how often due retries are swept
	SweepLimit    int           // max deliveries per sweep pass
	PublishDLQ    bool          // publish exhausted deliveries to the DLQ topic
	HTTPPort      string        // worker health/metrics port
}

type Receiver struct {
	FailFirstN    int           // number of requests to fail initially
	Secret        string        // secret for signature verification
	ResponseDelay time.Duration // simulated response delay
	Port          string        // server listen port
	ReadTimeout   time.Duration
	WriteTimeout  time.Duration
	IdleTimeout   time.Duration
}

type Config struct {
	AppName  string
	DB       DB
	NSQ      NSQ
	Worker   Worker
	Receiver Receiver
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}

func getenvFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func getenvBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
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

func FromEnv() Config {
	return Config{
		AppName: getenv("APP_NAME", "tidehook"),
		DB: DB{
			User: getenv("DB_USER", "postgres"),
			Pass: getenv("DB_PASS", "postgres"),
			Host: getenv("DB_HOST", "postgres"),
			Port: getenv("DB_PORT", "5432"),
			Name: getenv("DB_NAME", "tidehook"),
		},
		NSQ: NSQ{
			NsqdTCPAddr:     getenv("NSQD_TCP_ADDR", "nsqd:4150"),
			LookupHTTPAddr:  getenv("NSQ_LOOKUP_HTTP_ADDR", "http://nsqlookupd:4161"),
			DeliveriesTopic: getenv("NSQ_DELIVERIES_TOPIC", "deliveries"),
			DLQTopic:        getenv("NSQ_DLQ_TOPIC", "deliveries_dlq"),
			WorkerChannel:   getenv("NSQ_WORKER_CHANNEL", "workers"),
		},
		Worker: Worker{
			Backoff: Backoff{
				Base:       getenvDuration("BACKOFF_BASE", time.Minute),
				Multiplier: getenvFloat("BACKOFF_MULTIPLIER", 2.0),
				Ceiling:    getenvDuration("BACKOFF_CEILING", time.Hour),
				JitterPct:  getenvFloat("BACKOFF_JITTER_PCT", 0.2),
			},
			SweepInterval: getenvDuration("SWEEP_INTERVAL", 30*time.Second),
			SweepLimit:    getenvInt("SWEEP_LIMIT", 100),
			PublishDLQ:    getenvBool("PUBLISH_DLQ_TOPIC", false),
			HTTPPort:      ":" + getenv("WORKER_HTTP_PORT", "8083"),
		},
		Receiver: Receiver{
			FailFirstN:    getenvInt("FAIL_FIRST_N", 0),
			Secret:        getenv("RECEIVER_SECRET", ""),
			ResponseDelay: getenvDuration("RESPONSE_DELAY", 0),
			Port:          getenv("RECEIVER_PORT", ":8081"),
			ReadTimeout:   getenvDuration("RECEIVER_READ_TIMEOUT", 10*time.Second),
			WriteTimeout:  getenvDuration("RECEIVER_WRITE_TIMEOUT", 10*time.Second),
			IdleTimeout:   getenvDuration("RECEIVER_IDLE_TIMEOUT", 60*time.Second),
		},
	}
}

func (c Config) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=disable",
		c.DB.User, c.DB.Pass, c.DB.Host, c.DB.Port, c.DB.Name)
}
