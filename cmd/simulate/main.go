package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"math/rand"
	"net/http"
	"os"
	"sort"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/mindhaven/provider-calendar/internal/db"
	"github.com/mindhaven/provider-calendar/internal/storage"
)

// simulate hammers the calendar API with overlapping unavailability
// marks, booking requests and accepts for a small set of providers, to
// observe that conflicting writes are rejected rather than committed.

type simConfig struct {
	APIBaseURL string
	Duration   time.Duration
	Workers    int
}

type opMetrics struct {
	total     int64
	success   int64
	conflict  int64
	errored   int64
	mu        sync.Mutex
	latencies []time.Duration
}

func (m *opMetrics) record(latency time.Duration, status int) {
	atomic.AddInt64(&m.total, 1)
	switch {
	case status >= 200 && status < 300:
		atomic.AddInt64(&m.success, 1)
	case status == http.StatusConflict || status == http.StatusUnprocessableEntity:
		atomic.AddInt64(&m.conflict, 1)
	default:
		atomic.AddInt64(&m.errored, 1)
	}
	m.mu.Lock()
	m.latencies = append(m.latencies, latency)
	m.mu.Unlock()
}

func (m *opMetrics) percentile(p float64) time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.latencies) == 0 {
		return 0
	}
	sorted := make([]time.Duration, len(m.latencies))
	copy(sorted, m.latencies)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
	idx := int(p * float64(len(sorted)-1))
	return sorted[idx]
}

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)

	cfg := simConfig{
		APIBaseURL: envOr("SIM_API_URL", "http://127.0.0.1:8080"),
		Duration:   envDuration("SIM_DURATION", 30*time.Second),
		Workers:    envInt("SIM_WORKERS", 8),
	}

	providers, err := loadProviderIDs()
	if err != nil {
		log.Fatalf("load provider ids: %v", err)
	}
	if len(providers) == 0 {
		log.Fatal("no providers found; run cmd/seed first")
	}
	log.Printf("simulating against %d providers for %s with %d workers",
		len(providers), cfg.Duration, cfg.Workers)

	metrics := map[string]*opMetrics{
		"mark":    {},
		"request": {},
		"accept":  {},
		"read":    {},
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Duration)
	defer cancel()

	client := &http.Client{Timeout: 10 * time.Second}
	var pendingIDs sync.Map // sessionID -> providerID

	var wg sync.WaitGroup
	for w := 0; w < cfg.Workers; w++ {
		wg.Add(1)
		go func(seed int64) {
			defer wg.Done()
			rng := rand.New(rand.NewSource(seed))
			for ctx.Err() == nil {
				provider := providers[rng.Intn(len(providers))]
				switch rng.Intn(10) {
				case 0, 1, 2:
					doMark(ctx, client, cfg.APIBaseURL, provider, rng, metrics["mark"])
				case 3, 4, 5:
					doRequest(ctx, client, cfg.APIBaseURL, provider, rng, metrics["request"], &pendingIDs)
				case 6, 7:
					doAccept(ctx, client, cfg.APIBaseURL, rng, metrics["accept"], &pendingIDs)
				default:
					doRead(ctx, client, cfg.APIBaseURL, provider, metrics["read"])
				}
			}
		}(time.Now().UnixNano() + int64(w))
	}
	wg.Wait()

	for name, m := range metrics {
		log.Printf("%-8s total=%d success=%d conflict=%d error=%d p50=%s p95=%s",
			name, m.total, m.success, m.conflict, m.errored,
			m.percentile(0.50), m.percentile(0.95))
	}
}

func doMark(ctx context.Context, client *http.Client, base, provider string, rng *rand.Rand, m *opMetrics) {
	date := time.Now().UTC().AddDate(0, 0, rng.Intn(14)).Format("2006-01-02")
	body := map[string]any{"date": date, "full_day": rng.Intn(3) == 0}
	if !body["full_day"].(bool) {
		start := 9 + rng.Intn(6)
		body["start"] = fmt.Sprintf("%02d:00", start)
		body["end"] = fmt.Sprintf("%02d:00", start+1+rng.Intn(3))
		body["reason"] = "Load test block"
	}
	post(ctx, client, base+"/providers/"+provider+"/unavailability", body, m)
}

func doRequest(ctx context.Context, client *http.Client, base, provider string, rng *rand.Rand, m *opMetrics, pending *sync.Map) {
	body := map[string]any{
		"client_name": "Load Tester",
		"date":        time.Now().UTC().AddDate(0, 0, 1+rng.Intn(14)).Format("2006-01-02"),
		"time":        fmt.Sprintf("%02d:00", 9+rng.Intn(8)),
		"duration":    60,
	}
	status, resp := post(ctx, client, base+"/providers/"+provider+"/sessions", body, m)
	if status == http.StatusCreated {
		var sess struct {
			ID string `json:"id"`
		}
		if json.Unmarshal(resp, &sess) == nil && sess.ID != "" {
			pending.Store(sess.ID, provider)
		}
	}
}

func doAccept(ctx context.Context, client *http.Client, base string, rng *rand.Rand, m *opMetrics, pending *sync.Map) {
	var id, provider string
	pending.Range(func(k, v any) bool {
		id, provider = k.(string), v.(string)
		return rng.Intn(3) != 0
	})
	if id == "" {
		return
	}
	pending.Delete(id)
	post(ctx, client, base+"/providers/"+provider+"/sessions/"+id+"/accept", struct{}{}, m)
}

func doRead(ctx context.Context, client *http.Client, base, provider string, m *opMetrics) {
	month := time.Now().UTC().Format("2006-01")
	start := time.Now()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		base+"/providers/"+provider+"/calendar?month="+month, nil)
	if err != nil {
		return
	}
	resp, err := client.Do(req)
	if err != nil {
		m.record(time.Since(start), 0)
		return
	}
	io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
	m.record(time.Since(start), resp.StatusCode)
}

func post(ctx context.Context, client *http.Client, url string, body any, m *opMetrics) (int, []byte) {
	payload, err := json.Marshal(body)
	if err != nil {
		return 0, nil
	}
	start := time.Now()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return 0, nil
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := client.Do(req)
	if err != nil {
		m.record(time.Since(start), 0)
		return 0, nil
	}
	defer resp.Body.Close()
	data, _ := io.ReadAll(resp.Body)
	m.record(time.Since(start), resp.StatusCode)
	return resp.StatusCode, data
}

func loadProviderIDs() ([]string, error) {
	dsn := os.Getenv("POSTGRES_DSN")
	if dsn == "" {
		return nil, fmt.Errorf("POSTGRES_DSN is required")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := db.ConnectPostgres(ctx, dsn)
	if err != nil {
		return nil, err
	}
	defer pool.Close()

	return storage.NewPgStore(pool).ProviderIDs(ctx)
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func envDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}
