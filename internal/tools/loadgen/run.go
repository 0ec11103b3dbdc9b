package loadgen

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math/rand/v2"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sandeepkv93/credential-manager-go/internal/observability"
)

type Config struct {
	BaseURL     string
	Profile     string
	Duration    time.Duration
	RPS         int
	Concurrency int
	Seed        int64
	// LoginEmail and LoginPassword drive the login profile. The seed tool's
	// verified demo account is the default.
	LoginEmail    string
	LoginPassword string
}

type Result struct {
	TotalRequests int64
	Failures      int64
	Status2xx     int64
	Status4xx     int64
	Status5xx     int64
}

type request struct {
	method string
	path   string
	body   any
}

func Run(ctx context.Context, cfg Config) (Result, error) {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "http://localhost:8080"
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.Duration <= 0 {
		cfg.Duration = 10 * time.Second
	}
	if cfg.RPS <= 0 {
		cfg.RPS = 15
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 5
	}
	if cfg.LoginEmail == "" {
		cfg.LoginEmail = "verified@example.com"
		cfg.LoginPassword = "DemoPassw0rd!"
	}
	profile := strings.ToLower(cfg.Profile)
	if profile == "" {
		profile = "mixed"
	}
	gen, err := generatorForProfile(profile, cfg)
	if err != nil {
		return Result{}, err
	}

	client := &http.Client{Timeout: 5 * time.Second}
	ctx, cancel := context.WithTimeout(ctx, cfg.Duration)
	defer cancel()

	var total, failures, s2xx, s4xx, s5xx int64
	jobs := make(chan request, cfg.Concurrency*2)
	var wg sync.WaitGroup

	for i := 0; i < cfg.Concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for job := range jobs {
				code, err := send(ctx, client, cfg.BaseURL, job)
				if err != nil {
					atomic.AddInt64(&failures, 1)
					observability.RecordLoadgenRequest(ctx, "error", profile)
					continue
				}
				atomic.AddInt64(&total, 1)
				class := fmt.Sprintf("%dxx", code/100)
				observability.RecordLoadgenRequest(ctx, class, profile)
				switch {
				case code >= 200 && code < 300:
					atomic.AddInt64(&s2xx, 1)
				case code >= 400 && code < 500:
					atomic.AddInt64(&s4xx, 1)
				case code >= 500:
					atomic.AddInt64(&s5xx, 1)
				}
			}
		}()
	}

	rng := rand.New(rand.NewPCG(uint64(cfg.Seed), uint64(cfg.Seed)>>1|1))
	ticker := time.NewTicker(time.Second / time.Duration(cfg.RPS))
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			close(jobs)
			wg.Wait()
			return Result{
				TotalRequests: atomic.LoadInt64(&total),
				Failures:      atomic.LoadInt64(&failures),
				Status2xx:     atomic.LoadInt64(&s2xx),
				Status4xx:     atomic.LoadInt64(&s4xx),
				Status5xx:     atomic.LoadInt64(&s5xx),
			}, nil
		case <-ticker.C:
			select {
			case jobs <- gen(rng):
			case <-ctx.Done():
			}
		}
	}
}

func send(ctx context.Context, client *http.Client, baseURL string, job request) (int, error) {
	var body bytes.Buffer
	if job.body != nil {
		if err := json.NewEncoder(&body).Encode(job.body); err != nil {
			return 0, err
		}
	}
	req, err := http.NewRequestWithContext(ctx, job.method, baseURL+job.path, &body)
	if err != nil {
		return 0, err
	}
	if job.body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := client.Do(req)
	if err != nil {
		return 0, err
	}
	_ = resp.Body.Close()
	return resp.StatusCode, nil
}

func generatorForProfile(profile string, cfg Config) (func(*rand.Rand) request, error) {
	register := func(r *rand.Rand) request {
		return request{http.MethodPost, "/api/v1/auth/register", map[string]string{
			"full_name": "Load Test",
			"email":     fmt.Sprintf("loadgen+%x@example.com", r.Uint64()),
			"password":  "LoadGen!Passw0rd",
		}}
	}
	login := func(r *rand.Rand) request {
		password := cfg.LoginPassword
		if r.IntN(4) == 0 {
			password = "wrong-password"
		}
		return request{http.MethodPost, "/api/v1/auth/login", map[string]string{"email": cfg.LoginEmail, "password": password}}
	}
	forgot := func(r *rand.Rand) request {
		return request{http.MethodPost, "/api/v1/auth/password/forgot", map[string]string{
			"email": fmt.Sprintf("unknown+%x@example.com", r.Uint64()),
		}}
	}
	badToken := func(r *rand.Rand) request {
		return request{http.MethodGet, fmt.Sprintf("/api/v1/auth/verify/%x", r.Uint64()), nil}
	}

	switch profile {
	case "register":
		return register, nil
	case "login":
		return login, nil
	case "forgot":
		return forgot, nil
	case "mixed":
		all := []func(*rand.Rand) request{register, login, login, forgot}
		return func(r *rand.Rand) request { return all[r.IntN(len(all))](r) }, nil
	case "error-heavy":
		all := []func(*rand.Rand) request{badToken, forgot, login}
		return func(r *rand.Rand) request { return all[r.IntN(len(all))](r) }, nil
	default:
		return nil, fmt.Errorf("unknown profile: %s", profile)
	}
}
