package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/customers/internal/domain"
	"github.com/vladislavdragonenkov/customers/internal/httpserver"
	"github.com/vladislavdragonenkov/customers/internal/metrics"
	"github.com/vladislavdragonenkov/customers/internal/service/customer"
	"github.com/vladislavdragonenkov/customers/internal/service/events"
	"github.com/vladislavdragonenkov/customers/internal/storage/memory"
)

func parseArgs(args ...string) (config, error) {
	fs := flag.NewFlagSet("loadtest", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	return parseConfig(fs, args)
}

func newCustomerAPI(t *testing.T) *httptest.Server {
	t.Helper()

	logger := log.New()
	logger.SetOutput(io.Discard)
	entry := log.NewEntry(logger)

	rules := domain.DefaultBusinessRules()
	m := metrics.NewCustomerMetricsWithRegisterer(prometheus.NewRegistry())
	svc, err := customer.NewService(
		memory.NewCustomerRepository(memory.NewStore(), rules),
		events.NewLoggingDispatcher(entry, m),
		&rules,
		customer.WithLogger(entry),
		customer.WithMetrics(m),
	)
	if err != nil {
		t.Fatalf("new service: %v", err)
	}

	srv := httptest.NewServer(httpserver.NewRouter(svc, nil, prometheus.NewRegistry(), entry))
	t.Cleanup(srv.Close)
	return srv
}

func TestParseMode(t *testing.T) {
	tests := []struct {
		input   string
		want    loadMode
		wantErr bool
	}{
		{input: "create", want: modeCreate},
		{input: "create-order", want: modeCreateOrder},
		{input: " create-order-items ", want: modeCreateOrderItem},
		{input: "bad", wantErr: true},
	}

	for _, tc := range tests {
		got, err := parseMode(tc.input)
		if tc.wantErr {
			if err == nil || !strings.Contains(err.Error(), "unsupported mode") {
				t.Fatalf("%q: expected unsupported mode error, got %v", tc.input, err)
			}
			continue
		}
		if err != nil || got != tc.want {
			t.Fatalf("%q: got %s, %v", tc.input, got, err)
		}
	}
}

func TestParseConfig(t *testing.T) {
	t.Run("count mode", func(t *testing.T) {
		cfg, err := parseArgs(
			"-url=http://127.0.0.1:8080/",
			"-mode=create-order-items",
			"-total=12",
			"-concurrency=3",
			"-timeout=2s",
			"-items=4",
			"-price=1.50",
			"-customer-tag=stage",
		)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !cfg.totalSet || cfg.duration != 0 {
			t.Fatalf("unexpected run target config: %+v", cfg)
		}
		if cfg.baseURL != "http://127.0.0.1:8080" {
			t.Fatalf("expected trailing slash trimmed, got %s", cfg.baseURL)
		}
		if cfg.mode != modeCreateOrderItem || cfg.total != 12 || cfg.concurrency != 3 || cfg.items != 4 {
			t.Fatalf("unexpected config: %+v", cfg)
		}
		if cfg.timeout != 2*time.Second || cfg.price.String() != "1.5" {
			t.Fatalf("unexpected timeout/price: %s %s", cfg.timeout, cfg.price)
		}
	})

	t.Run("duration mode", func(t *testing.T) {
		cfg, err := parseArgs("-duration=3s", "-concurrency=2")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if cfg.duration != 3*time.Second || cfg.totalSet {
			t.Fatalf("unexpected config: %+v", cfg)
		}
	})

	t.Run("validation errors", func(t *testing.T) {
		tests := []struct {
			name    string
			args    []string
			wantErr string
		}{
			{name: "invalid duration", args: []string{"-duration=bad"}, wantErr: "invalid value"},
			{name: "negative duration", args: []string{"-duration=-1s"}, wantErr: "duration must be >= 0"},
			{name: "empty total", args: []string{"-total=0"}, wantErr: "total must be > 0"},
			{name: "bad price", args: []string{"-price=cheap"}, wantErr: "parse price"},
			{name: "zero price", args: []string{"-price=0"}, wantErr: "price must be > 0"},
			{name: "zero items", args: []string{"-mode=create-order-items", "-items=0"}, wantErr: "items must be > 0"},
			{name: "bad url", args: []string{"-url=localhost"}, wantErr: "parse url"},
			{name: "bad mode", args: []string{"-mode=pay"}, wantErr: "unsupported mode"},
		}

		for _, tc := range tests {
			t.Run(tc.name, func(t *testing.T) {
				_, err := parseArgs(tc.args...)
				if err == nil || !strings.Contains(err.Error(), tc.wantErr) {
					t.Fatalf("expected error containing %q, got %v", tc.wantErr, err)
				}
			})
		}
	})
}

func TestDispatchJobs(t *testing.T) {
	t.Run("count mode", func(t *testing.T) {
		jobs := make(chan int, 16)
		dispatchJobs(jobs, config{total: 5})

		var got []int
		for v := range jobs {
			got = append(got, v)
		}
		if !slices.Equal(got, []int{0, 1, 2, 3, 4}) {
			t.Fatalf("unexpected jobs sequence: %v", got)
		}
	})

	t.Run("duration with explicit max total", func(t *testing.T) {
		jobs := make(chan int, 16)
		dispatchJobs(jobs, config{duration: time.Second, total: 3, totalSet: true})
		count := 0
		for range jobs {
			count++
		}
		if count != 3 {
			t.Fatalf("expected 3 jobs, got %d", count)
		}
	})
}

func TestCollectorAndReport(t *testing.T) {
	c := newCollector()
	c.record(scenarioStep, 10*time.Millisecond, "ok", true)
	c.record(scenarioStep, 20*time.Millisecond, "failed", false)
	c.record("CreateCustomer", 15*time.Millisecond, "201", true)

	snap, ok := c.snapshot(scenarioStep)
	if !ok {
		t.Fatalf("scenario snapshot missing")
	}
	if snap.Calls != 2 || snap.Success != 1 || snap.Failed != 1 {
		t.Fatalf("unexpected scenario snapshot: %+v", snap)
	}

	r := c.buildReport(time.Now(), 2*time.Second)
	if r.TotalScenarios != 2 || r.FailedScenarios != 1 || r.ErrorRate != 0.5 {
		t.Fatalf("unexpected report totals: %+v", r)
	}
	if r.RPS != 1 {
		t.Fatalf("expected rps 1, got %f", r.RPS)
	}
	if r.Steps["CreateCustomer"].Statuses["201"] != 1 {
		t.Fatalf("expected CreateCustomer stats in report: %+v", r.Steps)
	}
}

func TestUtilityFunctions(t *testing.T) {
	if got := ratio(1, 4); got != 0.25 {
		t.Fatalf("ratio mismatch: %f", got)
	}
	if got := ratio(1, 0); got != 0 {
		t.Fatalf("ratio with zero total must be 0, got %f", got)
	}

	summary := buildLatencySummary([]float64{40, 10, 30, 20})
	if summary.Min != 10 || summary.Max != 40 || summary.Avg != 25 || summary.P50 != 25 {
		t.Fatalf("unexpected latency summary: %+v", summary)
	}

	if got := runTarget(config{total: 50}); got != "count:50" {
		t.Fatalf("unexpected run target: %s", got)
	}
	if got := runTarget(config{duration: 2 * time.Second, total: 10, totalSet: true}); got != "duration:2s,max-total:10" {
		t.Fatalf("unexpected capped duration run target: %s", got)
	}
}

func TestWriteJSONReport(t *testing.T) {
	path := filepath.Join(t.TempDir(), "report.json")

	if err := writeJSONReport(path, report{TotalScenarios: 2, SuccessScenarios: 2}); err != nil {
		t.Fatalf("writeJSONReport error: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read report: %v", err)
	}
	var decoded report
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("decode report: %v", err)
	}
	if decoded.TotalScenarios != 2 || decoded.SuccessScenarios != 2 {
		t.Fatalf("unexpected decoded report: %+v", decoded)
	}

	if err := writeJSONReport("../escape.json", report{}); err == nil {
		t.Fatal("expected error for path outside current directory")
	}
}

func TestRun_AgainstCustomerAPI(t *testing.T) {
	srv := newCustomerAPI(t)

	cfg, err := parseArgs("-url="+srv.URL, "-mode=create-order-items", "-total=6", "-concurrency=3", "-items=2")
	if err != nil {
		t.Fatalf("parse config: %v", err)
	}

	result := run(cfg, srv.Client())
	if result.TotalScenarios != 6 || result.FailedScenarios != 0 {
		t.Fatalf("unexpected scenarios: %+v", result)
	}
	if got := result.Steps["AddItemToOrder"].Calls; got != 12 {
		t.Fatalf("expected 12 AddItemToOrder calls, got %d", got)
	}
	if got := result.Steps["PlaceOrder"].Statuses["201"]; got != 6 {
		t.Fatalf("expected 6 created orders, got %d", got)
	}

	var out bytes.Buffer
	printReport(&out, result, cfg)
	for _, want := range []string{"Load test summary", "mode=create-order-items", "CreateCustomer: calls=6"} {
		if !strings.Contains(out.String(), want) {
			t.Fatalf("report output missing %q:\n%s", want, out.String())
		}
	}
}

func TestRun_RecordsFailures(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	cfg, err := parseArgs("-url="+srv.URL, "-total=2", "-concurrency=1")
	if err != nil {
		t.Fatalf("parse config: %v", err)
	}

	result := run(cfg, srv.Client())
	if result.FailedScenarios != 2 {
		t.Fatalf("expected 2 failed scenarios, got %+v", result)
	}
	if got := result.Steps["CreateCustomer"].Statuses["503"]; got != 2 {
		t.Fatalf("expected 503 statuses recorded, got %+v", result.Steps["CreateCustomer"])
	}
}

func TestRun_TransportError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	cfg, err := parseArgs("-url="+url, "-total=1", "-concurrency=1", "-timeout=500ms")
	if err != nil {
		t.Fatalf("parse config: %v", err)
	}

	result := run(cfg, &http.Client{})
	if got := result.Steps["CreateCustomer"].Statuses[statusTransportError]; got != 1 {
		t.Fatalf("expected transport error recorded, got %+v", result.Steps)
	}
}
