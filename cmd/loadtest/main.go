// Команда loadtest нагружает HTTP API сервиса клиентов типовыми сценариями.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

const statusTransportError = "transport_error"

type loadMode string

const (
	modeCreate          loadMode = "create"
	modeCreateOrder     loadMode = "create-order"
	modeCreateOrderItem loadMode = "create-order-items"
)

type config struct {
	baseURL     string
	total       int
	totalSet    bool
	duration    time.Duration
	concurrency int
	timeout     time.Duration
	mode        loadMode
	items       int
	product     string
	price       decimal.Decimal
	customerTag string
	outputPath  string
}

func parseConfig(fs *flag.FlagSet, args []string) (config, error) {
	var (
		cfg        config
		modeValue  string
		priceValue string
	)

	fs.StringVar(&cfg.baseURL, "url", "http://localhost:8080", "customer service base URL")
	fs.IntVar(&cfg.total, "total", 400, "total scenarios to execute in count mode; in duration mode only used when explicitly set")
	fs.DurationVar(&cfg.duration, "duration", 0, "optional time-based run duration (e.g. 10m, 15m)")
	fs.IntVar(&cfg.concurrency, "concurrency", 40, "number of concurrent workers")
	fs.DurationVar(&cfg.timeout, "timeout", 5*time.Second, "per-request timeout")
	fs.StringVar(&modeValue, "mode", string(modeCreate), "load mode: create | create-order | create-order-items")
	fs.IntVar(&cfg.items, "items", 2, "items added per order in create-order-items mode")
	fs.StringVar(&cfg.product, "product", "Widget", "product name for order items")
	fs.StringVar(&priceValue, "price", "9.99", "unit price for order items")
	fs.StringVar(&cfg.customerTag, "customer-tag", "load", "customer id prefix")
	fs.StringVar(&cfg.outputPath, "output", "", "optional JSON report output file path")
	if err := fs.Parse(args); err != nil {
		return cfg, err
	}

	fs.Visit(func(f *flag.Flag) {
		if f.Name == "total" {
			cfg.totalSet = true
		}
	})

	mode, err := parseMode(modeValue)
	if err != nil {
		return cfg, err
	}
	cfg.mode = mode

	price, err := decimal.NewFromString(strings.TrimSpace(priceValue))
	if err != nil {
		return cfg, fmt.Errorf("parse price: %w", err)
	}
	cfg.price = price

	if _, err := url.ParseRequestURI(cfg.baseURL); err != nil {
		return cfg, fmt.Errorf("parse url: %w", err)
	}
	cfg.baseURL = strings.TrimRight(cfg.baseURL, "/")

	switch {
	case cfg.duration < 0:
		return cfg, errors.New("duration must be >= 0")
	case cfg.duration == 0 && cfg.total <= 0:
		return cfg, errors.New("total must be > 0 when duration is not set")
	case cfg.duration > 0 && cfg.totalSet && cfg.total <= 0:
		return cfg, errors.New("total must be > 0 when explicitly set with duration")
	case cfg.concurrency <= 0:
		return cfg, errors.New("concurrency must be > 0")
	case cfg.timeout <= 0:
		return cfg, errors.New("timeout must be > 0")
	case cfg.mode == modeCreateOrderItem && cfg.items <= 0:
		return cfg, errors.New("items must be > 0")
	case !cfg.price.IsPositive():
		return cfg, errors.New("price must be > 0")
	case strings.TrimSpace(cfg.product) == "":
		return cfg, errors.New("product is required")
	case strings.TrimSpace(cfg.customerTag) == "":
		return cfg, errors.New("customer-tag is required")
	}

	return cfg, nil
}

func parseMode(value string) (loadMode, error) {
	switch mode := loadMode(strings.TrimSpace(value)); mode {
	case modeCreate, modeCreateOrder, modeCreateOrderItem:
		return mode, nil
	default:
		return "", fmt.Errorf("unsupported mode: %s", value)
	}
}

func main() {
	cfg, err := parseConfig(flag.CommandLine, os.Args[1:])
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "invalid config: %v\n", err)
		os.Exit(1)
	}

	result := run(cfg, &http.Client{})

	printReport(os.Stdout, result, cfg)
	if cfg.outputPath != "" {
		if err := writeJSONReport(cfg.outputPath, result); err != nil {
			_, _ = fmt.Fprintf(os.Stderr, "failed to write report: %v\n", err)
			os.Exit(1)
		}
	}

	if result.FailedScenarios > 0 {
		os.Exit(1)
	}
}

// run выполняет сценарии пулом из cfg.concurrency воркеров и собирает отчёт.
func run(cfg config, httpClient *http.Client) report {
	startedAt := time.Now()
	runID := fmt.Sprintf("%d-%d", startedAt.UnixNano(), os.Getpid())
	col := newCollector()
	client := &apiClient{baseURL: cfg.baseURL, http: httpClient, timeout: cfg.timeout, col: col}

	jobs := make(chan int, cfg.concurrency*2)
	var wg sync.WaitGroup
	for range cfg.concurrency {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for id := range jobs {
				_ = runScenario(client, cfg, id, runID, col)
			}
		}()
	}

	dispatchJobs(jobs, cfg)
	wg.Wait()

	return col.buildReport(startedAt, time.Since(startedAt))
}

func dispatchJobs(jobs chan<- int, cfg config) {
	defer close(jobs)

	if cfg.duration <= 0 {
		for i := 0; i < cfg.total; i++ {
			jobs <- i
		}
		return
	}

	timer := time.NewTimer(cfg.duration)
	defer timer.Stop()

	for i := 0; ; i++ {
		if cfg.totalSet && i >= cfg.total {
			return
		}

		select {
		case <-timer.C:
			return
		case jobs <- i:
		}
	}
}

func runScenario(client *apiClient, cfg config, index int, runID string, col *collector) (err error) {
	scenarioStart := time.Now()
	defer func() {
		status := "ok"
		if err != nil {
			status = "failed"
		}
		col.record(scenarioStep, time.Since(scenarioStart), status, err == nil)
	}()

	customerID := fmt.Sprintf("%s-%s-%d", cfg.customerTag, runID, index)
	if err := client.call("CreateCustomer", http.MethodPost, "/customers", map[string]string{
		"id":   customerID,
		"name": "Load Customer " + strconv.Itoa(index),
	}, http.StatusCreated, nil); err != nil {
		return err
	}
	if cfg.mode == modeCreate {
		return nil
	}

	var order struct {
		ID string `json:"id"`
	}
	if err := client.call("PlaceOrder", http.MethodPost, "/customers/"+customerID+"/orders", nil, http.StatusCreated, &order); err != nil {
		return err
	}
	if order.ID == "" {
		return errors.New("place order response returned empty order id")
	}
	if cfg.mode == modeCreateOrder {
		return nil
	}

	for range cfg.items {
		if err := client.call("AddItemToOrder", http.MethodPost,
			"/customers/"+customerID+"/orders/"+order.ID+"/items",
			map[string]any{"product": cfg.product, "quantity": 1, "price": cfg.price},
			http.StatusOK, nil); err != nil {
			return err
		}
	}
	return nil
}

type apiClient struct {
	baseURL string
	http    *http.Client
	timeout time.Duration
	col     *collector
}

// call выполняет запрос, записывает его в статистику шага и декодирует ответ в out.
func (c *apiClient) call(step, method, path string, body any, wantStatus int, out any) error {
	start := time.Now()
	status, err := c.do(method, path, body, out, wantStatus)

	label := statusTransportError
	if status != 0 {
		label = strconv.Itoa(status)
	}
	c.col.record(step, time.Since(start), label, err == nil)
	return err
}

func (c *apiClient) do(method, path string, body, out any, wantStatus int) (int, error) {
	ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
	defer cancel()

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return 0, fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return 0, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != wantStatus {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return resp.StatusCode, fmt.Errorf("%s %s: unexpected status %d: %s", method, path, resp.StatusCode, bytes.TrimSpace(msg))
	}
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return resp.StatusCode, fmt.Errorf("decode response: %w", err)
		}
	}
	return resp.StatusCode, nil
}
