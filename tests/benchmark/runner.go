// Copyright (c) 2026 Khaled Abbas
//
// This source code is licensed under the Business Source License 1.1.
//
// Change Date: 4 years after the first public release of this version.
// Change License: MIT
//
// On the Change Date, this version of the code automatically converts
// to the MIT License. Prior to that date, use is subject to the
// Additional Use Grant. See the LICENSE file for details.

package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"os"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
)

const (
	colorReset  = "\033[0m"
	colorRed    = "\033[31m"
	colorGreen  = "\033[32m"
	colorYellow = "\033[33m"
	colorCyan   = "\033[36m"
	colorGray   = "\033[90m"
	colorBold   = "\033[1m"
)

type client struct {
	base string
	http *http.Client
}

func main() {
	suite := flag.String("suite", "", "Suite to run (lifecycle, load)")
	apiHost := flag.String("api_host", "", "Task API host")
	apiPort := flag.String("api_port", "", "Task API port")
	tasks := flag.Int("tasks", 200, "Tasks to drive through the load suite")
	workers := flag.Int("workers", 16, "Concurrent clients for the load suite")
	flag.Parse()

	if *suite == "" {
		fmt.Printf("%sPlease specify a suite using --suite=[lifecycle|load]%s\n", colorRed, colorReset)
		os.Exit(1)
	}

	// Load API location from .env or defaults
	_ = godotenv.Load("../../.env")
	host := firstNonEmpty(*apiHost, os.Getenv("API_HOST"), "localhost")
	port := firstNonEmpty(*apiPort, os.Getenv("PORT"), "5000")

	c := &client{
		base: fmt.Sprintf("http://%s:%s", host, port),
		http: &http.Client{Timeout: 15 * time.Second},
	}

	fmt.Printf("\n%s%s %s TASK MASTER BENCHMARK %s %s%s\n", colorCyan, colorBold, ">>", "SUITE: "+*suite, "<<", colorReset)

	var err error
	switch *suite {
	case "lifecycle":
		err = runLifecycle(c)
	case "load":
		err = runLoad(c, *tasks, *workers)
	default:
		err = fmt.Errorf("unknown suite %q", *suite)
	}
	if err != nil {
		fmt.Printf("%s[ERR]%s %v\n", colorRed, colorReset, err)
		os.Exit(1)
	}
}

// runLifecycle walks one task through create, status change and delete,
// checking every status code and body along the way.
func runLifecycle(c *client) error {
	code, task, err := c.do(http.MethodPost, "/tasks", map[string]any{"title": "Buy milk", "status": "done"})
	if err != nil {
		return err
	}
	if code != http.StatusCreated || task["status"] != "pending" {
		return fmt.Errorf("create: got %d %v, want 201 with status pending", code, task)
	}
	id, _ := task["_id"].(string)
	step("created task " + id)

	code, task, err = c.do(http.MethodPut, "/tasks/"+id, map[string]any{"status": "done"})
	if err != nil {
		return err
	}
	if code != http.StatusOK || task["status"] != "done" {
		return fmt.Errorf("replace status: got %d %v", code, task)
	}
	step("status replaced with done")

	code, body, err := c.do(http.MethodPatch, "/tasks/"+id, map[string]any{"title": "Buy oat milk"})
	if err != nil {
		return err
	}
	if code != http.StatusOK {
		return fmt.Errorf("partial update: got %d %v", code, body)
	}
	step("title patched")

	code, body, err = c.do(http.MethodDelete, "/tasks/"+id, nil)
	if err != nil {
		return err
	}
	if code != http.StatusOK || body["message"] != "Task deleted successfully" {
		return fmt.Errorf("delete: got %d %v", code, body)
	}
	step("task deleted")

	code, _, err = c.do(http.MethodDelete, "/tasks/"+id, nil)
	if err != nil {
		return err
	}
	if code != http.StatusNotFound {
		return fmt.Errorf("second delete: got %d, want 404", code)
	}
	step("second delete reports not found")

	fmt.Printf("\n%s%s Lifecycle Completed Successfully! %s%s\n", colorGreen, colorBold, "✓", colorReset)
	return nil
}

type loadResult struct {
	latencies []time.Duration
	failed    int64
}

// runLoad pushes n tasks through create, replace-status, patch and delete
// with the given number of concurrent workers.
func runLoad(c *client, n, workers int) error {
	if n <= 0 || workers <= 0 {
		return fmt.Errorf("tasks and workers must be positive")
	}
	run := uuid.New().String()[:8]

	jobs := make(chan int)
	var mu sync.Mutex
	var res loadResult
	var done atomic.Int64

	record := func(d time.Duration, ok bool) {
		mu.Lock()
		res.latencies = append(res.latencies, d)
		mu.Unlock()
		if !ok {
			atomic.AddInt64(&res.failed, 1)
		}
	}

	start := time.Now()
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				c.cycle(run, i, record)
				done.Add(1)
			}
		}()
	}

	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()
	finished := make(chan struct{})
	go func() {
		for i := 0; i < n; i++ {
			jobs <- i
		}
		close(jobs)
		wg.Wait()
		close(finished)
	}()

	fmt.Printf("%s%-10s %-12s %-10s%s\n", colorGray+colorBold, "ELAPSED", "TASKS", "FAILED", colorReset)
	fmt.Println(colorGray + "----------------------------------" + colorReset)
	for {
		select {
		case <-ticker.C:
			fmt.Printf("\r%-10s %s%-12d%s %s%-10d%s",
				time.Since(start).Round(time.Second).String(),
				colorGreen, done.Load(), colorReset,
				colorYellow, atomic.LoadInt64(&res.failed), colorReset)
		case <-finished:
			fmt.Printf("\n%s----------------------------------%s\n", colorGray, colorReset)
			printReport(res, n, time.Since(start))
			if res.failed > 0 {
				return fmt.Errorf("%d requests failed", res.failed)
			}
			return nil
		}
	}
}

func (c *client) cycle(run string, i int, record func(time.Duration, bool)) {
	timed := func(method, path string, body any, want int) map[string]any {
		t0 := time.Now()
		code, out, err := c.do(method, path, body)
		record(time.Since(t0), err == nil && code == want)
		return out
	}

	task := timed(http.MethodPost, "/tasks", map[string]any{"title": fmt.Sprintf("load-%s-%d", run, i)}, http.StatusCreated)
	id, _ := task["_id"].(string)
	if id == "" {
		return
	}
	timed(http.MethodPut, "/tasks/"+id, map[string]any{"status": "done"}, http.StatusOK)
	timed(http.MethodPatch, "/tasks/"+id, map[string]any{"note": "benchmark"}, http.StatusOK)
	timed(http.MethodDelete, "/tasks/"+id, nil, http.StatusOK)
}

func (c *client) do(method, path string, body any) (int, map[string]any, error) {
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return 0, nil, err
		}
	}
	req, err := http.NewRequest(method, c.base+path, &buf)
	if err != nil {
		return 0, nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()

	var out map[string]any
	_ = json.NewDecoder(resp.Body).Decode(&out)
	return resp.StatusCode, out, nil
}

func printReport(res loadResult, tasks int, duration time.Duration) {
	sort.Slice(res.latencies, func(i, j int) bool { return res.latencies[i] < res.latencies[j] })
	total := len(res.latencies)

	successRate := 100.0
	if total > 0 {
		successRate = float64(int64(total)-res.failed) / float64(total) * 100
	}

	fmt.Println("\n" + colorCyan + colorBold + "┏━━━━━━━━━━━━━━━━━━━━━━ REPORT ━━━━━━━━━━━━━━━━━━━━━━┓" + colorReset)

	lineFmt := colorCyan + "┃" + colorReset + "  %-22s " + colorBold + "%-25s" + colorCyan + "┃" + colorReset

	fmt.Printf(lineFmt+"\n", "Duration:", duration.Truncate(time.Millisecond).String())
	fmt.Printf(lineFmt+"\n", "Tasks:", fmt.Sprintf("%d", tasks))
	fmt.Printf(lineFmt+"\n", "Requests:", fmt.Sprintf("%d", total))

	failedColor := colorGreen
	if res.failed > 0 {
		failedColor = colorRed
	}
	fmt.Printf(colorCyan+"┃"+"  %-22s "+failedColor+colorBold+"%-25s"+colorCyan+"┃"+colorReset+"\n", "  - Failed:", fmt.Sprintf("%d", res.failed))

	fmt.Printf(lineFmt+"\n", "Success Rate:", fmt.Sprintf("%.2f%%", successRate))
	fmt.Printf(lineFmt+"\n", "Throughput (RPS):", fmt.Sprintf("%.2f req/sec", float64(total)/duration.Seconds()))
	fmt.Printf(lineFmt+"\n", "p50 Latency:", percentile(res.latencies, 0.50).String())
	fmt.Printf(lineFmt+"\n", "p99 Latency:", percentile(res.latencies, 0.99).String())

	fmt.Println(colorCyan + colorBold + "┗━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━┛" + colorReset)
}

func percentile(sorted []time.Duration, p float64) time.Duration {
	if len(sorted) == 0 {
		return 0
	}
	idx := int(float64(len(sorted)-1) * p)
	return sorted[idx].Truncate(time.Microsecond)
}

func step(msg string) {
	fmt.Printf("%s[OK]%s %s\n", colorGreen, colorReset, msg)
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
