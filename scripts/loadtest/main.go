package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"sort"
	"strings"
	"sync"
	"text/tabwriter"
	"time"

	"golang.org/x/sync/errgroup"
)

// CLI flags
var (
	apiURL      = flag.String("api-url", "http://localhost:8000", "Lookup API base URL")
	apiKey      = flag.String("api-key", "", "API key for authenticated requests")
	plates      = flag.String("plates", "ABC1D23,BRA2E19,XYZ9999", "Comma-separated plates to look up")
	requests    = flag.Int("requests", 20, "Total number of lookups to send")
	concurrency = flag.Int("concurrency", 4, "Concurrent in-flight lookups")
	output      = flag.String("output", "loadtest-results.json", "JSON output file path")
)

// errorBody mirrors the API error body.
type errorBody struct {
	Code string `json:"code"`
}

type sample struct {
	Plate     string `json:"plate"`
	Status    int    `json:"status"`
	Code      string `json:"code,omitempty"`
	LatencyMs int64  `json:"latency_ms"`
	Error     string `json:"error,omitempty"`
}

type statusSummary struct {
	Status int     `json:"status"`
	Count  int     `json:"count"`
	P50Ms  int64   `json:"p50_ms"`
	P90Ms  int64   `json:"p90_ms"`
	P99Ms  int64   `json:"p99_ms"`
	MaxMs  int64   `json:"max_ms"`
	MeanMs float64 `json:"mean_ms"`
}

type report struct {
	Timestamp   string          `json:"timestamp"`
	APIURL      string          `json:"api_url"`
	Requests    int             `json:"requests"`
	Concurrency int             `json:"concurrency"`
	WallMs      int64           `json:"wall_ms"`
	Summary     []statusSummary `json:"summary"`
	Samples     []sample        `json:"samples"`
}

func main() {
	flag.Parse()

	list := splitPlates(*plates)
	if len(list) == 0 || *requests < 1 || *concurrency < 1 {
		fmt.Fprintln(os.Stderr, "Error: need at least one plate, one request and one worker")
		os.Exit(2)
	}

	fmt.Println("=== placafipe load test ===")
	fmt.Printf("API URL:      %s\n", *apiURL)
	fmt.Printf("Requests:     %d\n", *requests)
	fmt.Printf("Concurrency:  %d\n", *concurrency)
	fmt.Printf("Plates:       %s\n", strings.Join(list, ", "))
	fmt.Println()

	if err := checkAPI(*apiURL); err != nil {
		fmt.Fprintf(os.Stderr, "Error: cannot reach API at %s: %v\n", *apiURL, err)
		os.Exit(1)
	}

	client := &http.Client{Timeout: 150 * time.Second}
	samples := make([]sample, *requests)

	var (
		mu   sync.Mutex
		done int
	)
	g, ctx := errgroup.WithContext(context.Background())
	g.SetLimit(*concurrency)

	start := time.Now()
	for i := 0; i < *requests; i++ {
		plate := list[i%len(list)]
		g.Go(func() error {
			samples[i] = lookupOnce(ctx, client, plate)

			mu.Lock()
			done++
			fmt.Printf("  [%d/%d] %s -> %d %s %dms\n", done, *requests, plate,
				samples[i].Status, samples[i].Code, samples[i].LatencyMs)
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()
	wall := time.Since(start)

	rep := report{
		Timestamp:   time.Now().UTC().Format(time.RFC3339),
		APIURL:      *apiURL,
		Requests:    *requests,
		Concurrency: *concurrency,
		WallMs:      wall.Milliseconds(),
		Summary:     summarize(samples),
		Samples:     samples,
	}

	fmt.Println()
	printTable(rep)

	if err := writeJSON(*output, rep); err != nil {
		fmt.Fprintf(os.Stderr, "Error writing JSON output: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("\nDetailed results written to %s\n", *output)
}

func checkAPI(baseURL string) error {
	client := &http.Client{Timeout: 10 * time.Second}
	resp, err := client.Get(baseURL + "/health")
	if err != nil {
		return err
	}
	resp.Body.Close()
	return nil
}

func lookupOnce(ctx context.Context, client *http.Client, plate string) sample {
	s := sample{Plate: plate}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, *apiURL+"/consultar/"+url.PathEscape(plate), nil)
	if err != nil {
		s.Error = fmt.Sprintf("request error: %v", err)
		return s
	}
	if *apiKey != "" {
		req.Header.Set("X-API-Key", *apiKey)
	}

	start := time.Now()
	resp, err := client.Do(req)
	if err != nil {
		s.LatencyMs = time.Since(start).Milliseconds()
		s.Error = fmt.Sprintf("request failed: %v", err)
		return s
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	s.LatencyMs = time.Since(start).Milliseconds()
	s.Status = resp.StatusCode

	if resp.StatusCode != http.StatusOK {
		var eb errorBody
		if json.Unmarshal(body, &eb) == nil {
			s.Code = eb.Code
		}
	}
	return s
}

// summarize groups samples by HTTP status (0 for transport errors) and
// computes nearest-rank latency percentiles per group.
func summarize(samples []sample) []statusSummary {
	byStatus := map[int][]int64{}
	for _, s := range samples {
		byStatus[s.Status] = append(byStatus[s.Status], s.LatencyMs)
	}

	out := make([]statusSummary, 0, len(byStatus))
	for status, lat := range byStatus {
		sort.Slice(lat, func(i, j int) bool { return lat[i] < lat[j] })
		var sum int64
		for _, v := range lat {
			sum += v
		}
		out = append(out, statusSummary{
			Status: status,
			Count:  len(lat),
			P50Ms:  percentile(lat, 50),
			P90Ms:  percentile(lat, 90),
			P99Ms:  percentile(lat, 99),
			MaxMs:  lat[len(lat)-1],
			MeanMs: float64(sum) / float64(len(lat)),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Status < out[j].Status })
	return out
}

// percentile expects sorted input.
func percentile(sorted []int64, p int) int64 {
	if len(sorted) == 0 {
		return 0
	}
	rank := (p*len(sorted) + 99) / 100
	if rank < 1 {
		rank = 1
	}
	return sorted[rank-1]
}

func printTable(rep report) {
	fmt.Println(strings.Repeat("─", 70))
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "Status\tCount\tp50\tp90\tp99\tMax\n")
	fmt.Fprintf(w, "──────\t─────\t───\t───\t───\t───\n")
	for _, s := range rep.Summary {
		label := fmt.Sprintf("%d", s.Status)
		if s.Status == 0 {
			label = "error"
		}
		fmt.Fprintf(w, "%s\t%d\t%dms\t%dms\t%dms\t%dms\n", label, s.Count, s.P50Ms, s.P90Ms, s.P99Ms, s.MaxMs)
	}
	w.Flush()
	fmt.Println(strings.Repeat("─", 70))
	fmt.Printf("Wall time: %dms  Throughput: %.2f req/s\n",
		rep.WallMs, float64(rep.Requests)/(float64(rep.WallMs)/1000+1e-9))
}

func splitPlates(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func writeJSON(path string, rep report) error {
	data, err := json.MarshalIndent(rep, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}
