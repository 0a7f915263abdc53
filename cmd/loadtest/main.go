package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

type workerStats struct {
	generated int
	verified  int
	rejected  int
	errors    int
	latencies []time.Duration
}

func main() {
	var (
		gatewayURL  = flag.String("gateway-url", "http://localhost:8080", "Pattern Gateway URL")
		apiKey      = flag.String("api-key", "", "API key sent in X-API-Key")
		duration    = flag.Duration("duration", 30*time.Second, "Test duration")
		workers     = flag.Int("workers", 5, "Number of worker goroutines")
		qps         = flag.Int("qps", 25, "Queries per second per worker")
		algorithm   = flag.String("algorithm", "hybrid-chaotic", "Generation algorithm")
		gridSize    = flag.Int("grid-size", 8, "Grid size")
		numInks     = flag.Int("num-inks", 4, "Ink count")
		verifyRatio = flag.Float64("verify-ratio", 0.5, "Fraction of generated patterns re-submitted for verification")
		verbose     = flag.Bool("verbose", false, "Enable verbose logging")
	)

	flag.Parse()

	logger := logrus.New()
	if *verbose {
		logger.SetLevel(logrus.DebugLevel)
	} else {
		logger.SetLevel(logrus.InfoLevel)
	}

	fmt.Println("=== Pattern Gateway Load Test Runner ===")
	fmt.Printf("Gateway URL: %s\n", *gatewayURL)
	fmt.Printf("Duration: %v\n", *duration)
	fmt.Printf("Workers: %d\n", *workers)
	fmt.Printf("QPS per Worker: %d\n", *qps)
	fmt.Printf("Algorithm: %s, Grid: %d, Inks: %d\n", *algorithm, *gridSize, *numInks)
	fmt.Println()

	client := &http.Client{Timeout: 10 * time.Second}
	deadline := time.Now().Add(*duration)

	var wg sync.WaitGroup
	stats := make([]workerStats, *workers)
	for i := 0; i < *workers; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			stats[id] = runWorker(client, *gatewayURL, *apiKey, id, deadline, *qps,
				*algorithm, *gridSize, *numInks, *verifyRatio, logger)
		}(i)
	}
	wg.Wait()

	total := workerStats{}
	for _, s := range stats {
		total.generated += s.generated
		total.verified += s.verified
		total.rejected += s.rejected
		total.errors += s.errors
		total.latencies = append(total.latencies, s.latencies...)
	}

	fmt.Println("=== Results ===")
	fmt.Printf("Patterns generated: %d\n", total.generated)
	fmt.Printf("Verifications (ok/rejected): %d/%d\n", total.verified, total.rejected)
	fmt.Printf("Errors: %d\n", total.errors)
	if len(total.latencies) > 0 {
		sort.Slice(total.latencies, func(i, j int) bool { return total.latencies[i] < total.latencies[j] })
		fmt.Printf("Latency p50: %v\n", percentile(total.latencies, 0.50))
		fmt.Printf("Latency p95: %v\n", percentile(total.latencies, 0.95))
		fmt.Printf("Latency p99: %v\n", percentile(total.latencies, 0.99))
	}

	if total.errors > 0 || total.rejected > 0 {
		fmt.Println("Some requests failed or patterns were rejected")
		os.Exit(1)
	}
	fmt.Println("All requests succeeded")
}

func runWorker(client *http.Client, baseURL, apiKey string, id int, deadline time.Time, qps int,
	algorithm string, gridSize, numInks int, verifyRatio float64, logger *logrus.Logger) workerStats {

	var stats workerStats
	interval := time.Second / time.Duration(qps)
	rng := rand.New(rand.NewSource(time.Now().UnixNano() + int64(id)))
	seq := 0

	for time.Now().Before(deadline) {
		start := time.Now()
		seq++

		batchCode := fmt.Sprintf("LOAD-%d-%06d", id, seq)
		body, _ := json.Marshal(map[string]interface{}{
			"batch_code": batchCode,
			"algorithm":  algorithm,
			"grid_size":  gridSize,
			"num_inks":   numInks,
		})

		artifact, err := doPost(client, baseURL+"/v1/patterns", apiKey, body)
		stats.latencies = append(stats.latencies, time.Since(start))
		if err != nil {
			stats.errors++
			logger.WithError(err).Debug("Generation request failed")
		} else {
			stats.generated++

			if rng.Float64() < verifyRatio {
				resp, err := doPost(client, baseURL+"/v1/patterns/verify", apiKey, artifact)
				if err != nil {
					stats.errors++
					logger.WithError(err).Debug("Verification request failed")
				} else {
					var result struct {
						Verified bool `json:"verified"`
					}
					if json.Unmarshal(resp, &result) == nil && result.Verified {
						stats.verified++
					} else {
						stats.rejected++
						logger.WithField("batch_code", batchCode).Warn("Pattern failed verification")
					}
				}
			}
		}

		if sleep := interval - time.Since(start); sleep > 0 {
			time.Sleep(sleep)
		}
	}
	return stats
}

func doPost(client *http.Client, url, apiKey string, body []byte) ([]byte, error) {
	req, err := http.NewRequest("POST", url, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if apiKey != "" {
		req.Header.Set("X-API-Key", apiKey)
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("unexpected status %d: %s", resp.StatusCode, data)
	}
	return data, nil
}

func percentile(sorted []time.Duration, p float64) time.Duration {
	if len(sorted) == 0 {
		return 0
	}
	idx := int(float64(len(sorted)-1) * p)
	return sorted[idx]
}
