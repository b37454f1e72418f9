package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"sort"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// Test configuration
type LoadTestConfig struct {
	BaseURL           string
	MerchantCode      string
	CashierUserID     string
	OwnerUserID       string
	CardIDs           []int64
	RequestsPerSecond int
	DurationSeconds   int
	Amount            string
}

// Stats tracking
type Stats struct {
	successCount  atomic.Int64
	errorCount    atomic.Int64
	errorKinds    sync.Map
	responseTimes []float64
	mu            sync.Mutex
}

func (s *Stats) addResponseTime(duration float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.responseTimes = append(s.responseTimes, duration)
}

func (s *Stats) getResponseTimes() []float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	times := make([]float64, len(s.responseTimes))
	copy(times, s.responseTimes)
	return times
}

func (s *Stats) fail(kind string) {
	s.errorCount.Add(1)
	v, _ := s.errorKinds.LoadOrStore(kind, new(atomic.Int64))
	v.(*atomic.Int64).Add(1)
}

func call(client *http.Client, config LoadTestConfig, op, user string, body any) (int, map[string]any, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return 0, nil, err
	}
	req, err := http.NewRequest("POST", config.BaseURL+"/api/v1/rpc/"+op, bytes.NewBuffer(payload))
	if err != nil {
		return 0, nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Auth-User-Id", user)

	resp, err := client.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, nil, err
	}
	var out map[string]any
	_ = json.Unmarshal(raw, &out)
	return resp.StatusCode, out, nil
}

func errorKind(body map[string]any) string {
	if e, ok := body["error"].(map[string]any); ok {
		if k, ok := e["kind"].(string); ok {
			return k
		}
	}
	return "UNKNOWN"
}

// chargeOnce rotates a QR for cardID as its owner and charges it as the
// cashier. Only the charge is timed.
func chargeOnce(client *http.Client, config LoadTestConfig, cardID int64, seq int64, stats *Stats) {
	status, body, err := call(client, config, "rotate_card_qr", config.OwnerUserID, map[string]any{
		"card_id":   cardID,
		"card_type": "personal",
	})
	if err != nil {
		stats.fail("TRANSPORT")
		return
	}
	if status != 200 {
		stats.fail("ROTATE_" + errorKind(body))
		return
	}

	start := time.Now()
	status, body, err = call(client, config, "merchant_charge_by_qr", config.CashierUserID, map[string]any{
		"merchant_code":   config.MerchantCode,
		"qr_plain":        body["qr_plain"],
		"raw_price":       config.Amount,
		"idempotency_key": fmt.Sprintf("load-%d-%d-%d", time.Now().UnixNano(), cardID, seq),
	})
	stats.addResponseTime(time.Since(start).Seconds())
	if err != nil {
		stats.fail("TRANSPORT")
		return
	}
	if status == 200 {
		stats.successCount.Add(1)
		return
	}
	stats.fail(errorKind(body))
}

// worker owns one card: a card has a single live QR, so two workers on the
// same card would revoke each other's tokens.
func worker(client *http.Client, config LoadTestConfig, cardID int64, stats *Stats, jobs <-chan int64, wg *sync.WaitGroup) {
	defer wg.Done()

	for seq := range jobs {
		chargeOnce(client, config, cardID, seq, stats)
	}
}

func calculatePercentile(sorted []float64, percentile float64) float64 {
	if len(sorted) == 0 {
		return 0
	}
	index := int(float64(len(sorted)) * percentile)
	if index >= len(sorted) {
		index = len(sorted) - 1
	}
	return sorted[index]
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func parseCardIDs(s string) []int64 {
	var ids []int64
	for _, part := range strings.Split(s, ",") {
		if id, err := strconv.ParseInt(strings.TrimSpace(part), 10, 64); err == nil {
			ids = append(ids, id)
		}
	}
	return ids
}

func main() {
	// Read configuration from environment variables
	config := LoadTestConfig{
		BaseURL:           getEnvOrDefault("TARGET_URL", "http://localhost:8080"),
		MerchantCode:      getEnvOrDefault("MERCHANT_CODE", "SHOP"),
		CashierUserID:     getEnvOrDefault("CASHIER_USER_ID", "u-cashier"),
		OwnerUserID:       getEnvOrDefault("OWNER_USER_ID", "u-alice"),
		CardIDs:           parseCardIDs(getEnvOrDefault("CARD_IDS", "1")),
		RequestsPerSecond: getEnvIntOrDefault("REQUESTS_PER_SECOND", 200),
		DurationSeconds:   getEnvIntOrDefault("DURATION_SECONDS", 30),
		Amount:            getEnvOrDefault("AMOUNT", "0.01"),
	}
	if len(config.CardIDs) == 0 {
		fmt.Println("CARD_IDS must list at least one personal card id")
		os.Exit(1)
	}

	// Print test configuration
	fmt.Println("Starting load test...")
	fmt.Printf("Target: %s\n", config.BaseURL)
	fmt.Printf("Total charges: %d\n", config.RequestsPerSecond*config.DurationSeconds)
	fmt.Printf("Target RPS: %d\n", config.RequestsPerSecond)
	fmt.Printf("Cards (one worker each): %d\n", len(config.CardIDs))
	fmt.Printf("Duration: %d seconds\n", config.DurationSeconds)
	fmt.Println(strings.Repeat("-", 50))

	stats := &Stats{}

	// Create HTTP client with connection pooling
	client := &http.Client{
		Transport: &http.Transport{
			MaxIdleConns:        len(config.CardIDs),
			MaxIdleConnsPerHost: len(config.CardIDs),
			IdleConnTimeout:     90 * time.Second,
		},
		Timeout: 60 * time.Second,
	}

	jobs := make(chan int64, config.RequestsPerSecond)

	var wg sync.WaitGroup
	for _, id := range config.CardIDs {
		wg.Add(1)
		go worker(client, config, id, stats, jobs, &wg)
	}

	startTime := time.Now()
	totalRequests := config.RequestsPerSecond * config.DurationSeconds
	var requestsSent int64

	for i := 0; i < config.DurationSeconds && requestsSent < int64(totalRequests); i++ {
		batchStart := time.Now()

		for j := 0; j < config.RequestsPerSecond && requestsSent < int64(totalRequests); j++ {
			jobs <- requestsSent
			requestsSent++
		}

		success := stats.successCount.Load()
		errors := stats.errorCount.Load()
		fmt.Printf("[%ds] Completed: %d | Success: %d | Errors: %d\n",
			i+1, success+errors, success, errors)

		elapsed := time.Since(batchStart)
		if elapsed < time.Second {
			time.Sleep(time.Second - elapsed)
		}
	}

	close(jobs)
	wg.Wait()

	duration := time.Since(startTime).Seconds()

	success := stats.successCount.Load()
	errors := stats.errorCount.Load()
	total := success + errors

	times := stats.getResponseTimes()
	sort.Float64s(times)
	var avg float64
	for _, t := range times {
		avg += t
	}
	if len(times) > 0 {
		avg /= float64(len(times))
	}

	fmt.Println("\n" + strings.Repeat("=", 50))
	fmt.Println("LOAD TEST RESULTS")
	fmt.Println(strings.Repeat("=", 50))
	fmt.Printf("Duration: %.2f seconds\n", duration)
	fmt.Printf("Total charges: %d\n", total)
	fmt.Printf("Successful: %d\n", success)
	fmt.Printf("Failed: %d\n", errors)
	if total > 0 {
		fmt.Printf("Success rate: %.2f%%\n", float64(success)/float64(total)*100)
	}
	stats.errorKinds.Range(func(k, v any) bool {
		fmt.Printf("  %s: %d\n", k, v.(*atomic.Int64).Load())
		return true
	})
	fmt.Printf("\nActual RPS: %.2f\n", float64(total)/duration)
	if len(times) > 0 {
		fmt.Printf("\nCharge response times:\n")
		fmt.Printf("  Average: %.2f ms\n", avg*1000)
		fmt.Printf("  P50: %.2f ms\n", calculatePercentile(times, 0.50)*1000)
		fmt.Printf("  P95: %.2f ms\n", calculatePercentile(times, 0.95)*1000)
		fmt.Printf("  P99: %.2f ms\n", calculatePercentile(times, 0.99)*1000)
		fmt.Printf("  Min: %.2f ms\n", times[0]*1000)
		fmt.Printf("  Max: %.2f ms\n", times[len(times)-1]*1000)
	}
}
