package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/opensource-finance/sentinel/internal/dataset"
	"github.com/opensource-finance/sentinel/internal/domain"
	"github.com/opensource-finance/sentinel/internal/features"
)

// replayArgs sends a labeled dataset to a running server and reports the
// decisions it made against the labels.
type replayArgs struct {
	Dataset string  `arg:"--dataset,required" help:"labeled raw CSV"`
	URL     string  `arg:"--url" help:"Sentinel base URL"`
	Tenant  string  `arg:"--tenant" help:"tenant ID for requests"`
	Workers int     `arg:"--workers" help:"concurrent requests"`
	Limit   int     `arg:"--limit" help:"maximum rows to send, 0 for all"`
	CostFN  float64 `arg:"--cost-fn" help:"cost of a missed fraud"`
	CostFP  float64 `arg:"--cost-fp" help:"cost of blocking a legitimate transaction"`
	Verbose bool    `arg:"--verbose" help:"print each decision"`
}

func newReplayArgs() *replayArgs {
	costs := domain.DefaultCostTable()
	return &replayArgs{
		URL:     "http://localhost:8080",
		Tenant:  "replay",
		Workers: 10,
		CostFN:  costs.FalseNegative,
		CostFP:  costs.FalsePositive,
	}
}

func (a *replayArgs) Validate() error {
	if a.Workers < 1 {
		return errors.New("--workers must be at least 1")
	}
	return domain.CostTable{FalseNegative: a.CostFN, FalsePositive: a.CostFP}.Validate()
}

// replayStats accumulates replay results across workers.
type replayStats struct {
	mu        sync.Mutex
	confusion domain.Confusion
	errors    int
	elapsed   time.Duration
}

func (s *replayStats) record(predicted, actual bool, took time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.confusion.Add(predicted, actual)
	s.elapsed += took
}

func (s *replayStats) fail() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.errors++
}

func (a *replayArgs) Handle() error {
	if err := checkHealth(a.URL); err != nil {
		return fmt.Errorf("sentinel not reachable at %s: %w", a.URL, err)
	}

	frame, err := dataset.ReadFrameFile(a.Dataset)
	if err != nil {
		return err
	}
	txs, err := labeledTransactions(frame)
	if err != nil {
		return err
	}
	if a.Limit > 0 && len(txs) > a.Limit {
		txs = txs[:a.Limit]
	}

	fmt.Printf("Replaying %d transactions against %s with %d workers\n", len(txs), a.URL, a.Workers)

	start := time.Now()
	stats := a.run(txs)
	a.printResults(stats, time.Since(start))
	return nil
}

func labeledTransactions(frame *features.Frame) ([]domain.Transaction, error) {
	if !frame.Has(domain.LabelColumn) {
		return nil, fmt.Errorf("%w: replay needs the %q label column", domain.ErrValidation, domain.LabelColumn)
	}
	return frame.Transactions()
}

// run scores txs with a.Workers concurrent clients.
func (a *replayArgs) run(txs []domain.Transaction) *replayStats {
	stats := &replayStats{}
	work := make(chan domain.Transaction, 100)
	var wg sync.WaitGroup

	for i := 0; i < a.Workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			client := &http.Client{Timeout: 10 * time.Second}

			for tx := range work {
				began := time.Now()
				resp, err := a.score(client, tx)
				if err != nil {
					stats.fail()
					if a.Verbose {
						fmt.Printf("ERROR time=%.0f amount=%.2f: %v\n", tx.Time, tx.Amount, err)
					}
					continue
				}

				actual := *tx.Class
				predicted := resp.Decision == domain.DecisionBlock
				stats.record(predicted, actual, time.Since(began))

				if a.Verbose {
					mark := "ok"
					if predicted != actual {
						mark = "MISS"
					}
					fmt.Printf("%-4s time=%-8.0f amount=%10.2f fraud=%-5v decision=%-7s p=%.4f\n",
						mark, tx.Time, tx.Amount, actual, resp.Decision, resp.Probability)
				}
			}
		}()
	}

	for _, tx := range txs {
		work <- tx
	}
	close(work)
	wg.Wait()
	return stats
}

// score posts a transaction in the flat wire shape accepted by /score.
func (a *replayArgs) score(client *http.Client, tx domain.Transaction) (*domain.ScoreResponse, error) {
	payload := map[string]float64{
		domain.FeatureTime:   tx.Time,
		domain.FeatureAmount: tx.Amount,
	}
	for i, v := range tx.V {
		payload[domain.ComponentName(i+1)] = v
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequest(http.MethodPost, a.URL+"/score", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Tenant-ID", a.Tenant)

	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("status %d", resp.StatusCode)
	}

	var out domain.ScoreResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, err
	}
	return &out, nil
}

func checkHealth(baseURL string) error {
	resp, err := http.Get(baseURL + "/health")
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unhealthy: status %d", resp.StatusCode)
	}
	return nil
}

func (a *replayArgs) printResults(s *replayStats, duration time.Duration) {
	c := s.confusion
	scored := c.TruePositives + c.FalsePositives + c.TrueNegatives + c.FalseNegatives
	costs := domain.CostTable{FalseNegative: a.CostFN, FalsePositive: a.CostFP}

	fmt.Println()
	fmt.Printf("Scored:     %d\n", scored)
	fmt.Printf("Errors:     %d\n", s.errors)
	fmt.Printf("Duration:   %s\n", duration.Round(time.Millisecond))
	if scored > 0 {
		fmt.Printf("Throughput: %.1f tx/s\n", float64(scored)/duration.Seconds())
		fmt.Printf("Avg wait:   %s\n", (s.elapsed / time.Duration(scored)).Round(time.Microsecond))
	}

	fmt.Println()
	fmt.Println("                 Predicted BLOCK   Predicted APPROVE")
	fmt.Printf("  Actual fraud   %15d   %17d\n", c.TruePositives, c.FalseNegatives)
	fmt.Printf("  Actual legit   %15d   %17d\n", c.FalsePositives, c.TrueNegatives)

	fmt.Println()
	if tp := c.TruePositives; tp+c.FalsePositives > 0 {
		fmt.Printf("Precision:  %.4f\n", float64(tp)/float64(tp+c.FalsePositives))
	}
	if tp := c.TruePositives; tp+c.FalseNegatives > 0 {
		fmt.Printf("Recall:     %.4f\n", float64(tp)/float64(tp+c.FalseNegatives))
	}
	fmt.Printf("Cost:       %.2f (fn=%.2f fp=%.2f)\n", costs.Cost(c), a.CostFN, a.CostFP)
}
