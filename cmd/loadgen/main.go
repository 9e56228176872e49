package main

import (
	"bytes"
	"context"
	"crypto/rand"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"math/big"
	"net/http"
	"os"
	"sync"
	"sync/atomic"
	"time"
)

func cryptoRandIntn(max int) int {
	if max <= 0 {
		return 0
	}
	n, err := rand.Int(rand.Reader, big.NewInt(int64(max)))
	if err != nil {
		return 0
	}
	return int(n.Int64())
}

func cryptoRandFloat64() float64 {
	max := big.NewInt(1 << 53)
	n, err := rand.Int(rand.Reader, max)
	if err != nil {
		return 0.5
	}
	return float64(n.Int64()) / float64(1<<53)
}

type OrderRequest struct {
	UserID  string         `json:"user_id"`
	Product ProductRequest `json:"product"`
	DryRun  bool           `json:"dry_run"`
}

type ProductRequest struct {
	Title    string  `json:"title"`
	URL      string  `json:"url"`
	Price    float64 `json:"price"`
	Currency string  `json:"currency"`
	Retailer string  `json:"retailer"`
	Category string  `json:"category"`
}

type product struct {
	Title    string
	URL      string
	Retailer string
	Category string
	Price    float64
	Weight   float64 // higher weight = more frequent
}

var (
	// Prices straddle the seeded demo user's $25 auto-approve threshold so
	// traffic exercises both the auto-approved path and the approval gate.
	products = []product{
		// Below threshold: auto-approved (most common)
		{"USB-C cable 2m", "https://shop-basics.example/products/usb-c-cable", "shop-basics", "electronics", 9.99, 20},
		{"Phone stand", "https://shop-basics.example/products/phone-stand", "shop-basics", "accessories", 14.50, 15},
		{"Notebook 3-pack", "https://paper-goods.example/products/notebook-3pk", "paper-goods", "office", 11.25, 15},
		{"Water bottle 750ml", "https://outdoor-hub.example/products/bottle-750", "outdoor-hub", "outdoor", 18.00, 10},
		{"Desk lamp", "https://home-lights.example/products/desk-lamp", "home-lights", "home", 23.99, 8},

		// Above threshold: lands in pending_approval
		{"Wireless earbuds", "https://audio-town.example/products/earbuds", "audio-town", "electronics", 49.99, 8},
		{"Mechanical keyboard", "https://key-works.example/products/mech-kb", "key-works", "electronics", 89.00, 6},
		{"Office chair", "https://sit-well.example/products/office-chair", "sit-well", "furniture", 185.00, 4},
		{"Espresso machine", "https://kitchen-pro.example/products/espresso", "kitchen-pro", "appliances", 349.00, 2},
		{"4K monitor 27in", "https://screen-depot.example/products/monitor-27", "screen-depot", "electronics", 429.00, 2},
	}

	totalWeight float64
)

func init() {
	for _, p := range products {
		totalWeight += p.Weight
	}
}

func main() {
	defaultURL := os.Getenv("API_URL")
	if defaultURL == "" {
		defaultURL = "http://localhost:8080/orders"
	}

	var (
		apiURL   = flag.String("url", defaultURL, "API endpoint URL")
		userID   = flag.String("user", "demo-user", "User to order as")
		count    = flag.Int("count", 0, "Number of orders to generate (0 = unlimited)")
		rps      = flag.Float64("rps", 1, "Requests per second")
		duration = flag.Duration("duration", 0, "Duration to run (0 = until count reached or forever)")
		workers  = flag.Int("workers", 5, "Number of concurrent workers")
		dryRun   = flag.Bool("dry-run", true, "Submit dry-run orders that stop before payment and final submission")
	)
	flag.Parse()

	if *count == 0 && *duration == 0 {
		slog.Error("must specify either --count or --duration")
		os.Exit(1)
	}

	slog.Info("starting load generator",
		slog.String("url", *apiURL),
		slog.String("user", *userID),
		slog.Int("count", *count),
		slog.Float64("rps", *rps),
		slog.Duration("duration", *duration),
		slog.Int("workers", *workers),
		slog.Bool("dry_run", *dryRun),
	)

	var (
		successCount int64
		failureCount int64
		totalCount   int64
		startTime    = time.Now()
		stopCh       = make(chan struct{})
		orderCh      = make(chan OrderRequest, *workers*2)
		wg           sync.WaitGroup
	)

	for i := 0; i < *workers; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			client := &http.Client{Timeout: 30 * time.Second}

			for order := range orderCh {
				if err := submitOrder(context.Background(), client, *apiURL, order); err != nil {
					atomic.AddInt64(&failureCount, 1)
					slog.Error("order failed",
						slog.Int("worker", workerID),
						slog.String("product", order.Product.Title),
						slog.String("error", err.Error()),
					)
				} else {
					atomic.AddInt64(&successCount, 1)
					slog.Debug("order submitted",
						slog.Int("worker", workerID),
						slog.String("product", order.Product.Title),
					)
				}
			}
		}(i)
	}

	if *duration > 0 {
		go func() {
			time.Sleep(*duration)
			close(stopCh)
		}()
	}

	interval := time.Duration(float64(time.Second) / *rps)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-stopCh:
			goto done
		case <-ticker.C:
			if *count > 0 && atomic.LoadInt64(&totalCount) >= int64(*count) {
				goto done
			}

			atomic.AddInt64(&totalCount, 1)
			orderCh <- generateOrder(*userID, *dryRun)
		}
	}

done:
	close(orderCh)
	wg.Wait()

	elapsed := time.Since(startTime)
	success := atomic.LoadInt64(&successCount)
	failure := atomic.LoadInt64(&failureCount)
	total := success + failure

	slog.Info("load generation complete",
		slog.Int64("total", total),
		slog.Int64("success", success),
		slog.Int64("failure", failure),
		slog.Float64("success_rate", float64(success)/float64(total)*100),
		slog.Duration("elapsed", elapsed),
		slog.Float64("actual_rps", float64(total)/elapsed.Seconds()),
	)
}

func generateOrder(userID string, dryRun bool) OrderRequest {
	p := selectWeightedProduct()
	return OrderRequest{
		UserID: userID,
		Product: ProductRequest{
			Title:    p.Title,
			URL:      p.URL,
			Price:    p.Price,
			Currency: "USD",
			Retailer: p.Retailer,
			Category: p.Category,
		},
		DryRun: dryRun,
	}
}

func selectWeightedProduct() product {
	r := cryptoRandFloat64() * totalWeight
	cumulative := 0.0
	for _, p := range products {
		cumulative += p.Weight
		if r <= cumulative {
			return p
		}
	}
	return products[0]
}

func submitOrder(ctx context.Context, client *http.Client, url string, order OrderRequest) error {
	body, err := json.Marshal(order)
	if err != nil {
		return fmt.Errorf("marshal error: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("request creation error: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("request error: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("API error: status %d", resp.StatusCode)
	}

	return nil
}
