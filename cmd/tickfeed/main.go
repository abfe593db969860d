package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"math/rand"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"
)

// tickfeed drives a local engine with a random-walk price feed. It is a
// development tool: point it at a running engined and it posts ticks at
// the configured interval.

type tickRequest struct {
	Price         uint64 `json:"price"`
	Liquidity     uint64 `json:"liquidity"`
	PreSettlement bool   `json:"preSettlement"`
}

func main() {
	var (
		endpoint      = flag.String("endpoint", "http://localhost:8547/api/v1/ticks", "tick endpoint URL")
		startPrice    = flag.Uint64("price", 50_000_000, "starting price in integer ticks")
		liquidity     = flag.Uint64("liquidity", 1_000_000, "available liquidity per tick")
		interval      = flag.Duration("interval", time.Second, "time between ticks")
		driftBps      = flag.Uint64("drift-bps", 20, "max per-tick random walk step in basis points")
		preSettlement = flag.Bool("pre-settlement", true, "run ticks as pre-settlement passes (slippage protection on)")
	)
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	client := &http.Client{Timeout: 10 * time.Second}
	price := *startPrice
	sent, failed := 0, 0

	log.Printf("tickfeed started: %s every %v, start price %d", *endpoint, *interval, price)

	ticker := time.NewTicker(*interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Printf("tickfeed stopped: %d sent, %d failed", sent, failed)
			return
		case <-ticker.C:
			price = step(price, *driftBps)
			if err := postTick(ctx, client, *endpoint, tickRequest{
				Price:         price,
				Liquidity:     *liquidity,
				PreSettlement: *preSettlement,
			}); err != nil {
				failed++
				log.Printf("tick failed: %v", err)
				continue
			}
			sent++
			if sent%60 == 0 {
				log.Printf("tickfeed: %d ticks sent, price %d", sent, price)
			}
		}
	}
}

// step moves price by a random amount up to driftBps basis points in
// either direction, never below 1.
func step(price, driftBps uint64) uint64 {
	if driftBps == 0 {
		return price
	}
	maxStep := price * driftBps / 10_000
	if maxStep == 0 {
		maxStep = 1
	}
	delta := uint64(rand.Int63n(int64(maxStep) + 1))
	if rand.Intn(2) == 0 {
		if delta >= price {
			return 1
		}
		return price - delta
	}
	return price + delta
}

func postTick(ctx context.Context, client *http.Client, endpoint string, tick tickRequest) error {
	body, err := json.Marshal(tick)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	return nil
}
