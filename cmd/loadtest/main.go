// Command loadtest drives the search API with concurrent queries, once per
// execution policy, and prints latency percentiles for each run.
//
// Usage:
//
//	go run ./cmd/loadtest [-url http://localhost:8080] [-seed 5000] [-policy both]
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"math/rand/v2"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"
)

type options struct {
	baseURL     string
	concurrency int
	duration    time.Duration
	seed        int
	seedOffset  int
}

var vocabulary = strings.Fields(`кот пёс скворец хвост ошейник глаза белый
	пушистый ухоженный модный выразительные рыжий чёрный быстрый тихий
	search engine index query ranking token document relevance frequency`)

func main() {
	var opts options
	flag.StringVar(&opts.baseURL, "url", "http://localhost:8080", "base URL of the search server")
	flag.IntVar(&opts.concurrency, "concurrency", 10, "concurrent workers")
	flag.DurationVar(&opts.duration, "duration", 30*time.Second, "duration of each run")
	flag.IntVar(&opts.seed, "seed", 0, "documents to add before the runs")
	flag.IntVar(&opts.seedOffset, "seed-offset", 1_000_000, "first id used for seeded documents")
	policy := flag.String("policy", "both", "seq, par or both")
	flag.Parse()

	client := &http.Client{
		Timeout: 10 * time.Second,
		Transport: &http.Transport{
			MaxIdleConns:        opts.concurrency * 2,
			MaxIdleConnsPerHost: opts.concurrency * 2,
			IdleConnTimeout:     90 * time.Second,
		},
	}
	ctx := context.Background()

	if opts.seed > 0 {
		fmt.Printf("Seeding %d documents from id %d\n", opts.seed, opts.seedOffset)
		if err := seedDocuments(ctx, client, opts); err != nil {
			fmt.Fprintf(os.Stderr, "seeding failed: %v\n", err)
			os.Exit(1)
		}
	}

	policies := []string{*policy}
	if *policy == "both" {
		policies = []string{"seq", "par"}
	}
	failed := false
	for _, p := range policies {
		s := newStats()
		start := time.Now()
		runQueries(ctx, client, opts, p, s)
		sum := s.summarize(time.Since(start))
		sum.print(os.Stdout, "policy "+p)
		failed = failed || sum.Total == 0
	}
	if failed {
		fmt.Fprintln(os.Stderr, "no requests completed; is the server running?")
		os.Exit(1)
	}
}

func seedDocuments(ctx context.Context, client *http.Client, opts options) error {
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(opts.concurrency)
	rng := rand.New(rand.NewPCG(1, 2))
	for i := range opts.seed {
		body, err := json.Marshal(map[string]any{
			"id":      opts.seedOffset + i,
			"text":    randomWords(rng, 4+rng.IntN(12)),
			"ratings": []int{rng.IntN(11) - 5, rng.IntN(11) - 5},
		})
		if err != nil {
			return err
		}
		g.Go(func() error {
			req, err := http.NewRequestWithContext(ctx, http.MethodPost, opts.baseURL+"/api/v1/documents", bytes.NewReader(body))
			if err != nil {
				return err
			}
			req.Header.Set("Content-Type", "application/json")
			resp, err := client.Do(req)
			if err != nil {
				return err
			}
			defer resp.Body.Close()
			if resp.StatusCode != http.StatusCreated {
				return fmt.Errorf("adding document: status %d", resp.StatusCode)
			}
			return nil
		})
	}
	return g.Wait()
}

func runQueries(ctx context.Context, client *http.Client, opts options, policy string, s *stats) {
	ctx, cancel := context.WithTimeout(ctx, opts.duration)
	defer cancel()

	var g errgroup.Group
	for w := range opts.concurrency {
		g.Go(func() error {
			rng := rand.New(rand.NewPCG(uint64(w), 7))
			for ctx.Err() == nil {
				query := randomQuery(rng)
				target := fmt.Sprintf("%s/api/v1/search?q=%s&policy=%s",
					opts.baseURL, url.QueryEscape(query), policy)
				start := time.Now()
				code, empty := search(ctx, client, target)
				if ctx.Err() != nil {
					break
				}
				s.record(time.Since(start), code, empty)
			}
			return nil
		})
	}
	_ = g.Wait()
}

func search(ctx context.Context, client *http.Client, target string) (code int, empty bool) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return 0, false
	}
	resp, err := client.Do(req)
	if err != nil {
		return 0, false
	}
	defer resp.Body.Close()
	var body struct {
		Results []json.RawMessage `json:"results"`
	}
	if resp.StatusCode == http.StatusOK {
		if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
			return 0, false
		}
	}
	return resp.StatusCode, len(body.Results) == 0
}

func randomWords(rng *rand.Rand, n int) string {
	words := make([]string, n)
	for i := range words {
		words[i] = vocabulary[rng.IntN(len(vocabulary))]
	}
	return strings.Join(words, " ")
}

// randomQuery returns one to four plus words, sometimes with a minus word.
func randomQuery(rng *rand.Rand) string {
	q := randomWords(rng, 1+rng.IntN(4))
	if rng.IntN(3) == 0 {
		q += " -" + vocabulary[rng.IntN(len(vocabulary))]
	}
	return q
}
