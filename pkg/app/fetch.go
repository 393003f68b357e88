package app

import (
	"context"
	"fmt"
	"math"
	"net/url"
	"strconv"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/catalogtools/apt/pkg/alation"
	"github.com/catalogtools/apt/pkg/telemetry"
)

// Fetch defaults.
const (
	DefaultFetchWorkers  = 4
	DefaultFetchAttempts = 3
	DefaultRetryDelay    = 500 * time.Millisecond
	maxRetryDelay        = 30 * time.Second
)

// FetchOptions tunes how the folders of the hubs are fetched.
type FetchOptions struct {
	// Workers is the number of hubs fetched concurrently. The client's
	// rate limiter still paces the requests.
	Workers int

	// Attempts is the number of tries per hub for transient failures.
	Attempts int

	// RetryDelay is the first backoff delay; it doubles per attempt.
	RetryDelay time.Duration
}

func (o FetchOptions) withDefaults() FetchOptions {
	if o.Workers <= 0 {
		o.Workers = DefaultFetchWorkers
	}
	if o.Attempts <= 0 {
		o.Attempts = DefaultFetchAttempts
	}
	if o.RetryDelay <= 0 {
		o.RetryDelay = DefaultRetryDelay
	}
	return o
}

// backoff returns the delay before the given retry (attempt counts from 1).
func (o FetchOptions) backoff(attempt int) time.Duration {
	delay := o.RetryDelay * time.Duration(math.Pow(2, float64(attempt-1)))
	if delay > maxRetryDelay {
		delay = maxRetryDelay
	}
	return delay
}

// fetchFolders fetches the folders of every hub with a bounded worker
// pool. Results keep the hub order. The first failure cancels the hubs
// still queued and is the error returned.
func fetchFolders(ctx context.Context, client CatalogClient, hubs []alation.DocumentHub, opts FetchOptions) ([]alation.Folder, error) {
	opts = opts.withDefaults()

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(opts.Workers)

	results := make([][]alation.Folder, len(hubs))
	for i, hub := range hubs {
		g.Go(func() error {
			// Hubs still queued after a failure are skipped
			if err := gctx.Err(); err != nil {
				return fmt.Errorf("failed to fetch folders of hub %d: %w", hub.ID, err)
			}
			folders, err := fetchHubFolders(gctx, client, hub.ID, opts)
			if err != nil {
				return fmt.Errorf("failed to fetch folders of hub %d: %w", hub.ID, err)
			}
			results[i] = folders
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var out []alation.Folder
	for _, folders := range results {
		out = append(out, folders...)
	}
	return out, nil
}

func fetchHubFolders(ctx context.Context, client CatalogClient, hubID int64, opts FetchOptions) ([]alation.Folder, error) {
	params := url.Values{"document_hub_id": {strconv.FormatInt(hubID, 10)}}
	logger := telemetry.FromContext(ctx).WithHubID(hubID)

	var err error
	for attempt := 1; attempt <= opts.Attempts; attempt++ {
		var folders []alation.Folder
		folders, err = client.GetFolders(ctx, params)
		if err == nil {
			return folders, nil
		}
		if !alation.IsTransient(err) || attempt == opts.Attempts {
			break
		}

		delay := opts.backoff(attempt)
		logger.WithError(err).WithField("attempt", attempt).WithField("delay", delay.String()).
			Warn("Transient failure fetching folders, retrying")

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(delay):
		}
	}
	return nil, err
}
