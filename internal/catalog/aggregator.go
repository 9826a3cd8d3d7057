package catalog

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

// Adapter polls one platform. Fetch never fails: network and scrape errors
// are absorbed into Error-status records at the adapter boundary.
type Adapter interface {
	Platform() Platform
	Fetch(ctx context.Context, ref string) StreamerRecord
}

// BatchAdapter is implemented by platforms whose API accepts many identities
// per request (twitch helix). The adapter owns its own chunking.
type BatchAdapter interface {
	Adapter
	FetchBatch(ctx context.Context, refs []string) []StreamerRecord
}

// Sequential marks adapters that drive a shared browser session and must be
// polled one ref at a time. Distinct sequential platforms still poll
// concurrently with each other, each in its own session.
type Sequential interface {
	Sequential()
}

// ErrRefreshInFlight is returned when a refresh is requested while a prior
// one is still running. Overlapping refreshes are dropped, never queued.
var ErrRefreshInFlight = errors.New("catalog refresh already in flight")

const defaultAPIConcurrency = 5

// Aggregator fans the roster out across adapters and publishes merged,
// sorted snapshots. A platform that fails wholesale contributes its entries
// from the previous snapshot, so one broken platform never empties the
// catalog.
type Aggregator struct {
	store    *Store
	adapters map[Platform]Adapter
	roster   map[Platform][]string
	publish  func(*Snapshot)

	timeout        time.Duration
	apiConcurrency int

	mu sync.Mutex
}

// NewAggregator builds an aggregator over the given adapters and roster.
// publish may be nil; when set it is invoked with every published snapshot.
func NewAggregator(store *Store, adapters []Adapter, roster map[Platform][]string, publish func(*Snapshot)) *Aggregator {
	byPlatform := make(map[Platform]Adapter, len(adapters))
	for _, a := range adapters {
		byPlatform[a.Platform()] = a
	}
	return &Aggregator{
		store:          store,
		adapters:       byPlatform,
		roster:         roster,
		publish:        publish,
		timeout:        5 * time.Minute,
		apiConcurrency: defaultAPIConcurrency,
	}
}

// Refresh polls every rostered platform concurrently and publishes the merged
// snapshot. Returns ErrRefreshInFlight if another refresh is running.
func (a *Aggregator) Refresh(ctx context.Context) (*Snapshot, error) {
	if !a.mu.TryLock() {
		return nil, ErrRefreshInFlight
	}
	defer a.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	started := time.Now()

	var (
		rmu      sync.Mutex
		results  = make(map[Platform][]StreamerRecord)
		pollErrs = make(map[Platform]string)
		wg       sync.WaitGroup
	)

	for platform, refs := range a.roster {
		adapter, ok := a.adapters[platform]
		if !ok || len(refs) == 0 {
			continue
		}
		wg.Add(1)
		go func(platform Platform, adapter Adapter, refs []string) {
			defer wg.Done()
			records, err := a.pollPlatform(ctx, adapter, refs)
			rmu.Lock()
			defer rmu.Unlock()
			if err != nil {
				slog.Warn("platform poll failed, keeping prior entries",
					"platform", platform, "error", err)
				pollErrs[platform] = err.Error()
				records = a.priorRecords(platform)
			}
			results[platform] = records
		}(platform, adapter, refs)
	}
	wg.Wait()

	snap := assemble(results, pollErrs)
	if err := a.store.Publish(snap); err != nil {
		return nil, err
	}
	if a.publish != nil {
		a.publish(snap)
	}

	slog.Info("catalog refreshed",
		"records", len(snap.Records),
		"live", len(snap.LiveRecords()),
		"failed_platforms", len(pollErrs),
		"elapsed", time.Since(started).Round(time.Millisecond))
	return snap, nil
}

// RefreshPlatform re-polls a single platform and merges the result into the
// current snapshot, leaving other platforms' entries untouched.
func (a *Aggregator) RefreshPlatform(ctx context.Context, platform Platform) (*Snapshot, error) {
	adapter, ok := a.adapters[platform]
	if !ok {
		return nil, fmt.Errorf("no adapter for platform %q", platform)
	}
	if !a.mu.TryLock() {
		return nil, ErrRefreshInFlight
	}
	defer a.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	results := make(map[Platform][]StreamerRecord)
	pollErrs := make(map[Platform]string)

	records, err := a.pollPlatform(ctx, adapter, a.roster[platform])
	if err != nil {
		pollErrs[platform] = err.Error()
		records = a.priorRecords(platform)
	}
	results[platform] = records

	if prior := a.store.Current(); prior != nil {
		for _, r := range prior.Records {
			if r.Platform != platform {
				results[r.Platform] = append(results[r.Platform], r)
			}
		}
		for p, msg := range prior.PollErrors {
			if p != platform {
				pollErrs[p] = msg
			}
		}
	}

	snap := assemble(results, pollErrs)
	if err := a.store.Publish(snap); err != nil {
		return nil, err
	}
	if a.publish != nil {
		a.publish(snap)
	}
	return snap, nil
}

// pollPlatform collects one platform's records, honoring the adapter's
// concurrency contract. It reports an error only for wholesale failure:
// context exhaustion mid-poll, or every single record coming back as Error.
func (a *Aggregator) pollPlatform(ctx context.Context, adapter Adapter, refs []string) ([]StreamerRecord, error) {
	var records []StreamerRecord

	switch impl := adapter.(type) {
	case BatchAdapter:
		records = impl.FetchBatch(ctx, refs)
	default:
		if _, serial := adapter.(Sequential); serial {
			for _, ref := range refs {
				if ctx.Err() != nil {
					return nil, fmt.Errorf("poll %s: %w", adapter.Platform(), ctx.Err())
				}
				records = append(records, adapter.Fetch(ctx, ref))
			}
		} else {
			results := make([]StreamerRecord, len(refs))
			g, gctx := errgroup.WithContext(ctx)
			g.SetLimit(a.apiConcurrency)
			for i, ref := range refs {
				g.Go(func() error {
					results[i] = adapter.Fetch(gctx, ref)
					return nil
				})
			}
			_ = g.Wait()
			records = results
		}
	}

	if ctx.Err() != nil {
		return nil, fmt.Errorf("poll %s: %w", adapter.Platform(), ctx.Err())
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("poll %s: no records", adapter.Platform())
	}
	allErrored := true
	for _, r := range records {
		if r.Status != StatusError {
			allErrored = false
			break
		}
	}
	if allErrored {
		return nil, fmt.Errorf("poll %s: all %d records errored: %s",
			adapter.Platform(), len(records), records[0].ErrorDetails)
	}
	return records, nil
}

func (a *Aggregator) priorRecords(platform Platform) []StreamerRecord {
	prior := a.store.Current()
	if prior == nil {
		return nil
	}
	return prior.ByPlatform(platform)
}

func assemble(results map[Platform][]StreamerRecord, pollErrs map[Platform]string) *Snapshot {
	var all []StreamerRecord
	for _, records := range results {
		all = append(all, records...)
	}
	Sort(all)
	snap := &Snapshot{
		GeneratedAt: time.Now().UTC(),
		Records:     all,
	}
	if len(pollErrs) > 0 {
		snap.PollErrors = pollErrs
	}
	return snap
}
