package engine

import (
	"context"

	"golang.org/x/sync/errgroup"

	"chainstate/internal/model"
	"chainstate/internal/store"
)

// AddSubscription registers a named read set on the current chain. It fires
// on the next tick and then every clockCount ticks; clockCount <= 0 uses the
// configured default. A name already registered is an error.
func (e *Engine) AddSubscription(name string, calls []model.CallSpec, clockCount int) error {
	if clockCount <= 0 {
		clockCount = e.cfg.ClockTicks
	}
	_, err := e.store.Dispatch(store.SubscriptionAdded{
		ChainID:    e.store.CurrentChain().ID,
		Name:       name,
		Calls:      calls,
		ClockCount: clockCount,
	})
	return err
}

// RemoveSubscription drops a subscription. Reads already in flight still
// complete.
func (e *Engine) RemoveSubscription(name string) {
	e.dispatch(store.SubscriptionRemoved{ChainID: e.store.CurrentChain().ID, Name: name})
}

// Tick advances the refresh clock once and issues the deduplicated reads of
// every due subscription, waiting for them to finish.
func (e *Engine) Tick(ctx context.Context) error {
	reads := e.collectDue()

	e.metrics.ClockTicks.Inc()
	e.metrics.TickReads.Observe(float64(len(reads)))

	g, gctx := errgroup.WithContext(ctx)
	for _, req := range reads {
		req := req
		g.Go(func() error {
			return e.IssueRead(gctx, req)
		})
	}
	return g.Wait()
}

func (e *Engine) collectDue() []ReadRequest {
	e.tickMu.Lock()
	defer e.tickMu.Unlock()

	chain := e.store.CurrentChain()
	seen := make(map[model.CallKey]struct{})
	var reads []ReadRequest
	for _, sub := range e.store.DueSubscriptions(chain.ID) {
		for _, call := range sub.Calls {
			key := e.keyOf(chain, call)
			if _, ok := seen[key]; ok {
				continue
			}
			seen[key] = struct{}{}
			reads = append(reads, ReadRequest{Call: call})
		}
		e.dispatch(store.SubscriptionAdvanced{ChainID: chain.ID, Name: sub.Name})
	}
	e.dispatch(store.ClockIncreased{})
	return reads
}
