package engine

import (
	"context"
	"time"

	"go.uber.org/zap"

	"chainstate/internal/metrics"
	"chainstate/internal/model"
	"chainstate/internal/store"
)

// ReadRequest asks for one contract read.
type ReadRequest struct {
	Call model.CallSpec
	// ForceCall skips the freshness check and never joins an in-flight read.
	ForceCall bool
	// MaxAge overrides the configured freshness window.
	MaxAge *time.Duration
	// Retry is the attempt number to start from.
	Retry int
}

// IssueRead performs req against the current chain and records the outcome
// in the store. A read loaded within its freshness window is skipped.
// Non-forced reads of a key already in flight wait for that attempt instead
// of starting another one.
//
// Read failures are retried with linear backoff and end up as ERROR records;
// the returned error is only ever the context's. A cancelled read leaves the
// record as it was.
func (e *Engine) IssueRead(ctx context.Context, req ReadRequest) error {
	chain := e.store.CurrentChain()
	key, err := e.CallKey(chain, req.Call)
	if err != nil {
		e.metrics.Reads.WithLabelValues(metrics.ReadEncodeError).Inc()
		e.logger.Warn("encode call failed",
			zap.String("address", req.Call.Address),
			zap.String("method", req.Call.Method),
			zap.Error(err),
		)
		e.dispatch(store.CallFailed{ChainID: chain.ID, Key: invalidKey(chain, req.Call), Error: err.Error()})
		return nil
	}

	if req.ForceCall {
		return e.readLoop(ctx, chain, key, req)
	}
	for {
		if e.fresh(chain.ID, key, req.MaxAge) {
			e.metrics.Reads.WithLabelValues(metrics.ReadFresh).Inc()
			return nil
		}

		leader := false
		_, err, _ = e.inflight.Do(string(key), func() (interface{}, error) {
			leader = true
			return nil, e.readLoop(ctx, chain, key, req)
		})
		if leader {
			return err
		}
		e.metrics.Reads.WithLabelValues(metrics.ReadShared).Inc()
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err == nil {
			return nil
		}
		// The shared attempt was cancelled by its owner; read again on ctx.
	}
}

func (e *Engine) fresh(chainID uint64, key model.CallKey, maxAge *time.Duration) bool {
	ts, ok := e.store.CallTimestamp(chainID, key)
	if !ok {
		return false
	}
	window := e.cfg.DefaultMaxAge
	if maxAge != nil {
		window = *maxAge
	}
	return e.now().UnixMilli()-ts < window.Milliseconds()
}

func (e *Engine) readLoop(ctx context.Context, chain model.ChainContext, key model.CallKey, req ReadRequest) error {
	retry := req.Retry
	for {
		e.dispatch(store.CallRequested{ChainID: chain.ID, Key: key, Retry: retry})
		e.metrics.Reads.WithLabelValues(metrics.ReadIssued).Inc()

		start := time.Now()
		value, err := e.reader.Read(ctx, req.Call)
		e.metrics.ReadLatency.Observe(time.Since(start).Seconds())
		if err == nil {
			e.dispatch(store.CallSucceeded{ChainID: chain.ID, Key: key, Value: value, Timestamp: e.now().UnixMilli()})
			e.metrics.Reads.WithLabelValues(metrics.ReadLoaded).Inc()
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}

		retry++
		e.logger.Debug("read failed",
			zap.String("key", string(key)),
			zap.Int("retry", retry),
			zap.Error(err),
		)
		if err := sleep(ctx, e.cfg.RetryTimeout*time.Duration(retry)); err != nil {
			return err
		}
		if retry >= e.cfg.RetryCount {
			e.metrics.Reads.WithLabelValues(metrics.ReadFailed).Inc()
			e.logger.Warn("read gave up",
				zap.String("address", req.Call.Address),
				zap.String("method", req.Call.Method),
				zap.Int("attempts", retry),
				zap.Error(err),
			)
			e.dispatch(store.CallFailed{ChainID: chain.ID, Key: key, Error: err.Error()})
			return nil
		}
		if !req.ForceCall && e.fresh(chain.ID, key, req.MaxAge) {
			e.metrics.Reads.WithLabelValues(metrics.ReadFresh).Inc()
			return nil
		}
		e.metrics.ReadRetries.Inc()
	}
}
