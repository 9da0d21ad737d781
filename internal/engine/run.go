package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/signer/core/apitypes"
	"go.uber.org/zap"

	"chainstate/internal/model"
	"chainstate/internal/signing"
)

// Request is a unit of work posted to a running engine.
type Request interface {
	request()
}

// SubscribeRequest registers a subscription.
type SubscribeRequest struct {
	Name       string
	Calls      []model.CallSpec
	ClockCount int
}

// UnsubscribeRequest removes a subscription.
type UnsubscribeRequest struct {
	Name string
}

// TickRequest fires the refresh clock outside its cadence.
type TickRequest struct{}

// SelectChainRequest switches the current chain.
type SelectChainRequest struct {
	Chain model.ChainContext
}

// TypedSignRequest asks for an EIP-712 signature.
type TypedSignRequest struct {
	Data apitypes.TypedData
}

// MessageSignRequest asks for a signature over a free-text message.
type MessageSignRequest struct {
	ID          string
	UserAddress string
	Message     string
}

// SignInRequest asks for a sign-in signature.
type SignInRequest struct {
	signing.SignInRequest
}

func (ReadRequest) request()        {}
func (TxRequest) request()          {}
func (SubscribeRequest) request()   {}
func (UnsubscribeRequest) request() {}
func (TickRequest) request()        {}
func (SelectChainRequest) request() {}
func (TypedSignRequest) request()   {}
func (MessageSignRequest) request() {}
func (SignInRequest) request()      {}

// Post queues req for a running engine. It blocks only while the queue is
// full.
func (e *Engine) Post(ctx context.Context, req Request) error {
	select {
	case e.requests <- req:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Run ticks the refresh clock every ClockInterval and serves posted
// requests until ctx is done. Reads, writes and signatures run as separate
// effects; Run returns once all of them have finished.
func (e *Engine) Run(ctx context.Context) error {
	ticker := time.NewTicker(e.cfg.ClockInterval)
	defer ticker.Stop()

	e.logger.Info("engine start",
		zap.Uint64("chain_id", e.store.CurrentChain().ID),
		zap.Duration("clock_interval", e.cfg.ClockInterval),
	)

	for {
		select {
		case <-ctx.Done():
			e.effects.Wait()
			e.logger.Info("engine stopped")
			return nil
		case <-ticker.C:
			e.spawn(ctx, TickRequest{})
		case req := <-e.requests:
			e.handle(ctx, req)
		}
	}
}

func (e *Engine) handle(ctx context.Context, req Request) {
	switch r := req.(type) {
	case SubscribeRequest:
		if err := e.AddSubscription(r.Name, r.Calls, r.ClockCount); err != nil {
			e.logger.Error("add subscription", zap.String("name", r.Name), zap.Error(err))
		}
	case UnsubscribeRequest:
		e.RemoveSubscription(r.Name)
	case SelectChainRequest:
		if err := e.SelectChain(r.Chain); err != nil {
			e.logger.Error("select chain", zap.Uint64("chain_id", r.Chain.ID), zap.Error(err))
		}
	default:
		e.spawn(ctx, req)
	}
}

func (e *Engine) spawn(ctx context.Context, req Request) {
	e.effects.Add(1)
	go func() {
		defer e.effects.Done()
		if err := e.effect(ctx, req); err != nil && ctx.Err() == nil {
			e.logger.Error("effect failed", zap.String("request", fmt.Sprintf("%T", req)), zap.Error(err))
		}
	}()
}

func (e *Engine) effect(ctx context.Context, req Request) error {
	switch r := req.(type) {
	case ReadRequest:
		return e.IssueRead(ctx, r)
	case TxRequest:
		_, err := e.Transact(ctx, r)
		return err
	case TickRequest:
		return e.Tick(ctx)
	case TypedSignRequest:
		if e.signing == nil {
			return errNoSigner
		}
		_, err := e.signing.SignTypedData(ctx, r.Data)
		return err
	case MessageSignRequest:
		if e.signing == nil {
			return errNoSigner
		}
		return e.signing.SignMessage(ctx, r.ID, r.UserAddress, r.Message)
	case SignInRequest:
		if e.signing == nil {
			return errNoSigner
		}
		return e.signing.SignIn(ctx, r.SignInRequest)
	default:
		return fmt.Errorf("unknown request %T", req)
	}
}
