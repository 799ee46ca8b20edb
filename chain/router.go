package chain

import (
	"context"
	"fmt"
	"strings"
)

// ExecutorRouter dispatches by currency symbol.
type ExecutorRouter struct {
	routes map[string]Executor
}

func NewExecutorRouter() *ExecutorRouter {
	return &ExecutorRouter{routes: make(map[string]Executor)}
}

func (r *ExecutorRouter) Register(currency string, e Executor) {
	r.routes[strings.ToUpper(currency)] = e
}

func (r *ExecutorRouter) Send(ctx context.Context, req SendRequest) (SendResult, error) {
	e, ok := r.routes[strings.ToUpper(req.Currency)]
	if !ok {
		return SendResult{}, fmt.Errorf("%w: no executor for %s", ErrUnsupportedCurrency, req.Currency)
	}
	return e.Send(ctx, req)
}

type VerifierRouter struct {
	routes map[string]Verifier
}

func NewVerifierRouter() *VerifierRouter {
	return &VerifierRouter{routes: make(map[string]Verifier)}
}

func (r *VerifierRouter) Register(currency string, v Verifier) {
	r.routes[strings.ToUpper(currency)] = v
}

func (r *VerifierRouter) Verify(ctx context.Context, req VerifyRequest) (VerifyResult, error) {
	v, ok := r.routes[strings.ToUpper(req.Currency)]
	if !ok {
		return VerifyResult{}, fmt.Errorf("%w: no verifier for %s", ErrUnsupportedCurrency, req.Currency)
	}
	return v.Verify(ctx, req)
}
