package exec

import (
	"context"
	"fmt"
	"os"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"rayzor/internal/mir"
)

// CompiledFunc is the calling convention every tier above the
// interpreter installs into a FuncHandle: a plain Go function taking
// boxed arguments and returning a boxed result, so Executor.Call never
// needs to know which tier actually produced the pointer it invokes.
type CompiledFunc func(args []Value) (Value, error)

// FuncHandle is one function's entry in the promotion ladder: the
// atomic pointer callers load to get the current best compiled entry
// point (nil until a background compile lands), the tier that pointer
// belongs to, and the call-count profile driving promotion decisions.
//
// Installing a new pointer is a release-ordered store; Load is an
// acquire-ordered load. Go's atomic.Pointer gives both for free, which
// is what lets Executor.Call read a stable pointer without a mutex on
// every single call - the hot path.
type FuncHandle struct {
	fn      *mir.Func
	code    atomic.Pointer[CompiledFunc]
	tier    atomic.Uint32
	profile Profile
}

func newFuncHandle(fn *mir.Func) *FuncHandle {
	return &FuncHandle{fn: fn}
}

// Tier reports the tier of the currently installed compiled entry
// point, or TierInterp if none has landed yet.
func (h *FuncHandle) Tier() Tier { return Tier(h.tier.Load()) }

// Load returns the currently installed compiled entry point, or nil if
// the function is still running on the interpreter.
func (h *FuncHandle) Load() *CompiledFunc { return h.code.Load() }

func (h *FuncHandle) install(tier Tier, fn CompiledFunc) {
	h.code.Store(&fn)
	h.tier.Store(uint32(tier))
}

// promoter is the background compilation worker pool: requests queue up
// on a channel, a bounded errgroup runs the actual compiles, and a
// compiled-function install is the only side effect a worker has on the
// rest of the Executor - no shared mutable state besides the target
// FuncHandle's own atomics.
type promoter struct {
	ex     *Executor
	ctx    context.Context
	cancel context.CancelFunc
	g      *errgroup.Group

	reqs chan promoteRequest

	mu       sync.Mutex
	inflight map[mir.FuncID]bool
}

type promoteRequest struct {
	id   mir.FuncID
	tier Tier
}

func newPromoter(ex *Executor) *promoter {
	ctx, cancel := context.WithCancel(context.Background())
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxPromoteWorkers)
	p := &promoter{
		ex:       ex,
		ctx:      gctx,
		cancel:   cancel,
		g:        g,
		reqs:     make(chan promoteRequest, 64),
		inflight: make(map[mir.FuncID]bool),
	}
	g.Go(p.dispatchLoop)
	return p
}

// maxPromoteWorkers bounds concurrent background compiles; promotion is
// a low-priority background task and should not contend heavily with
// the interpreted program it is compiling a replacement for.
const maxPromoteWorkers = 2

// request submits id for promotion to tier, dropping the request rather
// than blocking if the queue is full - a missed promotion just means
// the function keeps running one tier down a little longer, never a
// correctness problem.
func (p *promoter) request(id mir.FuncID, tier Tier) {
	select {
	case p.reqs <- promoteRequest{id: id, tier: tier}:
	default:
	}
}

func (p *promoter) dispatchLoop() error {
	for {
		select {
		case <-p.ctx.Done():
			return nil
		case req, ok := <-p.reqs:
			if !ok {
				return nil
			}
			p.handle(req)
		}
	}
}

func (p *promoter) handle(req promoteRequest) {
	p.mu.Lock()
	if p.inflight[req.id] {
		p.mu.Unlock()
		return
	}
	p.inflight[req.id] = true
	p.mu.Unlock()

	p.g.Go(func() error {
		defer func() {
			p.mu.Lock()
			delete(p.inflight, req.id)
			p.mu.Unlock()
		}()
		return p.compileAndInstall(req)
	})
}

func (p *promoter) compileAndInstall(req promoteRequest) error {
	h, ok := p.ex.Handles[req.id]
	if !ok {
		return nil
	}
	select {
	case <-p.ctx.Done():
		return p.ctx.Err()
	default:
	}

	var (
		compiled CompiledFunc
		err      error
	)
	switch req.tier {
	case TierFastJIT, TierFastJIT2:
		compiled, err = compileFastJIT(p.ex, h.fn)
	case TierOptJIT:
		compiled, err = compileOptJIT(p.ex, h.fn)
	default:
		return nil
	}
	if err != nil {
		// Promotion is strictly an optimization; a failed background
		// compile just leaves the function on its current tier.
		fmt.Fprintf(os.Stderr, "exec: promotion of %s to %s failed, staying on %s: %v\n", h.fn.Name, req.tier, h.Tier(), err)
		return nil
	}
	h.install(req.tier, compiled)
	return nil
}

// stop cancels outstanding and queued compiles and waits for in-flight
// ones to return.
func (p *promoter) stop() error {
	p.cancel()
	close(p.reqs)
	return p.g.Wait()
}
