// Package test provides a shared in-memory cluster harness for
// integration tests over pkg/process, mirroring the teacher's own
// test/testing.go pattern of a reusable cluster builder rather than
// hand-wiring collaborators in every test function.
package test

import (
	"context"
	"sync"
	"time"

	"github.com/jabolina-labs/dolev-brb-rco/internal/transport"
	"github.com/jabolina-labs/dolev-brb-rco/pkg/definition"
	"github.com/jabolina-labs/dolev-brb-rco/pkg/process"
	"github.com/jabolina-labs/dolev-brb-rco/pkg/types"
)

// Delivery is one RCO-delivery observed by a process's application
// callback during a test.
type Delivery struct {
	Author  types.ProcessID
	Content string
}

// Cluster wires N process.Process instances over a shared
// MemoryNetwork and records every RCO-delivery each one observes.
type Cluster struct {
	Procs   []*process.Process
	network *transport.MemoryNetwork

	mu         sync.Mutex
	deliveries map[types.ProcessID][]Delivery

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// Params configures one process's share of a Cluster. Starters and
// CausalChains are typically identical across every
// process in a cluster (shared global knowledge of the schedule);
// Self and Malicious vary.
type Params struct {
	Self         types.ProcessID
	N            int
	F            int
	Starters     map[types.ProcessID]int
	CausalChains map[types.ProcessID][]types.ProcessID
	Malicious    types.MaliciousMode
	Optim        types.Optimisations
}

// NewCluster builds and wires one process per entry in params, all N
// processes assumed present (ids 0..N-1).
func NewCluster(params []Params) *Cluster {
	network := transport.NewMemoryNetwork()
	c := &Cluster{
		network:    network,
		deliveries: make(map[types.ProcessID][]Delivery),
	}

	for _, p := range params {
		peers := make([]types.ProcessID, 0, p.N-1)
		for id := 0; id < p.N; id++ {
			if types.ProcessID(id) != p.Self {
				peers = append(peers, types.ProcessID(id))
			}
		}
		cfg := types.Configuration{
			Self:         p.Self,
			N:            p.N,
			F:            p.F,
			Peers:        peers,
			Starters:     p.Starters,
			CausalChains: p.CausalChains,
			Malicious:    p.Malicious,
			Optim:        p.Optim,
		}
		endpoint := network.Register(p.Self)
		log := definition.NewLogrusLogger(p.Self)
		log.ToggleDebug(false)

		self := p.Self
		app := func(author types.ProcessID, content []byte) {
			c.mu.Lock()
			c.deliveries[self] = append(c.deliveries[self], Delivery{Author: author, Content: string(content)})
			c.mu.Unlock()
		}

		proc, err := process.New(cfg, endpoint, log, app)
		if err != nil {
			panic(err)
		}
		c.Procs = append(c.Procs, proc)
	}

	return c
}

// Run starts every process's event loop in its own goroutine.
func (c *Cluster) Run() {
	c.ctx, c.cancel = context.WithCancel(context.Background())
	for _, p := range c.Procs {
		p := p
		c.wg.Add(1)
		go func() {
			defer c.wg.Done()
			p.Run(c.ctx)
		}()
	}
}

// Stop cancels every process's event loop and waits for it to exit.
func (c *Cluster) Stop() {
	if c.cancel != nil {
		c.cancel()
	}
	c.wg.Wait()
}

// Deliveries returns a snapshot of what process id has RCO-delivered
// so far.
func (c *Cluster) Deliveries(id types.ProcessID) []Delivery {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Delivery(nil), c.deliveries[id]...)
}

// WaitForDeliveries polls until process id has observed at least n
// deliveries, or the timeout elapses. Returns false on timeout.
func (c *Cluster) WaitForDeliveries(id types.ProcessID, n int, timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if len(c.Deliveries(id)) >= n {
			return true
		}
		time.Sleep(2 * time.Millisecond)
	}
	return len(c.Deliveries(id)) >= n
}
