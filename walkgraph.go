package pymodgraph

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/errgroup"
)

// WalkGraph visits every node reachable from start over outgoing edges.  nodeVisit runs exactly
// once per reachable node; returning false prunes the walk below that node.  edgeVisit, if
// non-nil, runs once per traversed edge, after both endpoints' node visits have completed.  The
// visit callbacks run concurrently, so they must be safe to call from multiple goroutines; the
// graph itself must be done with construction.
func (g *ModuleGraph) WalkGraph(ctx context.Context, start *Node,
	nodeVisit func(ctx context.Context, n *Node) (bool, error),
	edgeVisit func(ctx context.Context, from, to *Node, data EdgeData) error) (retErr error) {

	slog.DebugContext(ctx, "graph walk start", "start", start)
	nNodes := 0
	nEdges := 0
	var nDescends atomic.Int32
	defer func() {
		slog.DebugContext(ctx, "graph walk done",
			"nodes", nNodes, "edges", nEdges, "descends", nDescends.Load(), "err", retErr)
	}()
	seen := map[*Node]<-chan struct{}{}
	type qEnt struct {
		from *Node
		to   *Node
		data EdgeData
	}
	q := make(chan qEnt)
	var inflight atomic.Int32
	inflightDone := func() {
		if n := inflight.Add(-1); n == 0 {
			close(q)
		}
	}
	gr, ctx := errgroup.WithContext(ctx)
	enqueue := func(qe qEnt) {
		inflight.Add(1)
		gr.Go(func() error {
			select {
			case <-ctx.Done():
				inflightDone()
				return context.Cause(ctx)
			case q <- qe:
				return nil
			}
		})
	}
	// process always runs synchronously in the main select loop, so `seen` needs no lock.
	process := func(qe qEnt) error {
		defer inflightDone()
		nEdges++
		readyCh := seen[qe.to]
		if readyCh == nil {
			nNodes++
			bidiReadyCh := make(chan struct{})
			readyCh = bidiReadyCh
			seen[qe.to] = readyCh
			inflight.Add(1)
			gr.Go(func() error {
				defer inflightDone()
				descend := true
				if nodeVisit != nil {
					var err error
					descend, err = nodeVisit(ctx, qe.to)
					if err != nil {
						return err
					}
				}
				close(bidiReadyCh)
				if descend {
					nDescends.Add(1)
					for child, data := range g.OutEdges(qe.to) {
						enqueue(qEnt{from: qe.to, to: child, data: data})
					}
				}
				return nil
			})
		}
		if edgeVisit != nil && qe.from != nil {
			inflight.Add(1)
			parentReadyCh := seen[qe.from]
			gr.Go(func() error {
				defer inflightDone()
				select {
				case <-ctx.Done():
					return context.Cause(ctx)
				case <-readyCh:
					select {
					case <-parentReadyCh:
					default:
						panic(fmt.Errorf("%v not visited before visiting edge to %v", qe.from, qe.to))
					}
					return edgeVisit(ctx, qe.from, qe.to, qe.data)
				}
			})
		}
		return nil
	}
	enqueue(qEnt{to: start})
	gr.Go(func() error {
		for {
			select {
			case <-ctx.Done():
				return context.Cause(ctx)
			case qe, ok := <-q:
				if !ok {
					return nil
				}
				if err := process(qe); err != nil {
					return err
				}
			}
		}
	})
	return gr.Wait()
}

// AllReachable returns a sequence of every node reachable from start, in visit order, plus a
// function reporting any walk error once the sequence has been consumed.  The sequence may be
// abandoned early; it must not be restarted.
func (g *ModuleGraph) AllReachable(ctx context.Context, start *Node) (iter.Seq[*Node], func() error) {
	stop := false
	var retErr error
	var mu sync.Mutex
	return func(yield func(*Node) bool) {
		retErr = g.WalkGraph(ctx, start,
			func(ctx context.Context, n *Node) (bool, error) {
				mu.Lock()
				defer mu.Unlock()
				if stop || !yield(n) {
					stop = true
					return false, walkStopErr
				}
				return true, nil
			},
			nil)
		if errors.Is(retErr, walkStopErr) {
			retErr = nil
		}
	}, func() error { return retErr }
}

type walkStopError struct{}

func (walkStopError) Error() string { return "stop" }

var walkStopErr error = walkStopError{}
