package assemble

import (
	"context"
	"fmt"
	"iter"
	"runtime"
	"sync"

	"github.com/corpusloom/loom/model"
)

// Batch is the outcome of assembling one metadata group: every instance
// fanned out of it, serialized and compressed for the instance store.
type Batch struct {
	Group model.MetadataGroup
	Rows  [][]byte
}

// Pool fans metadata groups out over a fixed set of worker goroutines, each
// assembling and compressing its groups independently. Workers share no
// state: every task carries a self-contained group and performs its own
// payload reads.
type Pool struct {
	assembler  *Assembler
	numWorkers int
}

// NewPool creates a pool of numWorkers workers around assembler. Sizes at or
// below zero use one worker per CPU; assembly cost is dominated by payload
// decoding and row compression, both CPU-bound.
func NewPool(assembler *Assembler, numWorkers int) *Pool {
	if numWorkers <= 0 {
		numWorkers = runtime.GOMAXPROCS(0)
	}

	return &Pool{assembler: assembler, numWorkers: numWorkers}
}

type poolResult struct {
	batch Batch
	err   error
}

// Assemble streams one Batch per group, in completion order rather than
// input order. The first error, whether from the group sequence or from a
// worker, is yielded once and ends the stream; groups still queued are
// dropped. Cancelling the context stops the intake: groups already picked up
// still complete, then the stream ends by reporting the cancellation.
func (p *Pool) Assemble(ctx context.Context, groups iter.Seq2[model.MetadataGroup, error]) iter.Seq2[Batch, error] {
	return func(yield func(Batch, error) bool) {
		workCh := make(chan model.MetadataGroup, p.numWorkers*2)
		resultCh := make(chan poolResult, p.numWorkers*2)
		stopCh := make(chan struct{})

		// Releases producers blocked on a send once this consumer stops
		// reading, whatever the reason.
		defer close(stopCh)

		var wg sync.WaitGroup

		wg.Add(p.numWorkers)
		for i := 0; i < p.numWorkers; i++ {
			go func() {
				defer wg.Done()
				p.worker(workCh, resultCh, stopCh)
			}()
		}

		// The feeder drains the group sequence. A sequence error travels
		// down the same result channel as worker errors.
		go func() {
			defer close(workCh)

			for group, err := range groups {
				if err != nil {
					select {
					case resultCh <- poolResult{err: err}:
					case <-stopCh:
					}

					return
				}

				select {
				case workCh <- group:
				case <-stopCh:
					return
				case <-ctx.Done():
					return
				}
			}
		}()

		// The result channel closes once the feeder has retired and every
		// worker has drained, so the loop below terminates on its own.
		go func() {
			wg.Wait()
			close(resultCh)
		}()

		for res := range resultCh {
			if res.err != nil {
				yield(Batch{}, res.err)
				return
			}

			if !yield(res.batch, nil) {
				return
			}
		}

		if err := ctx.Err(); err != nil {
			yield(Batch{}, err)
		}
	}
}

func (p *Pool) worker(workCh <-chan model.MetadataGroup, resultCh chan<- poolResult, stopCh <-chan struct{}) {
	for group := range workCh {
		rows, err := p.assembler.Compressed(group)

		var res poolResult
		if err != nil {
			res.err = fmt.Errorf("assemble group %v: %w", group.Datasets(), err)
		} else {
			res.batch = Batch{Group: group, Rows: rows}
		}

		select {
		case resultCh <- res:
		case <-stopCh:
			return
		}
	}
}
