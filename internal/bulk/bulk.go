// Package bulk runs one operation per input file with progress reporting
// and stop-or-continue error handling.
package bulk

import (
	"context"
	"fmt"
	"io"
	"os"
	"runtime"
	"strings"
	"sync"
	"sync/atomic"
)

// Operation represents a bulk operation configuration
type Operation struct {
	Jobs            int
	ContinueOnError bool
	Ordered         bool
	ShowProgress    bool
	// Out receives progress and per-item status lines. Defaults to stderr.
	Out io.Writer
}

// Result represents the result of a bulk operation
type Result struct {
	TotalItems int
	Succeeded  int
	Failed     int
	Errors     []ItemError
}

// ItemError represents an error for a specific item
type ItemError struct {
	Item  string
	Error error
}

// ItemFunc is the function to execute for each item
type ItemFunc func(ctx context.Context, item string) error

func (op *Operation) out() io.Writer {
	if op.Out != nil {
		return op.Out
	}
	return os.Stderr
}

// interactive reports whether progress should redraw in place.
func (op *Operation) interactive() bool {
	f, ok := op.out().(*os.File)
	return ok && isatty(f)
}

// Execute runs the bulk operation on the given items. A cancelled context
// stops before the next item starts.
func (op *Operation) Execute(ctx context.Context, items []string, fn ItemFunc) *Result {
	result := &Result{
		TotalItems: len(items),
	}

	if len(items) == 0 {
		return result
	}

	// Auto-detect CPU count if jobs == 0
	jobs := op.Jobs
	if jobs == 0 {
		jobs = runtime.NumCPU()
	}

	// Force sequential if ordered or jobs == 1
	if op.Ordered || jobs == 1 {
		return op.executeSequential(ctx, items, fn)
	}

	return op.executeParallel(ctx, items, fn, jobs)
}

// executeSequential processes items one by one
func (op *Operation) executeSequential(ctx context.Context, items []string, fn ItemFunc) *Result {
	result := &Result{
		TotalItems: len(items),
	}
	w := op.out()
	tty := op.interactive()

	for i, item := range items {
		if err := ctx.Err(); err != nil {
			result.Failed++
			result.Errors = append(result.Errors, ItemError{Item: item, Error: err})
			break
		}
		if op.ShowProgress && tty {
			fmt.Fprintf(w, "\rProcessing %d/%d...", i+1, len(items))
		}

		err := fn(ctx, item)
		if err != nil {
			result.Failed++
			result.Errors = append(result.Errors, ItemError{
				Item:  item,
				Error: err,
			})

			if !op.ContinueOnError {
				if op.ShowProgress && tty {
					fmt.Fprintf(w, "\r\033[K")
				}
				return result
			}

			if !tty {
				fmt.Fprintf(w, "%s: error: %v\n", item, err)
			}
		} else {
			result.Succeeded++
			if !tty {
				fmt.Fprintf(w, "%s: success\n", item)
			}
		}
	}

	// Clear progress line
	if op.ShowProgress && tty {
		fmt.Fprintf(w, "\r\033[K")
	}

	return result
}

// executeParallel processes items in parallel using a worker pool
func (op *Operation) executeParallel(ctx context.Context, items []string, fn ItemFunc, workers int) *Result {
	result := &Result{
		TotalItems: len(items),
	}
	w := op.out()
	tty := op.interactive()

	workQueue := make(chan string, len(items))
	for _, item := range items {
		workQueue <- item
	}
	close(workQueue)

	var (
		completed  int32
		succeeded  int32
		failed     int32
		mu         sync.Mutex
		stopSignal int32 // 0 = continue, 1 = stop
	)

	var progressDone chan struct{}
	if op.ShowProgress && tty {
		progressDone = make(chan struct{})
		go func() {
			defer close(progressDone)
			for {
				select {
				case <-progressDone:
					return
				default:
					c := atomic.LoadInt32(&completed)
					s := atomic.LoadInt32(&succeeded)
					f := atomic.LoadInt32(&failed)
					pct := int(float64(c) / float64(len(items)) * 100)

					mu.Lock()
					fmt.Fprintf(w, "\rProcessing with %d workers... [%s] %d/%d (✓ %d ✗ %d)",
						workers, progressBar(pct, 20), c, len(items), s, f)
					mu.Unlock()
				}
			}
		}()
	}

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()

			for item := range workQueue {
				if !op.ContinueOnError && atomic.LoadInt32(&stopSignal) == 1 {
					break
				}
				if ctx.Err() != nil {
					break
				}

				err := fn(ctx, item)
				atomic.AddInt32(&completed, 1)

				mu.Lock()
				if err != nil {
					atomic.AddInt32(&failed, 1)
					result.Errors = append(result.Errors, ItemError{
						Item:  item,
						Error: err,
					})
					if !op.ContinueOnError {
						atomic.StoreInt32(&stopSignal, 1)
					}
					if !tty {
						fmt.Fprintf(w, "%s: error: %v\n", item, err)
					}
				} else {
					atomic.AddInt32(&succeeded, 1)
					if !tty {
						fmt.Fprintf(w, "%s: success\n", item)
					}
				}
				mu.Unlock()
			}
		}()
	}

	wg.Wait()

	if progressDone != nil {
		progressDone <- struct{}{}
		<-progressDone
		fmt.Fprintf(w, "\r\033[K")
	}

	result.Succeeded = int(succeeded)
	result.Failed = int(failed)

	return result
}

// ParseThenApply parses every file with the operation's worker pool, then
// applies the parsed files one at a time in input order. Without
// ContinueOnError a parse failure means nothing is applied.
func ParseThenApply[T any](
	ctx context.Context,
	op *Operation,
	files []string,
	parse func(ctx context.Context, file string) (T, error),
	apply func(ctx context.Context, file string, parsed T) error,
) *Result {
	var mu sync.Mutex
	parsed := make(map[string]T, len(files))

	parseOp := *op
	parseOp.Ordered = false
	parseOp.ShowProgress = false
	parseOp.Out = io.Discard
	parseRes := parseOp.Execute(ctx, files, func(ctx context.Context, file string) error {
		v, err := parse(ctx, file)
		if err != nil {
			return err
		}
		mu.Lock()
		parsed[file] = v
		mu.Unlock()
		return nil
	})

	result := &Result{TotalItems: len(files)}
	for _, e := range parseRes.Errors {
		result.Failed++
		result.Errors = append(result.Errors, ItemError{Item: e.Item, Error: fmt.Errorf("parse: %w", e.Error)})
		fmt.Fprintf(op.out(), "%s: error: %v\n", e.Item, e.Error)
	}
	if parseRes.Failed > 0 && !op.ContinueOnError {
		return result
	}

	var ready []string
	for _, f := range files {
		if _, ok := parsed[f]; ok {
			ready = append(ready, f)
		}
	}
	applyOp := *op
	applyOp.Ordered = true
	applyRes := applyOp.Execute(ctx, ready, func(ctx context.Context, file string) error {
		return apply(ctx, file, parsed[file])
	})

	result.Succeeded = applyRes.Succeeded
	result.Failed += applyRes.Failed
	result.Errors = append(result.Errors, applyRes.Errors...)
	return result
}

// ExitCode returns the appropriate exit code for the result
func (r *Result) ExitCode() int {
	if r.Failed == 0 {
		return 0 // All succeeded
	}
	if r.Succeeded > 0 {
		return 5 // Partial success
	}
	return 1 // All failed
}

// PrintSummary prints a human-readable summary of the result
func (r *Result) PrintSummary(w io.Writer) {
	if r.Failed == 0 {
		fmt.Fprintf(w, "\n✓ All %d files imported\n", r.TotalItems)
	} else if r.Succeeded == 0 {
		fmt.Fprintf(w, "\n✗ All %d files failed\n", r.TotalItems)
	} else {
		fmt.Fprintf(w, "\n⚠ Partial success: %d imported, %d failed (out of %d)\n",
			r.Succeeded, r.Failed, r.TotalItems)
	}

	if len(r.Errors) > 0 && len(r.Errors) <= 10 {
		fmt.Fprintf(w, "\nErrors:\n")
		for _, e := range r.Errors {
			fmt.Fprintf(w, "  %s: %v\n", e.Item, e.Error)
		}
	} else if len(r.Errors) > 10 {
		fmt.Fprintf(w, "\nShowing first 10 errors (of %d):\n", len(r.Errors))
		for _, e := range r.Errors[:10] {
			fmt.Fprintf(w, "  %s: %v\n", e.Item, e.Error)
		}
	}
}

// progressBar creates a simple ASCII progress bar
func progressBar(percent, width int) string {
	filled := percent * width / 100
	if filled > width {
		filled = width
	}
	return strings.Repeat("█", filled) + strings.Repeat("░", width-filled)
}

// isatty checks if the file descriptor is a terminal
func isatty(f *os.File) bool {
	stat, err := f.Stat()
	if err != nil {
		return false
	}
	return (stat.Mode() & os.ModeCharDevice) != 0
}
