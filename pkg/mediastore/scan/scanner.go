// Package scan walks the object store in batches and hands each object to a
// processor, e.g. to backfill safety checks for uploads nobody has vetted.
package scan

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/tendant/simple-blog/pkg/mediastore"
)

// Scanner queries objects and processes them with the provided processor.
type Scanner struct {
	store  mediastore.Service
	logger *slog.Logger
}

// New creates a new Scanner instance. A nil logger means slog.Default().
func New(store mediastore.Service, logger *slog.Logger) *Scanner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scanner{store: store, logger: logger}
}

// ScanOptions configures the scan operation.
type ScanOptions struct {
	// Filters specifies which objects to process. Limit, Offset and After
	// are managed by the scanner.
	Filters mediastore.ListObjectsRequest

	// Processor defines the processing logic (required unless DryRun is true)
	Processor ObjectProcessor

	// BatchSize controls how many objects to query at once (default: 100)
	BatchSize int

	// Workers bounds how many objects of a batch are processed concurrently (default: 1)
	Workers int

	// DryRun if true, doesn't process objects, just reports what would be processed
	DryRun bool

	// OnProgress is called after each batch is processed (optional)
	OnProgress func(processed, total int64)
}

// ScanResult contains statistics about the scan operation.
type ScanResult struct {
	// TotalFound is the total number of objects found matching the filters
	TotalFound int64

	// TotalProcessed is the number of objects successfully processed
	TotalProcessed int64

	// TotalFailed is the number of objects that failed processing
	TotalFailed int64

	// FailedNames contains the names of objects that failed processing
	FailedNames []string
}

// Scan pages through objects matching the filters and processes each one.
// A failing object is recorded and scanning continues. Paging uses a
// (created_at, name) cursor, so processors may modify the objects they are
// handed, including the fields used as filters.
func (s *Scanner) Scan(ctx context.Context, opts ScanOptions) (*ScanResult, error) {
	result := &ScanResult{}

	if !opts.DryRun && opts.Processor == nil {
		return result, fmt.Errorf("processor is required when DryRun is false")
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = 100
	}
	if opts.Workers <= 0 {
		opts.Workers = 1
	}

	req := opts.Filters
	req.Limit = opts.BatchSize
	req.Offset = 0
	req.After = nil

	for {
		batch, err := s.store.List(ctx, req)
		if err != nil {
			return result, fmt.Errorf("failed to list objects: %w", err)
		}
		if len(batch) == 0 {
			break
		}
		result.TotalFound += int64(len(batch))

		if opts.DryRun {
			for _, obj := range batch {
				s.logger.InfoContext(ctx, "dry run: would process object",
					"name", obj.Name, "content_type", obj.ContentType, "uploader", obj.Uploader)
			}
			result.TotalProcessed += int64(len(batch))
		} else if err := s.processBatch(ctx, opts, batch, result); err != nil {
			return result, err
		}

		if opts.OnProgress != nil {
			opts.OnProgress(result.TotalProcessed+result.TotalFailed, result.TotalFound)
		}
		if len(batch) < opts.BatchSize {
			break
		}
		req.After = mediastore.CursorOf(batch[len(batch)-1])
	}

	return result, nil
}

func (s *Scanner) processBatch(ctx context.Context, opts ScanOptions, batch []*mediastore.Object, result *ScanResult) error {
	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(opts.Workers)

	for _, obj := range batch {
		g.Go(func() error {
			err := opts.Processor.Process(gctx, obj)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				result.TotalFailed++
				result.FailedNames = append(result.FailedNames, obj.Name)
				s.logger.WarnContext(gctx, "failed to process object", "name", obj.Name, "err", err)
				return nil
			}
			result.TotalProcessed++
			return nil
		})
	}
	_ = g.Wait()
	return ctx.Err()
}

// ForEach is a convenience method that processes each object with a callback function.
//
// Example:
//
//	scanner.ForEach(ctx, filters, func(ctx context.Context, obj *mediastore.Object) error {
//	    return inspect(obj)
//	})
func (s *Scanner) ForEach(ctx context.Context, filters mediastore.ListObjectsRequest, fn func(context.Context, *mediastore.Object) error) (*ScanResult, error) {
	return s.Scan(ctx, ScanOptions{
		Filters:   filters,
		Processor: ProcessorFunc(fn),
	})
}
