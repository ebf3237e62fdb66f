package homepage

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/MrSnakeDoc/marks/internal/domain"
	"github.com/MrSnakeDoc/marks/internal/logger"
	"github.com/MrSnakeDoc/marks/internal/mutation"
)

// Target is the view drafts are created into.
type Target interface {
	RequestCreate(ctx context.Context, title, url string) (domain.Record, *mutation.Receipt, error)
	Snapshot() []domain.Entry
}

// Report summarizes an import.
type Report struct {
	Created  int `json:"created"`
	Skipped  int `json:"skipped"`
	Invalid  int `json:"invalid"`
	Rejected int `json:"rejected"`
}

// Importer creates a record for every draft whose URL is not in the view yet.
type Importer struct {
	target Target
	logger logger.Logger
}

// NewImporter creates a new importer
func NewImporter(target Target, log logger.Logger) *Importer {
	return &Importer{
		target: target,
		logger: log,
	}
}

// ImportFile loads path and imports its bookmarks.
func (im *Importer) ImportFile(ctx context.Context, path string) (Report, error) {
	config, err := NewLoader(path).Load()
	if err != nil {
		return Report{}, err
	}
	drafts, err := MapDrafts(config)
	if err != nil {
		return Report{}, fmt.Errorf("failed to map bookmarks: %w", err)
	}
	return im.Import(ctx, drafts)
}

// Import creates drafts and waits until the store has answered for each
// of them. Records appear in the view as soon as they are created; the
// store rejecting one is counted, not returned.
func (im *Importer) Import(ctx context.Context, drafts []Draft) (Report, error) {
	seen := make(map[string]bool)
	for _, e := range im.target.Snapshot() {
		seen[e.URL] = true
	}

	var (
		report   Report
		rejected atomic.Int32
		g        errgroup.Group
	)

	for _, d := range drafts {
		if seen[d.URL] {
			report.Skipped++
			continue
		}

		_, receipt, err := im.target.RequestCreate(ctx, d.Title, d.URL)
		switch {
		case errors.Is(err, domain.ErrInvalidRecord):
			im.logger.Warn("skipping invalid bookmark",
				logger.String("title", d.Title),
				logger.String("url", d.URL),
				logger.Error(err))
			report.Invalid++
			continue
		case err != nil:
			return report, fmt.Errorf("failed to create %q: %w", d.Title, err)
		}

		seen[d.URL] = true
		report.Created++
		g.Go(func() error {
			if err := receipt.Wait(ctx); err != nil {
				if ctx.Err() != nil {
					return err
				}
				rejected.Add(1)
			}
			return nil
		})
	}

	err := g.Wait()
	report.Rejected = int(rejected.Load())
	report.Created -= report.Rejected

	im.logger.Info("bookmarks imported",
		logger.Int("created", report.Created),
		logger.Int("skipped", report.Skipped),
		logger.Int("invalid", report.Invalid),
		logger.Int("rejected", report.Rejected))

	return report, err
}
