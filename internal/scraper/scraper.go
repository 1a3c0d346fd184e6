package scraper

import (
	"context"

	"imgfilter/internal/domain"
)

// Scraper finds images to classify at a source and returns one request per
// image, tagged with the source as session.
type Scraper interface {
	Scrape(ctx context.Context, source string) ([]domain.Request, error)
}
