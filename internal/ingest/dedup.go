package ingest

import "context"

// Deduplicator guards against re-ingesting a post that already has a
// listing. It is the very first check per post, so re-running ingestion
// for a handle after a partial failure does not create duplicates.
type Deduplicator struct {
	listings ListingStore
}

func NewDeduplicator(listings ListingStore) *Deduplicator {
	return &Deduplicator{listings: listings}
}

// AlreadyIngested reports whether a listing exists for the post URL.
// Pure read, no side effects.
func (d *Deduplicator) AlreadyIngested(ctx context.Context, postURL string) (bool, error) {
	return d.listings.ExistsBySourcePost(ctx, postURL)
}
