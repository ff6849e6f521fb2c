package catalog

import (
	"context"
	"time"

	"github.com/BroadApps-official/App-056/internal/logger"
	"github.com/BroadApps-official/App-056/internal/models"
)

// StyleSource fetches the remote catalog.
type StyleSource interface {
	ListStyles(ctx context.Context, userID, gender string) ([]models.StyleCategory, error)
}

// SnapshotStore persists the last good catalog.
type SnapshotStore interface {
	Save(ctx context.Context, categories []models.StyleCategory, fetchedAt time.Time) error
	Load(ctx context.Context) ([]models.StyleCategory, time.Time, bool, error)
}

// Prefetcher warms the thumbnail cache.
type Prefetcher interface {
	Prefetch(ctx context.Context, urls []string)
}

type Catalog struct {
	Categories []models.StyleCategory
	// Stale is set when the remote fetch failed and the last snapshot is served.
	Stale     bool
	FetchedAt time.Time
}

type Service struct {
	source    StyleSource
	snapshots SnapshotStore
	images    Prefetcher
	log       *logger.Logger
	now       func() time.Time
	// prefetchCtx outlives the request that triggered the prefetch.
	prefetchCtx context.Context
}

func NewService(ctx context.Context, source StyleSource, snapshots SnapshotStore, images Prefetcher, log *logger.Logger) *Service {
	return &Service{
		source:      source,
		snapshots:   snapshots,
		images:      images,
		log:         log.With("service", "CatalogService"),
		now:         time.Now,
		prefetchCtx: ctx,
	}
}

// Styles returns the remote catalog and stores it as the new snapshot. When the
// fetch fails the previous snapshot is returned instead, marked stale; with no
// snapshot the fetch error is returned.
func (s *Service) Styles(ctx context.Context, userID, gender string) (Catalog, error) {
	categories, err := s.source.ListStyles(ctx, userID, gender)
	if err == nil {
		fetchedAt := s.now().UTC()
		if saveErr := s.snapshots.Save(ctx, categories, fetchedAt); saveErr != nil {
			s.log.Warn("Failed to store style snapshot", "error", saveErr)
		}
		if s.images != nil {
			urls := models.PreviewURLs(categories)
			go s.images.Prefetch(s.prefetchCtx, urls)
		}
		return Catalog{Categories: categories, FetchedAt: fetchedAt}, nil
	}

	s.log.Warn("Style fetch failed, falling back to snapshot", "user_id", userID, "error", err)
	cached, fetchedAt, ok, loadErr := s.snapshots.Load(ctx)
	if loadErr != nil {
		s.log.Error("Failed to load style snapshot", "error", loadErr)
		return Catalog{}, err
	}
	if !ok {
		return Catalog{}, err
	}
	return Catalog{Categories: cached, Stale: true, FetchedAt: fetchedAt}, nil
}
