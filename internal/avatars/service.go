// Package avatars manages the user's trained avatars: listing, creation from
// uploaded photos and buying extra creation slots.
package avatars

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/BroadApps-official/App-056/internal/avatarapi"
	"github.com/BroadApps-official/App-056/internal/logger"
	"github.com/BroadApps-official/App-056/internal/models"
	"github.com/BroadApps-official/App-056/internal/poller"
	"github.com/BroadApps-official/App-056/internal/realtime"
)

var (
	ErrAvatarLimit = fmt.Errorf("avatars: at most %d avatars per user", models.MaxAvatars)
	ErrNoPhotos    = errors.New("avatars: at least one photo is required")
	ErrClosed      = errors.New("avatars: service closed")
)

type Client interface {
	ListAvatars(ctx context.Context, userID string) ([]models.Avatar, error)
	UploadAvatarPhotos(ctx context.Context, userID, gender string, photos []avatarapi.Photo, preview *avatarapi.Photo) (models.AvatarGeneration, error)
	AvatarStatus(ctx context.Context, userID string, generationID int) (models.AvatarGeneration, error)
	AddAvatarGeneration(ctx context.Context, userID string, productID int) (models.AvatarGeneration, error)
}

type Entitlement interface {
	Require() error
}

type Options struct {
	PollInterval time.Duration
	MaxFailures  int
	Deadline     time.Duration
	// ProductID is sent when buying an extra avatar slot.
	ProductID int
}

type Service struct {
	client Client
	gate   Entitlement
	bus    realtime.Bus
	opts   Options
	log    *logger.Logger

	ctx  context.Context
	stop context.CancelFunc
	wg   sync.WaitGroup

	mu      sync.Mutex
	cache   map[string][]models.Avatar
	pending map[string]int
	closed  bool
}

func NewService(client Client, gate Entitlement, bus realtime.Bus, opts Options, log *logger.Logger) *Service {
	if opts.PollInterval <= 0 {
		opts.PollInterval = 2 * time.Second
	}
	ctx, stop := context.WithCancel(context.Background())
	return &Service{
		client:  client,
		gate:    gate,
		bus:     bus,
		opts:    opts,
		log:     log.With("service", "AvatarService"),
		ctx:     ctx,
		stop:    stop,
		cache:   make(map[string][]models.Avatar),
		pending: make(map[string]int),
	}
}

// List returns the user's avatars. When the remote call fails the last list
// seen is returned, if any.
func (s *Service) List(ctx context.Context, userID string) ([]models.Avatar, error) {
	avatars, err := s.client.ListAvatars(ctx, userID)
	if err != nil {
		s.mu.Lock()
		cached, ok := s.cache[userID]
		s.mu.Unlock()
		if ok {
			s.log.Warn("Avatar list failed, serving cached list", "user_id", userID, "error", err)
			return append([]models.Avatar(nil), cached...), nil
		}
		return nil, err
	}

	s.mu.Lock()
	s.cache[userID] = append([]models.Avatar(nil), avatars...)
	s.mu.Unlock()
	return avatars, nil
}

// Pending is the number of avatar creations still running for the user.
func (s *Service) Pending(userID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pending[userID]
}

// CanAdd reports whether another avatar fits under the limit.
func (s *Service) CanAdd(userID string, listed int) bool {
	return listed+s.Pending(userID) < models.MaxAvatars
}

// Create uploads the photos and watches the resulting job until the avatar has
// a preview, then publishes avatar_ready.
func (s *Service) Create(ctx context.Context, userID, gender string, photos []avatarapi.Photo, preview *avatarapi.Photo) (models.AvatarGeneration, error) {
	if len(photos) == 0 {
		return models.AvatarGeneration{}, ErrNoPhotos
	}
	if s.gate != nil {
		if err := s.gate.Require(); err != nil {
			return models.AvatarGeneration{}, err
		}
	}

	listed, err := s.List(ctx, userID)
	if err != nil {
		return models.AvatarGeneration{}, err
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return models.AvatarGeneration{}, ErrClosed
	}
	if len(listed)+s.pending[userID] >= models.MaxAvatars {
		s.mu.Unlock()
		return models.AvatarGeneration{}, ErrAvatarLimit
	}
	// Reserve the slot before the upload so two concurrent creates cannot
	// both pass the check.
	s.pending[userID]++
	s.mu.Unlock()

	gen, err := s.client.UploadAvatarPhotos(ctx, userID, gender, photos, preview)
	if err != nil {
		s.release(userID)
		s.log.Warn("Avatar upload failed", "user_id", userID, "error", err)
		return models.AvatarGeneration{}, err
	}

	s.log.Info("Avatar creation started", "user_id", userID, "generation_id", gen.ID)
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		s.release(userID)
		return gen, nil
	}
	s.wg.Add(1)
	s.mu.Unlock()
	go s.watch(userID, gen)
	return gen, nil
}

func (s *Service) watch(userID string, gen models.AvatarGeneration) {
	defer s.wg.Done()
	defer s.release(userID)

	log := s.log.With("generation_id", gen.ID)
	var ready *models.Avatar
	var failed string

	err := poller.Run(s.ctx, poller.Options{
		Interval:    s.opts.PollInterval,
		MaxFailures: s.opts.MaxFailures,
		Deadline:    s.opts.Deadline,
		OnError: func(err error, consecutive int) {
			log.Warn("Avatar status poll failed", "consecutive", consecutive, "error", err)
		},
	}, func(ctx context.Context) (bool, error) {
		status, err := s.client.AvatarStatus(ctx, userID, gen.ID)
		if err != nil {
			return false, err
		}
		if status.Avatar != nil && status.Avatar.Ready() {
			avatar := *status.Avatar
			ready = &avatar
			return true, nil
		}
		if models.IsFailedStatus(status.Status) {
			failed = status.Status
			return true, nil
		}
		return false, nil
	})

	switch {
	case errors.Is(err, context.Canceled):
		return
	case err != nil:
		log.Warn("Gave up waiting for avatar", "error", err)
		return
	case ready == nil:
		log.Warn("Avatar creation failed", "status", failed)
		return
	}

	s.remember(userID, *ready)
	log.Info("Avatar ready", "avatar_id", ready.ID)
	if s.bus != nil {
		if err := s.bus.Publish(context.WithoutCancel(s.ctx), realtime.Event{
			Type:    realtime.EventAvatarReady,
			UserID:  userID,
			Payload: realtime.AvatarReadyPayload(*ready),
		}); err != nil {
			log.Warn("Failed to publish avatar_ready", "error", err)
		}
	}
}

// BuySlot asks the backend for one more avatar generation.
func (s *Service) BuySlot(ctx context.Context, userID string) (models.AvatarGeneration, error) {
	if s.gate != nil {
		if err := s.gate.Require(); err != nil {
			return models.AvatarGeneration{}, err
		}
	}
	gen, err := s.client.AddAvatarGeneration(ctx, userID, s.opts.ProductID)
	if err != nil {
		return models.AvatarGeneration{}, err
	}
	s.log.Info("Avatar slot added", "user_id", userID, "generation_id", gen.ID)
	return gen, nil
}

// Close stops all status watchers.
func (s *Service) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.mu.Unlock()

	s.stop()
	s.wg.Wait()
}

func (s *Service) release(userID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pending[userID] <= 1 {
		delete(s.pending, userID)
		return
	}
	s.pending[userID]--
}

// remember puts the finished avatar into the cached list.
func (s *Service) remember(userID string, avatar models.Avatar) {
	s.mu.Lock()
	defer s.mu.Unlock()
	list := s.cache[userID]
	for i := range list {
		if list[i].ID == avatar.ID {
			list[i] = avatar
			return
		}
	}
	s.cache[userID] = append(list, avatar)
}

// Cached returns the last known list without a remote call.
func (s *Service) Cached(userID string) []models.Avatar {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.Avatar(nil), s.cache[userID]...)
}
