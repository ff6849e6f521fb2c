// Package store holds the durable local records: generated projects, the last
// style catalog snapshot and the install user.
package store

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/BroadApps-official/App-056/internal/logger"
	"github.com/BroadApps-official/App-056/internal/models"
	"github.com/BroadApps-official/App-056/internal/realtime"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	ErrNotFound      = errors.New("store: not found")
	ErrInvalidGender = errors.New("store: invalid gender")
	ErrForeignUser   = errors.New("store: user is not the install user")
)

// Projects owns the project table. Every mutation holds mu, so an orchestrator
// update and a user delete on the same id are applied one after the other.
type Projects struct {
	mu  sync.Mutex
	db  *gorm.DB
	bus realtime.Bus
	log *logger.Logger
	now func() time.Time
}

func NewProjects(db *gorm.DB, bus realtime.Bus, log *logger.Logger) *Projects {
	return &Projects{
		db:  db,
		bus: bus,
		log: log.With("service", "ProjectStore"),
		now: func() time.Time { return time.Now().UTC() },
	}
}

// Insert stores p unless a project with the same id already exists, in which
// case nothing changes.
func (s *Projects) Insert(ctx context.Context, p models.Project) error {
	if p.ID == "" {
		return fmt.Errorf("project id is required")
	}
	now := s.now()
	if p.CreatedAt.IsZero() {
		p.CreatedAt = now
	}
	p.CreatedAt = p.CreatedAt.UTC()
	p.UpdatedAt = now

	s.mu.Lock()
	defer s.mu.Unlock()

	res := s.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&p)
	if res.Error != nil {
		s.log.Error("Failed to insert project", "project_id", p.ID, "error", res.Error)
		return fmt.Errorf("failed to insert project: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		s.log.Debug("Project already exists, insert skipped", "project_id", p.ID)
		return nil
	}

	s.publish(ctx, realtime.EventProjectCreated, p.UserID, realtime.ProjectPayload(p))
	return nil
}

// UpdateImage swaps the placeholder for the finished image and clears the
// loading and failed flags. A missing id is not an error: the user may have
// deleted the project while its job was still running.
func (s *Projects) UpdateImage(ctx context.Context, id, imageURL string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, err := s.get(ctx, id)
	if errors.Is(err, ErrNotFound) {
		s.log.Info("Project not found, image update skipped", "project_id", id)
		return nil
	}
	if err != nil {
		return err
	}
	if p.ImageURL == imageURL && !p.IsLoading && !p.IsFailed {
		return nil
	}

	now := s.now()
	err = s.db.WithContext(ctx).Model(&models.Project{}).Where("id = ?", id).Updates(map[string]interface{}{
		"image_url":      imageURL,
		"is_loading":     false,
		"is_failed":      false,
		"failure_reason": "",
		"updated_at":     now,
	}).Error
	if err != nil {
		s.log.Error("Failed to update project image", "project_id", id, "error", err)
		return fmt.Errorf("failed to update project: %w", err)
	}

	p.ImageURL = imageURL
	p.IsLoading = false
	p.IsFailed = false
	p.FailureReason = ""
	p.UpdatedAt = now
	s.publish(ctx, realtime.EventProjectUpdated, p.UserID, realtime.ProjectPayload(p))
	return nil
}

// MarkFailed ends the spinner of a project whose job gave up. Projects that
// already hold a result, and missing ids, are left alone.
func (s *Projects) MarkFailed(ctx context.Context, id, reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, err := s.get(ctx, id)
	if errors.Is(err, ErrNotFound) {
		s.log.Info("Project not found, failure mark skipped", "project_id", id)
		return nil
	}
	if err != nil {
		return err
	}
	if !p.IsLoading {
		return nil
	}

	err = s.db.WithContext(ctx).Model(&models.Project{}).Where("id = ?", id).Updates(map[string]interface{}{
		"is_loading":     false,
		"is_failed":      true,
		"failure_reason": reason,
		"updated_at":     s.now(),
	}).Error
	if err != nil {
		s.log.Error("Failed to mark project failed", "project_id", id, "error", err)
		return fmt.Errorf("failed to update project: %w", err)
	}

	s.publish(ctx, realtime.EventProjectFailed, p.UserID, realtime.ProjectFailedPayload(id, reason))
	return nil
}

func (s *Projects) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, err := s.get(ctx, id)
	if err != nil {
		return err
	}
	if err := s.db.WithContext(ctx).Delete(&models.Project{}, "id = ?", id).Error; err != nil {
		s.log.Error("Failed to delete project", "project_id", id, "error", err)
		return fmt.Errorf("failed to delete project: %w", err)
	}

	s.publish(ctx, realtime.EventProjectDeleted, p.UserID, realtime.ProjectDeletedPayload(id))
	return nil
}

// DeleteMany removes the user's projects among ids and returns the ids it
// removed. Unknown ids and other users' projects are skipped.
func (s *Projects) DeleteMany(ctx context.Context, userID string, ids []string) ([]string, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var existing []models.Project
	if err := s.db.WithContext(ctx).Where("user_id = ? AND id IN ?", userID, ids).Find(&existing).Error; err != nil {
		return nil, fmt.Errorf("failed to load projects: %w", err)
	}
	if len(existing) == 0 {
		return nil, nil
	}

	found := make([]string, 0, len(existing))
	for _, p := range existing {
		found = append(found, p.ID)
	}
	if err := s.db.WithContext(ctx).Where("user_id = ? AND id IN ?", userID, found).Delete(&models.Project{}).Error; err != nil {
		s.log.Error("Failed to delete projects", "user_id", userID, "error", err)
		return nil, fmt.Errorf("failed to delete projects: %w", err)
	}

	for _, id := range found {
		s.publish(ctx, realtime.EventProjectDeleted, userID, realtime.ProjectDeletedPayload(id))
	}
	return found, nil
}

func (s *Projects) SetSelected(ctx context.Context, id string, selected bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res := s.db.WithContext(ctx).Model(&models.Project{}).Where("id = ?", id).Updates(map[string]interface{}{
		"is_selected": selected,
		"updated_at":  s.now(),
	})
	if res.Error != nil {
		return fmt.Errorf("failed to update project: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *Projects) Get(ctx context.Context, id string) (models.Project, error) {
	return s.get(ctx, id)
}

func (s *Projects) get(ctx context.Context, id string) (models.Project, error) {
	var p models.Project
	err := s.db.WithContext(ctx).Where("id = ?", id).Take(&p).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return models.Project{}, ErrNotFound
	}
	if err != nil {
		return models.Project{}, fmt.Errorf("failed to get project: %w", err)
	}
	return p, nil
}

// List reloads the user's projects from storage, newest first (ties broken by
// id), split into the preset and artwork buckets.
func (s *Projects) List(ctx context.Context, userID string) (models.ProjectLists, error) {
	var all []models.Project
	err := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").Order("id ASC").
		Find(&all).Error
	if err != nil {
		return models.ProjectLists{}, fmt.Errorf("failed to list projects: %w", err)
	}

	lists := models.ProjectLists{
		Presets:  []models.Project{},
		Artworks: []models.Project{},
	}
	for _, p := range all {
		if p.Category == models.CategoryPreset {
			lists.Presets = append(lists.Presets, p)
		} else {
			lists.Artworks = append(lists.Artworks, p)
		}
	}
	return lists, nil
}

// Loading returns every project still waiting on its job, across users.
func (s *Projects) Loading(ctx context.Context) ([]models.Project, error) {
	var out []models.Project
	err := s.db.WithContext(ctx).Where("is_loading = ?", true).Order("created_at ASC").Find(&out).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list loading projects: %w", err)
	}
	return out, nil
}

func (s *Projects) publish(ctx context.Context, typ realtime.EventType, userID string, payload map[string]interface{}) {
	if s.bus == nil {
		return
	}
	if err := s.bus.Publish(ctx, realtime.Event{Type: typ, UserID: userID, Payload: payload}); err != nil {
		s.log.Warn("Failed to publish project event", "event", typ, "error", err)
	}
}
