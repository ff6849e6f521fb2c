package store

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/BroadApps-official/App-056/internal/logger"
	"github.com/BroadApps-official/App-056/internal/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Users persists the install identity. The id is fixed at creation; gender and
// the notification opt-in are the only attributes that change.
type Users struct {
	mu  sync.Mutex
	db  *gorm.DB
	log *logger.Logger
}

func NewUsers(db *gorm.DB, log *logger.Logger) *Users {
	return &Users{db: db, log: log.With("service", "UserStore")}
}

// Ensure returns the user with the given id, creating it first if needed. An
// empty id mints a new one. created reports whether a row was written.
func (s *Users) Ensure(ctx context.Context, id, gender string) (user models.User, created bool, err error) {
	if err := checkGender(&gender); err != nil {
		return models.User{}, false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ensure(ctx, id, gender)
}

// Claim returns the install user, creating it on first launch. Once an install
// user exists any other id is refused with ErrForeignUser; an empty id means
// the install user.
func (s *Users) Claim(ctx context.Context, id, gender string) (user models.User, created bool, err error) {
	if err := checkGender(&gender); err != nil {
		return models.User{}, false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	var install models.User
	err = s.db.WithContext(ctx).Order("created_at ASC").Order("id ASC").Take(&install).Error
	switch {
	case err == nil:
		if id != "" && id != install.ID {
			return models.User{}, false, ErrForeignUser
		}
		return install, false, nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		return s.ensure(ctx, id, gender)
	default:
		return models.User{}, false, fmt.Errorf("failed to get install user: %w", err)
	}
}

func checkGender(gender *string) error {
	if *gender == "" {
		*gender = models.GenderFemale
	}
	if !models.ValidGender(*gender) {
		return fmt.Errorf("%w: %q", ErrInvalidGender, *gender)
	}
	return nil
}

// ensure expects s.mu to be held.
func (s *Users) ensure(ctx context.Context, id, gender string) (user models.User, created bool, err error) {
	if id == "" {
		id = uuid.NewString()
	}

	err = s.db.WithContext(ctx).Where("id = ?", id).Take(&user).Error
	if err == nil {
		return user, false, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return models.User{}, false, fmt.Errorf("failed to get user: %w", err)
	}

	now := time.Now().UTC()
	user = models.User{ID: id, Gender: gender, CreatedAt: now, UpdatedAt: now}
	if err := s.db.WithContext(ctx).Create(&user).Error; err != nil {
		return models.User{}, false, fmt.Errorf("failed to create user: %w", err)
	}
	s.log.Info("Created install user", "user_id", id)
	return user, true, nil
}

func (s *Users) Get(ctx context.Context, id string) (models.User, error) {
	var user models.User
	err := s.db.WithContext(ctx).Where("id = ?", id).Take(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return models.User{}, ErrNotFound
	}
	if err != nil {
		return models.User{}, fmt.Errorf("failed to get user: %w", err)
	}
	return user, nil
}

func (s *Users) SetGender(ctx context.Context, id, gender string) (models.User, error) {
	if !models.ValidGender(gender) {
		return models.User{}, fmt.Errorf("%w: %q", ErrInvalidGender, gender)
	}
	return s.update(ctx, id, map[string]interface{}{"gender": gender})
}

func (s *Users) SetNotifications(ctx context.Context, id string, enabled bool) (models.User, error) {
	return s.update(ctx, id, map[string]interface{}{"notifications_enabled": enabled})
}

func (s *Users) update(ctx context.Context, id string, fields map[string]interface{}) (models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	fields["updated_at"] = time.Now().UTC()
	res := s.db.WithContext(ctx).Model(&models.User{}).Where("id = ?", id).Updates(fields)
	if res.Error != nil {
		return models.User{}, fmt.Errorf("failed to update user: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return models.User{}, ErrNotFound
	}
	return s.Get(ctx, id)
}
