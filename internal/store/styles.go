package store

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/BroadApps-official/App-056/internal/logger"
	"github.com/BroadApps-official/App-056/internal/models"
	"gorm.io/gorm"
)

type styleCategoryRow struct {
	ID        int    `gorm:"primaryKey;autoIncrement:false"`
	Position  int    `gorm:"not null"`
	Title     string `gorm:"not null"`
	Preview   *string
	IsNew     bool      `gorm:"not null"`
	FetchedAt time.Time `gorm:"not null"`
}

func (styleCategoryRow) TableName() string { return "style_categories" }

type styleTemplateRow struct {
	ID         int `gorm:"primaryKey;autoIncrement:false"`
	CategoryID int `gorm:"primaryKey;autoIncrement:false"`
	Position   int `gorm:"not null"`
	Title      *string
	Preview    string `gorm:"not null"`
	Gender     string
	IsEnabled  bool `gorm:"not null"`
}

func (styleTemplateRow) TableName() string { return "style_templates" }

// StyleSnapshots keeps the last catalog fetched from the backend. A save
// replaces the previous snapshot wholesale.
type StyleSnapshots struct {
	mu  sync.Mutex
	db  *gorm.DB
	log *logger.Logger
}

func NewStyleSnapshots(db *gorm.DB, log *logger.Logger) *StyleSnapshots {
	return &StyleSnapshots{db: db, log: log.With("service", "StyleSnapshots")}
}

func (s *StyleSnapshots) Save(ctx context.Context, categories []models.StyleCategory, fetchedAt time.Time) error {
	fetchedAt = fetchedAt.UTC()

	cats := make([]styleCategoryRow, 0, len(categories))
	var templates []styleTemplateRow
	for i, c := range categories {
		cats = append(cats, styleCategoryRow{
			ID:        c.ID,
			Position:  i,
			Title:     c.Title,
			Preview:   c.Preview,
			IsNew:     c.IsNew,
			FetchedAt: fetchedAt,
		})
		for j, t := range c.Templates {
			templates = append(templates, styleTemplateRow{
				ID:         t.ID,
				CategoryID: c.ID,
				Position:   j,
				Title:      t.Title,
				Preview:    t.Preview,
				Gender:     t.Gender,
				IsEnabled:  t.IsEnabled,
			})
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Exec("DELETE FROM style_templates").Error; err != nil {
			return err
		}
		if err := tx.Exec("DELETE FROM style_categories").Error; err != nil {
			return err
		}
		if len(cats) > 0 {
			if err := tx.CreateInBatches(cats, 100).Error; err != nil {
				return err
			}
		}
		if len(templates) > 0 {
			if err := tx.CreateInBatches(templates, 100).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		s.log.Error("Failed to save style snapshot", "categories", len(cats), "error", err)
		return fmt.Errorf("failed to save style snapshot: %w", err)
	}

	s.log.Debug("Saved style snapshot", "categories", len(cats), "templates", len(templates))
	return nil
}

// Load returns the stored snapshot in its original order. ok is false when
// nothing was ever saved.
func (s *StyleSnapshots) Load(ctx context.Context) (categories []models.StyleCategory, fetchedAt time.Time, ok bool, err error) {
	var cats []styleCategoryRow
	if err := s.db.WithContext(ctx).Order("position ASC").Find(&cats).Error; err != nil {
		return nil, time.Time{}, false, fmt.Errorf("failed to load style categories: %w", err)
	}
	if len(cats) == 0 {
		return nil, time.Time{}, false, nil
	}

	var templates []styleTemplateRow
	if err := s.db.WithContext(ctx).Order("category_id ASC").Order("position ASC").Find(&templates).Error; err != nil {
		return nil, time.Time{}, false, fmt.Errorf("failed to load style templates: %w", err)
	}
	byCategory := make(map[int][]models.StyleTemplate, len(cats))
	for _, t := range templates {
		byCategory[t.CategoryID] = append(byCategory[t.CategoryID], models.StyleTemplate{
			ID:        t.ID,
			Title:     t.Title,
			Preview:   t.Preview,
			Gender:    t.Gender,
			IsEnabled: t.IsEnabled,
		})
	}

	categories = make([]models.StyleCategory, 0, len(cats))
	for _, c := range cats {
		tpls := byCategory[c.ID]
		if tpls == nil {
			tpls = []models.StyleTemplate{}
		}
		categories = append(categories, models.StyleCategory{
			ID:        c.ID,
			Title:     c.Title,
			Preview:   c.Preview,
			IsNew:     c.IsNew,
			Templates: tpls,
		})
		if c.FetchedAt.After(fetchedAt) {
			fetchedAt = c.FetchedAt
		}
	}
	return categories, fetchedAt, true, nil
}
