package post

import (
	"context"

	"gorm.io/gorm"

	"github.com/hmontero/waypoint-server/cmd/models"
)

// Repository is the only read path for posts. Every query resolves the
// author and the root comment eagerly, so callers never receive a post with
// bare reference fields. The eager join is part of the contract here rather
// than hidden in model construction.
type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) withJoins(tx *gorm.DB) *gorm.DB {
	return tx.
		Preload("Author").
		Preload("RootComment").
		Preload("RootComment.Author")
}

func (r *Repository) Find(ctx context.Context) ([]models.Post, error) {
	var posts []models.Post
	err := r.withJoins(r.db.WithContext(ctx)).
		Order("created_at DESC").
		Find(&posts).Error
	return posts, err
}

func (r *Repository) FindByID(ctx context.Context, id uint) (*models.Post, error) {
	var post models.Post
	err := r.withJoins(r.db.WithContext(ctx)).First(&post, id).Error
	if err != nil {
		return nil, err
	}
	return &post, nil
}

// Create persists the post and re-reads it through the joined scope, so the
// returned value already satisfies the population invariant.
func (r *Repository) Create(ctx context.Context, post *models.Post) (*models.Post, error) {
	if err := r.db.WithContext(ctx).Create(post).Error; err != nil {
		return nil, err
	}
	return r.FindByID(ctx, post.ID)
}
