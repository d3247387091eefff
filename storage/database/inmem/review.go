package inmemdb

import (
	"context"
	"sort"

	"github.com/google/uuid"

	"github.com/eduplatform/backend/core"
	"github.com/eduplatform/backend/core/review"
)

type reviewRepository struct {
	db *reviewTable
}

var _ review.Repository = (*reviewRepository)(nil) // interface compliance check

func NewReviewRepository(db *DB) *reviewRepository {
	return &reviewRepository{db: db.review}
}

func reviewKey(userID, courseID string) string {
	return userID + "/" + courseID
}

func (repo *reviewRepository) UpsertReview(_ context.Context, r review.Review, _ ...core.DBExecutor) (review.Review, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	key := reviewKey(r.UserID, r.CourseID)
	if stored, ok := repo.db.table[key]; ok {
		stored.Rating = r.Rating
		stored.Review = r.Review
		stored.UpdatedAt = r.UpdatedAt
		return *stored, nil
	}
	r.ID = uuid.New().String()
	r.User = nil
	repo.db.table[key] = &r
	repo.db.seq.add(key)
	return r, nil
}

func (repo *reviewRepository) QueryReviews(_ context.Context, courseID string, _ ...core.DBExecutor) ([]review.Review, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	reviews := make([]review.Review, 0)
	for _, r := range repo.db.table {
		if r.CourseID == courseID {
			reviews = append(reviews, *r)
		}
	}
	sort.Slice(reviews, func(i, j int) bool {
		ki := reviewKey(reviews[i].UserID, reviews[i].CourseID)
		kj := reviewKey(reviews[j].UserID, reviews[j].CourseID)
		return repo.db.seq.newestFirst(reviews[i].CreatedAt, reviews[j].CreatedAt, ki, kj)
	})
	return reviews, nil
}
