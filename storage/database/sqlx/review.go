package sqlxrepos

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/eduplatform/backend/core"
	"github.com/eduplatform/backend/core/review"
)

const reviewColumns = "id, user_id, course_id, rating, review, created_at, updated_at"

type reviewRow struct {
	ID        string    `db:"id"`
	UserID    string    `db:"user_id"`
	CourseID  string    `db:"course_id"`
	Rating    int       `db:"rating"`
	Review    string    `db:"review"`
	CreatedAt time.Time `db:"created_at"`
	UpdatedAt time.Time `db:"updated_at"`
}

func (row reviewRow) toReview() review.Review {
	return review.Review{
		ID:        row.ID,
		UserID:    row.UserID,
		CourseID:  row.CourseID,
		Rating:    row.Rating,
		Review:    row.Review,
		CreatedAt: row.CreatedAt.UTC(),
		UpdatedAt: row.UpdatedAt.UTC(),
	}
}

type reviewRepository struct {
	repository
}

var _ review.Repository = (*reviewRepository)(nil) // interface compliance check

func NewReviewRepository(db *sqlx.DB) *reviewRepository {
	return &reviewRepository{repository{db: db}}
}

func (repo reviewRepository) UpsertReview(ctx context.Context, r review.Review, exec ...core.DBExecutor) (review.Review, error) {
	ext := repo.getExec(exec)
	var row reviewRow
	q := ext.Rebind(`INSERT INTO course_reviews (` + reviewColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (user_id, course_id) DO UPDATE
		SET rating = EXCLUDED.rating, review = EXCLUDED.review, updated_at = EXCLUDED.updated_at
		RETURNING ` + reviewColumns)
	err := sqlx.GetContext(ctx, ext, &row, q, uuid.New().String(), r.UserID, r.CourseID, r.Rating, r.Review,
		r.CreatedAt.UTC(), r.UpdatedAt.UTC())
	if err != nil {
		return review.Review{}, errors.Wrap(err, "upserting review")
	}
	return row.toReview(), nil
}

func (repo reviewRepository) QueryReviews(ctx context.Context, courseID string, exec ...core.DBExecutor) ([]review.Review, error) {
	if !isUUID(courseID) {
		return []review.Review{}, nil
	}
	ext := repo.getExec(exec)
	var rows []reviewRow
	q := ext.Rebind("SELECT " + reviewColumns + " FROM course_reviews WHERE course_id = ?" + orderBy(newestFirst))
	if err := sqlx.SelectContext(ctx, ext, &rows, q, courseID); err != nil {
		return nil, errors.Wrap(err, "querying reviews")
	}
	reviews := make([]review.Review, 0, len(rows))
	for _, r := range rows {
		reviews = append(reviews, r.toReview())
	}
	return reviews, nil
}
