// Package review manages course reviews: one rating per (user, course), resubmissions overwrite.
package review

import (
	"context"
	"math"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/kat-co/vala"
	"github.com/pkg/errors"

	"github.com/eduplatform/backend/core"
	"github.com/eduplatform/backend/core/course"
	"github.com/eduplatform/backend/core/user"
)

type Review struct {
	ID        string        `json:"id"`
	UserID    string        `json:"userId"`
	CourseID  string        `json:"courseId"`
	Rating    int           `json:"rating"`
	Review    string        `json:"review"`
	User      *user.Summary `json:"user,omitempty"`
	CreatedAt time.Time     `json:"createdAt"`
	UpdatedAt time.Time     `json:"updatedAt"`
}

type NewReview struct {
	Rating int    `json:"rating" validate:"required,min=1,max=5"`
	Review string `json:"review" validate:"max=5000"`
}

func (nr *NewReview) Validate(validate *validator.Validate) error {
	nr.Review = core.CleanString(nr.Review)
	return validate.Struct(nr)
}

type Reviews struct {
	AvgRating float64  `json:"avgRating"`
	Reviews   []Review `json:"reviews"`
}

type Summary struct {
	AvgRating   float64 `json:"avgRating"`
	ReviewCount int     `json:"reviewCount"`
}

type (
	Repository interface {
		// UpsertReview creates the (user, course) review or overwrites its rating & text.
		UpsertReview(ctx context.Context, r Review, exec ...core.DBExecutor) (Review, error)
		// QueryReviews returns a course's reviews, newest first.
		QueryReviews(ctx context.Context, courseID string, exec ...core.DBExecutor) ([]Review, error)
	}

	Service interface {
		Submit(ctx context.Context, actor user.Actor, courseID string, nr NewReview) (Review, error)
		Reviews(ctx context.Context, courseID string) (Reviews, error)
		Summary(ctx context.Context, courseID string) (Summary, error)
	}

	service struct {
		repo      Repository
		courseSvc course.Service
		usrSvc    user.Service
	}
)

var _ Service = (*service)(nil)

func NewService(repo Repository, courseSvc course.Service, usrSvc user.Service) Service {
	vala.BeginValidation().Validate(
		vala.IsNotNil(repo, "repo"),
		vala.IsNotNil(courseSvc, "courseSvc"),
		vala.IsNotNil(usrSvc, "usrSvc"),
	).CheckAndPanic()

	return &service{repo: repo, courseSvc: courseSvc, usrSvc: usrSvc}
}

func (svc *service) Submit(ctx context.Context, actor user.Actor, courseID string, nr NewReview) (Review, error) {
	if nr.Rating < 1 || nr.Rating > 5 {
		return Review{}, core.NewValidationError(nil, core.FieldError{Field: "rating", Error: "rating must be between 1 and 5"})
	}
	if _, err := svc.courseSvc.Get(ctx, courseID); err != nil {
		return Review{}, err
	}
	now := time.Now().UTC()
	r, err := svc.repo.UpsertReview(ctx, Review{
		UserID:    actor.ID,
		CourseID:  courseID,
		Rating:    nr.Rating,
		Review:    nr.Review,
		CreatedAt: now,
		UpdatedAt: now,
	})
	return r, errors.Wrap(err, "upserting review")
}

func (svc *service) Reviews(ctx context.Context, courseID string) (Reviews, error) {
	reviews, err := svc.repo.QueryReviews(ctx, courseID)
	if err != nil {
		return Reviews{}, errors.Wrap(err, "querying reviews")
	}

	ids := make([]string, 0, len(reviews))
	for _, r := range reviews {
		ids = append(ids, r.UserID)
	}
	users, err := svc.usrSvc.GetSummaries(ctx, ids...)
	if err != nil {
		return Reviews{}, err
	}
	for i := range reviews {
		if u, ok := users[reviews[i].UserID]; ok {
			u := u
			reviews[i].User = &u
		}
	}
	return Reviews{AvgRating: avgRating(reviews), Reviews: reviews}, nil
}

func (svc *service) Summary(ctx context.Context, courseID string) (Summary, error) {
	reviews, err := svc.repo.QueryReviews(ctx, courseID)
	if err != nil {
		return Summary{}, errors.Wrap(err, "querying reviews")
	}
	return Summary{AvgRating: avgRating(reviews), ReviewCount: len(reviews)}, nil
}

// avgRating is the mean rating rounded to 1 decimal; 0 without reviews.
func avgRating(reviews []Review) float64 {
	if len(reviews) == 0 {
		return 0
	}
	var sum int
	for _, r := range reviews {
		sum += r.Rating
	}
	return math.Round(float64(sum)/float64(len(reviews))*10) / 10
}
