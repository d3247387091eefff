package sqlxrepos

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/jmoiron/sqlx/types"
	"github.com/lib/pq"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/eduplatform/backend/core"
	"github.com/eduplatform/backend/core/enrollment"
)

const enrollmentColumns = `id, student_id, course_id, progress, completed_lectures, total_lectures,
	progress_percent, last_watched_at, is_blocked, created_at, updated_at`

type enrollmentRow struct {
	ID                string         `db:"id"`
	StudentID         string         `db:"student_id"`
	CourseID          string         `db:"course_id"`
	Progress          types.JSONText `db:"progress"`
	CompletedLectures int            `db:"completed_lectures"`
	TotalLectures     int            `db:"total_lectures"`
	ProgressPercent   int            `db:"progress_percent"`
	LastWatchedAt     null.Time      `db:"last_watched_at"`
	IsBlocked         bool           `db:"is_blocked"`
	CreatedAt         time.Time      `db:"created_at"`
	UpdatedAt         time.Time      `db:"updated_at"`
}

type enrollmentRepository struct {
	repository
}

var _ enrollment.Repository = (*enrollmentRepository)(nil) // interface compliance check

func NewEnrollmentRepository(db *sqlx.DB) *enrollmentRepository {
	return &enrollmentRepository{repository{db: db}}
}

func (repo enrollmentRepository) fromRow(row enrollmentRow) (enrollment.Enrollment, error) {
	enr := enrollment.Enrollment{
		ID:                row.ID,
		StudentID:         row.StudentID,
		CourseID:          row.CourseID,
		Progress:          []enrollment.LectureProgress{},
		CompletedLectures: row.CompletedLectures,
		TotalLectures:     row.TotalLectures,
		ProgressPercent:   row.ProgressPercent,
		IsBlocked:         row.IsBlocked,
		CreatedAt:         row.CreatedAt.UTC(),
		UpdatedAt:         row.UpdatedAt.UTC(),
	}
	if row.LastWatchedAt.Valid {
		t := row.LastWatchedAt.Time.UTC()
		enr.LastWatchedAt = &t
	}
	if len(row.Progress) > 0 {
		if err := row.Progress.Unmarshal(&enr.Progress); err != nil {
			return enrollment.Enrollment{}, errors.Wrap(err, "unmarshalling progress")
		}
	}
	return enr, nil
}

func (repo enrollmentRepository) fromRows(rows []enrollmentRow) ([]enrollment.Enrollment, error) {
	enrs := make([]enrollment.Enrollment, 0, len(rows))
	for _, r := range rows {
		e, err := repo.fromRow(r)
		if err != nil {
			return nil, err
		}
		enrs = append(enrs, e)
	}
	return enrs, nil
}

// trapNoRowsErr maps psql "no rows" err to enrollment.ErrNotFound
func (repo enrollmentRepository) trapNoRowsErr(err error, msg string) error {
	if err == sql.ErrNoRows {
		return enrollment.ErrNotFound
	}
	return errors.Wrap(err, msg)
}

func (repo enrollmentRepository) GetOrCreateEnrollment(ctx context.Context, studentID, courseID string, now time.Time, exec ...core.DBExecutor) (enrollment.Enrollment, bool, error) {
	if !isUUID(studentID) || !isUUID(courseID) {
		return enrollment.Enrollment{}, false, enrollment.ErrNotFound
	}
	ext := repo.getExec(exec)

	var row enrollmentRow
	q := ext.Rebind(`INSERT INTO enrollments (id, student_id, course_id, progress, created_at, updated_at)
		VALUES (?, ?, ?, '[]', ?, ?)
		ON CONFLICT (student_id, course_id) DO NOTHING
		RETURNING ` + enrollmentColumns)
	err := sqlx.GetContext(ctx, ext, &row, q, uuid.New().String(), studentID, courseID, now.UTC(), now.UTC())
	switch {
	case err == nil:
		enr, err := repo.fromRow(row)
		return enr, true, err
	case err != sql.ErrNoRows:
		return enrollment.Enrollment{}, false, errors.Wrap(err, "inserting enrollment")
	}

	// already enrolled
	enr, err := repo.GetEnrollment(ctx, studentID, courseID, exec...)
	return enr, false, err
}

func (repo enrollmentRepository) GetEnrollment(ctx context.Context, studentID, courseID string, exec ...core.DBExecutor) (enrollment.Enrollment, error) {
	if !isUUID(studentID) || !isUUID(courseID) {
		return enrollment.Enrollment{}, enrollment.ErrNotFound
	}
	ext := repo.getExec(exec)
	var row enrollmentRow
	q := ext.Rebind("SELECT " + enrollmentColumns + " FROM enrollments WHERE student_id = ? AND course_id = ?")
	if err := sqlx.GetContext(ctx, ext, &row, q, studentID, courseID); err != nil {
		return enrollment.Enrollment{}, repo.trapNoRowsErr(err, "finding enrollment")
	}
	return repo.fromRow(row)
}

// filter returns false when the filter can't match anything.
func (repo enrollmentRepository) filter(filter enrollment.QueryFilter) (where, bool) {
	var w where
	if filter.StudentID != "" {
		if !isUUID(filter.StudentID) {
			return w, false
		}
		w.add("student_id = ?", filter.StudentID)
	}
	if filter.CourseID != "" {
		if !isUUID(filter.CourseID) {
			return w, false
		}
		w.add("course_id = ?", filter.CourseID)
	}
	if filter.CourseIDs != nil {
		ids := make([]string, 0, len(filter.CourseIDs))
		for _, id := range filter.CourseIDs {
			if isUUID(id) {
				ids = append(ids, id)
			}
		}
		if len(ids) == 0 {
			return w, false
		}
		w.add("course_id = ANY(?::uuid[])", pq.Array(ids))
	}
	if !filter.IncludeBlocked {
		w.add("is_blocked = FALSE")
	}
	if !filter.CreatedFrom.IsZero() {
		w.add("created_at >= ?", filter.CreatedFrom.UTC())
	}
	return w, true
}

func (repo enrollmentRepository) QueryEnrollments(ctx context.Context, filter enrollment.QueryFilter, exec ...core.DBExecutor) ([]enrollment.Enrollment, error) {
	w, ok := repo.filter(filter)
	if !ok {
		return []enrollment.Enrollment{}, nil
	}
	ext := repo.getExec(exec)
	var rows []enrollmentRow
	q := ext.Rebind("SELECT " + enrollmentColumns + " FROM enrollments" + w.String() + orderBy(newestFirst))
	if err := sqlx.SelectContext(ctx, ext, &rows, q, w.args...); err != nil {
		return nil, errors.Wrap(err, "querying enrollments")
	}
	return repo.fromRows(rows)
}

func (repo enrollmentRepository) CountEnrollments(ctx context.Context, filter enrollment.QueryFilter, exec ...core.DBExecutor) (int, error) {
	w, ok := repo.filter(filter)
	if !ok {
		return 0, nil
	}
	ext := repo.getExec(exec)
	var cnt int
	if err := sqlx.GetContext(ctx, ext, &cnt, ext.Rebind("SELECT COUNT(*) FROM enrollments"+w.String()), w.args...); err != nil {
		return 0, errors.Wrap(err, "counting enrollments")
	}
	return cnt, nil
}

func (repo enrollmentRepository) CountByCourse(ctx context.Context, exec ...core.DBExecutor) (map[string]int, error) {
	ext := repo.getExec(exec)
	var rows []struct {
		CourseID string `db:"course_id"`
		Count    int    `db:"cnt"`
	}
	q := "SELECT course_id, COUNT(*) AS cnt FROM enrollments WHERE is_blocked = FALSE GROUP BY course_id"
	if err := sqlx.SelectContext(ctx, ext, &rows, q); err != nil {
		return nil, errors.Wrap(err, "counting enrollments by course")
	}
	counts := make(map[string]int, len(rows))
	for _, r := range rows {
		counts[r.CourseID] = r.Count
	}
	return counts, nil
}

func (repo enrollmentRepository) SaveProgress(ctx context.Context, enr enrollment.Enrollment, exec ...core.DBExecutor) (enrollment.Enrollment, error) {
	if !isUUID(enr.StudentID) || !isUUID(enr.CourseID) {
		return enrollment.Enrollment{}, enrollment.ErrNotFound
	}
	progress := enr.Progress
	if progress == nil {
		progress = []enrollment.LectureProgress{}
	}
	prog, err := json.Marshal(progress)
	if err != nil {
		return enrollment.Enrollment{}, errors.Wrap(err, "marshalling progress")
	}
	var lastWatched null.Time
	if enr.LastWatchedAt != nil {
		lastWatched = null.TimeFrom(enr.LastWatchedAt.UTC())
	}

	ext := repo.getExec(exec)
	var row enrollmentRow
	q := ext.Rebind(`UPDATE enrollments SET progress = ?, completed_lectures = ?, total_lectures = ?,
		progress_percent = ?, last_watched_at = ?, updated_at = ?
		WHERE student_id = ? AND course_id = ?
		RETURNING ` + enrollmentColumns)
	err = sqlx.GetContext(ctx, ext, &row, q, types.JSONText(prog), enr.CompletedLectures, enr.TotalLectures,
		enr.ProgressPercent, lastWatched, enr.UpdatedAt.UTC(), enr.StudentID, enr.CourseID)
	if err != nil {
		return enrollment.Enrollment{}, repo.trapNoRowsErr(err, "saving progress")
	}
	return repo.fromRow(row)
}

func (repo enrollmentRepository) SetBlocked(ctx context.Context, studentID, courseID string, blocked bool, exec ...core.DBExecutor) (enrollment.Enrollment, bool, error) {
	if !isUUID(studentID) || !isUUID(courseID) {
		return enrollment.Enrollment{}, false, enrollment.ErrNotFound
	}
	ext := repo.getExec(exec)
	var row enrollmentRow
	q := ext.Rebind(`UPDATE enrollments SET is_blocked = ?, updated_at = ?
		WHERE student_id = ? AND course_id = ? AND is_blocked <> ?
		RETURNING ` + enrollmentColumns)
	err := sqlx.GetContext(ctx, ext, &row, q, blocked, time.Now().UTC(), studentID, courseID, blocked)
	switch {
	case err == nil:
		enr, err := repo.fromRow(row)
		return enr, true, err
	case err != sql.ErrNoRows:
		return enrollment.Enrollment{}, false, errors.Wrap(err, "setting enrollment block flag")
	}

	// either missing or already in the requested state
	enr, err := repo.GetEnrollment(ctx, studentID, courseID, exec...)
	return enr, false, err
}
