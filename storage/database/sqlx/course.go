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

	"github.com/eduplatform/backend/core"
	"github.com/eduplatform/backend/core/course"
)

const courseColumns = `id, title, description, category, level, image, published, status, is_featured,
	curriculum, total_duration, students_count, tutor_id, lectures, created_at, updated_at`

type courseRow struct {
	ID            string         `db:"id"`
	Title         string         `db:"title"`
	Description   string         `db:"description"`
	Category      string         `db:"category"`
	Level         string         `db:"level"`
	Image         string         `db:"image"`
	Published     bool           `db:"published"`
	Status        string         `db:"status"`
	IsFeatured    bool           `db:"is_featured"`
	Curriculum    pq.StringArray `db:"curriculum"`
	TotalDuration float64        `db:"total_duration"`
	StudentsCount int            `db:"students_count"`
	TutorID       string         `db:"tutor_id"`
	Lectures      types.JSONText `db:"lectures"`
	CreatedAt     time.Time      `db:"created_at"`
	UpdatedAt     time.Time      `db:"updated_at"`
}

type courseRepository struct {
	repository
}

var _ course.Repository = (*courseRepository)(nil) // interface compliance check

func NewCourseRepository(db *sqlx.DB) *courseRepository {
	return &courseRepository{repository{db: db}}
}

func (repo courseRepository) toRow(c course.Course) (courseRow, error) {
	lectures := c.Lectures
	if lectures == nil {
		lectures = []course.Lecture{}
	}
	lecs, err := json.Marshal(lectures)
	if err != nil {
		return courseRow{}, errors.Wrap(err, "marshalling lectures")
	}
	curriculum := c.Curriculum
	if curriculum == nil {
		curriculum = []string{}
	}
	return courseRow{
		ID:            c.ID,
		Title:         c.Title,
		Description:   c.Description,
		Category:      c.Category,
		Level:         c.Level,
		Image:         c.Image,
		Published:     c.Published,
		Status:        c.Status,
		IsFeatured:    c.IsFeatured,
		Curriculum:    curriculum,
		TotalDuration: c.TotalDuration,
		StudentsCount: c.StudentsCount,
		TutorID:       c.TutorID,
		Lectures:      lecs,
		CreatedAt:     c.CreatedAt.UTC(),
		UpdatedAt:     c.UpdatedAt.UTC(),
	}, nil
}

func (repo courseRepository) fromRow(row courseRow) (course.Course, error) {
	c := course.Course{
		ID:            row.ID,
		Title:         row.Title,
		Description:   row.Description,
		Category:      row.Category,
		Level:         row.Level,
		Image:         row.Image,
		Published:     row.Published,
		Status:        row.Status,
		IsFeatured:    row.IsFeatured,
		Curriculum:    []string(row.Curriculum),
		TotalDuration: row.TotalDuration,
		StudentsCount: row.StudentsCount,
		TutorID:       row.TutorID,
		Lectures:      []course.Lecture{},
		CreatedAt:     row.CreatedAt.UTC(),
		UpdatedAt:     row.UpdatedAt.UTC(),
	}
	if c.Curriculum == nil {
		c.Curriculum = []string{}
	}
	if len(row.Lectures) > 0 {
		if err := row.Lectures.Unmarshal(&c.Lectures); err != nil {
			return course.Course{}, errors.Wrap(err, "unmarshalling lectures")
		}
	}
	return c, nil
}

func (repo courseRepository) fromRows(rows []courseRow) ([]course.Course, error) {
	courses := make([]course.Course, 0, len(rows))
	for _, r := range rows {
		c, err := repo.fromRow(r)
		if err != nil {
			return nil, err
		}
		courses = append(courses, c)
	}
	return courses, nil
}

// trapNoRowsErr maps psql "no rows" err to course.ErrNotFound
func (repo courseRepository) trapNoRowsErr(err error, msg string) error {
	if err == sql.ErrNoRows {
		return course.ErrNotFound
	}
	return errors.Wrap(err, msg)
}

func (repo courseRepository) CreateCourse(ctx context.Context, c course.Course, exec ...core.DBExecutor) (course.Course, error) {
	c.ID = uuid.New().String()
	row, err := repo.toRow(c)
	if err != nil {
		return course.Course{}, err
	}
	q := `INSERT INTO courses (` + courseColumns + `) VALUES (:id, :title, :description, :category, :level, :image,
		:published, :status, :is_featured, :curriculum, :total_duration, :students_count, :tutor_id, :lectures,
		:created_at, :updated_at)`
	if _, err = sqlx.NamedExecContext(ctx, repo.getExec(exec), q, row); err != nil {
		return course.Course{}, errors.Wrap(err, "inserting course")
	}
	return repo.fromRow(row)
}

func (repo courseRepository) GetCourse(ctx context.Context, id string, exec ...core.DBExecutor) (course.Course, error) {
	if !isUUID(id) {
		return course.Course{}, course.ErrNotFound
	}
	ext := repo.getExec(exec)
	var row courseRow
	if err := sqlx.GetContext(ctx, ext, &row, ext.Rebind("SELECT "+courseColumns+" FROM courses WHERE id = ?"), id); err != nil {
		return course.Course{}, repo.trapNoRowsErr(err, "finding course")
	}
	return repo.fromRow(row)
}

func (repo courseRepository) GetCoursesByID(ctx context.Context, ids []string, exec ...core.DBExecutor) ([]course.Course, error) {
	valid := make([]string, 0, len(ids))
	for _, id := range ids {
		if isUUID(id) {
			valid = append(valid, id)
		}
	}
	if len(valid) == 0 {
		return []course.Course{}, nil
	}
	ext := repo.getExec(exec)
	var rows []courseRow
	q := ext.Rebind("SELECT " + courseColumns + " FROM courses WHERE id = ANY(?::uuid[])")
	if err := sqlx.SelectContext(ctx, ext, &rows, q, pq.Array(valid)); err != nil {
		return nil, errors.Wrap(err, "querying courses by ID")
	}
	return repo.fromRows(rows)
}

func (repo courseRepository) QueryCourses(ctx context.Context, filter *course.QueryFilter, p *core.Page, exec ...core.DBExecutor) ([]course.Course, int, error) {
	ext := repo.getExec(exec)

	var w where
	if filter != nil {
		if filter.Status != "" {
			w.add("status = ?", filter.Status)
		}
		if filter.Published != nil {
			w.add("published = ?", *filter.Published)
		}
		if filter.Search != "" {
			val := "%" + filter.Search + "%"
			w.add("(title ILIKE ? OR description ILIKE ? OR category ILIKE ?)", val, val, val)
		}
		if filter.TutorID != "" {
			if !isUUID(filter.TutorID) {
				return []course.Course{}, 0, nil
			}
			w.add("tutor_id = ?", filter.TutorID)
		}
		if filter.Featured != nil {
			w.add("is_featured = ?", *filter.Featured)
		}
	}

	var total int
	if err := sqlx.GetContext(ctx, ext, &total, ext.Rebind("SELECT COUNT(*) FROM courses"+w.String()), w.args...); err != nil {
		return nil, 0, errors.Wrap(err, "counting courses")
	}

	q, args := page("SELECT "+courseColumns+" FROM courses"+w.String()+orderBy(newestFirst), w.args, p)
	var rows []courseRow
	if err := sqlx.SelectContext(ctx, ext, &rows, ext.Rebind(q), args...); err != nil {
		return nil, 0, errors.Wrap(err, "querying courses")
	}
	courses, err := repo.fromRows(rows)
	return courses, total, err
}

// UpdateCourse writes every column but students_count, which only moves through IncrementStudentsCount
// & SetStudentsCounts.
func (repo courseRepository) UpdateCourse(ctx context.Context, c course.Course, exec ...core.DBExecutor) (course.Course, error) {
	if !isUUID(c.ID) {
		return course.Course{}, course.ErrNotFound
	}
	row, err := repo.toRow(c)
	if err != nil {
		return course.Course{}, err
	}
	ext := repo.getExec(exec)
	q, args, err := sqlx.Named(`UPDATE courses SET title = :title, description = :description, category = :category,
		level = :level, image = :image, published = :published, status = :status, is_featured = :is_featured,
		curriculum = :curriculum, total_duration = :total_duration, lectures = :lectures, updated_at = :updated_at
		WHERE id = :id RETURNING `+courseColumns, row)
	if err != nil {
		return course.Course{}, errors.Wrap(err, "binding course")
	}
	var updated courseRow
	if err = sqlx.GetContext(ctx, ext, &updated, ext.Rebind(q), args...); err != nil {
		return course.Course{}, repo.trapNoRowsErr(err, "updating course")
	}
	return repo.fromRow(updated)
}

func (repo courseRepository) DeleteCourse(ctx context.Context, id string, exec ...core.DBExecutor) error {
	if !isUUID(id) {
		return course.ErrNotFound
	}
	ext := repo.getExec(exec)
	res, err := ext.ExecContext(ctx, ext.Rebind("DELETE FROM courses WHERE id = ?"), id)
	if err != nil {
		return errors.Wrap(err, "deleting course")
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return course.ErrNotFound
	}
	return nil
}

func (repo courseRepository) IncrementStudentsCount(ctx context.Context, id string, delta int, exec ...core.DBExecutor) error {
	if !isUUID(id) {
		return course.ErrNotFound
	}
	ext := repo.getExec(exec)
	q := ext.Rebind("UPDATE courses SET students_count = GREATEST(students_count + ?, 0) WHERE id = ?")
	if _, err := ext.ExecContext(ctx, q, delta, id); err != nil {
		return errors.Wrap(err, "incrementing students count")
	}
	return nil
}

func (repo courseRepository) SetStudentsCounts(ctx context.Context, counts map[string]int, exec ...core.DBExecutor) (int, error) {
	ids := make([]string, 0, len(counts))
	cnts := make([]int64, 0, len(counts))
	for id, n := range counts {
		if isUUID(id) {
			ids = append(ids, id)
			cnts = append(cnts, int64(n))
		}
	}

	ext := repo.getExec(exec)
	q := ext.Rebind(`UPDATE courses AS c SET students_count = COALESCE(v.cnt, 0)
		FROM courses AS c2
		LEFT JOIN (SELECT UNNEST(?::uuid[]) AS id, UNNEST(?::bigint[]) AS cnt) AS v ON v.id = c2.id
		WHERE c.id = c2.id AND c.students_count <> COALESCE(v.cnt, 0)`)
	res, err := ext.ExecContext(ctx, q, pq.Array(ids), pq.Array(cnts))
	if err != nil {
		return 0, errors.Wrap(err, "setting students counts")
	}
	n, err := res.RowsAffected()
	return int(n), errors.Wrap(err, "counting updated courses")
}
