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
	"github.com/eduplatform/backend/core/user"
)

const userColumns = `id, name, email, password_hash, role, is_sub_admin, status, avatar, title, bio,
	social_links, kyc, created_at, updated_at, last_login`

type userRow struct {
	ID           string             `db:"id"`
	Name         string             `db:"name"`
	Email        string             `db:"email"`
	PasswordHash []byte             `db:"password_hash"`
	Role         string             `db:"role"`
	IsSubAdmin   bool               `db:"is_sub_admin"`
	Status       string             `db:"status"`
	Avatar       string             `db:"avatar"`
	Title        string             `db:"title"`
	Bio          string             `db:"bio"`
	SocialLinks  types.JSONText     `db:"social_links"`
	KYC          types.NullJSONText `db:"kyc"`
	CreatedAt    time.Time          `db:"created_at"`
	UpdatedAt    time.Time          `db:"updated_at"`
	LastLogin    null.Time          `db:"last_login"`
}

type userRepository struct {
	repository
}

var _ user.Repository = (*userRepository)(nil) // interface compliance check

func NewUserRepository(db *sqlx.DB) *userRepository {
	return &userRepository{repository{db: db}}
}

func (repo userRepository) toRow(usr user.User) (userRow, error) {
	links, err := json.Marshal(usr.SocialLinks)
	if err != nil {
		return userRow{}, errors.Wrap(err, "marshalling social links")
	}
	row := userRow{
		ID:           usr.ID,
		Name:         usr.Name,
		Email:        usr.Email,
		PasswordHash: usr.PasswordHash,
		Role:         usr.Role,
		IsSubAdmin:   usr.IsSubAdmin,
		Status:       usr.Status,
		Avatar:       usr.Avatar,
		Title:        usr.Title,
		Bio:          usr.Bio,
		SocialLinks:  links,
		CreatedAt:    usr.CreatedAt.UTC(),
		UpdatedAt:    usr.UpdatedAt.UTC(),
		LastLogin:    null.NewTime(usr.LastLogin.UTC(), !usr.LastLogin.IsZero()),
	}
	if usr.KYC != nil {
		kyc, err := json.Marshal(usr.KYC)
		if err != nil {
			return userRow{}, errors.Wrap(err, "marshalling KYC")
		}
		row.KYC = types.NullJSONText{JSONText: kyc, Valid: true}
	}
	return row, nil
}

func (repo userRepository) fromRow(row userRow) (user.User, error) {
	usr := user.User{
		ID:           row.ID,
		Name:         row.Name,
		Email:        row.Email,
		PasswordHash: row.PasswordHash,
		Role:         row.Role,
		IsSubAdmin:   row.IsSubAdmin,
		Status:       row.Status,
		Avatar:       row.Avatar,
		Title:        row.Title,
		Bio:          row.Bio,
		CreatedAt:    row.CreatedAt.UTC(),
		UpdatedAt:    row.UpdatedAt.UTC(),
	}
	if row.LastLogin.Valid {
		usr.LastLogin = row.LastLogin.Time.UTC()
	}
	if len(row.SocialLinks) > 0 {
		if err := row.SocialLinks.Unmarshal(&usr.SocialLinks); err != nil {
			return user.User{}, errors.Wrap(err, "unmarshalling social links")
		}
	}
	if row.KYC.Valid {
		usr.KYC = new(user.KYC)
		if err := row.KYC.Unmarshal(usr.KYC); err != nil {
			return user.User{}, errors.Wrap(err, "unmarshalling KYC")
		}
	}
	return usr, nil
}

func (repo userRepository) fromRows(rows []userRow) ([]user.User, error) {
	users := make([]user.User, 0, len(rows))
	for _, r := range rows {
		u, err := repo.fromRow(r)
		if err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	return users, nil
}

// trapNoRowsErr maps psql "no rows" err to user.ErrNotFound
func (repo userRepository) trapNoRowsErr(err error, msg string) error {
	if err == sql.ErrNoRows {
		return user.ErrNotFound
	}
	return errors.Wrap(err, msg)
}

func (repo userRepository) CheckEmailUniqueness(ctx context.Context, email string, excludedUsers []user.User, exec ...core.DBExecutor) error {
	ids := make([]string, 0, len(excludedUsers))
	for _, u := range excludedUsers {
		if isUUID(u.ID) {
			ids = append(ids, u.ID)
		}
	}
	ext := repo.getExec(exec)
	var exists bool
	q := ext.Rebind("SELECT EXISTS (SELECT 1 FROM users WHERE email = ? AND NOT (id = ANY(?::uuid[])))")
	if err := sqlx.GetContext(ctx, ext, &exists, q, email, pq.Array(ids)); err != nil {
		return errors.Wrap(err, "checking email uniqueness")
	}
	if exists {
		return user.ErrEmailExists
	}
	return nil
}

func (repo userRepository) CreateUser(ctx context.Context, usr user.User, exec ...core.DBExecutor) (user.User, error) {
	usr.ID = uuid.New().String()
	row, err := repo.toRow(usr)
	if err != nil {
		return user.User{}, err
	}
	q := `INSERT INTO users (` + userColumns + `) VALUES (:id, :name, :email, :password_hash, :role, :is_sub_admin,
		:status, :avatar, :title, :bio, :social_links, :kyc, :created_at, :updated_at, :last_login)`
	if _, err = sqlx.NamedExecContext(ctx, repo.getExec(exec), q, row); err != nil {
		return user.User{}, errors.Wrap(err, "inserting user")
	}
	return usr, nil
}

func (repo userRepository) filter(filter *user.QueryFilter) where {
	var w where
	if filter == nil {
		return w
	}
	// users with Name or Email matching the search keyword
	if filter.Search != "" {
		val := "%" + filter.Search + "%"
		w.add("(name ILIKE ? OR email ILIKE ?)", val, val)
	}
	if len(filter.Roles) > 0 {
		w.add("role = ANY(?)", pq.Array(filter.Roles))
	}
	if filter.Status != "" {
		w.add("status = ?", filter.Status)
	}
	if !filter.CreatedFrom.IsZero() {
		w.add("created_at >= ?", filter.CreatedFrom.UTC())
	}
	if !filter.CreatedTo.IsZero() {
		w.add("created_at <= ?", filter.CreatedTo.UTC())
	}
	return w
}

func (repo userRepository) QueryUsers(ctx context.Context, filter *user.QueryFilter, p *core.Page, exec ...core.DBExecutor) ([]user.User, int, error) {
	ext := repo.getExec(exec)
	w := repo.filter(filter)

	total, err := repo.CountUsers(ctx, filter, exec...)
	if err != nil {
		return nil, 0, err
	}

	q, args := page("SELECT "+userColumns+" FROM users"+w.String()+orderBy(newestFirst), w.args, p)
	var rows []userRow
	if err = sqlx.SelectContext(ctx, ext, &rows, ext.Rebind(q), args...); err != nil {
		return nil, 0, errors.Wrap(err, "querying users")
	}
	users, err := repo.fromRows(rows)
	return users, total, err
}

func (repo userRepository) CountUsers(ctx context.Context, filter *user.QueryFilter, exec ...core.DBExecutor) (int, error) {
	ext := repo.getExec(exec)
	w := repo.filter(filter)
	var cnt int
	if err := sqlx.GetContext(ctx, ext, &cnt, ext.Rebind("SELECT COUNT(*) FROM users"+w.String()), w.args...); err != nil {
		return 0, errors.Wrap(err, "counting users")
	}
	return cnt, nil
}

func (repo userRepository) GetUser(ctx context.Context, filter user.GetFilter, exec ...core.DBExecutor) (user.User, error) {
	ext := repo.getExec(exec)
	var w where
	switch {
	case filter.ID != "":
		if !isUUID(filter.ID) {
			return user.User{}, user.ErrNotFound
		}
		w.add("id = ?", filter.ID)
	case filter.Email != "":
		w.add("email = ?", filter.Email)
	default:
		return user.User{}, user.ErrNotFound
	}

	var row userRow
	if err := sqlx.GetContext(ctx, ext, &row, ext.Rebind("SELECT "+userColumns+" FROM users"+w.String()), w.args...); err != nil {
		return user.User{}, repo.trapNoRowsErr(err, "finding user")
	}
	return repo.fromRow(row)
}

func (repo userRepository) GetUsersByID(ctx context.Context, ids []string, exec ...core.DBExecutor) ([]user.User, error) {
	valid := make([]string, 0, len(ids))
	for _, id := range ids {
		if isUUID(id) {
			valid = append(valid, id)
		}
	}
	if len(valid) == 0 {
		return []user.User{}, nil
	}
	ext := repo.getExec(exec)
	var rows []userRow
	q := ext.Rebind("SELECT " + userColumns + " FROM users WHERE id = ANY(?::uuid[])")
	if err := sqlx.SelectContext(ctx, ext, &rows, q, pq.Array(valid)); err != nil {
		return nil, errors.Wrap(err, "querying users by ID")
	}
	return repo.fromRows(rows)
}

func (repo userRepository) UpdateUser(ctx context.Context, usr user.User, exec ...core.DBExecutor) (user.User, error) {
	if !isUUID(usr.ID) {
		return user.User{}, user.ErrNotFound
	}
	row, err := repo.toRow(usr)
	if err != nil {
		return user.User{}, err
	}
	q := `UPDATE users SET name = :name, email = :email, password_hash = :password_hash, role = :role,
		is_sub_admin = :is_sub_admin, status = :status, avatar = :avatar, title = :title, bio = :bio,
		social_links = :social_links, kyc = :kyc, updated_at = :updated_at, last_login = :last_login
		WHERE id = :id`
	res, err := sqlx.NamedExecContext(ctx, repo.getExec(exec), q, row)
	if err != nil {
		return user.User{}, errors.Wrap(err, "updating user")
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return user.User{}, user.ErrNotFound
	}
	return usr, nil
}

func (repo userRepository) UpdateOrCreateUser(ctx context.Context, usr user.User, exec ...core.DBExecutor) (user.User, error) {
	if usr.ID == "" {
		return repo.CreateUser(ctx, usr, exec...)
	}
	return repo.UpdateUser(ctx, usr, exec...)
}

func (repo userRepository) DeleteUsersByID(ctx context.Context, ids []string, exec ...core.DBExecutor) (int, error) {
	valid := make([]string, 0, len(ids))
	for _, id := range ids {
		if isUUID(id) {
			valid = append(valid, id)
		}
	}
	ext := repo.getExec(exec)
	res, err := ext.ExecContext(ctx, ext.Rebind("DELETE FROM users WHERE id = ANY(?::uuid[])"), pq.Array(valid))
	if err != nil {
		return 0, errors.Wrap(err, "deleting users")
	}
	cnt, err := res.RowsAffected()
	return int(cnt), errors.Wrap(err, "counting deleted users")
}
