package user

import (
	"context"
	"time"

	"github.com/go-playground/validator/v10"
	"golang.org/x/crypto/bcrypt"

	"github.com/eduplatform/backend/core"
)

// Roles
const (
	RoleStudent = "STUDENT"
	RoleTutor   = "TUTOR"
	RoleAdmin   = "ADMIN"
)

// Statuses
const (
	StatusPending    = "PENDING"
	StatusActive     = "ACTIVE"
	StatusRejected   = "REJECTED"
	StatusKYCPending = "KYC_PENDING"
)

// KYC
const (
	KYCPending  = "PENDING"
	KYCApproved = "APPROVED"
	KYCRejected = "REJECTED"

	KYCDocAddressProof = "ADDRESS_PROOF"
	KYCDocPhotoID      = "PHOTO_ID"

	MaxKYCDocuments = 5
)

var (
	AllRoles    = []string{RoleStudent, RoleTutor, RoleAdmin}
	AllStatuses = []string{StatusPending, StatusActive, StatusRejected, StatusKYCPending}
)

type SocialLinks struct {
	Website  string `json:"website,omitempty"`
	Twitter  string `json:"twitter,omitempty"`
	LinkedIn string `json:"linkedin,omitempty"`
	Github   string `json:"github,omitempty"`
	Youtube  string `json:"youtube,omitempty"`
}

type KYCDocument struct {
	Type       string    `json:"type"`
	URL        string    `json:"url"`
	UploadedAt time.Time `json:"uploadedAt"`
}

type KYC struct {
	Status      string        `json:"status"`
	Documents   []KYCDocument `json:"documents"`
	SubmittedAt *time.Time    `json:"submittedAt,omitempty"`
	ReviewedAt  *time.Time    `json:"reviewedAt,omitempty"`
}

type User struct {
	ID           string      `json:"id"`
	Name         string      `json:"name"`
	Email        string      `json:"email"`
	Role         string      `json:"role"`
	IsSubAdmin   bool        `json:"isSubAdmin"`
	Status       string      `json:"status"`
	Avatar       string      `json:"avatar"`
	Title        string      `json:"title"`
	Bio          string      `json:"bio"`
	SocialLinks  SocialLinks `json:"socialLinks"`
	KYC          *KYC        `json:"kyc,omitempty"`
	PasswordHash []byte      `json:"-"`
	CreatedAt    time.Time   `json:"createdAt"` // UTC
	UpdatedAt    time.Time   `json:"updatedAt"` // UTC
	LastLogin    time.Time   `json:"lastLogin"` // UTC
}

func (u *User) SetPassword(pwd string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(pwd), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	u.PasswordHash = hash
	return nil
}

func (u *User) CheckPassword(pwd string) error {
	return bcrypt.CompareHashAndPassword(u.PasswordHash, []byte(pwd))
}

func (u User) IsActive() bool  { return u.Status == StatusActive }
func (u User) IsAdmin() bool   { return u.Role == RoleAdmin }
func (u User) IsTutor() bool   { return u.Role == RoleTutor }
func (u User) IsStudent() bool { return u.Role == RoleStudent }

// CanLogin reports whether the user may sign in. Tutors may sign in while their KYC is under review.
func (u User) CanLogin() bool {
	return u.IsTutor() || u.IsActive()
}

func (u User) Actor() Actor {
	return Actor{ID: u.ID, Role: u.Role, IsSubAdmin: u.IsSubAdmin}
}

func (u User) Summary() Summary {
	return Summary{ID: u.ID, Name: u.Name, Email: u.Email, Avatar: u.Avatar}
}

// Summary is the public projection of a User embedded in other resources.
type Summary struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Email  string `json:"email"`
	Avatar string `json:"avatar"`
}

// Actor is the authenticated caller of an operation.
type Actor struct {
	ID         string
	Role       string
	IsSubAdmin bool
}

func (a Actor) IsAdmin() bool     { return a.Role == RoleAdmin }
func (a Actor) IsMainAdmin() bool { return a.IsAdmin() && !a.IsSubAdmin }
func (a Actor) IsTutor() bool     { return a.Role == RoleTutor }
func (a Actor) IsStudent() bool   { return a.Role == RoleStudent }

// NewUser contains information needed to create a new User.
type NewUser struct {
	Name            string `json:"name" validate:"required,max=100"`
	Email           string `json:"email" validate:"required,email"`
	Password        string `json:"password" validate:"required"`
	PasswordConfirm string `json:"passwordConfirm" validate:"omitempty,eqfield=Password"`
	Role            string `json:"role" validate:"omitempty,oneof=STUDENT TUTOR ADMIN"`
	Title           string `json:"title" validate:"max=100"`
	Bio             string `json:"bio" validate:"max=2000"`
	IsSubAdmin      bool   `json:"-"`
	Status          string `json:"-"`
}

func (nu *NewUser) Validate(ctx context.Context, validate *validator.Validate, svc Service) error {
	nu.Name = core.CleanString(nu.Name)
	nu.Email = core.CleanString(nu.Email, true /* lower */)
	nu.Title = core.CleanString(nu.Title)
	nu.Bio = core.CleanString(nu.Bio)

	if err := validate.Struct(nu); err != nil {
		return err
	}
	return svc.CheckEmailUniqueness(ctx, nu.Email)
}

// UpdateUser defines what information may be provided to modify an existing User's profile.
type UpdateUser struct {
	Name        *string      `json:"name" validate:"omitempty,max=100"`
	Email       *string      `json:"email" validate:"omitempty,email"`
	Title       *string      `json:"title" validate:"omitempty,max=100"`
	Bio         *string      `json:"bio" validate:"omitempty,max=2000"`
	SocialLinks *SocialLinks `json:"socialLinks"`
}

func (uu *UpdateUser) Validate(ctx context.Context, origUsr User, validate *validator.Validate, svc Service) error {
	cleanPtr := func(s *string, lower ...bool) *string {
		if s == nil {
			return nil
		}
		v := core.CleanString(*s, lower...)
		if v == "" {
			return nil
		}
		return &v
	}
	uu.Name = cleanPtr(uu.Name)
	uu.Email = cleanPtr(uu.Email, true /* lower */)
	uu.Title = cleanPtr(uu.Title)
	uu.Bio = cleanPtr(uu.Bio)

	if err := validate.Struct(uu); err != nil {
		return err
	}
	if uu.Email != nil && *uu.Email != origUsr.Email {
		return svc.CheckEmailUniqueness(ctx, *uu.Email, origUsr)
	}
	return nil
}

// UpdateTutor is used by admins to edit a tutor account.
type UpdateTutor struct {
	UpdateUser
	Status *string `json:"status" validate:"omitempty,oneof=PENDING ACTIVE REJECTED KYC_PENDING"`
}

type ChangePassword struct {
	CurrentPassword string `json:"currentPassword" validate:"required"`
	NewPassword     string `json:"newPassword" validate:"required"`
}

type ResetUserPassword struct {
	Token           string `json:"token" validate:"required"`
	Email           string `json:"email" validate:"required,email"`
	Password        string `json:"password" validate:"required"`
	PasswordConfirm string `json:"passwordConfirm" validate:"omitempty,eqfield=Password"`
}

func (rp *ResetUserPassword) Validate(validate *validator.Validate) error {
	rp.Email = core.CleanString(rp.Email, true /* lower */)
	return validate.Struct(rp)
}

type QueryFilter struct {
	Search      string    `query:"search"`
	Roles       []string  `query:"role"`
	Status      string    `query:"status"`
	CreatedFrom time.Time `query:"createdFrom"`
	CreatedTo   time.Time `query:"createdTo"`
}

func (qf *QueryFilter) IsEmpty() bool {
	return qf.Search == "" && qf.Roles == nil && qf.Status == "" && qf.CreatedFrom.IsZero() && qf.CreatedTo.IsZero()
}

func (qf *QueryFilter) Clean() {
	qf.Search = core.CleanString(qf.Search)
	qf.Status = core.CleanString(qf.Status)
	roles := qf.Roles[:0]
	for _, r := range qf.Roles {
		if r = core.CleanString(r); r != "" {
			roles = append(roles, r)
		}
	}
	if len(roles) == 0 {
		roles = nil
	}
	qf.Roles = roles
}

type GetFilter struct {
	ID    string
	Email string
}
