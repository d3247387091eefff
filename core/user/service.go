package user

import (
	"context"
	"net/mail"
	"time"

	"github.com/kat-co/vala"
	"github.com/pkg/errors"

	"github.com/eduplatform/backend/core"
)

var (
	// errors
	ErrNotFound          = core.NewNotFoundError("user not found")
	ErrEmailExists       = errors.New("a user with this email already exists")
	ErrInvalidResetToken = core.NewValidationError(errors.New("invalid or expired password reset token"))
	ErrWrongPassword     = core.NewValidationError(nil, core.FieldError{Field: "currentPassword", Error: "current password is incorrect"})
)

type (
	Repository interface {
		CheckEmailUniqueness(ctx context.Context, email string, excludedUsers []User, exec ...core.DBExecutor) error
		CreateUser(ctx context.Context, usr User, exec ...core.DBExecutor) (User, error)
		// QueryUsers applies AND operation on available QueryFilter fields, newest first.
		// QueryFilter.Search does a case-insensitive match on one of User.Name or User.Email.
		// A nil page returns every match.
		QueryUsers(ctx context.Context, filter *QueryFilter, page *core.Page, exec ...core.DBExecutor) ([]User, int, error)
		CountUsers(ctx context.Context, filter *QueryFilter, exec ...core.DBExecutor) (int, error)
		GetUser(ctx context.Context, filter GetFilter, exec ...core.DBExecutor) (User, error)
		GetUsersByID(ctx context.Context, ids []string, exec ...core.DBExecutor) ([]User, error)
		UpdateUser(ctx context.Context, usr User, exec ...core.DBExecutor) (User, error)
		UpdateOrCreateUser(ctx context.Context, usr User, exec ...core.DBExecutor) (User, error)
		DeleteUsersByID(ctx context.Context, ids []string, exec ...core.DBExecutor) (int, error)
	}

	Service interface {
		CheckEmailUniqueness(ctx context.Context, email string, exclUsers ...User) error
		Signup(ctx context.Context, nu NewUser) (User, error)
		Create(ctx context.Context, nu NewUser) (User, error)
		Query(ctx context.Context, filter *QueryFilter, page core.Page) ([]User, core.Pagination, error)
		Count(ctx context.Context, filter *QueryFilter) (int, error)
		GetByID(ctx context.Context, id string) (User, error)
		GetByEmail(ctx context.Context, email string) (User, error)
		GetSummaries(ctx context.Context, ids ...string) (map[string]Summary, error)
		SetLastLogin(ctx context.Context, usr User) (User, error)
		Update(ctx context.Context, usr User, uu UpdateUser) (User, error)
		UpdateTutor(ctx context.Context, usr User, ut UpdateTutor) (User, error)
		SetAvatar(ctx context.Context, usr User, avatar string) (User, error)
		ChangePassword(ctx context.Context, usr User, cp ChangePassword) (User, error)
		RequestPasswordReset(ctx context.Context, email string) error
		ResetPassword(ctx context.Context, rp ResetUserPassword) (User, error)
		SetStatus(ctx context.Context, id, status string) (User, error)
		SetRole(ctx context.Context, id, role string) (User, error)
		SubmitKYC(ctx context.Context, usr User, docs []KYCDocument) (User, error)
		ReviewKYC(ctx context.Context, id string, approve bool) (User, error)
		Delete(ctx context.Context, ids ...string) (int, error)
	}

	service struct {
		repo       Repository
		mailSvc    core.EmailService
		tokenGen   *tokenGenerator
		adminEmail mail.Address
	}
)

var _ Service = (*service)(nil)

func NewService(repo Repository, mailSvc core.EmailService, conf *core.Config) Service {
	vala.BeginValidation().Validate(
		vala.IsNotNil(repo, "repo"),
		vala.IsNotNil(mailSvc, "mailSvc"),
		vala.IsNotNil(conf, "conf"),
	).CheckAndPanic()

	return &service{
		repo:       repo,
		mailSvc:    mailSvc,
		tokenGen:   newTokenGenerator(conf.SecretKey, conf.PasswordResetTimeoutDelta),
		adminEmail: conf.AdminEmail,
	}
}

func (svc *service) CheckEmailUniqueness(ctx context.Context, email string, exclUsers ...User) error {
	if err := svc.repo.CheckEmailUniqueness(ctx, email, exclUsers); err != nil {
		if errors.Cause(err) == ErrEmailExists {
			return core.NewValidationError(err, core.FieldError{Field: "email", Error: err.Error()})
		}
		return errors.Wrap(err, "checking email uniqueness")
	}
	return nil
}

// Signup registers a student or a tutor & sends the welcome emails.
// Tutors wait for their KYC to be reviewed; everyone else waits for an admin to activate them.
func (svc *service) Signup(ctx context.Context, nu NewUser) (User, error) {
	switch nu.Role {
	case RoleTutor:
		nu.Status = StatusKYCPending
	case "", RoleStudent:
		nu.Role = RoleStudent
		nu.Status = StatusPending
	default:
		return User{}, core.NewValidationError(nil, core.FieldError{Field: "role", Error: "role must be one of [STUDENT TUTOR]"})
	}
	nu.IsSubAdmin = false

	usr, err := svc.Create(ctx, nu)
	if err != nil {
		return User{}, err
	}

	data := map[string]interface{}{"Name": usr.Name, "Email": usr.Email, "Role": usr.Role}
	svc.mailSvc.SendMessages(
		&core.EmailMessage{
			To:           []mail.Address{{Name: usr.Name, Address: usr.Email}},
			Subject:      "Welcome to Edu-Platform",
			TemplateName: "welcome-user",
			TemplateData: data,
		},
		&core.EmailMessage{
			To:           []mail.Address{svc.adminEmail},
			Subject:      "New User Registration",
			TemplateName: "welcome-admin",
			TemplateData: data,
		},
	)
	return usr, nil
}

func (svc *service) Create(ctx context.Context, nu NewUser) (User, error) {
	now := time.Now().UTC()
	if nu.Role == "" {
		nu.Role = RoleStudent
	}
	if nu.Status == "" {
		nu.Status = StatusPending
	}
	usr := User{
		Name:       nu.Name,
		Email:      nu.Email,
		Role:       nu.Role,
		IsSubAdmin: nu.IsSubAdmin && nu.Role == RoleAdmin,
		Status:     nu.Status,
		Title:      nu.Title,
		Bio:        nu.Bio,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := usr.SetPassword(nu.Password); err != nil {
		return User{}, errors.Wrap(err, "setting password")
	}
	usr, err := svc.repo.CreateUser(ctx, usr)
	return usr, errors.Wrap(err, "creating user")
}

func (svc *service) Query(ctx context.Context, filter *QueryFilter, page core.Page) ([]User, core.Pagination, error) {
	page.Clean()
	users, total, err := svc.repo.QueryUsers(ctx, filter, &page)
	if err != nil {
		return nil, core.Pagination{}, errors.Wrap(err, "querying users")
	}
	return users, core.NewPagination(page, total), nil
}

func (svc *service) Count(ctx context.Context, filter *QueryFilter) (int, error) {
	cnt, err := svc.repo.CountUsers(ctx, filter)
	return cnt, errors.Wrap(err, "counting users")
}

func (svc *service) GetByID(ctx context.Context, id string) (User, error) {
	return svc.repo.GetUser(ctx, GetFilter{ID: id})
}

func (svc *service) GetByEmail(ctx context.Context, email string) (User, error) {
	return svc.repo.GetUser(ctx, GetFilter{Email: core.CleanString(email, true /* lower */)})
}

func (svc *service) GetSummaries(ctx context.Context, ids ...string) (map[string]Summary, error) {
	summaries := make(map[string]Summary, len(ids))
	if len(ids) == 0 {
		return summaries, nil
	}
	users, err := svc.repo.GetUsersByID(ctx, ids)
	if err != nil {
		return nil, errors.Wrap(err, "getting users by ID")
	}
	for _, u := range users {
		summaries[u.ID] = u.Summary()
	}
	return summaries, nil
}

func (svc *service) SetLastLogin(ctx context.Context, usr User) (User, error) {
	usr.LastLogin = time.Now().UTC()
	return svc.update(ctx, usr)
}

func (svc *service) Update(ctx context.Context, usr User, uu UpdateUser) (User, error) {
	applyUpdate(&usr, uu)
	return svc.update(ctx, usr)
}

func (svc *service) UpdateTutor(ctx context.Context, usr User, ut UpdateTutor) (User, error) {
	if !usr.IsTutor() {
		return User{}, core.NewNotFoundError("tutor not found")
	}
	applyUpdate(&usr, ut.UpdateUser)
	if ut.Status != nil {
		usr.Status = *ut.Status
	}
	return svc.update(ctx, usr)
}

func applyUpdate(usr *User, uu UpdateUser) {
	if uu.Name != nil {
		usr.Name = *uu.Name
	}
	if uu.Email != nil {
		usr.Email = *uu.Email
	}
	if uu.Title != nil {
		usr.Title = *uu.Title
	}
	if uu.Bio != nil {
		usr.Bio = *uu.Bio
	}
	if uu.SocialLinks != nil {
		usr.SocialLinks = *uu.SocialLinks
	}
}

func (svc *service) SetAvatar(ctx context.Context, usr User, avatar string) (User, error) {
	usr.Avatar = avatar
	return svc.update(ctx, usr)
}

func (svc *service) ChangePassword(ctx context.Context, usr User, cp ChangePassword) (User, error) {
	if err := usr.CheckPassword(cp.CurrentPassword); err != nil {
		return User{}, ErrWrongPassword
	}
	if err := usr.SetPassword(cp.NewPassword); err != nil {
		return User{}, errors.Wrap(err, "setting password")
	}
	return svc.update(ctx, usr)
}

func (svc *service) RequestPasswordReset(ctx context.Context, email string) error {
	usr, err := svc.GetByEmail(ctx, email)
	if err != nil {
		return err
	}
	svc.mailSvc.SendMessages(&core.EmailMessage{
		To:           []mail.Address{{Name: usr.Name, Address: usr.Email}},
		Subject:      "Password Reset",
		TemplateName: "password-reset",
		TemplateData: map[string]interface{}{
			"Name":  usr.Name,
			"Email": usr.Email,
			"Token": svc.tokenGen.makeToken(usr),
		},
	})
	return nil
}

func (svc *service) ResetPassword(ctx context.Context, rp ResetUserPassword) (User, error) {
	usr, err := svc.GetByEmail(ctx, rp.Email)
	if err != nil {
		if errors.Cause(err) == ErrNotFound {
			return User{}, ErrInvalidResetToken
		}
		return User{}, err
	}
	if err = svc.tokenGen.verifyToken(usr, rp.Token); err != nil {
		return User{}, ErrInvalidResetToken
	}
	if err = usr.SetPassword(rp.Password); err != nil {
		return User{}, errors.Wrap(err, "setting password")
	}
	return svc.update(ctx, usr)
}

func (svc *service) SetStatus(ctx context.Context, id, status string) (User, error) {
	usr, err := svc.GetByID(ctx, id)
	if err != nil {
		return User{}, err
	}
	usr.Status = status
	return svc.update(ctx, usr)
}

func (svc *service) SetRole(ctx context.Context, id, role string) (User, error) {
	usr, err := svc.GetByID(ctx, id)
	if err != nil {
		return User{}, err
	}
	usr.Role = role
	if role != RoleAdmin {
		usr.IsSubAdmin = false
	}
	return svc.update(ctx, usr)
}

// SubmitKYC replaces the tutor's KYC documents & puts the account under review.
func (svc *service) SubmitKYC(ctx context.Context, usr User, docs []KYCDocument) (User, error) {
	if !usr.IsTutor() {
		return User{}, core.NewUnauthorizedError("only tutors can submit KYC documents")
	}
	if len(docs) == 0 || len(docs) > MaxKYCDocuments {
		return User{}, core.NewValidationError(nil, core.FieldError{
			Field: "documents", Error: "between 1 and 5 documents are required",
		})
	}
	for _, d := range docs {
		if d.Type != KYCDocAddressProof && d.Type != KYCDocPhotoID {
			return User{}, core.NewValidationError(nil, core.FieldError{
				Field: "types", Error: "document type must be one of [ADDRESS_PROOF PHOTO_ID]",
			})
		}
	}
	now := time.Now().UTC()
	usr.KYC = &KYC{
		Status:      KYCPending,
		Documents:   docs,
		SubmittedAt: &now,
	}
	usr.Status = StatusKYCPending
	return svc.update(ctx, usr)
}

// ReviewKYC approves (account becomes ACTIVE) or rejects (account becomes REJECTED) a tutor's KYC.
func (svc *service) ReviewKYC(ctx context.Context, id string, approve bool) (User, error) {
	usr, err := svc.GetByID(ctx, id)
	if err != nil {
		return User{}, err
	}
	if usr.KYC == nil {
		return User{}, core.NewNotFoundError("KYC not found")
	}
	now := time.Now().UTC()
	usr.KYC.ReviewedAt = &now
	if approve {
		usr.KYC.Status = KYCApproved
		usr.Status = StatusActive
	} else {
		usr.KYC.Status = KYCRejected
		usr.Status = StatusRejected
	}
	return svc.update(ctx, usr)
}

func (svc *service) Delete(ctx context.Context, ids ...string) (int, error) {
	cnt, err := svc.repo.DeleteUsersByID(ctx, ids)
	return cnt, errors.Wrap(err, "deleting users")
}

func (svc *service) update(ctx context.Context, usr User) (User, error) {
	usr.UpdatedAt = time.Now().UTC()
	usr, err := svc.repo.UpdateUser(ctx, usr)
	return usr, errors.Wrap(err, "updating user")
}
