package echoapi

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/eduplatform/backend/core"
	"github.com/eduplatform/backend/core/user"
	mediasvc "github.com/eduplatform/backend/services/media"
)

type authApi struct {
	auth     *authenticator
	svc      user.Service
	uploader *mediasvc.Uploader
	validate *validator.Validate
	logger   core.Logger
}

func registerAuthAPI(g *echo.Group, jwt echo.MiddlewareFunc, auth *authenticator, deps ServerDeps) {
	api := authApi{
		auth:     auth,
		svc:      deps.UserSvc,
		uploader: deps.Uploader,
		validate: deps.Validate,
		logger:   deps.Logger,
	}

	ag := g.Group("/auth")

	// un-authed endpoints
	ag.POST("/signup", api.signup)
	ag.POST("/login", api.login)
	ag.POST("/refresh", api.refresh)
	ag.POST("/forgot-password", api.forgotPassword)
	ag.POST("/reset-password", api.resetPassword)

	// authed endpoints
	ag.GET("/me", api.me, jwt)
	ag.POST("/update-profile", api.updateProfile, jwt)
	ag.POST("/update-avatar", api.updateAvatar, jwt)
	ag.POST("/update-password", api.updatePassword, jwt)
	ag.POST("/kyc/upload", api.uploadKYC, jwt, rolesMiddleware(user.RoleTutor))
}

type (
	LoginRequest struct {
		Email    string `json:"email" validate:"required,email"`
		Password string `json:"password" validate:"required"`
	}

	LoginResponse struct {
		User    user.User `json:"user"`
		Access  string    `json:"access"`
		Refresh string    `json:"refresh"`
	}

	RefreshRequest struct {
		Token string `json:"token" validate:"required"`
	}

	RefreshResponse struct {
		Access string `json:"access"`
	}

	PasswordResetRequest struct {
		Email string `json:"email" validate:"required,email"`
	}
)

func (lr *LoginRequest) Validate(validate *validator.Validate) error {
	lr.Email = core.CleanString(lr.Email, true /* lower */)
	return validate.Struct(lr)
}

func (pr *PasswordResetRequest) Validate(validate *validator.Validate) error {
	pr.Email = core.CleanString(pr.Email, true /* lower */)
	return validate.Struct(pr)
}

// Handlers

func (api *authApi) signup(ctx echo.Context) error {
	var data user.NewUser
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewUser")
	}
	data.Role = strings.ToUpper(core.CleanString(data.Role))
	if err := data.Validate(ctx.Request().Context(), api.validate, api.svc); err != nil {
		return err
	}

	usr, err := api.svc.Signup(ctx.Request().Context(), data)
	if err != nil {
		return errors.Wrap(err, "signing up")
	}
	return ctx.JSON(http.StatusCreated, SuccessResponse{Success: "User registered successfully", Data: usr})
}

func (api *authApi) login(ctx echo.Context) error {
	var data LoginRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to LoginRequest")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	usr, err := api.auth.authenticate(ctx, data.Email, data.Password)
	if err != nil {
		return errors.Wrap(err, "authenticating")
	}
	access, refresh, err := api.auth.tokens(usr)
	if err != nil {
		return errors.Wrap(err, "generating tokens")
	}
	return ctx.JSON(http.StatusOK, LoginResponse{User: usr, Access: access, Refresh: refresh})
}

func (api *authApi) refresh(ctx echo.Context) error {
	var data RefreshRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to RefreshRequest")
	}
	if err := api.validate.Struct(&data); err != nil {
		return err
	}

	access, err := api.auth.refresh(ctx, data.Token)
	if err != nil {
		return errors.Wrap(err, "refreshing token")
	}
	return ctx.JSON(http.StatusOK, RefreshResponse{Access: access})
}

func (api *authApi) forgotPassword(ctx echo.Context) error {
	var data PasswordResetRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to PasswordResetRequest")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	if err := api.svc.RequestPasswordReset(ctx.Request().Context(), data.Email); err != nil && !core.IsNotFound(err) {
		// do not return errors to attackers
		api.logger.Error("requesting password reset", errors.Wrap(err, "requesting password reset"))
	}
	return ctx.JSON(http.StatusOK, SuccessResponse{
		Success: "If the email address supplied is associated with an account on this system, " +
			"an email will arrive in your inbox shortly with instructions to reset your password.",
	})
}

func (api *authApi) resetPassword(ctx echo.Context) error {
	var data user.ResetUserPassword
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to ResetUserPassword")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	if _, err := api.svc.ResetPassword(ctx.Request().Context(), data); err != nil {
		return errors.Wrap(err, "resetting password")
	}
	return ctx.JSON(http.StatusOK, SuccessResponse{Success: "Password has been reset with the new password."})
}

func (api *authApi) me(ctx echo.Context) error {
	usr, err := api.auth.getContextUser(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}
	return ctx.JSON(http.StatusOK, usr)
}

func (api *authApi) updateProfile(ctx echo.Context) error {
	usr, err := api.auth.getContextUser(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}

	var data user.UpdateUser
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to UpdateUser")
	}
	if err = data.Validate(ctx.Request().Context(), usr, api.validate, api.svc); err != nil {
		return err
	}

	usr, err = api.svc.Update(ctx.Request().Context(), usr, data)
	if err != nil {
		return errors.Wrap(err, "updating user")
	}
	return ctx.JSON(http.StatusOK, SuccessResponse{Success: "Profile updated successfully", Data: usr})
}

func (api *authApi) updateAvatar(ctx echo.Context) error {
	usr, err := api.auth.getContextUser(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}

	stored, ok, err := uploadOne(ctx, api.uploader, mediasvc.Avatar)
	if err != nil {
		return errors.Wrap(err, "uploading avatar")
	}
	if !ok {
		return core.NewValidationError(nil, core.FieldError{Field: mediasvc.Avatar.Field, Error: "this field is required"})
	}

	usr, err = api.svc.SetAvatar(ctx.Request().Context(), usr, stored.URL)
	if err != nil {
		return errors.Wrap(err, "setting avatar")
	}
	return ctx.JSON(http.StatusOK, SuccessResponse{Success: "Avatar updated successfully", Data: usr})
}

func (api *authApi) updatePassword(ctx echo.Context) error {
	usr, err := api.auth.getContextUser(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}

	var data user.ChangePassword
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to ChangePassword")
	}
	if err = api.validate.Struct(&data); err != nil {
		return err
	}

	if _, err = api.svc.ChangePassword(ctx.Request().Context(), usr, data); err != nil {
		return errors.Wrap(err, "changing password")
	}
	return ctx.JSON(http.StatusOK, SuccessResponse{Success: "Password updated successfully"})
}

// uploadKYC expects the `documents` files along with one `types` value per document.
func (api *authApi) uploadKYC(ctx echo.Context) error {
	usr, err := api.auth.getContextUser(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}

	files := formFiles(ctx, mediasvc.KYCDocument.Field)
	var types []string
	if form, fErr := ctx.MultipartForm(); fErr == nil {
		types = form.Value["types"]
	}
	if len(files) == 0 || len(files) > user.MaxKYCDocuments {
		return core.NewValidationError(nil, core.FieldError{
			Field: "documents", Error: "between 1 and 5 documents are required",
		})
	}
	if len(types) != len(files) {
		return core.NewValidationError(nil, core.FieldError{Field: "types", Error: "one type is required per document"})
	}

	stored, err := uploadMany(ctx, api.uploader, mediasvc.KYCDocument)
	if err != nil {
		return errors.Wrap(err, "uploading KYC documents")
	}
	now := time.Now().UTC()
	docs := make([]user.KYCDocument, 0, len(stored))
	for i, s := range stored {
		docs = append(docs, user.KYCDocument{
			Type:       strings.ToUpper(core.CleanString(types[i])),
			URL:        s.URL,
			UploadedAt: now,
		})
	}

	usr, err = api.svc.SubmitKYC(ctx.Request().Context(), usr, docs)
	if err != nil {
		return errors.Wrap(err, "submitting KYC")
	}
	return ctx.JSON(http.StatusOK, SuccessResponse{Success: "KYC documents uploaded successfully", Data: usr})
}
