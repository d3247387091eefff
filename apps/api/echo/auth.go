package echoapi

import (
	"time"

	"github.com/dgrijalva/jwt-go"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/pkg/errors"

	"github.com/eduplatform/backend/core"
	"github.com/eduplatform/backend/core/user"
)

const (
	contextTokenKey = "userToken"
	contextUserKey  = "user"
	tokenAudience   = "Edu-Platform"
)

// Claims represents the authorization claims transmitted via a JWT.
type Claims struct {
	jwt.StandardClaims
	OrigIssuedAt int64  `json:"oriat,omitempty"`
	Email        string `json:"email,omitempty"`
	Role         string `json:"role,omitempty"`
	IsSubAdmin   bool   `json:"isSubAdmin,omitempty"`
}

func (c Claims) Actor() user.Actor {
	return user.Actor{ID: c.Subject, Role: c.Role, IsSubAdmin: c.IsSubAdmin}
}

// authenticator issues & verifies the access tokens (signed with SecretKey) and the refresh tokens
// (signed with RefreshSecretKey).
type authenticator struct {
	conf      *core.Config
	usrSvc    user.Service
	jwtConfig middleware.JWTConfig
}

func newAuthenticator(conf *core.Config, usrSvc user.Service) *authenticator {
	return &authenticator{
		conf:   conf,
		usrSvc: usrSvc,
		jwtConfig: middleware.JWTConfig{
			SigningKey:    []byte(conf.SecretKey),
			SigningMethod: middleware.AlgorithmHS256,
			ContextKey:    contextTokenKey,
			Claims:        new(Claims),
		},
	}
}

func (a *authenticator) middleware() echo.MiddlewareFunc {
	return middleware.JWTWithConfig(a.jwtConfig)
}

// optionalMiddleware authenticates the request only when it carries an Authorization header.
func (a *authenticator) optionalMiddleware() echo.MiddlewareFunc {
	conf := a.jwtConfig
	conf.Skipper = func(ctx echo.Context) bool {
		return ctx.Request().Header.Get(echo.HeaderAuthorization) == ""
	}
	return middleware.JWTWithConfig(conf)
}

func (a *authenticator) userClaims(usr user.User, expiresIn time.Duration, origIat ...int64) *Claims {
	now := time.Now()
	nownix := now.Unix()

	oriat := nownix
	if len(origIat) > 0 {
		oriat = origIat[0]
	}

	return &Claims{
		StandardClaims: jwt.StandardClaims{
			Issuer:    a.conf.AppName,
			Subject:   usr.ID,
			Audience:  tokenAudience,
			ExpiresAt: now.Add(expiresIn).Unix(),
			IssuedAt:  nownix,
		},
		OrigIssuedAt: oriat,
		Email:        usr.Email,
		Role:         usr.Role,
		IsSubAdmin:   usr.IsSubAdmin,
	}
}

func sign(claims *Claims, key string) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	ss, err := token.SignedString([]byte(key))
	if err != nil {
		return "", errors.Wrap(err, "signing token")
	}
	return ss, nil
}

// accessToken generates a signed JWT representing the user Claims.
func (a *authenticator) accessToken(usr user.User, origIat ...int64) (string, error) {
	return sign(a.userClaims(usr, a.conf.Server.JWTExpirationDelta, origIat...), a.conf.SecretKey)
}

func (a *authenticator) refreshToken(usr user.User) (string, error) {
	return sign(a.userClaims(usr, a.conf.Server.JWTRefreshExpirationDelta), a.conf.RefreshSecretKey)
}

// tokens returns a new access & refresh token pair.
func (a *authenticator) tokens(usr user.User) (access, refresh string, err error) {
	if access, err = a.accessToken(usr); err != nil {
		return "", "", err
	}
	if refresh, err = a.refreshToken(usr); err != nil {
		return "", "", err
	}
	return access, refresh, nil
}

func (a *authenticator) authenticate(ctx echo.Context, email, pwd string) (user.User, error) {
	usr, err := a.usrSvc.GetByEmail(ctx.Request().Context(), email)
	if err != nil {
		if core.IsNotFound(err) {
			return user.User{}, errAuthenticationFailed
		}
		return user.User{}, errors.Wrap(err, "finding user by email")
	}
	if err = usr.CheckPassword(pwd); err != nil {
		return user.User{}, errAuthenticationFailed
	}
	if !usr.CanLogin() {
		return user.User{}, errAccountNotActive
	}
	usr, err = a.usrSvc.SetLastLogin(ctx.Request().Context(), usr)
	return usr, errors.Wrap(err, "setting lastLogin")
}

// refresh verifies a refresh token & issues a new access token for its (still allowed) user.
func (a *authenticator) refresh(ctx echo.Context, refreshToken string) (string, error) {
	claims := new(Claims)
	token, err := jwt.ParseWithClaims(refreshToken, claims, func(t *jwt.Token) (interface{}, error) {
		if t.Method.Alg() != jwt.SigningMethodHS256.Alg() {
			return nil, errors.Errorf("unexpected jwt signing method=%v", t.Header["alg"])
		}
		return []byte(a.conf.RefreshSecretKey), nil
	})
	if err != nil || !token.Valid {
		return "", errInvalidRefreshToken
	}

	usr, err := a.usrSvc.GetByID(ctx.Request().Context(), claims.Subject)
	if err != nil {
		if core.IsNotFound(err) {
			return "", errInvalidRefreshToken
		}
		return "", errors.Wrap(err, "finding user by ID")
	}
	if !usr.CanLogin() {
		return "", errAccountNotActive
	}
	return a.accessToken(usr, claims.OrigIssuedAt)
}

func getContextClaims(ctx echo.Context) (Claims, error) {
	if token, ok := ctx.Get(contextTokenKey).(*jwt.Token); ok {
		if claims, ok := token.Claims.(*Claims); ok {
			return *claims, nil
		}
	}
	return Claims{}, errUnauthorized
}

// getContextActor returns the authenticated caller; ok is false for anonymous requests.
func getContextActor(ctx echo.Context) (user.Actor, bool) {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return user.Actor{}, false
	}
	return claims.Actor(), true
}

func (a *authenticator) getContextUser(ctx echo.Context) (user.User, error) {
	if usr, ok := ctx.Get(contextUserKey).(user.User); ok {
		return usr, nil
	}
	claims, err := getContextClaims(ctx)
	if err != nil {
		return user.User{}, err
	}
	usr, err := a.usrSvc.GetByID(ctx.Request().Context(), claims.Subject)
	if err != nil {
		if core.IsNotFound(err) {
			return user.User{}, errUnauthorized
		}
		return user.User{}, errors.Wrap(err, "finding user by ID")
	}
	ctx.Set(contextUserKey, usr)
	return usr, nil
}
