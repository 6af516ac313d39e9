package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"projecthub/projecthub/schema"
	"projecthub/utils"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/jwtauth/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

var (
	ErrInvalidCredentials = errors.New("incorrect email or password")
	ErrEmailAlreadyInUse  = errors.New("email is already in use")
	ErrGeneratingJwt      = errors.New("error generating access token")
)

func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Authenticator verifies credentials, issues tokens, and gates protected
// routes. By default the actor is taken from the token payload without a db
// round trip, so role/name changes only take effect after re-login. Setting
// RefreshUser trades that staleness for a lookup on every request.
type Authenticator struct {
	jwtManager  *JwtManager
	db          *gorm.DB
	auditLog    AuditLogger
	refreshUser bool
}

type AuthenticatorArgs struct {
	Secret      []byte
	TokenTtl    time.Duration
	RefreshUser bool

	AdminName     string
	AdminEmail    string
	AdminPassword string
}

func NewAuthenticator(db *gorm.DB, auditLog AuditLogger, args AuthenticatorArgs) (*Authenticator, error) {
	if args.TokenTtl == 0 {
		args.TokenTtl = time.Hour
	}

	hashedPwd, err := bcrypt.GenerateFromPassword([]byte(args.AdminPassword), 10)
	if err != nil {
		return nil, fmt.Errorf("error encrypting admin password: %w", err)
	}

	err = addInitialAdminToDb(db, uuid.New(), args.AdminName, NormalizeEmail(args.AdminEmail), hashedPwd)
	if err != nil {
		return nil, fmt.Errorf("error adding initial admin to db: %w", err)
	}

	return &Authenticator{
		jwtManager:  NewJwtManager(args.Secret, args.TokenTtl, nil),
		db:          db,
		auditLog:    auditLog,
		refreshUser: args.RefreshUser,
	}, nil
}

// addInitialAdminToDb provisions the bootstrap admin if no user with the
// given email exists yet. This replaces ad hoc first-login fallbacks with an
// explicit, env-driven mechanism.
func addInitialAdminToDb(db *gorm.DB, userId uuid.UUID, name, email string, password []byte) error {
	user := schema.User{
		Id:       userId,
		Name:     name,
		Email:    email,
		Password: password,
		Role:     string(RoleAdmin),
	}

	err := db.Transaction(func(txn *gorm.DB) error {
		var existingUser schema.User
		result := txn.Limit(1).Find(&existingUser, "email = ?", email)
		if result.Error != nil {
			slog.Error("sql error checking if admin has already been added", "error", result.Error)
			return schema.ErrDbAccessFailed
		}
		if result.RowsAffected == 0 {
			result := txn.Create(&user)
			if result.Error != nil {
				slog.Error("sql error creating initial admin user", "error", result.Error)
				return schema.ErrDbAccessFailed
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("error adding initial admin to db: %w", err)
	}

	return nil
}

type LoginResult struct {
	Token string
	User  schema.User
}

// Login verifies the email/password pair and issues a session token. Unknown
// emails and wrong passwords both return ErrInvalidCredentials so the
// response cannot be used to enumerate accounts.
func (auth *Authenticator) Login(email, password string) (LoginResult, error) {
	var user schema.User
	result := auth.db.First(&user, "email = ?", NormalizeEmail(email))
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return LoginResult{}, ErrInvalidCredentials
		}
		slog.Error("sql error looking up user by email", "error", result.Error)
		return LoginResult{}, schema.ErrDbAccessFailed
	}

	err := bcrypt.CompareHashAndPassword(user.Password, []byte(password))
	if err != nil {
		return LoginResult{}, ErrInvalidCredentials
	}

	token, err := auth.jwtManager.CreateUserJwt(user)
	if err != nil {
		return LoginResult{}, ErrGeneratingJwt
	}

	return LoginResult{Token: token, User: user}, nil
}

func (auth *Authenticator) CreateUser(name, email, password string, role Role) (uuid.UUID, error) {
	hashedPwd, err := bcrypt.GenerateFromPassword([]byte(password), 10)
	if err != nil {
		return uuid.UUID{}, fmt.Errorf("error encrypting password: %w", err)
	}

	newUser := schema.User{
		Id:       uuid.New(),
		Name:     name,
		Email:    NormalizeEmail(email),
		Password: hashedPwd,
		Role:     string(role),
	}

	err = auth.db.Transaction(func(txn *gorm.DB) error {
		var existingUser schema.User
		result := txn.Limit(1).Find(&existingUser, "email = ?", newUser.Email)
		if result.Error != nil {
			slog.Error("sql error checking for existing email", "error", result.Error)
			return schema.ErrDbAccessFailed
		}
		if result.RowsAffected != 0 {
			return ErrEmailAlreadyInUse
		}

		result = txn.Create(&newUser)
		if result.Error != nil {
			slog.Error("sql error creating new user entry", "error", result.Error)
			return schema.ErrDbAccessFailed
		}

		return nil
	})

	if err != nil {
		return uuid.UUID{}, fmt.Errorf("error creating new user: %w", err)
	}

	return newUser.Id, nil
}

// ChangePassword verifies the current password against the stored hash
// before replacing it.
func (auth *Authenticator) ChangePassword(userId uuid.UUID, currentPassword, newPassword string) error {
	user, err := schema.GetUser(userId, auth.db)
	if err != nil {
		return err
	}

	if err := bcrypt.CompareHashAndPassword(user.Password, []byte(currentPassword)); err != nil {
		return ErrInvalidCredentials
	}

	hashedPwd, err := bcrypt.GenerateFromPassword([]byte(newPassword), 10)
	if err != nil {
		return fmt.Errorf("error encrypting password: %w", err)
	}

	result := auth.db.Model(&schema.User{Id: userId}).Update("password", hashedPwd)
	if result.Error != nil {
		slog.Error("sql error updating user password", "user_id", userId, "error", result.Error)
		return schema.ErrDbAccessFailed
	}

	return nil
}

func (auth *Authenticator) addActorToContext() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		handler := func(w http.ResponseWriter, r *http.Request) {
			_, claims, err := jwtauth.FromContext(r.Context())
			if err != nil {
				utils.HttpError(w, err.Error(), http.StatusUnauthorized)
				return
			}

			actor, err := actorFromClaims(claims)
			if err != nil {
				utils.HttpError(w, err.Error(), http.StatusUnauthorized)
				return
			}

			if auth.refreshUser {
				user, err := schema.GetUser(actor.Id, auth.db)
				if err != nil {
					if errors.Is(err, schema.ErrUserNotFound) {
						utils.HttpError(w, err.Error(), http.StatusUnauthorized)
						return
					}
					utils.HttpError(w, fmt.Sprintf("unable to load user %v", actor.Id), http.StatusInternalServerError)
					return
				}
				role, err := ParseRole(user.Role)
				if err != nil {
					utils.HttpError(w, err.Error(), http.StatusInternalServerError)
					return
				}
				actor = Actor{Id: user.Id, Name: user.Name, Email: user.Email, Role: role}
			}

			reqCtx := r.Context()
			reqCtx = context.WithValue(reqCtx, actorRequestContextKey, actor)
			next.ServeHTTP(w, r.WithContext(reqCtx))
		}

		return http.HandlerFunc(handler)
	}
}

func (auth *Authenticator) AuthMiddleware() chi.Middlewares {
	return chi.Middlewares{
		auth.jwtManager.Verifier(),
		auth.jwtManager.Authenticator(),
		auth.addActorToContext(),
		auth.auditLog.Middleware,
	}
}
