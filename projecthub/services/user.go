package services

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"projecthub/projecthub/auth"
	"projecthub/projecthub/schema"
	"projecthub/utils"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// UserService is the admin-only user administration surface. Deleting a user
// does not cascade to projects or documents that reference it; those
// references are left dangling.
type UserService struct {
	db    *gorm.DB
	authn *auth.Authenticator
}

func (s *UserService) Routes() chi.Router {
	r := chi.NewRouter()

	r.Use(s.authn.AuthMiddleware()...)
	r.Use(auth.AdminOnly())

	r.Get("/", s.List)
	r.Post("/", s.Create)

	r.Route("/{user_id}", func(r chi.Router) {
		r.Get("/", s.Get)
		r.Put("/", s.Update)
		r.Delete("/", s.Delete)
	})

	return r
}

type UserInfo struct {
	Id    uuid.UUID `json:"id"`
	Name  string    `json:"name"`
	Email string    `json:"email"`
	Role  string    `json:"role"`
}

func convertToUserInfo(user *schema.User) UserInfo {
	return UserInfo{Id: user.Id, Name: user.Name, Email: user.Email, Role: user.Role}
}

func (s *UserService) List(w http.ResponseWriter, r *http.Request) {
	var users []schema.User
	result := s.db.Order("created_at asc").Find(&users)
	if result.Error != nil {
		slog.Error("sql error listing users", "error", result.Error)
		utils.HttpError(w, fmt.Sprintf("error listing users: %v", schema.ErrDbAccessFailed), http.StatusInternalServerError)
		return
	}

	infos := make([]UserInfo, 0, len(users))
	for _, u := range users {
		infos = append(infos, convertToUserInfo(&u))
	}
	utils.WriteJsonResponse(w, infos)
}

func (s *UserService) Get(w http.ResponseWriter, r *http.Request) {
	userId, err := utils.URLParamUUID(r, "user_id")
	if err != nil {
		utils.HttpError(w, err.Error(), http.StatusBadRequest)
		return
	}

	user, err := schema.GetUser(userId, s.db)
	if err != nil {
		if errors.Is(err, schema.ErrUserNotFound) {
			utils.HttpError(w, err.Error(), http.StatusNotFound)
			return
		}
		utils.HttpError(w, fmt.Sprintf("error getting user: %v", err), http.StatusInternalServerError)
		return
	}

	utils.WriteJsonResponse(w, convertToUserInfo(&user))
}

type createUserRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
	Role     string `json:"role"`
}

type createUserResponse struct {
	UserId uuid.UUID `json:"user_id"`
}

func (s *UserService) Create(w http.ResponseWriter, r *http.Request) {
	var params createUserRequest
	if !utils.ParseRequestBody(w, r, &params) {
		return
	}

	if params.Email == "" || params.Password == "" {
		utils.HttpError(w, "please provide email and password", http.StatusBadRequest)
		return
	}

	role := auth.RoleDeveloper
	if params.Role != "" {
		var err error
		role, err = auth.ParseRole(params.Role)
		if err != nil {
			utils.HttpError(w, err.Error(), http.StatusBadRequest)
			return
		}
	}

	userId, err := s.authn.CreateUser(params.Name, params.Email, params.Password, role)
	if err != nil {
		responseCode := http.StatusInternalServerError
		if errors.Is(err, auth.ErrEmailAlreadyInUse) {
			responseCode = http.StatusConflict
		}
		utils.HttpError(w, fmt.Sprintf("error creating user: %v", err), responseCode)
		return
	}

	utils.WriteJsonResponse(w, createUserResponse{UserId: userId})
}

type updateUserRequest struct {
	Name *string `json:"name"`
	Role *string `json:"role"`
}

func (s *UserService) Update(w http.ResponseWriter, r *http.Request) {
	userId, err := utils.URLParamUUID(r, "user_id")
	if err != nil {
		utils.HttpError(w, err.Error(), http.StatusBadRequest)
		return
	}

	var params updateUserRequest
	if !utils.ParseRequestBody(w, r, &params) {
		return
	}

	err = s.db.Transaction(func(txn *gorm.DB) error {
		user, err := schema.GetUser(userId, txn)
		if err != nil {
			if errors.Is(err, schema.ErrUserNotFound) {
				return CodedError(err, http.StatusNotFound)
			}
			return CodedError(err, http.StatusInternalServerError)
		}

		if params.Name != nil {
			user.Name = *params.Name
		}

		if params.Role != nil {
			role, err := auth.ParseRole(*params.Role)
			if err != nil {
				return CodedError(err, http.StatusBadRequest)
			}

			if user.Role == string(auth.RoleAdmin) && role != auth.RoleAdmin {
				if err := checkNotLastAdmin(txn, userId); err != nil {
					return err
				}
			}
			user.Role = string(role)
		}

		result := txn.Save(&user)
		if result.Error != nil {
			slog.Error("sql error updating user", "user_id", userId, "error", result.Error)
			return CodedError(schema.ErrDbAccessFailed, http.StatusInternalServerError)
		}

		return nil
	})

	if err != nil {
		utils.HttpError(w, fmt.Sprintf("error updating user: %v", err), GetResponseCode(err))
		return
	}

	utils.WriteSuccess(w)
}

func checkNotLastAdmin(txn *gorm.DB, userId uuid.UUID) error {
	var count int64
	result := txn.Model(&schema.User{}).Where("role = ?", string(auth.RoleAdmin)).Count(&count)
	if result.Error != nil {
		slog.Error("sql error counting existing admins", "error", result.Error)
		return CodedError(schema.ErrDbAccessFailed, http.StatusInternalServerError)
	}

	if count < 2 {
		return CodedError(fmt.Errorf("cannot remove admin %v since there would be no admins left", userId), http.StatusUnprocessableEntity)
	}

	return nil
}

func (s *UserService) Delete(w http.ResponseWriter, r *http.Request) {
	userId, err := utils.URLParamUUID(r, "user_id")
	if err != nil {
		utils.HttpError(w, err.Error(), http.StatusBadRequest)
		return
	}

	err = s.db.Transaction(func(txn *gorm.DB) error {
		user, err := schema.GetUser(userId, txn)
		if err != nil {
			if errors.Is(err, schema.ErrUserNotFound) {
				return CodedError(err, http.StatusNotFound)
			}
			return CodedError(err, http.StatusInternalServerError)
		}

		if user.Role == string(auth.RoleAdmin) {
			if err := checkNotLastAdmin(txn, userId); err != nil {
				return err
			}
		}

		result := txn.Delete(&schema.User{Id: userId})
		if result.Error != nil {
			slog.Error("sql error deleting user", "user_id", userId, "error", result.Error)
			return CodedError(schema.ErrDbAccessFailed, http.StatusInternalServerError)
		}

		return nil
	})

	if err != nil {
		utils.HttpError(w, fmt.Sprintf("error deleting user %v: %v", userId, err), GetResponseCode(err))
		return
	}

	utils.WriteSuccess(w)
}
