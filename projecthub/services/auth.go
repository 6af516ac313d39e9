package services

import (
	"errors"
	"net/http"
	"projecthub/projecthub/auth"
	"projecthub/projecthub/schema"
	"projecthub/utils"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"gorm.io/gorm"
)

var loginMetric = promauto.NewSummary(prometheus.SummaryOpts{Name: "auth_login", Help: "Login attempts"})

type AuthService struct {
	db    *gorm.DB
	authn *auth.Authenticator
}

func (s *AuthService) Routes() chi.Router {
	r := chi.NewRouter()

	r.Group(func(r chi.Router) {
		r.Use(httprate.LimitByIP(10, time.Minute))

		r.Post("/login", s.Login)
	})

	r.Group(func(r chi.Router) {
		r.Use(s.authn.AuthMiddleware()...)

		r.Get("/me", s.Me)
		r.Put("/users/password", s.UpdatePassword)
	})

	return r
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginResponse struct {
	Token string   `json:"token"`
	User  UserInfo `json:"user"`
}

func (s *AuthService) Login(w http.ResponseWriter, r *http.Request) {
	timer := prometheus.NewTimer(loginMetric)
	defer timer.ObserveDuration()

	var params loginRequest
	if !utils.ParseRequestBody(w, r, &params) {
		return
	}

	if params.Email == "" || params.Password == "" {
		utils.HttpError(w, "please provide email and password", http.StatusBadRequest)
		return
	}

	login, err := s.authn.Login(params.Email, params.Password)
	if err != nil {
		// Unknown email and wrong password must be indistinguishable here.
		if errors.Is(err, auth.ErrInvalidCredentials) {
			utils.HttpError(w, err.Error(), http.StatusUnauthorized)
			return
		}
		utils.HttpError(w, "login failed", http.StatusInternalServerError)
		return
	}

	utils.WriteJsonResponse(w, loginResponse{Token: login.Token, User: convertToUserInfo(&login.User)})
}

func (s *AuthService) Me(w http.ResponseWriter, r *http.Request) {
	actor, err := auth.ActorFromContext(r)
	if err != nil {
		utils.HttpError(w, err.Error(), http.StatusInternalServerError)
		return
	}

	info := UserInfo{Id: actor.Id, Name: actor.Name, Email: actor.Email, Role: string(actor.Role)}
	utils.WriteJsonResponse(w, info)
}

type updatePasswordRequest struct {
	CurrentPassword string `json:"currentPassword"`
	NewPassword     string `json:"newPassword"`
}

func (s *AuthService) UpdatePassword(w http.ResponseWriter, r *http.Request) {
	actor, err := auth.ActorFromContext(r)
	if err != nil {
		utils.HttpError(w, err.Error(), http.StatusInternalServerError)
		return
	}

	var params updatePasswordRequest
	if !utils.ParseRequestBody(w, r, &params) {
		return
	}

	if params.CurrentPassword == "" || params.NewPassword == "" {
		utils.HttpError(w, "please provide currentPassword and newPassword", http.StatusBadRequest)
		return
	}

	err = s.authn.ChangePassword(actor.Id, params.CurrentPassword, params.NewPassword)
	if err != nil {
		switch {
		case errors.Is(err, auth.ErrInvalidCredentials):
			utils.HttpError(w, "current password is incorrect", http.StatusUnauthorized)
		case errors.Is(err, schema.ErrUserNotFound):
			utils.HttpError(w, err.Error(), http.StatusNotFound)
		default:
			utils.HttpError(w, "error updating password", http.StatusInternalServerError)
		}
		return
	}

	utils.WriteSuccess(w)
}
