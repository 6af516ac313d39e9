package services

import (
	"log"
	"net/http"
	"os"

	"projecthub/projecthub/auth"
	"projecthub/projecthub/storage"
	"projecthub/utils"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"gorm.io/gorm"
)

type Platform struct {
	auth     AuthService
	users    UserService
	projects ProjectService

	db *gorm.DB
}

func NewPlatform(db *gorm.DB, store storage.Storage, authn *auth.Authenticator) Platform {
	return Platform{
		auth:  AuthService{db: db, authn: authn},
		users: UserService{db: db, authn: authn},
		projects: ProjectService{
			db:        db,
			store:     store,
			authn:     authn,
			documents: DocumentService{db: db, store: store},
		},
		db: db,
	}
}

func (p *Platform) Routes() chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestLogger(&middleware.DefaultLogFormatter{
		Logger: log.New(os.Stderr, "", log.LstdFlags), NoColor: false,
	}))

	r.Mount("/auth", p.auth.Routes())
	r.Mount("/admin/users", p.users.Routes())
	r.Mount("/projects", p.projects.Routes())

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		utils.WriteSuccess(w)
	})

	r.Handle("/metrics", promhttp.Handler())

	return r
}
