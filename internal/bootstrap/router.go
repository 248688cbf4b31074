package bootstrap

import (
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"

	httpapi "github.com/appforge-dev/appforge-backend/internal/api/http"
	"github.com/appforge-dev/appforge-backend/internal/api/http/middleware"
	"github.com/appforge-dev/appforge-backend/internal/auth"
	"github.com/appforge-dev/appforge-backend/internal/gitrepos"
	"github.com/appforge-dev/appforge-backend/internal/projects"
	"github.com/appforge-dev/appforge-backend/internal/users"
)

type RouterDeps struct {
	ServiceName string
	Version     string
	DB          *pgxpool.Pool
}

func BuildRouter(dep RouterDeps) *gin.Engine {
	r := gin.Default()

	r.Use(cors.New(cors.Config{
		AllowOrigins:  []string{"*"},
		AllowMethods:  []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:  []string{"Content-Type", "X-User-Id", "X-User-Email", "X-User-Name"},
		ExposeHeaders: []string{"Content-Length"},
	}))

	healthHandler := httpapi.NewHealthHandler(dep.ServiceName, dep.Version, dep.DB)
	healthHandler.RegisterRoutes(r)

	api := r.Group("/api/v1")
	api.Use(middleware.RateLimit(50, 100))

	userRepo := users.NewRepo(dep.DB)
	api.Use(auth.WithUser(userRepo))

	projects.Register(api.Group("/projects"), dep.DB)
	gitrepos.Register(api.Group("/git-repositories"), gitrepos.NewRepo(dep.DB))

	return r
}
