package projects

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/appforge-dev/appforge-backend/internal/auth"
)

type Handler struct {
	pool *pgxpool.Pool
}

func Register(rg *gin.RouterGroup, pool *pgxpool.Pool) {
	h := &Handler{pool: pool}

	rg.POST("", h.create)
	rg.GET("", h.list)
	rg.DELETE("/:public_id", h.delete)
	rg.GET("/:public_id/env-vars", h.listEnvVars)
	rg.PUT("/:public_id/env-vars", h.updateEnvVars)
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrInvalidInput):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

type createReq struct {
	GitRepositoryID int64  `json:"git_repository_id"`
	RootDirPath     string `json:"root_dir_path"`
	Name            string `json:"name"`
}

func (h *Handler) create(c *gin.Context) {
	var req createReq
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.Name) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"ok": false, "error": "invalid body"})
		return
	}

	ctx := c.Request.Context()

	// set + project insert commit together
	tx, err := h.pool.Begin(ctx)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"ok": false, "error": err.Error()})
		return
	}
	defer tx.Rollback(ctx)

	p, err := NewStore(tx).CreateProject(ctx, CreateProjectArgs{
		GitRepositoryID: req.GitRepositoryID,
		RootDirPath:     req.RootDirPath,
		Name:            strings.TrimSpace(req.Name),
	})
	if err != nil {
		c.JSON(statusFor(err), gin.H{"ok": false, "error": err.Error()})
		return
	}
	if err := tx.Commit(ctx); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"ok": false, "error": err.Error()})
		return
	}

	c.JSON(http.StatusCreated, gin.H{"ok": true, "project": p})
}

func (h *Handler) list(c *gin.Context) {
	items, err := NewStore(h.pool).List(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"ok": false, "error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true, "projects": items})
}

func (h *Handler) delete(c *gin.Context) {
	publicID := c.Param("public_id")

	ok, err := NewStore(h.pool).SoftDelete(c.Request.Context(), publicID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"ok": false, "error": err.Error()})
		return
	}
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"ok": false, "error": "project not found"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"ok": true})
}

func (h *Handler) listEnvVars(c *gin.Context) {
	publicID := c.Param("public_id")
	scope := EnvVarScope(c.DefaultQuery("scope", string(ScopeProject)))
	userID := auth.UserID(c)

	ctx := c.Request.Context()

	// user scope may lazily create the binding and its set
	tx, err := h.pool.Begin(ctx)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"ok": false, "error": err.Error()})
		return
	}
	defer tx.Rollback(ctx)

	vars, err := NewStore(tx).EnvVarsForScope(ctx, userID, publicID, scope)
	if err != nil {
		c.JSON(statusFor(err), gin.H{"ok": false, "error": err.Error()})
		return
	}
	if err := tx.Commit(ctx); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"ok": false, "error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"ok": true, "env_vars": vars})
}

type updateEnvVarsReq struct {
	Scope  EnvVarScope    `json:"scope"`
	Delete []string       `json:"delete"`
	Create []EnvVarCreate `json:"create"`
	Update []EnvVarUpdate `json:"update"`
}

func (h *Handler) updateEnvVars(c *gin.Context) {
	publicID := c.Param("public_id")

	var req updateEnvVarsReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"ok": false, "error": "invalid body"})
		return
	}
	if req.Scope == "" {
		req.Scope = ScopeProject
	}

	ctx := c.Request.Context()

	tx, err := h.pool.Begin(ctx)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"ok": false, "error": err.Error()})
		return
	}
	defer tx.Rollback(ctx)

	err = NewStore(tx).UpdateEnvironmentVariables(ctx, UpdateEnvVarsArgs{
		UserID:          auth.UserID(c),
		ProjectPublicID: publicID,
		Delete:          req.Delete,
		Create:          req.Create,
		Update:          req.Update,
		Scope:           req.Scope,
	})
	if err != nil {
		c.JSON(statusFor(err), gin.H{"ok": false, "error": err.Error()})
		return
	}
	if err := tx.Commit(ctx); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"ok": false, "error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"ok": true})
}
