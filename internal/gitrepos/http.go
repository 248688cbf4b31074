package gitrepos

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

type Handler struct {
	repo *Repo
}

func Register(rg *gin.RouterGroup, repo *Repo) {
	h := &Handler{repo: repo}

	rg.POST("", h.create)
	rg.GET("", h.list)
}

type createReq struct {
	Name     string `json:"name"`
	CloneURL string `json:"clone_url"`
}

func (h *Handler) create(c *gin.Context) {
	var req createReq
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.Name) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"ok": false, "error": "invalid body"})
		return
	}

	g, err := h.repo.Create(c.Request.Context(), strings.TrimSpace(req.Name), req.CloneURL)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"ok": false, "error": err.Error()})
		return
	}

	c.JSON(http.StatusCreated, gin.H{"ok": true, "git_repository": g})
}

func (h *Handler) list(c *gin.Context) {
	items, err := h.repo.List(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"ok": false, "error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true, "git_repositories": items})
}
