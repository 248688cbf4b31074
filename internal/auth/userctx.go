package auth

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/appforge-dev/appforge-backend/internal/users"
)

const (
	CtxSubject = "auth_subject"
	CtxUserID  = "user_id"
)

// WithUser resolves the platform-forwarded identity headers into a database
// user id. Real authentication happens upstream; this service trusts the
// gateway's X-User-Id subject.
func WithUser(userRepo *users.Repo) gin.HandlerFunc {
	return func(c *gin.Context) {
		subject := strings.TrimSpace(c.GetHeader("X-User-Id"))
		if subject == "" {
			subject = "demo-user"
		}

		uid, err := userRepo.EnsureUser(c.Request.Context(), users.UpsertUser{
			Subject:     subject,
			Email:       c.GetHeader("X-User-Email"),
			DisplayName: c.GetHeader("X-User-Name"),
		})
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"ok": false, "error": "ensure user: " + err.Error()})
			c.Abort()
			return
		}

		c.Set(CtxSubject, subject)
		c.Set(CtxUserID, uid)
		c.Next()
	}
}

// UserID returns the resolved database user id, or 0 when unset.
func UserID(c *gin.Context) int64 {
	v, ok := c.Get(CtxUserID)
	if !ok {
		return 0
	}
	id, _ := v.(int64)
	return id
}
