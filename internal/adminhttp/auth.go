package adminhttp

import (
	"crypto/subtle"
	"net/http"

	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/redlite/redlite/internal/engine"
)

const sessionKeyAuthed = "authed"
const sessionKeyCSRF = "csrf"

// authenticate admits requests with a valid session, or unconditionally when
// no requirepass is configured — mirroring the RESP listener's own
// no-password-set-means-open-access rule.
func authenticate(root *engine.Root) gin.HandlerFunc {
	return func(c *gin.Context) {
		if root.Config.RequirePass() == "" {
			c.Next()
			return
		}
		sess := sessions.Default(c)
		if ok, _ := sess.Get(sessionKeyAuthed).(bool); ok {
			c.Next()
			return
		}
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"message": "authentication required"})
	}
}

// validateCSRF rejects mutating admin requests missing a matching
// X-CSRF-Token header, the same double-submit-cookie pattern used for
// session-authenticated mutations elsewhere in this codebase.
func validateCSRF(c *gin.Context) {
	sess := sessions.Default(c)
	want, _ := sess.Get(sessionKeyCSRF).(string)
	got := c.GetHeader("X-CSRF-Token")
	if want == "" || got == "" || subtle.ConstantTimeCompare([]byte(want), []byte(got)) != 1 {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"message": "invalid csrf token"})
		return
	}
	c.Next()
}

func (s *Server) handleLogin(c *gin.Context) {
	var req struct {
		Password string `json:"password"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": err.Error()})
		return
	}

	pass := s.root.Config.RequirePass()
	if pass != "" && subtle.ConstantTimeCompare([]byte(req.Password), []byte(pass)) != 1 {
		c.JSON(http.StatusUnauthorized, gin.H{"message": "invalid credentials"})
		return
	}

	sess := sessions.Default(c)
	sess.Set(sessionKeyAuthed, true)
	csrf := uuid.New().String()
	sess.Set(sessionKeyCSRF, csrf)
	if err := sess.Save(); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"message": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"csrf": csrf})
}

func (s *Server) handleLogout(c *gin.Context) {
	sess := sessions.Default(c)
	sess.Clear()
	sess.Options(sessions.Options{Path: "/admin", MaxAge: -1})
	_ = sess.Save()
	c.Status(http.StatusNoContent)
}

func (s *Server) handleMe(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"role": "admin"})
}
