package httpserver

import (
	"errors"
	"net/http"
	"time"

	"github.com/dmitrijs2005/tasksync/internal/common"
	"github.com/dmitrijs2005/tasksync/internal/proto"
	"github.com/gin-gonic/gin"
)

const accountIDKey = "account_id"

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) requireAuth(c *gin.Context) {
	token := common.ParseBearer(c.GetHeader(common.AuthorizationHeaderName))
	if token == "" {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing bearer token"})
		return
	}

	accountID, err := s.auth.Authenticate(c.Request.Context(), token)
	if err != nil {
		if errors.Is(err, common.ErrorUnauthorized) {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}
		s.logger.Error(c.Request.Context(), "authentication failed", "error", err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}

	c.Set(accountIDKey, accountID)
	c.Next()
}

func (s *Server) handleSync(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBodyBytes)

	var req proto.SyncRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "malformed request: " + err.Error()})
		return
	}

	resp, err := s.syncer.Sync(c.Request.Context(), c.GetString(accountIDKey), &req)
	if err != nil {
		status, msg := statusFor(err)
		if status == http.StatusInternalServerError {
			s.logger.Error(c.Request.Context(), "sync failed", "account_id", c.GetString(accountIDKey), "error", err)
		}
		c.JSON(status, gin.H{"error": msg})
		return
	}

	c.JSON(http.StatusOK, resp)
}

// statusFor maps service errors onto HTTP statuses. Internal details are
// never echoed to the caller.
func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, common.ErrBatchTooLarge):
		return http.StatusRequestEntityTooLarge, err.Error()
	case errors.Is(err, common.ErrInvalidRequest):
		return http.StatusBadRequest, err.Error()
	case errors.Is(err, common.ErrorUnauthorized):
		return http.StatusUnauthorized, "unauthorized"
	default:
		return http.StatusInternalServerError, "internal error"
	}
}

func (s *Server) accessLog(c *gin.Context) {
	start := time.Now()
	c.Next()
	s.logger.Info(c.Request.Context(), "request",
		"method", c.Request.Method,
		"path", c.FullPath(),
		"status", c.Writer.Status(),
		"duration", time.Since(start),
	)
}
