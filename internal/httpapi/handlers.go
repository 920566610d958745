package httpapi

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/DriftThreads/DriftThreads/internal/chat"
	"github.com/DriftThreads/DriftThreads/internal/store"
)

// SubmitRequest is the submission request body.
type SubmitRequest struct {
	DisplayName string `json:"display_name" binding:"required,max=64"`
	Body        string `json:"body"`
}

// ErrorResponse is the rejection/error response body. BanUntil and
// BanReason are set only for code "banned".
type ErrorResponse struct {
	Code      string     `json:"code"`
	Message   string     `json:"message"`
	BanUntil  *time.Time `json:"ban_until,omitempty"`
	BanReason string     `json:"ban_reason,omitempty"`
}

// BanStatusResponse is the active-ban self-check response body.
type BanStatusResponse struct {
	Until    time.Time `json:"until"`
	Reason   string    `json:"reason"`
	IssuedAt time.Time `json:"issued_at"`
}

// PurgeResponse reports a completed purge pass.
type PurgeResponse struct {
	Deleted int64 `json:"deleted"`
}

// submitMessage handles POST /api/messages.
func (s *Server) submitMessage(c *gin.Context) {
	var req SubmitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Code:    chat.CodeInvalidInput,
			Message: "invalid request body",
		})
		return
	}

	userID := c.GetHeader(UserIDHeader)
	msg, err := s.chat.Submit(c.Request.Context(), userID, req.DisplayName, req.Body, time.Now().UTC())
	if err != nil {
		s.writeSubmitError(c, userID, err)
		return
	}
	c.JSON(http.StatusCreated, msg)
}

func (s *Server) writeSubmitError(c *gin.Context, userID string, err error) {
	var rej *chat.Rejection
	if errors.As(err, &rej) {
		resp := ErrorResponse{Code: rej.Code, Message: rej.Message}
		status := http.StatusBadRequest
		switch rej.Code {
		case chat.CodeRateLimited:
			status = http.StatusTooManyRequests
		case chat.CodeBanned:
			status = http.StatusForbidden
			resp.BanUntil = &rej.BanUntil
			resp.BanReason = rej.BanReason
		}
		c.JSON(status, resp)
		return
	}

	if errors.Is(err, store.ErrUnavailable) {
		s.log.Error().Err(err).Str("user_id", userID).Msg("submission failed, store unavailable")
		c.JSON(http.StatusServiceUnavailable, ErrorResponse{
			Code:    "store_unavailable",
			Message: "temporary storage failure, retry shortly",
		})
		return
	}

	s.log.Error().Err(err).Str("user_id", userID).Msg("submission failed")
	c.JSON(http.StatusInternalServerError, ErrorResponse{
		Code:    "internal",
		Message: "internal server error",
	})
}

// listMessages handles GET /api/messages?limit=N.
func (s *Server) listMessages(c *gin.Context) {
	limit := 50
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > 500 {
			c.JSON(http.StatusBadRequest, ErrorResponse{
				Code:    chat.CodeInvalidInput,
				Message: "limit must be an integer between 1 and 500",
			})
			return
		}
		limit = n
	}

	msgs, err := s.chat.Recent(c.Request.Context(), limit)
	if err != nil {
		s.log.Error().Err(err).Msg("list messages failed")
		c.JSON(http.StatusServiceUnavailable, ErrorResponse{
			Code:    "store_unavailable",
			Message: "temporary storage failure, retry shortly",
		})
		return
	}
	if msgs == nil {
		msgs = []store.Message{}
	}
	c.JSON(http.StatusOK, msgs)
}

// banStatus handles GET /api/bans/me. 204 when no active ban.
func (s *Server) banStatus(c *gin.Context) {
	userID := c.GetHeader(UserIDHeader)
	ban, err := s.chat.BanStatus(c.Request.Context(), userID, time.Now().UTC())
	if err != nil {
		s.log.Error().Err(err).Str("user_id", userID).Msg("ban status lookup failed")
		c.JSON(http.StatusServiceUnavailable, ErrorResponse{
			Code:    "store_unavailable",
			Message: "temporary storage failure, retry shortly",
		})
		return
	}
	if ban == nil {
		c.Status(http.StatusNoContent)
		return
	}
	c.JSON(http.StatusOK, BanStatusResponse{
		Until:    ban.Until,
		Reason:   ban.Reason,
		IssuedAt: ban.IssuedAt,
	})
}

// runPurge handles POST /internal/purge, the external scheduler's entry.
func (s *Server) runPurge(c *gin.Context) {
	deleted, err := s.purger.Purge(c.Request.Context(), time.Now().UTC())
	if err != nil {
		s.log.Error().Err(err).Msg("purge failed")
		c.JSON(http.StatusServiceUnavailable, ErrorResponse{
			Code:    "store_unavailable",
			Message: "purge failed, retry next cycle",
		})
		return
	}
	c.JSON(http.StatusOK, PurgeResponse{Deleted: deleted})
}

// reloadRules handles POST /internal/rules/reload.
func (s *Server) reloadRules(c *gin.Context) {
	if err := s.rules.Reload(c.Request.Context()); err != nil {
		s.log.Error().Err(err).Msg("ruleset reload failed")
		c.JSON(http.StatusServiceUnavailable, ErrorResponse{
			Code:    "store_unavailable",
			Message: "ruleset reload failed, previous rules remain active",
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{"rules": s.rules.RuleCount()})
}
