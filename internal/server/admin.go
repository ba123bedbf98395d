package server

import (
	"net/http"
	"strings"

	auditdomain "github.com/counselkit/letterflow/internal/audit/domain"
	letterdomain "github.com/counselkit/letterflow/internal/letter/domain"
	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
)

type adminListLettersQuery struct {
	UserID string `form:"user_id"`
	Status string `form:"status"`
	Limit  int    `form:"limit"`
	Offset int    `form:"offset"`
}

func (s *Server) AdminListLetters(c *gin.Context) {
	var query adminListLettersQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	var letters []letterdomain.Letter
	var err error
	if raw := strings.TrimSpace(query.UserID); raw != "" {
		userID, parseErr := snowflake.ParseString(raw)
		if parseErr != nil {
			AbortWithError(c, newValidationError("user_id", "invalid_user_id", "invalid user_id"))
			return
		}
		letters, err = s.letterSvc.ListByOwner(c.Request.Context(), userID,
			letterdomain.Status(strings.TrimSpace(query.Status)), query.Limit, query.Offset)
	} else {
		letters, err = s.letterSvc.ListAll(c.Request.Context(),
			letterdomain.Status(strings.TrimSpace(query.Status)), query.Limit, query.Offset)
	}
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"letters": letters})
}

type adminListAuditQuery struct {
	LetterID string `form:"letter_id"`
	Action   string `form:"action"`
	ActorID  string `form:"actor_id"`
	Limit    int    `form:"limit"`
	Offset   int    `form:"offset"`
}

func (s *Server) AdminListAudit(c *gin.Context) {
	var query adminListAuditQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.auditSvc.List(c.Request.Context(), auditdomain.ListAuditRequest{
		LetterID: query.LetterID,
		Action:   query.Action,
		ActorID:  query.ActorID,
		Limit:    query.Limit,
		Offset:   query.Offset,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}
