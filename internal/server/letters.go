package server

import (
	"net/http"
	"strings"

	letterdomain "github.com/counselkit/letterflow/internal/letter/domain"
	"github.com/gin-gonic/gin"
)

func (s *Server) CreateLetter(c *gin.Context) {
	p, ok := mustPrincipal(c)
	if !ok {
		return
	}

	var req letterdomain.CreateLetterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	letter, err := s.letterSvc.Create(c.Request.Context(), p.ID, req)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"letter": letter})
}

type listLettersQuery struct {
	Status string `form:"status"`
	Limit  int    `form:"limit"`
	Offset int    `form:"offset"`
}

func (s *Server) ListLetters(c *gin.Context) {
	p, ok := mustPrincipal(c)
	if !ok {
		return
	}

	var query listLettersQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	letters, err := s.letterSvc.ListByOwner(c.Request.Context(), p.ID,
		letterdomain.Status(strings.TrimSpace(query.Status)), query.Limit, query.Offset)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"letters": letters})
}

func (s *Server) GetLetter(c *gin.Context) {
	p, ok := mustPrincipal(c)
	if !ok {
		return
	}
	letterID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	letter, err := s.letterSvc.GetByID(c.Request.Context(), letterID)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	// Owners see their own letters; reviewers and admins see any.
	if letter.UserID != p.ID && !p.CanReview() {
		AbortWithError(c, letterdomain.ErrNotOwner)
		return
	}
	c.JSON(http.StatusOK, gin.H{"letter": letter})
}

func (s *Server) SubmitLetter(c *gin.Context) {
	p, ok := mustPrincipal(c)
	if !ok {
		return
	}
	letterID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	result, err := s.letterSvc.SubmitForGeneration(c.Request.Context(), letterID, p.ID)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"letter":     result.Letter,
		"free_trial": result.FreeTrial,
		"remaining":  result.Remaining,
	})
}

func (s *Server) ResubmitLetter(c *gin.Context) {
	p, ok := mustPrincipal(c)
	if !ok {
		return
	}
	letterID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	letter, err := s.letterSvc.Resubmit(c.Request.Context(), letterID, p.ID)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"letter": letter})
}

type completeGenerationRequest struct {
	DraftContent string `json:"draft_content" binding:"required"`
}

func (s *Server) CompleteGeneration(c *gin.Context) {
	letterID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	var req completeGenerationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	letter, err := s.letterSvc.CompleteGeneration(c.Request.Context(), letterID, req.DraftContent)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"letter": letter})
}

type failGenerationRequest struct {
	Reason string `json:"reason"`
}

func (s *Server) FailGeneration(c *gin.Context) {
	letterID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	var req failGenerationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	letter, err := s.letterSvc.FailGeneration(c.Request.Context(), letterID, req.Reason)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"letter": letter})
}

func (s *Server) MarkDelivered(c *gin.Context) {
	letterID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	letter, err := s.letterSvc.MarkDelivered(c.Request.Context(), letterID)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"letter": letter})
}
