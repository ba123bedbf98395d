package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

type listPendingQuery struct {
	Limit  int `form:"limit"`
	Offset int `form:"offset"`
}

func (s *Server) ListPendingReview(c *gin.Context) {
	var query listPendingQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	letters, err := s.letterSvc.ListPendingReview(c.Request.Context(), query.Limit, query.Offset)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"letters": letters})
}

func (s *Server) ClaimLetter(c *gin.Context) {
	p, ok := mustPrincipal(c)
	if !ok {
		return
	}
	letterID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	letter, err := s.letterSvc.Claim(c.Request.Context(), letterID, p.ID)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"letter": letter})
}

func (s *Server) ReleaseLetter(c *gin.Context) {
	p, ok := mustPrincipal(c)
	if !ok {
		return
	}
	letterID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	letter, err := s.letterSvc.Release(c.Request.Context(), letterID, p.ID)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"letter": letter})
}

type approveLetterRequest struct {
	FinalContent string `json:"final_content" binding:"required"`
	Notes        string `json:"notes"`
}

func (s *Server) ApproveLetter(c *gin.Context) {
	p, ok := mustPrincipal(c)
	if !ok {
		return
	}
	letterID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	var req approveLetterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	letter, err := s.letterSvc.Approve(c.Request.Context(), letterID, p.ID, req.FinalContent, req.Notes)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"letter": letter})
}

type rejectLetterRequest struct {
	Reason string `json:"reason" binding:"required"`
}

func (s *Server) RejectLetter(c *gin.Context) {
	p, ok := mustPrincipal(c)
	if !ok {
		return
	}
	letterID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	var req rejectLetterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	letter, err := s.letterSvc.Reject(c.Request.Context(), letterID, p.ID, req.Reason)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"letter": letter})
}
