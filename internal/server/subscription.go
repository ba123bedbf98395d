package server

import (
	"errors"
	"net/http"

	allowancedomain "github.com/counselkit/letterflow/internal/allowance/domain"
	"github.com/gin-gonic/gin"
)

func (s *Server) GetSubscription(c *gin.Context) {
	p, ok := mustPrincipal(c)
	if !ok {
		return
	}

	active, err := s.allowanceSvc.GetActive(c.Request.Context(), p.ID)
	if err != nil {
		if errors.Is(err, allowancedomain.ErrNoActiveAllowance) {
			c.JSON(http.StatusOK, gin.H{"active": false})
			return
		}
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"active":            true,
		"plan_code":         active.PlanCode,
		"credits_remaining": active.CreditsRemaining,
		"period_start":      active.PeriodStart,
		"period_end":        active.PeriodEnd,
	})
}

func (s *Server) ListPlans(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"plans": s.plans.Current().Plans})
}
