package server

import (
	"net/http"

	coupondomain "github.com/counselkit/letterflow/internal/coupon/domain"
	"github.com/gin-gonic/gin"
)

type listCommissionsQuery struct {
	Limit  int `form:"limit"`
	Offset int `form:"offset"`
}

func (s *Server) ListCommissions(c *gin.Context) {
	p, ok := mustPrincipal(c)
	if !ok {
		return
	}

	var query listCommissionsQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	dashboard, err := s.commissionSvc.Dashboard(c.Request.Context(), p.ID, query.Limit, query.Offset)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, dashboard)
}

func (s *Server) ListCoupons(c *gin.Context) {
	p, ok := mustPrincipal(c)
	if !ok {
		return
	}

	coupons, err := s.couponSvc.ListByEmployee(c.Request.Context(), p.ID)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"coupons": coupons})
}

func (s *Server) CreateCoupon(c *gin.Context) {
	p, ok := mustPrincipal(c)
	if !ok {
		return
	}

	var req coupondomain.CreateCouponRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	coupon, err := s.couponSvc.Create(c.Request.Context(), p.ID, req)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"coupon": coupon})
}
