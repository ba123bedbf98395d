package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
)

// CreateCouponRequest registers a new referral code for an employee.
type CreateCouponRequest struct {
	Code            string `json:"code" binding:"required"`
	DiscountPercent int    `json:"discount_percent" binding:"required"`
}

// CouponSummary pairs a coupon with its recent redemptions for the dashboard.
type CouponSummary struct {
	Coupon Coupon  `json:"coupon"`
	Usages []Usage `json:"usages"`
}

type Service interface {
	Create(ctx context.Context, employeeID snowflake.ID, req CreateCouponRequest) (Coupon, error)
	ListByEmployee(ctx context.Context, employeeID snowflake.ID) ([]CouponSummary, error)
}

var (
	ErrInvalidEmployee = errors.New("invalid_employee")
	ErrInvalidCode     = errors.New("invalid_code")
	ErrInvalidDiscount = errors.New("invalid_discount")
	ErrCodeTaken       = errors.New("code_taken")
	ErrCouponNotFound  = errors.New("coupon_not_found")
)
