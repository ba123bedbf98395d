package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
)

// DashboardResponse is the employee commission view: recent entries plus
// the running pending total.
type DashboardResponse struct {
	Commissions     []Commission `json:"commissions"`
	TotalCents      int64        `json:"total_cents"`
	TotalCommission float64      `json:"total_commission"`
}

type Service interface {
	Dashboard(ctx context.Context, employeeID snowflake.ID, limit, offset int) (DashboardResponse, error)
}

var ErrInvalidEmployee = errors.New("invalid_employee")
