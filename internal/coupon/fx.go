package coupon

import (
	"github.com/counselkit/letterflow/internal/coupon/repository"
	"github.com/counselkit/letterflow/internal/coupon/service"
	"go.uber.org/fx"
)

var Module = fx.Module("coupon.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.NewService),
)
