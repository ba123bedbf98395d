package commission

import (
	"github.com/counselkit/letterflow/internal/commission/repository"
	"github.com/counselkit/letterflow/internal/commission/service"
	"go.uber.org/fx"
)

var Module = fx.Module("commission.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.NewService),
)
