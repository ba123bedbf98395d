package allowance

import (
	"github.com/counselkit/letterflow/internal/allowance/repository"
	"github.com/counselkit/letterflow/internal/allowance/service"
	"go.uber.org/fx"
)

var Module = fx.Module("allowance.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.NewService),
)
