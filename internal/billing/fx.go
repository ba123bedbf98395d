package billing

import (
	"github.com/counselkit/letterflow/internal/billing/repository"
	"github.com/counselkit/letterflow/internal/billing/service"
	"go.uber.org/fx"
)

var Module = fx.Module("billing.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.NewService),
)
