package letter

import (
	"github.com/counselkit/letterflow/internal/letter/repository"
	"github.com/counselkit/letterflow/internal/letter/service"
	"go.uber.org/fx"
)

var Module = fx.Module("letter.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.NewService),
)
