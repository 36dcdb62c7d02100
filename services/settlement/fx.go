package settlement

import (
	"payouts-controlplane/services/eligibility"

	"go.uber.org/fx"
)

var Module = fx.Module("settlement.service",
	fx.Provide(
		NewService,
		func(s *eligibility.Service) Eligibility { return s },
	),
	fx.Invoke(RegisterRoutes),
)

var Worker = fx.Module("settlement.worker",
	fx.Provide(
		NewService,
		func(s *eligibility.Service) Eligibility { return s },
	),
	fx.Invoke(RegisterTaskHandlers),
)
