package webhook

import (
	"payouts-controlplane/services/eligibility"
	"payouts-controlplane/services/settlement"

	"go.uber.org/fx"
)

var Module = fx.Module("webhook.service",
	fx.Provide(
		NewIngestor,
		func(s *settlement.Service) Settler { return s },
		func(s *eligibility.Service) EligibilityWriter { return s },
	),
	fx.Invoke(RegisterRoutes),
)
