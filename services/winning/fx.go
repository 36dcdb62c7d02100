package winning

import "go.uber.org/fx"

var Module = fx.Module("winning.service",
	fx.Provide(NewService),
	fx.Invoke(RegisterRoutes),
)
