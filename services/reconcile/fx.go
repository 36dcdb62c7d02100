package reconcile

import "go.uber.org/fx"

var Module = fx.Module("reconcile.service",
	fx.Provide(NewService, NewTrigger),
	fx.Invoke(RegisterRoutes),
)

// Worker registers the reconcile task handler on the asynq mux.
var Worker = fx.Module("reconcile.worker",
	fx.Provide(NewService),
	fx.Invoke(RegisterTaskHandlers),
)
