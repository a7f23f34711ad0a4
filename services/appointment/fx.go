package appointment

import "go.uber.org/fx"

var Module = fx.Module("appointment.module",
	fx.Provide(NewService),
)
