package acumula

import "go.uber.org/fx"

// Module provides the Acumula Engine for the fx application.
var Module = fx.Options(
	fx.Provide(New),
)
