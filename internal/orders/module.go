package orders

import "go.uber.org/fx"

// Module provides the Order Engine for the fx application.
var Module = fx.Options(
	fx.Provide(New),
)
