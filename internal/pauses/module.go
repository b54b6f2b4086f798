package pauses

import "go.uber.org/fx"

// Module provides the Pause Engine for the fx application.
var Module = fx.Options(
	fx.Provide(New),
)
