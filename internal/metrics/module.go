package metrics

import "go.uber.org/fx"

// Module provides the Metric Calculator for the fx application.
var Module = fx.Options(
	fx.Provide(New),
)
