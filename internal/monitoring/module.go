package monitoring

import "go.uber.org/fx"

// Module provides the metrics Collector for the fx application.
var Module = fx.Options(
	fx.Provide(New),
)
