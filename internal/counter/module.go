package counter

import "go.uber.org/fx"

// Module provides Counter Ingest for the fx application.
var Module = fx.Options(
	fx.Provide(New),
)
