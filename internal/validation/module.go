package validation

import "go.uber.org/fx"

// Module provides the Validator for the fx application.
var Module = fx.Options(
	fx.Provide(New),
)
