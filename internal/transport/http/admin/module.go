package admin

import "go.uber.org/fx"

// Module wires the cache administration endpoints.
var Module = fx.Options(
	fx.Provide(NewHandler),
	fx.Invoke(Register),
)
