package order

import "go.uber.org/fx"

// Module wires the checkout and order lookup handlers.
var Module = fx.Options(
	fx.Provide(NewHandler),
	fx.Invoke(Register),
)
