package catalog

import "go.uber.org/fx"

// Module wires the read-only catalog handlers.
var Module = fx.Options(
	fx.Provide(NewHandler),
	fx.Invoke(Register),
)
