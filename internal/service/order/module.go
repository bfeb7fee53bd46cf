package order

import "go.uber.org/fx"

// Module provides the checkout and order lookup service to Fx.
var Module = fx.Provide(NewService)
