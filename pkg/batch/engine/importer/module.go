package importer

import "go.uber.org/fx"

// Module provides the Processor.
var Module = fx.Provide(NewProcessor)
