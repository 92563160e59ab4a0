// Package main runs the impedance controller against a simulated arm and serves its REST and
// telemetry APIs.
package main

import (
	"go.viam.com/utils"

	"go.viam.com/impedance/logging"
	"go.viam.com/impedance/web/server"
)

var logger = logging.NewDebugLogger("entrypoint")

func main() {
	logging.ReplaceGlobal(logger)
	utils.ContextualMain(server.RunServer, logger)
}
