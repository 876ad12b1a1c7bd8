package main

import (
	"github.com/loreweave/backend/internal/server"
	"github.com/loreweave/backend/internal/util"
	"github.com/loreweave/backend/pkg/logger"
	"github.com/loreweave/backend/pkg/logger/console"

	_ "github.com/lib/pq"
)

func main() {
	util.LoadEnv()

	debug := util.GetEnvBool("DEBUG", false)

	consoleLogger := console.NewConsoleLogger(console.ConsoleLoggerParams{
		Debug: debug,
	})
	logger.Init(consoleLogger)

	server.Init()
}
