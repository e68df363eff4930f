package main

import (
	"vigia/cmd/handlers"
	"vigia/internal/logger"
)

func main() {
	logger.Init() // Initialize the logger
	handlers.Execute()
}
