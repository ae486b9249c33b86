package main

import (
	stdLog "log"
	"time"

	"github.com/Astemirdum/library-borrowing/borrowing/app"
	"github.com/Astemirdum/library-borrowing/borrowing/config"
	"github.com/joho/godotenv"
	"go.uber.org/zap/zapcore"
)

// @title        Library Borrowing API
// @version      1.0
// @BasePath     /api/v1
func main() {
	if err := godotenv.Load(); err != nil {
		stdLog.Println("no .env file, using environment:", err)
	}
	cfg := config.NewConfig(
		config.WithLogLevel(zapcore.DebugLevel),
		config.WithWriteTimeout(time.Minute),
	)

	app.Run(cfg)
}
