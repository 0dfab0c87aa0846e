package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/joho/godotenv"
	"github.com/mentorhive/mentorhive/internal/clock"
	"github.com/mentorhive/mentorhive/internal/config"
	"github.com/mentorhive/mentorhive/internal/logger"
	"github.com/mentorhive/mentorhive/internal/migration"
	"github.com/mentorhive/mentorhive/internal/server"
	"github.com/mentorhive/mentorhive/pkg/db"
	"go.uber.org/fx"
)

func main() {
	_ = godotenv.Load()

	app := fx.New(
		config.Module,
		logger.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		clock.Module,
		migration.Module,
		server.Module,
	)
	app.Run()
}

func RegisterSnowflake() *snowflake.Node {
	node, err := snowflake.NewNode(1)
	if err != nil {
		panic(err)
	}
	return node
}
