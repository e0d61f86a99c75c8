package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/shelfpay/internal/clock"
	"github.com/smallbiznis/shelfpay/internal/config"
	"github.com/smallbiznis/shelfpay/internal/migration"
	"github.com/smallbiznis/shelfpay/internal/observability"
	"github.com/smallbiznis/shelfpay/internal/scheduler"
	"github.com/smallbiznis/shelfpay/internal/server"
	"github.com/smallbiznis/shelfpay/pkg/db"
	"go.uber.org/fx"
)

func main() {
	app := fx.New(
		config.Module,
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		migration.Module,
		clock.Module,
		server.Module,
		scheduler.Module,
	)
	app.Run()
}

func RegisterSnowflake(cfg config.Config) (*snowflake.Node, error) {
	return snowflake.NewNode(cfg.NodeID)
}
