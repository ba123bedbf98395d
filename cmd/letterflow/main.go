package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/counselkit/letterflow/internal/allowance"
	"github.com/counselkit/letterflow/internal/audit"
	"github.com/counselkit/letterflow/internal/billing"
	"github.com/counselkit/letterflow/internal/clock"
	"github.com/counselkit/letterflow/internal/commission"
	"github.com/counselkit/letterflow/internal/config"
	"github.com/counselkit/letterflow/internal/coupon"
	"github.com/counselkit/letterflow/internal/letter"
	"github.com/counselkit/letterflow/internal/metrics"
	"github.com/counselkit/letterflow/internal/migration"
	"github.com/counselkit/letterflow/internal/scheduler"
	"github.com/counselkit/letterflow/internal/server"
	"github.com/counselkit/letterflow/pkg/db"
	"github.com/counselkit/letterflow/pkg/log"
	"github.com/counselkit/letterflow/pkg/telemetry"
	"go.uber.org/fx"
)

func main() {
	app := fx.New(
		// Core infrastructure
		config.Module,
		log.Module,
		telemetry.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		clock.Module,
		migration.Module,
		metrics.Module,

		// Functional domains
		audit.Module,
		allowance.Module,
		letter.Module,
		coupon.Module,
		commission.Module,
		billing.Module,

		scheduler.Module,
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
