package main

import (
	"context"
	"fmt"
	"os"

	"github.com/mmdatafocus/pharmacy_backend/appctx"
	"github.com/mmdatafocus/pharmacy_backend/config"
	"github.com/mmdatafocus/pharmacy_backend/utils"
	"github.com/spf13/cobra"
	"gorm.io/gorm"
)

var rootCmd = &cobra.Command{
	Use:          "pharmacy-cli",
	Short:        "Maintenance commands for the pharmacy inventory ledger",
	SilenceUsage: true,
}

// connect opens the database from env the same way the API server does.
func connect() (*gorm.DB, error) {
	config.ConnectDatabaseWithRetry()
	db := config.GetDB()
	if db == nil {
		return nil, fmt.Errorf("database not initialized")
	}
	return db, nil
}

// systemContext carries the system actor so ledger rows written from the CLI are attributed.
func systemContext(ctx context.Context) context.Context {
	ctx = utils.SetActorInContext(ctx, appctx.SystemActor)
	return utils.SetCorrelationIdInContext(ctx, utils.CorrelationIdOrNew(ctx))
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
