package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mmdatafocus/pharmacy_backend/config"
	"github.com/mmdatafocus/pharmacy_backend/utils"
	"github.com/mmdatafocus/pharmacy_backend/workflow"
	"github.com/spf13/cobra"
)

var (
	ndpsProductId int
	ndpsFrom      string
	ndpsTo        string
	dispatchLoop  bool
)

var recomputeNDPSCmd = &cobra.Command{
	Use:   "recompute-ndps",
	Short: "Rebuild the opening/closing chain of a product's NDPS register",
	RunE: func(cmd *cobra.Command, args []string) error {
		if ndpsProductId <= 0 {
			return fmt.Errorf("--product-id is required")
		}
		today := utils.Today()
		start := today.AddDate(0, -1, 0)
		end := today
		var err error
		if ndpsFrom != "" {
			if start, err = utils.ParseDate(ndpsFrom); err != nil {
				return fmt.Errorf("invalid --from: %w", err)
			}
		}
		if ndpsTo != "" {
			if end, err = utils.ParseDate(ndpsTo); err != nil {
				return fmt.Errorf("invalid --to: %w", err)
			}
		}
		db, err := connect()
		if err != nil {
			return err
		}
		entries, err := workflow.RecomputeNDPSDaily(systemContext(cmd.Context()), db, ndpsProductId, start, end)
		if err != nil {
			return err
		}
		return printJSON(entries)
	},
}

var dispatchCmd = &cobra.Command{
	Use:   "dispatch-notifications",
	Short: "Publish pending notification outbox rows to Pub/Sub",
	RunE: func(cmd *cobra.Command, args []string) error {
		if !config.PubSubConfigured() {
			return fmt.Errorf("NOTIFICATION_TOPIC and PUBSUB_PROJECT_ID must be set")
		}
		db, err := connect()
		if err != nil {
			return err
		}
		d := workflow.NewOutboxDispatcher(db, config.GetLogger())
		if dispatchLoop {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			d.Run(ctx)
			return nil
		}
		started := time.Now()
		sent, err := d.DispatchOnce(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Printf("published %d notification(s) in %s\n", sent, time.Since(started).Round(time.Millisecond))
		return nil
	},
}

func init() {
	recomputeNDPSCmd.Flags().IntVar(&ndpsProductId, "product-id", 0, "Required: NDPS product id")
	recomputeNDPSCmd.Flags().StringVar(&ndpsFrom, "from", "", "Start date YYYY-MM-DD (default one month ago)")
	recomputeNDPSCmd.Flags().StringVar(&ndpsTo, "to", "", "End date YYYY-MM-DD (default today)")
	dispatchCmd.Flags().BoolVar(&dispatchLoop, "loop", false, "Keep polling until interrupted")
	rootCmd.AddCommand(recomputeNDPSCmd, dispatchCmd)
}
