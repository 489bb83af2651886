package main

import (
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"

	"github.com/mmdatafocus/pharmacy_backend/workflow"
	"github.com/spf13/cobra"
)

var jobName string

var cronStartCmd = &cobra.Command{
	Use:   "cron:start",
	Short: "Start the scan scheduler or run a single job by name",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := connect()
		if err != nil {
			return err
		}
		ctx := systemContext(cmd.Context())
		if jobName != "" {
			job, ok := workflow.ScheduledJobs()[strings.ToLower(jobName)]
			if !ok {
				return fmt.Errorf("unknown job: %s (known: %s)", jobName, strings.Join(jobNames(), ", "))
			}
			fmt.Printf("Running job: %s\n", job.Name)
			result, err := workflow.RunScheduledJob(ctx, db, job)
			if err != nil {
				return err
			}
			return printJSON(result)
		}

		fmt.Println("Starting scheduler...")
		ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
		defer stop()
		c, err := workflow.StartScheduler(ctx, db)
		if err != nil {
			return err
		}
		fmt.Println("Scheduler started. Press Ctrl+C to exit.")
		<-ctx.Done()
		<-c.Stop().Done()
		return nil
	},
}

var listJobsCmd = &cobra.Command{
	Use:   "cron:list",
	Short: "List scheduled jobs and their cron expressions",
	Run: func(cmd *cobra.Command, args []string) {
		jobs := workflow.ScheduledJobs()
		for _, name := range jobNames() {
			fmt.Printf("%-20s %s\n", name, jobs[name].Schedule)
		}
	},
}

func jobNames() []string {
	jobs := workflow.ScheduledJobs()
	names := make([]string, 0, len(jobs))
	for name := range jobs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func init() {
	cronStartCmd.Flags().StringVarP(&jobName, "job", "j", "", "Run a single job by name and exit")
	rootCmd.AddCommand(cronStartCmd, listJobsCmd)
}
