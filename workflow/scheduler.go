package workflow

import (
	"context"
	"os"
	"sort"

	"github.com/mmdatafocus/pharmacy_backend/appctx"
	"github.com/mmdatafocus/pharmacy_backend/config"
	"github.com/mmdatafocus/pharmacy_backend/utils"
	"github.com/robfig/cron/v3"
	"gorm.io/gorm"
)

// ScheduledJob is a named scan with its cron expression.
type ScheduledJob struct {
	Name     string
	Schedule string
	Run      func(ctx context.Context, db *gorm.DB) (ScanResult, error)
}

func scheduleFromEnv(key string, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

// ScheduledJobs lists the scans. Schedules can be overridden per job through env.
func ScheduledJobs() map[string]ScheduledJob {
	return map[string]ScheduledJob{
		"expire-batch-lots": {
			Name:     "expire-batch-lots",
			Schedule: scheduleFromEnv("CRON_EXPIRE_BATCH_LOTS", "5 0 * * *"),
			Run:      RunExpireBatchLots,
		},
		"low-stock-scan": {
			Name:     "low-stock-scan",
			Schedule: scheduleFromEnv("CRON_LOW_STOCK_SCAN", "0 7 * * *"),
			Run:      RunLowStockScan,
		},
		"near-expiry-scan": {
			Name:     "near-expiry-scan",
			Schedule: scheduleFromEnv("CRON_NEAR_EXPIRY_SCAN", "30 7 * * *"),
			Run:      RunNearExpiryScan,
		},
	}
}

// RunScheduledJob runs one job as the system actor with a fresh correlation id.
func RunScheduledJob(ctx context.Context, db *gorm.DB, job ScheduledJob) (ScanResult, error) {
	ctx = utils.SetActorInContext(ctx, appctx.SystemActor)
	ctx = utils.SetCorrelationIdInContext(ctx, utils.CorrelationIdOrNew(context.Background()))
	result, err := job.Run(ctx, db)
	if err != nil {
		config.LogError(config.GetLogger(), "scheduler.go", "RunScheduledJob", job.Name, result, err)
	}
	return result, err
}

// StartScheduler registers every job on a new cron runner and starts it. Stop the returned
// runner on shutdown.
func StartScheduler(ctx context.Context, db *gorm.DB) (*cron.Cron, error) {
	c := cron.New()
	jobs := ScheduledJobs()
	names := make([]string, 0, len(jobs))
	for name := range jobs {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		job := jobs[name]
		if _, err := c.AddFunc(job.Schedule, func() {
			_, _ = RunScheduledJob(ctx, db, job)
		}); err != nil {
			return nil, err
		}
	}
	c.Start()
	return c, nil
}
