package services

import (
	"time"

	"ptaportal_go/database"
	"ptaportal_go/services/billing"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// Scheduler runs the portal's recurring maintenance: flushing the Redis
// audit-log queue, archiving old logs to S3, and reconciling the fund month
// buckets against their source rows.
type Scheduler struct {
	cron       *cron.Cron
	logArchive *LogArchiveService
}

func NewScheduler() *Scheduler {
	return &Scheduler{
		cron:       cron.New(),
		logArchive: NewLogArchiveService(),
	}
}

// Start registers the jobs and starts the cron loop.
func (s *Scheduler) Start() error {
	// Nightly at 02:00: flush write-behind audit logs into the database.
	if _, err := s.cron.AddFunc("0 2 * * *", func() {
		if err := s.logArchive.FlushCachedLogsToDatabase(); err != nil {
			logrus.WithError(err).Warn("Scheduled log flush failed")
		}
	}); err != nil {
		return err
	}

	// Weekly on Sunday at 03:00: archive logs older than 30 days to S3.
	if _, err := s.cron.AddFunc("0 3 * * 0", func() {
		if err := s.logArchive.ArchiveOldLogs(30); err != nil {
			logrus.WithError(err).Warn("Scheduled log archive failed")
		}
	}); err != nil {
		return err
	}

	// Nightly at 03:30: rebuild the current and previous fund month from the
	// underlying payment, donation and expense rows. Catches any drift from
	// deleted rows or partial failures.
	if _, err := s.cron.AddFunc("30 3 * * *", s.reconcileFunds); err != nil {
		return err
	}

	s.cron.Start()
	logrus.Info("Maintenance scheduler started")
	return nil
}

// Stop stops the cron loop, waiting for running jobs.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
}

func (s *Scheduler) reconcileFunds() {
	now := time.Now()
	months := []time.Time{now, now.AddDate(0, -1, 0)}
	for _, m := range months {
		err := database.DB.Transaction(func(tx *gorm.DB) error {
			return billing.RecomputeFundMonth(tx, m.Year(), int(m.Month()))
		})
		if err != nil {
			logrus.WithError(err).WithFields(logrus.Fields{
				"year":  m.Year(),
				"month": int(m.Month()),
			}).Warn("Scheduled fund reconciliation failed")
		}
	}
}
