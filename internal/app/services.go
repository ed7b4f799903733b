package app

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/fixpoint-hq/fixpoint/internal/audit"
	"github.com/fixpoint-hq/fixpoint/internal/billing"
	"github.com/fixpoint-hq/fixpoint/internal/inventory"
	"github.com/fixpoint-hq/fixpoint/internal/jobcard"
	"github.com/fixpoint-hq/fixpoint/internal/notify"
	"github.com/fixpoint-hq/fixpoint/internal/sequence"
	"github.com/fixpoint-hq/fixpoint/internal/shared"
	"github.com/fixpoint-hq/fixpoint/jobs"
)

// Services is the wired service graph: every ledger service with its
// repository, the shared sequence source, the audit recorder and the
// notification bridge behind it.
type Services struct {
	Audit     *audit.Recorder
	Sequences *sequence.Service
	Inventory *inventory.Service
	JobCards  *jobcard.Service
	Billing   *billing.Service
	Notifier  notify.Notifier
}

// ServiceDeps carries the infrastructure a service graph is built on.
// TaskClient is optional; without it notifications fall back to the log
// instead of the queue. Metrics may be nil.
type ServiceDeps struct {
	Config     *Config
	Logger     *slog.Logger
	Pool       *pgxpool.Pool
	Redis      *redis.Client
	Metrics    notify.Metrics
	TaskClient *jobs.Client
}

// BuildServices wires the full graph from configuration: the secret box
// from ENCRYPTION_KEY, the OTP limiter from the attempt budget, the
// sequence repository with the financial-year fallback, and the event
// bridge feeding the notification queue and the domain counters.
func BuildServices(deps ServiceDeps) (*Services, error) {
	cfg := deps.Config
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	secrets, err := shared.NewSecretBoxFromBase64(cfg.EncryptionKey)
	if err != nil {
		return nil, fmt.Errorf("encryption key: %w", err)
	}

	var notifier notify.Notifier = &notify.SlogNotifier{Logger: logger}
	if deps.TaskClient != nil {
		notifier = notify.NewAsynqNotifier(deps.TaskClient)
	}
	bridge := notify.NewBridge(notifier, deps.Metrics)

	recorder := audit.NewRecorder(deps.Pool, logger)
	numbers := sequence.NewService(sequence.NewRepository(deps.Pool, cfg.LockTimeout, time.Month(cfg.FYStartMonth)))

	inventorySvc := inventory.NewService(
		inventory.NewRepository(deps.Pool, cfg.LockTimeout),
		recorder, bridge, shared.NewIdempotencyStore(deps.Pool), logger)

	limiter := jobcard.NewOTPLimiter(deps.Redis, cfg.OTPMaxAttempts, cfg.OTPWindow)
	jobcardSvc := jobcard.NewService(
		jobcard.NewRepository(deps.Pool, cfg.LockTimeout),
		numbers, inventorySvc, recorder, bridge, secrets, limiter, logger)
	jobcardSvc.SetOTPLength(cfg.OTPLength)

	directory := billing.NewDirectory(deps.Pool)
	billingSvc := billing.NewService(
		billing.NewRepository(deps.Pool, cfg.LockTimeout),
		numbers, jobcardSvc, inventorySvc, directory, directory, recorder, bridge, logger)

	return &Services{
		Audit:     recorder,
		Sequences: numbers,
		Inventory: inventorySvc,
		JobCards:  jobcardSvc,
		Billing:   billingSvc,
		Notifier:  notifier,
	}, nil
}
