package services

import (
	"billstack/internal/core"
	"billstack/internal/log"
	"billstack/internal/metrics"
)

// Engine wires every service over one repository.
type Engine struct {
	Repo        *Repository
	Ledger      *Ledger
	Txns        *TransactionLog
	Bookkeeper  *Bookkeeper
	Bills       *BillBook
	Scheduler   *Scheduler
	Coordinator *PaymentCoordinator
	Reconciler  *Reconciler
	Reports     *Reports
}

type EngineConfig struct {
	Clock     core.Clock
	Anchor    CadenceAnchor
	Logger    *log.Logger
	Metrics   *metrics.Metrics
	Publisher EventPublisher
}

func NewEngine(repo *Repository, cfg EngineConfig) *Engine {
	if cfg.Clock == nil {
		cfg.Clock = core.SystemClock{}
	}
	if cfg.Logger == nil {
		cfg.Logger = log.Nop()
	}

	ledger := NewLedger(repo, cfg.Clock, cfg.Logger)
	txns := NewTransactionLog(repo, cfg.Clock, cfg.Logger)
	scheduler := NewScheduler(repo, cfg.Clock, cfg.Anchor, cfg.Logger)

	opts := []CoordinatorOption{WithMetrics(cfg.Metrics)}
	if cfg.Publisher != nil {
		opts = append(opts, WithPublisher(cfg.Publisher))
	}

	return &Engine{
		Repo:        repo,
		Ledger:      ledger,
		Txns:        txns,
		Bookkeeper:  NewBookkeeper(ledger, txns, cfg.Logger),
		Bills:       NewBillBook(repo, ledger, cfg.Clock, cfg.Logger),
		Scheduler:   scheduler,
		Coordinator: NewPaymentCoordinator(repo, ledger, txns, scheduler, cfg.Clock, cfg.Logger, opts...),
		Reconciler:  NewReconciler(repo, ledger, txns, cfg.Metrics, cfg.Logger),
		Reports:     NewReports(txns, ledger),
	}
}
