package inventory

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/fixpoint-hq/fixpoint/internal/audit"
	"github.com/fixpoint-hq/fixpoint/internal/shared"
)

// RepositoryPort abstracts repository usage for the service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	GetItem(ctx context.Context, itemID uuid.UUID) (Item, error)
	ListAdjustments(ctx context.Context, itemID uuid.UUID, limit int) ([]Adjustment, error)
	ListPartUsages(ctx context.Context, jobID uuid.UUID) ([]PartUsage, error)
	SumAdjustmentDeltas(ctx context.Context, itemID uuid.UUID) (int64, error)
}

// AuditPort abstracts the audit trail sink.
type AuditPort interface {
	Record(ctx context.Context, entry audit.Entry) error
}

// Service owns item stock quantity. Every mutation runs in one local
// transaction against a locked item row and appends exactly one
// adjustment.
type Service struct {
	repo        RepositoryPort
	audit       AuditPort
	events      EventHandler
	idempotency *shared.IdempotencyStore
	validate    *validator.Validate
	logger      *slog.Logger
}

// NewService builds Service. Audit, events and idempotency are optional.
func NewService(repo RepositoryPort, auditSink AuditPort, events EventHandler, idem *shared.IdempotencyStore, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		repo:        repo,
		audit:       auditSink,
		events:      events,
		idempotency: idem,
		validate:    validator.New(),
		logger:      logger,
	}
}

// AddStock raises quantity and appends an ADD adjustment.
func (s *Service) AddStock(ctx context.Context, input AddStockInput) (MovementResult, error) {
	if err := s.validate.Struct(input); err != nil {
		return MovementResult{}, shared.NewValidationError("add_stock", err.Error())
	}
	return s.applyMovement(ctx, movementParams{
		itemID:  input.ItemID,
		delta:   input.Quantity,
		adjType: AdjustmentAdd,
		reason:  input.Reason,
		actorID: input.ActorID,
		key:     input.Key,
	})
}

// DeductStock lowers quantity and appends a DEDUCT adjustment. It fails
// with InsufficientStockError when the locked quantity cannot cover the
// request, leaving the item untouched. When a job id is supplied, one
// PartUsage row is created snapshotting the item's current selling price.
func (s *Service) DeductStock(ctx context.Context, input DeductStockInput) (MovementResult, error) {
	if err := s.validate.Struct(input); err != nil {
		return MovementResult{}, shared.NewValidationError("deduct_stock", err.Error())
	}
	return s.applyMovement(ctx, movementParams{
		itemID:  input.ItemID,
		delta:   -input.Quantity,
		adjType: AdjustmentDeduct,
		reason:  input.Reason,
		actorID: input.ActorID,
		jobID:   input.JobID,
		key:     input.Key,
	})
}

// AdjustStock sets an absolute quantity as a manual correction. The
// adjustment type follows the direction of the change: MANUAL when
// raising, CORRECTION when lowering. Caller authorization is the
// surrounding system's concern.
func (s *Service) AdjustStock(ctx context.Context, input AdjustStockInput) (MovementResult, error) {
	if err := s.validate.Struct(input); err != nil {
		return MovementResult{}, shared.NewValidationError("adjust_stock", err.Error())
	}
	return s.applyMovement(ctx, movementParams{
		itemID:   input.ItemID,
		absolute: &input.NewQuantity,
		reason:   input.Reason,
		actorID:  input.ActorID,
		manual:   true,
		key:      input.Key,
	})
}

// GetItem returns a single item.
func (s *Service) GetItem(ctx context.Context, itemID uuid.UUID) (Item, error) {
	return s.repo.GetItem(ctx, itemID)
}

// ListAdjustments returns the newest adjustments for an item.
func (s *Service) ListAdjustments(ctx context.Context, itemID uuid.UUID, limit int) ([]Adjustment, error) {
	return s.repo.ListAdjustments(ctx, itemID, limit)
}

// ListPartUsages returns the parts consumed by a job, oldest first.
func (s *Service) ListPartUsages(ctx context.Context, jobID uuid.UUID) ([]PartUsage, error) {
	return s.repo.ListPartUsages(ctx, jobID)
}

// Reconcile verifies that the sum of signed adjustment deltas equals the
// item's current quantity. A mismatch is an invariant violation, not a
// business failure.
func (s *Service) Reconcile(ctx context.Context, itemID uuid.UUID) error {
	item, err := s.repo.GetItem(ctx, itemID)
	if err != nil {
		return err
	}
	sum, err := s.repo.SumAdjustmentDeltas(ctx, itemID)
	if err != nil {
		return err
	}
	if sum != item.Quantity {
		return shared.NewInvariantViolation("inventory ledger out of balance for %s: adjustments sum %d, quantity %d", item.Name, sum, item.Quantity)
	}
	return nil
}

type movementParams struct {
	itemID   uuid.UUID
	delta    int64
	absolute *int64
	adjType  AdjustmentType
	reason   string
	actorID  uuid.UUID
	jobID    uuid.UUID
	manual   bool
	key      string
}

func (s *Service) applyMovement(ctx context.Context, params movementParams) (MovementResult, error) {
	insertedKey := false
	if s.idempotency != nil && params.key != "" {
		if err := s.idempotency.CheckAndInsert(ctx, params.key, "inventory"); err != nil {
			return MovementResult{}, err
		}
		insertedKey = true
	}

	var (
		result  MovementResult
		item    Item
		adj     Adjustment
	)
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		item, err = tx.GetItemForUpdate(ctx, params.itemID)
		if err != nil {
			return err
		}
		if !item.IsActive {
			return ErrItemInactive
		}

		delta := params.delta
		adjType := params.adjType
		if params.absolute != nil {
			delta = *params.absolute - item.Quantity
			if delta == 0 {
				return shared.NewValidationError("new_quantity", "quantity unchanged")
			}
			if delta > 0 {
				adjType = AdjustmentManual
			} else {
				adjType = AdjustmentCorrection
			}
		}

		newQty := item.Quantity + delta
		if newQty < 0 {
			return &InsufficientStockError{ItemName: item.Name, Requested: -delta, Available: item.Quantity}
		}

		adj = Adjustment{
			ID:          uuid.New(),
			ItemID:      item.ID,
			Type:        adjType,
			Quantity:    abs(delta),
			OldQuantity: item.Quantity,
			NewQuantity: newQty,
			Reason:      params.reason,
			ActorID:     params.actorID,
			Manual:      params.manual,
		}
		if err := tx.InsertAdjustment(ctx, adj); err != nil {
			return err
		}

		if params.jobID != uuid.Nil {
			usage := PartUsage{
				ID:           uuid.New(),
				JobID:        params.jobID,
				ItemID:       item.ID,
				ItemName:     item.Name,
				HSNCode:      item.HSNCode,
				Unit:         item.Unit,
				GSTRate:      item.GSTRate,
				Quantity:     -delta,
				UnitPrice:    item.SellingPrice,
				TotalPrice:   item.SellingPrice.Mul(decimal.NewFromInt(-delta)),
				AdjustmentID: adj.ID,
			}
			if err := tx.InsertPartUsage(ctx, usage); err != nil {
				return err
			}
			result.PartUsageID = usage.ID
		}

		if err := tx.UpdateItemQuantity(ctx, item.ID, newQty); err != nil {
			return err
		}
		item.Quantity = newQty
		result.NewQuantity = newQty
		result.AdjustmentID = adj.ID
		result.LowStock = item.IsLowStock()
		return nil
	})
	if err != nil {
		if insertedKey {
			_ = s.idempotency.Delete(ctx, params.key)
		}
		return MovementResult{}, shared.MapLockError(err)
	}

	s.recordAudit(ctx, params, adj)
	s.emitEvents(ctx, item, adj, result)
	return result, nil
}

func (s *Service) recordAudit(ctx context.Context, params movementParams, adj Adjustment) {
	if s.audit == nil {
		return
	}
	entry := audit.Entry{
		ActorID:   params.actorID,
		Action:    fmt.Sprintf("inventory:%s", adj.Type),
		Entity:    "inventory_item",
		EntityID:  adj.ItemID.String(),
		OldValues: map[string]any{"quantity": adj.OldQuantity},
		NewValues: map[string]any{"quantity": adj.NewQuantity},
		Details: map[string]any{
			"adjustment_id": adj.ID.String(),
			"reason":        params.reason,
		},
	}
	if params.jobID != uuid.Nil {
		entry.Details["job_id"] = params.jobID.String()
	}
	if err := s.audit.Record(ctx, entry); err != nil {
		s.logger.Error("inventory audit write failed", slog.Any("error", err))
	}
}

func (s *Service) emitEvents(ctx context.Context, item Item, adj Adjustment, result MovementResult) {
	if s.events == nil {
		return
	}
	evt := MovementPostedEvent{
		Item:         item,
		Type:         adj.Type,
		Delta:        adj.Delta(),
		NewQuantity:  result.NewQuantity,
		AdjustmentID: adj.ID.String(),
	}
	if err := s.events.HandleMovementPosted(ctx, evt); err != nil {
		s.logger.Warn("movement event handler failed", slog.Any("error", err))
	}
	if result.LowStock {
		if err := s.events.HandleLowStock(ctx, LowStockEvent{Item: item, NewQuantity: result.NewQuantity}); err != nil {
			s.logger.Warn("low stock event handler failed", slog.Any("error", err))
		}
	}
}

func abs(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}

// IsInsufficientStock reports whether err is an InsufficientStockError.
func IsInsufficientStock(err error) bool {
	var ise *InsufficientStockError
	return errors.As(err, &ise)
}
