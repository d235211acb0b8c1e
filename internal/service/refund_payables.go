package service

import (
	"context"

	"github.com/boddenberg/acquiring-core-go/internal/domain"
	"github.com/boddenberg/acquiring-core-go/internal/port"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const effectRefundPayables = "refund_payables"

// refundPayables writes an offsetting refund payable for every credit payable
// of tx and asks the provider to reverse settlement of the ones not yet paid.
// Each payable is handled on its own: a failure is logged and skipped. The
// returned slice holds the refund payables that were written, in input order.
func (o *RefundOrchestrator) refundPayables(ctx context.Context, tx *domain.Transaction, aff *domain.Affiliation, connector port.Provider) []domain.Payable {
	payables, err := o.stores.Payables.ListPayables(ctx, tx.ID)
	if err != nil {
		o.effects.failed(ctx, effectRefundPayables, tx, err)
		return nil
	}

	now := o.now().UTC()
	results := make([]*domain.Payable, len(payables))

	var g errgroup.Group
	g.SetLimit(o.cfg.PayableConcurrency)
	for i := range payables {
		i := i
		original := &payables[i]
		if original.Type != domain.PayableTypeCredit {
			continue
		}
		g.Go(func() error {
			refund, created, err := o.stores.Payables.CreateRefundPayable(ctx, domain.RefundOf(original, o.newID(), now))
			if err != nil {
				o.payableFailed(ctx, tx, original, "create refund payable", err)
				return nil
			}
			if created && original.Status != domain.PayableStatusPaid {
				if err := connector.ProcessPayableRefund(ctx, aff, original); err != nil {
					o.payableFailed(ctx, tx, original, "reverse payable settlement", err)
					return nil
				}
			}
			results[i] = refund
			return nil
		})
	}
	_ = g.Wait()

	out := make([]domain.Payable, 0, len(results))
	for _, r := range results {
		if r != nil {
			out = append(out, *r)
		}
	}
	return out
}

func (o *RefundOrchestrator) payableFailed(ctx context.Context, tx *domain.Transaction, p *domain.Payable, step string, err error) {
	o.effects.failed(ctx, effectRefundPayables, tx, err,
		zap.String("payable_id", p.ID),
		zap.String("step", step),
	)
}
