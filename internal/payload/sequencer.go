package payload

import (
	"context"
	"errors"
	"fmt"

	"hl-order-engine/internal/metrics"
	"hl-order-engine/internal/order"

	"go.uber.org/zap"
)

type Sequencer struct {
	submitter Submitter
	log       *zap.Logger
	metrics   *metrics.Metrics
	notifier  Notifier
}

func NewSequencer(submitter Submitter, log *zap.Logger, m *metrics.Metrics, notifier Notifier) *Sequencer {
	if log == nil {
		log = zap.NewNop()
	}
	if m == nil {
		m = metrics.NewNoop()
	}
	return &Sequencer{submitter: submitter, log: log, metrics: m, notifier: notifier}
}

// Execute runs plan one step at a time. A failure before anything took
// effect is a *order.SubmissionError. A failure after at least one step
// succeeded is a *order.PartialSequenceError listing what completed;
// nothing is rolled back.
func (s *Sequencer) Execute(ctx context.Context, plan Plan) (Report, error) {
	if s.submitter == nil {
		return Report{}, &order.SubmissionError{Step: "submit", Err: errors.New("submitter is required")}
	}
	var report Report
	cancelled := false
	replaced := false
	for _, step := range plan.Steps {
		log := s.log.With(zap.String("symbol", plan.Symbol), zap.String("step", string(step.Kind)))
		res, err := s.run(ctx, step)
		if err != nil {
			if step.Order != nil {
				s.metrics.OrdersFailed.Inc()
			}
			if len(report.Completed) == 0 {
				log.Warn("submission failed", zap.Error(err))
				return report, &order.SubmissionError{Step: string(step.Kind), Err: err}
			}
			partial := &order.PartialSequenceError{
				Completed:   stepNames(report.Completed),
				Step:        string(step.Kind),
				Unprotected: cancelled && !replaced,
				Err:         err,
			}
			s.metrics.PartialSequences.Inc()
			if partial.Unprotected {
				s.metrics.UnprotectedPositions.Inc()
			}
			log.Error("submission sequence left incomplete",
				zap.Strings("completed", partial.Completed),
				zap.Bool("unprotected", partial.Unprotected),
				zap.Error(err),
			)
			s.alert(ctx, plan.Symbol, partial)
			return report, partial
		}
		switch step.Kind {
		case StepLeverage:
			s.metrics.LeverageUpdates.Inc()
			log.Info("leverage updated", zap.Int("leverage", step.Leverage.Leverage), zap.Bool("cross", step.Leverage.IsCross))
		case StepCancel:
			cancelled = true
			for range step.Cancels {
				s.metrics.ConditionalsCancelled.Inc()
			}
			log.Info("conditional orders cancelled", zap.Int("count", len(step.Cancels)))
		default:
			if step.Kind == StepTakeProfit || step.Kind == StepStopLoss {
				replaced = true
			}
			s.metrics.OrdersPlaced.Inc()
			report.Orders = append(report.Orders, res)
			log.Info("order placed",
				zap.String("side", string(step.Order.Side)),
				zap.String("price", step.Order.Price),
				zap.String("size", step.Order.Size),
				zap.Int64("oid", res.OrderID),
				zap.String("status", res.Status),
			)
		}
		report.Completed = append(report.Completed, step.Kind)
	}
	return report, nil
}

func (s *Sequencer) run(ctx context.Context, step Step) (Result, error) {
	switch {
	case step.Leverage != nil:
		return Result{}, s.submitter.UpdateLeverage(ctx, *step.Leverage)
	case len(step.Cancels) > 0:
		return Result{}, s.submitter.CancelOrders(ctx, step.Cancels)
	case step.Order != nil:
		return s.submitter.PlaceOrder(ctx, *step.Order)
	default:
		return Result{}, fmt.Errorf("empty step %s", step.Kind)
	}
}

func (s *Sequencer) alert(ctx context.Context, symbol string, partial *order.PartialSequenceError) {
	if s.notifier == nil {
		return
	}
	msg := fmt.Sprintf("%s: %s", symbol, partial.Error())
	if err := s.notifier.Send(ctx, msg); err != nil {
		s.log.Warn("partial sequence alert failed", zap.Error(err))
	}
}

func stepNames(kinds []StepKind) []string {
	out := make([]string, len(kinds))
	for i, k := range kinds {
		out[i] = string(k)
	}
	return out
}
