package submit

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/hashproof/chaincore/internal/chain"
)

// Gateway is the subset of the chain client the submission service uses.
type Gateway interface {
	SubmitTx(ctx context.Context, tx *chain.Transaction) (string, error)
	AccountNonce(ctx context.Context, address string) (uint64, error)
	TxStatus(ctx context.Context, txHash string) (string, error)
	Simulated() bool
	SenderAddress() string
}

// statusPollDelays paces the post-submission status checks for background
// jobs. Overridden in tests.
var statusPollDelays = []time.Duration{2 * time.Second, 4 * time.Second, 8 * time.Second}

// simulatedSender stands in for the signing account's address when no key
// material is configured. Simulated transactions never leave the process.
const simulatedSender = "sim_sender"

// Service is the submission front door: it owns the sequencer and the serial
// queue, and exposes the synchronous path (interactive certification — caller
// needs a hash or an error) and the fire-and-forget path (background registry
// jobs). Both paths run on the queue so nonce issuance stays single-writer.
type Service struct {
	builder *chain.Builder
	gateway Gateway
	seq     *Sequencer
	queue   *SerialQueue
	sender  string
	logger  *zap.Logger
}

func NewService(builder *chain.Builder, gateway Gateway, sender string, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	if sender == "" {
		sender = gateway.SenderAddress()
	}
	if sender == "" {
		sender = simulatedSender
	}

	seq := NewSequencer(gateway, sender, logger)
	return &Service{
		builder: builder,
		gateway: gateway,
		seq:     seq,
		queue:   NewSerialQueue(seq, logger),
		sender:  sender,
		logger:  logger.Named("submit"),
	}
}

// Queue exposes the serial queue for lifecycle wiring.
func (s *Service) Queue() *SerialQueue { return s.queue }

// Sequencer exposes the nonce sequencer, primarily for tests.
func (s *Service) Sequencer() *Sequencer { return s.seq }

// Sender returns the resolved signing-account address.
func (s *Service) Sender() string { return s.sender }

// SubmitAnchor submits a data-anchoring transaction and blocks until the
// gateway answers. An empty receiver anchors to the signing account itself.
func (s *Service) SubmitAnchor(ctx context.Context, receiver string, payload []byte, value string) (string, error) {
	return s.run(ctx, "anchor", func(qctx context.Context) (string, error) {
		nonce, err := s.seq.NextNonce(qctx)
		if err != nil {
			return "", err
		}
		tx, err := s.builder.BuildAnchor(s.sender, s.resolveReceiver(receiver), nonce, payload, value, 0)
		if err != nil {
			return "", err
		}
		return s.gateway.SubmitTx(qctx, tx)
	})
}

// SubmitCall submits a contract call and blocks until the gateway answers.
func (s *Service) SubmitCall(ctx context.Context, receiver, function string, args [][]byte, value string, gasLimit uint64) (string, error) {
	return s.run(ctx, "call:"+function, func(qctx context.Context) (string, error) {
		nonce, err := s.seq.NextNonce(qctx)
		if err != nil {
			return "", err
		}
		tx, err := s.builder.BuildCall(s.sender, s.resolveReceiver(receiver), nonce, function, args, value, gasLimit)
		if err != nil {
			return "", err
		}
		return s.gateway.SubmitTx(qctx, tx)
	})
}

// EnqueueCall schedules a contract call on the background queue and returns
// immediately. The outcome is logged, never reported back to the caller; a
// failure resets the sequencer and the queue moves on.
func (s *Service) EnqueueCall(label, receiver, function string, args [][]byte) {
	s.queue.Enqueue(Task{
		Label: label,
		Run: func(qctx context.Context) error {
			nonce, err := s.seq.NextNonce(qctx)
			if err != nil {
				return err
			}
			tx, err := s.builder.BuildCall(s.sender, s.resolveReceiver(receiver), nonce, function, args, "", 0)
			if err != nil {
				return err
			}
			txHash, err := s.gateway.SubmitTx(qctx, tx)
			if err != nil {
				return err
			}
			s.logger.Info("background call submitted",
				zap.String("job", label),
				zap.String("function", function),
				zap.String("tx_hash", txHash))
			go s.watchTxStatus(qctx, txHash, label)
			return nil
		},
	})
}

// run pushes fn through the serial queue but blocks the caller until the task
// completes, so synchronous submissions share the same nonce discipline as
// background jobs.
func (s *Service) run(ctx context.Context, label string, fn func(ctx context.Context) (string, error)) (string, error) {
	type outcome struct {
		hash string
		err  error
	}
	done := make(chan outcome, 1)

	s.queue.Enqueue(Task{
		Label: label,
		Run: func(qctx context.Context) error {
			hash, err := fn(qctx)
			done <- outcome{hash: hash, err: err}
			return err
		},
	})

	select {
	case out := <-done:
		return out.hash, out.err
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// watchTxStatus polls the gateway a few times and logs the final status.
// Purely informational: errors and timeouts are logged and dropped.
func (s *Service) watchTxStatus(ctx context.Context, txHash, label string) {
	for _, delay := range statusPollDelays {
		select {
		case <-ctx.Done():
			return
		case <-time.After(delay):
		}

		status, err := s.gateway.TxStatus(ctx, txHash)
		if err != nil {
			s.logger.Debug("transaction status check failed",
				zap.String("job", label),
				zap.String("tx_hash", txHash),
				zap.Error(err))
			continue
		}
		if status != "" && status != "pending" {
			s.logger.Info("transaction finalized",
				zap.String("job", label),
				zap.String("tx_hash", txHash),
				zap.String("status", status))
			return
		}
	}
	s.logger.Warn("transaction still pending after status checks",
		zap.String("job", label),
		zap.String("tx_hash", txHash))
}

func (s *Service) resolveReceiver(receiver string) string {
	if receiver == "" {
		return s.sender
	}
	return receiver
}
