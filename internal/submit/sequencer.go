// Package submit serializes outgoing ledger transactions for the single
// signing account: nonce issuance, the serial job queue, and the synchronous
// and fire-and-forget submission paths on top of them.
package submit

import (
	"context"
	"sync"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// NonceReader is the account-state read the sequencer seeds itself from.
type NonceReader interface {
	AccountNonce(ctx context.Context, address string) (uint64, error)
}

// seedRetryDelay paces retries of the account-state read. Overridden in tests.
var seedRetryDelay = 500 * time.Millisecond

// Sequencer issues strictly increasing nonces for the signing account. The
// cache is seeded lazily from the remote account state and invalidated by
// Reset whenever a submission fails: the failed transaction may or may not
// have consumed a nonce on-chain, so the only safe move is to re-read.
//
// All callers go through the serial queue, so the mutex is belt-and-braces
// for the rare direct uses in tests and shutdown paths.
type Sequencer struct {
	mu      sync.Mutex
	reader  NonceReader
	address string
	cached  uint64
	seeded  bool
	logger  *zap.Logger
}

func NewSequencer(reader NonceReader, address string, logger *zap.Logger) *Sequencer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Sequencer{
		reader:  reader,
		address: address,
		logger:  logger.Named("sequencer"),
	}
}

// NextNonce returns the next unused nonce and advances the cache. When the
// cache is cold it performs one blocking read of the account state; a failed
// read propagates to the caller rather than handing out a guessed value.
func (s *Sequencer) NextNonce(ctx context.Context) (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.seeded {
		var fetched uint64
		err := retry.Do(
			func() error {
				n, err := s.reader.AccountNonce(ctx, s.address)
				if err != nil {
					return err
				}
				fetched = n
				return nil
			},
			retry.Attempts(3),
			retry.Delay(seedRetryDelay),
			retry.DelayType(retry.BackOffDelay),
			retry.Context(ctx),
			retry.LastErrorOnly(true),
		)
		if err != nil {
			return 0, errors.Wrap(err, "seed nonce from account state")
		}
		s.cached = fetched
		s.seeded = true
		s.logger.Info("nonce cache seeded", zap.Uint64("nonce", fetched))
	}

	nonce := s.cached
	s.cached++
	return nonce, nil
}

// Reset clears the cached counter; the next NextNonce call re-reads from the
// gateway.
func (s *Sequencer) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.seeded {
		s.logger.Debug("nonce cache invalidated", zap.Uint64("discarded_next", s.cached))
	}
	s.seeded = false
	s.cached = 0
}
