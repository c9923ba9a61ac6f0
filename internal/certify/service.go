// Package certify is the orchestration boundary: it turns certification
// requests into anchoring transactions, background registry jobs, and webhook
// deliveries. The interactive caller always gets a transaction hash (real or
// simulated) or an explicit error, never a wait on background work.
package certify

import (
	"context"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/hashproof/chaincore/internal/chain"
	"github.com/hashproof/chaincore/internal/registry"
	"github.com/hashproof/chaincore/internal/submit"
	"github.com/hashproof/chaincore/internal/webhook"
)

type Service struct {
	store         *MemoryStore
	chainSvc      *submit.Service
	registry      *registry.Client
	hooks         *webhook.Engine
	network       string
	verifyBaseURL string
	explorerTxURL func(txHash string) string
	receiver      string
	logger        *zap.Logger
}

type Params struct {
	Store         *MemoryStore
	Chain         *submit.Service
	Registry      *registry.Client
	Hooks         *webhook.Engine
	Network       string
	VerifyBaseURL string
	ExplorerTxURL func(txHash string) string
	Receiver      string
	Logger        *zap.Logger
}

func NewService(p Params) *Service {
	logger := p.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	explorer := p.ExplorerTxURL
	if explorer == nil {
		explorer = func(string) string { return "" }
	}
	return &Service{
		store:         p.Store,
		chainSvc:      p.Chain,
		registry:      p.Registry,
		hooks:         p.Hooks,
		network:       p.Network,
		verifyBaseURL: strings.TrimRight(p.VerifyBaseURL, "/"),
		explorerTxURL: explorer,
		receiver:      p.Receiver,
		logger:        logger.Named("certify"),
	}
}

type Request struct {
	FileHash string
	Filename string
	Author   string
	Value    string

	WebhookURL    string
	WebhookSecret string
}

// Certify anchors the file hash on chain, records the certification, and
// kicks off background registry jobs and webhook delivery. Submitting the
// same file hash twice returns the original record without a second
// anchoring transaction or registry job.
func (s *Service) Certify(ctx context.Context, req Request) (*Certification, error) {
	if err := validateFileHash(req.FileHash); err != nil {
		return nil, err
	}
	fileHash := strings.ToLower(req.FileHash)

	if existing, ok := s.store.GetByFileHash(fileHash); ok {
		s.logger.Debug("certification already exists", zap.String("file_hash", fileHash))
		return existing, nil
	}

	payload := chain.AnchorPayload(fileHash, req.Filename, req.Author)
	txHash, err := s.chainSvc.SubmitAnchor(ctx, s.receiver, payload, req.Value)
	if err != nil {
		return nil, errors.Wrap(err, "anchor certification")
	}

	cert := &Certification{
		ID:        uuid.NewString(),
		FileHash:  fileHash,
		Filename:  req.Filename,
		Author:    req.Author,
		TxHash:    txHash,
		CreatedAt: time.Now().UTC(),
		Webhook:   webhook.DeliveryState{Status: webhook.StatusNotRequested},
	}
	stored, created := s.store.Create(cert)
	if !created {
		// Lost a race with an identical request; the first writer wins and
		// no second registry job is enqueued.
		return stored, nil
	}

	s.registry.EnqueueInitJob(stored.ID, payload)
	s.registry.EnqueueSubmitProof(stored.ID, fileHash)

	if req.WebhookURL != "" {
		if err := s.ScheduleWebhook(ctx, stored.ID, req.WebhookURL, req.WebhookSecret); err != nil {
			// Delivery problems never fail the certification itself.
			s.logger.Warn("webhook scheduling failed",
				zap.String("certification", stored.ID),
				zap.Error(err))
		}
		if refreshed, ok := s.store.Get(stored.ID); ok {
			stored = refreshed
		}
	}

	s.logger.Info("certification created",
		zap.String("certification", stored.ID),
		zap.String("tx_hash", txHash))
	return stored, nil
}

// ScheduleWebhook wires delivery for an existing certification. The secret is
// the caller's API-key hash; when empty, the engine's process-wide fallback
// secret signs the payload.
func (s *Service) ScheduleWebhook(ctx context.Context, certificationID, url, secret string) error {
	cert, ok := s.store.Get(certificationID)
	if !ok {
		return fmt.Errorf("certification %s not found", certificationID)
	}

	notice := s.buildNotice(cert)
	if err := s.store.SetWebhookTarget(cert.ID, url, secret, notice); err != nil {
		return err
	}
	return s.hooks.Schedule(ctx, cert.ID, url, secret, notice)
}

// Get returns a certification by id.
func (s *Service) Get(id string) (*Certification, bool) {
	return s.store.Get(id)
}

// GetByFileHash returns a certification by its file hash.
func (s *Service) GetByFileHash(hash string) (*Certification, bool) {
	return s.store.GetByFileHash(strings.ToLower(hash))
}

// RegistryStatus reads the on-chain registry status for a certification.
func (s *Service) RegistryStatus(ctx context.Context, certificationID string) (string, error) {
	if _, ok := s.store.Get(certificationID); !ok {
		return "", fmt.Errorf("certification %s not found", certificationID)
	}
	return s.registry.JobStatus(ctx, certificationID)
}

func (s *Service) buildNotice(cert *Certification) webhook.Notice {
	return webhook.Notice{
		Event:          webhook.EventCertificationCompleted,
		ProofID:        cert.ID,
		Status:         "certified",
		FileHash:       cert.FileHash,
		Filename:       cert.Filename,
		VerifyURL:      fmt.Sprintf("%s/%s", s.verifyBaseURL, cert.ID),
		CertificateURL: fmt.Sprintf("%s/%s/certificate", s.verifyBaseURL, cert.ID),
		Blockchain: webhook.BlockchainRef{
			Network:         s.network,
			TransactionHash: cert.TxHash,
			ExplorerURL:     s.explorerTxURL(cert.TxHash),
		},
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}
}

func validateFileHash(hash string) error {
	raw, err := hex.DecodeString(strings.ToLower(hash))
	if err != nil {
		return fmt.Errorf("file hash is not valid hex: %w", err)
	}
	if len(raw) != 32 {
		return fmt.Errorf("file hash must be 32 bytes (sha256), got %d", len(raw))
	}
	return nil
}
