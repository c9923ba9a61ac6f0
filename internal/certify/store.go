package certify

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/hashproof/chaincore/internal/webhook"
)

// Certification is a certified file's record: the anchored hash, the
// transaction that anchored it, and the webhook delivery bookkeeping.
type Certification struct {
	ID        string
	FileHash  string
	Filename  string
	Author    string
	TxHash    string
	CreatedAt time.Time

	WebhookURL    string
	WebhookSecret string
	WebhookNotice webhook.Notice
	Webhook       webhook.DeliveryState
}

// MemoryStore keeps certifications in process memory, keyed by id and
// deduplicated by file hash. It implements webhook.DeliveryStore and
// webhook.PendingLister so the delivery engine and sweeper work directly
// against certification records.
type MemoryStore struct {
	mu     sync.RWMutex
	byID   map[string]*Certification
	byHash map[string]string
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		byID:   make(map[string]*Certification),
		byHash: make(map[string]string),
	}
}

// Create inserts the certification unless one already exists for the same
// file hash. Returns the stored record and whether this call created it;
// submitting the same hash twice always yields the first record.
func (s *MemoryStore) Create(cert *Certification) (*Certification, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if id, ok := s.byHash[cert.FileHash]; ok {
		return copyCert(s.byID[id]), false
	}
	stored := copyCert(cert)
	s.byID[stored.ID] = stored
	s.byHash[stored.FileHash] = stored.ID
	return copyCert(stored), true
}

// Get returns the certification with the given id.
func (s *MemoryStore) Get(id string) (*Certification, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cert, ok := s.byID[id]
	if !ok {
		return nil, false
	}
	return copyCert(cert), true
}

// GetByFileHash returns the certification for a file hash.
func (s *MemoryStore) GetByFileHash(hash string) (*Certification, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.byHash[hash]
	if !ok {
		return nil, false
	}
	return copyCert(s.byID[id]), true
}

// SetWebhookTarget records the destination and payload used for delivery so
// the sweeper can re-schedule after a restart of the retry loop.
func (s *MemoryStore) SetWebhookTarget(id, url, secret string, notice webhook.Notice) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cert, ok := s.byID[id]
	if !ok {
		return fmt.Errorf("certification %s not found", id)
	}
	cert.WebhookURL = url
	cert.WebhookSecret = secret
	cert.WebhookNotice = notice
	return nil
}

// DeliveryState implements webhook.DeliveryStore.
func (s *MemoryStore) DeliveryState(_ context.Context, resourceID string) (webhook.DeliveryState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cert, ok := s.byID[resourceID]
	if !ok {
		return webhook.DeliveryState{}, fmt.Errorf("certification %s not found", resourceID)
	}
	return cert.Webhook, nil
}

// SetDeliveryState implements webhook.DeliveryStore.
func (s *MemoryStore) SetDeliveryState(_ context.Context, resourceID string, state webhook.DeliveryState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cert, ok := s.byID[resourceID]
	if !ok {
		return fmt.Errorf("certification %s not found", resourceID)
	}
	cert.Webhook = state
	return nil
}

// StalePendingDeliveries implements webhook.PendingLister.
func (s *MemoryStore) StalePendingDeliveries(_ context.Context, olderThan time.Duration, limit int) ([]webhook.PendingDelivery, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	cutoff := time.Now().UTC().Add(-olderThan)
	var out []webhook.PendingDelivery
	for _, cert := range s.byID {
		if limit > 0 && len(out) >= limit {
			break
		}
		if cert.Webhook.Status != webhook.StatusPending {
			continue
		}
		if cert.Webhook.LastAttemptAt.IsZero() || cert.Webhook.LastAttemptAt.After(cutoff) {
			continue
		}
		out = append(out, webhook.PendingDelivery{
			ResourceID: cert.ID,
			URL:        cert.WebhookURL,
			Secret:     cert.WebhookSecret,
			Notice:     cert.WebhookNotice,
		})
	}
	return out, nil
}

func copyCert(cert *Certification) *Certification {
	clone := *cert
	return &clone
}
