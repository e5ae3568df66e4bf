package memory

import (
	"context"
	"sync"

	"github.com/raven-oracle/portal/internal/core/domain"
	"github.com/raven-oracle/portal/internal/core/ports"
)

// MessageRepository is an in-memory ports.MessageRepository. The log is kept
// in Seq order.
type MessageRepository struct {
	mu   sync.RWMutex
	log  []*domain.Message
	byID map[string]*domain.Message
	seq  int64
}

// NewMessageRepository returns an empty MessageRepository.
func NewMessageRepository() *MessageRepository {
	return &MessageRepository{byID: make(map[string]*domain.Message)}
}

func (r *MessageRepository) Append(_ context.Context, m *domain.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.byID[m.ID]; ok {
		return domain.ErrDuplicateKey
	}
	r.seq++
	m.Seq = r.seq
	cp := copyMessage(m)
	r.log = append(r.log, cp)
	r.byID[m.ID] = cp
	return nil
}

func (r *MessageRepository) FindByID(_ context.Context, id string) (*domain.Message, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	m, ok := r.byID[id]
	if !ok {
		return nil, domain.ErrMessageNotFound
	}
	return copyMessage(m), nil
}

func (r *MessageRepository) List(_ context.Context, q ports.MessageQuery) ([]*domain.Message, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*domain.Message, 0)
	for _, m := range r.log {
		if m.Seq <= q.AfterSeq {
			continue
		}
		if q.Viewer != nil && !q.Viewer.CanSee(m) {
			continue
		}
		out = append(out, copyMessage(m))
		if q.Limit > 0 && len(out) == q.Limit {
			break
		}
	}
	return out, nil
}

func (r *MessageRepository) Purge(_ context.Context) (int64, []string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var refs []string
	for _, m := range r.log {
		if m.Attachment != nil && m.Attachment.Ref != "" {
			refs = append(refs, m.Attachment.Ref)
		}
	}
	n := int64(len(r.log))
	r.log = nil
	r.byID = make(map[string]*domain.Message)
	return n, refs, nil
}

func copyMessage(m *domain.Message) *domain.Message {
	cp := *m
	if m.Attachment != nil {
		a := *m.Attachment
		cp.Attachment = &a
	}
	return &cp
}
