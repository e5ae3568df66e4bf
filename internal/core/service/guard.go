package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/raven-oracle/portal/internal/core/domain"
	"github.com/raven-oracle/portal/internal/core/ports"
)

// adminGuard checks administrative authority against the stored AdminRole
// relation, never against token claims alone.
type adminGuard struct {
	roles ports.AdminRoleRepository
}

func (g adminGuard) isAdmin(ctx context.Context, userID string) (bool, error) {
	if userID == "" {
		return false, nil
	}
	if _, err := g.roles.Find(ctx, userID); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return false, nil
		}
		return false, fmt.Errorf("find admin role: %w", err)
	}
	return true, nil
}

// require rejects actors that do not hold an AdminRole.
func (g adminGuard) require(ctx context.Context, actor domain.Actor) error {
	ok, err := g.isAdmin(ctx, actor.UserID)
	if err != nil {
		return err
	}
	if !ok {
		return domain.ErrUnauthorized
	}
	return nil
}

func utcNow() time.Time { return time.Now().UTC() }

// publish enqueues a change event. A nil publisher drops it.
func publish(pub ports.EventPublisher, topic, kind, id string, payload any, at time.Time) {
	if pub == nil {
		return
	}
	ev := ports.ChangeEvent{Topic: topic, Kind: kind, ID: id, At: at}
	if payload != nil {
		if raw, err := json.Marshal(payload); err == nil {
			ev.Payload = raw
		}
	}
	pub.Enqueue(ev)
}
