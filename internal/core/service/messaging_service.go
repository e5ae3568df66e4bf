package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/raven-oracle/portal/internal/api/metrics"
	"github.com/raven-oracle/portal/internal/core/domain"
	"github.com/raven-oracle/portal/internal/core/ports"
)

const (
	replayPage         = 500
	maxAttachmentName  = 255
	defaultContentType = "application/octet-stream"

	// defaultGapGrace bounds how long a subscriber waits for a missing Seq.
	// Seq is reserved before the insert lands, so a later message can become
	// visible first; a hole older than this is treated as lost or deleted.
	defaultGapGrace = 2 * time.Second
	minGapRetry     = 10 * time.Millisecond
)

// MessagingService implements the shared channel.
type MessagingService struct {
	messages ports.MessageRepository
	users    ports.UserRepository
	blobs    ports.BlobStore
	notifier ports.Notifier
	events   ports.EventPublisher
	guard    adminGuard
	log      zerolog.Logger
	now      func() time.Time
	gapGrace time.Duration

	// mu serialises stamping and appending so SentAt and Seq grow together.
	mu       sync.Mutex
	lastSent time.Time
}

// NewMessagingService returns a MessagingService.
func NewMessagingService(
	messages ports.MessageRepository,
	users ports.UserRepository,
	roles ports.AdminRoleRepository,
	blobs ports.BlobStore,
	notifier ports.Notifier,
	events ports.EventPublisher,
	log zerolog.Logger,
) *MessagingService {
	return &MessagingService{
		messages: messages,
		users:    users,
		blobs:    blobs,
		notifier: notifier,
		events:   events,
		guard:    adminGuard{roles: roles},
		log:      log,
		now:      utcNow,
		gapGrace: defaultGapGrace,
	}
}

// Send appends a message from actor. The sender label is the actor's current
// callsign; a directed recipient is resolved to a user id at send time.
func (s *MessagingService) Send(ctx context.Context, actor domain.Actor, in ports.SendInput) (*domain.Message, error) {
	content := strings.TrimSpace(in.Content)
	att := in.Attachment
	if att != nil && len(att.Data) == 0 {
		att = nil
	}
	if content == "" && att == nil {
		return nil, domain.ErrEmptyMessage
	}
	if att != nil && len(att.Data) > domain.MaxAttachmentBytes {
		return nil, domain.ErrAttachmentTooLarge
	}

	sender, err := s.users.FindByID(ctx, actor.UserID)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, domain.ErrUnauthorized
	}
	if err != nil {
		return nil, fmt.Errorf("send: %w", err)
	}
	if sender.IsBlocked {
		return nil, domain.ErrBlocked
	}

	msg := &domain.Message{
		ID:        uuid.NewString(),
		Sender:    sender.Callsign,
		UserID:    sender.ID,
		Recipient: domain.CanonicalCallsign(in.Recipient),
		Content:   content,
	}
	if msg.Recipient == "" {
		msg.Recipient = domain.RecipientAll
	}
	if msg.Recipient != domain.RecipientAll {
		target, err := s.users.FindByCallsign(ctx, msg.Recipient)
		if errors.Is(err, domain.ErrNotFound) {
			return nil, domain.ErrInvalidRecipient
		}
		if err != nil {
			return nil, fmt.Errorf("send: resolve recipient: %w", err)
		}
		msg.RecipientUserID = target.ID
	}

	if att != nil {
		msg.Attachment = &domain.Attachment{
			Name:     attachmentName(att.Name),
			MimeType: att.MimeType,
			Size:     len(att.Data),
			Ref:      "attachments/" + msg.ID,
		}
		if msg.Attachment.MimeType == "" {
			msg.Attachment.MimeType = defaultContentType
		}
		if err := s.blobs.Put(ctx, msg.Attachment.Ref, att.Data, msg.Attachment.MimeType); err != nil {
			return nil, fmt.Errorf("send: store attachment: %w", err)
		}
	}

	if err := s.append(ctx, msg); err != nil {
		if msg.Attachment != nil {
			_ = s.blobs.Delete(ctx, msg.Attachment.Ref)
		}
		return nil, fmt.Errorf("send: %w", err)
	}

	metrics.MessagesSentTotal.WithLabelValues(messageKind(msg)).Inc()
	publish(s.events, ports.TopicMessages, ports.KindCreated, msg.ID, msg, msg.SentAt)
	s.log.Debug().
		Str("user_id", msg.UserID).
		Str("callsign", msg.Sender).
		Str("recipient", msg.Recipient).
		Int64("seq", msg.Seq).
		Msg("message sent")
	return msg, nil
}

// append stamps msg with a strictly increasing millisecond timestamp and
// stores it.
func (s *MessagingService) append(ctx context.Context, msg *domain.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	t := s.now().Truncate(time.Millisecond)
	if !t.After(s.lastSent) {
		t = s.lastSent.Add(time.Millisecond)
	}
	msg.SentAt = t
	if err := s.messages.Append(ctx, msg); err != nil {
		return err
	}
	s.lastSent = t
	return nil
}

func attachmentName(name string) string {
	name = path.Base(strings.ReplaceAll(strings.TrimSpace(name), "\\", "/"))
	if name == "." || name == "/" || name == "" {
		name = "attachment"
	}
	if len(name) > maxAttachmentName {
		name = name[:maxAttachmentName]
	}
	return name
}

func messageKind(m *domain.Message) string {
	switch {
	case m.Attachment != nil:
		return "attachment"
	case m.Recipient == domain.RecipientAll:
		return "broadcast"
	default:
		return "directed"
	}
}

// History returns the messages visible to viewer after afterSeq, ascending.
// A zero limit returns everything.
func (s *MessagingService) History(ctx context.Context, viewer domain.Viewer, afterSeq int64, limit int) ([]*domain.Message, error) {
	msgs, err := s.messages.List(ctx, ports.MessageQuery{Viewer: &viewer, AfterSeq: afterSeq, Limit: limit})
	if err != nil {
		return nil, fmt.Errorf("history: %w", err)
	}
	visible := msgs[:0]
	for _, m := range msgs {
		if viewer.CanSee(m) {
			visible = append(visible, m)
		}
	}
	return visible, nil
}

// Subscribe registers for live notifications first, then replays the
// visible log and follows it. Each message is delivered once, in Seq order.
//
// The cursor walks the unfiltered log so holes in Seq are noticed even when
// the neighbouring messages are private to others. Delivery stops at a hole
// until the message after it is older than the gap grace.
func (s *MessagingService) Subscribe(ctx context.Context, viewer domain.Viewer) (<-chan *domain.Message, error) {
	sub, err := s.notifier.Subscribe(ctx, ports.TopicMessages)
	if err != nil {
		return nil, fmt.Errorf("subscribe: %w", err)
	}

	out := make(chan *domain.Message, 64)
	go func() {
		defer close(out)
		defer sub.Close()

		var cursor int64
		// catchUp delivers everything contiguous after cursor. A positive
		// wait means it stopped at a hole that is still inside the grace.
		catchUp := func() (wait time.Duration, ok bool) {
			for {
				page, err := s.messages.List(ctx, ports.MessageQuery{AfterSeq: cursor, Limit: replayPage})
				if err != nil {
					if ctx.Err() == nil {
						s.log.Error().Err(err).Str("user_id", viewer.UserID).Msg("message replay failed")
					}
					return 0, false
				}
				for _, m := range page {
					if m.Seq != cursor+1 {
						if age := s.now().Sub(m.SentAt); age < s.gapGrace {
							return max(s.gapGrace-age, minGapRetry), true
						}
						s.log.Debug().
							Int64("from", cursor+1).
							Int64("to", m.Seq-1).
							Msg("skipping seq gap")
					}
					if viewer.CanSee(m) {
						select {
						case out <- m:
						case <-ctx.Done():
							return 0, false
						}
					}
					cursor = m.Seq
				}
				if len(page) < replayPage {
					return 0, true
				}
			}
		}

		var retry <-chan time.Time
		for {
			wait, ok := catchUp()
			if !ok {
				return
			}
			if wait > 0 && retry == nil {
				retry = time.After(wait)
			}

		idle:
			for {
				select {
				case <-ctx.Done():
					return
				case <-retry:
					retry = nil
					break idle
				case ev, ok := <-sub.Events():
					if !ok {
						return
					}
					if ev.Kind == ports.KindCreated && len(ev.Payload) > 0 {
						var m domain.Message
						if err := json.Unmarshal(ev.Payload, &m); err == nil &&
							(m.Seq <= cursor || (retry == nil && !viewer.CanSee(&m))) {
							continue
						}
					}
					break idle
				}
			}
		}
	}()
	return out, nil
}

// Attachment returns the attachment of a message the viewer can see.
func (s *MessagingService) Attachment(ctx context.Context, viewer domain.Viewer, messageID string) (*domain.Attachment, []byte, error) {
	m, err := s.messages.FindByID(ctx, messageID)
	if err != nil {
		return nil, nil, err
	}
	if !viewer.CanSee(m) || m.Attachment == nil {
		return nil, nil, domain.ErrMessageNotFound
	}
	data, _, err := s.blobs.Get(ctx, m.Attachment.Ref)
	if err != nil {
		return nil, nil, fmt.Errorf("attachment: %w", err)
	}
	return m.Attachment, data, nil
}

// Purge wipes the channel log and its attachments.
func (s *MessagingService) Purge(ctx context.Context, actor domain.Actor) (int, error) {
	if err := s.guard.require(ctx, actor); err != nil {
		return 0, err
	}
	n, refs, err := s.messages.Purge(ctx)
	if err != nil {
		return 0, fmt.Errorf("purge: %w", err)
	}
	for _, ref := range refs {
		if err := s.blobs.Delete(ctx, ref); err != nil {
			s.log.Warn().Err(err).Str("ref", ref).Msg("failed to delete attachment")
		}
	}

	metrics.ModerationActionsTotal.WithLabelValues("purge").Inc()
	publish(s.events, ports.TopicMessages, ports.KindDeleted, "", nil, s.now())
	s.log.Info().Str("user_id", actor.UserID).Int64("count", n).Msg("channel purged")
	return int(n), nil
}
