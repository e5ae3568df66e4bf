package mongo

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/raven-oracle/portal/internal/core/domain"
	"github.com/raven-oracle/portal/internal/core/ports"
)

const messageCounterID = "messages"

// MessageRepository implements ports.MessageRepository on messageLogs. Seq
// values come from a counter document so they keep growing across purges.
type MessageRepository struct {
	col      *mongo.Collection
	counters *mongo.Collection
}

// NewMessageRepository returns a MessageRepository.
func NewMessageRepository(db *mongo.Database) *MessageRepository {
	return &MessageRepository{
		col:      db.Collection(collMessages),
		counters: db.Collection(collCounters),
	}
}

func (r *MessageRepository) Append(ctx context.Context, m *domain.Message) error {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	seq, err := r.nextSeq(ctx)
	if err != nil {
		return err
	}
	m.Seq = seq
	if _, err := r.col.InsertOne(ctx, m); err != nil {
		return fmt.Errorf("insert message: %w", err)
	}
	return nil
}

func (r *MessageRepository) nextSeq(ctx context.Context) (int64, error) {
	var counter struct {
		Seq int64 `bson:"seq"`
	}
	err := r.counters.FindOneAndUpdate(ctx,
		bson.M{"_id": messageCounterID},
		bson.M{"$inc": bson.M{"seq": 1}},
		options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After),
	).Decode(&counter)
	if err != nil {
		return 0, fmt.Errorf("next message seq: %w", err)
	}
	return counter.Seq, nil
}

func (r *MessageRepository) FindByID(ctx context.Context, id string) (*domain.Message, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	var m domain.Message
	if err := r.col.FindOne(ctx, bson.M{"_id": id}).Decode(&m); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, domain.ErrMessageNotFound
		}
		return nil, fmt.Errorf("find message: %w", err)
	}
	return &m, nil
}

// List pushes the visibility rule of domain.Viewer.CanSee into the query.
func (r *MessageRepository) List(ctx context.Context, q ports.MessageQuery) ([]*domain.Message, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	filter := bson.M{"seq": bson.M{"$gt": q.AfterSeq}}
	if v := q.Viewer; v != nil && !v.IsAdmin {
		filter["sent_at"] = bson.M{"$gte": v.SessionStartedAt}
		filter["$or"] = bson.A{
			bson.M{"recipient": domain.RecipientAll},
			bson.M{"user_id": v.UserID},
			bson.M{"recipient_user_id": v.UserID},
			bson.M{"recipient_user_id": bson.M{"$exists": false}, "recipient": v.Callsign},
		}
	}

	opts := options.Find().SetSort(bson.D{{Key: "seq", Value: 1}})
	if q.Limit > 0 {
		opts.SetLimit(int64(q.Limit))
	}

	cur, err := r.col.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	out := make([]*domain.Message, 0)
	if err := cur.All(ctx, &out); err != nil {
		return nil, fmt.Errorf("decode messages: %w", err)
	}
	return out, nil
}

// Purge removes the whole log and returns the attachment refs it held.
func (r *MessageRepository) Purge(ctx context.Context) (int64, []string, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	cur, err := r.col.Find(ctx,
		bson.M{"attachment.ref": bson.M{"$exists": true}},
		options.Find().SetProjection(bson.M{"attachment.ref": 1}),
	)
	if err != nil {
		return 0, nil, fmt.Errorf("list attachments: %w", err)
	}
	var withRefs []domain.Message
	if err := cur.All(ctx, &withRefs); err != nil {
		return 0, nil, fmt.Errorf("decode attachments: %w", err)
	}
	refs := make([]string, 0, len(withRefs))
	for _, m := range withRefs {
		if m.Attachment != nil && m.Attachment.Ref != "" {
			refs = append(refs, m.Attachment.Ref)
		}
	}

	res, err := r.col.DeleteMany(ctx, bson.M{})
	if err != nil {
		return 0, nil, fmt.Errorf("purge messages: %w", err)
	}
	return res.DeletedCount, refs, nil
}
