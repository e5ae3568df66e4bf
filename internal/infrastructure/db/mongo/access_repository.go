package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/raven-oracle/portal/internal/core/domain"
)

// GatewayRepository implements ports.GatewayRepository. The gateway is a
// single document with id domain.GatewayID.
type GatewayRepository struct {
	col *mongo.Collection
}

// NewGatewayRepository returns a GatewayRepository.
func NewGatewayRepository(db *mongo.Database) *GatewayRepository {
	return &GatewayRepository{col: db.Collection(collGateway)}
}

func (r *GatewayRepository) Get(ctx context.Context) (*domain.Gateway, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	var g domain.Gateway
	if err := r.col.FindOne(ctx, bson.M{"_id": domain.GatewayID}).Decode(&g); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("find gateway: %w", err)
	}
	return &g, nil
}

// Seed inserts g unless a gateway already exists.
func (r *GatewayRepository) Seed(ctx context.Context, g *domain.Gateway) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	doc := *g
	doc.ID = domain.GatewayID
	if _, err := r.col.InsertOne(ctx, doc); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return false, nil
		}
		return false, fmt.Errorf("seed gateway: %w", err)
	}
	return true, nil
}

func (r *GatewayRepository) SetPhrase(ctx context.Context, kind domain.GatewayKind, hash string, at time.Time) error {
	field := "operative_hash"
	switch kind {
	case domain.GatewayOperative:
	case domain.GatewayAdmin:
		field = "admin_hash"
	default:
		return domain.ErrInvalidPhrase
	}
	return r.set(ctx, bson.M{field: hash, "updated_at": at})
}

func (r *GatewayRepository) SetPolicy(ctx context.Context, policy domain.AdmissionPolicy, at time.Time) error {
	return r.set(ctx, bson.M{"policy": policy, "updated_at": at})
}

func (r *GatewayRepository) set(ctx context.Context, fields bson.M) error {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	_, err := r.col.UpdateOne(ctx, bson.M{"_id": domain.GatewayID}, bson.M{"$set": fields}, options.Update().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("update gateway: %w", err)
	}
	return nil
}

// InviteKeyRepository implements ports.InviteKeyRepository on accessKeys.
type InviteKeyRepository struct {
	col *mongo.Collection
}

// NewInviteKeyRepository returns an InviteKeyRepository.
func NewInviteKeyRepository(db *mongo.Database) *InviteKeyRepository {
	return &InviteKeyRepository{col: db.Collection(collAccessKeys)}
}

func (r *InviteKeyRepository) Create(ctx context.Context, k *domain.InviteKey) error {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	if _, err := r.col.InsertOne(ctx, k); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return domain.ErrDuplicateKey
		}
		return fmt.Errorf("insert invite key: %w", err)
	}
	return nil
}

func (r *InviteKeyRepository) Find(ctx context.Context, key string) (*domain.InviteKey, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	var k domain.InviteKey
	if err := r.col.FindOne(ctx, bson.M{"_id": key}).Decode(&k); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, domain.ErrInviteNotFound
		}
		return nil, fmt.Errorf("find invite key: %w", err)
	}
	return &k, nil
}

// Consume flips is_used in a single conditional update, so only one caller
// can match the unused document.
func (r *InviteKeyRepository) Consume(ctx context.Context, key, userID string, at time.Time) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	res, err := r.col.UpdateOne(ctx,
		bson.M{"_id": key, "is_used": false},
		bson.M{"$set": bson.M{"is_used": true, "used_by": userID, "used_at": at}},
	)
	if err != nil {
		return false, fmt.Errorf("consume invite key: %w", err)
	}
	return res.ModifiedCount == 1, nil
}

// Release reverts a Consume, matching on the consumer so a key taken over by
// another user is left alone.
func (r *InviteKeyRepository) Release(ctx context.Context, key, userID string) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	res, err := r.col.UpdateOne(ctx,
		bson.M{"_id": key, "is_used": true, "used_by": userID},
		bson.M{"$set": bson.M{"is_used": false}, "$unset": bson.M{"used_by": "", "used_at": ""}},
	)
	if err != nil {
		return false, fmt.Errorf("release invite key: %w", err)
	}
	return res.ModifiedCount == 1, nil
}

func (r *InviteKeyRepository) List(ctx context.Context) ([]*domain.InviteKey, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	cur, err := r.col.Find(ctx, bson.M{}, options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}}))
	if err != nil {
		return nil, fmt.Errorf("list invite keys: %w", err)
	}
	keys := make([]*domain.InviteKey, 0)
	if err := cur.All(ctx, &keys); err != nil {
		return nil, fmt.Errorf("decode invite keys: %w", err)
	}
	return keys, nil
}
