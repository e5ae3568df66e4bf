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

// SessionRequestRepository implements ports.SessionRequestRepository. Every
// status change is a conditional update on the current status.
type SessionRequestRepository struct {
	col *mongo.Collection
}

// NewSessionRequestRepository returns a SessionRequestRepository.
func NewSessionRequestRepository(db *mongo.Database) *SessionRequestRepository {
	return &SessionRequestRepository{col: db.Collection(collSessionRequests)}
}

// Create inserts req. The partial unique index on pending user ids turns a
// second pending request into ErrDuplicatePendingRequest.
func (r *SessionRequestRepository) Create(ctx context.Context, req *domain.SessionRequest) error {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	if _, err := r.col.InsertOne(ctx, req); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return domain.ErrDuplicatePendingRequest
		}
		return fmt.Errorf("insert session request: %w", err)
	}
	return nil
}

func (r *SessionRequestRepository) FindByID(ctx context.Context, id string) (*domain.SessionRequest, error) {
	return r.findOne(ctx, bson.M{"_id": id})
}

func (r *SessionRequestRepository) FindPendingByUser(ctx context.Context, userID string) (*domain.SessionRequest, error) {
	return r.findOne(ctx, bson.M{"user_id": userID, "status": domain.RequestPending})
}

func (r *SessionRequestRepository) findOne(ctx context.Context, filter bson.M) (*domain.SessionRequest, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	var req domain.SessionRequest
	if err := r.col.FindOne(ctx, filter).Decode(&req); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, domain.ErrRequestNotFound
		}
		return nil, fmt.Errorf("find session request: %w", err)
	}
	return &req, nil
}

func (r *SessionRequestRepository) ListByStatus(ctx context.Context, status domain.RequestStatus) ([]*domain.SessionRequest, error) {
	return r.find(ctx, bson.M{"status": status})
}

func (r *SessionRequestRepository) ListStale(ctx context.Context, cutoff time.Time) ([]*domain.SessionRequest, error) {
	return r.find(ctx, bson.M{"$or": bson.A{
		bson.M{"status": domain.RequestPending, "created_at": bson.M{"$lt": cutoff}},
		bson.M{
			"status":       domain.RequestApproved,
			"confirmed_at": bson.M{"$exists": false},
			"resolved_at":  bson.M{"$lt": cutoff},
		},
	}})
}

func (r *SessionRequestRepository) find(ctx context.Context, filter bson.M) ([]*domain.SessionRequest, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	cur, err := r.col.Find(ctx, filter, options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}}))
	if err != nil {
		return nil, fmt.Errorf("list session requests: %w", err)
	}
	out := make([]*domain.SessionRequest, 0)
	if err := cur.All(ctx, &out); err != nil {
		return nil, fmt.Errorf("decode session requests: %w", err)
	}
	return out, nil
}

// Resolve moves a pending request to status. A caller that loses the race
// gets the stored document back with won == false.
func (r *SessionRequestRepository) Resolve(ctx context.Context, id string, status domain.RequestStatus, code, by string, at time.Time) (*domain.SessionRequest, bool, error) {
	opCtx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	set := bson.M{"status": status, "resolved_by": by, "resolved_at": at}
	if code != "" {
		set["session_code"] = code
	}

	var req domain.SessionRequest
	err := r.col.FindOneAndUpdate(opCtx,
		bson.M{"_id": id, "status": domain.RequestPending},
		bson.M{"$set": set},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&req)
	if err == nil {
		return &req, true, nil
	}
	if !errors.Is(err, mongo.ErrNoDocuments) {
		return nil, false, fmt.Errorf("resolve session request: %w", err)
	}

	current, err := r.FindByID(ctx, id)
	if err != nil {
		return nil, false, err
	}
	return current, false, nil
}

func (r *SessionRequestRepository) Expire(ctx context.Context, id string, from domain.RequestStatus, at time.Time) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	res, err := r.col.UpdateOne(ctx,
		bson.M{"_id": id, "status": from},
		bson.M{"$set": bson.M{"status": domain.RequestExpired, "expired_at": at}},
	)
	if err != nil {
		return false, fmt.Errorf("expire session request: %w", err)
	}
	return res.ModifiedCount == 1, nil
}

func (r *SessionRequestRepository) Confirm(ctx context.Context, id string, at time.Time) error {
	opCtx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	res, err := r.col.UpdateOne(opCtx,
		bson.M{"_id": id, "status": domain.RequestApproved},
		bson.M{"$set": bson.M{"confirmed_at": at}},
	)
	if err != nil {
		return fmt.Errorf("confirm session request: %w", err)
	}
	if res.MatchedCount == 0 {
		if _, err := r.FindByID(ctx, id); err != nil {
			return err
		}
		return domain.ErrRequestNotPending
	}
	return nil
}

func (r *SessionRequestRepository) Delete(ctx context.Context, id string) error {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	res, err := r.col.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return fmt.Errorf("delete session request: %w", err)
	}
	if res.DeletedCount == 0 {
		return domain.ErrRequestNotFound
	}
	return nil
}

func (r *SessionRequestRepository) DeleteByUser(ctx context.Context, userID string) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	res, err := r.col.DeleteMany(ctx, bson.M{"user_id": userID})
	if err != nil {
		return 0, fmt.Errorf("delete session requests: %w", err)
	}
	return res.DeletedCount, nil
}

// IdentityChangeRepository implements ports.IdentityChangeRepository on
// callsignRequests.
type IdentityChangeRepository struct {
	col *mongo.Collection
}

// NewIdentityChangeRepository returns an IdentityChangeRepository.
func NewIdentityChangeRepository(db *mongo.Database) *IdentityChangeRepository {
	return &IdentityChangeRepository{col: db.Collection(collCallsignRequests)}
}

func (r *IdentityChangeRepository) Create(ctx context.Context, req *domain.IdentityChangeRequest) error {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	if _, err := r.col.InsertOne(ctx, req); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return domain.ErrDuplicatePendingRequest
		}
		return fmt.Errorf("insert identity change: %w", err)
	}
	return nil
}

func (r *IdentityChangeRepository) FindByID(ctx context.Context, id string) (*domain.IdentityChangeRequest, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	var req domain.IdentityChangeRequest
	if err := r.col.FindOne(ctx, bson.M{"_id": id}).Decode(&req); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, domain.ErrRequestNotFound
		}
		return nil, fmt.Errorf("find identity change: %w", err)
	}
	return &req, nil
}

func (r *IdentityChangeRepository) List(ctx context.Context) ([]*domain.IdentityChangeRequest, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	cur, err := r.col.Find(ctx, bson.M{}, options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}}))
	if err != nil {
		return nil, fmt.Errorf("list identity changes: %w", err)
	}
	out := make([]*domain.IdentityChangeRequest, 0)
	if err := cur.All(ctx, &out); err != nil {
		return nil, fmt.Errorf("decode identity changes: %w", err)
	}
	return out, nil
}

func (r *IdentityChangeRepository) Delete(ctx context.Context, id string) error {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	res, err := r.col.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return fmt.Errorf("delete identity change: %w", err)
	}
	if res.DeletedCount == 0 {
		return domain.ErrRequestNotFound
	}
	return nil
}

func (r *IdentityChangeRepository) DeleteByUser(ctx context.Context, userID string) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	res, err := r.col.DeleteMany(ctx, bson.M{"user_id": userID})
	if err != nil {
		return 0, fmt.Errorf("delete identity changes: %w", err)
	}
	return res.DeletedCount, nil
}
