package mongo

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/raven-oracle/portal/internal/core/domain"
)

// UserRepository implements ports.UserRepository on the users collection.
type UserRepository struct {
	col *mongo.Collection
}

// NewUserRepository returns a UserRepository.
func NewUserRepository(db *mongo.Database) *UserRepository {
	return &UserRepository{col: db.Collection(collUsers)}
}

// Create inserts u. A collision on the callsign index is ErrCallsignTaken.
func (r *UserRepository) Create(ctx context.Context, u *domain.User) error {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	if _, err := r.col.InsertOne(ctx, u); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			if strings.Contains(err.Error(), "callsign") {
				return domain.ErrCallsignTaken
			}
			return domain.ErrDuplicateKey
		}
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

func (r *UserRepository) FindByID(ctx context.Context, id string) (*domain.User, error) {
	return r.findOne(ctx, bson.M{"_id": id})
}

func (r *UserRepository) FindByCallsign(ctx context.Context, callsign string) (*domain.User, error) {
	return r.findOne(ctx, bson.M{"callsign": callsign})
}

func (r *UserRepository) findOne(ctx context.Context, filter bson.M) (*domain.User, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	var u domain.User
	if err := r.col.FindOne(ctx, filter).Decode(&u); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, domain.ErrUserNotFound
		}
		return nil, fmt.Errorf("find user: %w", err)
	}
	return &u, nil
}

// List returns every user ordered by callsign.
func (r *UserRepository) List(ctx context.Context) ([]*domain.User, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	cur, err := r.col.Find(ctx, bson.M{}, options.Find().SetSort(bson.D{{Key: "callsign", Value: 1}}))
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	users := make([]*domain.User, 0)
	if err := cur.All(ctx, &users); err != nil {
		return nil, fmt.Errorf("decode users: %w", err)
	}
	return users, nil
}

func (r *UserRepository) SetCallsign(ctx context.Context, id, callsign string) error {
	err := r.set(ctx, id, bson.M{"callsign": callsign})
	if mongo.IsDuplicateKeyError(err) {
		return domain.ErrCallsignTaken
	}
	return err
}

func (r *UserRepository) SetBlocked(ctx context.Context, id string, blocked bool) error {
	return r.set(ctx, id, bson.M{"is_blocked": blocked})
}

func (r *UserRepository) SetAdmin(ctx context.Context, id string, admin bool) error {
	return r.set(ctx, id, bson.M{"is_admin": admin})
}

func (r *UserRepository) SetBiometric(ctx context.Context, id, ref string) error {
	return r.set(ctx, id, bson.M{"biometric_ref": ref})
}

func (r *UserRepository) set(ctx context.Context, id string, fields bson.M) error {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	fields["updated_at"] = time.Now().UTC()
	res, err := r.col.UpdateOne(ctx, bson.M{"_id": id}, bson.M{"$set": fields})
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return err
		}
		return fmt.Errorf("update user: %w", err)
	}
	if res.MatchedCount == 0 {
		return domain.ErrUserNotFound
	}
	return nil
}

func (r *UserRepository) Delete(ctx context.Context, id string) error {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	res, err := r.col.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return fmt.Errorf("delete user: %w", err)
	}
	if res.DeletedCount == 0 {
		return domain.ErrUserNotFound
	}
	return nil
}

// AdminRoleRepository implements ports.AdminRoleRepository on rolesAdmin,
// keyed by user id.
type AdminRoleRepository struct {
	col *mongo.Collection
}

// NewAdminRoleRepository returns an AdminRoleRepository.
func NewAdminRoleRepository(db *mongo.Database) *AdminRoleRepository {
	return &AdminRoleRepository{col: db.Collection(collAdminRoles)}
}

// Grant upserts the role; an existing grant keeps its original timestamp.
func (r *AdminRoleRepository) Grant(ctx context.Context, role *domain.AdminRole) error {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	_, err := r.col.UpdateOne(ctx,
		bson.M{"_id": role.UserID},
		bson.M{"$setOnInsert": bson.M{"callsign": role.Callsign, "granted_at": role.GrantedAt}},
		options.Update().SetUpsert(true),
	)
	if err != nil {
		return fmt.Errorf("grant admin role: %w", err)
	}
	return nil
}

func (r *AdminRoleRepository) Find(ctx context.Context, userID string) (*domain.AdminRole, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	var role domain.AdminRole
	if err := r.col.FindOne(ctx, bson.M{"_id": userID}).Decode(&role); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("find admin role: %w", err)
	}
	return &role, nil
}

func (r *AdminRoleRepository) SetCallsign(ctx context.Context, userID, callsign string) error {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	res, err := r.col.UpdateOne(ctx, bson.M{"_id": userID}, bson.M{"$set": bson.M{"callsign": callsign}})
	if err != nil {
		return fmt.Errorf("update admin role: %w", err)
	}
	if res.MatchedCount == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *AdminRoleRepository) Revoke(ctx context.Context, userID string) error {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	if _, err := r.col.DeleteOne(ctx, bson.M{"_id": userID}); err != nil {
		return fmt.Errorf("revoke admin role: %w", err)
	}
	return nil
}

func (r *AdminRoleRepository) List(ctx context.Context) ([]*domain.AdminRole, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	cur, err := r.col.Find(ctx, bson.M{}, options.Find().SetSort(bson.D{{Key: "granted_at", Value: 1}}))
	if err != nil {
		return nil, fmt.Errorf("list admin roles: %w", err)
	}
	roles := make([]*domain.AdminRole, 0)
	if err := cur.All(ctx, &roles); err != nil {
		return nil, fmt.Errorf("decode admin roles: %w", err)
	}
	return roles, nil
}
