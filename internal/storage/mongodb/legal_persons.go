package mongodb

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/sirosfoundation/go-wallet-orchestrator/internal/domain"
	"github.com/sirosfoundation/go-wallet-orchestrator/internal/storage"
)

// LegalPersonStore implements MongoDB legal person storage
type LegalPersonStore struct {
	collection *mongo.Collection
	counter    *counter
}

func (s *LegalPersonStore) Create(ctx context.Context, lp *domain.LegalPerson) error {
	id, err := s.counter.next(ctx, "legal_person_id")
	if err != nil {
		return fmt.Errorf("failed to get next ID: %w", err)
	}

	lp.ID = id
	lp.CreatedAt = time.Now()

	_, err = s.collection.InsertOne(ctx, lp)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return storage.ErrAlreadyExists
		}
		return fmt.Errorf("failed to create legal person: %w", err)
	}
	return nil
}

func (s *LegalPersonStore) findOne(ctx context.Context, filter bson.M) (*domain.LegalPerson, error) {
	var lp domain.LegalPerson
	err := s.collection.FindOne(ctx, filter).Decode(&lp)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get legal person: %w", err)
	}
	return &lp, nil
}

func (s *LegalPersonStore) GetByDID(ctx context.Context, did string) (*domain.LegalPerson, error) {
	return s.findOne(ctx, bson.M{"did": did})
}

// GetByURL ignores a trailing slash on either side.
func (s *LegalPersonStore) GetByURL(ctx context.Context, url string) (*domain.LegalPerson, error) {
	trimmed := strings.TrimSuffix(url, "/")
	return s.findOne(ctx, bson.M{"url": bson.M{"$in": bson.A{trimmed, trimmed + "/"}}})
}

func (s *LegalPersonStore) GetAll(ctx context.Context) ([]*domain.LegalPerson, error) {
	cursor, err := s.collection.Find(ctx, bson.M{}, options.Find().SetSort(bson.D{{Key: "_id", Value: 1}}))
	if err != nil {
		return nil, fmt.Errorf("failed to get legal persons: %w", err)
	}
	defer func() { _ = cursor.Close(ctx) }()

	all := make([]*domain.LegalPerson, 0)
	if err := cursor.All(ctx, &all); err != nil {
		return nil, fmt.Errorf("failed to decode legal persons: %w", err)
	}
	return all, nil
}
