package mongodb

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/sirosfoundation/go-wallet-orchestrator/internal/domain"
	"github.com/sirosfoundation/go-wallet-orchestrator/internal/storage"
)

// CredentialStore implements MongoDB credential storage
type CredentialStore struct {
	collection *mongo.Collection
	counter    *counter
}

func (s *CredentialStore) Create(ctx context.Context, credential *domain.VerifiableCredential) error {
	id, err := s.counter.next(ctx, "credential_id")
	if err != nil {
		return fmt.Errorf("failed to get next ID: %w", err)
	}

	credential.ID = id
	credential.CreatedAt = time.Now()
	credential.UpdatedAt = time.Now()

	_, err = s.collection.InsertOne(ctx, credential)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return storage.ErrAlreadyExists
		}
		return fmt.Errorf("failed to create credential: %w", err)
	}
	return nil
}

func (s *CredentialStore) GetByIdentifier(ctx context.Context, holderDID, credentialIdentifier string) (*domain.VerifiableCredential, error) {
	var credential domain.VerifiableCredential
	err := s.collection.FindOne(ctx, bson.M{
		"holder_did":            holderDID,
		"credential_identifier": credentialIdentifier,
	}).Decode(&credential)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get credential: %w", err)
	}
	return &credential, nil
}

func (s *CredentialStore) GetAllByHolder(ctx context.Context, holderDID string) ([]*domain.VerifiableCredential, error) {
	cursor, err := s.collection.Find(ctx, bson.M{"holder_did": holderDID}, options.Find().SetSort(bson.D{{Key: "_id", Value: 1}}))
	if err != nil {
		return nil, fmt.Errorf("failed to get credentials: %w", err)
	}
	defer func() { _ = cursor.Close(ctx) }()

	credentials := make([]*domain.VerifiableCredential, 0)
	if err := cursor.All(ctx, &credentials); err != nil {
		return nil, fmt.Errorf("failed to decode credentials: %w", err)
	}
	return credentials, nil
}

func (s *CredentialStore) Delete(ctx context.Context, holderDID, credentialIdentifier string) error {
	result, err := s.collection.DeleteOne(ctx, bson.M{
		"holder_did":            holderDID,
		"credential_identifier": credentialIdentifier,
	})
	if err != nil {
		return fmt.Errorf("failed to delete credential: %w", err)
	}
	if result.DeletedCount == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// PresentationStore implements MongoDB presentation storage
type PresentationStore struct {
	collection *mongo.Collection
	counter    *counter
}

func (s *PresentationStore) Create(ctx context.Context, presentation *domain.VerifiablePresentation) error {
	id, err := s.counter.next(ctx, "presentation_id")
	if err != nil {
		return fmt.Errorf("failed to get next ID: %w", err)
	}

	presentation.ID = id
	if presentation.IssuanceDate.IsZero() {
		presentation.IssuanceDate = time.Now()
	}

	_, err = s.collection.InsertOne(ctx, presentation)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return storage.ErrAlreadyExists
		}
		return fmt.Errorf("failed to create presentation: %w", err)
	}
	return nil
}

func (s *PresentationStore) GetByIdentifier(ctx context.Context, holderDID, presentationIdentifier string) (*domain.VerifiablePresentation, error) {
	var presentation domain.VerifiablePresentation
	err := s.collection.FindOne(ctx, bson.M{
		"holder_did":              holderDID,
		"presentation_identifier": presentationIdentifier,
	}).Decode(&presentation)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get presentation: %w", err)
	}
	return &presentation, nil
}

func (s *PresentationStore) GetAllByHolder(ctx context.Context, holderDID string) ([]*domain.VerifiablePresentation, error) {
	cursor, err := s.collection.Find(ctx, bson.M{"holder_did": holderDID}, options.Find().SetSort(bson.D{{Key: "_id", Value: 1}}))
	if err != nil {
		return nil, fmt.Errorf("failed to get presentations: %w", err)
	}
	defer func() { _ = cursor.Close(ctx) }()

	presentations := make([]*domain.VerifiablePresentation, 0)
	if err := cursor.All(ctx, &presentations); err != nil {
		return nil, fmt.Errorf("failed to decode presentations: %w", err)
	}
	return presentations, nil
}

func (s *PresentationStore) Delete(ctx context.Context, holderDID, presentationIdentifier string) error {
	result, err := s.collection.DeleteOne(ctx, bson.M{
		"holder_did":              holderDID,
		"presentation_identifier": presentationIdentifier,
	})
	if err != nil {
		return fmt.Errorf("failed to delete presentation: %w", err)
	}
	if result.DeletedCount == 0 {
		return storage.ErrNotFound
	}
	return nil
}
