package memory

import (
	"cmp"
	"context"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/sirosfoundation/go-wallet-orchestrator/internal/domain"
	"github.com/sirosfoundation/go-wallet-orchestrator/internal/storage"
)

// Store implements an in-memory storage
type Store struct {
	users         *UserStore
	credentials   *CredentialStore
	presentations *PresentationStore
	legalPersons  *LegalPersonStore
}

// NewStore creates a new in-memory store
func NewStore() *Store {
	return &Store{
		users:         &UserStore{data: make(map[string]*domain.User)},
		credentials:   &CredentialStore{data: make(map[int64]*domain.VerifiableCredential)},
		presentations: &PresentationStore{data: make(map[int64]*domain.VerifiablePresentation)},
		legalPersons:  &LegalPersonStore{data: make(map[int64]*domain.LegalPerson)},
	}
}

func (s *Store) Users() storage.UserStore                 { return s.users }
func (s *Store) Credentials() storage.CredentialStore     { return s.credentials }
func (s *Store) Presentations() storage.PresentationStore { return s.presentations }
func (s *Store) LegalPersons() storage.LegalPersonStore   { return s.legalPersons }
func (s *Store) Close() error                             { return nil }
func (s *Store) Ping(ctx context.Context) error           { return nil }

// UserStore implements in-memory user storage
type UserStore struct {
	mu   sync.RWMutex
	data map[string]*domain.User
}

func (s *UserStore) Create(ctx context.Context, user *domain.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.data[user.UUID.String()]; exists {
		return storage.ErrAlreadyExists
	}
	for _, existing := range s.data {
		if existing.Username == user.Username || (user.DID != "" && existing.DID == user.DID) {
			return storage.ErrAlreadyExists
		}
	}

	user.CreatedAt = time.Now()
	user.UpdatedAt = time.Now()
	s.data[user.UUID.String()] = user
	return nil
}

func (s *UserStore) GetByID(ctx context.Context, id domain.UserID) (*domain.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	user, exists := s.data[id.String()]
	if !exists {
		return nil, storage.ErrNotFound
	}
	return user, nil
}

func (s *UserStore) GetByUsername(ctx context.Context, username string) (*domain.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, user := range s.data {
		if user.Username == username {
			return user, nil
		}
	}
	return nil, storage.ErrNotFound
}

func (s *UserStore) GetByDID(ctx context.Context, did string) (*domain.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, user := range s.data {
		if user.DID == did {
			return user, nil
		}
	}
	return nil, storage.ErrNotFound
}

func (s *UserStore) GetAll(ctx context.Context) ([]*domain.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	users := make([]*domain.User, 0, len(s.data))
	for _, user := range s.data {
		users = append(users, user)
	}
	slices.SortFunc(users, func(a, b *domain.User) int {
		return strings.Compare(a.Username, b.Username)
	})
	return users, nil
}

func (s *UserStore) Update(ctx context.Context, user *domain.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.data[user.UUID.String()]; !exists {
		return storage.ErrNotFound
	}

	user.UpdatedAt = time.Now()
	s.data[user.UUID.String()] = user
	return nil
}

func (s *UserStore) Delete(ctx context.Context, id domain.UserID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.data[id.String()]; !exists {
		return storage.ErrNotFound
	}

	delete(s.data, id.String())
	return nil
}

// CredentialStore implements in-memory credential storage
type CredentialStore struct {
	mu     sync.RWMutex
	data   map[int64]*domain.VerifiableCredential
	nextID int64
}

func (s *CredentialStore) Create(ctx context.Context, credential *domain.VerifiableCredential) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, cred := range s.data {
		if cred.HolderDID == credential.HolderDID && cred.CredentialIdentifier == credential.CredentialIdentifier {
			return storage.ErrAlreadyExists
		}
	}

	s.nextID++
	credential.ID = s.nextID
	credential.CreatedAt = time.Now()
	credential.UpdatedAt = time.Now()
	s.data[credential.ID] = credential
	return nil
}

func (s *CredentialStore) GetByIdentifier(ctx context.Context, holderDID, credentialIdentifier string) (*domain.VerifiableCredential, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, cred := range s.data {
		if cred.HolderDID == holderDID && cred.CredentialIdentifier == credentialIdentifier {
			return cred, nil
		}
	}
	return nil, storage.ErrNotFound
}

func (s *CredentialStore) GetAllByHolder(ctx context.Context, holderDID string) ([]*domain.VerifiableCredential, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	credentials := make([]*domain.VerifiableCredential, 0)
	for _, cred := range s.data {
		if cred.HolderDID == holderDID {
			credentials = append(credentials, cred)
		}
	}
	slices.SortFunc(credentials, func(a, b *domain.VerifiableCredential) int {
		return cmp.Compare(a.ID, b.ID)
	})
	return credentials, nil
}

func (s *CredentialStore) Delete(ctx context.Context, holderDID, credentialIdentifier string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for id, cred := range s.data {
		if cred.HolderDID == holderDID && cred.CredentialIdentifier == credentialIdentifier {
			delete(s.data, id)
			return nil
		}
	}
	return storage.ErrNotFound
}

// PresentationStore implements in-memory presentation storage
type PresentationStore struct {
	mu     sync.RWMutex
	data   map[int64]*domain.VerifiablePresentation
	nextID int64
}

func (s *PresentationStore) Create(ctx context.Context, presentation *domain.VerifiablePresentation) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextID++
	presentation.ID = s.nextID
	s.data[presentation.ID] = presentation
	return nil
}

func (s *PresentationStore) GetByIdentifier(ctx context.Context, holderDID, presentationIdentifier string) (*domain.VerifiablePresentation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, pres := range s.data {
		if pres.HolderDID == holderDID && pres.PresentationIdentifier == presentationIdentifier {
			return pres, nil
		}
	}
	return nil, storage.ErrNotFound
}

func (s *PresentationStore) GetAllByHolder(ctx context.Context, holderDID string) ([]*domain.VerifiablePresentation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	presentations := make([]*domain.VerifiablePresentation, 0)
	for _, pres := range s.data {
		if pres.HolderDID == holderDID {
			presentations = append(presentations, pres)
		}
	}
	slices.SortFunc(presentations, func(a, b *domain.VerifiablePresentation) int {
		return cmp.Compare(a.ID, b.ID)
	})
	return presentations, nil
}

func (s *PresentationStore) Delete(ctx context.Context, holderDID, presentationIdentifier string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for id, pres := range s.data {
		if pres.HolderDID == holderDID && pres.PresentationIdentifier == presentationIdentifier {
			delete(s.data, id)
			return nil
		}
	}
	return storage.ErrNotFound
}

// LegalPersonStore implements in-memory legal person storage
type LegalPersonStore struct {
	mu     sync.RWMutex
	data   map[int64]*domain.LegalPerson
	nextID int64
}

func (s *LegalPersonStore) Create(ctx context.Context, lp *domain.LegalPerson) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.data {
		if existing.DID == lp.DID {
			return storage.ErrAlreadyExists
		}
	}

	s.nextID++
	lp.ID = s.nextID
	lp.CreatedAt = time.Now()
	s.data[lp.ID] = lp
	return nil
}

func (s *LegalPersonStore) GetByDID(ctx context.Context, did string) (*domain.LegalPerson, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, lp := range s.data {
		if lp.DID == did {
			return lp, nil
		}
	}
	return nil, storage.ErrNotFound
}

// GetByURL ignores a trailing slash on either side.
func (s *LegalPersonStore) GetByURL(ctx context.Context, url string) (*domain.LegalPerson, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	want := strings.TrimSuffix(url, "/")
	for _, lp := range s.data {
		if strings.TrimSuffix(lp.URL, "/") == want {
			return lp, nil
		}
	}
	return nil, storage.ErrNotFound
}

func (s *LegalPersonStore) GetAll(ctx context.Context) ([]*domain.LegalPerson, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	all := make([]*domain.LegalPerson, 0, len(s.data))
	for _, lp := range s.data {
		all = append(all, lp)
	}
	slices.SortFunc(all, func(a, b *domain.LegalPerson) int {
		return cmp.Compare(a.ID, b.ID)
	})
	return all, nil
}
