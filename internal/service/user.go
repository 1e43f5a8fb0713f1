package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/sirosfoundation/go-wallet-orchestrator/internal/domain"
	"github.com/sirosfoundation/go-wallet-orchestrator/internal/storage"
	"github.com/sirosfoundation/go-wallet-orchestrator/internal/wallet"
	"github.com/sirosfoundation/go-wallet-orchestrator/pkg/config"
)

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrUserExists         = errors.New("user already exists")
	ErrInvalidToken       = errors.New("invalid token")
)

// Claims are the authenticated identity carried by an app token.
type Claims struct {
	UserID   string
	Username string
	DID      string
}

// UserService handles user-related operations
type UserService struct {
	store  storage.Store
	cfg    *config.Config
	logger *zap.Logger
}

// NewUserService creates a new UserService
func NewUserService(store storage.Store, cfg *config.Config, logger *zap.Logger) *UserService {
	return &UserService{
		store:  store,
		cfg:    cfg,
		logger: logger.Named("user-service"),
	}
}

// Register creates a user together with a fresh wallet key; the user's DID
// is derived from that key.
func (s *UserService) Register(ctx context.Context, req *domain.RegisterRequest) (*domain.User, string, error) {
	if _, err := s.store.Users().GetByUsername(ctx, req.Username); err == nil {
		return nil, "", ErrUserExists
	} else if !errors.Is(err, storage.ErrNotFound) {
		return nil, "", fmt.Errorf("failed to check username: %w", err)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, "", fmt.Errorf("failed to hash password: %w", err)
	}
	hashStr := string(hash)

	key, err := wallet.GenerateKey()
	if err != nil {
		return nil, "", fmt.Errorf("failed to generate wallet key: %w", err)
	}
	keys, err := key.Marshal()
	if err != nil {
		return nil, "", err
	}

	user := &domain.User{
		UUID:         domain.NewUserID(),
		Username:     req.Username,
		DID:          key.DID,
		PasswordHash: &hashStr,
		Keys:         keys,
	}
	if req.DisplayName != "" {
		user.DisplayName = &req.DisplayName
	}

	if err := s.store.Users().Create(ctx, user); err != nil {
		if errors.Is(err, storage.ErrAlreadyExists) {
			return nil, "", ErrUserExists
		}
		return nil, "", fmt.Errorf("failed to create user: %w", err)
	}

	token, err := s.generateToken(user)
	if err != nil {
		return nil, "", fmt.Errorf("failed to generate token: %w", err)
	}

	s.logger.Info("User registered", zap.String("user_id", user.UUID.String()), zap.String("did", user.DID))
	return user, token, nil
}

// Login authenticates a user with username/password
func (s *UserService) Login(ctx context.Context, username, password string) (*domain.User, string, error) {
	user, err := s.store.Users().GetByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, "", ErrInvalidCredentials
		}
		return nil, "", fmt.Errorf("failed to get user: %w", err)
	}

	if user.PasswordHash == nil {
		return nil, "", ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(*user.PasswordHash), []byte(password)); err != nil {
		return nil, "", ErrInvalidCredentials
	}

	token, err := s.generateToken(user)
	if err != nil {
		return nil, "", fmt.Errorf("failed to generate token: %w", err)
	}

	s.logger.Info("User logged in", zap.String("user_id", user.UUID.String()))
	return user, token, nil
}

// GetUserByID retrieves a user by ID
func (s *UserService) GetUserByID(ctx context.Context, id domain.UserID) (*domain.User, error) {
	return s.store.Users().GetByID(ctx, id)
}

// ValidateToken validates an app token and returns its claims
func (s *UserService) ValidateToken(tokenString string) (*Claims, error) {
	claims := jwt.MapClaims{}
	_, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		return []byte(s.cfg.JWT.Secret), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return nil, errors.Join(ErrInvalidToken, err)
	}

	userID, _ := claims["user_id"].(string)
	username, _ := claims["username"].(string)
	did, _ := claims["did"].(string)
	if userID == "" || username == "" || did == "" {
		return nil, fmt.Errorf("%w: missing claims", ErrInvalidToken)
	}
	return &Claims{UserID: userID, Username: username, DID: did}, nil
}

func (s *UserService) generateToken(user *domain.User) (string, error) {
	now := time.Now()
	claims := jwt.MapClaims{
		"user_id":  user.UUID.String(),
		"username": user.Username,
		"did":      user.DID,
		"iss":      s.cfg.JWT.Issuer,
		"exp":      now.Add(time.Duration(s.cfg.JWT.ExpiryHours) * time.Hour).Unix(),
		"iat":      now.Unix(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(s.cfg.JWT.Secret))
}

// DeleteUser deletes a user together with the credentials and presentations
// held by its DID. Failures on held data are logged and do not stop the deletion.
func (s *UserService) DeleteUser(ctx context.Context, userID domain.UserID) error {
	user, err := s.store.Users().GetByID(ctx, userID)
	if err != nil {
		return err
	}

	credentials, err := s.store.Credentials().GetAllByHolder(ctx, user.DID)
	if err != nil {
		s.logger.Warn("Failed to list credentials for deletion", zap.Error(err))
	}
	for _, cred := range credentials {
		if err := s.store.Credentials().Delete(ctx, user.DID, cred.CredentialIdentifier); err != nil {
			s.logger.Warn("Failed to delete credential", zap.Error(err))
		}
	}

	presentations, err := s.store.Presentations().GetAllByHolder(ctx, user.DID)
	if err != nil {
		s.logger.Warn("Failed to list presentations for deletion", zap.Error(err))
	}
	for _, pres := range presentations {
		if err := s.store.Presentations().Delete(ctx, user.DID, pres.PresentationIdentifier); err != nil {
			s.logger.Warn("Failed to delete presentation", zap.Error(err))
		}
	}

	if err := s.store.Users().Delete(ctx, userID); err != nil {
		return fmt.Errorf("failed to delete user: %w", err)
	}

	s.logger.Info("User deleted", zap.String("user_id", userID.String()))
	return nil
}
