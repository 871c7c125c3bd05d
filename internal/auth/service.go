package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/msgin/msgin-server/internal/store"
)

var (
	// ErrInvalidCredentials is returned when email/password don't match.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrUserExists is returned when signing up with an email already in use.
	ErrUserExists = errors.New("user already exists")
	// ErrInvalidSignup is returned when signup fields don't meet constraints.
	ErrInvalidSignup = errors.New("invalid signup details")

	// ErrMissingCredential is returned when no token accompanies a request.
	ErrMissingCredential = errors.New("missing credential")
	// ErrInvalidCredential is returned when token verification fails.
	ErrInvalidCredential = errors.New("invalid credential")
	// ErrUnknownSubject is returned when a valid token references a user
	// that no longer exists.
	ErrUnknownSubject = errors.New("unknown subject")
)

// Service provides authentication operations. It is the single gate for
// both HTTP requests and realtime connection handshakes.
type Service struct {
	store     store.UserStore
	jwtConfig *JWTConfig
}

// NewService creates a new authentication service.
func NewService(userStore store.UserStore, jwtConfig *JWTConfig) *Service {
	return &Service{
		store:     userStore,
		jwtConfig: jwtConfig,
	}
}

// Signup creates a new user with hashed password and returns a JWT token.
func (s *Service) Signup(ctx context.Context, fullName, email, password string) (string, *store.User, error) {
	fullName = strings.TrimSpace(fullName)
	email = strings.ToLower(strings.TrimSpace(email))
	if fullName == "" || email == "" || !strings.Contains(email, "@") {
		return "", nil, ErrInvalidSignup
	}
	if len(password) < 6 {
		return "", nil, ErrInvalidSignup
	}

	if existing, err := s.store.GetUserByEmail(ctx, email); err == nil && existing != nil {
		return "", nil, ErrUserExists
	}

	hashedPassword, err := HashPassword(password)
	if err != nil {
		return "", nil, fmt.Errorf("hash password: %w", err)
	}

	user, err := s.store.CreateUser(ctx, email, fullName, hashedPassword)
	if err != nil {
		return "", nil, fmt.Errorf("create user: %w", err)
	}

	token, err := GenerateToken(s.jwtConfig, user.ID, user.Email)
	if err != nil {
		return "", nil, fmt.Errorf("generate token: %w", err)
	}

	return token, user, nil
}

// Login validates credentials and returns a JWT token.
func (s *Service) Login(ctx context.Context, email, password string) (string, *store.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))

	user, err := s.store.GetUserByEmail(ctx, email)
	if err != nil {
		return "", nil, ErrInvalidCredentials
	}

	if errPwd := ComparePassword(user.PasswordHash, password); errPwd != nil {
		return "", nil, ErrInvalidCredentials
	}

	token, err := GenerateToken(s.jwtConfig, user.ID, user.Email)
	if err != nil {
		return "", nil, fmt.Errorf("generate token: %w", err)
	}

	return token, user, nil
}

// Authenticate resolves an opaque bearer credential to a user. It is pure
// verification: no state changes, no retries. The same path serves HTTP
// middleware and the WebSocket handshake.
func (s *Service) Authenticate(ctx context.Context, credential string) (*store.User, error) {
	if credential == "" {
		return nil, ErrMissingCredential
	}

	claims, err := ValidateToken(s.jwtConfig, credential)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidCredential, err)
	}

	user, err := s.store.GetUserByID(ctx, claims.UserID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrUnknownSubject
		}
		return nil, fmt.Errorf("resolve subject: %w", err)
	}

	return user, nil
}
