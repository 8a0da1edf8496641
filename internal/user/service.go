package user

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

type ServiceConfig struct {
	Repo      Repository
	Blacklist Blacklist
	Secret    []byte
	TokenTTL  time.Duration
	Logger    *zap.SugaredLogger
	Now       func() time.Time
}

type Service struct {
	repo      Repository
	blacklist Blacklist
	secret    []byte
	ttl       time.Duration
	log       *zap.SugaredLogger
	now       func() time.Time
}

type LoginResult struct {
	User      User
	Token     string
	ExpiresIn time.Duration
}

func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Repo == nil {
		return nil, errors.New("user repository is required")
	}
	if len(cfg.Secret) == 0 {
		return nil, errors.New("jwt secret is required")
	}
	s := &Service{
		repo:      cfg.Repo,
		blacklist: cfg.Blacklist,
		secret:    cfg.Secret,
		ttl:       cfg.TokenTTL,
		log:       cfg.Logger,
		now:       cfg.Now,
	}
	if s.blacklist == nil {
		s.blacklist = noopBlacklist{}
	}
	if s.ttl <= 0 {
		s.ttl = 24 * time.Hour
	}
	if s.log == nil {
		s.log = zap.NewNop().Sugar()
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s, nil
}

// Register creates an account. Admin accounts may be created by an admin
// caller, whose claims travel in ctx, or by anyone while no admin exists yet.
func (s *Service) Register(ctx context.Context, email, password string, role Role) (User, error) {
	if strings.TrimSpace(email) == "" || password == "" || role == "" {
		return User{}, ErrMissingFields
	}
	if err := ValidateEmail(email); err != nil {
		return User{}, err
	}
	if !role.Valid() {
		return User{}, ErrInvalidRole
	}
	email = NormalizeEmail(email)

	if _, err := s.repo.FindByEmail(ctx, email); err == nil {
		return User{}, ErrEmailTaken
	} else if !errors.Is(err, ErrUserNotFound) {
		return User{}, fmt.Errorf("lookup user: %w", err)
	}
	if role == RoleAdmin {
		if err := s.authorizeAdminSignup(ctx); err != nil {
			return User{}, err
		}
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return User{}, fmt.Errorf("hash password: %w", err)
	}

	u, err := s.repo.Create(ctx, User{
		Email:        email,
		PasswordHash: string(hash),
		Role:         role,
		CreatedAt:    s.now().UTC(),
	})
	if err != nil {
		return User{}, err
	}
	s.log.Infow("user registered", "user_id", u.ID.Hex(), "role", u.Role)
	return u, nil
}

func (s *Service) authorizeAdminSignup(ctx context.Context) error {
	if claims, ok := ClaimsFromContext(ctx); ok && claims.Role == RoleAdmin {
		return nil
	}
	admins, err := s.repo.CountByRole(ctx, RoleAdmin)
	if err != nil {
		return fmt.Errorf("count admins: %w", err)
	}
	if admins > 0 {
		return ErrAdminRequired
	}
	return nil
}

func (s *Service) Login(ctx context.Context, email, password string, role Role) (LoginResult, error) {
	if strings.TrimSpace(email) == "" || password == "" {
		return LoginResult{}, ErrMissingFields
	}
	u, err := s.repo.FindByEmail(ctx, NormalizeEmail(email))
	if err != nil {
		return LoginResult{}, err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)); err != nil {
		return LoginResult{}, ErrIncorrectPassword
	}
	if role != "" && u.Role != role {
		return LoginResult{}, ErrRoleMismatch
	}

	token, err := SignToken(BuildClaims(u, s.ttl, s.now()), s.secret)
	if err != nil {
		return LoginResult{}, fmt.Errorf("sign token: %w", err)
	}
	return LoginResult{User: u, Token: token, ExpiresIn: s.ttl}, nil
}

// Logout revokes the token until its natural expiry.
func (s *Service) Logout(ctx context.Context, token string) error {
	claims, err := ParseToken(token, s.secret)
	if err != nil {
		return ErrUnauthorized
	}
	if claims.ID == "" || claims.ExpiresAt == nil {
		return nil
	}
	ttl := claims.ExpiresAt.Time.Sub(s.now())
	if ttl <= 0 {
		return nil
	}
	return s.blacklist.Revoke(ctx, claims.ID, ttl)
}

// Authenticate parses the token and rejects revoked ones.
func (s *Service) Authenticate(ctx context.Context, token string) (Claims, error) {
	claims, err := ParseToken(token, s.secret)
	if err != nil {
		return Claims{}, ErrUnauthorized
	}
	if claims.ID != "" {
		revoked, err := s.blacklist.IsRevoked(ctx, claims.ID)
		if err != nil {
			s.log.Warnw("token blacklist check failed", "error", err)
			return Claims{}, ErrUnauthorized
		}
		if revoked {
			return Claims{}, ErrUnauthorized
		}
	}
	return claims, nil
}

func (s *Service) List(ctx context.Context) ([]User, error) {
	return s.repo.List(ctx)
}

func (s *Service) Update(ctx context.Context, id, email string, role Role) error {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return ErrInvalidID
	}
	if email == "" && role == "" {
		return ErrMissingFields
	}
	if email != "" {
		if err := ValidateEmail(email); err != nil {
			return err
		}
		email = NormalizeEmail(email)
	}
	if role != "" && !role.Valid() {
		return ErrInvalidRole
	}
	found, err := s.repo.Update(ctx, oid, email, role)
	if err != nil {
		return err
	}
	if !found {
		return ErrUserNotFound
	}
	return nil
}

func (s *Service) Delete(ctx context.Context, id string) error {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return ErrInvalidID
	}
	found, err := s.repo.Delete(ctx, oid)
	if err != nil {
		return err
	}
	if !found {
		return ErrUserNotFound
	}
	s.log.Infow("user deleted", "user_id", id)
	return nil
}

func (s *Service) Stats(ctx context.Context) (Stats, error) {
	var st Stats
	var err error
	if st.TotalUsers, err = s.repo.Count(ctx); err != nil {
		return Stats{}, err
	}
	if st.AdminCount, err = s.repo.CountByRole(ctx, RoleAdmin); err != nil {
		return Stats{}, err
	}
	if st.EndUserCount, err = s.repo.CountByRole(ctx, RoleEndUser); err != nil {
		return Stats{}, err
	}
	return st, nil
}
