package services

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"
	"github.com/upb/tenantchat/backend/models"
	"github.com/upb/tenantchat/backend/repositories"
	"github.com/upb/tenantchat/backend/verifier"
)

// MockUserRepository is a mock implementation of UserRepository
type MockUserRepository struct {
	mock.Mock
}

func (m *MockUserRepository) GetByExternalIdentity(ctx context.Context, issuer, subject string) (*models.User, error) {
	args := m.Called(ctx, issuer, subject)
	if u := args.Get(0); u != nil {
		return u.(*models.User), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockUserRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	args := m.Called(ctx, id)
	if u := args.Get(0); u != nil {
		return u.(*models.User), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockUserRepository) CreateUser(ctx context.Context, user *models.User) error {
	args := m.Called(ctx, user)
	return args.Error(0)
}

func (m *MockUserRepository) UpdateProfile(ctx context.Context, id uuid.UUID, update models.ProfileUpdate) error {
	args := m.Called(ctx, id, update)
	return args.Error(0)
}

func (m *MockUserRepository) TouchLastSeen(ctx context.Context, id uuid.UUID, at time.Time) error {
	args := m.Called(ctx, id, at)
	return args.Error(0)
}

func (m *MockUserRepository) LinkExternalIdentity(ctx context.Context, identity *models.ExternalIdentity) (bool, error) {
	args := m.Called(ctx, identity)
	return args.Bool(0), args.Error(1)
}

func (m *MockUserRepository) WithTx(tx repositories.Transaction) repositories.UserRepository {
	args := m.Called(tx)
	return args.Get(0).(repositories.UserRepository)
}

// MockRoleRepository is a mock implementation of RoleRepository
type MockRoleRepository struct {
	mock.Mock
}

func (m *MockRoleRepository) AssignRoleToUser(ctx context.Context, userID uuid.UUID, role string) error {
	args := m.Called(ctx, userID, role)
	return args.Error(0)
}

func (m *MockRoleRepository) ListRoleNamesForUser(ctx context.Context, userID uuid.UUID) ([]string, error) {
	args := m.Called(ctx, userID)
	if roles := args.Get(0); roles != nil {
		return roles.([]string), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockRoleRepository) WithTx(tx repositories.Transaction) repositories.RoleRepository {
	args := m.Called(tx)
	return args.Get(0).(repositories.RoleRepository)
}

// MockTokenVerifier is a mock implementation of TokenVerifier
type MockTokenVerifier struct {
	mock.Mock
}

func (m *MockTokenVerifier) Verify(ctx context.Context, token string) (*verifier.VerifiedJWT, error) {
	args := m.Called(ctx, token)
	if v := args.Get(0); v != nil {
		return v.(*verifier.VerifiedJWT), args.Error(1)
	}
	return nil, args.Error(1)
}

// directUnitOfWork runs fn against the given repositories without a transaction
type directUnitOfWork struct {
	users repositories.UserRepository
	roles repositories.RoleRepository
	runs  int
}

func (u *directUnitOfWork) Execute(ctx context.Context, fn func(ctx context.Context, repos repositories.TxRepositories) error) error {
	u.runs++
	return fn(ctx, repositories.TxRepositories{Users: u.users, Roles: u.roles})
}
