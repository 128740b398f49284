package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/stitchwell/tailoring-api/models"
	"github.com/stitchwell/tailoring-api/utils"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// RegisterInput holds the fields for creating an account
type RegisterInput struct {
	Username string
	Email    string
	Password string
	Phone    string
	Bio      string
}

// ProfileUpdate holds the profile fields a user may change; nil fields are left as is
type ProfileUpdate struct {
	Username *string
	Email    *string
	Phone    *string
	Bio      *string
}

// AuthResult is returned by register and login
type AuthResult struct {
	Token string       `json:"token"`
	User  *models.User `json:"user"`
}

// UserService manages accounts, authentication and the tailor directory
type UserService struct {
	db     *gorm.DB
	tokens utils.TokenIssuer
	logger *zap.Logger
}

// NewUserService creates a user service
func NewUserService(db *gorm.DB, tokens utils.TokenIssuer, logger *zap.Logger) *UserService {
	return &UserService{db: db, tokens: tokens, logger: logger}
}

// Register creates a customer account and returns a token for it
func (s *UserService) Register(ctx context.Context, input RegisterInput) (*AuthResult, error) {
	user, err := s.createUser(ctx, input, models.RoleCustomer)
	if err != nil {
		return nil, err
	}
	return s.issue(user)
}

// CreateTailor adds a tailor account to the directory
func (s *UserService) CreateTailor(ctx context.Context, input RegisterInput) (*models.User, error) {
	return s.createUser(ctx, input, models.RoleTailor)
}

func (s *UserService) createUser(ctx context.Context, input RegisterInput, role string) (*models.User, error) {
	username := strings.TrimSpace(input.Username)
	email := strings.ToLower(strings.TrimSpace(input.Email))

	if username == "" {
		return nil, InvalidInput("INVALID_USERNAME", "Username is required")
	}
	if err := validate.Var(email, "required,email"); err != nil {
		return nil, InvalidInput("INVALID_EMAIL", "A valid email is required")
	}
	if len(input.Password) < utils.MinPasswordLength {
		return nil, InvalidInput("WEAK_PASSWORD", fmt.Sprintf("Password must be at least %d characters", utils.MinPasswordLength))
	}

	hash, err := utils.HashPassword(input.Password)
	if err != nil {
		return nil, err
	}

	user := models.User{
		Username:     username,
		Email:        email,
		PasswordHash: hash,
		Role:         role,
		Phone:        strings.TrimSpace(input.Phone),
		Bio:          input.Bio,
		Available:    true,
	}
	if err := s.db.WithContext(ctx).Create(&user).Error; err != nil {
		if isUniqueViolation(err) {
			return nil, Conflict("USER_EXISTS", "A user with this username or email already exists")
		}
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	s.logger.Info("user created", zap.Uint("user_id", user.ID), zap.String("role", role))
	return &user, nil
}

// Login checks credentials and returns a token
func (s *UserService) Login(ctx context.Context, email, password string) (*AuthResult, error) {
	var user models.User
	err := s.db.WithContext(ctx).Where("email = ?", strings.ToLower(strings.TrimSpace(email))).First(&user).Error
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("failed to look up user: %w", err)
	}
	if err != nil || !utils.CheckPassword(user.PasswordHash, password) {
		return nil, &ServiceError{Kind: KindInvalidInput, Code: "INVALID_CREDENTIALS", Message: "Invalid email or password"}
	}
	return s.issue(&user)
}

func (s *UserService) issue(user *models.User) (*AuthResult, error) {
	token, err := s.tokens.GenerateToken(user.ID, user.Role)
	if err != nil {
		return nil, err
	}
	return &AuthResult{Token: token, User: user}, nil
}

// GetUser returns a user by id
func (s *UserService) GetUser(ctx context.Context, id uint) (*models.User, error) {
	var user models.User
	if err := s.db.WithContext(ctx).First(&user, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errUserNotFound
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return &user, nil
}

// UpdateProfile applies the allow-listed profile changes
func (s *UserService) UpdateProfile(ctx context.Context, id uint, update ProfileUpdate) (*models.User, error) {
	user, err := s.GetUser(ctx, id)
	if err != nil {
		return nil, err
	}

	changes := map[string]interface{}{}
	if update.Username != nil {
		username := strings.TrimSpace(*update.Username)
		if username == "" {
			return nil, InvalidInput("INVALID_USERNAME", "Username cannot be empty")
		}
		changes["username"] = username
	}
	if update.Email != nil {
		email := strings.ToLower(strings.TrimSpace(*update.Email))
		if err := validate.Var(email, "required,email"); err != nil {
			return nil, InvalidInput("INVALID_EMAIL", "A valid email is required")
		}
		changes["email"] = email
	}
	if update.Phone != nil {
		changes["phone"] = strings.TrimSpace(*update.Phone)
	}
	if update.Bio != nil {
		changes["bio"] = *update.Bio
	}
	if len(changes) == 0 {
		return user, nil
	}

	if err := s.db.WithContext(ctx).Model(user).Updates(changes).Error; err != nil {
		if isUniqueViolation(err) {
			return nil, Conflict("USER_EXISTS", "A user with this username or email already exists")
		}
		return nil, fmt.Errorf("failed to update user: %w", err)
	}
	return s.GetUser(ctx, id)
}

// ListTailors returns tailors, optionally only those with the given availability
func (s *UserService) ListTailors(ctx context.Context, available *bool) ([]models.User, error) {
	query := s.db.WithContext(ctx).Where("role = ?", models.RoleTailor)
	if available != nil {
		query = query.Where("available = ?", *available)
	}

	tailors := []models.User{}
	if err := query.Order("username ASC").Find(&tailors).Error; err != nil {
		return nil, fmt.Errorf("failed to list tailors: %w", err)
	}
	return tailors, nil
}

// EnsureAdmin creates the bootstrap admin account when no user with that email exists
func (s *UserService) EnsureAdmin(ctx context.Context, email, password string) error {
	if email == "" || password == "" {
		return nil
	}

	var count int64
	if err := s.db.WithContext(ctx).Model(&models.User{}).Where("email = ?", strings.ToLower(email)).Count(&count).Error; err != nil {
		return fmt.Errorf("failed to check admin account: %w", err)
	}
	if count > 0 {
		return nil
	}

	username := strings.SplitN(email, "@", 2)[0]
	if _, err := s.createUser(ctx, RegisterInput{Username: username, Email: email, Password: password}, models.RoleAdmin); err != nil {
		return fmt.Errorf("failed to create admin account: %w", err)
	}
	s.logger.Info("bootstrap admin created", zap.String("email", email))
	return nil
}

// UserQuery filters the admin user directory
type UserQuery struct {
	Search string
	Role   string
	Page   int
	Limit  int
}

// Pagination describes a page of results
type Pagination struct {
	Total int64 `json:"total"`
	Pages int   `json:"pages"`
	Page  int   `json:"page"`
	Limit int   `json:"limit"`
}

// UserPage is one page of the user directory
type UserPage struct {
	Users      []models.User `json:"users"`
	Pagination Pagination    `json:"pagination"`
}

const (
	defaultPageSize = 10
	maxPageSize     = 100
)

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// ListUsers pages through customer and tailor accounts, newest first.
// Search matches username or email case-insensitively; role "all" or "" means both roles.
func (s *UserService) ListUsers(ctx context.Context, q UserQuery) (*UserPage, error) {
	role := strings.TrimSpace(q.Role)
	if role != "" && role != "all" && role != models.RoleCustomer && role != models.RoleTailor {
		return nil, InvalidInput("INVALID_ROLE_FILTER", "role must be customer, tailor or all")
	}
	page := q.Page
	if page < 1 {
		page = 1
	}
	limit := q.Limit
	if limit < 1 {
		limit = defaultPageSize
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}

	query := s.db.WithContext(ctx).Model(&models.User{}).Where("role <> ?", models.RoleAdmin)
	if role != "" && role != "all" {
		query = query.Where("role = ?", role)
	}
	if search := strings.ToLower(strings.TrimSpace(q.Search)); search != "" {
		pattern := "%" + likeEscaper.Replace(search) + "%"
		query = query.Where(`(LOWER(username) LIKE ? ESCAPE '\' OR LOWER(email) LIKE ? ESCAPE '\')`, pattern, pattern)
	}

	query = query.Session(&gorm.Session{})

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, fmt.Errorf("failed to count users: %w", err)
	}

	users := []models.User{}
	err := query.Order("created_at DESC, id DESC").Offset((page - 1) * limit).Limit(limit).Find(&users).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}

	return &UserPage{
		Users: users,
		Pagination: Pagination{
			Total: total,
			Pages: int((total + int64(limit) - 1) / int64(limit)),
			Page:  page,
			Limit: limit,
		},
	}, nil
}

// GetTailor returns a tailor account by id
func (s *UserService) GetTailor(ctx context.Context, id uint) (*models.User, error) {
	var tailor models.User
	err := s.db.WithContext(ctx).Where("id = ? AND role = ?", id, models.RoleTailor).First(&tailor).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errTailorNotFound
		}
		return nil, fmt.Errorf("failed to get tailor: %w", err)
	}
	return &tailor, nil
}

// UpdateTailor applies admin profile changes to a tailor. Availability is owned by order assignment.
func (s *UserService) UpdateTailor(ctx context.Context, id uint, update ProfileUpdate) (*models.User, error) {
	if _, err := s.GetTailor(ctx, id); err != nil {
		return nil, err
	}
	return s.UpdateProfile(ctx, id, update)
}

// DeleteTailor removes a tailor from the directory. A tailor working on an order is unavailable
// and cannot be removed until the order is completed or cancelled.
func (s *UserService) DeleteTailor(ctx context.Context, id uint) error {
	result := s.db.WithContext(ctx).
		Where("id = ? AND role = ? AND available = ?", id, models.RoleTailor, true).
		Delete(&models.User{})
	if result.Error != nil {
		return fmt.Errorf("failed to delete tailor: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		if _, err := s.GetTailor(ctx, id); err != nil {
			return err
		}
		return Conflict("TAILOR_BUSY", "Tailor is assigned to an active order")
	}

	s.logger.Info("tailor deleted", zap.Uint("tailor_id", id))
	return nil
}
