package controllers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/stitchwell/tailoring-api/middleware"
	"github.com/stitchwell/tailoring-api/services"
)

// RegisterRequest represents the request body for creating an account
type RegisterRequest struct {
	Username string `json:"username" binding:"required,max=50"`
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required,min=8,max=72"`
	Phone    string `json:"phone" binding:"omitempty,max=30"`
	Bio      string `json:"bio" binding:"omitempty,max=1000"`
}

// LoginRequest represents the request body for logging in
type LoginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

// UpdateUserRequest represents the request body for updating a user profile
type UpdateUserRequest struct {
	Username *string `json:"username" binding:"omitempty,min=1,max=50"`
	Email    *string `json:"email" binding:"omitempty,email"`
	Phone    *string `json:"phone" binding:"omitempty,max=30"`
	Bio      *string `json:"bio" binding:"omitempty,max=1000"`
}

// UserController serves registration, login and the caller's profile
type UserController struct {
	users *services.UserService
}

// NewUserController creates a user controller
func NewUserController(users *services.UserService) *UserController {
	return &UserController{users: users}
}

func (req RegisterRequest) input() services.RegisterInput {
	return services.RegisterInput{
		Username: req.Username,
		Email:    req.Email,
		Password: req.Password,
		Phone:    req.Phone,
		Bio:      req.Bio,
	}
}

// Register handles POST /api/v1/auth/register - creates a customer account
func (uc *UserController) Register(c *gin.Context) {
	var req RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondValidationError(c, err)
		return
	}

	result, err := uc.users.Register(c.Request.Context(), req.input())
	if err != nil {
		respondError(c, err)
		return
	}

	respondSuccess(c, http.StatusCreated, result)
}

// Login handles POST /api/v1/auth/login - exchanges credentials for a token
func (uc *UserController) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondValidationError(c, err)
		return
	}

	result, err := uc.users.Login(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		respondError(c, err)
		return
	}

	respondSuccess(c, http.StatusOK, result)
}

// GetMyProfile handles GET /api/v1/users/me - gets current user's profile
func (uc *UserController) GetMyProfile(c *gin.Context) {
	userID, err := middleware.GetUserID(c)
	if err != nil {
		respondUnauthorized(c)
		return
	}

	user, err := uc.users.GetUser(c.Request.Context(), userID)
	if err != nil {
		respondError(c, err)
		return
	}

	respondSuccess(c, http.StatusOK, user)
}

// UpdateMyProfile handles PUT /api/v1/users/me - updates current user's profile
func (uc *UserController) UpdateMyProfile(c *gin.Context) {
	userID, err := middleware.GetUserID(c)
	if err != nil {
		respondUnauthorized(c)
		return
	}

	var req UpdateUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondValidationError(c, err)
		return
	}

	user, err := uc.users.UpdateProfile(c.Request.Context(), userID, services.ProfileUpdate{
		Username: req.Username,
		Email:    req.Email,
		Phone:    req.Phone,
		Bio:      req.Bio,
	})
	if err != nil {
		respondError(c, err)
		return
	}

	respondSuccess(c, http.StatusOK, user)
}

// ListTailors handles GET /api/v1/tailors - lists tailors, optionally by availability (admin only)
func (uc *UserController) ListTailors(c *gin.Context) {
	var available *bool
	switch c.Query("available") {
	case "":
	case "true":
		v := true
		available = &v
	case "false":
		v := false
		available = &v
	default:
		respondFailure(c, http.StatusBadRequest, "INVALID_FILTER", string(services.KindInvalidInput), "available must be true or false", nil)
		return
	}

	tailors, err := uc.users.ListTailors(c.Request.Context(), available)
	if err != nil {
		respondError(c, err)
		return
	}

	respondSuccess(c, http.StatusOK, tailors)
}

// CreateTailor handles POST /api/v1/tailors - adds a tailor account (admin only)
func (uc *UserController) CreateTailor(c *gin.Context) {
	var req RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondValidationError(c, err)
		return
	}

	tailor, err := uc.users.CreateTailor(c.Request.Context(), req.input())
	if err != nil {
		respondError(c, err)
		return
	}

	respondSuccess(c, http.StatusCreated, tailor)
}

// GetTailor handles GET /api/v1/tailors/:id (admin only)
func (uc *UserController) GetTailor(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}

	tailor, err := uc.users.GetTailor(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}

	respondSuccess(c, http.StatusOK, tailor)
}

// UpdateTailor handles PUT /api/v1/tailors/:id - edits a tailor's profile (admin only)
func (uc *UserController) UpdateTailor(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}

	var req UpdateUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondValidationError(c, err)
		return
	}

	tailor, err := uc.users.UpdateTailor(c.Request.Context(), id, services.ProfileUpdate{
		Username: req.Username,
		Email:    req.Email,
		Phone:    req.Phone,
		Bio:      req.Bio,
	})
	if err != nil {
		respondError(c, err)
		return
	}

	respondSuccess(c, http.StatusOK, tailor)
}

// DeleteTailor handles DELETE /api/v1/tailors/:id (admin only)
func (uc *UserController) DeleteTailor(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}

	if err := uc.users.DeleteTailor(c.Request.Context(), id); err != nil {
		respondError(c, err)
		return
	}

	respondSuccess(c, http.StatusOK, gin.H{"message": "Tailor deleted"})
}
