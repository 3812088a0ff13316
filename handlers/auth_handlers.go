package handlers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-kratos/kratos/v2/log"
	"golang.org/x/crypto/bcrypt"

	"gamestore/api/models"
	"gamestore/api/store"
)

const (
	AuthCookieName = "jwt_token"
	AuthTokenTTL   = 24 * time.Hour
)

type UserRepository interface {
	CreateUser(ctx context.Context, username, email string, hashedPassword []byte) (*models.User, error)
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)
	GetUserByID(ctx context.Context, id int64) (*models.User, error)
}

type TokenIssuer interface {
	GenerateJWT(user *models.User) (string, error)
}

type AuthHandlers struct {
	UserStore UserRepository
	Tokens    TokenIssuer
	log       *log.Helper
}

func NewAuthHandlers(userStore UserRepository, tokens TokenIssuer, logger log.Logger) *AuthHandlers {
	useJSONFieldNames()
	return &AuthHandlers{
		UserStore: userStore,
		Tokens:    tokens,
		log:       log.NewHelper(log.With(logger, "module", "handlers/auth")),
	}
}

func (h *AuthHandlers) Signup(c *gin.Context) {
	ctx := c.Request.Context()
	var req models.SignupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"detail": bindingDetails(err)})
		return
	}

	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		h.log.WithContext(ctx).Errorw("msg", "failed to hash password", "email", req.Email, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to process password"})
		return
	}

	user, err := h.UserStore.CreateUser(ctx, req.Username, req.Email, hashedPassword)
	if err != nil {
		if errors.Is(err, store.ErrUserExists) {
			c.JSON(http.StatusConflict, gin.H{"error": "User with this username or email already exists"})
			return
		}
		h.log.WithContext(ctx).Errorw("msg", "failed to create user", "email", req.Email, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to register user"})
		return
	}

	h.log.WithContext(ctx).Infow("msg", "user registered", "user_id", user.ID)
	c.JSON(http.StatusCreated, models.Response[models.User]{
		Status:  "success",
		Message: "User created successfully",
		Data:    user,
	})
}

// Login checks the credentials and issues a JWT, both as an HttpOnly cookie
// and in the body for bearer clients.
func (h *AuthHandlers) Login(c *gin.Context) {
	ctx := c.Request.Context()
	var req models.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"detail": bindingDetails(err)})
		return
	}

	user, err := h.UserStore.GetUserByEmail(ctx, req.Email)
	if err != nil {
		if !errors.Is(err, store.ErrUserNotFound) {
			h.log.WithContext(ctx).Errorw("msg", "failed to look up user", "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to authenticate"})
			return
		}
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid credentials"})
		return
	}
	if !user.IsActive {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid credentials"})
		return
	}
	if err := bcrypt.CompareHashAndPassword(user.HashedPassword, []byte(req.Password)); err != nil {
		h.log.WithContext(ctx).Debugw("msg", "login password mismatch", "user_id", user.ID)
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid credentials"})
		return
	}

	token, err := h.Tokens.GenerateJWT(user)
	if err != nil {
		h.log.WithContext(ctx).Errorw("msg", "failed to generate JWT", "user_id", user.ID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to generate authentication token"})
		return
	}

	c.SetCookie(AuthCookieName, token, int(AuthTokenTTL/time.Second), "/", "", false, true)
	c.JSON(http.StatusOK, gin.H{
		"message":      "Login successful",
		"user_email":   user.Email,
		"access_token": token,
		"token_type":   "bearer",
	})
}

func (h *AuthHandlers) Logout(c *gin.Context) {
	c.SetCookie(AuthCookieName, "", -1, "/", "", false, true)
	c.JSON(http.StatusOK, gin.H{"message": "Logged out successfully"})
}

func (h *AuthHandlers) GetUser(c *gin.Context) {
	ctx := c.Request.Context()
	userID, err := strconv.ParseInt(c.Param("user_id"), 10, 64)
	if err != nil || userID <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"detail": "user_id must be a positive integer"})
		return
	}

	user, err := h.UserStore.GetUserByID(ctx, userID)
	if err != nil {
		if errors.Is(err, store.ErrUserNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"detail": fmt.Sprintf("User with ID %d not found", userID)})
			return
		}
		h.log.WithContext(ctx).Errorw("msg", "failed to read user", "user_id", userID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"detail": "Failed to retrieve user"})
		return
	}

	c.JSON(http.StatusOK, models.Response[models.User]{
		Status:  "success",
		Message: "User retrieved successfully",
		Data:    user,
	})
}

// Profile echoes the identity the auth middleware attached to the request.
func (h *AuthHandlers) Profile(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"message":    "Welcome to your profile!",
		"user_id":    c.GetInt64("user_id"),
		"user_email": c.GetString("user_email"),
		"ip_address": c.ClientIP(),
	})
}
