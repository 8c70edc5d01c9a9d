package services

import (
	"crypto/rand"
	"crypto/subtle"
	"database/sql"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/go-redis/redis/v8"
	"github.com/golang-jwt/jwt/v5"
	"github.com/spf13/viper"
	"golang.org/x/crypto/argon2"

	"github.com/nexushours/backend/internal/models"
)

type AuthService struct {
	db        *sql.DB
	redis     *redis.Client
	validator *validator.Validate
}

func NewAuthService(db *sql.DB, redisClient *redis.Client) *AuthService {
	return &AuthService{
		db:        db,
		redis:     redisClient,
		validator: validator.New(),
	}
}

// RegisterRequest represents the registration request payload
type RegisterRequest struct {
	Email     string `json:"email" validate:"required,email" example:"member@example.com"`
	Password  string `json:"password" validate:"required,min=6" example:"password123"`
	FirstName string `json:"firstName" validate:"required,min=2" example:"Ada"`
	LastName  string `json:"lastName" validate:"required,min=2" example:"Okafor"`
	TenantID  int64  `json:"tenantId" validate:"required,gt=0" example:"1"`
}

// LoginRequest represents the login request payload
type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=6"`
	TenantID int64  `json:"tenantId" validate:"required,gt=0"`
}

// AuthResponse is returned from register and login.
type AuthResponse struct {
	Token string      `json:"token"`
	User  models.User `json:"user"`
}

// Register creates a member account scoped to a tenant with a zero balance.
func (as *AuthService) Register(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest

	r.Body = http.MaxBytesReader(w, r.Body, 1_048_576)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	if err := dec.Decode(&req); err != nil {
		SendErrorResponse(w, "Invalid request body", http.StatusBadRequest, nil)
		return
	}

	if err := dec.Decode(&struct{}{}); err != io.EOF {
		SendErrorResponse(w, "Request body must only contain a single JSON object", http.StatusBadRequest, nil)
		return
	}

	if err := as.validator.Struct(&req); err != nil {
		SendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)
		return
	}

	var exists bool
	err := as.db.QueryRow(`
		SELECT EXISTS(SELECT 1 FROM users WHERE email = $1 AND tenant_id = $2)`,
		req.Email, req.TenantID).Scan(&exists)
	if err != nil {
		log.Printf("[AUTH] Registration lookup failed: %v", err)
		SendErrorResponse(w, "Registration failed", http.StatusInternalServerError, nil)
		return
	}
	if exists {
		SendErrorResponse(w, "Email already registered", http.StatusConflict, nil)
		return
	}

	hash, err := hashPassword(req.Password)
	if err != nil {
		log.Printf("[AUTH] Password hashing failed: %v", err)
		SendErrorResponse(w, "Registration failed", http.StatusInternalServerError, nil)
		return
	}

	user := models.User{
		TenantID:  req.TenantID,
		Email:     req.Email,
		FirstName: req.FirstName,
		LastName:  req.LastName,
	}
	now := time.Now()
	err = as.db.QueryRow(`
		INSERT INTO users (tenant_id, email, password_hash, first_name, last_name, balance, version, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, 0, 0, $6, $6)
		RETURNING id`,
		req.TenantID, req.Email, hash, req.FirstName, req.LastName, now,
	).Scan(&user.ID)
	if err != nil {
		log.Printf("[AUTH] Registration insert failed: %v", err)
		SendErrorResponse(w, "Registration failed", http.StatusInternalServerError, nil)
		return
	}

	token, err := issueToken(user.ID, user.TenantID)
	if err != nil {
		log.Printf("[AUTH] Token issue failed: %v", err)
		SendErrorResponse(w, "Registration failed", http.StatusInternalServerError, nil)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(AuthResponse{Token: token, User: user})
}

// Login verifies credentials and issues a tenant-scoped JWT.
func (as *AuthService) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest

	r.Body = http.MaxBytesReader(w, r.Body, 1_048_576)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	if err := dec.Decode(&req); err != nil {
		SendErrorResponse(w, "Invalid request body", http.StatusBadRequest, nil)
		return
	}

	if err := as.validator.Struct(&req); err != nil {
		SendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)
		return
	}

	var user models.User
	var storedHash string
	err := as.db.QueryRow(`
		SELECT id, tenant_id, email, password_hash, first_name, last_name, balance, is_admin
		FROM users
		WHERE email = $1 AND tenant_id = $2`,
		req.Email, req.TenantID,
	).Scan(&user.ID, &user.TenantID, &user.Email, &storedHash,
		&user.FirstName, &user.LastName, &user.Balance, &user.IsAdmin)
	if err != nil {
		SendErrorResponse(w, "Invalid credentials", http.StatusUnauthorized, nil)
		return
	}

	ok, err := verifyPassword(req.Password, storedHash)
	if err != nil || !ok {
		SendErrorResponse(w, "Invalid credentials", http.StatusUnauthorized, nil)
		return
	}

	token, err := issueToken(user.ID, user.TenantID)
	if err != nil {
		log.Printf("[AUTH] Token issue failed: %v", err)
		SendErrorResponse(w, "Login failed", http.StatusInternalServerError, nil)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(AuthResponse{Token: token, User: user})
}

// Logout revokes the presented token until its natural expiry.
func (as *AuthService) Logout(w http.ResponseWriter, r *http.Request) {
	authHeader := r.Header.Get("Authorization")
	parts := strings.Split(authHeader, " ")
	if len(parts) != 2 || parts[0] != "Bearer" {
		SendErrorResponse(w, "Authorization header required", http.StatusUnauthorized, nil)
		return
	}

	if as.redis != nil {
		expiry := viper.GetDuration("jwt.expiry")
		if expiry <= 0 {
			expiry = 24 * time.Hour
		}
		if err := as.redis.Set(r.Context(), "revoked:"+parts[1], "1", expiry).Err(); err != nil {
			log.Printf("[AUTH] Token revocation failed: %v", err)
		}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{"success": true})
}

func issueToken(userID, tenantID int64) (string, error) {
	expiry := viper.GetDuration("jwt.expiry")
	if expiry <= 0 {
		expiry = 24 * time.Hour
	}

	claims := jwt.MapClaims{
		"user_id":   userID,
		"tenant_id": tenantID,
		"exp":       time.Now().Add(expiry).Unix(),
		"iat":       time.Now().Unix(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(viper.GetString("jwt.secret_key")))
}

// Argon2id parameters follow the library's recommended defaults for
// interactive logins.
const (
	argonTime    = 1
	argonMemory  = 64 * 1024
	argonThreads = 4
	argonKeyLen  = 32
	argonSaltLen = 16
)

func hashPassword(password string) (string, error) {
	salt := make([]byte, argonSaltLen)
	if _, err := rand.Read(salt); err != nil {
		return "", err
	}

	key := argon2.IDKey([]byte(password), salt, argonTime, argonMemory, argonThreads, argonKeyLen)
	return fmt.Sprintf("%s$%s",
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(key)), nil
}

func verifyPassword(password, stored string) (bool, error) {
	parts := strings.SplitN(stored, "$", 2)
	if len(parts) != 2 {
		return false, fmt.Errorf("malformed password hash")
	}

	salt, err := base64.RawStdEncoding.DecodeString(parts[0])
	if err != nil {
		return false, err
	}
	expected, err := base64.RawStdEncoding.DecodeString(parts[1])
	if err != nil {
		return false, err
	}

	key := argon2.IDKey([]byte(password), salt, argonTime, argonMemory, argonThreads, argonKeyLen)
	return subtle.ConstantTimeCompare(key, expected) == 1, nil
}
