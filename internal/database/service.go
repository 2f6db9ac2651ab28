package database

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// UserService provides business logic for user management
type UserService struct {
	repo      *Repository
	jwtSecret []byte
	freeLimit int
}

// NewUserService creates a new user service
func NewUserService(repo *Repository, jwtSecret string) *UserService {
	return &UserService{
		repo:      repo,
		jwtSecret: []byte(jwtSecret),
		freeLimit: 5, // 5 assessment submissions per week
	}
}

// RequestResult represents the result of processing a request
type RequestResult struct {
	User          *User       `json:"user"`
	Usage         *UsageStats `json:"usage"`
	CanSubmit     bool        `json:"can_submit"`
	RequestLogged bool        `json:"request_logged"`
}

// ProcessRequest resolves the caller to a user and enforces the weekly
// submission quota on the assessment endpoint.
func (s *UserService) ProcessRequest(ipAddress, userAgent, endpoint, method string) (*RequestResult, error) {
	// Get or create user
	user, err := s.repo.GetOrCreateUser(ipAddress, userAgent)
	if err != nil {
		return nil, fmt.Errorf("failed to get/create user: %w", err)
	}

	canSubmit, usage, err := s.repo.CanSubmit(user.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to check submission quota: %w", err)
	}

	result := &RequestResult{
		User:      user,
		Usage:     usage,
		CanSubmit: canSubmit,
	}

	// Only submission requests count against the quota
	if endpoint == "/assessment/submit" || endpoint == "/api/assessment/submit" {
		if canSubmit {
			err = s.repo.LogActivity(user.ID, ipAddress, endpoint, method, userAgent)
			if err != nil {
				return nil, fmt.Errorf("failed to log activity: %w", err)
			}
			result.RequestLogged = true
		}
	}

	return result, nil
}

// GetRemainingSubmissions returns the number of submissions left this week
func (s *UserService) GetRemainingSubmissions(userID string) (int, error) {
	usage, err := s.repo.GetWeeklyUsage(userID)
	if err != nil {
		return 0, err
	}

	remaining := s.freeLimit - usage.SubmissionsThisWeek
	if remaining < 0 {
		remaining = 0
	}

	return remaining, nil
}

// GenerateSessionToken generates a JWT token for the user session
func (s *UserService) GenerateSessionToken(userID string) (string, error) {
	claims := jwt.MapClaims{
		"user_id": userID,
		"exp":     time.Now().Add(24 * time.Hour).Unix(), // 24 hour expiry
		"iat":     time.Now().Unix(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString(s.jwtSecret)
	if err != nil {
		return "", fmt.Errorf("failed to generate token: %w", err)
	}

	return tokenString, nil
}

// ValidateSessionToken validates a JWT token and returns the user ID
func (s *UserService) ValidateSessionToken(tokenString string) (string, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.jwtSecret, nil
	})

	if err != nil {
		return "", err
	}

	if claims, ok := token.Claims.(jwt.MapClaims); ok && token.Valid {
		userID, ok := claims["user_id"].(string)
		if !ok {
			return "", fmt.Errorf("user_id not found in token")
		}
		return userID, nil
	}

	return "", fmt.Errorf("invalid token")
}

// UserStats represents comprehensive user statistics
type UserStats struct {
	UserID               string    `json:"user_id"`
	SubmissionsThisWeek  int       `json:"submissions_this_week"`
	RemainingSubmissions int       `json:"remaining_submissions"`
	WeekStart            time.Time `json:"week_start"`
	WeekEnd              time.Time `json:"week_end"`
}

// GetUserStats returns comprehensive user statistics
func (s *UserService) GetUserStats(userID string) (*UserStats, error) {
	usage, err := s.repo.GetWeeklyUsage(userID)
	if err != nil {
		return nil, err
	}

	remaining, err := s.GetRemainingSubmissions(userID)
	if err != nil {
		return nil, err
	}

	return &UserStats{
		UserID:               userID,
		SubmissionsThisWeek:  usage.SubmissionsThisWeek,
		RemainingSubmissions: remaining,
		WeekStart:            usage.WeekStart,
		WeekEnd:              usage.WeekEnd,
	}, nil
}
