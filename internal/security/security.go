package security

import (
	"context"
	"fmt"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"github.com/mehtab-afsar/qcombinator-backend/internal/database"
)

// SecurityConfig holds security configuration
type SecurityConfig struct {
	MaxAnswerLength   int           `json:"max_answer_length"`
	MaxRequestsPerMin int           `json:"max_requests_per_min"`
	EnableCORS        bool          `json:"enable_cors"`
	AllowedOrigins    []string      `json:"allowed_origins"`
	TrustedProxies    []string      `json:"trusted_proxies"`
	RequestTimeout    time.Duration `json:"request_timeout"`
}

// DefaultSecurityConfig returns secure defaults
func DefaultSecurityConfig() SecurityConfig {
	return SecurityConfig{
		MaxAnswerLength:   4000,
		MaxRequestsPerMin: 60,
		EnableCORS:        true,
		AllowedOrigins:    []string{"http://localhost:3000", "http://localhost:5173"},
		TrustedProxies:    []string{"127.0.0.1", "::1", "10.0.0.0/8", "172.16.0.0/12", "192.168.0.0/16"},
		RequestTimeout:    30 * time.Second,
	}
}

// SecurityMiddleware provides comprehensive security middleware
type SecurityMiddleware struct {
	config      SecurityConfig
	rateLimiter *rate.Limiter
	ipLimiters  map[string]*rate.Limiter
	userService *database.UserService
}

// NewSecurityMiddleware creates a new security middleware instance
func NewSecurityMiddleware(config SecurityConfig) *SecurityMiddleware {
	return &SecurityMiddleware{
		config:      config,
		rateLimiter: rate.NewLimiter(rate.Limit(config.MaxRequestsPerMin/60.0), config.MaxRequestsPerMin/10),
		ipLimiters:  make(map[string]*rate.Limiter),
	}
}

// SetUserService sets the user service used to resolve callers to founders
func (sm *SecurityMiddleware) SetUserService(userService *database.UserService) {
	sm.userService = userService
}

// ValidateAnswer validates one free-text assessment answer
func (sm *SecurityMiddleware) ValidateAnswer(input string) error {
	// Check length limits
	if len(input) > sm.config.MaxAnswerLength {
		return fmt.Errorf("answer exceeds maximum length of %d characters", sm.config.MaxAnswerLength)
	}

	// Check for null bytes (potential injection attempt)
	if strings.Contains(input, "\x00") {
		return fmt.Errorf("answer contains invalid characters")
	}

	// Validate UTF-8 encoding
	if !utf8.ValidString(input) {
		return fmt.Errorf("answer contains invalid UTF-8 encoding")
	}

	// Check for suspicious patterns (basic XSS/SQL injection detection)
	suspiciousPatterns := []string{
		`<script`, `</script>`, `javascript:`,
		`union select`, `drop table`, `alter table`,
		`xp_`, `sp_`,
	}

	inputLower := strings.ToLower(input)
	for _, pattern := range suspiciousPatterns {
		if strings.Contains(inputLower, pattern) {
			return fmt.Errorf("answer contains suspicious patterns")
		}
	}

	return nil
}

// SanitizeText sanitizes free-text input by removing potentially dangerous content
func (sm *SecurityMiddleware) SanitizeText(input string) string {
	// Trim whitespace
	input = strings.TrimSpace(input)

	// Remove script tags and their content
	scriptPattern := regexp.MustCompile(`(?i)<script[^>]*>.*?</script>`)
	input = scriptPattern.ReplaceAllString(input, "")

	// Remove other HTML tags (but keep content between them)
	htmlTagPattern := regexp.MustCompile(`<[^>]+>`)
	input = htmlTagPattern.ReplaceAllString(input, "")

	// Remove excessive whitespace
	input = regexp.MustCompile(`\s+`).ReplaceAllString(input, " ")

	return input
}

// IdentifyFounder resolves the caller to a founder account. A valid Bearer
// token wins; otherwise the caller is matched by IP, creating the account
// on first contact. Sets user_id and user_stats on the request context.
func (sm *SecurityMiddleware) IdentifyFounder(c *gin.Context) {
	if sm.userService == nil {
		c.Next()
		return
	}

	clientIP := c.ClientIP()
	userAgent := c.GetHeader("User-Agent")

	// Bearer token takes precedence over IP resolution
	if auth := c.GetHeader("Authorization"); strings.HasPrefix(auth, "Bearer ") {
		tokenStr := strings.TrimPrefix(auth, "Bearer ")
		if userID, err := sm.userService.ValidateSessionToken(tokenStr); err == nil {
			c.Set("user_id", userID)
			c.Next()
			return
		}
		// Invalid token falls through to IP resolution rather than failing:
		// expired sessions should degrade, not lock founders out.
	}

	result, err := sm.userService.ProcessRequest(clientIP, userAgent, c.Request.URL.Path, c.Request.Method)
	if err != nil {
		fmt.Printf("[IDENTIFY] Error resolving founder: %v\n", err)
		c.Next()
		return
	}

	// Store user and usage info in context for handlers
	c.Set("user_id", result.User.ID)
	c.Set("user_stats", result.Usage)
	c.Set("request_logged", result.RequestLogged)

	// Enforce the weekly submission quota on the submit endpoint
	isSubmit := c.Request.URL.Path == "/assessment/submit" || c.Request.URL.Path == "/api/assessment/submit"
	if isSubmit && !result.CanSubmit {
		remaining, _ := sm.userService.GetRemainingSubmissions(result.User.ID)

		c.JSON(http.StatusTooManyRequests, gin.H{
			"error":                 "weekly submission limit exceeded",
			"message":               "You've used all 5 free assessments this week",
			"remaining_submissions": remaining,
			"week_start":            result.Usage.WeekStart.Format("2006-01-02"),
			"week_end":              result.Usage.WeekEnd.Format("2006-01-02"),
		})
		c.Abort()
		return
	}

	c.Next()
}

// SecurityHeaders adds security headers to responses
func (sm *SecurityMiddleware) SecurityHeaders(c *gin.Context) {
	// Prevent MIME type sniffing
	c.Header("X-Content-Type-Options", "nosniff")

	// Prevent clickjacking
	c.Header("X-Frame-Options", "DENY")

	// XSS protection
	c.Header("X-XSS-Protection", "1; mode=block")

	// HSTS (HTTP Strict Transport Security) - only over TLS
	if c.Request.TLS != nil {
		c.Header("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
	}

	// Content Security Policy
	c.Header("Content-Security-Policy", "default-src 'self'; script-src 'self' 'unsafe-inline'; style-src 'self' 'unsafe-inline'; connect-src 'self'")

	// Referrer Policy
	c.Header("Referrer-Policy", "strict-origin-when-cross-origin")

	// Permissions Policy for camera/microphone (not needed)
	c.Header("Permissions-Policy", "camera=(), microphone=()")

	c.Next()
}

// ValidateContentType validates request content type
func (sm *SecurityMiddleware) ValidateContentType(c *gin.Context) {
	contentType := c.GetHeader("Content-Type")

	// Allow JSON and form-encoded content
	allowedTypes := []string{
		"application/json",
		"application/x-www-form-urlencoded",
		"multipart/form-data",
	}

	if contentType != "" {
		found := false
		for _, allowed := range allowedTypes {
			if strings.Contains(strings.ToLower(contentType), allowed) {
				found = true
				break
			}
		}

		if !found {
			c.JSON(http.StatusUnsupportedMediaType, gin.H{
				"error": "unsupported content type",
			})
			c.Abort()
			return
		}
	}

	c.Next()
}

// RequestTimeout enforces request timeout
func (sm *SecurityMiddleware) RequestTimeout(c *gin.Context) {
	// Create a timeout context
	ctx, cancel := context.WithTimeout(c.Request.Context(), sm.config.RequestTimeout)
	defer cancel()

	// Replace request context
	c.Request = c.Request.WithContext(ctx)

	// Set timeout header for client
	c.Header("X-Timeout", strconv.Itoa(int(sm.config.RequestTimeout.Seconds())))

	c.Next()
}

