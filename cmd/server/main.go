package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	"github.com/mehtab-afsar/qcombinator-backend/internal/benchmark"
	"github.com/mehtab-afsar/qcombinator-backend/internal/boost"
	"github.com/mehtab-afsar/qcombinator-backend/internal/cache"
	"github.com/mehtab-afsar/qcombinator-backend/internal/database"
	"github.com/mehtab-afsar/qcombinator-backend/internal/errors"
	"github.com/mehtab-afsar/qcombinator-backend/internal/monitoring"
	"github.com/mehtab-afsar/qcombinator-backend/internal/ratelimit"
	"github.com/mehtab-afsar/qcombinator-backend/internal/scoring"
	"github.com/mehtab-afsar/qcombinator-backend/internal/security"
	"github.com/mehtab-afsar/qcombinator-backend/internal/types"
)

func main() {
	// Structured logging setup
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	// Configuration from environment with defaults
	dataDir := getEnvOrDefault("DATA_DIR", "./data")
	jwtSecret := getEnvOrDefault("JWT_SECRET", "your-super-secret-jwt-key-change-in-production")
	redisAddr := os.Getenv("REDIS_ADDR")
	redisPassword := os.Getenv("REDIS_PASSWORD")
	redisDB, _ := strconv.Atoi(getEnvOrDefault("REDIS_DB", "0"))
	port := getEnvOrDefault("PORT", "8080")

	// Initialize database and services
	db, err := database.NewDB(dataDir)
	if err != nil {
		slog.Error("Failed to initialize database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	repo := database.NewRepository(db)
	userService := database.NewUserService(repo, jwtSecret)
	benchmarkService := benchmark.NewService(repo)
	boostService := boost.NewService(repo, func(userID string) {
		benchmarkService.Invalidate()
	})

	// Warm up benchmark cache and start auto-refresh
	go func() {
		slog.Info("Warming up benchmark cache")
		benchmarkService.WarmCache()
		benchmarkService.AutoRefresh(10 * time.Minute)
	}()

	r := gin.New()

	// Initialize monitoring system
	appMetrics := monitoring.NewMetrics()
	appLogger := monitoring.NewLogger()

	// Initialize Redis-backed rate limiting (degrades to in-memory)
	redisClient, err := ratelimit.NewRedisClient(redisAddr, redisPassword, redisDB)
	if err != nil {
		slog.Warn("Redis unavailable, continuing with in-memory rate limiting", "error", err)
	}
	defer redisClient.Close()

	rateLimiter := ratelimit.NewRateLimiter(redisClient, ratelimit.DefaultConfig(), appMetrics)

	// Add monitoring middleware first (to capture all requests)
	r.Use(monitoring.MonitoringMiddleware(appMetrics, appLogger))
	r.Use(monitoring.SecurityMonitoringMiddleware(appLogger))

	// Add error handling middleware
	r.Use(errors.ErrorHandler())
	r.Use(errors.RecoveryHandler())

	// Security middleware setup
	securityConfig := security.DefaultSecurityConfig()
	securityMiddleware := security.NewSecurityMiddleware(securityConfig)
	securityMiddleware.SetUserService(userService)

	r.Use(securityMiddleware.SecurityHeaders)
	r.Use(securityMiddleware.RequestTimeout)
	r.Use(securityMiddleware.ValidateContentType)
	r.Use(cors.New(cors.Config{
		AllowOrigins:     securityConfig.AllowedOrigins,
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization", "Cache-Control", "X-Requested-With"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	// Rate limiting: per-IP everywhere, per-user quota on submissions
	r.Use(rateLimiter.IPRateLimitMiddleware())
	r.Use(securityMiddleware.IdentifyFounder)
	r.Use(rateLimiter.SubmissionRateLimitMiddleware())

	// Response cache for benchmark reads (15 minutes TTL)
	appCache := cache.NewCache(15 * time.Minute)
	r.Use(appCache.Middleware(appMetrics))

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":    "ok",
			"timestamp": time.Now().Format(time.RFC3339),
			"version":   "1.0.0",
			"metrics":   appMetrics.GetStats(),
		})
	})

	// Session token for the resolved founder
	r.GET("/auth/token", func(c *gin.Context) {
		userID, ok := currentUserID(c)
		if !ok {
			return
		}

		token, err := userService.GenerateSessionToken(userID)
		if err != nil {
			appErr := errors.ToAppError(err)
			errors.LogError(c, appErr)
			c.JSON(appErr.HTTPStatus, appErr)
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"token":      token,
			"user_id":    userID,
			"expires_in": int((24 * time.Hour).Seconds()),
		})
	})

	// User stats endpoint
	r.GET("/user/stats", func(c *gin.Context) {
		userID, ok := currentUserID(c)
		if !ok {
			return
		}

		stats, err := userService.GetUserStats(userID)
		if err != nil {
			appErr := errors.ToAppError(err)
			errors.LogError(c, appErr)
			c.JSON(appErr.HTTPStatus, appErr)
			return
		}

		c.JSON(http.StatusOK, stats)
	})

	r.POST("/assessment/submit", func(c *gin.Context) {
		start := time.Now()

		userID, ok := currentUserID(c)
		if !ok {
			return
		}

		var req types.SubmitAssessmentRequest
		if err := c.BindJSON(&req); err != nil {
			appErr := errors.NewValidationError("invalid JSON format", err.Error())
			errors.LogError(c, appErr)
			c.JSON(appErr.HTTPStatus, appErr)
			return
		}

		// Sanitize and bound free-text answers before anything touches them
		for name, section := range req.Sections {
			for i, answer := range section.Answers {
				sanitized := securityMiddleware.SanitizeText(answer)
				if err := securityMiddleware.ValidateAnswer(sanitized); err != nil {
					appErr := errors.NewValidationError("answer validation failed", err.Error())
					errors.LogError(c, appErr)
					c.JSON(appErr.HTTPStatus, appErr)
					return
				}
				section.Answers[i] = sanitized
			}
			req.Sections[name] = section
		}

		sub := scoring.AssessmentSubmission{
			Sector:   req.Sector,
			Sections: req.Sections,
		}

		if err := scoring.ValidateSubmission(sub); err != nil {
			appErr := errors.ToAppError(err)
			errors.LogError(c, appErr)
			c.JSON(appErr.HTTPStatus, appErr)
			return
		}

		// Resolve the weight profile up front so an unknown sector fails
		// before anything is persisted.
		if _, err := scoring.WeightsFor(scoring.Sector(req.Sector)); err != nil {
			appErr := errors.ToAppError(err)
			errors.LogError(c, appErr)
			c.JSON(appErr.HTTPStatus, appErr)
			return
		}

		submission, err := repo.CreateSubmission(userID, req.Sector, req.Sections)
		if err != nil {
			appErr := errors.NewInternalError("failed to store submission", err)
			errors.LogError(c, appErr)
			c.JSON(appErr.HTTPStatus, appErr)
			return
		}

		// Previous snapshot feeds the deltas and the history chain
		previous, err := repo.LatestSnapshot(userID)
		if err != nil {
			appErr := errors.NewInternalError("failed to load score history", err)
			errors.LogError(c, appErr)
			c.JSON(appErr.HTTPStatus, appErr)
			return
		}

		var prevDims *scoring.DimensionScores
		var prevID *string
		if previous != nil {
			prevDims = &previous.Dimensions
			prevID = &previous.ID
		}

		result, err := scoring.ScoreDimensions(sub, prevDims)
		if err != nil {
			appErr := errors.ToAppError(err)
			errors.LogError(c, appErr)
			c.JSON(appErr.HTTPStatus, appErr)
			return
		}

		overall, err := scoring.CombineOverall(result.Scores, scoring.Sector(req.Sector))
		if err != nil {
			appErr := errors.ToAppError(err)
			errors.LogError(c, appErr)
			c.JSON(appErr.HTTPStatus, appErr)
			return
		}

		// Rank against the cohort of latest scores per founder, with the
		// caller's own entry replaced by the fresh score.
		cohort, err := benchmarkService.CohortOverallScores()
		if err != nil {
			appErr := errors.NewInternalError("failed to load ranking cohort", err)
			errors.LogError(c, appErr)
			c.JSON(appErr.HTTPStatus, appErr)
			return
		}

		cohortValues := make([]float64, 0, len(cohort)+1)
		for _, member := range cohort {
			if member.UserID == userID {
				continue
			}
			cohortValues = append(cohortValues, float64(member.OverallScore))
		}
		cohortValues = append(cohortValues, float64(overall))

		percentile := scoring.ComputePercentile(float64(overall), cohortValues)

		snapshot := &database.ScoreSnapshot{
			ID:              uuid.New().String(),
			UserID:          userID,
			PreviousScoreID: prevID,
			OverallScore:    overall,
			Percentile:      percentile,
			Grade:           scoring.GradeFor(overall),
			Dimensions:      result.Scores,
			Sector:          req.Sector,
			DataSource:      database.SourceAssessment,
			CalculatedAt:    time.Now(),
		}

		if err := repo.InsertSnapshot(snapshot); err != nil {
			appErr := errors.NewInternalError("failed to store score snapshot", err)
			errors.LogError(c, appErr)
			c.JSON(appErr.HTTPStatus, appErr)
			return
		}

		if err := repo.MarkSubmissionScored(submission.ID); err != nil {
			slog.Warn("Failed to mark submission scored", "submission_id", submission.ID, "error", err)
		}

		benchmarkService.Invalidate()
		appMetrics.IncrementScoresComputed()
		appLogger.ScoreLogger(userID, req.Sector, overall, percentile, time.Since(start))

		response := gin.H{
			"score_id":      snapshot.ID,
			"overall_score": overall,
			"grade":         snapshot.Grade,
			"percentile":    percentile,
			"dimensions":    result.Scores,
			"deltas":        result.Deltas,
			"sector":        req.Sector,
			"data_source":   snapshot.DataSource,
			"calculated_at": snapshot.CalculatedAt.Format(time.RFC3339),
		}

		if stats, err := userService.GetUserStats(userID); err == nil {
			response["user_stats"] = stats
		}

		c.JSON(http.StatusOK, response)
	})

	r.GET("/score/latest", func(c *gin.Context) {
		userID, ok := currentUserID(c)
		if !ok {
			return
		}

		snapshot, err := repo.LatestSnapshot(userID)
		if err != nil {
			appErr := errors.NewInternalError("failed to load latest score", err)
			errors.LogError(c, appErr)
			c.JSON(appErr.HTTPStatus, appErr)
			return
		}

		if snapshot == nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "no score yet, submit an assessment first"})
			return
		}

		c.JSON(http.StatusOK, snapshot)
	})

	r.GET("/score/history", func(c *gin.Context) {
		userID, ok := currentUserID(c)
		if !ok {
			return
		}

		limit := 50
		if limitStr := c.Query("limit"); limitStr != "" {
			if l, err := strconv.Atoi(limitStr); err == nil && l > 0 && l <= 200 {
				limit = l
			}
		}

		history, err := repo.SnapshotHistory(userID, limit)
		if err != nil {
			appErr := errors.NewInternalError("failed to load score history", err)
			errors.LogError(c, appErr)
			c.JSON(appErr.HTTPStatus, appErr)
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"user_id": userID,
			"history": history,
			"count":   len(history),
		})
	})

	r.POST("/artifacts/complete", func(c *gin.Context) {
		start := time.Now()

		userID, ok := currentUserID(c)
		if !ok {
			return
		}

		var req types.CompleteArtifactRequest
		if err := c.BindJSON(&req); err != nil {
			appErr := errors.NewValidationError("artifact_type is required")
			errors.LogError(c, appErr)
			c.JSON(appErr.HTTPStatus, appErr)
			return
		}

		result := boostService.ApplySignal(userID, req.ArtifactType)

		if result.Applied {
			appMetrics.IncrementBoostApplied()
		} else {
			appMetrics.IncrementBoostSkipped()
		}
		appLogger.BoostLogger(userID, req.ArtifactType, result.Applied, result.Reason, time.Since(start))

		if result.Reason == boost.ReasonInternalError {
			appErr := errors.NewInternalError("failed to apply completion signal", nil)
			c.JSON(appErr.HTTPStatus, appErr)
			return
		}

		// Unapplied signals (unknown type, already applied, no base score)
		// are non-events, reported in the body rather than as errors so
		// agent retries stay cheap.
		c.JSON(http.StatusOK, result)
	})

	r.GET("/artifacts/types", func(c *gin.Context) {
		rules := make([]boost.Rule, 0)
		for _, artifactType := range boost.ArtifactTypes() {
			if rule, ok := boost.RuleFor(artifactType); ok {
				rules = append(rules, rule)
			}
		}

		c.JSON(http.StatusOK, gin.H{
			"artifact_types": rules,
			"count":          len(rules),
		})
	})

	r.GET("/benchmarks/:dimension", func(c *gin.Context) {
		dimension := c.Param("dimension")

		stats, err := benchmarkService.Benchmarks(dimension)
		if err != nil {
			appErr := errors.ToAppError(err)
			errors.LogError(c, appErr)
			c.JSON(appErr.HTTPStatus, appErr)
			return
		}

		c.JSON(http.StatusOK, stats)
	})

	r.GET("/cohort/standing", func(c *gin.Context) {
		userID, ok := currentUserID(c)
		if !ok {
			return
		}

		standing, err := benchmarkService.Standing(userID)
		if err != nil {
			appErr := errors.NewInternalError("failed to compute cohort standing", err)
			errors.LogError(c, appErr)
			c.JSON(appErr.HTTPStatus, appErr)
			return
		}

		if standing == nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "no score yet, submit an assessment first"})
			return
		}

		c.JSON(http.StatusOK, standing)
	})

	r.GET("/sectors", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"sectors": scoring.Sectors(),
		})
	})

	// Swagger documentation routes
	r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	// Metrics endpoint
	r.GET("/metrics", func(c *gin.Context) {
		c.JSON(http.StatusOK, appMetrics.GetStats())
	})

	// Cache stats endpoint
	r.GET("/cache/stats", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"response_cache":  appCache.Stats(),
			"benchmark_cache": benchmarkService.CacheStats(),
		})
	})

	// Rate limit status and admin endpoints
	r.GET("/ratelimit/status", rateLimiter.HandleRateLimitStatus())
	r.GET("/admin/ratelimit", rateLimiter.HandleAdminRateLimits())
	r.POST("/admin/ratelimit/reset/:userID", rateLimiter.HandleAdminResetRateLimit())

	// Database pool stats endpoint
	r.GET("/pools/database", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"pool":  "database",
			"stats": db.GetPoolStats(),
		})
	})

	// Start server with graceful shutdown
	srv := &http.Server{
		Addr:    ":" + port,
		Handler: r,
	}

	go func() {
		slog.Info("Starting server", "port", port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("Server failed to start", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	slog.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		slog.Error("Server forced to shutdown", "error", err)
		os.Exit(1)
	}

	slog.Info("Server exited")
}

// currentUserID pulls the founder resolved by the identify middleware,
// writing the error response itself when missing.
func currentUserID(c *gin.Context) (string, bool) {
	userID, exists := c.Get("user_id")
	if !exists {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "user not identified"})
		return "", false
	}

	userIDStr, ok := userID.(string)
	if !ok {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "invalid user ID"})
		return "", false
	}

	return userIDStr, true
}

// Helper function for environment variables with defaults
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
