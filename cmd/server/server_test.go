package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mehtab-afsar/qcombinator-backend/internal/benchmark"
	"github.com/mehtab-afsar/qcombinator-backend/internal/boost"
	"github.com/mehtab-afsar/qcombinator-backend/internal/database"
	"github.com/mehtab-afsar/qcombinator-backend/internal/errors"
	"github.com/mehtab-afsar/qcombinator-backend/internal/scoring"
	"github.com/mehtab-afsar/qcombinator-backend/internal/security"
	"github.com/mehtab-afsar/qcombinator-backend/internal/types"
)

// setupRouter builds a test router with the same scoring flow as main,
// minus rate limiting, caching and swagger.
func setupRouter(t *testing.T) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db, err := database.NewMemoryDB()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	repo := database.NewRepository(db)
	userService := database.NewUserService(repo, "test-jwt-secret")
	benchmarkService := benchmark.NewService(repo)
	boostService := boost.NewService(repo, func(userID string) {
		benchmarkService.Invalidate()
	})

	securityMiddleware := security.NewSecurityMiddleware(security.DefaultSecurityConfig())
	securityMiddleware.SetUserService(userService)

	r := gin.New()
	r.Use(securityMiddleware.IdentifyFounder)

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	r.POST("/assessment/submit", func(c *gin.Context) {
		userID, ok := currentUserID(c)
		if !ok {
			return
		}

		var req types.SubmitAssessmentRequest
		if err := c.BindJSON(&req); err != nil {
			appErr := errors.NewValidationError("invalid JSON format", err.Error())
			c.JSON(appErr.HTTPStatus, appErr)
			return
		}

		sub := scoring.AssessmentSubmission{Sector: req.Sector, Sections: req.Sections}

		if err := scoring.ValidateSubmission(sub); err != nil {
			appErr := errors.ToAppError(err)
			c.JSON(appErr.HTTPStatus, appErr)
			return
		}

		if _, err := scoring.WeightsFor(scoring.Sector(req.Sector)); err != nil {
			appErr := errors.ToAppError(err)
			c.JSON(appErr.HTTPStatus, appErr)
			return
		}

		submission, err := repo.CreateSubmission(userID, req.Sector, req.Sections)
		if err != nil {
			appErr := errors.NewInternalError("failed to store submission", err)
			c.JSON(appErr.HTTPStatus, appErr)
			return
		}

		previous, err := repo.LatestSnapshot(userID)
		if err != nil {
			appErr := errors.NewInternalError("failed to load score history", err)
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
			c.JSON(appErr.HTTPStatus, appErr)
			return
		}

		overall, err := scoring.CombineOverall(result.Scores, scoring.Sector(req.Sector))
		if err != nil {
			appErr := errors.ToAppError(err)
			c.JSON(appErr.HTTPStatus, appErr)
			return
		}

		cohort, err := benchmarkService.CohortOverallScores()
		if err != nil {
			appErr := errors.NewInternalError("failed to load ranking cohort", err)
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
			c.JSON(appErr.HTTPStatus, appErr)
			return
		}

		if err := repo.MarkSubmissionScored(submission.ID); err != nil {
			t.Logf("failed to mark submission scored: %v", err)
		}
		benchmarkService.Invalidate()

		c.JSON(http.StatusOK, gin.H{
			"score_id":      snapshot.ID,
			"overall_score": overall,
			"grade":         snapshot.Grade,
			"percentile":    percentile,
			"dimensions":    result.Scores,
			"deltas":        result.Deltas,
			"data_source":   snapshot.DataSource,
		})
	})

	r.GET("/score/latest", func(c *gin.Context) {
		userID, ok := currentUserID(c)
		if !ok {
			return
		}
		snapshot, err := repo.LatestSnapshot(userID)
		if err != nil {
			appErr := errors.NewInternalError("failed to load latest score", err)
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
		history, err := repo.SnapshotHistory(userID, 50)
		if err != nil {
			appErr := errors.NewInternalError("failed to load score history", err)
			c.JSON(appErr.HTTPStatus, appErr)
			return
		}
		c.JSON(http.StatusOK, gin.H{"history": history, "count": len(history)})
	})

	r.POST("/artifacts/complete", func(c *gin.Context) {
		userID, ok := currentUserID(c)
		if !ok {
			return
		}
		var req types.CompleteArtifactRequest
		if err := c.BindJSON(&req); err != nil {
			appErr := errors.NewValidationError("artifact_type is required")
			c.JSON(appErr.HTTPStatus, appErr)
			return
		}

		result := boostService.ApplySignal(userID, req.ArtifactType)
		if result.Reason == boost.ReasonInternalError {
			appErr := errors.NewInternalError("failed to apply completion signal", nil)
			c.JSON(appErr.HTTPStatus, appErr)
			return
		}
		c.JSON(http.StatusOK, result)
	})

	r.GET("/benchmarks/:dimension", func(c *gin.Context) {
		stats, err := benchmarkService.Benchmarks(c.Param("dimension"))
		if err != nil {
			appErr := errors.ToAppError(err)
			c.JSON(appErr.HTTPStatus, appErr)
			return
		}
		c.JSON(http.StatusOK, stats)
	})

	r.GET("/sectors", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"sectors": scoring.Sectors()})
	})

	return r
}

func doRequest(r *gin.Engine, method, path, ip string, body interface{}) *httptest.ResponseRecorder {
	var reader *bytes.Reader
	if body != nil {
		payload, _ := json.Marshal(body)
		reader = bytes.NewReader(payload)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	req.RemoteAddr = ip + ":12345"
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func validSubmission(sector string) types.SubmitAssessmentRequest {
	answer := strings.TrimSpace(strings.Repeat("we closed 12 design partners and doubled usage this quarter ", 8))
	sections := make(map[string]scoring.SectionResponse, len(scoring.RequiredSections))
	for _, name := range scoring.RequiredSections {
		sections[name] = scoring.SectionResponse{Rating: 7, Answers: []string{answer}}
	}
	return types.SubmitAssessmentRequest{Sector: sector, Sections: sections}
}

func TestHealthEndpoint(t *testing.T) {
	r := setupRouter(t)

	w := doRequest(r, http.MethodGet, "/health", "10.9.0.1", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"status":"ok"`)
}

func TestSubmitAssessment(t *testing.T) {
	r := setupRouter(t)

	w := doRequest(r, http.MethodPost, "/assessment/submit", "10.9.1.1", validSubmission("b2b_saas"))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp struct {
		ScoreID      string                  `json:"score_id"`
		OverallScore int                     `json:"overall_score"`
		Grade        string                  `json:"grade"`
		Percentile   *int                    `json:"percentile"`
		Dimensions   scoring.DimensionScores `json:"dimensions"`
		DataSource   string                  `json:"data_source"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))

	assert.NotEmpty(t, resp.ScoreID)
	assert.Equal(t, 70, resp.OverallScore, "uniform rating 7 with full-quality answers")
	assert.Equal(t, "B+", resp.Grade)
	assert.Nil(t, resp.Percentile, "a cohort of one has no rank")
	assert.Equal(t, database.SourceAssessment, resp.DataSource)
}

func TestSubmitAssessmentIncomplete(t *testing.T) {
	r := setupRouter(t)

	req := validSubmission("b2b_saas")
	delete(req.Sections, scoring.SectionResilience)

	w := doRequest(r, http.MethodPost, "/assessment/submit", "10.9.1.2", req)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestSubmitAssessmentUnknownSector(t *testing.T) {
	r := setupRouter(t)

	w := doRequest(r, http.MethodPost, "/assessment/submit", "10.9.1.3", validSubmission("underwater_basket_weaving"))
	assert.Equal(t, http.StatusInternalServerError, w.Code, "unknown sector is a loud configuration error")

	// Nothing persisted: the founder still has no score.
	latest := doRequest(r, http.MethodGet, "/score/latest", "10.9.1.3", nil)
	assert.Equal(t, http.StatusNotFound, latest.Code)
}

func TestScoreLatestLifecycle(t *testing.T) {
	r := setupRouter(t)
	ip := "10.9.2.1"

	before := doRequest(r, http.MethodGet, "/score/latest", ip, nil)
	assert.Equal(t, http.StatusNotFound, before.Code)

	submit := doRequest(r, http.MethodPost, "/assessment/submit", ip, validSubmission("fintech"))
	require.Equal(t, http.StatusOK, submit.Code)

	after := doRequest(r, http.MethodGet, "/score/latest", ip, nil)
	assert.Equal(t, http.StatusOK, after.Code)

	var snap database.ScoreSnapshot
	require.NoError(t, json.Unmarshal(after.Body.Bytes(), &snap))
	assert.Equal(t, "fintech", snap.Sector)
}

func TestResubmissionChainsHistory(t *testing.T) {
	r := setupRouter(t)
	ip := "10.9.2.2"

	first := doRequest(r, http.MethodPost, "/assessment/submit", ip, validSubmission("consumer"))
	require.Equal(t, http.StatusOK, first.Code)
	second := doRequest(r, http.MethodPost, "/assessment/submit", ip, validSubmission("consumer"))
	require.Equal(t, http.StatusOK, second.Code)

	w := doRequest(r, http.MethodGet, "/score/history", ip, nil)
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		History []database.ScoreSnapshot `json:"history"`
		Count   int                      `json:"count"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Equal(t, 2, resp.Count)
	require.NotNil(t, resp.History[0].PreviousScoreID)
	assert.Equal(t, resp.History[1].ID, *resp.History[0].PreviousScoreID)
}

func TestArtifactCompletionIdempotent(t *testing.T) {
	r := setupRouter(t)
	ip := "10.9.3.1"

	submit := doRequest(r, http.MethodPost, "/assessment/submit", ip, validSubmission("b2b_saas"))
	require.Equal(t, http.StatusOK, submit.Code)

	body := types.CompleteArtifactRequest{ArtifactType: "gtm_playbook"}

	first := doRequest(r, http.MethodPost, "/artifacts/complete", ip, body)
	require.Equal(t, http.StatusOK, first.Code)
	var firstResult boost.Result
	require.NoError(t, json.Unmarshal(first.Body.Bytes(), &firstResult))
	assert.True(t, firstResult.Applied)

	second := doRequest(r, http.MethodPost, "/artifacts/complete", ip, body)
	require.Equal(t, http.StatusOK, second.Code, "a repeated signal is a non-event, not an error")
	var secondResult boost.Result
	require.NoError(t, json.Unmarshal(second.Body.Bytes(), &secondResult))
	assert.False(t, secondResult.Applied)
	assert.Equal(t, boost.ReasonAlreadyApplied, secondResult.Reason)

	history := doRequest(r, http.MethodGet, "/score/history", ip, nil)
	var resp struct {
		Count int `json:"count"`
	}
	require.NoError(t, json.Unmarshal(history.Body.Bytes(), &resp))
	assert.Equal(t, 2, resp.Count, "assessment plus exactly one boost")
}

func TestArtifactCompletionUnknownType(t *testing.T) {
	r := setupRouter(t)

	w := doRequest(r, http.MethodPost, "/artifacts/complete", "10.9.3.2", types.CompleteArtifactRequest{ArtifactType: "perpetual_motion_machine"})
	require.Equal(t, http.StatusOK, w.Code, "an unrecognized type is a silent no-op")

	var result boost.Result
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &result))
	assert.False(t, result.Applied)
	assert.Equal(t, boost.ReasonUnknownArtifact, result.Reason)
}

func TestArtifactCompletionWithoutBaseScore(t *testing.T) {
	r := setupRouter(t)

	w := doRequest(r, http.MethodPost, "/artifacts/complete", "10.9.3.3", types.CompleteArtifactRequest{ArtifactType: "pmf_survey"})
	require.Equal(t, http.StatusOK, w.Code)

	var result boost.Result
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &result))
	assert.False(t, result.Applied)
	assert.Equal(t, boost.ReasonNoBaseScore, result.Reason)
}

func TestBenchmarksEndpoint(t *testing.T) {
	r := setupRouter(t)

	// Two founders make a rankable cohort.
	for i := 1; i <= 2; i++ {
		ip := fmt.Sprintf("10.9.4.%d", i)
		w := doRequest(r, http.MethodPost, "/assessment/submit", ip, validSubmission("b2b_saas"))
		require.Equal(t, http.StatusOK, w.Code)
	}

	w := doRequest(r, http.MethodGet, "/benchmarks/overall", "10.9.4.9", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var stats benchmark.DimensionStats
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &stats))
	assert.Equal(t, "overall", stats.Dimension)
	assert.Equal(t, 2, stats.CohortSize)

	bad := doRequest(r, http.MethodGet, "/benchmarks/charisma", "10.9.4.9", nil)
	assert.Equal(t, http.StatusBadRequest, bad.Code)
}

func TestSectorsEndpoint(t *testing.T) {
	r := setupRouter(t)

	w := doRequest(r, http.MethodGet, "/sectors", "10.9.5.1", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Sectors []string `json:"sectors"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Contains(t, resp.Sectors, "b2b_saas")
	assert.Contains(t, resp.Sectors, "default")
}
