package boost

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mehtab-afsar/qcombinator-backend/internal/database"
	"github.com/mehtab-afsar/qcombinator-backend/internal/scoring"
)

func newTestService(t *testing.T) (*Service, *database.Repository) {
	t.Helper()
	db, err := database.NewMemoryDB()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	repo := database.NewRepository(db)
	return NewService(repo, nil), repo
}

func seedBaseSnapshot(t *testing.T, repo *database.Repository, userID string, dims scoring.DimensionScores, percentile *int) *database.ScoreSnapshot {
	t.Helper()
	overall, err := scoring.CombineOverall(dims, scoring.SectorB2BSaaS)
	require.NoError(t, err)

	snap := &database.ScoreSnapshot{
		ID:           uuid.New().String(),
		UserID:       userID,
		OverallScore: overall,
		Percentile:   percentile,
		Grade:        scoring.GradeFor(overall),
		Dimensions:   dims,
		Sector:       string(scoring.SectorB2BSaaS),
		DataSource:   database.SourceAssessment,
		CalculatedAt: time.Now().Add(-time.Hour),
	}
	require.NoError(t, repo.InsertSnapshot(snap))
	return snap
}

func uniformDims(v float64) scoring.DimensionScores {
	return scoring.DimensionScores{Market: v, Product: v, GoToMarket: v, Financial: v, Team: v, Traction: v}
}

func TestApplySignalUnknownArtifact(t *testing.T) {
	svc, _ := newTestService(t)

	result := svc.ApplySignal("user-1", "time_machine_blueprint")
	assert.False(t, result.Applied)
	assert.Equal(t, ReasonUnknownArtifact, result.Reason)
	assert.Nil(t, result.Snapshot)
}

func TestApplySignalNoBaseScore(t *testing.T) {
	svc, repo := newTestService(t)
	user, err := repo.GetOrCreateUser("10.1.0.1", "agent")
	require.NoError(t, err)

	result := svc.ApplySignal(user.ID, "pmf_survey")
	assert.False(t, result.Applied)
	assert.Equal(t, ReasonNoBaseScore, result.Reason)
	require.NotNil(t, result.Rule)
	assert.Equal(t, "pmf_survey", result.Rule.ArtifactType)
}

func TestApplySignalBoostsDimension(t *testing.T) {
	svc, repo := newTestService(t)
	user, err := repo.GetOrCreateUser("10.1.0.2", "agent")
	require.NoError(t, err)

	percentile := 40
	base := seedBaseSnapshot(t, repo, user.ID, uniformDims(60), &percentile)

	result := svc.ApplySignal(user.ID, "pmf_survey")
	require.True(t, result.Applied, "reason: %s", result.Reason)
	require.NotNil(t, result.Snapshot)

	snap := result.Snapshot
	assert.InDelta(t, 64.0, snap.Dimensions.Product, 0.001)
	assert.InDelta(t, 60.0, snap.Dimensions.Market, 0.001, "other dimensions untouched")
	assert.Equal(t, 61, snap.OverallScore, "60 base plus 4 product points at 0.18 weight")
	assert.Equal(t, database.SourceAgentCompletion, snap.DataSource)
	require.NotNil(t, snap.PreviousScoreID)
	assert.Equal(t, base.ID, *snap.PreviousScoreID)
	require.NotNil(t, snap.SourceArtifactType)
	assert.Equal(t, "pmf_survey", *snap.SourceArtifactType)

	// Cohort standing is not recomputed on a boost.
	require.NotNil(t, snap.Percentile)
	assert.Equal(t, 40, *snap.Percentile)

	latest, err := repo.LatestSnapshot(user.ID)
	require.NoError(t, err)
	assert.Equal(t, snap.ID, latest.ID)
}

func TestApplySignalIdempotent(t *testing.T) {
	svc, repo := newTestService(t)
	user, err := repo.GetOrCreateUser("10.1.0.3", "agent")
	require.NoError(t, err)
	seedBaseSnapshot(t, repo, user.ID, uniformDims(55), nil)

	first := svc.ApplySignal(user.ID, "financial_model")
	require.True(t, first.Applied)

	second := svc.ApplySignal(user.ID, "financial_model")
	assert.False(t, second.Applied)
	assert.Equal(t, ReasonAlreadyApplied, second.Reason)

	history, err := repo.SnapshotHistory(user.ID, 0)
	require.NoError(t, err)
	assert.Len(t, history, 2, "base plus exactly one boost")
}

func TestApplySignalDifferentArtifactsStack(t *testing.T) {
	svc, repo := newTestService(t)
	user, err := repo.GetOrCreateUser("10.1.0.4", "agent")
	require.NoError(t, err)
	seedBaseSnapshot(t, repo, user.ID, uniformDims(50), nil)

	first := svc.ApplySignal(user.ID, "pricing_strategy")
	require.True(t, first.Applied)
	second := svc.ApplySignal(user.ID, "hiring_plan")
	require.True(t, second.Applied)

	latest, err := repo.LatestSnapshot(user.ID)
	require.NoError(t, err)
	assert.InDelta(t, 53.0, latest.Dimensions.Financial, 0.001)
	assert.InDelta(t, 54.0, latest.Dimensions.Team, 0.001)
	require.NotNil(t, latest.PreviousScoreID)
	assert.Equal(t, first.Snapshot.ID, *latest.PreviousScoreID, "boosts chain onto each other")
}

func TestApplySignalLostInsertRace(t *testing.T) {
	svc, repo := newTestService(t)
	user, err := repo.GetOrCreateUser("10.1.0.7", "agent")
	require.NoError(t, err)
	base := seedBaseSnapshot(t, repo, user.ID, uniformDims(50), nil)

	// Land an identical signal inside the window between the duplicate
	// check and the insert, so the unique index rejects ours.
	artifact := "pmf_survey"
	svc.beforeInsert = func() {
		dims := uniformDims(50)
		dims.Product = 54
		competing := &database.ScoreSnapshot{
			ID:                 uuid.New().String(),
			UserID:             user.ID,
			PreviousScoreID:    &base.ID,
			OverallScore:       51,
			Grade:              scoring.GradeFor(51),
			Dimensions:         dims,
			Sector:             base.Sector,
			DataSource:         database.SourceAgentCompletion,
			SourceArtifactType: &artifact,
			CalculatedAt:       time.Now(),
		}
		require.NoError(t, repo.InsertSnapshot(competing))
	}

	result := svc.ApplySignal(user.ID, artifact)
	assert.False(t, result.Applied)
	assert.Equal(t, ReasonAlreadyApplied, result.Reason, "a lost race is a duplicate, not an internal error")
	require.NotNil(t, result.Rule)
	assert.Equal(t, artifact, result.Rule.ArtifactType)

	history, err := repo.SnapshotHistory(user.ID, 0)
	require.NoError(t, err)
	assert.Len(t, history, 2, "only the winner's boost row persists")
}

func TestApplySignalCapsAtHundred(t *testing.T) {
	svc, repo := newTestService(t)
	user, err := repo.GetOrCreateUser("10.1.0.5", "agent")
	require.NoError(t, err)

	dims := uniformDims(90)
	dims.Product = 98
	seedBaseSnapshot(t, repo, user.ID, dims, nil)

	result := svc.ApplySignal(user.ID, "pmf_survey")
	require.True(t, result.Applied)
	assert.InDelta(t, 100.0, result.Snapshot.Dimensions.Product, 0.001)
}

func TestApplySignalInvokesCallback(t *testing.T) {
	db, err := database.NewMemoryDB()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	repo := database.NewRepository(db)

	var notified string
	svc := NewService(repo, func(userID string) { notified = userID })

	user, err := repo.GetOrCreateUser("10.1.0.6", "agent")
	require.NoError(t, err)
	seedBaseSnapshot(t, repo, user.ID, uniformDims(45), nil)

	result := svc.ApplySignal(user.ID, "investor_update")
	require.True(t, result.Applied)
	assert.Equal(t, user.ID, notified)

	// Skipped signals never fire the callback.
	notified = ""
	svc.ApplySignal(user.ID, "investor_update")
	assert.Empty(t, notified)
}

func TestRuleTable(t *testing.T) {
	types := ArtifactTypes()
	assert.NotEmpty(t, types)

	for _, artifactType := range types {
		rule, ok := RuleFor(artifactType)
		require.True(t, ok)
		assert.Equal(t, artifactType, rule.ArtifactType)
		assert.Greater(t, rule.Points, 0.0)
		_, valid := uniformDims(0).Get(rule.Dimension)
		assert.True(t, valid, "rule %s targets unknown dimension %s", artifactType, rule.Dimension)
	}

	_, ok := RuleFor("unknown")
	assert.False(t, ok)
}
