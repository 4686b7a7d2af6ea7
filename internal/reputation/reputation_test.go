package reputation_test

import (
	"context"
	"testing"
	"time"

	"anonchat/internal/config"
	"anonchat/internal/models"
	"anonchat/internal/reputation"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

type mockStore struct {
	mock.Mock
}

func (m *mockStore) CreateReport(ctx context.Context, r *models.Report) error {
	args := m.Called(ctx, r)
	return args.Error(0)
}

func (m *mockStore) CountReportsSince(ctx context.Context, userID string, since time.Time) (int, error) {
	args := m.Called(ctx, userID, since)
	return args.Int(0), args.Error(1)
}

type mockDirectory struct {
	mock.Mock
}

func (m *mockDirectory) GetOrCreate(ctx context.Context, telegramID string) (*models.User, error) {
	args := m.Called(ctx, telegramID)
	return args.Get(0).(*models.User), args.Error(1)
}
func (m *mockDirectory) GetByID(ctx context.Context, userID string) (*models.User, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.User), args.Error(1)
}
func (m *mockDirectory) Update(ctx context.Context, user *models.User) error {
	args := m.Called(ctx, user)
	return args.Error(0)
}
func (m *mockDirectory) Touch(ctx context.Context, userID string, at time.Time) error {
	args := m.Called(ctx, userID, at)
	return args.Error(0)
}
func (m *mockDirectory) MarkOffline(ctx context.Context, userID string, at time.Time) error {
	args := m.Called(ctx, userID, at)
	return args.Error(0)
}
func (m *mockDirectory) ReputationScore(ctx context.Context, userID string) (int, error) {
	args := m.Called(ctx, userID)
	return args.Int(0), args.Error(1)
}
func (m *mockDirectory) AdjustReputation(ctx context.Context, userID string, delta, min, max int) (int, error) {
	args := m.Called(ctx, userID, delta, min, max)
	return args.Int(0), args.Error(1)
}
func (m *mockDirectory) SetBlock(ctx context.Context, userID string, blocked bool, until time.Time, level int) error {
	args := m.Called(ctx, userID, blocked, until, level)
	return args.Error(0)
}
func (m *mockDirectory) IsBlocked(ctx context.Context, userID string, now time.Time) (bool, error) {
	args := m.Called(ctx, userID, now)
	return args.Bool(0), args.Error(1)
}

func testConfig() config.ReputationConfig {
	return config.ReputationConfig{
		InitialScore:          1000,
		MaxScore:              1000,
		MinScore:              0,
		BanThresholdScore:     500,
		BanThresholdFrequency: 5,
		BanFrequencyWindow:    24 * time.Hour,
		BanLevel1Duration:     30 * time.Minute,
		BanLevel2Duration:     6 * time.Hour,
		BanLevel3Duration:     24 * time.Hour,
		ReportWeights:         map[string]int{"spam": 5, "abuse": 50, "illegal": 250},
	}
}

func TestReport_BelowScoreThreshold_AppliesBan(t *testing.T) {
	st := new(mockStore)
	dir := new(mockDirectory)

	st.On("CreateReport", mock.Anything, mock.AnythingOfType("*models.Report")).Return(nil)
	dir.On("AdjustReputation", mock.Anything, "reported1", -250, 0, 1000).Return(400, nil)
	dir.On("ReputationScore", mock.Anything, "reported1").Return(400, nil)
	dir.On("GetByID", mock.Anything, "reported1").Return(&models.User{ID: "reported1"}, nil)
	dir.On("SetBlock", mock.Anything, "reported1", true, mock.Anything, 1).Return(nil)

	svc := reputation.New(testConfig(), st, dir, nil)
	err := svc.Report(context.Background(), "reporter1", "reported1", "chat1", "illegal")

	assert.NoError(t, err)
	dir.AssertCalled(t, "SetBlock", mock.Anything, "reported1", true, mock.Anything, 1)
}

func TestReport_AboveThreshold_NoFrequencyBreach_NoBan(t *testing.T) {
	st := new(mockStore)
	dir := new(mockDirectory)

	st.On("CreateReport", mock.Anything, mock.AnythingOfType("*models.Report")).Return(nil)
	dir.On("AdjustReputation", mock.Anything, "reported1", -5, 0, 1000).Return(995, nil)
	dir.On("ReputationScore", mock.Anything, "reported1").Return(995, nil)
	st.On("CountReportsSince", mock.Anything, "reported1", mock.Anything).Return(1, nil)

	svc := reputation.New(testConfig(), st, dir, nil)
	err := svc.Report(context.Background(), "reporter1", "reported1", "chat1", "spam")

	assert.NoError(t, err)
	dir.AssertNotCalled(t, "SetBlock", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestReport_FrequencyBreach_AppliesBan(t *testing.T) {
	st := new(mockStore)
	dir := new(mockDirectory)

	st.On("CreateReport", mock.Anything, mock.AnythingOfType("*models.Report")).Return(nil)
	dir.On("AdjustReputation", mock.Anything, "reported1", -5, 0, 1000).Return(990, nil)
	dir.On("ReputationScore", mock.Anything, "reported1").Return(990, nil)
	st.On("CountReportsSince", mock.Anything, "reported1", mock.Anything).Return(6, nil)
	dir.On("GetByID", mock.Anything, "reported1").Return(&models.User{ID: "reported1"}, nil)
	dir.On("SetBlock", mock.Anything, "reported1", true, mock.Anything, 1).Return(nil)

	svc := reputation.New(testConfig(), st, dir, nil)
	err := svc.Report(context.Background(), "reporter1", "reported1", "chat1", "spam")

	assert.NoError(t, err)
	dir.AssertCalled(t, "SetBlock", mock.Anything, "reported1", true, mock.Anything, 1)
}

func TestReport_UnknownReason_FallsBackToSpamWeight(t *testing.T) {
	st := new(mockStore)
	dir := new(mockDirectory)

	st.On("CreateReport", mock.Anything, mock.AnythingOfType("*models.Report")).Return(nil)
	dir.On("AdjustReputation", mock.Anything, "reported1", -5, 0, 1000).Return(995, nil)
	dir.On("ReputationScore", mock.Anything, "reported1").Return(995, nil)
	st.On("CountReportsSince", mock.Anything, "reported1", mock.Anything).Return(0, nil)

	svc := reputation.New(testConfig(), st, dir, nil)
	err := svc.Report(context.Background(), "reporter1", "reported1", "chat1", "unknown-reason")

	assert.NoError(t, err)
	dir.AssertCalled(t, "AdjustReputation", mock.Anything, "reported1", -5, 0, 1000)
}

func TestIsBlocked_DelegatesToDirectory(t *testing.T) {
	dir := new(mockDirectory)
	dir.On("IsBlocked", mock.Anything, "u1", mock.Anything).Return(true, nil)

	svc := reputation.New(testConfig(), new(mockStore), dir, nil)
	blocked, err := svc.IsBlocked(context.Background(), "u1")

	assert.NoError(t, err)
	assert.True(t, blocked)
}
