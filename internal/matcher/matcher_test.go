package matcher_test

import (
	"context"
	"testing"
	"time"

	"anonchat/internal/matcher"
	"anonchat/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

func baseCriteria() models.SearchCriteria {
	return models.SearchCriteria{
		Gender:        "male",
		Age:           25,
		DesiredGender: []string{"female"},
		DesiredAgeMin: 20,
		DesiredAgeMax: 30,
	}
}

func TestStartSearch_NoCandidates_StaysSearching(t *testing.T) {
	st := new(mockStore)
	st.On("CancelSearchIfSearching", mock.Anything, "u1").Return(nil, nil)
	st.On("CreateSearch", mock.Anything, mock.AnythingOfType("*models.SearchRecord")).Return(nil)
	st.On("FindCandidates", mock.Anything, mock.AnythingOfType("*models.SearchRecord")).Return([]models.SearchRecord{}, nil)

	stats := new(mockStats)
	stats.On("ApplyDelta", "start", "male")

	m := matcher.New(st, nil, stats, nil)
	res, err := m.StartSearch(context.Background(), "u1", "tg1", baseCriteria())

	assert.NoError(t, err)
	assert.Equal(t, models.SearchSearching, res.Status)
	assert.Nil(t, res.MatchedWith)
	st.AssertExpectations(t)
	stats.AssertExpectations(t)
}

func TestStartSearch_CompatibleCandidate_Matches(t *testing.T) {
	st := new(mockStore)
	notifier := new(mockNotifier)
	stats := new(mockStats)

	candidate := models.SearchRecord{
		ID:            "search-2",
		UserID:        "u2",
		TelegramID:    "tg2",
		Status:        models.SearchSearching,
		Gender:        "female",
		Age:           24,
		DesiredGender: []string{"male"},
		DesiredAgeMin: 20,
		DesiredAgeMax: 30,
		CreatedAt:     time.Now().Add(-time.Minute),
	}

	st.On("CancelSearchIfSearching", mock.Anything, "u1").Return(nil, nil)
	st.On("CreateSearch", mock.Anything, mock.AnythingOfType("*models.SearchRecord")).Return(nil)
	st.On("FindCandidates", mock.Anything, mock.AnythingOfType("*models.SearchRecord")).Return([]models.SearchRecord{candidate}, nil)
	st.On("CreateChat", mock.Anything, mock.AnythingOfType("*models.ChatRecord")).Return(nil)
	st.On("TransitionSearchToMatched", mock.Anything, mock.Anything, mock.Anything).Return(true, nil)

	stats.On("ApplyDelta", "start", "male")
	stats.On("ApplyDelta", "match", "male")
	notifier.On("NotifyMatched", mock.Anything, "u1", mock.Anything).Return(nil)
	notifier.On("NotifyMatched", mock.Anything, "u2", mock.Anything).Return(nil)

	m := matcher.New(st, notifier, stats, nil)
	res, err := m.StartSearch(context.Background(), "u1", "tg1", baseCriteria())

	assert.NoError(t, err)
	assert.Equal(t, models.SearchMatched, res.Status)
	assert.NotNil(t, res.MatchedWith)
	assert.Equal(t, "u2", res.MatchedWith.UserID)
	st.AssertExpectations(t)
	notifier.AssertExpectations(t)
	stats.AssertExpectations(t)
}

func TestStartSearch_IncompatibleGender_NoMatch(t *testing.T) {
	st := new(mockStore)
	stats := new(mockStats)

	wrongGenderWant := models.SearchRecord{
		ID:            "search-3",
		UserID:        "u3",
		Status:        models.SearchSearching,
		Gender:        "female",
		Age:           24,
		DesiredGender: []string{"female"}, // wants female, but S is male
		DesiredAgeMin: 20,
		DesiredAgeMax: 30,
	}

	st.On("CancelSearchIfSearching", mock.Anything, "u1").Return(nil, nil)
	st.On("CreateSearch", mock.Anything, mock.AnythingOfType("*models.SearchRecord")).Return(nil)
	st.On("FindCandidates", mock.Anything, mock.AnythingOfType("*models.SearchRecord")).Return([]models.SearchRecord{wrongGenderWant}, nil)
	stats.On("ApplyDelta", "start", "male")

	m := matcher.New(st, nil, stats, nil)
	res, err := m.StartSearch(context.Background(), "u1", "tg1", baseCriteria())

	assert.NoError(t, err)
	assert.Equal(t, models.SearchSearching, res.Status)
	st.AssertExpectations(t)
}

func TestStartSearch_DoubleMatchRace_RollsBack(t *testing.T) {
	st := new(mockStore)
	stats := new(mockStats)

	candidate := models.SearchRecord{
		ID:            "search-2",
		UserID:        "u2",
		Status:        models.SearchSearching,
		Gender:        "female",
		Age:           24,
		DesiredGender: []string{"male"},
		DesiredAgeMin: 20,
		DesiredAgeMax: 30,
	}

	st.On("CancelSearchIfSearching", mock.Anything, "u1").Return(nil, nil)
	st.On("CreateSearch", mock.Anything, mock.AnythingOfType("*models.SearchRecord")).Return(nil)
	st.On("FindCandidates", mock.Anything, mock.AnythingOfType("*models.SearchRecord")).Return([]models.SearchRecord{candidate}, nil)
	st.On("CreateChat", mock.Anything, mock.AnythingOfType("*models.ChatRecord")).Return(nil)

	// self transitions fine, but the candidate lost the race and is already matched elsewhere.
	st.On("TransitionSearchToMatched", mock.Anything, mock.MatchedBy(func(id string) bool { return id != "search-2" }), mock.Anything).Return(true, nil)
	st.On("TransitionSearchToMatched", mock.Anything, "search-2", mock.Anything).Return(false, nil)
	st.On("DeleteChat", mock.Anything, mock.Anything).Return(nil)
	st.On("ResetSearchToSearching", mock.Anything, mock.Anything).Return(nil)

	stats.On("ApplyDelta", "start", "male")

	m := matcher.New(st, nil, stats, nil)
	_, err := m.StartSearch(context.Background(), "u1", "tg1", baseCriteria())

	assert.Error(t, err)
	st.AssertCalled(t, "DeleteChat", mock.Anything, mock.Anything)
	st.AssertCalled(t, "ResetSearchToSearching", mock.Anything, mock.Anything)
}

func TestCancelSearch_NoActiveRecord_IsNoop(t *testing.T) {
	st := new(mockStore)
	st.On("CancelSearchIfSearching", mock.Anything, "u1").Return(nil, nil)

	m := matcher.New(st, nil, nil, nil)
	rec, err := m.CancelSearch(context.Background(), "u1")

	assert.NoError(t, err)
	assert.Nil(t, rec)
}

func TestCancelSearch_AlreadyMatched_NoStatsDelta(t *testing.T) {
	st := new(mockStore)
	stats := new(mockStats)

	matched := &models.SearchRecord{ID: "s1", UserID: "u1", Status: models.SearchMatched, Gender: "male"}
	st.On("CancelSearchIfSearching", mock.Anything, "u1").Return(matched, nil)

	m := matcher.New(st, nil, stats, nil)
	rec, err := m.CancelSearch(context.Background(), "u1")

	assert.NoError(t, err)
	assert.Equal(t, models.SearchMatched, rec.Status)
	stats.AssertNotCalled(t, "ApplyDelta", mock.Anything, mock.Anything)
}

func TestExpireStale_NotifiesAndAppliesStatsDelta(t *testing.T) {
	st := new(mockStore)
	notifier := new(mockNotifier)
	stats := new(mockStats)

	expired := []models.SearchRecord{
		{ID: "s1", UserID: "u1", Gender: "male"},
		{ID: "s2", UserID: "u2", Gender: "female"},
	}
	cutoff := time.Now().Add(-30 * time.Minute)
	st.On("ExpireStaleSearches", mock.Anything, mock.Anything).Return(expired, nil)
	stats.On("ApplyDelta", "cancel", "male")
	stats.On("ApplyDelta", "cancel", "female")
	notifier.On("NotifyExpired", mock.Anything, "u1").Return(nil)
	notifier.On("NotifyExpired", mock.Anything, "u2").Return(nil)

	m := matcher.New(st, notifier, stats, nil)
	n, err := m.ExpireStale(context.Background(), cutoff)

	assert.NoError(t, err)
	assert.Equal(t, 2, n)
	notifier.AssertExpectations(t)
	stats.AssertExpectations(t)
}
