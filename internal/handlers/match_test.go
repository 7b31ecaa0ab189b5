package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/kha86lilo/quotescan/internal/services"
	"github.com/kha86lilo/quotescan/pkg/models"
)

type MockMatchOrchestrator struct {
	mock.Mock
}

func (m *MockMatchOrchestrator) ProcessEnhancedMatches(ctx context.Context, quoteIDs []uuid.UUID, opts models.MatchOptions) (*models.BatchMatchResult, error) {
	args := m.Called(ctx, quoteIDs, opts)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.BatchMatchResult), args.Error(1)
}

func (m *MockMatchOrchestrator) Rematch(ctx context.Context, quoteID uuid.UUID, req *models.RematchRequest) (*models.MatchDetail, error) {
	args := m.Called(ctx, quoteID, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.MatchDetail), args.Error(1)
}

func (m *MockMatchOrchestrator) RunBatchJob(ctx context.Context, jobID uuid.UUID, quoteIDs []uuid.UUID, opts models.MatchOptions) {
	m.Called(ctx, jobID, quoteIDs, opts)
}

type MockMatchReader struct {
	mock.Mock
}

func (m *MockMatchReader) GetMatchesForQuote(ctx context.Context, quoteID uuid.UUID, opts services.MatchQueryOptions) ([]*models.QuoteMatch, error) {
	args := m.Called(ctx, quoteID, opts)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.QuoteMatch), args.Error(1)
}

type MockJobTracker struct {
	mock.Mock
}

func (m *MockJobTracker) CreateJob(ctx context.Context, totalQuotes int) (*models.BatchJob, error) {
	args := m.Called(ctx, totalQuotes)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.BatchJob), args.Error(1)
}

func (m *MockJobTracker) GetJob(ctx context.Context, jobID uuid.UUID) (*models.BatchJob, error) {
	args := m.Called(ctx, jobID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.BatchJob), args.Error(1)
}

func (m *MockJobTracker) RequestCancel(ctx context.Context, jobID uuid.UUID) (*models.BatchJob, error) {
	args := m.Called(ctx, jobID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.BatchJob), args.Error(1)
}

func testHandlerLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel)
	return logger
}

func performJSON(t *testing.T, router *gin.Engine, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Buffer
	if body != nil {
		encoded, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewBuffer(encoded)
	} else {
		reader = bytes.NewBuffer(nil)
	}

	req, err := http.NewRequest(method, path, reader)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")

	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestMatchHandler_BatchMatch(t *testing.T) {
	gin.SetMode(gin.TestMode)

	quoteID := uuid.New()

	tests := []struct {
		name           string
		requestBody    interface{}
		mockSetup      func(*MockMatchOrchestrator, *MockJobTracker)
		expectedStatus int
		expectedError  string
	}{
		{
			name: "sync batch returns result",
			requestBody: models.BatchMatchRequest{
				QuoteIDs: []uuid.UUID{quoteID},
			},
			mockSetup: func(orch *MockMatchOrchestrator, jobs *MockJobTracker) {
				orch.On("ProcessEnhancedMatches", mock.Anything, []uuid.UUID{quoteID}, models.MatchOptions{}).
					Return(&models.BatchMatchResult{
						Processed:      1,
						MatchesCreated: 3,
						MatchDetails:   []models.MatchDetail{{QuoteID: quoteID, MatchCount: 3}},
					}, nil)
			},
			expectedStatus: http.StatusOK,
		},
		{
			name: "options forwarded",
			requestBody: models.BatchMatchRequest{
				QuoteIDs:   []uuid.UUID{quoteID},
				UseAI:      true,
				MinScore:   floatPointer(0.5),
				MaxMatches: intPointer(3),
			},
			mockSetup: func(orch *MockMatchOrchestrator, jobs *MockJobTracker) {
				orch.On("ProcessEnhancedMatches", mock.Anything, []uuid.UUID{quoteID},
					models.MatchOptions{UseAI: true, MinScore: 0.5, MaxMatches: 3}).
					Return(&models.BatchMatchResult{Processed: 1}, nil)
			},
			expectedStatus: http.StatusOK,
		},
		{
			name:           "empty quote list rejected",
			requestBody:    models.BatchMatchRequest{QuoteIDs: []uuid.UUID{}},
			mockSetup:      func(orch *MockMatchOrchestrator, jobs *MockJobTracker) {},
			expectedStatus: http.StatusBadRequest,
			expectedError:  "VALIDATION_FAILED",
		},
		{
			name:           "min_score above one rejected",
			requestBody:    models.BatchMatchRequest{QuoteIDs: []uuid.UUID{quoteID}, MinScore: floatPointer(1.5)},
			mockSetup:      func(orch *MockMatchOrchestrator, jobs *MockJobTracker) {},
			expectedStatus: http.StatusBadRequest,
			expectedError:  "VALIDATION_FAILED",
		},
		{
			name:        "orchestrator failure surfaces as 500",
			requestBody: models.BatchMatchRequest{QuoteIDs: []uuid.UUID{quoteID}},
			mockSetup: func(orch *MockMatchOrchestrator, jobs *MockJobTracker) {
				orch.On("ProcessEnhancedMatches", mock.Anything, mock.Anything, mock.Anything).
					Return(nil, assert.AnError)
			},
			expectedStatus: http.StatusInternalServerError,
			expectedError:  "BATCH_MATCHING_FAILED",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mockOrch := new(MockMatchOrchestrator)
			mockJobs := new(MockJobTracker)
			tt.mockSetup(mockOrch, mockJobs)

			handler := NewMatchHandler(mockOrch, new(MockMatchReader), mockJobs, testHandlerLogger())
			router := gin.New()
			router.POST("/api/v1/matches/batch", handler.BatchMatch)

			w := performJSON(t, router, "POST", "/api/v1/matches/batch", tt.requestBody)

			assert.Equal(t, tt.expectedStatus, w.Code)
			if tt.expectedError != "" {
				assert.Contains(t, w.Body.String(), tt.expectedError)
			}
			mockOrch.AssertExpectations(t)
		})
	}
}

func TestMatchHandler_BatchMatchAsync(t *testing.T) {
	gin.SetMode(gin.TestMode)

	quoteIDs := []uuid.UUID{uuid.New(), uuid.New()}
	job := &models.BatchJob{
		ID:          uuid.New(),
		Status:      models.JobStatusQueued,
		TotalQuotes: len(quoteIDs),
	}

	mockOrch := new(MockMatchOrchestrator)
	mockJobs := new(MockJobTracker)
	mockJobs.On("CreateJob", mock.Anything, len(quoteIDs)).Return(job, nil)

	started := make(chan struct{})
	mockOrch.On("RunBatchJob", mock.Anything, job.ID, quoteIDs, models.MatchOptions{UseAI: true}).
		Run(func(args mock.Arguments) { close(started) }).
		Return()

	handler := NewMatchHandler(mockOrch, new(MockMatchReader), mockJobs, testHandlerLogger())
	router := gin.New()
	router.POST("/api/v1/matches/batch", handler.BatchMatch)

	w := performJSON(t, router, "POST", "/api/v1/matches/batch", models.BatchMatchRequest{
		QuoteIDs: quoteIDs,
		UseAI:    true,
		Async:    true,
	})

	assert.Equal(t, http.StatusAccepted, w.Code)

	var response BatchJobResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
	assert.Equal(t, job.ID, response.JobID)
	assert.Equal(t, models.JobStatusQueued, response.Status)
	assert.Equal(t, len(quoteIDs), response.TotalQuotes)

	select {
	case <-started:
	case <-time.After(time.Second):
		t.Fatal("batch job never started")
	}
	mockJobs.AssertExpectations(t)
}

func TestMatchHandler_Rematch(t *testing.T) {
	gin.SetMode(gin.TestMode)

	quoteID := uuid.New()
	suggested := 3200.0

	t.Run("returns detail", func(t *testing.T) {
		mockOrch := new(MockMatchOrchestrator)
		mockOrch.On("Rematch", mock.Anything, quoteID, mock.AnythingOfType("*models.RematchRequest")).
			Return(&models.MatchDetail{
				QuoteID:        quoteID,
				MatchCount:     2,
				BestScore:      0.91,
				SuggestedPrice: &suggested,
			}, nil)

		handler := NewMatchHandler(mockOrch, new(MockMatchReader), new(MockJobTracker), testHandlerLogger())
		router := gin.New()
		router.POST("/api/v1/quotes/:id/rematch", handler.Rematch)

		w := performJSON(t, router, "POST", "/api/v1/quotes/"+quoteID.String()+"/rematch", nil)

		assert.Equal(t, http.StatusOK, w.Code)

		var detail models.MatchDetail
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &detail))
		assert.Equal(t, quoteID, detail.QuoteID)
		assert.Equal(t, 2, detail.MatchCount)
		require.NotNil(t, detail.SuggestedPrice)
		assert.Equal(t, suggested, *detail.SuggestedPrice)
		mockOrch.AssertExpectations(t)
	})

	t.Run("unknown quote is 404", func(t *testing.T) {
		mockOrch := new(MockMatchOrchestrator)
		mockOrch.On("Rematch", mock.Anything, quoteID, mock.Anything).
			Return(nil, services.ErrQuoteNotFound)

		handler := NewMatchHandler(mockOrch, new(MockMatchReader), new(MockJobTracker), testHandlerLogger())
		router := gin.New()
		router.POST("/api/v1/quotes/:id/rematch", handler.Rematch)

		w := performJSON(t, router, "POST", "/api/v1/quotes/"+quoteID.String()+"/rematch", nil)

		assert.Equal(t, http.StatusNotFound, w.Code)
		assert.Contains(t, w.Body.String(), "QUOTE_NOT_FOUND")
	})

	t.Run("malformed id is 400", func(t *testing.T) {
		handler := NewMatchHandler(new(MockMatchOrchestrator), new(MockMatchReader), new(MockJobTracker), testHandlerLogger())
		router := gin.New()
		router.POST("/api/v1/quotes/:id/rematch", handler.Rematch)

		w := performJSON(t, router, "POST", "/api/v1/quotes/not-a-uuid/rematch", nil)

		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Contains(t, w.Body.String(), "INVALID_QUOTE_ID")
	})

	t.Run("body options forwarded", func(t *testing.T) {
		mockOrch := new(MockMatchOrchestrator)
		mockOrch.On("Rematch", mock.Anything, quoteID, mock.MatchedBy(func(req *models.RematchRequest) bool {
			return req.UseAI && req.MinScore != nil && *req.MinScore == 0.4
		})).Return(&models.MatchDetail{QuoteID: quoteID}, nil)

		handler := NewMatchHandler(mockOrch, new(MockMatchReader), new(MockJobTracker), testHandlerLogger())
		router := gin.New()
		router.POST("/api/v1/quotes/:id/rematch", handler.Rematch)

		w := performJSON(t, router, "POST", "/api/v1/quotes/"+quoteID.String()+"/rematch",
			models.RematchRequest{UseAI: true, MinScore: floatPointer(0.4)})

		assert.Equal(t, http.StatusOK, w.Code)
		mockOrch.AssertExpectations(t)
	})
}

func TestMatchHandler_GetMatches(t *testing.T) {
	gin.SetMode(gin.TestMode)

	quoteID := uuid.New()

	t.Run("returns matches with query options", func(t *testing.T) {
		mockReader := new(MockMatchReader)
		mockReader.On("GetMatchesForQuote", mock.Anything, quoteID,
			services.MatchQueryOptions{Limit: 10, MinScore: 0.5}).
			Return([]*models.QuoteMatch{
				{ID: uuid.New(), SourceQuoteID: quoteID, SimilarityScore: 0.9},
				{ID: uuid.New(), SourceQuoteID: quoteID, SimilarityScore: 0.7},
			}, nil)

		handler := NewMatchHandler(new(MockMatchOrchestrator), mockReader, new(MockJobTracker), testHandlerLogger())
		router := gin.New()
		router.GET("/api/v1/quotes/:id/matches", handler.GetMatches)

		w := performJSON(t, router, "GET", "/api/v1/quotes/"+quoteID.String()+"/matches?limit=10&min_score=0.5", nil)

		assert.Equal(t, http.StatusOK, w.Code)

		var response struct {
			QuoteID uuid.UUID            `json:"quote_id"`
			Matches []*models.QuoteMatch `json:"matches"`
			Count   int                  `json:"count"`
		}
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
		assert.Equal(t, quoteID, response.QuoteID)
		assert.Equal(t, 2, response.Count)
		mockReader.AssertExpectations(t)
	})

	t.Run("lookup failure is 500", func(t *testing.T) {
		mockReader := new(MockMatchReader)
		mockReader.On("GetMatchesForQuote", mock.Anything, quoteID, services.MatchQueryOptions{}).
			Return(nil, assert.AnError)

		handler := NewMatchHandler(new(MockMatchOrchestrator), mockReader, new(MockJobTracker), testHandlerLogger())
		router := gin.New()
		router.GET("/api/v1/quotes/:id/matches", handler.GetMatches)

		w := performJSON(t, router, "GET", "/api/v1/quotes/"+quoteID.String()+"/matches", nil)

		assert.Equal(t, http.StatusInternalServerError, w.Code)
		assert.Contains(t, w.Body.String(), "MATCH_LOOKUP_FAILED")
	})
}

func floatPointer(v float64) *float64 { return &v }
func intPointer(v int) *int           { return &v }
