package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"agentscan/internal/models"
	"agentscan/internal/services"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type MockRunService struct {
	mock.Mock
}

func (m *MockRunService) StartRun(run *models.Run) (string, error) {
	args := m.Called(run)
	return args.String(0), args.Error(1)
}

func (m *MockRunService) GetRun(id string) (*models.Run, error) {
	args := m.Called(id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Run), args.Error(1)
}

func (m *MockRunService) ListRuns() ([]models.Run, error) {
	args := m.Called()
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.Run), args.Error(1)
}

func (m *MockRunService) ListRunsPage(page, limit int) ([]models.Run, int64, error) {
	args := m.Called(page, limit)
	if args.Get(0) == nil {
		return nil, 0, args.Error(2)
	}
	return args.Get(0).([]models.Run), args.Get(1).(int64), args.Error(2)
}

func (m *MockRunService) DeleteRun(id string) error {
	args := m.Called(id)
	return args.Error(0)
}

func TestStartRun(t *testing.T) {
	gin.SetMode(gin.TestMode)

	tests := []struct {
		name           string
		requestBody    string
		setupMock      func(*MockRunService)
		expectedStatus int
		expectedBody   string
	}{
		{
			name:        "Valid Request",
			requestBody: `{"domain":"example.com","description":"Main site"}`,
			setupMock: func(m *MockRunService) {
				m.On("StartRun", mock.MatchedBy(func(run *models.Run) bool {
					return run.Domain == "example.com" && run.Description == "Main site"
				})).Return("123e4567-e89b-12d3-a456-426614174000", nil)
			},
			expectedStatus: 202,
			expectedBody:   `{"run_id":"123e4567-e89b-12d3-a456-426614174000"}`,
		},
		{
			name:           "Malformed JSON",
			requestBody:    `{"domain":}`,
			setupMock:      func(m *MockRunService) {},
			expectedStatus: 400,
			expectedBody:   `{"error":"Invalid request payload"}`,
		},
		{
			name:           "Missing Domain",
			requestBody:    `{"description":"no target"}`,
			setupMock:      func(m *MockRunService) {},
			expectedStatus: 400,
			expectedBody:   `{"error":"Invalid request payload"}`,
		},
		{
			name:        "Blank Domain Rejected By Service",
			requestBody: `{"domain":"   "}`,
			setupMock: func(m *MockRunService) {
				m.On("StartRun", mock.AnythingOfType("*models.Run")).
					Return("", fmt.Errorf("%w: domain is required", services.ErrInvalidRun))
			},
			expectedStatus: 400,
			expectedBody:   `{"error":"invalid run request: domain is required"}`,
		},
		{
			name:        "Service Error",
			requestBody: `{"domain":"example.com"}`,
			setupMock: func(m *MockRunService) {
				m.On("StartRun", mock.AnythingOfType("*models.Run")).
					Return("", errors.New("database connection failed"))
			},
			expectedStatus: 500,
			expectedBody:   `{"error":"Failed to start run"}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mockService := new(MockRunService)
			tt.setupMock(mockService)

			router := gin.New()
			router.POST("/api/runs", NewRunHandler(mockService).StartRun)

			req, err := http.NewRequest("POST", "/api/runs", strings.NewReader(tt.requestBody))
			require.NoError(t, err)
			req.Header.Set("Content-Type", "application/json")
			w := httptest.NewRecorder()

			router.ServeHTTP(w, req)

			assert.Equal(t, tt.expectedStatus, w.Code, "Response: %s", w.Body.String())
			assert.JSONEq(t, tt.expectedBody, w.Body.String())
			mockService.AssertExpectations(t)
		})
	}
}

func TestGetRun(t *testing.T) {
	gin.SetMode(gin.TestMode)

	tests := []struct {
		name           string
		runID          string
		setupMock      func(*MockRunService)
		expectedStatus int
		expectedBody   string
	}{
		{
			name:  "Run Found",
			runID: "uuid-1",
			setupMock: func(m *MockRunService) {
				m.On("GetRun", "uuid-1").Return(&models.Run{
					UUID:   "uuid-1",
					Domain: "example.com",
					Status: models.RunStatusRunning,
					State:  "executing",
				}, nil)
			},
			expectedStatus: 200,
		},
		{
			name:  "Run Not Found",
			runID: "missing",
			setupMock: func(m *MockRunService) {
				m.On("GetRun", "missing").Return(nil, nil)
			},
			expectedStatus: 404,
			expectedBody:   `{"error":"Run not found"}`,
		},
		{
			name:  "Service Error",
			runID: "uuid-2",
			setupMock: func(m *MockRunService) {
				m.On("GetRun", "uuid-2").Return(nil, errors.New("db down"))
			},
			expectedStatus: 500,
			expectedBody:   `{"error":"Failed to get run"}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mockService := new(MockRunService)
			tt.setupMock(mockService)

			router := gin.New()
			router.GET("/api/runs/:id", NewRunHandler(mockService).GetRun)

			req, _ := http.NewRequest("GET", "/api/runs/"+tt.runID, nil)
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)

			assert.Equal(t, tt.expectedStatus, w.Code)
			if tt.expectedBody != "" {
				assert.JSONEq(t, tt.expectedBody, w.Body.String())
			} else {
				assert.Contains(t, w.Body.String(), `"state":"executing"`)
			}
			mockService.AssertExpectations(t)
		})
	}
}

func TestListRuns(t *testing.T) {
	gin.SetMode(gin.TestMode)

	runs := []models.Run{{UUID: "a", Domain: "a.example"}, {UUID: "b", Domain: "b.example"}}

	t.Run("Latest", func(t *testing.T) {
		mockService := new(MockRunService)
		mockService.On("ListRuns").Return(runs, nil)

		router := gin.New()
		router.GET("/api/runs", NewRunHandler(mockService).ListRuns)

		req, _ := http.NewRequest("GET", "/api/runs", nil)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		assert.Equal(t, 200, w.Code)
		assert.Contains(t, w.Body.String(), `"total":2`)
		mockService.AssertExpectations(t)
	})

	t.Run("Paged", func(t *testing.T) {
		mockService := new(MockRunService)
		mockService.On("ListRunsPage", 2, 1).Return(runs[1:], int64(2), nil)

		router := gin.New()
		router.GET("/api/runs", NewRunHandler(mockService).ListRuns)

		req, _ := http.NewRequest("GET", "/api/runs?page=2&limit=1", nil)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		assert.Equal(t, 200, w.Code)
		assert.Contains(t, w.Body.String(), `"page":2`)
		assert.Contains(t, w.Body.String(), `"b.example"`)
		mockService.AssertExpectations(t)
	})

	t.Run("Bad Page", func(t *testing.T) {
		router := gin.New()
		router.GET("/api/runs", NewRunHandler(new(MockRunService)).ListRuns)

		req, _ := http.NewRequest("GET", "/api/runs?page=two", nil)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		assert.Equal(t, 400, w.Code)
	})
}

func TestGetReport(t *testing.T) {
	gin.SetMode(gin.TestMode)

	reportPath := filepath.Join(t.TempDir(), "findings_report-log-x.md")
	require.NoError(t, os.WriteFile(reportPath, []byte("# Findings\n"), 0644))

	mockService := new(MockRunService)
	mockService.On("GetRun", "done").Return(&models.Run{UUID: "done", ReportPath: reportPath}, nil)
	mockService.On("GetRun", "pending").Return(&models.Run{UUID: "pending"}, nil)

	router := gin.New()
	router.GET("/api/runs/:id/report", NewRunHandler(mockService).GetReport)

	req, _ := http.NewRequest("GET", "/api/runs/done/report", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, 200, w.Code)
	assert.Equal(t, "# Findings\n", w.Body.String())
	assert.Contains(t, w.Header().Get("Content-Type"), "text/markdown")

	req, _ = http.NewRequest("GET", "/api/runs/pending/report", nil)
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, 404, w.Code)
	assert.JSONEq(t, `{"error":"Report not available"}`, w.Body.String())
}

func TestDeleteRun(t *testing.T) {
	gin.SetMode(gin.TestMode)

	tests := []struct {
		name           string
		runID          string
		returnErr      error
		expectedStatus int
		expectedBody   string
	}{
		{name: "Deleted", runID: "uuid-123", expectedStatus: 204},
		{name: "Not Found", runID: "missing", returnErr: gorm.ErrRecordNotFound, expectedStatus: 404, expectedBody: `{"error":"Run not found"}`},
		{name: "Still Running", runID: "busy", returnErr: services.ErrRunActive, expectedStatus: 409, expectedBody: `{"error":"Run is still in progress"}`},
		{name: "Service Error", runID: "uuid-987", returnErr: errors.New("db error"), expectedStatus: 500, expectedBody: `{"error":"Failed to delete run"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mockService := new(MockRunService)
			mockService.On("DeleteRun", tt.runID).Return(tt.returnErr)

			router := gin.New()
			router.DELETE("/api/runs/:id", NewRunHandler(mockService).DeleteRun)

			req, _ := http.NewRequest("DELETE", "/api/runs/"+tt.runID, nil)
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)

			assert.Equal(t, tt.expectedStatus, w.Code)
			if tt.expectedBody != "" {
				assert.JSONEq(t, tt.expectedBody, w.Body.String())
			} else {
				assert.Empty(t, w.Body.String())
			}
			mockService.AssertExpectations(t)
		})
	}
}
