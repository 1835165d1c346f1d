package userdelivery

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-petr/mini-bank/internal/domain"
	"github.com/go-petr/mini-bank/internal/middleware"
	"github.com/go-petr/mini-bank/pkg/errorspkg"
	"github.com/go-petr/mini-bank/pkg/randompkg"
	"github.com/golang/mock/gomock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func TestMain(m *testing.M) {
	gin.SetMode(gin.ReleaseMode)
	os.Exit(m.Run())
}

func randomUser() domain.UserWithoutPassword {
	return domain.UserWithoutPassword{
		ID:    randompkg.IntBetween(1, 1000),
		Name:  randompkg.Name(),
		Email: randompkg.Email(),
		Phone: randompkg.Phone(),
	}
}

func newServer(h *Handler) *gin.Engine {
	server := gin.New()
	server.POST("/api/auth/register", h.Register)
	server.POST("/api/auth/login", h.Login)
	server.POST("/api/auth/logout", h.Logout)
	server.GET("/api/auth/check", h.Check)

	return server
}

func decodeBody(t *testing.T, recorder *httptest.ResponseRecorder) map[string]any {
	t.Helper()

	var got map[string]any
	require.NoError(t, json.NewDecoder(recorder.Body).Decode(&got))

	return got
}

func sessionCookie(recorder *httptest.ResponseRecorder) *http.Cookie {
	for _, c := range recorder.Result().Cookies() {
		if c.Name == middleware.SessionCookie {
			return c
		}
	}

	return nil
}

func TestRegisterAPI(t *testing.T) {
	t.Parallel()

	user := randomUser()
	password := randompkg.String(8)
	session := domain.Session{ID: uuid.New(), UserID: user.ID, ExpiresAt: time.Now().Add(time.Hour)}

	testCases := []struct {
		name          string
		requestBody   gin.H
		buildStubs    func(userService *MockService, sessions *MockSessionManager)
		checkResponse func(t *testing.T, recorder *httptest.ResponseRecorder)
	}{
		{
			name: "OK",
			requestBody: gin.H{
				"name":     user.Name,
				"email":    user.Email,
				"phone":    user.Phone,
				"password": password,
			},
			buildStubs: func(userService *MockService, sessions *MockSessionManager) {
				userService.EXPECT().
					Create(gomock.Any(), user.Name, user.Email, user.Phone, password).
					Times(1).
					Return(user, nil)
				sessions.EXPECT().
					Create(gomock.Any(), user, gomock.Any(), gomock.Any()).
					Times(1).
					Return("token", session, nil)
			},
			checkResponse: func(t *testing.T, recorder *httptest.ResponseRecorder) {
				require.Equal(t, http.StatusOK, recorder.Code)

				cookie := sessionCookie(recorder)
				require.NotNil(t, cookie)
				require.Equal(t, "token", cookie.Value)
				require.True(t, cookie.HttpOnly)

				got := decodeBody(t, recorder)
				require.Equal(t, true, got["success"])
				require.Equal(t, "Registration successful", got["message"])
				require.Equal(t, user.Email, got["user"].(map[string]any)["email"])
			},
		},
		{
			name: "FullNameAlias",
			requestBody: gin.H{
				"full_name": user.Name,
				"email":     user.Email,
				"phone":     user.Phone,
				"password":  password,
			},
			buildStubs: func(userService *MockService, sessions *MockSessionManager) {
				userService.EXPECT().
					Create(gomock.Any(), user.Name, user.Email, user.Phone, password).
					Times(1).
					Return(user, nil)
				sessions.EXPECT().
					Create(gomock.Any(), user, gomock.Any(), gomock.Any()).
					Times(1).
					Return("token", session, nil)
			},
			checkResponse: func(t *testing.T, recorder *httptest.ResponseRecorder) {
				require.Equal(t, http.StatusOK, recorder.Code)
			},
		},
		{
			name: "MissingName",
			requestBody: gin.H{
				"email":    user.Email,
				"phone":    user.Phone,
				"password": password,
			},
			buildStubs: func(userService *MockService, sessions *MockSessionManager) {
				userService.EXPECT().Create(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).Times(0)
			},
			checkResponse: func(t *testing.T, recorder *httptest.ResponseRecorder) {
				require.Equal(t, http.StatusBadRequest, recorder.Code)
				require.Equal(t, "Name is required", decodeBody(t, recorder)["error"])
			},
		},
		{
			name: "ShortPassword",
			requestBody: gin.H{
				"name":     user.Name,
				"email":    user.Email,
				"phone":    user.Phone,
				"password": "xyz",
			},
			buildStubs: func(userService *MockService, sessions *MockSessionManager) {
				userService.EXPECT().Create(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).Times(0)
			},
			checkResponse: func(t *testing.T, recorder *httptest.ResponseRecorder) {
				require.Equal(t, http.StatusBadRequest, recorder.Code)
				require.Equal(t, "Password must be at least 6 characters", decodeBody(t, recorder)["error"])
			},
		},
		{
			name: "InvalidPhone",
			requestBody: gin.H{
				"name":     user.Name,
				"email":    user.Email,
				"phone":    "12345",
				"password": password,
			},
			buildStubs: func(userService *MockService, sessions *MockSessionManager) {
				userService.EXPECT().Create(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).Times(0)
			},
			checkResponse: func(t *testing.T, recorder *httptest.ResponseRecorder) {
				require.Equal(t, http.StatusBadRequest, recorder.Code)
				require.Equal(t, "Phone must be 10 digits", decodeBody(t, recorder)["error"])
			},
		},
		{
			name: "InvalidEmail",
			requestBody: gin.H{
				"name":     user.Name,
				"email":    "user%email.com",
				"phone":    user.Phone,
				"password": password,
			},
			buildStubs: func(userService *MockService, sessions *MockSessionManager) {
				userService.EXPECT().Create(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).Times(0)
			},
			checkResponse: func(t *testing.T, recorder *httptest.ResponseRecorder) {
				require.Equal(t, http.StatusBadRequest, recorder.Code)
				require.Equal(t, "Invalid email address", decodeBody(t, recorder)["error"])
			},
		},
		{
			name: "EmailAlreadyExists",
			requestBody: gin.H{
				"name":     user.Name,
				"email":    user.Email,
				"phone":    user.Phone,
				"password": password,
			},
			buildStubs: func(userService *MockService, sessions *MockSessionManager) {
				userService.EXPECT().
					Create(gomock.Any(), user.Name, user.Email, user.Phone, password).
					Times(1).
					Return(domain.UserWithoutPassword{}, domain.ErrEmailAlreadyExists)
				sessions.EXPECT().Create(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).Times(0)
			},
			checkResponse: func(t *testing.T, recorder *httptest.ResponseRecorder) {
				require.Equal(t, http.StatusBadRequest, recorder.Code)
				require.Equal(t, "Email already registered", decodeBody(t, recorder)["error"])
			},
		},
		{
			name: "SessionInternalError",
			requestBody: gin.H{
				"name":     user.Name,
				"email":    user.Email,
				"phone":    user.Phone,
				"password": password,
			},
			buildStubs: func(userService *MockService, sessions *MockSessionManager) {
				userService.EXPECT().
					Create(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).
					Times(1).
					Return(user, nil)
				sessions.EXPECT().
					Create(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).
					Times(1).
					Return("", domain.Session{}, errorspkg.ErrInternal)
			},
			checkResponse: func(t *testing.T, recorder *httptest.ResponseRecorder) {
				require.Equal(t, http.StatusInternalServerError, recorder.Code)
				require.Nil(t, sessionCookie(recorder))
			},
		},
	}

	for i := range testCases {
		tc := testCases[i]

		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			ctrl := gomock.NewController(t)
			defer ctrl.Finish()

			userService := NewMockService(ctrl)
			sessions := NewMockSessionManager(ctrl)
			tc.buildStubs(userService, sessions)

			server := newServer(NewHandler(userService, sessions, false))

			body, err := json.Marshal(tc.requestBody)
			require.NoError(t, err)

			recorder := httptest.NewRecorder()
			request := httptest.NewRequest(http.MethodPost, "/api/auth/register", bytes.NewReader(body))

			server.ServeHTTP(recorder, request)
			tc.checkResponse(t, recorder)
		})
	}
}

func TestLoginAPI(t *testing.T) {
	t.Parallel()

	user := randomUser()
	session := domain.Session{ID: uuid.New(), UserID: user.ID, ExpiresAt: time.Now().Add(time.Hour)}

	testCases := []struct {
		name          string
		requestBody   gin.H
		buildStubs    func(userService *MockService, sessions *MockSessionManager)
		wantStatus    int
		wantError     string
		wantCookieSet bool
	}{
		{
			name:        "OK",
			requestBody: gin.H{"email": user.Email, "password": "secret123"},
			buildStubs: func(userService *MockService, sessions *MockSessionManager) {
				userService.EXPECT().CheckPassword(gomock.Any(), user.Email, "secret123").Times(1).Return(user, nil)
				sessions.EXPECT().Create(gomock.Any(), user, gomock.Any(), gomock.Any()).Times(1).Return("token", session, nil)
			},
			wantStatus:    http.StatusOK,
			wantCookieSet: true,
		},
		{
			name:        "InvalidCredentials",
			requestBody: gin.H{"email": user.Email, "password": "wrong"},
			buildStubs: func(userService *MockService, sessions *MockSessionManager) {
				userService.EXPECT().
					CheckPassword(gomock.Any(), user.Email, "wrong").
					Times(1).
					Return(domain.UserWithoutPassword{}, domain.ErrInvalidCredentials)
				sessions.EXPECT().Create(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).Times(0)
			},
			wantStatus: http.StatusUnauthorized,
			wantError:  "Invalid credentials",
		},
		{
			name:        "MissingPassword",
			requestBody: gin.H{"email": user.Email},
			buildStubs: func(userService *MockService, sessions *MockSessionManager) {
				userService.EXPECT().CheckPassword(gomock.Any(), gomock.Any(), gomock.Any()).Times(0)
			},
			wantStatus: http.StatusBadRequest,
			wantError:  "Password is required",
		},
	}

	for i := range testCases {
		tc := testCases[i]

		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			ctrl := gomock.NewController(t)
			defer ctrl.Finish()

			userService := NewMockService(ctrl)
			sessions := NewMockSessionManager(ctrl)
			tc.buildStubs(userService, sessions)

			server := newServer(NewHandler(userService, sessions, false))

			body, err := json.Marshal(tc.requestBody)
			require.NoError(t, err)

			recorder := httptest.NewRecorder()
			request := httptest.NewRequest(http.MethodPost, "/api/auth/login", bytes.NewReader(body))

			server.ServeHTTP(recorder, request)

			require.Equal(t, tc.wantStatus, recorder.Code)
			require.Equal(t, tc.wantCookieSet, sessionCookie(recorder) != nil)

			got := decodeBody(t, recorder)
			if tc.wantError != "" {
				require.Equal(t, tc.wantError, got["error"])
				require.Equal(t, false, got["success"])
			}
		})
	}
}

func TestLogoutAPI(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	sessions := NewMockSessionManager(ctrl)
	sessions.EXPECT().Logout(gomock.Any(), "token").Times(1).Return(nil)

	server := newServer(NewHandler(NewMockService(ctrl), sessions, false))

	recorder := httptest.NewRecorder()
	request := httptest.NewRequest(http.MethodPost, "/api/auth/logout", nil)
	request.AddCookie(&http.Cookie{Name: middleware.SessionCookie, Value: "token"})

	server.ServeHTTP(recorder, request)

	require.Equal(t, http.StatusOK, recorder.Code)

	cookie := sessionCookie(recorder)
	require.NotNil(t, cookie)
	require.Empty(t, cookie.Value)
	require.Negative(t, cookie.MaxAge)

	recorder = httptest.NewRecorder()
	server.ServeHTTP(recorder, httptest.NewRequest(http.MethodPost, "/api/auth/logout", nil))
	require.Equal(t, http.StatusOK, recorder.Code)
}

func TestCheckAPI(t *testing.T) {
	t.Parallel()

	user := randomUser()
	principal := domain.Principal{UserID: user.ID, Email: user.Email, Name: user.Name}

	testCases := []struct {
		name         string
		cookie       string
		buildStubs   func(sessions *MockSessionManager)
		wantStatus   int
		wantLoggedIn bool
	}{
		{
			name:   "LoggedIn",
			cookie: "token",
			buildStubs: func(sessions *MockSessionManager) {
				sessions.EXPECT().Authenticate(gomock.Any(), "token").Times(1).Return(principal, nil)
			},
			wantStatus:   http.StatusOK,
			wantLoggedIn: true,
		},
		{
			name: "NoCookie",
			buildStubs: func(sessions *MockSessionManager) {
				sessions.EXPECT().Authenticate(gomock.Any(), gomock.Any()).Times(0)
			},
			wantStatus: http.StatusOK,
		},
		{
			name:   "ExpiredSession",
			cookie: "token",
			buildStubs: func(sessions *MockSessionManager) {
				sessions.EXPECT().Authenticate(gomock.Any(), "token").Times(1).Return(domain.Principal{}, domain.ErrUnauthorized)
			},
			wantStatus: http.StatusOK,
		},
		{
			name:   "InternalError",
			cookie: "token",
			buildStubs: func(sessions *MockSessionManager) {
				sessions.EXPECT().Authenticate(gomock.Any(), "token").Times(1).Return(domain.Principal{}, errorspkg.ErrInternal)
			},
			wantStatus: http.StatusInternalServerError,
		},
	}

	for i := range testCases {
		tc := testCases[i]

		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			ctrl := gomock.NewController(t)
			defer ctrl.Finish()

			sessions := NewMockSessionManager(ctrl)
			tc.buildStubs(sessions)

			server := newServer(NewHandler(NewMockService(ctrl), sessions, false))

			recorder := httptest.NewRecorder()
			request := httptest.NewRequest(http.MethodGet, "/api/auth/check", nil)

			if tc.cookie != "" {
				request.AddCookie(&http.Cookie{Name: middleware.SessionCookie, Value: tc.cookie})
			}

			server.ServeHTTP(recorder, request)
			require.Equal(t, tc.wantStatus, recorder.Code)

			if tc.wantStatus != http.StatusOK {
				return
			}

			got := decodeBody(t, recorder)
			require.Equal(t, tc.wantLoggedIn, got["logged_in"])

			if tc.wantLoggedIn {
				require.Equal(t, user.Name, got["user"].(map[string]any)["name"])
			}
		})
	}
}
