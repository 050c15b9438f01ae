package v1_test

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"image"
	"image/color"
	"image/png"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"os"
	"strconv"
	"strings"
	"testing"
	"time"

	"go-candidate-tracker/config"
	"go-candidate-tracker/internal/delivery/http/middleware"
	v1 "go-candidate-tracker/internal/delivery/http/v1"
	"go-candidate-tracker/internal/domain"
	"go-candidate-tracker/internal/repository/memory"
	"go-candidate-tracker/internal/usecase"
	"go-candidate-tracker/pkg/photo"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type staticRate float64

func (r staticRate) FetchEURToGBP(context.Context) (float64, bool) { return float64(r), true }

type testServer struct {
	router *gin.Engine
	store  domain.CandidateStore
	photos *photo.Manager
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	store := memory.NewCandidateRepository()
	photos, err := photo.NewManager(t.TempDir(), photo.Options{})
	require.NoError(t, err)

	cfg := &config.Config{
		FrontendURL:              "http://localhost:3000",
		PhotoMaxUploadBytes:      1 << 20,
		RateLimitWindowSeconds:   60,
		RateLimitGlobalThreshold: 1000,
		RateLimitUploadThreshold: 100,
	}
	drafts := usecase.NewDraftRegistry(store, photos, time.Minute, usecase.EditorOptions{})
	t.Cleanup(func() {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		drafts.Run(ctx)
	})

	router := v1.NewRouter(v1.RouterDeps{
		CandidateUC: usecase.NewCandidateUsecase(store, nil),
		Drafts:      drafts,
		Details:     usecase.NewDetailWatcher(store, staticRate(0.85), nil),
		Photos:      photos,
		RateLimiter: middleware.NewRateLimiter(nil, nil),
		Config:      cfg,
		Health: usecase.NewHealthUsecase(map[string]usecase.Probe{
			"store": func(context.Context) error { return nil },
		}),
	})
	return &testServer{router: router, store: store, photos: photos}
}

type envelope struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
	Error   json.RawMessage `json:"error"`
}

func (s *testServer) do(t *testing.T, method, path string, body any) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return s.serve(t, req)
}

func (s *testServer) serve(t *testing.T, req *http.Request) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)

	var env envelope
	if strings.HasPrefix(w.Header().Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	}
	return w, env
}

type sessionData struct {
	SessionID string        `json:"session_id"`
	State     usecase.State `json:"state"`
}

func (s *testServer) openDraft(t *testing.T) string {
	t.Helper()
	w, env := s.do(t, http.MethodPost, "/v1/drafts", nil)
	require.Equal(t, http.StatusCreated, w.Code)
	var data sessionData
	require.NoError(t, json.Unmarshal(env.Data, &data))
	require.NotEmpty(t, data.SessionID)
	assert.Equal(t, usecase.ModeAdd, data.State.Mode)
	return data.SessionID
}

func validFields() map[string]string {
	return map[string]string{
		"first_name":      "Ada",
		"last_name":       "Lovelace",
		"phone_number":    "+44 20 7946 0000",
		"email":           "ada@example.com",
		"birth_date":      "10/12/1990",
		"expected_salary": "52000",
		"notes":           "Analytical engine",
	}
}

func pngBytes(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 4, 4))
	img.Set(1, 1, color.RGBA{R: 255, A: 255})
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func multipartPhoto(t *testing.T, path string, data []byte, contentType string) *http.Request {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	header := textproto.MIMEHeader{}
	header.Set("Content-Disposition", `form-data; name="photo"; filename="photo"`)
	header.Set("Content-Type", contentType)
	part, err := mw.CreatePart(header)
	require.NoError(t, err)
	_, err = part.Write(data)
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, path, &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func TestDraftSaveCreatesCandidate(t *testing.T) {
	s := newTestServer(t)
	sid := s.openDraft(t)

	w, env := s.do(t, http.MethodPatch, "/v1/drafts/"+sid, validFields())
	require.Equal(t, http.StatusOK, w.Code)
	var state usecase.State
	require.NoError(t, json.Unmarshal(env.Data, &state))
	assert.Equal(t, "Ada", state.Draft.FirstName)
	require.NotNil(t, state.Draft.BirthDate)

	w, env = s.do(t, http.MethodPost, "/v1/drafts/"+sid+"/save", nil)
	require.Equal(t, http.StatusOK, w.Code, string(env.Error))
	var saved struct {
		Candidate domain.Candidate `json:"candidate"`
		State     usecase.State    `json:"state"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &saved))
	assert.NotZero(t, saved.Candidate.ID)
	assert.Equal(t, 52000, saved.Candidate.ExpectedSalary)
	assert.Empty(t, saved.State.Draft.FirstName, "add draft resets after save")

	w, env = s.do(t, http.MethodGet, "/v1/candidates?q=love", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var list []domain.Candidate
	require.NoError(t, json.Unmarshal(env.Data, &list))
	require.Len(t, list, 1)
	assert.Equal(t, "Lovelace", list[0].LastName)
}

func TestDraftSaveReportsInvalidFields(t *testing.T) {
	s := newTestServer(t)
	sid := s.openDraft(t)

	fields := validFields()
	delete(fields, "email")
	fields["first_name"] = "   "
	_, _ = s.do(t, http.MethodPatch, "/v1/drafts/"+sid, fields)

	w, env := s.do(t, http.MethodPost, "/v1/drafts/"+sid+"/save", nil)
	require.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.False(t, env.Success)

	var details struct {
		Fields map[string]string `json:"fields"`
		State  usecase.State     `json:"state"`
	}
	require.NoError(t, json.Unmarshal(env.Error, &details))
	assert.Contains(t, details.Fields, "first_name")
	assert.Contains(t, details.Fields, "email")
	assert.NotContains(t, details.Fields, "last_name")
	assert.True(t, details.State.Draft.Errors.FirstName)
	assert.True(t, details.State.Draft.Errors.Email)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ch, err := s.store.StreamAll(ctx)
	require.NoError(t, err)
	assert.Empty(t, <-ch)
}

func TestUnknownDraftIsNotFound(t *testing.T) {
	s := newTestServer(t)
	w, env := s.do(t, http.MethodPatch, "/v1/drafts/nope", map[string]string{"notes": "x"})
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.False(t, env.Success)
}

func TestFavoriteOnAddDraftConflicts(t *testing.T) {
	s := newTestServer(t)
	sid := s.openDraft(t)

	w, _ := s.do(t, http.MethodPut, "/v1/drafts/"+sid+"/favorite", map[string]bool{"value": true})
	assert.Equal(t, http.StatusConflict, w.Code)

	w, _ = s.do(t, http.MethodPost, "/v1/drafts/"+sid+"/delete", nil)
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestEditDraftLoadsAndDeletes(t *testing.T) {
	s := newTestServer(t)
	stored, err := s.store.Upsert(context.Background(), domain.Candidate{
		FirstName: "Grace", LastName: "Hopper", Email: "grace@example.com",
		PhoneNumber: "555", BirthDate: time.Date(1980, 1, 1, 0, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)
	base := "/v1/candidates/" + itoa(stored.ID)

	w, env := s.do(t, http.MethodPost, base+"/drafts", nil)
	require.Equal(t, http.StatusCreated, w.Code)
	var data sessionData
	require.NoError(t, json.Unmarshal(env.Data, &data))

	w, env = s.do(t, http.MethodGet, "/v1/drafts/"+data.SessionID+"?wait=true", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var state usecase.State
	require.NoError(t, json.Unmarshal(env.Data, &state))
	assert.False(t, state.Loading)
	assert.Equal(t, "Grace", state.Draft.FirstName)

	w, _ = s.do(t, http.MethodPut, "/v1/drafts/"+data.SessionID+"/favorite", map[string]bool{"value": true})
	require.Equal(t, http.StatusOK, w.Code)
	got, err := s.store.GetByID(context.Background(), stored.ID)
	require.NoError(t, err)
	assert.True(t, got.IsFavorite)

	w, _ = s.do(t, http.MethodPost, "/v1/drafts/"+data.SessionID+"/delete", nil)
	require.Equal(t, http.StatusOK, w.Code)

	w, _ = s.do(t, http.MethodGet, base, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestPhotoUploadReplacesAndRemoves(t *testing.T) {
	s := newTestServer(t)
	sid := s.openDraft(t)
	path := "/v1/drafts/" + sid + "/photo"

	w, env := s.serve(t, multipartPhoto(t, path, pngBytes(t), "image/png"))
	require.Equal(t, http.StatusOK, w.Code, string(env.Error))
	var first usecase.State
	require.NoError(t, json.Unmarshal(env.Data, &first))
	require.NotNil(t, first.Draft.PhotoURI)
	assert.True(t, strings.HasSuffix(*first.Draft.PhotoURI, ".png"))
	assert.True(t, s.photos.IsLocal(*first.Draft.PhotoURI))

	w, env = s.serve(t, multipartPhoto(t, path, pngBytes(t), "image/png"))
	require.Equal(t, http.StatusOK, w.Code)
	var second usecase.State
	require.NoError(t, json.Unmarshal(env.Data, &second))
	assert.NotEqual(t, *first.Draft.PhotoURI, *second.Draft.PhotoURI)
	_, err := s.photos.Open(*first.Draft.PhotoURI)
	assert.ErrorIs(t, err, os.ErrNotExist, "replaced photo is deleted")

	w, env = s.do(t, http.MethodDelete, path, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var cleared usecase.State
	require.NoError(t, json.Unmarshal(env.Data, &cleared))
	assert.Nil(t, cleared.Draft.PhotoURI)
	_, err = s.photos.Open(*second.Draft.PhotoURI)
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestPhotoUploadRejectsNonImages(t *testing.T) {
	s := newTestServer(t)
	sid := s.openDraft(t)

	w, _ := s.serve(t, multipartPhoto(t, "/v1/drafts/"+sid+"/photo", []byte("#!/bin/sh\necho hi\n"), "image/png"))
	assert.Equal(t, http.StatusBadRequest, w.Code)

	entries, err := os.ReadDir(s.photos.Dir())
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestCandidateRoutes(t *testing.T) {
	s := newTestServer(t)
	stored, err := s.store.Upsert(context.Background(), domain.Candidate{
		FirstName: "Alan", LastName: "Turing", Email: "alan@example.com", PhoneNumber: "1",
		BirthDate: time.Date(1990, 6, 23, 0, 0, 0, 0, time.UTC), ExpectedSalary: 1000,
	})
	require.NoError(t, err)
	id := itoa(stored.ID)

	w, _ := s.do(t, http.MethodGet, "/v1/candidates/abc", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, _ = s.do(t, http.MethodGet, "/v1/candidates/999", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w, env := s.do(t, http.MethodGet, "/v1/candidates/"+id+"/salary", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var view usecase.DetailView
	require.NoError(t, json.Unmarshal(env.Data, &view))
	assert.Equal(t, usecase.ConversionAvailable, view.Conversion.State)
	assert.InDelta(t, 850.0, view.Conversion.AmountGBP, 0.001)
	assert.Equal(t, "23/06/1990", view.BirthDateDisplay)

	w, _ = s.do(t, http.MethodPut, "/v1/candidates/"+id+"/favorite", map[string]bool{"value": true})
	require.Equal(t, http.StatusOK, w.Code)
	w, env = s.do(t, http.MethodGet, "/v1/candidates?favorites=true", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var favorites []domain.Candidate
	require.NoError(t, json.Unmarshal(env.Data, &favorites))
	assert.Len(t, favorites, 1)

	w, _ = s.do(t, http.MethodPut, "/v1/candidates/"+id+"/favorite", map[string]string{"value": "yes"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, _ = s.do(t, http.MethodGet, "/v1/candidates/"+id+"/photo", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w, _ = s.do(t, http.MethodGet, "/v1/candidates/export.xlsx", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Header().Get("Content-Disposition"), "candidates_")
	assert.Equal(t, "PK", string(w.Body.Bytes()[:2]))
}

func TestHealth(t *testing.T) {
	s := newTestServer(t)
	w, env := s.do(t, http.MethodGet, "/v1/health", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.True(t, env.Success)
	assert.NotEmpty(t, w.Header().Get(middleware.RequestIDHeader))
}

func TestCandidateStreamSendsSnapshot(t *testing.T) {
	s := newTestServer(t)
	_, err := s.store.Upsert(context.Background(), domain.Candidate{FirstName: "Ada", LastName: "Lovelace"})
	require.NoError(t, err)

	srv := httptest.NewServer(s.router)
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/v1/candidates/stream", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	scanner := bufio.NewScanner(resp.Body)
	var event, data string
	for scanner.Scan() {
		line := scanner.Text()
		if strings.HasPrefix(line, "event:") {
			event = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
		}
		if strings.HasPrefix(line, "data:") {
			data = strings.TrimSpace(strings.TrimPrefix(line, "data:"))
			break
		}
	}
	assert.Equal(t, "candidates", event)
	var list []domain.Candidate
	require.NoError(t, json.Unmarshal([]byte(data), &list))
	require.Len(t, list, 1)
	assert.Equal(t, "Ada", list[0].FirstName)
}

func itoa(id int64) string {
	return strconv.FormatInt(id, 10)
}
