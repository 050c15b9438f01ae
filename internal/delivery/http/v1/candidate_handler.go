package v1

import (
	"context"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"go-candidate-tracker/internal/delivery/http/response"
	"go-candidate-tracker/internal/domain"
	"go-candidate-tracker/internal/usecase"
	"go-candidate-tracker/pkg/apperror"
	"go-candidate-tracker/pkg/photo"

	"github.com/gin-gonic/gin"
)

// PhotoStore is the photo manager surface the HTTP layer needs.
type PhotoStore interface {
	Persist(ctx context.Context, src photo.Source, previousURI string) (string, bool)
	DeleteIfLocal(ctx context.Context, uri string)
	IsLocal(uri string) bool
	Open(uri string) (*os.File, error)
}

type CandidateHandler struct {
	candidateUC domain.CandidateUsecase
	details     *usecase.DetailWatcher
	photos      PhotoStore
}

func NewCandidateHandler(r *gin.RouterGroup, candidateUC domain.CandidateUsecase, details *usecase.DetailWatcher, photos PhotoStore) {
	handler := &CandidateHandler{candidateUC: candidateUC, details: details, photos: photos}

	candidates := r.Group("/candidates")
	{
		candidates.GET("", handler.List)
		candidates.GET("/stream", handler.Stream)
		candidates.GET("/export.xlsx", handler.Export)
		candidates.GET("/:id", handler.Get)
		candidates.GET("/:id/detail/stream", handler.StreamDetail)
		candidates.GET("/:id/salary", handler.Salary)
		candidates.GET("/:id/photo", handler.Photo)
		candidates.PUT("/:id/favorite", handler.SetFavorite)
	}
}

// List godoc
// @Summary      List candidates
// @Description  Current candidates sorted by last name, optionally filtered by name and favorite flag
// @Tags         candidates
// @Produce      json
// @Param        q          query  string  false  "Name search"
// @Param        favorites  query  bool    false  "Favorites only"
// @Success      200  {object}  response.Response{data=[]domain.Candidate}
// @Failure      503  {object}  response.Response
// @Router       /candidates [get]
func (h *CandidateHandler) List(c *gin.Context) {
	candidates, err := h.candidateUC.List(c.Request.Context(), filterFromQuery(c))
	if err != nil {
		c.Error(err)
		return
	}
	response.Success(c, http.StatusOK, "Candidates", candidates)
}

// Stream godoc
// @Summary      Stream candidate list
// @Description  Server-sent "candidates" events, one per store change
// @Tags         candidates
// @Produce      text/event-stream
// @Param        q          query  string  false  "Name search"
// @Param        favorites  query  bool    false  "Favorites only"
// @Router       /candidates/stream [get]
func (h *CandidateHandler) Stream(c *gin.Context) {
	lists, err := h.candidateUC.Watch(c.Request.Context(), filterFromQuery(c))
	if err != nil {
		c.Error(err)
		return
	}
	response.Stream(c, "candidates", lists, response.KeepAlive)
}

// Export godoc
// @Summary      Export candidates
// @Tags         candidates
// @Produce      application/vnd.openxmlformats-officedocument.spreadsheetml.sheet
// @Param        q          query  string  false  "Name search"
// @Param        favorites  query  bool    false  "Favorites only"
// @Success      200  {file}  binary
// @Router       /candidates/export.xlsx [get]
func (h *CandidateHandler) Export(c *gin.Context) {
	data, filename, err := h.candidateUC.ExportExcel(c.Request.Context(), filterFromQuery(c))
	if err != nil {
		c.Error(err)
		return
	}
	c.Header("Content-Disposition", `attachment; filename="`+filename+`"`)
	c.Data(http.StatusOK, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", data)
}

// Get godoc
// @Summary      Get candidate
// @Tags         candidates
// @Produce      json
// @Param        id   path      int  true  "Candidate ID"
// @Success      200  {object}  response.Response{data=domain.Candidate}
// @Failure      404  {object}  response.Response
// @Router       /candidates/{id} [get]
func (h *CandidateHandler) Get(c *gin.Context) {
	id, ok := candidateID(c)
	if !ok {
		return
	}
	candidate, err := h.candidateUC.Get(c.Request.Context(), id)
	if err != nil {
		c.Error(err)
		return
	}
	response.Success(c, http.StatusOK, "Candidate", candidate)
}

// StreamDetail godoc
// @Summary      Stream candidate detail
// @Description  Server-sent "detail" events with age, formatted birth date and GBP salary conversion
// @Tags         candidates
// @Produce      text/event-stream
// @Param        id   path  int  true  "Candidate ID"
// @Router       /candidates/{id}/detail/stream [get]
func (h *CandidateHandler) StreamDetail(c *gin.Context) {
	id, ok := candidateID(c)
	if !ok {
		return
	}
	views, err := h.details.Watch(c.Request.Context(), id)
	if err != nil {
		c.Error(err)
		return
	}
	response.Stream(c, "detail", views, response.KeepAlive)
}

// Salary godoc
// @Summary      Candidate detail with salary conversion
// @Tags         candidates
// @Produce      json
// @Param        id   path      int  true  "Candidate ID"
// @Success      200  {object}  response.Response{data=usecase.DetailView}
// @Failure      404  {object}  response.Response
// @Router       /candidates/{id}/salary [get]
func (h *CandidateHandler) Salary(c *gin.Context) {
	id, ok := candidateID(c)
	if !ok {
		return
	}
	view, err := h.details.Snapshot(c.Request.Context(), id)
	if err != nil {
		c.Error(err)
		return
	}
	response.Success(c, http.StatusOK, "Candidate detail", view)
}

// Photo godoc
// @Summary      Candidate photo
// @Description  Serves a locally stored photo or redirects to a remote one
// @Tags         candidates
// @Produce      image/jpeg,image/png,image/webp
// @Param        id   path  int  true  "Candidate ID"
// @Failure      404  {object}  response.Response
// @Router       /candidates/{id}/photo [get]
func (h *CandidateHandler) Photo(c *gin.Context) {
	id, ok := candidateID(c)
	if !ok {
		return
	}
	candidate, err := h.candidateUC.Get(c.Request.Context(), id)
	if err != nil {
		c.Error(err)
		return
	}
	if candidate.PhotoURI == nil || strings.TrimSpace(*candidate.PhotoURI) == "" {
		c.Error(apperror.NotFound("Candidate has no photo"))
		return
	}

	uri := *candidate.PhotoURI
	if !h.photos.IsLocal(uri) {
		if strings.HasPrefix(uri, "https://") || strings.HasPrefix(uri, "http://") {
			c.Redirect(http.StatusFound, uri)
			return
		}
		c.Error(apperror.NotFound("Photo is not available on this server"))
		return
	}

	f, err := h.photos.Open(uri)
	if err != nil {
		c.Error(apperror.NotFound("Photo file is missing"))
		return
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		c.Error(err)
		return
	}
	http.ServeContent(c.Writer, c.Request, filepath.Base(f.Name()), info.ModTime(), f)
}

type favoriteRequest struct {
	Value *bool `json:"value" binding:"required"`
}

// SetFavorite godoc
// @Summary      Toggle favorite
// @Tags         candidates
// @Accept       json
// @Produce      json
// @Param        id       path      int              true  "Candidate ID"
// @Param        request  body      favoriteRequest  true  "Favorite flag"
// @Success      200  {object}  response.Response
// @Failure      404  {object}  response.Response
// @Router       /candidates/{id}/favorite [put]
func (h *CandidateHandler) SetFavorite(c *gin.Context) {
	id, ok := candidateID(c)
	if !ok {
		return
	}
	var req favoriteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(apperror.BadRequest("Body must be {\"value\": true|false}"))
		return
	}
	if err := h.candidateUC.SetFavorite(c.Request.Context(), id, *req.Value); err != nil {
		c.Error(err)
		return
	}
	response.Success(c, http.StatusOK, "Favorite updated", gin.H{"id": id, "is_favorite": *req.Value})
}

func filterFromQuery(c *gin.Context) domain.CandidateFilter {
	favorites, _ := strconv.ParseBool(c.Query("favorites"))
	return domain.CandidateFilter{
		Query:         c.Query("q"),
		FavoritesOnly: favorites,
	}
}

func candidateID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		c.Error(apperror.BadRequest("Invalid candidate id"))
		return 0, false
	}
	return id, true
}
