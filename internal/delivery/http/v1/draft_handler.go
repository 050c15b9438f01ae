package v1

import (
	"errors"
	"io"
	"net/http"
	"time"

	"go-candidate-tracker/internal/delivery/http/response"
	"go-candidate-tracker/internal/domain"
	"go-candidate-tracker/internal/usecase"
	"go-candidate-tracker/pkg/apperror"
	"go-candidate-tracker/pkg/audit"
	"go-candidate-tracker/pkg/photo"
	"go-candidate-tracker/pkg/validation"

	"github.com/gin-gonic/gin"
)

const loadWaitTimeout = 5 * time.Second

type DraftHandler struct {
	drafts         *usecase.DraftRegistry
	photos         PhotoStore
	audit          *audit.Logger
	maxUploadBytes int64
}

type draftSessionResponse struct {
	SessionID string        `json:"session_id"`
	State     usecase.State `json:"state"`
}

// draftPatchRequest carries raw field text; absent fields are left alone.
type draftPatchRequest struct {
	FirstName      *string `json:"first_name"`
	LastName       *string `json:"last_name"`
	PhoneNumber    *string `json:"phone_number"`
	Email          *string `json:"email"`
	BirthDate      *string `json:"birth_date"` // dd/MM/yyyy or yyyy-MM-dd
	ExpectedSalary *string `json:"expected_salary"`
	Notes          *string `json:"notes"`
}

func (p draftPatchRequest) events() []usecase.Event {
	var events []usecase.Event
	if p.FirstName != nil {
		events = append(events, usecase.SetFirstName{Value: *p.FirstName})
	}
	if p.LastName != nil {
		events = append(events, usecase.SetLastName{Value: *p.LastName})
	}
	if p.PhoneNumber != nil {
		events = append(events, usecase.SetPhoneNumber{Value: *p.PhoneNumber})
	}
	if p.Email != nil {
		events = append(events, usecase.SetEmail{Value: *p.Email})
	}
	if p.BirthDate != nil {
		events = append(events, usecase.SetBirthDateText{Value: *p.BirthDate})
	}
	if p.ExpectedSalary != nil {
		events = append(events, usecase.SetExpectedSalary{Value: *p.ExpectedSalary})
	}
	if p.Notes != nil {
		events = append(events, usecase.SetNotes{Value: *p.Notes})
	}
	return events
}

func NewDraftHandler(r *gin.RouterGroup, drafts *usecase.DraftRegistry, photos PhotoStore, auditLog *audit.Logger, maxUploadBytes int64, uploadLimit gin.HandlerFunc) {
	handler := &DraftHandler{drafts: drafts, photos: photos, audit: auditLog, maxUploadBytes: maxUploadBytes}

	r.POST("/drafts", handler.OpenAdd)
	r.POST("/candidates/:id/drafts", handler.OpenEdit)

	sessions := r.Group("/drafts/:sid")
	{
		sessions.GET("", handler.Get)
		sessions.PATCH("", handler.Patch)
		sessions.DELETE("", handler.Discard)
		sessions.POST("/photo", uploadLimit, handler.UploadPhoto)
		sessions.DELETE("/photo", handler.RemovePhoto)
		sessions.PUT("/favorite", handler.SetFavorite)
		sessions.POST("/save", handler.Save)
		sessions.POST("/delete", handler.Delete)
	}
}

// OpenAdd godoc
// @Summary      Start an add-mode draft
// @Tags         drafts
// @Produce      json
// @Success      201  {object}  response.Response{data=draftSessionResponse}
// @Router       /drafts [post]
func (h *DraftHandler) OpenAdd(c *gin.Context) {
	sid, editor := h.drafts.OpenAdd()
	response.Success(c, http.StatusCreated, "Draft opened", draftSessionResponse{SessionID: sid, State: editor.State()})
}

// OpenEdit godoc
// @Summary      Start an edit-mode draft
// @Description  The candidate loads in the background; poll GET /drafts/{sid}?wait=true
// @Tags         drafts
// @Produce      json
// @Param        id   path      int  true  "Candidate ID"
// @Success      201  {object}  response.Response{data=draftSessionResponse}
// @Router       /candidates/{id}/drafts [post]
func (h *DraftHandler) OpenEdit(c *gin.Context) {
	id, ok := candidateID(c)
	if !ok {
		return
	}
	sid, editor := h.drafts.OpenEdit(c.Request.Context(), id)
	response.Success(c, http.StatusCreated, "Draft opened", draftSessionResponse{SessionID: sid, State: editor.State()})
}

// Get godoc
// @Summary      Current draft state
// @Tags         drafts
// @Produce      json
// @Param        sid   path      string  true   "Draft session ID"
// @Param        wait  query     bool    false  "Wait for the initial load"
// @Success      200  {object}  response.Response{data=usecase.State}
// @Failure      404  {object}  response.Response
// @Router       /drafts/{sid} [get]
func (h *DraftHandler) Get(c *gin.Context) {
	editor, ok := h.editor(c)
	if !ok {
		return
	}

	if c.Query("wait") == "true" {
		timer := time.NewTimer(loadWaitTimeout)
		defer timer.Stop()
		select {
		case <-editor.Loaded():
		case <-timer.C:
		case <-c.Request.Context().Done():
			return
		}
	}
	response.Success(c, http.StatusOK, "Draft", editor.State())
}

// Patch godoc
// @Summary      Edit draft fields
// @Tags         drafts
// @Accept       json
// @Produce      json
// @Param        sid      path      string             true  "Draft session ID"
// @Param        request  body      draftPatchRequest  true  "Fields to replace"
// @Success      200  {object}  response.Response{data=usecase.State}
// @Router       /drafts/{sid} [patch]
func (h *DraftHandler) Patch(c *gin.Context) {
	editor, ok := h.editor(c)
	if !ok {
		return
	}
	var req draftPatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(apperror.BadRequest("Invalid draft fields: all values must be strings"))
		return
	}
	for _, ev := range req.events() {
		if err := editor.Dispatch(c.Request.Context(), ev); err != nil {
			c.Error(err)
			return
		}
	}
	response.Success(c, http.StatusOK, "Draft updated", editor.State())
}

// Discard godoc
// @Summary      Discard a draft session
// @Tags         drafts
// @Param        sid  path  string  true  "Draft session ID"
// @Success      200  {object}  response.Response
// @Router       /drafts/{sid} [delete]
func (h *DraftHandler) Discard(c *gin.Context) {
	if err := h.drafts.Discard(c.Param("sid")); err != nil {
		c.Error(err)
		return
	}
	response.Success(c, http.StatusOK, "Draft discarded", nil)
}

// UploadPhoto godoc
// @Summary      Attach a photo to the draft
// @Description  Stores the image locally, replacing any previous local photo
// @Tags         drafts
// @Accept       multipart/form-data
// @Produce      json
// @Param        sid    path      string  true  "Draft session ID"
// @Param        photo  formData  file    true  "JPEG, PNG or WebP image"
// @Success      200  {object}  response.Response{data=usecase.State}
// @Failure      400  {object}  response.Response
// @Failure      503  {object}  response.Response
// @Router       /drafts/{sid}/photo [post]
func (h *DraftHandler) UploadPhoto(c *gin.Context) {
	editor, ok := h.editor(c)
	if !ok {
		return
	}

	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxUploadBytes+1024*1024)
	file, err := c.FormFile("photo")
	if err != nil {
		c.Error(apperror.BadRequest("Multipart field \"photo\" is required"))
		return
	}
	if file.Size > h.maxUploadBytes {
		c.Error(apperror.BadRequest("Photo is too large"))
		return
	}

	f, err := file.Open()
	if err != nil {
		c.Error(err)
		return
	}
	data, err := io.ReadAll(io.LimitReader(f, h.maxUploadBytes+1))
	f.Close()
	if err != nil {
		c.Error(err)
		return
	}

	mimeType, err := photo.DetectImageType(data, file.Header.Get("Content-Type"))
	if err != nil {
		c.Error(apperror.BadRequest("Photo must be a JPEG, PNG or WebP image"))
		return
	}

	previous := ""
	if uri := editor.State().Draft.PhotoURI; uri != nil {
		previous = *uri
	}

	ctx := c.Request.Context()
	uri, stored := h.photos.Persist(ctx, photo.BytesSource{Data: data, MIME: mimeType}, previous)
	if !stored {
		c.Error(domain.ErrAssetIO)
		return
	}
	if err := editor.Dispatch(ctx, usecase.SetPhotoURI{URI: &uri}); err != nil {
		h.photos.DeleteIfLocal(ctx, uri)
		c.Error(err)
		return
	}

	state := editor.State()
	h.audit.Log(ctx, audit.Event{Event: audit.EventPhotoReplaced, CandidateID: state.Draft.ID})
	response.Success(c, http.StatusOK, "Photo attached", state)
}

// RemovePhoto godoc
// @Summary      Remove the draft photo
// @Tags         drafts
// @Produce      json
// @Param        sid  path      string  true  "Draft session ID"
// @Success      200  {object}  response.Response{data=usecase.State}
// @Router       /drafts/{sid}/photo [delete]
func (h *DraftHandler) RemovePhoto(c *gin.Context) {
	editor, ok := h.editor(c)
	if !ok {
		return
	}

	ctx := c.Request.Context()
	if uri := editor.State().Draft.PhotoURI; uri != nil {
		h.photos.DeleteIfLocal(ctx, *uri)
	}
	if err := editor.Dispatch(ctx, usecase.SetPhotoURI{URI: nil}); err != nil {
		c.Error(err)
		return
	}

	state := editor.State()
	h.audit.Log(ctx, audit.Event{Event: audit.EventPhotoRemoved, CandidateID: state.Draft.ID})
	response.Success(c, http.StatusOK, "Photo removed", state)
}

// SetFavorite godoc
// @Summary      Toggle favorite from an edit draft
// @Description  Written through immediately, independent of save
// @Tags         drafts
// @Accept       json
// @Produce      json
// @Param        sid      path      string           true  "Draft session ID"
// @Param        request  body      favoriteRequest  true  "Favorite flag"
// @Success      200  {object}  response.Response{data=usecase.State}
// @Failure      409  {object}  response.Response
// @Router       /drafts/{sid}/favorite [put]
func (h *DraftHandler) SetFavorite(c *gin.Context) {
	editor, ok := h.editor(c)
	if !ok {
		return
	}
	var req favoriteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(apperror.BadRequest("Body must be {\"value\": true|false}"))
		return
	}
	if err := editor.Dispatch(c.Request.Context(), usecase.SetFavorite{Value: *req.Value}); err != nil {
		c.Error(err)
		return
	}
	response.Success(c, http.StatusOK, "Favorite updated", editor.State())
}

type saveResponse struct {
	Candidate domain.Candidate `json:"candidate"`
	State     usecase.State    `json:"state"`
}

// Save godoc
// @Summary      Validate and save the draft
// @Tags         drafts
// @Produce      json
// @Param        sid  path      string  true  "Draft session ID"
// @Success      200  {object}  response.Response{data=saveResponse}
// @Failure      422  {object}  response.Response
// @Failure      503  {object}  response.Response
// @Router       /drafts/{sid}/save [post]
func (h *DraftHandler) Save(c *gin.Context) {
	editor, ok := h.editor(c)
	if !ok {
		return
	}

	result, err := editor.Save(c.Request.Context())
	if err != nil {
		c.Error(err)
		return
	}
	if !result.Saved {
		details := make(map[string]string, len(result.Invalid))
		for _, f := range result.Invalid {
			details[f.Key()] = validation.FieldMessage(string(f))
		}
		response.Unprocessable(c, details, editor.State())
		return
	}
	response.Success(c, http.StatusOK, "Candidate saved", saveResponse{Candidate: result.Candidate, State: editor.State()})
}

// Delete godoc
// @Summary      Delete the candidate being edited
// @Tags         drafts
// @Produce      json
// @Param        sid  path      string  true  "Draft session ID"
// @Success      200  {object}  response.Response{data=usecase.State}
// @Failure      409  {object}  response.Response
// @Router       /drafts/{sid}/delete [post]
func (h *DraftHandler) Delete(c *gin.Context) {
	editor, ok := h.editor(c)
	if !ok {
		return
	}
	if err := editor.Delete(c.Request.Context()); err != nil {
		c.Error(err)
		return
	}
	response.Success(c, http.StatusOK, "Candidate deleted", editor.State())
}

func (h *DraftHandler) editor(c *gin.Context) (*usecase.Editor, bool) {
	editor, err := h.drafts.Get(c.Param("sid"))
	if err != nil {
		if errors.Is(err, domain.ErrDraftNotFound) {
			c.Error(err)
			return nil, false
		}
		c.Error(apperror.Internal(err))
		return nil, false
	}
	return editor, true
}
