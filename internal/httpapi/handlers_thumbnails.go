package httpapi

import (
	"errors"
	"net/http"
	"time"

	"thumbforge/internal/domain"
)

type thumbnailResponse struct {
	ID        string    `json:"_id"`
	User      string    `json:"user"`
	VideoName string    `json:"videoName"`
	Version   string    `json:"version"`
	Image     string    `json:"image"`
	Paid      bool      `json:"paid"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

func toThumbnailResponse(t domain.Thumbnail) thumbnailResponse {
	return thumbnailResponse{
		ID:        t.ID,
		User:      t.UserID,
		VideoName: t.VideoName,
		Version:   t.Version,
		Image:     t.Image,
		Paid:      t.Paid,
		CreatedAt: t.CreatedAt,
		UpdatedAt: t.UpdatedAt,
	}
}

func (a *api) handleThumbnailsCreate(w http.ResponseWriter, r *http.Request) {
	userID, _ := CurrentUserID(r.Context())

	r.Body = http.MaxBytesReader(w, r.Body, a.maxUploadBytes)
	form, err := r.MultipartReader()
	if err != nil {
		WriteError(w, http.StatusBadRequest, "validation_error", "Image file is required")
		return
	}

	t, err := a.thumbSvc.Create(r.Context(), userID, form)
	if err != nil {
		a.fail(w, r, err)
		return
	}

	WriteJSON(w, http.StatusCreated, toThumbnailResponse(t))
}

func (a *api) handleThumbnailsList(w http.ResponseWriter, r *http.Request) {
	userID, _ := CurrentUserID(r.Context())

	items, err := a.thumbSvc.List(r.Context(), userID)
	if err != nil {
		a.fail(w, r, err)
		return
	}

	out := make([]thumbnailResponse, 0, len(items))
	for _, t := range items {
		out = append(out, toThumbnailResponse(t))
	}
	WriteJSON(w, http.StatusOK, out)
}

func (a *api) handleThumbnailsGet(w http.ResponseWriter, r *http.Request) {
	userID, _ := CurrentUserID(r.Context())

	t, err := a.thumbSvc.Get(r.Context(), userID, r.PathValue("id"))
	if err != nil {
		a.failThumbnail(w, r, err)
		return
	}

	WriteJSON(w, http.StatusOK, toThumbnailResponse(t))
}

// updateThumbnailRequest lists the editable fields. Anything else in the body,
// including image, is ignored.
type updateThumbnailRequest struct {
	VideoName *string `json:"videoName"`
	Version   *string `json:"version"`
	Paid      *bool   `json:"paid"`
}

func (a *api) handleThumbnailsUpdate(w http.ResponseWriter, r *http.Request) {
	userID, _ := CurrentUserID(r.Context())

	var req updateThumbnailRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeBadJSON(w)
		return
	}

	t, err := a.thumbSvc.Update(r.Context(), userID, r.PathValue("id"), domain.ThumbnailPatch{
		VideoName: req.VideoName,
		Version:   req.Version,
		Paid:      req.Paid,
	})
	if err != nil {
		a.failThumbnail(w, r, err)
		return
	}

	WriteJSON(w, http.StatusOK, toThumbnailResponse(t))
}

func (a *api) handleThumbnailsDelete(w http.ResponseWriter, r *http.Request) {
	userID, _ := CurrentUserID(r.Context())

	if err := a.thumbSvc.Delete(r.Context(), userID, r.PathValue("id")); err != nil {
		a.failThumbnail(w, r, err)
		return
	}

	WriteMessage(w, http.StatusOK, "Thumbnail deleted successfully")
}

type deleteManyRequest struct {
	IDs []string `json:"ids"`
}

type deleteManyResponse struct {
	Message      string `json:"message"`
	DeletedCount int    `json:"deletedCount"`
}

// handleThumbnailsDeleteMany deletes the listed ids, or every thumbnail of the
// caller when the body is empty or has no ids.
func (a *api) handleThumbnailsDeleteMany(w http.ResponseWriter, r *http.Request) {
	userID, _ := CurrentUserID(r.Context())

	var req deleteManyRequest
	if _, err := decodeJSONAllowEmpty(w, r, &req); err != nil {
		WriteError(w, http.StatusBadRequest, "validation_error", "ids must be an array of strings")
		return
	}

	n, err := a.thumbSvc.DeleteMany(r.Context(), userID, req.IDs)
	if err != nil {
		a.fail(w, r, err)
		return
	}

	WriteJSON(w, http.StatusOK, deleteManyResponse{
		Message:      "Thumbnails deleted successfully",
		DeletedCount: n,
	})
}

func (a *api) failThumbnail(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, domain.ErrNotFound) {
		WriteError(w, http.StatusNotFound, "not_found", "Thumbnail not found")
		return
	}
	a.fail(w, r, err)
}
