package api

import (
	"database/sql"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/erazemk/najdeno/internal/imaging"
	"github.com/erazemk/najdeno/internal/model"
	"github.com/erazemk/najdeno/internal/photos"
	"github.com/erazemk/najdeno/internal/store"
)

// Listing bounds for GET /api/items.
const (
	defaultListLimit = 100
	maxListLimit     = 500
)

// LastPurgeSetting records when concluded items were last purged.
const LastPurgeSetting = "last_purge"

// ItemsHandler handles lost and found reports.
type ItemsHandler struct {
	DB      *sql.DB
	Trigger MatchTrigger
	Photos  photos.Store
	Imaging imaging.Options
}

type concludeRequest struct {
	Story   string `json:"story"`
	MatchID string `json:"match_id"`
}

type purgeRequest struct {
	OlderThanDays int `json:"older_than_days"`
}

// validateItem normalizes the user-editable fields and returns a message
// describing the first problem, or "".
func validateItem(item *model.Item) string {
	item.Name = strings.TrimSpace(item.Name)
	item.Campus = strings.TrimSpace(item.Campus)
	item.ContactName = strings.TrimSpace(item.ContactName)

	switch {
	case !item.Kind.Valid():
		return "kind must be \"lost\" or \"found\""
	case item.Name == "":
		return "item_name required"
	case !model.ValidCategory(item.Category):
		return "invalid category"
	case item.Campus == "":
		return "campus required"
	case item.OccurredAt.IsZero():
		return "date_lost or date_found required"
	case item.ContactName == "":
		return "contact_name required"
	case item.ContactEmail != "" && !strings.Contains(item.ContactEmail, "@"):
		return "invalid contact_email"
	}
	return ""
}

// loadEditable loads the item in the path and checks that the caller reported
// it or is staff. It writes the error response and returns nil on failure.
func (h *ItemsHandler) loadEditable(w http.ResponseWriter, r *http.Request) *model.Item {
	item, err := store.GetItem(r.Context(), h.DB, r.PathValue("id"))
	if err != nil {
		zap.L().Error("failed to get item", zap.Error(err))
		jsonError(w, http.StatusInternalServerError, "failed to get item")
		return nil
	}
	if item == nil {
		jsonError(w, http.StatusNotFound, "item not found")
		return nil
	}

	claims := GetClaims(r.Context())
	if !isStaff(claims) && !item.OwnedBy(claims.UserID) {
		jsonError(w, http.StatusForbidden, "insufficient permissions")
		return nil
	}
	return item
}

// List handles GET /api/items.
func (h *ItemsHandler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := model.ItemFilter{
		Search:   q.Get("q"),
		Campus:   q.Get("campus"),
		Category: q.Get("category"),
		Status:   q.Get("status"),
	}

	if kind := q.Get("kind"); kind != "" {
		k, err := model.ParseItemKind(kind)
		if err != nil {
			jsonError(w, http.StatusBadRequest, err.Error())
			return
		}
		f.Kind = k
	}

	var ok bool
	if f.From, ok = queryDate(r, "from", false); !ok {
		jsonError(w, http.StatusBadRequest, "invalid from date")
		return
	}
	if f.To, ok = queryDate(r, "to", true); !ok {
		jsonError(w, http.StatusBadRequest, "invalid to date")
		return
	}
	if f.Limit, ok = queryInt(r, "limit"); !ok {
		jsonError(w, http.StatusBadRequest, "invalid limit")
		return
	}
	if f.Limit == 0 {
		f.Limit = defaultListLimit
	}
	f.Limit = min(f.Limit, maxListLimit)

	items, err := store.ListItems(r.Context(), h.DB, f)
	if err != nil {
		zap.L().Error("failed to list items", zap.Error(err))
		jsonError(w, http.StatusInternalServerError, "failed to list items")
		return
	}
	if items == nil {
		items = []model.Item{}
	}
	jsonResponse(w, http.StatusOK, items)
}

// Create handles POST /api/items. Matching starts in the background once the
// report is stored; its outcome never affects the response.
func (h *ItemsHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req model.Item
	if err := decodeJSON(r, &req); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if msg := validateItem(&req); msg != "" {
		jsonError(w, http.StatusBadRequest, msg)
		return
	}

	claims := GetClaims(r.Context())
	req.OwnerID = &claims.UserID

	item, err := store.CreateItem(r.Context(), h.DB, &req)
	if err != nil {
		zap.L().Error("failed to create item", zap.Error(err))
		jsonError(w, http.StatusInternalServerError, "failed to create item")
		return
	}

	zap.L().Info("item reported",
		zap.String("user", claims.Username),
		zap.String("item_id", item.ID),
		zap.String("kind", string(item.Kind)),
		zap.String("campus", item.Campus),
	)

	if h.Trigger != nil {
		h.Trigger.Fire(item.Kind, item.ID)
	}

	jsonResponse(w, http.StatusCreated, item)
}

// Get handles GET /api/items/{id}.
func (h *ItemsHandler) Get(w http.ResponseWriter, r *http.Request) {
	item, err := store.GetItem(r.Context(), h.DB, r.PathValue("id"))
	if err != nil {
		zap.L().Error("failed to get item", zap.Error(err))
		jsonError(w, http.StatusInternalServerError, "failed to get item")
		return
	}
	if item == nil {
		jsonError(w, http.StatusNotFound, "item not found")
		return
	}
	jsonResponse(w, http.StatusOK, item)
}

// Update handles PUT /api/items/{id}. A changed report is matched again.
func (h *ItemsHandler) Update(w http.ResponseWriter, r *http.Request) {
	existing := h.loadEditable(w, r)
	if existing == nil {
		return
	}

	var req model.Item
	if err := decodeJSON(r, &req); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	req.ID = existing.ID
	req.Kind = existing.Kind

	if msg := validateItem(&req); msg != "" {
		jsonError(w, http.StatusBadRequest, msg)
		return
	}
	if existing.Status == model.ItemStatusConcluded {
		jsonError(w, http.StatusConflict, "item already concluded")
		return
	}

	err := store.UpdateItem(r.Context(), h.DB, &req)
	if errors.Is(err, store.ErrNotFound) {
		jsonError(w, http.StatusNotFound, "item not found")
		return
	}
	if err != nil {
		zap.L().Error("failed to update item", zap.Error(err))
		jsonError(w, http.StatusInternalServerError, "failed to update item")
		return
	}

	if h.Trigger != nil {
		h.Trigger.Fire(existing.Kind, existing.ID)
	}

	item, err := store.GetItem(r.Context(), h.DB, existing.ID)
	if err != nil {
		zap.L().Error("failed to reload item", zap.String("item_id", existing.ID), zap.Error(err))
		jsonError(w, http.StatusInternalServerError, "failed to get item")
		return
	}
	if item == nil {
		jsonError(w, http.StatusNotFound, "item not found")
		return
	}
	jsonResponse(w, http.StatusOK, item)
}

// Conclude handles POST /api/items/{id}/conclude. The body is optional.
func (h *ItemsHandler) Conclude(w http.ResponseWriter, r *http.Request) {
	item := h.loadEditable(w, r)
	if item == nil {
		return
	}

	var req concludeRequest
	if err := decodeJSON(r, &req); err != nil && !errors.Is(err, io.EOF) {
		jsonError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if req.MatchID != "" {
		m, err := store.GetMatch(r.Context(), h.DB, req.MatchID)
		if err != nil {
			zap.L().Error("failed to get match", zap.Error(err))
			jsonError(w, http.StatusInternalServerError, "failed to get match")
			return
		}
		if m == nil || (m.LostItemID != item.ID && m.FoundItemID != item.ID) {
			jsonError(w, http.StatusBadRequest, "match does not involve this item")
			return
		}
	}

	returned, err := store.ConcludeItem(r.Context(), h.DB, item.ID, req.MatchID, strings.TrimSpace(req.Story))
	switch {
	case errors.Is(err, store.ErrNotFound):
		jsonError(w, http.StatusNotFound, "item not found")
		return
	case errors.Is(err, store.ErrItemConcluded):
		jsonError(w, http.StatusConflict, "item already concluded")
		return
	case err != nil:
		zap.L().Error("failed to conclude item", zap.Error(err))
		jsonError(w, http.StatusInternalServerError, "failed to conclude item")
		return
	}

	claims := GetClaims(r.Context())
	zap.L().Info("item concluded", zap.String("user", claims.Username), zap.String("item_id", item.ID))

	updated, _ := store.GetItem(r.Context(), h.DB, item.ID)
	jsonResponse(w, http.StatusOK, map[string]any{
		"item":     updated,
		"returned": returned,
	})
}

// UploadImage handles PUT /api/items/{id}/image.
func (h *ItemsHandler) UploadImage(w http.ResponseWriter, r *http.Request) {
	item := h.loadEditable(w, r)
	if item == nil {
		return
	}

	limit := h.Imaging.MaxBytes
	if limit <= 0 {
		limit = imaging.DefaultMaxBytes
	}
	// Leave room for the multipart envelope.
	r.Body = http.MaxBytesReader(w, r.Body, limit+1<<20)

	if err := r.ParseMultipartForm(limit); err != nil {
		jsonError(w, http.StatusBadRequest, "file too large or invalid multipart form")
		return
	}

	file, _, err := r.FormFile("image")
	if err != nil {
		jsonError(w, http.StatusBadRequest, "image file required")
		return
	}
	defer file.Close()

	photo, err := imaging.Process(file, h.Imaging)
	if errors.Is(err, imaging.ErrTooLarge) {
		jsonError(w, http.StatusRequestEntityTooLarge, "image too large")
		return
	}
	if err != nil {
		jsonError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.Photos.Save(r.Context(), item.ID, photo); err != nil {
		zap.L().Error("failed to save image", zap.String("item_id", item.ID), zap.Error(err))
		jsonError(w, http.StatusInternalServerError, "failed to save image")
		return
	}

	jsonResponse(w, http.StatusOK, map[string]any{
		"message": "image uploaded",
		"width":   photo.Width,
		"height":  photo.Height,
	})
}

// GetImage handles GET /api/items/{id}/image. Photos in object storage are
// served by redirecting to a short-lived link.
func (h *ItemsHandler) GetImage(w http.ResponseWriter, r *http.Request) {
	thumb := r.URL.Query().Get("size") == "thumb"

	img, err := h.Photos.Load(r.Context(), r.PathValue("id"), thumb)
	if err != nil {
		zap.L().Error("failed to get image", zap.Error(err))
		jsonError(w, http.StatusInternalServerError, "failed to get image")
		return
	}
	if img == nil {
		jsonError(w, http.StatusNotFound, "no image")
		return
	}

	if img.URL != "" {
		http.Redirect(w, r, img.URL, http.StatusTemporaryRedirect)
		return
	}

	w.Header().Set("Content-Type", img.MIME)
	w.Header().Set("Cache-Control", "public, max-age=3600")
	w.Write(img.Data)
}

// Purge handles POST /api/items/purge.
func (h *ItemsHandler) Purge(w http.ResponseWriter, r *http.Request) {
	var req purgeRequest
	if err := decodeJSON(r, &req); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.OlderThanDays < 0 {
		jsonError(w, http.StatusBadRequest, "older_than_days must not be negative")
		return
	}

	now := time.Now().UTC()
	purged, err := store.PurgeConcludedItems(r.Context(), h.DB, now.AddDate(0, 0, -req.OlderThanDays))
	if err != nil {
		zap.L().Error("failed to purge items", zap.Error(err))
		jsonError(w, http.StatusInternalServerError, "failed to purge items")
		return
	}
	if err := store.SetSetting(r.Context(), h.DB, LastPurgeSetting, now.Format(time.RFC3339)); err != nil {
		zap.L().Warn("recording purge time", zap.Error(err))
	}

	claims := GetClaims(r.Context())
	zap.L().Info("concluded items purged", zap.String("user", claims.Username), zap.Int("count", len(purged)))
	jsonResponse(w, http.StatusOK, map[string]int{"purged": len(purged)})
}
