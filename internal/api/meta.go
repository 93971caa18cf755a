package api

import (
	"database/sql"
	"net/http"

	"go.uber.org/zap"

	"github.com/erazemk/najdeno/internal/model"
	"github.com/erazemk/najdeno/internal/store"
)

// MetaHandler serves public reference data.
type MetaHandler struct {
	DB *sql.DB
}

// Meta handles GET /api/meta.
func (h *MetaHandler) Meta(w http.ResponseWriter, r *http.Request) {
	jsonResponse(w, http.StatusOK, map[string][]string{
		"categories": model.Categories,
		"campuses":   model.Campuses,
	})
}

// Returned handles GET /api/returned.
func (h *MetaHandler) Returned(w http.ResponseWriter, r *http.Request) {
	var f store.ReturnedFilter
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

	items, err := store.ListReturnedItems(r.Context(), h.DB, f)
	if err != nil {
		zap.L().Error("failed to list returned items", zap.Error(err))
		jsonError(w, http.StatusInternalServerError, "failed to list returned items")
		return
	}
	if items == nil {
		items = []model.ReturnedItem{}
	}
	jsonResponse(w, http.StatusOK, items)
}
