package api

import (
	"context"
	"database/sql"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/erazemk/najdeno/internal/auth"
	"github.com/erazemk/najdeno/internal/classifier"
	"github.com/erazemk/najdeno/internal/matching"
	"github.com/erazemk/najdeno/internal/model"
	"github.com/erazemk/najdeno/internal/store"
)

// MatchHandler exposes the matching workflow, the classifier and match decisions.
type MatchHandler struct {
	DB         *sql.DB
	Trigger    MatchTrigger
	Classifier classifier.Classifier
}

type matchRequest struct {
	ItemType string `json:"itemType"`
	ItemID   string `json:"itemId"`
}

type matchResponse struct {
	Success      bool `json:"success"`
	MatchesFound int  `json:"matchesFound"`
	Partial      bool `json:"partial,omitempty"`
}

type classifyRequest struct {
	LostItem  *model.Item `json:"lostItem"`
	FoundItem *model.Item `json:"foundItem"`
}

// Match handles POST /api/match: a synchronous scan for one item.
func (h *MatchHandler) Match(w http.ResponseWriter, r *http.Request) {
	var req matchRequest
	if err := decodeJSON(r, &req); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.ItemType == "" || req.ItemID == "" {
		jsonError(w, http.StatusBadRequest, "itemType and itemId are required")
		return
	}

	res, err := h.Trigger.Run(r.Context(), model.ItemKind(req.ItemType), req.ItemID)
	switch {
	case errors.Is(err, matching.ErrInvalidInput):
		jsonError(w, http.StatusBadRequest, err.Error())
		return
	case errors.Is(err, matching.ErrItemNotFound):
		jsonError(w, http.StatusNotFound, "item not found")
		return
	case errors.Is(err, context.DeadlineExceeded) && res != nil:
		zap.L().Warn("matching deadline reached", zap.String("item_id", req.ItemID), zap.Int("matches_found", res.MatchesFound))
		jsonResponse(w, http.StatusOK, matchResponse{Success: true, MatchesFound: res.MatchesFound, Partial: true})
		return
	case errors.Is(err, context.Canceled) && r.Context().Err() != nil:
		// Client went away; the run continues without it.
		return
	case err != nil:
		zap.L().Error("matching failed", zap.String("item_id", req.ItemID), zap.Error(err))
		jsonError(w, http.StatusInternalServerError, "matching failed")
		return
	}

	jsonResponse(w, http.StatusOK, matchResponse{Success: true, MatchesFound: res.MatchesFound})
}

// Classify handles POST /api/classify.
func (h *MatchHandler) Classify(w http.ResponseWriter, r *http.Request) {
	var req classifyRequest
	if err := decodeJSON(r, &req); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.LostItem == nil || req.FoundItem == nil {
		jsonError(w, http.StatusBadRequest, "lostItem and foundItem are required")
		return
	}

	verdict, err := h.Classifier.Classify(r.Context(), req.LostItem, req.FoundItem)
	if errors.Is(err, classifier.ErrUnavailable) {
		zap.L().Warn("classifier unavailable", zap.Error(err))
		jsonError(w, http.StatusServiceUnavailable, "classifier unavailable")
		return
	}
	if err != nil {
		zap.L().Error("classification failed", zap.Error(err))
		jsonError(w, http.StatusInternalServerError, "classification failed")
		return
	}
	jsonResponse(w, http.StatusOK, verdict)
}

// participant reports whether the user reported either item of the match.
func (h *MatchHandler) participant(ctx context.Context, m *model.Match, userID int64) (bool, error) {
	for _, id := range []string{m.LostItemID, m.FoundItemID} {
		item, err := store.GetItem(ctx, h.DB, id)
		if err != nil {
			return false, err
		}
		if item != nil && item.OwnedBy(userID) {
			return true, nil
		}
	}
	return false, nil
}

// loadVisible loads the match in the path if the caller may see it. Matches
// the caller is not part of are reported as missing.
func (h *MatchHandler) loadVisible(w http.ResponseWriter, r *http.Request, claims *auth.Claims) *model.Match {
	m, err := store.GetMatch(r.Context(), h.DB, r.PathValue("id"))
	if err != nil {
		zap.L().Error("failed to get match", zap.Error(err))
		jsonError(w, http.StatusInternalServerError, "failed to get match")
		return nil
	}
	if m == nil {
		jsonError(w, http.StatusNotFound, "match not found")
		return nil
	}
	if isStaff(claims) {
		return m
	}

	ok, err := h.participant(r.Context(), m, claims.UserID)
	if err != nil {
		zap.L().Error("failed to check match participant", zap.Error(err))
		jsonError(w, http.StatusInternalServerError, "failed to get match")
		return nil
	}
	if !ok {
		jsonError(w, http.StatusNotFound, "match not found")
		return nil
	}
	return m
}

// List handles GET /api/matches. Staff see every match, others their own.
func (h *MatchHandler) List(w http.ResponseWriter, r *http.Request) {
	claims := GetClaims(r.Context())
	f := store.MatchFilter{Status: r.URL.Query().Get("status")}
	if !isStaff(claims) {
		f.UserID = claims.UserID
	}

	var ok bool
	if f.Limit, ok = queryInt(r, "limit"); !ok {
		jsonError(w, http.StatusBadRequest, "invalid limit")
		return
	}

	h.writeMatches(w, r, f)
}

// ItemMatches handles GET /api/items/{id}/matches.
func (h *MatchHandler) ItemMatches(w http.ResponseWriter, r *http.Request) {
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

	claims := GetClaims(r.Context())
	if !isStaff(claims) && !item.OwnedBy(claims.UserID) {
		jsonError(w, http.StatusForbidden, "insufficient permissions")
		return
	}

	h.writeMatches(w, r, store.MatchFilter{ItemID: item.ID})
}

func (h *MatchHandler) writeMatches(w http.ResponseWriter, r *http.Request, f store.MatchFilter) {
	matches, err := store.ListMatches(r.Context(), h.DB, f)
	if err != nil {
		zap.L().Error("failed to list matches", zap.Error(err))
		jsonError(w, http.StatusInternalServerError, "failed to list matches")
		return
	}
	if matches == nil {
		matches = []model.Match{}
	}
	jsonResponse(w, http.StatusOK, matches)
}

// Get handles GET /api/matches/{id}.
func (h *MatchHandler) Get(w http.ResponseWriter, r *http.Request) {
	m := h.loadVisible(w, r, GetClaims(r.Context()))
	if m == nil {
		return
	}
	jsonResponse(w, http.StatusOK, m)
}

// Confirm handles POST /api/matches/{id}/confirm.
func (h *MatchHandler) Confirm(w http.ResponseWriter, r *http.Request) {
	h.decide(w, r, model.MatchStatusConfirmed)
}

// Reject handles POST /api/matches/{id}/reject.
func (h *MatchHandler) Reject(w http.ResponseWriter, r *http.Request) {
	h.decide(w, r, model.MatchStatusRejected)
}

func (h *MatchHandler) decide(w http.ResponseWriter, r *http.Request, status string) {
	claims := GetClaims(r.Context())
	m := h.loadVisible(w, r, claims)
	if m == nil {
		return
	}

	decided, err := store.DecideMatch(r.Context(), h.DB, m.ID, status, claims.UserID)
	switch {
	case errors.Is(err, store.ErrNotFound):
		jsonError(w, http.StatusNotFound, "match not found")
		return
	case errors.Is(err, store.ErrMatchDecided):
		jsonError(w, http.StatusConflict, "match already "+decided.Status)
		return
	case err != nil:
		zap.L().Error("failed to decide match", zap.Error(err))
		jsonError(w, http.StatusInternalServerError, "failed to update match")
		return
	}

	zap.L().Info("match decided", zap.String("user", claims.Username), zap.String("match_id", m.ID), zap.String("status", status))
	jsonResponse(w, http.StatusOK, decided)
}
