package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"

	"braid-project/braid"
	"braid-project/logger"
	"braid-project/models"

	"github.com/gorilla/mux"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// Handler contains the HTTP handlers for the braid API endpoints
type Handler struct {
	Braid *braid.Braid
}

// NewHandler creates and returns a new Handler instance
func NewHandler(b *braid.Braid) *Handler {
	return &Handler{Braid: b}
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

// statusFor maps braid errors onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, braid.ErrBeadNotFound):
		return http.StatusNotFound
	case errors.Is(err, braid.ErrDuplicateBead):
		return http.StatusConflict
	case braid.IsValidationError(err):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

// fail reports err to the client. Server-side failures are logged in full and
// answered with a generic message.
func (h *Handler) fail(w http.ResponseWriter, msg string, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		logger.Logger.Error(msg, zap.Error(err))
		writeError(w, status, "Internal server error")
		return
	}
	logger.Logger.Debug(msg, zap.Error(err))
	writeError(w, status, err.Error())
}

func hashVar(w http.ResponseWriter, r *http.Request) (models.Hash, bool) {
	hash, err := models.NewHashFromString(mux.Vars(r)["hash"])
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid bead hash")
		return models.Hash{}, false
	}
	return hash, true
}

// InsertBead handles POST requests adding a bead to the braid
func (h *Handler) InsertBead(w http.ResponseWriter, r *http.Request) {
	var bead models.Bead
	if err := json.NewDecoder(r.Body).Decode(&bead); err != nil {
		logger.Logger.Debug("Failed to decode bead", zap.Error(err))
		writeError(w, http.StatusBadRequest, "Invalid request payload")
		return
	}

	if err := h.Braid.Insert(&bead); err != nil {
		h.fail(w, "Failed to insert bead", err)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]interface{}{
		"message": "Bead inserted successfully",
		"bead":    bead,
	})
}

// GetBead handles GET requests for a single bead
func (h *Handler) GetBead(w http.ResponseWriter, r *http.Request) {
	hash, ok := hashVar(w, r)
	if !ok {
		return
	}
	bead, err := h.Braid.GetBead(hash)
	if err != nil {
		h.fail(w, "Failed to get bead", err)
		return
	}
	writeJSON(w, http.StatusOK, bead)
}

// GetTips handles GET requests for the current tip set
func (h *Handler) GetTips(w http.ResponseWriter, r *http.Request) {
	tips, err := h.Braid.Tips()
	if err != nil {
		h.fail(w, "Failed to get tips", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"tips": tips})
}

// GetCohort handles GET requests for the cohort holding a bead
func (h *Handler) GetCohort(w http.ResponseWriter, r *http.Request) {
	hash, ok := hashVar(w, r)
	if !ok {
		return
	}
	height, members, err := h.Braid.Cohort(hash)
	if err != nil {
		h.fail(w, "Failed to get cohort", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"height":  height,
		"members": members,
	})
}

// relation serves one of the per-bead hash list queries.
func (h *Handler) relation(name string, query func(models.Hash) ([]models.Hash, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		hash, ok := hashVar(w, r)
		if !ok {
			return
		}
		hashes, err := query(hash)
		if err != nil {
			h.fail(w, "Failed to get "+name, err)
			return
		}
		if hashes == nil {
			hashes = []models.Hash{}
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{name: hashes})
	}
}

// GetParents handles GET requests for the declared parents of a bead
func (h *Handler) GetParents(w http.ResponseWriter, r *http.Request) {
	h.relation("parents", h.Braid.Parents)(w, r)
}

// GetChildren handles GET requests for the children of a bead
func (h *Handler) GetChildren(w http.ResponseWriter, r *http.Request) {
	h.relation("children", h.Braid.Children)(w, r)
}

// GetSiblings handles GET requests for the siblings of a bead
func (h *Handler) GetSiblings(w http.ResponseWriter, r *http.Request) {
	h.relation("siblings", h.Braid.Siblings)(w, r)
}

// GetAncestors handles GET requests for the ancestor closure of a bead
func (h *Handler) GetAncestors(w http.ResponseWriter, r *http.Request) {
	h.relation("ancestors", h.Braid.Ancestors)(w, r)
}

// GetCohorts handles GET requests listing cohorts by height range
func (h *Handler) GetCohorts(w http.ResponseWriter, r *http.Request) {
	from, err := uintParam(r, "from", 0)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid from parameter")
		return
	}
	to, err := uintParam(r, "to", from+99)
	if err != nil || to < from {
		writeError(w, http.StatusBadRequest, "Invalid to parameter")
		return
	}
	cohorts, err := h.Braid.Cohorts(from, to)
	if err != nil {
		h.fail(w, "Failed to list cohorts", err)
		return
	}
	if cohorts == nil {
		cohorts = [][]models.Hash{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"from":    from,
		"cohorts": cohorts,
	})
}

// Reindex handles POST requests rebuilding the derived index
func (h *Handler) Reindex(w http.ResponseWriter, r *http.Request) {
	if err := h.Braid.Reindex(); err != nil {
		h.fail(w, "Failed to reindex", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "Reindex complete"})
}

func uintParam(r *http.Request, name string, fallback uint64) (uint64, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return fallback, nil
	}
	return strconv.ParseUint(raw, 10, 64)
}
