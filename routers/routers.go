package routers

import (
	"braid-project/handlers"

	"github.com/gorilla/mux"
)

// RegisterRoutes sets up all the HTTP routes for the braid
func RegisterRoutes(r *mux.Router, h *handlers.Handler) {

	// Adds a bead referencing existing beads as parents
	r.HandleFunc("/beads", h.InsertBead).Methods("POST")

	// Point lookup of a bead
	r.HandleFunc("/beads/{hash}", h.GetBead).Methods("GET")

	// Derived relations of a bead
	r.HandleFunc("/beads/{hash}/parents", h.GetParents).Methods("GET")
	r.HandleFunc("/beads/{hash}/children", h.GetChildren).Methods("GET")
	r.HandleFunc("/beads/{hash}/siblings", h.GetSiblings).Methods("GET")
	r.HandleFunc("/beads/{hash}/ancestors", h.GetAncestors).Methods("GET")
	r.HandleFunc("/beads/{hash}/cohort", h.GetCohort).Methods("GET")

	// Attachment points for new beads
	r.HandleFunc("/tips", h.GetTips).Methods("GET")

	// Cohorts by height, e.g. /cohorts?from=10&to=20
	r.HandleFunc("/cohorts", h.GetCohorts).Methods("GET")

	// Rebuilds children, siblings and cohorts from the parent relation
	r.HandleFunc("/reindex", h.Reindex).Methods("POST")
}
