package routes

import (
	"github.com/gorilla/mux"

	"ringnode/internal/statusapi/controllers"
	"ringnode/internal/statusapi/middleware"
)

// Register wires the status API's read-only debug endpoints onto r.
func Register(r *mux.Router, sc *controllers.StatusController) {
	r.Use(middleware.Logger)
	r.HandleFunc("/api/status/health", sc.Health).Methods("GET")
	r.HandleFunc("/api/status/contribution", sc.Contribution).Methods("GET")
	r.HandleFunc("/api/status/topology", sc.Topology).Methods("GET")
}
