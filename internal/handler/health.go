package handler

import (
	"fmt"
	"net/http"
)

// HealthHandler answers liveness probes.
// The message names the active storage backend so operators can see it at a glance.
func HealthHandler(storeDriver string) http.HandlerFunc {
	body := map[string]string{
		"status":  "OK",
		"message": fmt.Sprintf("OAuth server running (%s storage)", storeDriver),
	}
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, body)
	}
}
