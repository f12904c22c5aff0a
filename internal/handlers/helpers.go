package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/gluk-w/shellbridge/internal/bridge"
	"github.com/gluk-w/shellbridge/internal/registry"
	"github.com/gluk-w/shellbridge/internal/resolver"
)

// Set from main.go during init.
var (
	Resolver resolver.Resolver
	Bridge   *bridge.Bridge
	Sessions *registry.Registry
)

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, map[string]string{"detail": detail})
}
