package handler

import (
	"net/http"
	"sync"

	"github.com/goccy/go-json"

	"github.com/cathouse/taskmanager/internal/command"
	"github.com/cathouse/taskmanager/internal/openapi"
)

// OpenAPIHandler serves the OpenAPI document. The registry is immutable,
// so the document is rendered once.
type OpenAPIHandler struct {
	version  string
	registry *command.Registry

	once sync.Once
	body []byte
	err  error
}

// NewOpenAPIHandler creates a new OpenAPIHandler.
func NewOpenAPIHandler(version string, registry *command.Registry) *OpenAPIHandler {
	return &OpenAPIHandler{version: version, registry: registry}
}

// ServeSpec writes the OpenAPI document.
// GET /openapi.json
func (h *OpenAPIHandler) ServeSpec(w http.ResponseWriter, r *http.Request) {
	h.once.Do(func() {
		doc := openapi.Generate(h.version, "", h.registry.Actions())
		h.body, h.err = json.Marshal(doc)
	})
	if h.err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to render OpenAPI document")
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write(h.body)
}
