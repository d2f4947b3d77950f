package systemshandler

import (
	"net/http"

	"erpadmin/internal/domain/access"
	"erpadmin/internal/platform/requestctx"
	"erpadmin/internal/transport/http/api"
)

// Handler serves the system catalog. The list is public; consoles filter
// it against the signed-in user's permissions.
type Handler struct {
	Catalog func() []access.SystemDescriptor
}

func NewHandler(catalog func() []access.SystemDescriptor) *Handler {
	if catalog == nil {
		catalog = access.DefaultCatalog
	}
	return &Handler{Catalog: catalog}
}

func (h *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	systems := h.Catalog()
	if systems == nil {
		systems = []access.SystemDescriptor{}
	}
	api.Success(w, systems, requestctx.GetRequestID(r.Context()))
}
