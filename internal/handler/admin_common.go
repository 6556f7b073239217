package handler

import "github.com/iliyamo/haunted-house-queue/internal/allocation"

// AdminHandler exposes house, queue and reservation management.
type AdminHandler struct {
    Engine *allocation.Engine
}

// NewAdminHandler panics on a nil engine.
func NewAdminHandler(engine *allocation.Engine) *AdminHandler {
    if engine == nil {
        panic("nil engine passed to NewAdminHandler")
    }
    return &AdminHandler{Engine: engine}
}
