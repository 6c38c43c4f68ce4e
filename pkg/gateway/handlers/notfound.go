package handlers

import (
	"net/http"

	"github.com/vango-go/vai-voice/pkg/core"
)

type NotFoundHandler struct{}

func (h NotFoundHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	writeCoreErrorJSON(w, r, core.NewNotFoundError("not found"), http.StatusNotFound)
}
