package middleware

import (
	"fmt"
	"net/http"

	"github.com/omni/bridge-orchestrator/logging"
	"github.com/omni/bridge-orchestrator/presenter/http/render"
)

func Recoverer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if err := recover(); err != nil {
				if err == http.ErrAbortHandler {
					panic(err)
				}
				logger := logging.LoggerFromContext(r.Context())
				if err2, ok := err.(error); ok {
					logger = logger.WithError(err2)
				} else {
					logger = logger.WithField("recovered", err)
				}
				logger.Error("recovered error from the http handler")
				render.JSON(w, r, http.StatusInternalServerError, &render.ErrorResponse{
					Error: fmt.Sprintf("internal error: %v", err),
					Kind:  "internal",
				})
			}
		}()
		next.ServeHTTP(w, r)
	})
}
