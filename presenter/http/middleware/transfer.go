package middleware

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/omni/bridge-orchestrator/apperr"
	"github.com/omni/bridge-orchestrator/entity"
	"github.com/omni/bridge-orchestrator/presenter/http/render"
)

type ctxKey int

const (
	transferIDCtxKey ctxKey = iota
	statusFilterCtxKey
)

func GetTransferIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw := chi.URLParam(r, "transferID")
		id, err := uuid.Parse(raw)
		if err != nil {
			render.Error(w, r, fmt.Errorf("invalid transfer id %q: %w", raw, apperr.ErrValidation))
			return
		}
		ctx := context.WithValue(r.Context(), transferIDCtxKey, id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func TransferID(ctx context.Context) uuid.UUID {
	if id, ok := ctx.Value(transferIDCtxKey).(uuid.UUID); ok {
		return id
	}
	return uuid.Nil
}

// GetStatusFilterMiddleware accepts both ?status=a,b and ?status=a&status=b.
func GetStatusFilterMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var statuses []entity.TransferStatus
		for _, value := range r.URL.Query()["status"] {
			for _, part := range strings.Split(value, ",") {
				part = strings.TrimSpace(part)
				if part == "" {
					continue
				}
				status := entity.TransferStatus(part)
				if !status.IsValid() {
					render.Error(w, r, fmt.Errorf("unknown status %q: %w", part, apperr.ErrValidation))
					return
				}
				statuses = append(statuses, status)
			}
		}
		ctx := context.WithValue(r.Context(), statusFilterCtxKey, statuses)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func StatusFilter(ctx context.Context) []entity.TransferStatus {
	if statuses, ok := ctx.Value(statusFilterCtxKey).([]entity.TransferStatus); ok {
		return statuses
	}
	return nil
}
