package audit

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/noah-isme/backend-pdv/internal/branch"
	"github.com/noah-isme/backend-pdv/internal/common"
	"github.com/noah-isme/backend-pdv/internal/obs"
)

// HTTPRecorder audits requests after they have been handled.
type HTTPRecorder struct {
	Service *Service
	OnError func(error)
}

// HTTPConfig describes the audited route.
type HTTPConfig struct {
	Action          string
	Resource        string
	ResourceIDParam string
	MetadataFunc    func(*http.Request, int) map[string]any
}

// Middleware records one entry per request, rejected ones included.
func (r HTTPRecorder) Middleware(cfg HTTPConfig) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			if r.Service == nil || !r.Service.Enabled {
				next.ServeHTTP(w, req)
				return
			}
			recorder := obs.NewStatusRecorder(w)
			next.ServeHTTP(recorder, req)

			e := Entry{
				Action:    cfg.Action,
				Resource:  cfg.Resource,
				Method:    req.Method,
				Route:     obs.Route(req),
				Status:    recorder.Status(),
				IP:        common.ClientIP(req),
				RequestID: middleware.GetReqID(req.Context()),
			}
			if p, ok := common.PrincipalFrom(req.Context()); ok {
				e.ActorID = p.UserID
				e.ActorRole = string(p.Role)
			}
			if id, ok := branch.FromContext(req.Context()); ok {
				e.BranchID = id
			}
			if cfg.ResourceIDParam != "" {
				e.ResourceID = chi.URLParam(req, cfg.ResourceIDParam)
			}
			if cfg.MetadataFunc != nil {
				if payload := cfg.MetadataFunc(req, e.Status); payload != nil {
					if data, err := json.Marshal(payload); err == nil {
						e.Metadata = data
					}
				}
			}
			if err := r.Service.Record(req.Context(), e); err != nil && r.OnError != nil {
				r.OnError(err)
			}
		})
	}
}
