package story

import (
	"net/http"

	"newsreel/internal/handler/http/middleware"
	feedUC "newsreel/internal/usecase/feed"
)

// Register registers the read-side story feed routes: the ranked feed,
// keyword search, and single-story lookup. All three are public reads
// (no auth middleware), protected only by the shared rate limiter.
func Register(mux *http.ServeMux, svc *feedUC.Service, searchRateLimiter *middleware.RateLimiter) {
	mux.Handle("GET    /stories", ListHandler{Svc: svc})
	mux.Handle("GET    /stories/search", searchRateLimiter.Middleware(SearchHandler{Svc: svc}))
	mux.Handle("GET    /stories/", GetHandler{Svc: svc})
}
