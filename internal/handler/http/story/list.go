package story

import (
	"errors"
	"net/http"
	"strconv"

	"newsreel/internal/handler/http/respond"
	feedUC "newsreel/internal/usecase/feed"
)

const maxListLimit = 100

type ListHandler struct{ Svc *feedUC.Service }

// ServeHTTP returns the ranked story feed for a category.
// @Summary      ranked story feed
// @Description  Returns stories in a category ordered by importance score, most important first.
// @Tags         stories
// @Produce      json
// @Param        category query string false "topic-group category filter; omitted scans every category"
// @Param        limit    query int    false "max stories returned" default(50) maximum(100)
// @Success      200 {array} DTO
// @Failure      400 {string} string "Bad request - invalid limit or unknown category"
// @Failure      500 {string} string "Server error"
// @Router       /stories [get]
func (h ListHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	category := r.URL.Query().Get("category")

	limit := feedUC.DefaultFeedLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			respond.SafeError(w, http.StatusBadRequest, errInvalidLimit)
			return
		}
		if parsed > maxListLimit {
			parsed = maxListLimit
		}
		limit = parsed
	}

	stories, err := h.Svc.List(r.Context(), category, limit)
	if err != nil {
		code := http.StatusInternalServerError
		if errors.Is(err, feedUC.ErrUnknownCategory) {
			code = http.StatusBadRequest
		}
		respond.SafeError(w, code, err)
		return
	}

	respond.JSON(w, http.StatusOK, fromEntities(stories))
}
