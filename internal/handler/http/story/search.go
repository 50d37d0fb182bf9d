package story

import (
	"errors"
	"net/http"
	"strconv"

	"newsreel/internal/handler/http/respond"
	feedUC "newsreel/internal/usecase/feed"
)

type SearchHandler struct{ Svc *feedUC.Service }

// ServeHTTP searches stories by keyword.
// @Summary      story search
// @Description  Case-insensitive substring search over story titles and summaries.
// @Tags         stories
// @Produce      json
// @Param        q     query string true  "search keyword"
// @Param        limit query int    false "max stories returned" default(50) maximum(100)
// @Success      200 {array} DTO
// @Failure      400 {string} string "Bad request - missing keyword or invalid limit"
// @Failure      500 {string} string "Server error"
// @Router       /stories/search [get]
func (h SearchHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query().Get("q")
	if q == "" {
		respond.SafeError(w, http.StatusBadRequest, errors.New("q query param required"))
		return
	}

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

	stories, err := h.Svc.Search(r.Context(), q, limit)
	if err != nil {
		code := http.StatusInternalServerError
		if errors.Is(err, feedUC.ErrEmptyQuery) {
			code = http.StatusBadRequest
		}
		respond.SafeError(w, code, err)
		return
	}

	respond.JSON(w, http.StatusOK, fromEntities(stories))
}
