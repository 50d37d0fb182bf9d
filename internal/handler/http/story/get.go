package story

import (
	"errors"
	"net/http"
	"strings"

	"newsreel/internal/handler/http/respond"
	feedUC "newsreel/internal/usecase/feed"
)

type GetHandler struct{ Svc *feedUC.Service }

// ServeHTTP returns a single story by category and id.
// @Summary      story detail
// @Description  Returns one story cluster by category and id.
// @Tags         stories
// @Produce      json
// @Param        category path string true "topic-group category"
// @Param        id       path string true "story id"
// @Success      200 {object} DTO
// @Failure      400 {string} string "Bad request - invalid story id"
// @Failure      404 {string} string "Not found - story not found"
// @Failure      500 {string} string "Server error"
// @Router       /stories/{category}/{id} [get]
func (h GetHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	category, id, err := splitCategoryID(r.URL.Path)
	if err != nil {
		respond.SafeError(w, http.StatusBadRequest, err)
		return
	}

	result, err := h.Svc.Get(r.Context(), category, id)
	if err != nil {
		code := http.StatusInternalServerError
		if errors.Is(err, feedUC.ErrInvalidStoryID) {
			code = http.StatusBadRequest
		} else if errors.Is(err, feedUC.ErrStoryNotFound) {
			code = http.StatusNotFound
		}
		respond.SafeError(w, code, err)
		return
	}

	respond.JSON(w, http.StatusOK, fromEntity(*result))
}

// splitCategoryID parses "/stories/{category}/{id}" into its two segments.
func splitCategoryID(path string) (category, id string, err error) {
	trimmed := strings.TrimPrefix(path, "/stories/")
	parts := strings.SplitN(trimmed, "/", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" || strings.Contains(parts[1], "/") {
		return "", "", errInvalidStoryPath
	}
	return parts[0], parts[1], nil
}
