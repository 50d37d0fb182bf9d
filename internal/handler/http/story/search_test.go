package story_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"newsreel/internal/handler/http/story"
)

func TestSearchHandler_MatchesKeyword(t *testing.T) {
	h := story.SearchHandler{Svc: newService(t)}

	req := httptest.NewRequest(http.MethodGet, "/stories/search?q=championship", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var got []story.DTO
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	require.Len(t, got, 1)
	require.Equal(t, "sports-1", got[0].ID)
}

func TestSearchHandler_MissingKeyword(t *testing.T) {
	h := story.SearchHandler{Svc: newService(t)}

	req := httptest.NewRequest(http.MethodGet, "/stories/search", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
}
