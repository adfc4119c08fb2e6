package api

import (
	"fmt"
	"math"
	"net/http"
	"strconv"
	"strings"

	"github.com/azure/social-listening/internal/models"
)

// queryParam returns a query value, treating the strings a careless client
// sends for a missing value as absent.
func queryParam(r *http.Request, key string) string {
	v := strings.TrimSpace(r.URL.Query().Get(key))
	switch v {
	case "undefined", "null":
		return ""
	}
	return v
}

func intParam(r *http.Request, key string, def, min, max int) (int, error) {
	raw := queryParam(r, key)
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < min || n > max {
		return 0, fmt.Errorf("%s must be an integer between %d and %d", key, min, max)
	}
	return n, nil
}

func (s *Server) handleListMentions(w http.ResponseWriter, r *http.Request) {
	limit, err := intParam(r, "limit", models.DefaultListLimit, 1, models.MaxListLimit)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	offset, err := intParam(r, "offset", 0, 0, math.MaxInt32)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	mentions, err := s.store.ListMentions(r.Context(), models.MentionFilter{
		Query:  queryParam(r, "query"),
		Source: queryParam(r, "source"),
		Limit:  limit,
		Offset: offset,
	})
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list mentions")
		return
	}
	if mentions == nil {
		mentions = []models.Mention{}
	}
	writeJSON(w, http.StatusOK, mentions)
}

type createSourceRequest struct {
	Name string `json:"name"`
	Type string `json:"type"`
	URL  string `json:"url"`
}

func (s *Server) handleListSources(w http.ResponseWriter, r *http.Request) {
	list, err := s.store.ListSources(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list sources")
		return
	}
	if list == nil {
		list = []models.Source{}
	}
	writeJSON(w, http.StatusOK, list)
}

func (s *Server) handleCreateSource(w http.ResponseWriter, r *http.Request) {
	var payload createSourceRequest
	if !decodeBody(w, r, &payload) {
		return
	}
	payload.Name = strings.TrimSpace(payload.Name)
	payload.Type = strings.TrimSpace(payload.Type)
	if payload.Name == "" || payload.Type == "" {
		writeError(w, http.StatusBadRequest, "name and type are required")
		return
	}

	src := &models.Source{Name: payload.Name, Type: payload.Type}
	if u := strings.TrimSpace(payload.URL); u != "" {
		src.URL = &u
	}
	id, err := s.store.AddSource(r.Context(), src)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	src.ID = id
	writeJSON(w, http.StatusCreated, src)
}
