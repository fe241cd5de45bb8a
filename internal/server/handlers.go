package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/jfmyers9/nada/internal/catalog"
	"github.com/jfmyers9/nada/internal/history"
	"github.com/jfmyers9/nada/internal/media"
	"github.com/jfmyers9/nada/internal/prefs"
	"github.com/jfmyers9/nada/internal/storefront"
)

const defaultHistoryLimit = 20

func renderJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func renderJSONMessage(w http.ResponseWriter, status int, message string) {
	renderJSON(w, status, map[string]string{"message": message})
}

func renderJSONError(w http.ResponseWriter, status int, err error) {
	renderJSON(w, status, map[string]string{"error": err.Error()})
}

type trackResponse struct {
	catalog.Track
	Card *storefront.View `json:"card,omitempty"`
}

func (s *Server) handleTracks(w http.ResponseWriter, r *http.Request) {
	tracks := s.cfg.Catalog.Tracks()
	resp := make([]trackResponse, 0, len(tracks))
	for _, t := range tracks {
		item := trackResponse{Track: t}
		if c, ok := s.cfg.Grid.Card(t.ID); ok {
			v := c.View()
			item.Card = &v
		}
		resp = append(resp, item)
	}
	renderJSON(w, http.StatusOK, resp)
}

func (s *Server) handleNowPlaying(w http.ResponseWriter, r *http.Request) {
	v, ok := s.cfg.Grid.NowPlaying()
	if !ok {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	renderJSON(w, http.StatusOK, v)
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	if s.cfg.History == nil {
		renderJSONMessage(w, http.StatusNotFound, "history is disabled")
		return
	}

	limit := defaultHistoryLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			renderJSONMessage(w, http.StatusBadRequest, "limit must be a non-negative integer")
			return
		}
		limit = n
	}

	entries, err := s.cfg.History.Recent(r.Context(), limit)
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to read history")
		renderJSONError(w, http.StatusInternalServerError, err)
		return
	}
	if entries == nil {
		entries = []history.Entry{}
	}
	renderJSON(w, http.StatusOK, entries)
}

type preferencesBody struct {
	Volume  *float64 `json:"volume,omitempty"`
	Cookies *string  `json:"cookies,omitempty"`
}

type preferencesResponse struct {
	Volume  float64 `json:"volume"`
	Cookies string  `json:"cookies"`
}

func (s *Server) preferences(r *http.Request) (preferencesResponse, error) {
	consent, err := s.cfg.Prefs.Consent(r.Context())
	if err != nil {
		return preferencesResponse{}, err
	}
	return preferencesResponse{
		Volume:  s.cfg.Prefs.Volume(),
		Cookies: consent.String(),
	}, nil
}

func (s *Server) handleGetPreferences(w http.ResponseWriter, r *http.Request) {
	resp, err := s.preferences(r)
	if err != nil {
		renderJSONError(w, http.StatusInternalServerError, err)
		return
	}
	renderJSON(w, http.StatusOK, resp)
}

func (s *Server) handlePutPreferences(w http.ResponseWriter, r *http.Request) {
	var body preferencesBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		renderJSONMessage(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	if body.Cookies != nil {
		consent, err := prefs.ParseConsent(*body.Cookies)
		if err != nil {
			renderJSONError(w, http.StatusBadRequest, err)
			return
		}
		if err := s.cfg.Prefs.SetConsent(r.Context(), consent); err != nil {
			renderJSONError(w, http.StatusInternalServerError, err)
			return
		}
	}
	if body.Volume != nil {
		s.cfg.Grid.SetVolume(*body.Volume)
	}

	s.handleGetPreferences(w, r)
}

func (s *Server) handleCardAction(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	card, ok := s.cfg.Grid.Card(id)
	if !ok {
		renderJSONMessage(w, http.StatusNotFound, fmt.Sprintf("no card for track %q", id))
		return
	}

	switch action := r.PathValue("action"); action {
	case "enter":
		card.PointerEnter(s.ctx)
	case "leave":
		card.PointerLeave()
	case "toggle":
		err := card.TogglePlay(s.ctx)
		if err != nil && !errors.Is(err, media.ErrSuperseded) {
			renderJSON(w, http.StatusConflict, map[string]any{
				"error": media.Reason(err),
				"card":  card.View(),
			})
			return
		}
	case "seek":
		secs, err := parseFinite(r.URL.Query().Get("to"))
		if err != nil {
			renderJSONMessage(w, http.StatusBadRequest, "to must be a number of seconds")
			return
		}
		card.Seek(secondsToDuration(secs))
	case "volume":
		level, err := parseFinite(r.URL.Query().Get("level"))
		if err != nil {
			renderJSONMessage(w, http.StatusBadRequest, "level must be a number between 0 and 1")
			return
		}
		card.SetVolume(level)
	default:
		renderJSONMessage(w, http.StatusNotFound, fmt.Sprintf("unknown action %q", action))
		return
	}

	renderJSON(w, http.StatusOK, card.View())
}

// parseFinite parses a query value, rejecting NaN and infinities.
func parseFinite(s string) (float64, error) {
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, err
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, fmt.Errorf("not a finite number: %q", s)
	}
	return v, nil
}

// secondsToDuration converts without overflowing; the controller clamps
// the result to the track length.
func secondsToDuration(secs float64) time.Duration {
	if secs >= float64(math.MaxInt64)/float64(time.Second) {
		return time.Duration(math.MaxInt64)
	}
	if secs <= 0 {
		return 0
	}
	return time.Duration(secs * float64(time.Second))
}
