package api

import (
	"encoding/base64"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/pbaille/winewize/internal/domain"
	"github.com/pbaille/winewize/internal/pairing"
	"github.com/pbaille/winewize/internal/scan"
	"github.com/pbaille/winewize/internal/sommelier"
	"github.com/pbaille/winewize/internal/store"
	apperrors "github.com/pbaille/winewize/pkg/errors"
)

// ScanImage is one uploaded photo
type ScanImage struct {
	MediaType string `json:"media_type" validate:"omitempty,oneof=image/jpeg image/png image/gif image/webp"`
	Data      string `json:"data" validate:"required,base64"`
}

// ScanRequest is the request body for scanning a menu and wine list
type ScanRequest struct {
	Images         []ScanImage `json:"images" validate:"max=10,dive"`
	URL            string      `json:"url,omitempty" validate:"omitempty,url"`
	RestaurantName string      `json:"restaurant_name,omitempty" validate:"max=200"`
}

// ScanResponse is the session bundle plus scan bookkeeping
type ScanResponse struct {
	Session   domain.SessionBundle `json:"session"`
	Processed int                  `json:"processed"`
	Failed    int                  `json:"failed"`
}

func (s *Server) scanSession(w http.ResponseWriter, r *http.Request) {
	id, err := sessionID(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	var req ScanRequest
	if err := decodeBody(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	if len(req.Images) == 0 && req.URL == "" {
		s.writeError(w, r, apperrors.NewBadRequest("provide at least one image or a url"))
		return
	}
	if s.scanner == nil {
		s.writeError(w, r, apperrors.ErrNotConfigured)
		return
	}

	ctx := r.Context()
	var results []*scan.Result

	if len(req.Images) > 0 {
		images := make([]sommelier.Image, len(req.Images))
		for i, img := range req.Images {
			data, err := base64.StdEncoding.DecodeString(img.Data)
			if err != nil {
				s.writeError(w, r, apperrors.NewBadRequest("image data must be base64").WithInternal(err))
				return
			}
			images[i] = sommelier.Image{MediaType: img.MediaType, Data: data}
		}

		res, err := s.scanner.Scan(ctx, images)
		if err != nil {
			s.writeError(w, r, apperrors.ErrUpstream.WithMessage("Could not read the uploaded images").WithInternal(err))
			return
		}
		results = append(results, res)
	}

	if req.URL != "" {
		res, err := s.scanner.ScanURL(ctx, req.URL)
		if err != nil {
			// photos already read are still useful; a page that failed is not fatal
			if len(results) == 0 {
				s.writeError(w, r, apperrors.ErrUpstream.WithMessage("Could not read the wine list page").WithInternal(err))
				return
			}
			s.log.Warn("wine list page skipped", zap.String("url", req.URL), zap.Error(err))
			results = append(results, &scan.Result{Failed: 1})
		} else {
			results = append(results, res)
		}
	}

	merged := scan.Merge(results...)
	bundle := domain.SessionBundle{
		MenuItems:      merged.MenuItems,
		Wines:          merged.Wines,
		RestaurantName: strings.TrimSpace(req.RestaurantName),
	}
	if bundle.RestaurantName == "" {
		bundle.RestaurantName = merged.RestaurantName
	}

	if bundle.RestaurantName != "" {
		restaurant, err := s.store.GetOrCreateRestaurant(ctx, bundle.RestaurantName)
		if err != nil {
			s.writeError(w, r, apperrors.Wrap(err, "Could not save the restaurant"))
			return
		}
		items, wines, err := s.store.SaveMenu(ctx, restaurant.ID, bundle.MenuItems, bundle.Wines)
		if err != nil {
			s.writeError(w, r, apperrors.Wrap(err, "Could not save the menu"))
			return
		}
		bundle.RestaurantID = restaurant.ID
		bundle.RestaurantName = restaurant.Name
		bundle.MenuItems = items
		bundle.Wines = wines
	}

	saved, err := s.sessions.Save(ctx, id, bundle)
	if err != nil {
		s.writeError(w, r, apperrors.Wrap(err, "Could not save the session"))
		return
	}

	writeJSON(w, http.StatusCreated, ScanResponse{
		Session:   saved,
		Processed: merged.Processed,
		Failed:    merged.Failed,
	})
}

func (s *Server) getSession(w http.ResponseWriter, r *http.Request) {
	id, err := sessionID(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	bundle, ok := s.sessions.Bundle(r.Context(), id)
	if !ok {
		s.writeError(w, r, apperrors.ErrNotFound.WithMessage("session not found"))
		return
	}
	writeJSON(w, http.StatusOK, bundle)
}

func (s *Server) resetSession(w http.ResponseWriter, r *http.Request) {
	id, err := sessionID(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	if err := s.sessions.Clear(r.Context(), id); err != nil {
		s.writeError(w, r, apperrors.Wrap(err, "Could not clear the session"))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) sessionWines(w http.ResponseWriter, r *http.Request) {
	id, err := sessionID(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	wines, source := s.sessions.Wines(r.Context(), id, nil)
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"wines":  wines,
		"source": source,
	})
}

func (s *Server) createPairings(w http.ResponseWriter, r *http.Request) {
	id, err := sessionID(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	var req pairing.Request
	if err := decodeBody(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	req.SessionID = id
	if req.RestaurantID == "" {
		if bundle, ok := s.sessions.Bundle(r.Context(), id); ok {
			req.RestaurantID = bundle.RestaurantID
		}
	}

	res, err := s.pairing.Recommend(r.Context(), req)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) listPairings(w http.ResponseWriter, r *http.Request) {
	id, err := sessionID(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	limit, _ := pageParams(r, 50)
	pairings, err := s.store.ListPairings(r.Context(), store.PairingFilter{SessionID: id, Limit: limit})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	total, err := s.store.CountPairings(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	if pairings == nil {
		pairings = []domain.Pairing{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"pairings": pairings,
		"total":    total,
	})
}
