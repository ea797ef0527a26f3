package server

import (
	"context"
	"net/http"

	"github.com/jinzhu/copier"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/terratale/terratale/core/events"
)

// SynthesizeRequest is the request body for POST /synthesize.
type SynthesizeRequest struct {
	Text string `json:"text"`
}

// QARequest is the request body for POST /qa.
type QARequest struct {
	Question string `json:"question"`
}

// QAResponse is the response body for POST /qa.
type QAResponse struct {
	Answer string `json:"answer"`
}

// ImageSearchRequest is the request body for POST /image-search.
type ImageSearchRequest struct {
	Query string `json:"query"`
}

// ImageSearchResponse is the response body for POST /image-search.
type ImageSearchResponse struct {
	Results []events.ImageHit `json:"results"`
}

// handleSynthesize renders text to one audio payload. Pronunciation markup
// is applied before synthesis.
func (s *Server) handleSynthesize(c echo.Context) error {
	var req SynthesizeRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if req.Text == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "text field is required")
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), s.deps.CallTimeout)
	defer cancel()

	audio, err := s.deps.Synthesizer.SynthesizeSpeech(ctx, s.deps.Lexicon.Markup(req.Text))
	if err != nil {
		s.logger.Error("speech synthesis failed", zap.Error(err))
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}

	return c.Blob(http.StatusOK, "audio/mpeg", audio)
}

// handleQA answers a single question synchronously, outside any websocket
// session.
func (s *Server) handleQA(c echo.Context) error {
	var req QARequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if req.Question == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "question field is required")
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), s.deps.CallTimeout)
	defer cancel()

	passages, err := s.deps.Retriever.RetrieveContext(ctx, req.Question)
	if err != nil {
		s.logger.Error("context retrieval failed", zap.Error(err))
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}

	answer, err := s.deps.TextGen.GenerateText(ctx, req.Question, passages)
	if err != nil {
		s.logger.Error("answer generation failed", zap.Error(err))
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}

	return c.JSON(http.StatusOK, QAResponse{Answer: answer})
}

func (s *Server) handleImageSearch(c echo.Context) error {
	var req ImageSearchRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if req.Query == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "query field is required")
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), s.deps.CallTimeout)
	defer cancel()

	results, err := s.deps.Images.SearchImages(ctx, req.Query)
	if err != nil {
		s.logger.Error("image search failed", zap.Error(err))
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}

	hits := []events.ImageHit{}
	if err := copier.Copy(&hits, &results); err != nil {
		s.logger.Error("failed to map image search results", zap.Error(err))
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}

	return c.JSON(http.StatusOK, ImageSearchResponse{Results: hits})
}
