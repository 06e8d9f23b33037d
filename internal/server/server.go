// Package server is the HTTP glue over the similarity service: echo
// routing, request decoding, and error mapping. No business logic
// lives here.
package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	engerr "github.com/xplagiax/simengine/internal/errors"
	"github.com/xplagiax/simengine/internal/fragment"
	"github.com/xplagiax/simengine/internal/similarity"
	"github.com/xplagiax/simengine/pkg/types"
	"github.com/xplagiax/simengine/pkg/version"
)

// Server wires the HTTP routes over the service.
type Server struct {
	echo   *echo.Echo
	svc    *similarity.Service
	logger *slog.Logger
}

// New builds the echo server.
func New(svc *similarity.Service, logger *slog.Logger) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Recover())

	s := &Server{echo: e, svc: svc, logger: logger}

	e.GET("/healthz", s.handleHealth)

	search := e.Group("/api/v2/search")
	search.POST("/similarity", s.handleSimilarity)
	search.POST("/plagiarism-check", s.handlePlagiarismCheck)
	search.POST("/index", s.handleIndexSearch)

	admin := e.Group("/api/v2/admin")
	admin.POST("/save", s.handleSave)
	admin.POST("/clear", s.handleClear)
	admin.POST("/backup", s.handleBackup)
	admin.POST("/remove-duplicates", s.handleRemoveDuplicates)
	admin.POST("/reset-limits", s.handleResetLimits)
	admin.POST("/clear-cache", s.handleClearCache)
	admin.GET("/stats", s.handleStats)
	admin.GET("/dedup-stats", s.handleDedupStats)

	return s
}

// Start serves until the listener fails or is closed.
func (s *Server) Start(addr string) error {
	s.logger.Info("http server listening", slog.String("addr", addr))
	return s.echo.Start(addr)
}

// Echo exposes the underlying router for tests.
func (s *Server) Echo() *echo.Echo {
	return s.echo
}

// searchPayload is the wire shape of the search endpoints. The data
// field is the positional tuple [theme, language, [[page, paragraph,
// text], ...]].
type searchPayload struct {
	Data          []json.RawMessage `json:"data"`
	Threshold     float64           `json:"threshold"`
	UseIndex      *bool             `json:"use_index"`
	Sources       []string          `json:"sources"`
	ChunkMode     string            `json:"chunk_mode"`
	MinChunkWords int               `json:"min_chunk_words"`
}

// decodeData unpacks the positional tuple.
func decodeData(data []json.RawMessage) (theme, language string, fragments []types.Fragment, err error) {
	if len(data) != 3 {
		return "", "", nil, fmt.Errorf("data must be [theme, language, texts]")
	}
	if err := json.Unmarshal(data[0], &theme); err != nil {
		return "", "", nil, fmt.Errorf("theme must be a string")
	}
	if err := json.Unmarshal(data[1], &language); err != nil {
		return "", "", nil, fmt.Errorf("language must be a string")
	}

	var triples [][]string
	if err := json.Unmarshal(data[2], &triples); err != nil {
		return "", "", nil, fmt.Errorf("texts must be [[page, paragraph, text], ...]")
	}
	for i, tr := range triples {
		if len(tr) != 3 {
			return "", "", nil, fmt.Errorf("text %d must have three elements", i)
		}
		fragments = append(fragments, types.Fragment{Page: tr[0], Paragraph: tr[1], Text: tr[2]})
	}
	return theme, language, fragments, nil
}

func (s *Server) handleSimilarity(c echo.Context) error {
	var payload searchPayload
	if err := c.Bind(&payload); err != nil {
		return badRequest(c, "malformed request body")
	}
	theme, language, fragments, err := decodeData(payload.Data)
	if err != nil {
		return badRequest(c, err.Error())
	}

	resp, err := s.svc.SimilaritySearch(c.Request().Context(), similarity.SimilarityRequest{
		Theme:     theme,
		Language:  language,
		Fragments: fragments,
		Threshold: payload.Threshold,
		UseIndex:  payload.UseIndex,
		Sources:   payload.Sources,
	})
	if err != nil {
		return s.mapError(c, err)
	}
	return c.JSON(http.StatusOK, resp)
}

func (s *Server) handlePlagiarismCheck(c echo.Context) error {
	var payload searchPayload
	if err := c.Bind(&payload); err != nil {
		return badRequest(c, "malformed request body")
	}
	theme, language, fragments, err := decodeData(payload.Data)
	if err != nil {
		return badRequest(c, err.Error())
	}

	resp, err := s.svc.PlagiarismCheck(c.Request().Context(), similarity.CheckRequest{
		SimilarityRequest: similarity.SimilarityRequest{
			Theme:     theme,
			Language:  language,
			Fragments: fragments,
			Threshold: payload.Threshold,
			UseIndex:  payload.UseIndex,
			Sources:   payload.Sources,
		},
		ChunkMode:     fragment.Mode(payload.ChunkMode),
		MinChunkWords: payload.MinChunkWords,
	})
	if err != nil {
		return s.mapError(c, err)
	}
	return c.JSON(http.StatusOK, resp)
}

// indexSearchPayload is the direct index probe shape.
type indexSearchPayload struct {
	Query     string  `json:"query"`
	K         int     `json:"k"`
	Threshold float64 `json:"threshold"`
}

func (s *Server) handleIndexSearch(c echo.Context) error {
	var payload indexSearchPayload
	if err := c.Bind(&payload); err != nil {
		return badRequest(c, "malformed request body")
	}

	matches, err := s.svc.DirectIndexSearch(c.Request().Context(), payload.Query, payload.K, payload.Threshold)
	if err != nil {
		return s.mapError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]any{
		"results": matches,
		"count":   len(matches),
	})
}

func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{
		"status":  "ok",
		"version": version.Short(),
	})
}

func (s *Server) handleSave(c echo.Context) error {
	if err := s.svc.Save(); err != nil {
		return s.mapError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]string{"status": "saved"})
}

func (s *Server) handleClear(c echo.Context) error {
	if err := s.svc.Clear(c.Request().Context()); err != nil {
		return s.mapError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]string{"status": "cleared"})
}

func (s *Server) handleBackup(c echo.Context) error {
	dir, err := s.svc.Backup()
	if err != nil {
		return s.mapError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]string{"status": "backed_up", "path": dir})
}

func (s *Server) handleRemoveDuplicates(c echo.Context) error {
	removed, err := s.svc.RemoveDuplicates(c.Request().Context())
	if err != nil {
		return s.mapError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]int{"removed": removed})
}

func (s *Server) handleResetLimits(c echo.Context) error {
	s.svc.ResetLimits()
	return c.JSON(http.StatusOK, map[string]string{"status": "limits_reset"})
}

func (s *Server) handleClearCache(c echo.Context) error {
	s.svc.ClearResultCache()
	return c.JSON(http.StatusOK, map[string]string{"status": "cache_cleared"})
}

func (s *Server) handleStats(c echo.Context) error {
	return c.JSON(http.StatusOK, s.svc.Stats())
}

func (s *Server) handleDedupStats(c echo.Context) error {
	stats, err := s.svc.DedupStats(c.Request().Context())
	if err != nil {
		return s.mapError(c, err)
	}
	return c.JSON(http.StatusOK, stats)
}

func badRequest(c echo.Context, msg string) error {
	return c.JSON(http.StatusBadRequest, map[string]string{"error": msg})
}

// mapError converts engine error codes to HTTP statuses.
func (s *Server) mapError(c echo.Context, err error) error {
	var ee *engerr.EngineError
	status := http.StatusInternalServerError
	code := engerr.ErrCodeInternal

	if errors.As(err, &ee) {
		code = ee.Code
		switch ee.Code {
		case engerr.ErrCodeInvalidInput, engerr.ErrCodeInvalidLanguage, engerr.ErrCodeThresholdRange, engerr.ErrCodeDimensionMismatch:
			status = http.StatusBadRequest
		case engerr.ErrCodeUnsupportedOperation:
			status = http.StatusConflict
		case engerr.ErrCodeRateLimited:
			status = http.StatusTooManyRequests
		case engerr.ErrCodeDeadlineExceeded:
			status = http.StatusGatewayTimeout
		case engerr.ErrCodeUnavailable:
			status = http.StatusServiceUnavailable
		}
	}

	s.logger.Warn("request failed",
		slog.String("path", c.Path()),
		slog.String("code", code),
		slog.Int("status", status))

	return c.JSON(status, map[string]string{
		"error": err.Error(),
		"code":  code,
	})
}
