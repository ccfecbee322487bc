package server

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/MarcoPoloResearchLab/galleria/internal/images"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type imagePagePayload struct {
	Page     int            `json:"page"`
	PerPage  int            `json:"per_page"`
	HasMore  bool           `json:"has_more"`
	NextPage int            `json:"next_page,omitempty"`
	Images   []images.Image `json:"images"`
}

func (h *httpHandler) handleListImages(c *gin.Context) {
	page, ok := parsePage(c)
	if !ok {
		respondError(c, http.StatusBadRequest, "invalid_page")
		return
	}
	pager := images.NewPager(h.images, page, images.DefaultPageSize)
	results, err := pager.Next(c.Request.Context())
	if err != nil {
		h.respondFetchError(c, err)
		return
	}
	if results == nil {
		results = []images.Image{}
	}
	payload := imagePagePayload{
		Page:    page,
		PerPage: images.DefaultPageSize,
		HasMore: !pager.Done(),
		Images:  results,
	}
	if payload.HasMore {
		payload.NextPage = pager.NextPage()
	}
	c.JSON(http.StatusOK, payload)
}

func (h *httpHandler) handleSearchImages(c *gin.Context) {
	query := strings.TrimSpace(c.Query("query"))
	if query == "" {
		respondError(c, http.StatusBadRequest, "missing_query")
		return
	}
	page, ok := parsePage(c)
	if !ok {
		respondError(c, http.StatusBadRequest, "invalid_page")
		return
	}
	result, err := h.images.Search(c.Request.Context(), query, page)
	if err != nil {
		h.respondFetchError(c, err)
		return
	}
	if result.Results == nil {
		result.Results = []images.Image{}
	}
	c.JSON(http.StatusOK, result)
}

func (h *httpHandler) handleGetImage(c *gin.Context) {
	imageID := strings.TrimSpace(c.Param("id"))
	if imageID == "" {
		respondError(c, http.StatusBadRequest, "invalid_image_id")
		return
	}
	image, err := h.images.FetchByID(c.Request.Context(), imageID)
	if err != nil {
		h.respondFetchError(c, err)
		return
	}
	c.JSON(http.StatusOK, image)
}

// imageContext loads the image a write refers to. A failed lookup is not fatal: the feed
// entry falls back to the untitled title.
func (h *httpHandler) imageContext(c *gin.Context, imageID string) *images.Image {
	image, err := h.images.FetchByID(c.Request.Context(), imageID)
	if err != nil {
		h.logger.Info("image context unavailable", zap.String("image_id", imageID), zap.Error(err))
		return nil
	}
	return &image
}

func (h *httpHandler) respondFetchError(c *gin.Context, err error) {
	var fetchErr *images.FetchError
	if errors.As(err, &fetchErr) && fetchErr.NotFound() {
		respondError(c, http.StatusNotFound, "image_not_found")
		return
	}
	h.logger.Warn("image fetch failed", zap.Error(err))
	respondError(c, http.StatusBadGateway, "fetch_failed")
}

func parsePage(c *gin.Context) (int, bool) {
	raw := strings.TrimSpace(c.DefaultQuery("page", "1"))
	page, err := strconv.Atoi(raw)
	if err != nil || page < 1 {
		return 0, false
	}
	return page, true
}
