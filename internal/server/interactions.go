package server

import (
	"errors"
	"net/http"
	"time"

	"github.com/MarcoPoloResearchLab/galleria/internal/interactions"
	"github.com/dustin/go-humanize"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type reactionRequestPayload struct {
	Emoji string `json:"emoji"`
}

type commentRequestPayload struct {
	Text string `json:"text"`
}

type reactionsPayload struct {
	ImageID   string                       `json:"image_id"`
	Reactions []interactions.Reaction      `json:"reactions"`
	Groups    []interactions.ReactionGroup `json:"groups"`
}

type commentsPayload struct {
	ImageID  string                 `json:"image_id"`
	Comments []interactions.Comment `json:"comments"`
}

type feedEntryPayload struct {
	interactions.FeedItem
	Activity     string `json:"activity"`
	RelativeTime string `json:"relativeTime"`
}

type feedPayload struct {
	Items []feedEntryPayload `json:"items"`
}

func (h *httpHandler) handleListReactions(c *gin.Context) {
	imageID, err := interactions.NewImageID(c.Param("id"))
	if err != nil {
		respondError(c, http.StatusBadRequest, "invalid_image_id")
		return
	}
	reactions, err := h.reader.Reactions(c.Request.Context(), imageID.String())
	if err != nil {
		h.logger.Error("reaction read failed", zap.String("image_id", imageID.String()), zap.Error(err))
		respondError(c, http.StatusInternalServerError, "read_failed")
		return
	}
	c.JSON(http.StatusOK, reactionsPayload{
		ImageID:   imageID.String(),
		Reactions: reactions,
		Groups:    interactions.GroupByEmoji(reactions),
	})
}

func (h *httpHandler) handleAddReaction(c *gin.Context) {
	who, ok := currentIdentity(c)
	if !ok {
		respondError(c, http.StatusUnauthorized, "unauthorized")
		return
	}
	imageID, err := interactions.NewImageID(c.Param("id"))
	if err != nil {
		respondError(c, http.StatusBadRequest, "invalid_image_id")
		return
	}
	var request reactionRequestPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		respondError(c, http.StatusBadRequest, "invalid_request")
		return
	}
	emoji, err := interactions.NewEmoji(request.Emoji)
	if err != nil {
		respondError(c, http.StatusBadRequest, "invalid_emoji")
		return
	}

	reaction, err := h.writer.AddReaction(c.Request.Context(), imageID, emoji, who, h.imageContext(c, imageID.String()))
	if err != nil {
		respondWriteError(c, err)
		return
	}
	c.JSON(http.StatusCreated, reaction)
}

func (h *httpHandler) handleDeleteReaction(c *gin.Context) {
	who, ok := currentIdentity(c)
	if !ok {
		respondError(c, http.StatusUnauthorized, "unauthorized")
		return
	}
	reaction, err := h.reader.Reaction(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.respondLookupError(c, "reaction_not_found", err)
		return
	}
	if reaction.UserID != who.UserID {
		respondError(c, http.StatusForbidden, "forbidden")
		return
	}
	if err := h.writer.DeleteReaction(c.Request.Context(), reaction.ID); err != nil {
		respondWriteError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *httpHandler) handleListComments(c *gin.Context) {
	imageID, err := interactions.NewImageID(c.Param("id"))
	if err != nil {
		respondError(c, http.StatusBadRequest, "invalid_image_id")
		return
	}
	comments, err := h.reader.Comments(c.Request.Context(), imageID.String())
	if err != nil {
		h.logger.Error("comment read failed", zap.String("image_id", imageID.String()), zap.Error(err))
		respondError(c, http.StatusInternalServerError, "read_failed")
		return
	}
	c.JSON(http.StatusOK, commentsPayload{ImageID: imageID.String(), Comments: comments})
}

func (h *httpHandler) handleAddComment(c *gin.Context) {
	who, ok := currentIdentity(c)
	if !ok {
		respondError(c, http.StatusUnauthorized, "unauthorized")
		return
	}
	imageID, err := interactions.NewImageID(c.Param("id"))
	if err != nil {
		respondError(c, http.StatusBadRequest, "invalid_image_id")
		return
	}
	var request commentRequestPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		respondError(c, http.StatusBadRequest, "invalid_request")
		return
	}
	text, err := interactions.NewCommentText(request.Text)
	if err != nil {
		respondError(c, http.StatusBadRequest, "empty_comment")
		return
	}

	comment, err := h.writer.AddComment(c.Request.Context(), imageID, text, who, h.imageContext(c, imageID.String()))
	if err != nil {
		respondWriteError(c, err)
		return
	}
	c.JSON(http.StatusCreated, comment)
}

func (h *httpHandler) handleDeleteComment(c *gin.Context) {
	who, ok := currentIdentity(c)
	if !ok {
		respondError(c, http.StatusUnauthorized, "unauthorized")
		return
	}
	comment, err := h.reader.Comment(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.respondLookupError(c, "comment_not_found", err)
		return
	}
	if comment.UserID != who.UserID {
		respondError(c, http.StatusForbidden, "forbidden")
		return
	}
	if err := h.writer.DeleteComment(c.Request.Context(), comment.ID); err != nil {
		respondWriteError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *httpHandler) handleFeed(c *gin.Context) {
	items, err := h.reader.Feed(c.Request.Context())
	if err != nil {
		h.logger.Error("feed read failed", zap.Error(err))
		respondError(c, http.StatusInternalServerError, "read_failed")
		return
	}
	c.JSON(http.StatusOK, h.buildFeedPayload(items))
}

func (h *httpHandler) handleEmojis(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"emojis": interactions.SearchPalette(c.Query("search"))})
}

func (h *httpHandler) buildFeedPayload(items []interactions.FeedItem) feedPayload {
	now := h.clock()
	sorted := interactions.SortFeedNewestFirst(items)
	entries := make([]feedEntryPayload, 0, len(sorted))
	for _, item := range sorted {
		entries = append(entries, feedEntryPayload{
			FeedItem:     item,
			Activity:     interactions.ActivityText(item),
			RelativeTime: humanize.RelTime(time.UnixMilli(item.CreatedAtMs), now, "ago", "from now"),
		})
	}
	return feedPayload{Items: entries}
}

func (h *httpHandler) respondLookupError(c *gin.Context, notFoundReason string, err error) {
	if errors.Is(err, interactions.ErrNotFound) {
		respondError(c, http.StatusNotFound, notFoundReason)
		return
	}
	h.logger.Error("interaction lookup failed", zap.Error(err))
	respondError(c, http.StatusInternalServerError, "read_failed")
}

// respondWriteError reports a failed write without failing the connection. The writer has
// already logged the failure.
func respondWriteError(c *gin.Context, err error) {
	var writeErr *interactions.WriteError
	if errors.As(err, &writeErr) {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "write_failed", "code": writeErr.Code()})
		return
	}
	respondError(c, http.StatusInternalServerError, "write_failed")
}
