package server

import (
	"context"
	"net/http"
	"time"

	"github.com/MarcoPoloResearchLab/galleria/internal/interactions"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const (
	realtimeEventReactions = "reactions"
	realtimeEventGroups    = "groups"
	realtimeEventComments  = "comments"
	realtimeEventFeed      = "feed"
	realtimeEventError     = "error"
	realtimeEventHeartbeat = "heartbeat"
	realtimeSourceBackend  = "galleria-api"
)

type groupsPayload struct {
	ImageID string                       `json:"image_id"`
	Groups  []interactions.ReactionGroup `json:"groups"`
}

type heartbeatPayload struct {
	Source    string    `json:"source"`
	Timestamp time.Time `json:"timestamp"`
}

type streamErrorPayload struct {
	Error string `json:"error"`
	Scope string `json:"scope"`
}

type reactionsOnlyPayload struct {
	ImageID   string                  `json:"image_id"`
	Reactions []interactions.Reaction `json:"reactions"`
}

// imageStreams holds the three live queries behind an image detail view.
type imageStreams struct {
	reactions <-chan interactions.Snapshot[interactions.Reaction]
	groups    <-chan interactions.Snapshot[interactions.ReactionGroup]
	comments  <-chan interactions.Snapshot[interactions.Comment]
	stop      func()
}

func (h *httpHandler) subscribeImage(ctx context.Context, imageID string) imageStreams {
	reactions, stopReactions := h.live.SubscribeReactions(ctx, imageID)
	groups, stopGroups := h.live.SubscribeReactionGroups(ctx, imageID)
	comments, stopComments := h.live.SubscribeComments(ctx, imageID)
	return imageStreams{
		reactions: reactions,
		groups:    groups,
		comments:  comments,
		stop: func() {
			stopReactions()
			stopGroups()
			stopComments()
		},
	}
}

func (h *httpHandler) handleImageStream(c *gin.Context) {
	imageID, err := interactions.NewImageID(c.Param("id"))
	if err != nil {
		respondError(c, http.StatusBadRequest, "invalid_image_id")
		return
	}

	ctx, cancel := context.WithCancel(c.Request.Context())
	defer cancel()
	streams := h.subscribeImage(ctx, imageID.String())
	defer streams.stop()

	prepareEventStream(c)
	ticker := time.NewTicker(h.heartbeat)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case snapshot, ok := <-streams.reactions:
			if !ok {
				return
			}
			if snapshot.Err != nil {
				h.writeStreamError(c, realtimeEventReactions, snapshot.Err)
				continue
			}
			writeEvent(c, realtimeEventReactions, reactionsOnlyPayload{ImageID: imageID.String(), Reactions: snapshot.Items})
		case snapshot, ok := <-streams.groups:
			if !ok {
				return
			}
			if snapshot.Err != nil {
				h.writeStreamError(c, realtimeEventGroups, snapshot.Err)
				continue
			}
			writeEvent(c, realtimeEventGroups, groupsPayload{ImageID: imageID.String(), Groups: snapshot.Items})
		case snapshot, ok := <-streams.comments:
			if !ok {
				return
			}
			if snapshot.Err != nil {
				h.writeStreamError(c, realtimeEventComments, snapshot.Err)
				continue
			}
			writeEvent(c, realtimeEventComments, commentsPayload{ImageID: imageID.String(), Comments: snapshot.Items})
		case <-ticker.C:
			writeEvent(c, realtimeEventHeartbeat, h.heartbeatPayload())
		}
	}
}

func (h *httpHandler) handleFeedStream(c *gin.Context) {
	ctx, cancel := context.WithCancel(c.Request.Context())
	defer cancel()
	feed, stopFeed := h.live.SubscribeFeed(ctx)
	defer stopFeed()

	prepareEventStream(c)
	ticker := time.NewTicker(h.heartbeat)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case snapshot, ok := <-feed:
			if !ok {
				return
			}
			if snapshot.Err != nil {
				h.writeStreamError(c, realtimeEventFeed, snapshot.Err)
				continue
			}
			writeEvent(c, realtimeEventFeed, h.buildFeedPayload(snapshot.Items))
		case <-ticker.C:
			writeEvent(c, realtimeEventHeartbeat, h.heartbeatPayload())
		}
	}
}

func (h *httpHandler) heartbeatPayload() heartbeatPayload {
	return heartbeatPayload{Source: realtimeSourceBackend, Timestamp: h.clock().UTC()}
}

func (h *httpHandler) writeStreamError(c *gin.Context, scope string, err error) {
	h.logger.Warn("live snapshot failed", zap.String("scope", scope), zap.Error(err))
	writeEvent(c, realtimeEventError, streamErrorPayload{Error: "read_failed", Scope: scope})
}

func prepareEventStream(c *gin.Context) {
	header := c.Writer.Header()
	header.Set("Content-Type", "text/event-stream")
	header.Set("Cache-Control", "no-cache")
	header.Set("Connection", "keep-alive")
	header.Set("X-Accel-Buffering", "no")
	c.Status(http.StatusOK)
	c.Writer.WriteHeaderNow()
	c.Writer.Flush()
}

func writeEvent(c *gin.Context, event string, payload any) {
	c.SSEvent(event, payload)
	c.Writer.Flush()
}
