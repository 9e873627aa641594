package v1

import (
	"net/http"

	"github.com/deploykit/lib/broadcast"
	"github.com/deploykit/models"
	"github.com/deploykit/services"
	"github.com/deploykit/utils"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

// LiveController serves the live log channel of a deployment over
// websocket and Server-Sent Events.
type LiveController struct {
	projects    *services.ProjectService
	deployments *services.DeploymentService
	hub         *broadcast.Hub
	upgrader    websocket.Upgrader
	log         *logrus.Entry
}

// NewLiveController creates a new live log controller
func NewLiveController(projects *services.ProjectService, deployments *services.DeploymentService, hub *broadcast.Hub, log *logrus.Entry) *LiveController {
	return &LiveController{
		projects:    projects,
		deployments: deployments,
		hub:         hub,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		log: log,
	}
}

// RegisterRoutes registers live channel routes
func (lc *LiveController) RegisterRoutes(router *gin.RouterGroup) {
	deployments := router.Group("/deployments/:id")
	{
		deployments.GET("/ws", lc.WebSocket)
		deployments.GET("/events", lc.Events)
	}
}

// join authorizes the caller and subscribes to the deployment room. The
// returned deployment is read after subscribing, so a status change can
// not fall between the read and the subscription.
func (lc *LiveController) join(c *gin.Context) (*broadcast.Subscription, models.Deployment, bool) {
	userID, ok := currentUser(c)
	if !ok {
		return nil, models.Deployment{}, false
	}
	id, ok := paramID(c, "id")
	if !ok {
		return nil, models.Deployment{}, false
	}
	deployment, err := lc.deployments.Get(c.Request.Context(), id)
	if err != nil {
		respondError(c, lc.log, err)
		return nil, models.Deployment{}, false
	}
	if _, _, err := lc.projects.Authorize(c.Request.Context(), deployment.ProjectID, userID); err != nil {
		respondError(c, lc.log, err)
		return nil, models.Deployment{}, false
	}

	sub := lc.hub.Subscribe(id, broadcast.DefaultBuffer)
	deployment, err = lc.deployments.Get(c.Request.Context(), id)
	if err != nil {
		sub.Close()
		respondError(c, lc.log, err)
		return nil, models.Deployment{}, false
	}
	return sub, deployment, true
}

// WebSocket upgrades the request and relays log and status events
func (lc *LiveController) WebSocket(c *gin.Context) {
	sub, deployment, ok := lc.join(c)
	if !ok {
		return
	}

	conn, err := lc.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		sub.Close()
		lc.log.WithError(err).Warn("websocket upgrade failed")
		return
	}
	if deployment.Status.Terminal() {
		sub.Close()
		_ = conn.WriteJSON(broadcast.StatusEvent(deployment.ID, string(deployment.Status)))
		_ = conn.Close()
		return
	}

	lc.log.WithField("deployment_id", deployment.ID).Debug("🔌 websocket subscriber connected")
	broadcast.NewWebSocketClient(conn, sub, lc.log).Run(c.Request.Context())
}

// Events streams log and status events as Server-Sent Events
func (lc *LiveController) Events(c *gin.Context) {
	sub, deployment, ok := lc.join(c)
	if !ok {
		return
	}

	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")
	c.Writer.Header().Set("X-Accel-Buffering", "no")
	c.Status(http.StatusOK)

	if deployment.Status.Terminal() {
		sub.Close()
		evt := broadcast.StatusEvent(deployment.ID, string(deployment.Status))
		if err := utils.WriteSSEEvent(c.Writer, string(evt.Type), evt); err != nil {
			lc.log.WithError(err).Warn("sse send failed")
		}
		c.Writer.Flush()
		return
	}

	c.Writer.Flush()
	broadcast.NewSSEClient(c.Writer, c.Writer, sub, lc.log).Run(c.Request.Context())
}
