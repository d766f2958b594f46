package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"
)

const (
	flowIDKey          = "flowId"
	stageTransitionKey = "stageTransition"
)

// Flow records the :id path parameter as the flow ID for logging and rate limiting.
func Flow() gin.HandlerFunc {
	return func(c *gin.Context) {
		if id := strings.TrimSpace(c.Param("id")); id != "" {
			c.Set(flowIDKey, id)
		}
		c.Next()
	}
}

// FlowIDFromContext returns the flow ID set by Flow or by a handler.
func FlowIDFromContext(c *gin.Context) string {
	if c == nil {
		return ""
	}
	return c.GetString(flowIDKey)
}

// SetFlowID records a flow ID created during the request.
func SetFlowID(c *gin.Context, id string) {
	c.Set(flowIDKey, id)
}

// SetStageTransition records a stage transition such as "capture->confirm".
func SetStageTransition(c *gin.Context, transition string) {
	if transition == "" {
		return
	}
	c.Set(stageTransitionKey, transition)
}
