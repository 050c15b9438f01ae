package response

import (
	"io"
	"net/http"
	"time"

	"go-candidate-tracker/internal/domain"

	"github.com/gin-gonic/gin"
)

// KeepAlive is how often an idle event stream sends a ping frame.
const KeepAlive = 25 * time.Second

// Response is the JSON envelope of every non-streaming endpoint.
type Response struct {
	Success   bool        `json:"success"`
	Message   string      `json:"message"`
	Data      interface{} `json:"data,omitempty"`
	Error     interface{} `json:"error,omitempty"`
	RequestID string      `json:"request_id,omitempty"`
}

// Invalid is the error body of a rejected draft save: a message per failing
// field plus the draft state carrying the field flags.
type Invalid struct {
	Fields map[string]string `json:"fields"`
	State  interface{}       `json:"state"`
}

func Success(c *gin.Context, code int, message string, data interface{}) {
	write(c, code, Response{Success: true, Message: message, Data: data})
}

func Error(c *gin.Context, code int, message string, details interface{}) {
	write(c, code, Response{Message: message, Error: details})
}

// Unprocessable rejects a save whose draft failed validation.
func Unprocessable(c *gin.Context, fields map[string]string, state interface{}) {
	write(c, http.StatusUnprocessableEntity, Response{
		Message: "Please fix the highlighted fields",
		Error:   Invalid{Fields: fields, State: state},
	})
}

func write(c *gin.Context, code int, body Response) {
	body.RequestID = RequestID(c)
	c.JSON(code, body)
}

// RequestID returns the id assigned by the request id middleware.
func RequestID(c *gin.Context) string {
	return c.GetString(string(domain.KeyRequestID))
}

// Stream writes every value from ch as a server-sent event named event until
// ch closes or the client goes away. Idle streams get a ping every interval.
func Stream[T any](c *gin.Context, event string, ch <-chan T, interval time.Duration) {
	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")

	ping := time.NewTicker(interval)
	defer ping.Stop()

	ctx := c.Request.Context()
	c.Stream(func(io.Writer) bool {
		select {
		case <-ctx.Done():
			return false
		case <-ping.C:
			c.SSEvent("ping", time.Now().Unix())
			return true
		case v, ok := <-ch:
			if !ok {
				return false
			}
			c.SSEvent(event, v)
			return true
		}
	})
}
