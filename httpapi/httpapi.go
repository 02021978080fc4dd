// Package httpapi is the request adapter that maps the two probe HTTP
// operations onto an *tortoisedb.Engine. It is a thin, replaceable
// collaborator: it never reaches past Engine.Set / Engine.Get into the
// storage core.
package httpapi

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/tortoisedb/tortoisedb"
)

// ProbeMessage mirrors a single telemetry reading inside a probe event.
// MeasureValue is left as a raw JSON message since upstream devices
// report it as either a float or free text depending on measureCode.
type ProbeMessage struct {
	MeasureName             string          `json:"measureName"`
	MeasureCode             string          `json:"measureCode"`
	MeasureUnit             string          `json:"measureUnit"`
	MeasureValue            json.RawMessage `json:"measureValue"`
	MeasureValueDescription string          `json:"measureValueDescription"`
	MeasureType             string          `json:"measureType"`
	ComponentReading        string          `json:"componentReading"`
}

// ProbePayload is the body of PUT /probe/:probeID/event/:eventID.
type ProbePayload struct {
	MessageType           string         `json:"messageType"`
	EventTransmissionTime uint64         `json:"eventTransmissionTime"`
	MessageData           []ProbeMessage `json:"messageData"`
}

// ProbeValue is the opaque envelope persisted as the engine's value for
// a probe key. The storage core never inspects its shape.
type ProbeValue struct {
	EventID     string         `json:"eventId"`
	MessageType string         `json:"messageType"`
	MessageData []ProbeMessage `json:"messageData"`
}

// ProbeResponse is the body returned by PUT /probe/:probeID/event/:eventID.
// GET /probe/:probeID/latest returns the stored ProbeValue instead.
type ProbeResponse struct {
	ProbeID               string         `json:"probeId"`
	EventID               string         `json:"eventId"`
	MessageType           string         `json:"messageType"`
	EventTransmissionTime uint64         `json:"eventTransmissionTime"`
	MessageData           []ProbeMessage `json:"messageData"`
	EventReceivedTime     uint64         `json:"eventReceivedTime"`
}

// Server wires the probe routes to an engine and exposes an
// http.Handler.
type Server struct {
	engine *tortoisedb.Engine
	logger *zap.Logger
	router *gin.Engine
}

// New builds a Server. logger may be nil, in which case a no-op logger
// is used.
func New(engine *tortoisedb.Engine, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}

	router := gin.New()
	router.Use(requestLogger(logger), gin.Recovery())

	s := &Server{engine: engine, logger: logger, router: router}
	router.PUT("/probe/:probeID/event/:eventID", s.updateProbe)
	router.GET("/probe/:probeID/latest", s.latestProbe)
	return s
}

// ServeHTTP lets Server be used directly as an http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// updateProbe decodes the incoming probe event, wraps it in the opaque
// ProbeValue envelope, and durably sets it keyed by probeID at the
// event's own transmission time. It responds 400 on a decode/encode
// failure and 500 if the engine itself fails.
func (s *Server) updateProbe(c *gin.Context) {
	probeID := c.Param("probeID")
	eventID := c.Param("eventID")

	var payload ProbePayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		s.logger.Info("could not decode probe payload", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": "error in serializing"})
		return
	}

	value := ProbeValue{
		EventID:     eventID,
		MessageType: payload.MessageType,
		MessageData: payload.MessageData,
	}
	serialized, err := json.Marshal(value)
	if err != nil {
		s.logger.Info("could not serialize probe value", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": "error in serializing"})
		return
	}

	receivedAt := uint64(time.Now().UnixMilli())
	ts := tortoisedb.TimestampFromMillis(payload.EventTransmissionTime)
	if err := s.engine.Set(probeID, serialized, ts); err != nil {
		s.logger.Error("failed to persist probe event",
			zap.String("probe_id", probeID),
			zap.Error(err),
		)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}

	c.JSON(http.StatusOK, ProbeResponse{
		ProbeID:               probeID,
		EventID:               eventID,
		MessageType:           value.MessageType,
		EventTransmissionTime: payload.EventTransmissionTime,
		MessageData:           value.MessageData,
		EventReceivedTime:     receivedAt,
	})
}

// latestProbe returns the most recent event recorded for probeID, or
// 404 if none exists.
func (s *Server) latestProbe(c *gin.Context) {
	probeID := c.Param("probeID")

	rec, ok := s.engine.Get(probeID)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "probe not found"})
		return
	}

	var value ProbeValue
	if err := json.Unmarshal(rec.Value, &value); err != nil {
		s.logger.Error("failed to decode stored probe value",
			zap.String("probe_id", probeID),
			zap.Error(err),
		)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}

	c.JSON(http.StatusOK, value)
}

// requestLogger logs every request's method, path, status, latency, and
// a generated request ID.
func requestLogger(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		requestID := uuid.NewString()
		c.Set("request_id", requestID)

		c.Next()

		logger.Info("http request",
			zap.String("request_id", requestID),
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
		)
	}
}
