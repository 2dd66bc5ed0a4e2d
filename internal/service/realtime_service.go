package service

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/gofiber/websocket/v2"
	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/noah-isme/eyeai-api/internal/observability"
)

// Event kinds pushed to a teacher's observers.
const (
	EventSessionStart     = "session:start"
	EventSessionEnd       = "session:end"
	EventStudentJoined    = "student:joined"
	EventStudentLeft      = "student:left"
	EventAttentionMetrics = "attention:metrics"
	EventGraphMetrics     = "graph:metrics"
	EventStudentCount     = "students:count"
	EventFileUploaded     = "file:uploaded"
	EventFileDeleted      = "file:deleted"

	// Raw passthrough events re-broadcast from student websockets without
	// touching the session engine.
	EventAttentionUpdate = "attention:update"
	EventCameraUpdate    = "camera:update"
)

const realtimeSendBufferSize = 32

// Notifier pushes events to the observers of a teacher's session. Delivery
// is best-effort and at-most-once; a Publish call never blocks the caller
// beyond the deadline carried by ctx.
type Notifier interface {
	Publish(ctx context.Context, teacherID, event string, payload interface{})
}

// Envelope wraps every realtime frame sent to clients.
type Envelope struct {
	Event   string      `json:"event"`
	Payload interface{} `json:"payload,omitempty"`
	SentAt  time.Time   `json:"sent_at"`
}

// RealtimeConnectionOptions carries metadata extracted during the HTTP
// upgrade of an observer connection.
type RealtimeConnectionOptions struct {
	Role        string
	TeacherID   string
	StudentID   string
	StudentName string
	Context     context.Context
}

// RealtimeService manages websocket observers and event delivery, fanning
// events out across nodes via Redis pub/sub and NATS.
type RealtimeService interface {
	Notifier
	ServeConnection(conn *websocket.Conn, opts RealtimeConnectionOptions)
	Start(ctx context.Context)
}

type realtimeService struct {
	redis        *redis.Client
	redisChannel string
	nats         *nats.Conn
	natsSubject  string
	logger       zerolog.Logger
	hub          *realtimeHub
	nodeID       string
}

type realtimeHub struct {
	mu    sync.RWMutex
	rooms map[string]map[*realtimeClient]struct{}
	log   zerolog.Logger
}

type realtimeClient struct {
	conn    *websocket.Conn
	send    chan Envelope
	options RealtimeConnectionOptions
	service *realtimeService
	closed  chan struct{}
	once    sync.Once
}

type fanoutEvent struct {
	Source    string    `json:"source"`
	TeacherID string    `json:"teacher_id"`
	Envelope  Envelope  `json:"envelope"`
	SentAt    time.Time `json:"sent_at"`
}

// inboundMessage is the small set of frames student clients may push over
// the socket. They are re-broadcast to the teacher room as-is and do not
// feed the attention engine; the REST surface is the mutation path.
type inboundMessage struct {
	Event     string `json:"event"`
	Direction string `json:"direction,omitempty"`
	Status    string `json:"status,omitempty"`
}

// NewRealtimeService creates the realtime push service. Both redisClient and
// natsConn may be nil, in which case events stay node-local.
func NewRealtimeService(redisClient *redis.Client, natsConn *nats.Conn, channelBase string, logger zerolog.Logger) RealtimeService {
	channel := ""
	subject := ""
	if channelBase != "" {
		channel = channelBase + ":realtime"
		subject = strings.ReplaceAll(channelBase, ":", ".") + ".realtime"
	}

	return &realtimeService{
		redis:        redisClient,
		redisChannel: channel,
		nats:         natsConn,
		natsSubject:  subject,
		logger:       logger.With().Str("component", "realtime_service").Logger(),
		hub: &realtimeHub{
			rooms: make(map[string]map[*realtimeClient]struct{}),
			log:   logger.With().Str("component", "realtime_hub").Logger(),
		},
		nodeID: uuid.NewString(),
	}
}

func (s *realtimeService) Start(ctx context.Context) {
	if s.redis != nil && s.redisChannel != "" {
		go s.consumeRedis(ctx)
	}
	if s.nats != nil && s.natsSubject != "" {
		go s.consumeNATS(ctx)
	}
}

// Publish delivers the event to local observers and forwards it to the other
// nodes. Failures are logged and never surfaced: a dropped notification must
// not fail an already-committed mutation.
func (s *realtimeService) Publish(ctx context.Context, teacherID, event string, payload interface{}) {
	envelope := Envelope{Event: event, Payload: payload, SentAt: time.Now().UTC()}

	s.hub.broadcast(teacherID, envelope)
	observability.RealtimeEvents().WithLabelValues(event).Inc()

	if err := s.fanout(ctx, teacherID, envelope); err != nil {
		s.logger.Warn().Err(err).Str("event", event).Msg("failed to fan out realtime event")
	}
}

func (s *realtimeService) fanout(ctx context.Context, teacherID string, envelope Envelope) error {
	if (s.redis == nil || s.redisChannel == "") && (s.nats == nil || s.natsSubject == "") {
		return nil
	}

	event := fanoutEvent{
		Source:    s.nodeID,
		TeacherID: teacherID,
		Envelope:  envelope,
		SentAt:    time.Now().UTC(),
	}

	payload, err := json.Marshal(event)
	if err != nil {
		return err
	}

	if s.redis != nil && s.redisChannel != "" {
		if err := s.redis.Publish(ctx, s.redisChannel, payload).Err(); err != nil {
			return err
		}
	}

	if s.nats != nil && s.natsSubject != "" {
		if err := s.nats.Publish(s.natsSubject, payload); err != nil {
			return err
		}
	}

	return nil
}

func (s *realtimeService) consumeRedis(ctx context.Context) {
	pubsub := s.redis.Subscribe(ctx, s.redisChannel)
	defer func() {
		_ = pubsub.Close()
	}()
	for {
		msg, err := pubsub.ReceiveMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return
			}
			s.logger.Error().Err(err).Msg("realtime redis subscription closed")
			return
		}
		s.handleFanout([]byte(msg.Payload))
	}
}

func (s *realtimeService) consumeNATS(ctx context.Context) {
	sub, err := s.nats.QueueSubscribe(s.natsSubject, "eyeai-realtime", func(msg *nats.Msg) {
		s.handleFanout(msg.Data)
	})
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to subscribe to nats realtime subject")
		return
	}
	go func() {
		<-ctx.Done()
		if err := sub.Drain(); err != nil {
			s.logger.Warn().Err(err).Msg("failed to drain realtime nats subscription")
		}
	}()
}

func (s *realtimeService) handleFanout(data []byte) {
	var event fanoutEvent
	if err := json.Unmarshal(data, &event); err != nil {
		s.logger.Warn().Err(err).Msg("invalid realtime fanout event")
		return
	}

	if event.Source == s.nodeID {
		return
	}

	s.hub.broadcast(event.TeacherID, event.Envelope)
}

func (s *realtimeService) ServeConnection(conn *websocket.Conn, opts RealtimeConnectionOptions) {
	client := &realtimeClient{
		conn:    conn,
		send:    make(chan Envelope, realtimeSendBufferSize),
		options: opts,
		service: s,
		closed:  make(chan struct{}),
	}

	s.hub.register(client)
	observability.RealtimeConnections().Inc()
	defer observability.RealtimeConnections().Dec()

	go client.writer()
	client.reader()
}

func (h *realtimeHub) register(client *realtimeClient) {
	h.mu.Lock()
	defer h.mu.Unlock()

	room := client.options.TeacherID
	if _, exists := h.rooms[room]; !exists {
		h.rooms[room] = make(map[*realtimeClient]struct{})
	}
	h.rooms[room][client] = struct{}{}
	h.log.Debug().Str("teacher_id", room).Str("role", client.options.Role).Msg("realtime client connected")
}

func (h *realtimeHub) unregister(client *realtimeClient) {
	h.mu.Lock()
	defer h.mu.Unlock()

	room := client.options.TeacherID
	if clients, ok := h.rooms[room]; ok {
		delete(clients, client)
		if len(clients) == 0 {
			delete(h.rooms, room)
		}
	}
	h.log.Debug().Str("teacher_id", room).Str("role", client.options.Role).Msg("realtime client disconnected")
}

func (h *realtimeHub) broadcast(teacherID string, envelope Envelope) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for client := range h.rooms[teacherID] {
		select {
		case client.send <- envelope:
		default:
			h.log.Warn().Str("teacher_id", teacherID).Str("event", envelope.Event).Msg("dropping realtime event for slow client")
		}
	}
}

func (c *realtimeClient) reader() {
	defer c.close()

	for {
		var message inboundMessage
		if err := c.conn.ReadJSON(&message); err != nil {
			c.service.logger.Debug().Err(err).Msg("realtime read loop ended")
			return
		}

		c.service.handleInbound(c, message)
	}
}

func (s *realtimeService) handleInbound(client *realtimeClient, message inboundMessage) {
	if client.options.Role != "student" || client.options.StudentID == "" {
		return
	}

	now := time.Now().UTC()
	switch message.Event {
	case "student:attention":
		s.hub.broadcast(client.options.TeacherID, Envelope{
			Event: EventAttentionUpdate,
			Payload: map[string]interface{}{
				"student_id":   client.options.StudentID,
				"student_name": client.options.StudentName,
				"direction":    message.Direction,
				"is_attentive": message.Direction == "center",
				"timestamp":    now,
			},
			SentAt: now,
		})
	case "student:camera":
		s.hub.broadcast(client.options.TeacherID, Envelope{
			Event: EventCameraUpdate,
			Payload: map[string]interface{}{
				"student_id":   client.options.StudentID,
				"student_name": client.options.StudentName,
				"status":       message.Status,
				"timestamp":    now,
			},
			SentAt: now,
		})
	default:
		s.logger.Debug().Str("event", message.Event).Msg("ignoring unknown inbound realtime event")
	}
}

func (c *realtimeClient) writer() {
	defer c.close()

	for {
		select {
		case envelope, ok := <-c.send:
			if !ok {
				return
			}
			if err := c.conn.WriteJSON(envelope); err != nil {
				c.service.logger.Debug().Err(err).Msg("realtime write loop terminated")
				return
			}
		case <-time.After(30 * time.Second):
			if err := c.conn.WriteMessage(websocket.PingMessage, []byte("keepalive")); err != nil {
				c.service.logger.Debug().Err(err).Msg("realtime ping failed")
				return
			}
		case <-c.closed:
			return
		}
	}
}

func (c *realtimeClient) close() {
	c.once.Do(func() {
		close(c.closed)
		c.service.hub.unregister(c)
		_ = c.conn.Close()
	})
}
