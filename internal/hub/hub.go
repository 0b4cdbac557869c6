package hub

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"quiz-arena/internal/changefeed"
	"quiz-arena/internal/domain"
	"quiz-arena/internal/orchestrator"
	"quiz-arena/internal/realtime"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer.
	maxMessageSize = 1024

	// commandTimeout bounds one client command or one resync.
	commandTimeout = 10 * time.Second
)

var errNotInRoom = errors.New("command requires a room connection")

// Heartbeater refreshes a user's presence.
type Heartbeater interface {
	Heartbeat(ctx context.Context, session *domain.Session) error
}

// Hub tracks connected clients by topic. The first client of a topic opens the
// topic's upstream subscriptions; the last one to leave closes them.
type Hub struct {
	messageChan chan HubMessage

	topics   map[string]map[*Client]bool
	watches  map[string]context.CancelFunc
	topicsMu sync.RWMutex

	subscriber realtime.Subscriber
	feed       *changefeed.Feed
	game       orchestrator.Gameplay
	presence   Heartbeater
}

// NewHub wires the hub. feed may be nil when no row-change listener runs.
func NewHub(subscriber realtime.Subscriber, feed *changefeed.Feed, game orchestrator.Gameplay, presence Heartbeater) *Hub {
	if subscriber == nil {
		panic("Subscriber cannot be nil for Hub")
	}
	if game == nil {
		panic("Gameplay cannot be nil for Hub")
	}
	if presence == nil {
		panic("Heartbeater cannot be nil for Hub")
	}
	return &Hub{
		messageChan: make(chan HubMessage, 512),
		topics:      make(map[string]map[*Client]bool),
		watches:     make(map[string]context.CancelFunc),
		subscriber:  subscriber,
		feed:        feed,
		game:        game,
		presence:    presence,
	}
}

// Run processes hub messages until ctx ends.
func (h *Hub) Run(ctx context.Context) {
	log := logrus.WithField("component", "hub")
	log.Info("Hub is running...")
	for {
		select {
		case <-ctx.Done():
			log.Info("Hub is shutting down...")
			return
		case msg := <-h.messageChan:
			switch msg.Type {
			case "register":
				h.registerClient(msg.Client)
			case "unregister":
				h.unregisterClient(msg.Client)
			case "command":
				go h.handleCommand(msg)
			default:
				log.Warnf("Hub: Received unknown message type: %s from user %s on %s", msg.Type, msg.UserID, msg.Topic)
			}
		}
	}
}

func (h *Hub) registerClient(client *Client) {
	if client == nil {
		logrus.Error("Hub: Attempted to register a nil client")
		return
	}
	logCtx := logrus.WithFields(logrus.Fields{
		"topic":   client.topic,
		"user_id": client.UserID(),
		"action":  "registerClient",
	})

	if roomID := client.RoomID(); roomID != "" {
		client.orch = orchestrator.New(h.game, client.session, roomID, func(s orchestrator.Snapshot) {
			client.Push(Envelope{Type: OutSessionState, Data: s})
		})
	}

	h.topicsMu.Lock()
	first := false
	if _, ok := h.topics[client.topic]; !ok {
		h.topics[client.topic] = make(map[*Client]bool)
		first = true
	}
	h.topics[client.topic][client] = true
	h.topicsMu.Unlock()
	// register and unregister both run on the hub loop, so the topic cannot
	// empty out before its watch is stored.
	if first {
		cancel := h.watch(client.topic)
		h.topicsMu.Lock()
		h.watches[client.topic] = cancel
		h.topicsMu.Unlock()
	}
	logCtx.Info("Client registered to Hub")

	if client.orch != nil {
		go h.syncClient(client)
	}
}

func (h *Hub) unregisterClient(client *Client) {
	if client == nil {
		logrus.Error("Hub: Attempted to unregister a nil client")
		return
	}
	logCtx := logrus.WithFields(logrus.Fields{
		"topic":   client.topic,
		"user_id": client.UserID(),
		"action":  "unregisterClient",
	})

	h.topicsMu.Lock()
	clients, ok := h.topics[client.topic]
	if !ok || !clients[client] {
		h.topicsMu.Unlock()
		logCtx.Warn("Client not found during unregister")
		return
	}
	delete(clients, client)
	if len(clients) == 0 {
		delete(h.topics, client.topic)
		if cancel, ok := h.watches[client.topic]; ok {
			cancel()
			delete(h.watches, client.topic)
		}
		logCtx.Info("Topic empty, upstream subscriptions closed")
	}
	h.topicsMu.Unlock()

	if client.orch != nil {
		client.orch.Close()
	}
	client.closeSend()
	logCtx.Info("Client unregistered from Hub")
}

// watch opens the upstream feeds for topic and returns their cancel func.
func (h *Hub) watch(topic string) context.CancelFunc {
	ctx, cancel := context.WithCancel(context.Background())
	if roomID, ok := roomOfTopic(topic); ok {
		sub, err := h.subscriber.Subscribe(ctx, roomID)
		if err != nil {
			logrus.WithField("topic", topic).WithError(err).Error("Hub: failed to subscribe to room events")
		} else {
			go h.pumpRoomEvents(ctx, topic, sub)
		}
		if h.feed != nil {
			changes, stop := h.feed.Subscribe(
				changefeed.Filter{Table: "game_rooms", Column: "id", Value: roomID},
				changefeed.Filter{Table: "game_room_players", Column: "room_id", Value: roomID},
				changefeed.Filter{Table: "game_room_questions", Column: "room_id", Value: roomID},
			)
			go h.watchChanges(ctx, topic, changes, stop, true)
		}
	} else if userID, ok := userOfTopic(topic); ok && h.feed != nil {
		changes, stop := h.feed.Subscribe(
			changefeed.Filter{Table: "presence"},
			changefeed.Filter{Table: "matchmaking_requests", Column: "target_id", Value: userID},
			changefeed.Filter{Table: "matchmaking_requests", Column: "requester_id", Value: userID},
		)
		go h.watchChanges(ctx, topic, changes, stop, false)
	}
	return cancel
}

func (h *Hub) pumpRoomEvents(ctx context.Context, topic string, sub realtime.Subscription) {
	defer sub.Close()

	forward := func(_ context.Context, ev realtime.Event) {
		h.broadcast(topic, Envelope{Type: OutEvent, Data: ev})
	}
	resync := func(_ context.Context, _ realtime.Event) {
		h.syncTopic(topic)
	}
	router := realtime.NewRouter()
	router.On(realtime.EventGameUpdate, forward)
	router.On(realtime.EventGameUpdate, resync)
	router.On(realtime.EventQuestionSelected, forward)
	router.On(realtime.EventQuestionSelected, resync)
	router.On(realtime.EventAnswerSubmitted, forward)

	logrus.WithField("topic", topic).Debug("Hub: room event subscription open")
	router.Pump(ctx, sub)
}

func (h *Hub) watchChanges(ctx context.Context, topic string, changes <-chan changefeed.Change, stop func(), resync bool) {
	defer stop()
	for {
		select {
		case <-ctx.Done():
			return
		case c, ok := <-changes:
			if !ok {
				return
			}
			h.broadcast(topic, Envelope{Type: OutChange, Data: ChangeHint{Table: c.Table, Op: c.Op}})
			if resync {
				h.syncTopic(topic)
			}
		}
	}
}

// broadcast sends env to every client on topic.
func (h *Hub) broadcast(topic string, env Envelope) {
	for _, c := range h.clientsOf(topic) {
		c.Push(env)
	}
}

func (h *Hub) syncTopic(topic string) {
	for _, c := range h.clientsOf(topic) {
		if c.orch != nil {
			h.syncClient(c)
		}
	}
}

func (h *Hub) syncClient(c *Client) {
	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()
	if err := c.orch.Sync(ctx); err != nil && !errors.Is(err, orchestrator.ErrClosed) {
		c.logger().WithError(err).Warn("Hub: resync failed")
		c.pushError(err)
	}
}

func (h *Hub) clientsOf(topic string) []*Client {
	h.topicsMu.RLock()
	defer h.topicsMu.RUnlock()
	clients := make([]*Client, 0, len(h.topics[topic]))
	for c := range h.topics[topic] {
		clients = append(clients, c)
	}
	return clients
}

// handleCommand runs one inbound command off the hub loop.
func (h *Hub) handleCommand(msg HubMessage) {
	c := msg.Client
	if c == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()
	logCtx := c.logger().WithField("operation", "handleCommand")

	cmd, err := decodeCommand(msg.RawData)
	if err != nil {
		logCtx.WithError(err).Debug("Malformed command")
		c.pushError(errors.New("malformed command"))
		return
	}

	switch cmd.Type {
	case "heartbeat":
		err = h.presence.Heartbeat(ctx, c.session)
	case "sync":
		if c.orch == nil {
			err = errNotInRoom
			break
		}
		err = c.orch.Sync(ctx)
	case "select":
		if c.orch == nil {
			err = errNotInRoom
			break
		}
		err = c.orch.Select(ctx, cmd.QuestionID)
	case "answer":
		if c.orch == nil {
			err = errNotInRoom
			break
		}
		if cmd.Answer == nil {
			err = errors.New("answer is required")
			break
		}
		var res *domain.AnswerResult
		res, err = c.orch.Submit(ctx, *cmd.Answer)
		if res != nil {
			c.Push(Envelope{Type: OutAnswerResult, Data: res})
		}
	default:
		err = errors.New("unknown command type: " + cmd.Type)
	}
	if err != nil {
		logCtx.WithError(err).WithField("command", cmd.Type).Debug("Command rejected")
		c.pushError(err)
	}
}

// QueueMessage hands msg to the hub loop without blocking. It reports false when
// the queue is full.
func (h *Hub) QueueMessage(msg HubMessage) bool {
	select {
	case h.messageChan <- msg:
		return true
	default:
		logrus.WithFields(logrus.Fields{
			"message_type": msg.Type,
			"topic":        msg.Topic,
			"user_id":      msg.UserID,
		}).Warn("Hub message channel full, dropping message")
		return false
	}
}

// ActiveTopics lists topics with at least one client, sorted.
func (h *Hub) ActiveTopics() []string {
	h.topicsMu.RLock()
	defer h.topicsMu.RUnlock()
	topics := make([]string, 0, len(h.topics))
	for t := range h.topics {
		topics = append(topics, t)
	}
	sort.Strings(topics)
	return topics
}

// StopAllSubscriptions closes every upstream subscription; used on shutdown.
func (h *Hub) StopAllSubscriptions() {
	h.topicsMu.Lock()
	defer h.topicsMu.Unlock()
	for topic, cancel := range h.watches {
		cancel()
		delete(h.watches, topic)
	}
	logrus.Info("Hub: all upstream subscriptions stopped")
}
