package realtime

import (
	"context"
	"errors"
	"sync"

	"github.com/ThreeDotsLabs/watermill/message"

	"pet-diary/internal/platform/logger"
	"pet-diary/internal/platform/metrics"
)

var ErrHubClosed = errors.New("realtime hub closed")

// Snapshot es el estado completo de una vista en un momento dado.
type Snapshot struct {
	Topic   string `json:"-"`
	View    string `json:"-"`
	Version uint64 `json:"version"`
	Data    any    `json:"data"`
	Err     error  `json:"-"`
}

// Loader lee el estado actual de la vista desde el store.
type Loader func(ctx context.Context) (any, error)

// Hub es el gestor de suscripciones: un canal por topic#view, compartido por
// todos sus listeners. El primer listener lo abre y el último lo cierra.
type Hub struct {
	sub message.Subscriber
	log logger.Logger

	base   context.Context
	cancel context.CancelFunc

	mu       sync.Mutex
	channels map[string]*channel
	closed   bool
}

func NewHub(sub message.Subscriber, log logger.Logger) *Hub {
	if log == nil {
		log = logger.Nop()
	}
	base, cancel := context.WithCancel(context.Background())
	return &Hub{
		sub:      sub,
		log:      log,
		base:     base,
		cancel:   cancel,
		channels: map[string]*channel{},
	}
}

// Serve bloquea hasta que ctx termina y entonces cierra todos los canales (suture.Service).
func (h *Hub) Serve(ctx context.Context) error {
	<-ctx.Done()
	h.Shutdown()
	return ctx.Err()
}

func (h *Hub) String() string { return "realtime-hub" }

// Shutdown cierra todos los canales y sus suscripciones. Es idempotente.
func (h *Hub) Shutdown() {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return
	}
	h.closed = true
	chans := make([]*channel, 0, len(h.channels))
	for key, c := range h.channels {
		chans = append(chans, c)
		delete(h.channels, key)
	}
	h.mu.Unlock()

	h.cancel()
	for _, c := range chans {
		c.stop()
		<-c.done
	}
}

// Stats devuelve cantidad de canales abiertos y listeners totales.
func (h *Hub) Stats() (channels, listeners int) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for _, c := range h.channels {
		channels++
		c.mu.Lock()
		listeners += len(c.listeners)
		c.mu.Unlock()
	}
	return channels, listeners
}

// Subscribe registra un listener en topic#view. El listener recibe el último
// snapshot disponible apenas exista y después cada cambio; si no consume a
// tiempo solo conserva el más reciente. Cancelar ctx equivale a Close.
func (h *Hub) Subscribe(ctx context.Context, topic, view string, load Loader) (*Subscription, error) {
	key := topic + "#" + view

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return nil, ErrHubClosed
	}

	c, ok := h.channels[key]
	if !ok {
		c = newChannel(h.base, key, topic, view, load)
		h.channels[key] = c
		metrics.RealtimeChannels.Inc()
		go h.run(c)
	}

	s := &Subscription{
		hub:  h,
		c:    c,
		ch:   make(chan Snapshot, 1),
		done: make(chan struct{}),
	}
	c.add(s)
	h.mu.Unlock()

	metrics.RealtimeListeners.Inc()

	go func() {
		select {
		case <-ctx.Done():
			s.Close()
		case <-s.done:
		}
	}()

	return s, nil
}

func (h *Hub) unsubscribe(s *Subscription) {
	h.mu.Lock()
	last := s.c.remove(s)
	if last {
		if h.channels[s.c.key] == s.c {
			delete(h.channels, s.c.key)
		}
	}
	h.mu.Unlock()

	metrics.RealtimeListeners.Dec()
	if last {
		s.c.stop()
	}
}

func (h *Hub) run(c *channel) {
	defer func() {
		h.mu.Lock()
		if h.channels[c.key] == c {
			delete(h.channels, c.key)
		}
		h.mu.Unlock()

		c.closeListeners()
		metrics.RealtimeChannels.Dec()
		close(c.done)
	}()

	// primero el subscribe y después la carga: ningún cambio queda entre medio
	msgs, err := h.sub.Subscribe(c.ctx, c.topic)
	if err != nil {
		h.log.Error("realtime: subscribe", map[string]any{"topic": c.topic, "error": err})
		c.broadcast(Snapshot{Topic: c.topic, View: c.view, Err: err})
		return
	}

	h.reload(c)

	for {
		select {
		case <-c.ctx.Done():
			return
		case msg, ok := <-msgs:
			if !ok {
				return
			}
			msg.Ack()

		drain:
			for {
				select {
				case m, ok := <-msgs:
					if !ok {
						return
					}
					m.Ack()
				default:
					break drain
				}
			}

			h.reload(c)
		}
	}
}

func (h *Hub) reload(c *channel) {
	data, err := c.load(c.ctx)
	if c.ctx.Err() != nil {
		return
	}
	if err != nil {
		h.log.Warn("realtime: load snapshot", map[string]any{"topic": c.topic, "view": c.view, "error": err})
	}
	c.version++
	c.broadcast(Snapshot{Topic: c.topic, View: c.view, Version: c.version, Data: data, Err: err})
}

type channel struct {
	key, topic, view string
	load             Loader

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}

	version uint64 // solo lo toca run

	mu        sync.Mutex
	listeners map[*Subscription]struct{}
	latest    *Snapshot
	finished  bool
}

func newChannel(base context.Context, key, topic, view string, load Loader) *channel {
	ctx, cancel := context.WithCancel(base)
	return &channel{
		key:       key,
		topic:     topic,
		view:      view,
		load:      load,
		ctx:       ctx,
		cancel:    cancel,
		done:      make(chan struct{}),
		listeners: map[*Subscription]struct{}{},
	}
}

func (c *channel) add(s *Subscription) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.finished {
		close(s.ch)
		return
	}
	c.listeners[s] = struct{}{}
	if c.latest != nil {
		Deliver(s.ch, *c.latest)
	}
}

// remove devuelve true si s era el último listener.
func (c *channel) remove(s *Subscription) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.listeners[s]; !ok {
		return false
	}
	delete(c.listeners, s)
	if !c.finished {
		close(s.ch)
	}
	return len(c.listeners) == 0
}

func (c *channel) broadcast(snap Snapshot) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.latest = &snap
	for s := range c.listeners {
		Deliver(s.ch, snap)
	}
}

func (c *channel) stop() {
	c.cancel()
}

func (c *channel) closeListeners() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.finished = true
	for s := range c.listeners {
		close(s.ch)
	}
}

// Deliver deja snap en ch (buffer de 1) reemplazando el pendiente si lo hay.
// Devuelve true si descartó un snapshot no leído.
func Deliver(ch chan Snapshot, snap Snapshot) bool {
	select {
	case ch <- snap:
		return false
	default:
	}

	replaced := false
	select {
	case <-ch:
		replaced = true
		metrics.RealtimeSnapshotsDropped.Inc()
	default:
	}

	select {
	case ch <- snap:
	default:
	}
	return replaced
}

// Subscription es un listener de un canal del Hub.
type Subscription struct {
	hub  *Hub
	c    *channel
	ch   chan Snapshot
	done chan struct{}
	once sync.Once
}

// Snapshots se cierra cuando la suscripción o el canal terminan.
func (s *Subscription) Snapshots() <-chan Snapshot { return s.ch }

func (s *Subscription) Close() {
	s.once.Do(func() {
		close(s.done)
		s.hub.unsubscribe(s)
	})
}
