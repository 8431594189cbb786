package realtime

import (
	"errors"
	"net/http"
)

// Streams junta Hub y Bridge para que los handlers de dominio abran un stream en una línea.
type Streams struct {
	Hub    *Hub
	Bridge *Bridge
}

func NewStreams(hub *Hub, bridge *Bridge) *Streams {
	return &Streams{Hub: hub, Bridge: bridge}
}

// Serve suscribe al request en topic#view y lo sirve por WebSocket hasta que alguno corta.
func (s *Streams) Serve(w http.ResponseWriter, r *http.Request, topic, view string, load Loader) {
	if s == nil || s.Hub == nil || s.Bridge == nil {
		http.Error(w, "streams disabled", http.StatusNotImplemented)
		return
	}
	sub, err := s.Hub.Subscribe(r.Context(), topic, view, load)
	if err != nil {
		if errors.Is(err, ErrHubClosed) {
			http.Error(w, "shutting down", http.StatusServiceUnavailable)
			return
		}
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	s.Bridge.Serve(w, r, sub)
}

// ServeSource sirve una Source armada por el caller (ej. un feed paginado).
func (s *Streams) ServeSource(w http.ResponseWriter, r *http.Request, src Source) {
	if s == nil || s.Bridge == nil {
		src.Close()
		http.Error(w, "streams disabled", http.StatusNotImplemented)
		return
	}
	s.Bridge.Serve(w, r, src)
}

func (s *Streams) Enabled() bool {
	return s != nil && s.Hub != nil && s.Bridge != nil
}
