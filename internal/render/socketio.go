package render

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/specialistvlad/healthmesh/internal/graph"
	"github.com/zishang520/socket.io/v2/socket"
)

// Events emitted to browser widgets.
const (
	EventReset       = "graph:reset"
	EventNodesUpsert = "nodes:upsert"
	EventNodesRemove = "nodes:remove"
	EventEdgesUpsert = "edges:upsert"
	EventEdgesRemove = "edges:remove"
	EventFocus       = "focus"
	EventFit         = "fit"

	// EventSelect is sent by widgets with the ids the user selected.
	EventSelect = "select"
)

// SocketIO broadcasts drawing operations to every connected widget. New
// widgets receive the full dataset of the backing Memory on connect.
type SocketIO struct {
	server *socket.Server
	memory *Memory
	emit   func(event string, args ...any)
	logger *slog.Logger
}

var _ graph.Renderer = (*SocketIO)(nil)

// NewSocketIO starts a socket.io server backed by memory. memory must be
// applied before the returned renderer so late joiners see a dataset that
// already contains the broadcast change.
func NewSocketIO(memory *Memory, logger *slog.Logger) *SocketIO {
	srv := socket.NewServer(nil, nil)
	s := &SocketIO{
		server: srv,
		memory: memory,
		logger: logger,
		emit: func(event string, args ...any) {
			srv.Emit(event, args...)
		},
	}
	srv.On("connection", func(clients ...any) {
		client, ok := clients[0].(*socket.Socket)
		if !ok {
			return
		}
		s.logger.Debug("Widget connected.", "sid", client.Id())
		client.Emit(EventReset, memory.Dataset())
		client.On(EventSelect, func(args ...any) {
			s.onSelect(args)
		})
	})
	return s
}

// newSocketIOWithEmitter is used by tests that do not need a live server.
func newSocketIOWithEmitter(memory *Memory, emit func(string, ...any)) *SocketIO {
	return &SocketIO{memory: memory, emit: emit, logger: slog.Default()}
}

// Handler serves the socket.io endpoint.
func (s *SocketIO) Handler() http.Handler {
	return s.server.ServeHandler(nil)
}

// Close disconnects every widget.
func (s *SocketIO) Close() {
	if s.server != nil {
		s.server.Close(nil)
	}
}

func (s *SocketIO) AddOrUpdateNodes(nodes []graph.VisualNode) { s.emit(EventNodesUpsert, nodes) }
func (s *SocketIO) RemoveNodes(ids []string)                  { s.emit(EventNodesRemove, ids) }
func (s *SocketIO) AddOrUpdateEdges(edges []graph.VisualEdge) { s.emit(EventEdgesUpsert, edges) }
func (s *SocketIO) RemoveEdges(ids []string)                  { s.emit(EventEdgesRemove, ids) }
func (s *SocketIO) Focus(id string)                           { s.emit(EventFocus, id) }
func (s *SocketIO) Fit()                                      { s.emit(EventFit) }

// SelectedIDs returns the selection last reported by any widget.
func (s *SocketIO) SelectedIDs() []string {
	return s.memory.SelectedIDs()
}

func (s *SocketIO) onSelect(args []any) {
	if len(args) == 0 {
		return
	}
	ids, err := selection(args[0])
	if err != nil {
		s.logger.Debug("Ignoring malformed selection.", "error", err)
		return
	}
	s.memory.Select(ids)
}

// selection converts a decoded socket.io argument into a list of ids.
func selection(arg any) ([]string, error) {
	var raw []byte
	switch v := arg.(type) {
	case []string:
		return v, nil
	case string:
		raw = []byte(v)
	case []byte:
		raw = v
	default:
		b, err := json.Marshal(v)
		if err != nil {
			return nil, err
		}
		raw = b
	}
	var ids []string
	if err := json.Unmarshal(raw, &ids); err != nil {
		return nil, err
	}
	return ids, nil
}
