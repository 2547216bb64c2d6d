package chat

// Handler processes one inbound frame kind. Handlers run on the owning
// connection's read goroutine; errors they return are logged at the
// connection boundary and never tear down other connections.
type Handler interface {
	Kind() string
	Handle(ctx *Context, f *Frame, c *Client) error
}

// Context hands the server to handlers living outside this package.
type Context struct {
	S *Server
}

type Dispatcher struct {
	handlers map[string]Handler
}

func NewDispatcher() *Dispatcher {
	return &Dispatcher{handlers: make(map[string]Handler)}
}

func (d *Dispatcher) Register(h Handler) { d.handlers[h.Kind()] = h }

// Get returns the handler for a kind, nil for unknown kinds (the read
// loop ignores those).
func (d *Dispatcher) Get(kind string) Handler {
	return d.handlers[kind]
}
