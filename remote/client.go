package remote

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"sdprobe/logging"
	"sdprobe/sdruntime"
	"sdprobe/tensor"
)

// Defaults applied by NewClient.
const (
	DefaultDialTimeout = 10 * time.Second
	DefaultCloseWait   = 5 * time.Second

	// tensors carry whole latent batches and hook outputs
	maxMessageBytes = 256 << 20
)

// Config configures a Client.
type Config struct {
	// URL is the worker endpoint, ws:// or wss://.
	URL string

	// Token, when set, is sent as a bearer token on the upgrade request.
	Token string

	DialTimeout time.Duration

	// DType encodes tensors sent to the worker (hook replacements, decode
	// requests). Defaults to tensor.DTypeFloat32.
	DType string

	Logger *logging.Logger
}

// Client is an sdruntime.Backend backed by a remote worker. It keeps one
// connection and serializes exchanges on it, redialing after failures.
type Client struct {
	cfg    Config
	dialer *websocket.Dialer
	logger *logging.Logger

	mu   sync.Mutex
	conn *websocket.Conn
}

var _ sdruntime.Backend = (*Client)(nil)

// NewClient validates cfg. The connection is opened on first use.
func NewClient(cfg Config) (*Client, error) {
	u, err := url.Parse(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidURL, err)
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return nil, fmt.Errorf("%w: scheme %q (want ws or wss)", ErrInvalidURL, u.Scheme)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("%w: missing host", ErrInvalidURL)
	}

	if cfg.DialTimeout <= 0 {
		cfg.DialTimeout = DefaultDialTimeout
	}
	switch cfg.DType {
	case "":
		cfg.DType = tensor.DTypeFloat32
	case tensor.DTypeFloat32, tensor.DTypeFloat16:
	default:
		return nil, fmt.Errorf("%w: %q", tensor.ErrInvalidData, cfg.DType)
	}
	logger := cfg.Logger
	if logger == nil {
		logger = logging.NewNopLogger()
	}

	return &Client{
		cfg: cfg,
		dialer: &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: cfg.DialTimeout,
		},
		logger: logger.Named("remote"),
	}, nil
}

// Name identifies the backend in logs.
func (c *Client) Name() string {
	return "remote"
}

// AcceleratorAvailable asks the worker whether it has a GPU.
func (c *Client) AcceleratorAvailable(ctx context.Context) (bool, error) {
	var d DevicesData
	if err := c.call(ctx, MessageTypeDevices, nil, MessageTypeDevices, &d); err != nil {
		return false, err
	}
	return d.Accelerator, nil
}

// Load asks the worker to build a pipeline from spec.
func (c *Client) Load(ctx context.Context, spec sdruntime.LoadSpec) (sdruntime.Pipeline, error) {
	var l LoadedData
	start := time.Now()
	if err := c.call(ctx, MessageTypeLoad, spec, MessageTypeLoaded, &l); err != nil {
		return nil, err
	}
	if l.PipelineID == "" {
		return nil, fmt.Errorf("%w: loaded message without pipeline_id", ErrProtocol)
	}

	device := sdruntime.Device(l.Device)
	if device == "" {
		device = spec.Device
	}
	c.logger.Debug("worker loaded pipeline",
		zap.String("pipeline_id", l.PipelineID),
		zap.String("pretrained", spec.Pretrained),
		zap.Strings("positions", l.Positions),
		zap.Duration("elapsed", time.Since(start)),
	)
	return &pipeline{
		client:    c,
		id:        l.PipelineID,
		device:    device,
		positions: l.Positions,
		scaling:   l.VAEScalingFactor,
	}, nil
}

// Close drops the connection. Pipelines stay loaded on the worker until
// closed individually.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn == nil {
		return nil
	}
	deadline := time.Now().Add(DefaultCloseWait)
	_ = c.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline)
	err := c.conn.Close()
	c.conn = nil
	return err
}

// call runs one request/response exchange under the client lock.
func (c *Client) call(ctx context.Context, reqType string, req interface{}, want string, out interface{}) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	conn, err := c.connLocked(ctx)
	if err != nil {
		return err
	}
	return c.exchange(ctx, conn, reqType, req, want, out)
}

// exchange sends one request on conn and reads until the wanted reply.
// The caller must hold c.mu.
func (c *Client) exchange(ctx context.Context, conn *websocket.Conn, reqType string, req interface{}, want string, out interface{}) error {
	defer c.watch(ctx, conn)()

	if err := c.send(ctx, conn, reqType, req); err != nil {
		return err
	}

	m, err := c.recv(ctx, conn)
	if err != nil {
		return err
	}
	switch m.Type {
	case want:
		if out == nil {
			return nil
		}
		return m.Decode(out)
	case MessageTypeError:
		return workerError(m)
	default:
		c.dropLocked()
		return fmt.Errorf("%w: got %q, want %q", ErrProtocol, m.Type, want)
	}
}

// watch closes conn when ctx is done. The returned func stops watching and
// drops the connection if the watcher already fired.
func (c *Client) watch(ctx context.Context, conn *websocket.Conn) func() {
	stop := context.AfterFunc(ctx, func() { conn.Close() })
	return func() {
		if !stop() && c.conn == conn {
			c.dropLocked()
		}
	}
}

func (c *Client) connLocked(ctx context.Context) (*websocket.Conn, error) {
	if c.conn != nil {
		return c.conn, nil
	}

	header := http.Header{}
	if c.cfg.Token != "" {
		header.Set("Authorization", "Bearer "+c.cfg.Token)
	}

	dialCtx, cancel := context.WithTimeout(ctx, c.cfg.DialTimeout)
	defer cancel()

	conn, resp, err := c.dialer.DialContext(dialCtx, c.cfg.URL, header)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		if resp != nil && (resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden) {
			return nil, fmt.Errorf("%w: HTTP %d", ErrUnauthorized, resp.StatusCode)
		}
		return nil, fmt.Errorf("%w: dial %s: %v", ErrConnection, logging.RedactSensitiveData(c.cfg.URL), err)
	}
	conn.SetReadLimit(maxMessageBytes)

	c.logger.Info("connected to worker", zap.String("url", c.cfg.URL))
	c.conn = conn
	return conn, nil
}

func (c *Client) dropLocked() {
	if c.conn == nil {
		return
	}
	c.conn.Close()
	c.conn = nil
	c.logger.Debug("dropped worker connection")
}

func (c *Client) send(ctx context.Context, conn *websocket.Conn, msgType string, data interface{}) error {
	m, err := NewMessage(msgType, data)
	if err != nil {
		return err
	}
	if err := conn.WriteJSON(m); err != nil {
		return c.ioError(ctx, "write", err)
	}
	return nil
}

func (c *Client) recv(ctx context.Context, conn *websocket.Conn) (Message, error) {
	var m Message
	if err := conn.ReadJSON(&m); err != nil {
		return Message{}, c.ioError(ctx, "read", err)
	}
	return m, nil
}

// ioError drops the connection and prefers the context's error, since a
// cancelled call closes the socket underneath the reader.
func (c *Client) ioError(ctx context.Context, op string, err error) error {
	c.dropLocked()
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
		return fmt.Errorf("%w: worker closed the connection", ErrConnection)
	}
	return fmt.Errorf("%w: %s: %v", ErrConnection, op, err)
}

func workerError(m Message) error {
	var e ErrorData
	if err := m.Decode(&e); err != nil {
		return err
	}
	if e.Code != "" {
		return fmt.Errorf("%w: %s (%s)", ErrWorker, e.Message, e.Code)
	}
	return fmt.Errorf("%w: %s", ErrWorker, e.Message)
}
