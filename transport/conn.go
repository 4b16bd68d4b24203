package transport

import (
	"bufio"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net"
	"runtime"
	"sync"
	"time"

	"github.com/scylladb/gocql-native/frame"
	"github.com/scylladb/gocql-native/frame/request"
	"github.com/scylladb/gocql-native/frame/response"
	"github.com/scylladb/gocql-native/metrics"
	"go.uber.org/atomic"
)

// connState is the connection's position in the state machine of spec.md
// §4.1: connecting -> startup -> ready, with defunct/closed as terminal
// states reachable from anywhere.
type connState int32

const (
	stateConnecting connState = iota
	stateStartup
	stateReady
	stateDefunct
	stateClosed
)

type wireRequest struct {
	frame.Request
	StreamID        frame.StreamID
	Compress        bool
	Tracing         bool
	ResponseHandler ResponseHandler
}

type connWriter struct {
	conn       io.Writer
	buf        frame.Buffer
	requestCh  chan wireRequest
	compressor Compressor
	version    frame.Version
}

func (c *connWriter) submit(r wireRequest) {
	c.requestCh <- r
}

func (c *connWriter) loop() {
	runtime.LockOSThread()

	for r := range c.requestCh {
		if err := c.send(r); err != nil {
			r.ResponseHandler <- connResponse{Err: fmt.Errorf("send: %w", err)}
		}
	}
}

func (c *connWriter) send(r wireRequest) error {
	var body frame.Buffer
	r.WriteTo(&body)
	if err := body.Error(); err != nil {
		return fmt.Errorf("encode body: %w", err)
	}
	payload := body.Bytes()

	flags := frame.HeaderFlags(0)
	if r.Compress && c.compressor != nil && len(payload) > 0 {
		compressed, err := c.compressor.Compress(payload)
		if err != nil {
			return fmt.Errorf("compress: %w", err)
		}
		payload = compressed
		flags |= frame.FlagCompression
	}
	if r.Tracing {
		flags |= frame.FlagTracing
	}

	c.buf.Reset()
	h := frame.Header{
		Version:  c.version,
		Flags:    flags,
		StreamID: r.StreamID,
		OpCode:   r.OpCode(),
	}
	h.WriteTo(&c.buf)
	if err := c.buf.Error(); err != nil {
		return fmt.Errorf("encode header: %w", err)
	}
	c.buf.Write(payload)
	c.buf.PatchInt(5, int32(len(payload)))

	if _, err := frame.CopyBuffer(&c.buf, c.conn); err != nil {
		return err
	}

	return nil
}

type connReader struct {
	conn *bufio.Reader
	buf  frame.Buffer

	compressor Compressor

	h map[frame.StreamID]ResponseHandler
	s streamIDAllocator
	// mu guards h.
	mu sync.Mutex

	onDefunct func(error)
	eventCh   chan *response.Event

	// lastActivity is the UnixNano timestamp of the most recently
	// completed read, used by the heartbeat loop to detect an idle
	// connection (spec.md §4.1 "Heartbeat").
	lastActivity atomic.Int64
}

func (c *connReader) touch() {
	c.lastActivity.Store(time.Now().UnixNano())
}

func (c *connReader) idleSince() time.Duration {
	return time.Since(time.Unix(0, c.lastActivity.Load()))
}

func (c *connReader) setHandler(h ResponseHandler) (frame.StreamID, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	streamID, err := c.s.Alloc()
	if err != nil {
		return 0, fmt.Errorf("stream ID alloc: %w", err)
	}
	c.h[streamID] = h
	return streamID, nil
}

func (c *connReader) freeHandler(streamID frame.StreamID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.s.Free(streamID)
	delete(c.h, streamID)
}

func (c *connReader) handler(streamID frame.StreamID) ResponseHandler {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.h[streamID]
}

func (c *connReader) events() chan *response.Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.eventCh
}

func (c *connReader) inFlight() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.s.InFlight()
}

func (c *connReader) drainHandlers(err error) {
	c.mu.Lock()
	handlers := make([]ResponseHandler, 0, len(c.h))
	for _, h := range c.h {
		handlers = append(handlers, h)
	}
	c.h = make(map[frame.StreamID]ResponseHandler)
	c.mu.Unlock()

	for _, h := range handlers {
		h <- connResponse{Err: err}
	}
}

func (c *connReader) loop() {
	runtime.LockOSThread()

	for {
		resp := c.recv()
		if resp.Err != nil {
			if c.onDefunct != nil {
				c.onDefunct(resp.Err)
			}
			c.drainHandlers(resp.Err)
			return
		}

		if h := c.handler(resp.Header.StreamID); h != nil {
			h <- resp
		} else if ev, ok := resp.Response.(*response.Event); ok {
			if ch := c.events(); ch != nil {
				select {
				case ch <- ev:
				default:
					// A slow or absent subscriber must never stall the
					// reader loop; the control connection is expected to
					// drain this channel promptly (spec.md §4.6).
				}
			}
		}
	}
}

func (c *connReader) recv() connResponse {
	c.buf.Reset()

	var r connResponse

	if _, err := io.CopyN(frame.BufferWriter(&c.buf), c.conn, frame.HeaderSize); err != nil {
		r.Err = fmt.Errorf("read header: %w", err)
		return r
	}
	r.Header = frame.ParseHeader(&c.buf)
	if err := c.buf.Error(); err != nil {
		r.Err = fmt.Errorf("parse header: %w", err)
		return r
	}

	c.buf.Reset()
	if _, err := io.CopyN(frame.BufferWriter(&c.buf), c.conn, int64(r.Header.Length)); err != nil {
		r.Err = fmt.Errorf("read body: %w", err)
		return r
	}

	readBuf := &c.buf
	if r.Header.Flags&frame.FlagCompression != 0 {
		if c.compressor == nil {
			r.Err = fmt.Errorf("received compressed frame with no negotiated compressor")
			return r
		}
		decompressed, err := c.compressor.Decompress(c.buf.Bytes())
		if err != nil {
			r.Err = fmt.Errorf("decompress: %w", err)
			return r
		}
		decoded := frame.NewBuffer(decompressed)
		readBuf = &decoded
	}

	resp, err := response.Parse(r.Header.OpCode, readBuf)
	if err != nil {
		r.Err = fmt.Errorf("parse body: %w", err)
		return r
	}
	r.Response = resp
	c.touch()
	return r
}

// Conn is one CQL binary-protocol connection: a writer goroutine, a reader
// goroutine and the shared stream-id table between them (spec.md §4.1).
// A Conn is either ready for requests or defunct; callers observe this via
// IsClosed before routing a request to it.
type Conn struct {
	conn  net.Conn
	w     connWriter
	r     connReader
	state atomicConnState
	cfg   ConnConfig

	keyspace string

	closeOnce sync.Once
	closed    chan struct{}
	closeErr  error
	closeMu   sync.Mutex
}

type atomicConnState struct {
	mu sync.Mutex
	v  connState
}

func (s *atomicConnState) Load() connState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.v
}

func (s *atomicConnState) Store(v connState) {
	s.mu.Lock()
	s.v = v
	s.mu.Unlock()
}

// ConnConfig bundles everything needed to dial and initialize a connection:
// timeouts, TLS, authentication and compression negotiation (spec.md §4.1,
// §4.10-4.11).
type ConnConfig struct {
	TCPNoDelay  bool
	Timeout     time.Duration
	TLS         *TLSConfig
	Auth        AuthProvider
	Compression bool
	Keyspace    string
	DefaultConsistency frame.Consistency

	// RequestTimeout bounds every individual request sent on a connection
	// built from this config, unless the caller's ctx already carries an
	// earlier deadline (spec.md §2 component 6 "a per-request timer", §5
	// "Request timeout"). Zero disables the default and leaves requests
	// bound only by the caller's ctx.
	RequestTimeout time.Duration

	// HeartbeatInterval is how often an idle connection is probed with an
	// OPTIONS request to detect a half-open socket (spec.md §4.1
	// "Heartbeat"). Zero disables heartbeating.
	HeartbeatInterval time.Duration

	// IdleTimeout is how long a connection may go without any successful
	// read before the heartbeat loop declares it defunct outright, without
	// attempting one more OPTIONS probe. Zero disables the idle check
	// (HeartbeatInterval's own OPTIONS failure is still fatal).
	IdleTimeout time.Duration

	// Metrics receives connection-count, latency and timeout observations
	// for every connection built from this config (spec.md §2 component
	// 16). Nil is valid; every Metrics method on a nil receiver is a no-op.
	Metrics *metrics.Metrics
}

const (
	requestChanSize = 1024
	ioBufferSize    = 8192
)

// DefaultConnConfig returns the connection configuration a Session uses
// when the caller hasn't overridden it: a 10 second dial/handshake
// timeout, no TLS, no authentication, compression negotiated opportunistically
// against whatever the server advertises, and keyspace pinned to keyspace.
func DefaultConnConfig(keyspace string) ConnConfig {
	return ConnConfig{
		TCPNoDelay:         true,
		Timeout:            10 * time.Second,
		Compression:        true,
		Keyspace:           keyspace,
		DefaultConsistency: frame.QUORUM,
		RequestTimeout:     10 * time.Second,
		HeartbeatInterval:  30 * time.Second,
		IdleTimeout:        90 * time.Second,
	}
}

// OpenConn dials addr, performs the CQL startup handshake (OPTIONS,
// STARTUP, optional AUTHENTICATE exchange and USE keyspace) and returns a
// Conn in the ready state (spec.md §4.1 table).
func OpenConn(ctx context.Context, addr string, cfg ConnConfig) (*Conn, error) {
	d := net.Dialer{Timeout: cfg.Timeout}

	var conn net.Conn
	var err error
	if cfg.TLS != nil {
		var tlsConf *tls.Config
		tlsConf, err = cfg.TLS.Build(hostFromAddr(addr))
		if err != nil {
			return nil, fmt.Errorf("building TLS config: %w", err)
		}
		conn, err = tls.DialWithDialer(&d, "tcp", addr, tlsConf)
	} else {
		conn, err = d.DialContext(ctx, "tcp", addr)
	}
	if err != nil {
		return nil, fmt.Errorf("dialing %s: %w", addr, err)
	}

	if tcpConn, ok := conn.(*net.TCPConn); ok {
		if err := tcpConn.SetNoDelay(cfg.TCPNoDelay); err != nil {
			return nil, fmt.Errorf("setting TCP no delay option: %w", err)
		}
	}

	c := wrapConn(conn, frame.CQLv4, cfg)
	if err := c.startup(ctx, addr, cfg); err != nil {
		c.Close()
		return nil, err
	}

	if cfg.HeartbeatInterval > 0 {
		go c.heartbeatLoop(cfg.HeartbeatInterval, cfg.IdleTimeout)
	}

	return c, nil
}

func hostFromAddr(addr string) string {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return addr
	}
	return host
}

func wrapConn(conn net.Conn, version frame.Version, cfg ConnConfig) *Conn {
	c := &Conn{
		conn:   conn,
		cfg:    cfg,
		closed: make(chan struct{}),
		w: connWriter{
			conn:      conn,
			requestCh: make(chan wireRequest, requestChanSize),
			version:   version,
		},
		r: connReader{
			conn: bufio.NewReaderSize(conn, ioBufferSize),
			h:    make(map[frame.StreamID]ResponseHandler),
			s:    newStreamIDAllocator(version),
		},
	}
	c.r.touch()
	c.state.Store(stateConnecting)
	c.r.onDefunct = func(err error) {
		c.markDefunct(err)
	}
	go c.w.loop()
	go c.r.loop()

	return c
}

// heartbeatLoop probes an otherwise-quiet connection with an OPTIONS
// request every interval, and declares the connection defunct outright if
// idleTimeout elapses with no successful read at all (spec.md §4.1
// "Heartbeat"). It exits once the connection closes.
func (c *Conn) heartbeatLoop(interval, idleTimeout time.Duration) {
	t := time.NewTicker(interval)
	defer t.Stop()

	for {
		select {
		case <-c.closed:
			return
		case <-t.C:
			idle := c.r.idleSince()
			if idleTimeout > 0 && idle > idleTimeout {
				c.markDefunct(fmt.Errorf("connection idle for %s, exceeding idle timeout %s", idle, idleTimeout))
				return
			}
			if idle < interval {
				continue
			}

			ctx, cancel := context.WithTimeout(context.Background(), interval)
			_, err := c.sendRequest(ctx, &request.Options{}, false, false)
			cancel()
			if err != nil {
				c.markDefunct(fmt.Errorf("heartbeat OPTIONS failed: %w", err))
				return
			}
		}
	}
}

func (c *Conn) markDefunct(err error) {
	c.closeMu.Lock()
	if c.closeErr == nil {
		c.closeErr = err
	}
	c.closeMu.Unlock()
	c.state.Store(stateDefunct)
	c.closeOnce.Do(func() { close(c.closed) })
}

// startup runs the OPTIONS/STARTUP negotiation described in spec.md §4.1:
// it learns the server's supported compressions, optionally negotiates one,
// completes SASL authentication if challenged, and issues USE <keyspace>.
func (c *Conn) startup(ctx context.Context, addr string, cfg ConnConfig) error {
	c.state.Store(stateStartup)

	supported, err := c.sendRequest(ctx, &request.Options{}, false, false)
	if err != nil {
		var ce response.CodedError
		if errors.As(err, &ce) && ce.Code() == response.ErrProtocolError {
			return newHostError(KindInvalidProtocol, addr, "OPTIONS rejected with a protocol error", err)
		}
		return fmt.Errorf("OPTIONS: %w", err)
	}
	var compressorName string
	if sup, ok := supported.(*response.Supported); ok && cfg.Compression {
		if comp := negotiateCompressor(sup.SupportsCompression("lz4"), sup.SupportsCompression("snappy"), nil); comp != nil {
			compressorName = comp.Name()
			c.w.compressor = comp
			c.r.compressor = comp
		}
	}

	options := frame.StartupOptions{request.CQLVersionOption: "3.0.0"}
	if compressorName != "" {
		options[request.CompressionOption] = compressorName
	}

	res, err := c.sendRequest(ctx, &request.Startup{Options: options}, false, false)
	if err != nil {
		return fmt.Errorf("STARTUP: %w", err)
	}

	switch r := res.(type) {
	case *response.Ready:
		// fallthrough to keyspace selection
	case *response.Authenticate:
		if cfg.Auth == nil {
			return fmt.Errorf("server requires authentication (class %s) but no authenticator configured", r.Class)
		}
		auth, err := cfg.Auth(addr)
		if err != nil {
			return fmt.Errorf("building authenticator: %w", err)
		}
		if err := c.authenticate(ctx, r.Class, auth); err != nil {
			return newHostError(KindAuth, addr, "authenticating", err)
		}
	default:
		return fmt.Errorf("unexpected response to STARTUP: %T", res)
	}

	if cfg.Keyspace != "" {
		if _, err := c.Query(ctx, Statement{Content: "USE " + cfg.Keyspace, Consistency: frame.ONE}, nil); err != nil {
			return fmt.Errorf("USE %s: %w", cfg.Keyspace, err)
		}
		c.keyspace = cfg.Keyspace
	}

	c.state.Store(stateReady)
	return nil
}

func (c *Conn) authenticate(ctx context.Context, authClass string, auth Authenticator) error {
	token, err := auth.InitialResponse(authClass)
	if err != nil {
		return err
	}

	for {
		res, err := c.sendRequest(ctx, &request.AuthResponse{Token: token}, false, false)
		if err != nil {
			return err
		}
		switch r := res.(type) {
		case *response.AuthSuccess:
			return auth.Success(r.Token)
		case *response.AuthChallenge:
			token, err = auth.EvaluateChallenge(r.Token)
			if err != nil {
				return err
			}
		default:
			return fmt.Errorf("unexpected response during authentication: %T", res)
		}
	}
}

// IsClosed reports whether the connection has been closed, locally or by
// an unrecoverable read/write error (spec.md §4.1 "defunct").
func (c *Conn) IsClosed() bool {
	select {
	case <-c.closed:
		return true
	default:
		return false
	}
}

// Close tears the connection down and fails every in-flight request
// exactly once (spec.md §5 "Ordering").
func (c *Conn) Close() error {
	c.closeOnce.Do(func() {
		close(c.closed)
	})
	c.state.Store(stateClosed)
	err := c.conn.Close()
	close(c.w.requestCh)
	c.r.drainHandlers(fmt.Errorf("connection closed"))
	return err
}

// withRequestTimeout bounds ctx by c.cfg.RequestTimeout, unless the caller
// already supplied an earlier deadline or RequestTimeout is disabled
// (spec.md §2 component 6 "a per-request timer", §5 "Request timeout").
func (c *Conn) withRequestTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.cfg.RequestTimeout <= 0 {
		return ctx, func() {}
	}
	if dl, ok := ctx.Deadline(); ok && time.Until(dl) <= c.cfg.RequestTimeout {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, c.cfg.RequestTimeout)
}

func (c *Conn) sendRequest(ctx context.Context, req frame.Request, compress, tracing bool) (frame.Response, error) {
	if c.IsClosed() {
		return nil, fmt.Errorf("connection is closed")
	}

	ctx, cancel := c.withRequestTimeout(ctx)
	defer cancel()

	h := make(ResponseHandler, 1)

	streamID, err := c.r.setHandler(h)
	if err != nil {
		return nil, fmt.Errorf("set handler: %w", err)
	}

	r := wireRequest{
		Request:         req,
		StreamID:        streamID,
		Compress:        compress,
		Tracing:         tracing,
		ResponseHandler: h,
	}

	start := time.Now()
	defer func() { c.cfg.Metrics.ObserveRequest(time.Since(start), err) }()

	select {
	case c.w.requestCh <- r:
	case <-c.closed:
		c.r.freeHandler(streamID)
		err = fmt.Errorf("connection closed before request could be sent")
		return nil, err
	}

	select {
	case resp := <-h:
		c.r.freeHandler(streamID)
		if resp.Err != nil {
			err = resp.Err
			return nil, err
		}
		if ce, ok := resp.Response.(response.CodedError); ok {
			err = ce
			return nil, err
		}
		return resp.Response, nil
	case <-ctx.Done():
		c.r.freeHandler(streamID)
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			c.cfg.Metrics.ObserveTimeout()
			err = &DriverError{Kind: KindRequestTimedOut, Message: "request timed out", Cause: ctx.Err()}
			return nil, err
		}
		err = &DriverError{Kind: KindCanceled, Message: "request canceled", Cause: ctx.Err()}
		return nil, err
	case <-c.closed:
		c.r.freeHandler(streamID)
		err = fmt.Errorf("connection closed while awaiting response")
		return nil, err
	}
}

// InFlight reports the number of streams currently awaiting a response,
// used by pool selection to find the least busy connection (spec.md §4.2).
func (c *Conn) InFlight() int {
	return c.r.inFlight()
}

// Query executes content as a simple CQL statement (spec.md §4.12).
func (c *Conn) Query(ctx context.Context, s Statement, values []frame.Value) (QueryResult, error) {
	params := request.QueryParams{
		Consistency: s.Consistency,
		PageSize:    s.PageSize,
		PagingState: s.PagingState,
		Values:      values,
		Names:       s.Names,
	}
	res, err := c.sendRequest(ctx, &request.Query{Content: s.Content, Params: params}, s.Compression, false)
	if err != nil {
		return QueryResult{}, err
	}
	return resultToQueryResult(res)
}

// Prepare registers s.Content with the server and returns a Statement with
// its prepared id and bind metadata populated (spec.md §4.12).
func (c *Conn) Prepare(ctx context.Context, s Statement) (Statement, error) {
	res, err := c.sendRequest(ctx, &request.Prepare{Content: s.Content}, false, false)
	if err != nil {
		return Statement{}, err
	}
	result, ok := res.(*response.Result)
	if !ok || result.Kind != response.ResultPrepared {
		return Statement{}, fmt.Errorf("unexpected response to PREPARE: %T", res)
	}
	prepared := &result.Prepared

	out := s
	out.ID = prepared.ID
	out.Metadata = &prepared.Metadata
	out.Values = make([]frame.Value, len(prepared.Metadata.Columns))
	for i := range prepared.Metadata.Columns {
		out.Values[i].Type = &prepared.Metadata.Columns[i].Type
	}
	out.PkIndexes = make([]int32, len(prepared.Metadata.PkIndexes))
	for i, idx := range prepared.Metadata.PkIndexes {
		out.PkIndexes[i] = int32(idx)
	}
	out.PkCnt = int32(len(prepared.Metadata.PkIndexes))
	return out, nil
}

// Execute runs a previously prepared statement (spec.md §4.12).
func (c *Conn) Execute(ctx context.Context, s Statement) (QueryResult, error) {
	params := request.QueryParams{
		Consistency: s.Consistency,
		PageSize:    s.PageSize,
		PagingState: s.PagingState,
		Values:      s.Values,
		Names:       s.Names,
	}
	res, err := c.sendRequest(ctx, &request.Execute{ID: s.ID, Params: params}, s.Compression, false)
	if err != nil {
		return QueryResult{}, err
	}
	return resultToQueryResult(res)
}

// Batch runs a BATCH request made up of b's sub-statements, all at one
// consistency level (spec.md §4.12, added).
func (c *Conn) Batch(ctx context.Context, b *request.Batch) (QueryResult, error) {
	res, err := c.sendRequest(ctx, b, false, false)
	if err != nil {
		return QueryResult{}, err
	}
	return resultToQueryResult(res)
}

func resultToQueryResult(res frame.Response) (QueryResult, error) {
	result, ok := res.(*response.Result)
	if !ok || result.Kind != response.ResultRows {
		// VOID, SET_KEYSPACE and SCHEMA_CHANGE results carry no rows.
		return QueryResult{}, nil
	}
	r := &result.Rows
	return QueryResult{
		Rows:         r.Rows,
		Columns:      r.Metadata.Columns,
		PagingState:  r.Metadata.PagingState,
		HasMorePages: result.HasMorePages(),
	}, nil
}

// Register subscribes this connection to the named server events,
// dedicating it to the control connection's event listener (spec.md §4.6).
// Events pushed afterwards are delivered on the channel Events returns.
func (c *Conn) Register(ctx context.Context, events frame.StringList) error {
	c.r.mu.Lock()
	if c.r.eventCh == nil {
		c.r.eventCh = make(chan *response.Event, 64)
	}
	c.r.mu.Unlock()

	_, err := c.sendRequest(ctx, &request.Register{EventTypes: events}, false, false)
	return err
}

// Events returns the channel server-pushed EVENT frames are delivered on.
// It is nil until Register has been called at least once.
func (c *Conn) Events() <-chan *response.Event {
	c.r.mu.Lock()
	defer c.r.mu.Unlock()
	return c.r.eventCh
}
