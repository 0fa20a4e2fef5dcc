package gsweb

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/embeddedgo/gsat"
	"github.com/embeddedgo/gsat/gsnet"
)

const (
	// MaxRequest is the maximum size of a request (headers and body).
	MaxRequest = 1024

	// ChoiceQueueSize is the capacity of the client choice queue. The oldest
	// choice is overwritten when the queue is full.
	ChoiceQueueSize = 16

	DefaultPort = 80
	realm       = "gsat"
)

type Config struct {
	Port   uint16 // default 80
	NoAuth bool   // serve the page without the Device WebAuth credentials
	Logger *zap.Logger
}

type client struct {
	conn *gsnet.Conn
	buf  [MaxRequest]byte
	n    int
	resp []byte // response waiting for the UART
	sent bool
}

// Server is the provisioning web server. Like the gsat.Device it must be used
// from one goroutine.
type Server struct {
	dev     *gsat.Device
	page    *Page
	cfg     Config
	log     *zap.Logger
	ls      *gsnet.Listener
	clients []*client
	choices *gsat.Ring
}

// NewServer returns a server that serves page using the sockets of dev. Cfg
// may be nil.
func NewServer(dev *gsat.Device, page *Page, cfg *Config) *Server {
	srv := &Server{dev: dev, page: page, choices: gsat.NewRing(ChoiceQueueSize)}
	if cfg != nil {
		srv.cfg = *cfg
	}
	if srv.cfg.Port == 0 {
		srv.cfg.Port = DefaultPort
	}
	srv.log = srv.cfg.Logger
	if srv.log == nil {
		srv.log = dev.Logger()
	}
	srv.log = srv.log.Named("web")
	return srv
}

// Start starts the TCP server on the configured port. The page must contain
// at least one element.
func (srv *Server) Start(ctx context.Context) error {
	if len(srv.page.Elements) == 0 && !srv.page.Credentials {
		return ErrEmptyPage
	}
	if srv.ls != nil {
		return nil
	}
	ls, err := gsnet.Listen(ctx, srv.dev, "tcp", srv.cfg.Port)
	if err != nil {
		return err
	}
	srv.ls = ls
	srv.log.Info("web server started", zap.Stringer("addr", ls.Addr()),
		zap.Int("slot", ls.Slot()))
	return nil
}

// Stop closes all client connections and the server socket.
func (srv *Server) Stop() error {
	if srv.ls == nil {
		return ErrNotStarted
	}
	for _, c := range srv.clients {
		c.conn.Close()
	}
	srv.clients = nil
	err := srv.ls.Close()
	srv.ls = nil
	return err
}

// NextChoice returns the oldest client choice not read yet.
func (srv *Server) NextChoice() (byte, bool) {
	c, err := srv.choices.Pop()
	return c, err == nil
}

func (srv *Server) pushChoice(c byte) {
	if srv.choices.Len() == srv.choices.Cap() {
		srv.choices.Pop()
		srv.log.Warn("choice queue overflow")
	}
	srv.choices.Push(c)
}

// ProcessClientRequest performs one step of the server work: accepts waiting
// connections, collects the request bytes already received and answers the
// complete requests. It never waits for the clients so it should be called
// periodically.
func (srv *Server) ProcessClientRequest(ctx context.Context) error {
	if srv.ls == nil {
		return ErrNotStarted
	}
	for {
		conn, err := srv.ls.AcceptConn()
		if err == gsnet.ErrNoConn {
			break
		}
		if err != nil {
			return err
		}
		srv.log.Debug("client connected", zap.Stringer("remote", conn.RemoteAddr()))
		srv.clients = append(srv.clients, &client{conn: conn})
	}
	k := 0
	for _, c := range srv.clients {
		if srv.serve(ctx, c) {
			srv.clients[k] = c
			k++
		}
	}
	for i := k; i < len(srv.clients); i++ {
		srv.clients[i] = nil
	}
	srv.clients = srv.clients[:k]
	return nil
}

// serve reports whether c should be kept for the next step.
func (srv *Server) serve(ctx context.Context, c *client) bool {
	if c.resp != nil {
		return srv.respond(c)
	}
	n, err := c.conn.ReadAvailable(c.buf[c.n:])
	c.n += n
	if err != nil {
		if err != io.EOF {
			srv.log.Warn("read failed", zap.Error(err))
		}
		c.conn.Close()
		return false
	}
	req, complete, err := parseRequest(c.buf[:c.n])
	if !complete && err == nil {
		if c.n < len(c.buf) {
			return true
		}
		err = errors.New("request too large")
	}
	if !srv.discardRest(c) {
		return true
	}
	var resp bytes.Buffer
	if err != nil {
		srv.log.Debug("bad request", zap.Error(err))
		writeResponse(&resp, http.StatusBadRequest, nil, nil)
	} else {
		srv.handle(ctx, &resp, req)
	}
	c.resp = resp.Bytes()
	return srv.respond(c)
}

// discardRest drops the unread rest of the request block. It reports false
// if the module has not delivered the whole block yet. The UART accepts the
// response only after the block was taken from the receive buffer.
func (srv *Server) discardRest(c *client) bool {
	var junk [64]byte
	for {
		n, err := c.conn.ReadAvailable(junk[:])
		if n == 0 || err != nil {
			break
		}
	}
	return srv.dev.SocketWithData() != c.conn.Slot()
}

// respond sends the response and closes the connection. The client is kept
// while the UART is busy with a data block of any socket.
func (srv *Server) respond(c *client) bool {
	if !srv.discardRest(c) {
		return true
	}
	if !c.sent {
		if _, err := c.conn.Write(c.resp); err != nil {
			if busy(err) {
				srv.log.Debug("response deferred", zap.Int("slot", c.conn.Slot()), zap.Error(err))
				return true
			}
			srv.log.Warn("write failed", zap.Error(err))
		}
		c.sent = true
	}
	if err := c.conn.Close(); err != nil {
		if busy(err) {
			srv.log.Debug("close deferred", zap.Int("slot", c.conn.Slot()), zap.Error(err))
			return true
		}
		srv.log.Debug("close failed", zap.Error(err))
	}
	return false
}

func busy(err error) bool {
	return errors.Is(err, gsat.ErrSocketBusy) || errors.Is(err, gsat.ErrDataPending)
}

// parseRequest reports complete == false if buf does not contain the whole
// request yet.
func parseRequest(buf []byte) (req *http.Request, complete bool, err error) {
	end := bytes.Index(buf, []byte("\r\n\r\n"))
	if end < 0 {
		return nil, false, nil
	}
	req, err = http.ReadRequest(bufio.NewReader(bytes.NewReader(buf)))
	if err != nil {
		return nil, true, err
	}
	if req.ContentLength > 0 && len(buf)-end-4 < int(req.ContentLength) {
		return nil, false, nil
	}
	return req, true, nil
}

func writeResponse(w *bytes.Buffer, code int, hdr http.Header, body []byte) {
	if body == nil {
		var b bytes.Buffer
		renderStatus(&b, strconv.Itoa(code)+" "+http.StatusText(code))
		body = b.Bytes()
	}
	fmt.Fprintf(w, "HTTP/1.0 %d %s\r\n", code, http.StatusText(code))
	if hdr == nil {
		hdr = make(http.Header)
	}
	hdr.Set("Content-Type", "text/html; charset=utf-8")
	hdr.Set("Content-Length", strconv.Itoa(len(body)))
	hdr.Set("Connection", "close")
	hdr.Write(w)
	w.WriteString("\r\n")
	w.Write(body)
}

func (srv *Server) authorized(req *http.Request) bool {
	a := srv.dev.WebAuth()
	if srv.cfg.NoAuth || a.Username == "" {
		return true
	}
	user, pass, ok := req.BasicAuth()
	return ok && user == a.Username && pass == a.Password
}

func (srv *Server) handle(ctx context.Context, w *bytes.Buffer, req *http.Request) {
	srv.log.Debug("request", zap.String("method", req.Method), zap.Stringer("url", req.URL))
	if req.URL.Path != srv.page.Path || (req.Method != http.MethodGet && req.Method != http.MethodPost) {
		writeResponse(w, http.StatusNotFound, nil, nil)
		return
	}
	if !srv.authorized(req) {
		hdr := make(http.Header)
		hdr.Set("WWW-Authenticate", `Basic realm="`+realm+`"`)
		writeResponse(w, http.StatusUnauthorized, hdr, nil)
		return
	}
	code, msg := http.StatusOK, ""
	switch req.Method {
	case http.MethodGet:
		srv.queueChoices(req.URL.Query())
	case http.MethodPost:
		if err := req.ParseForm(); err != nil {
			writeResponse(w, http.StatusBadRequest, nil, nil)
			return
		}
		srv.queueChoices(req.PostForm)
		code, msg = srv.apply(ctx, req.PostForm)
	}
	var body bytes.Buffer
	if err := render(&body, srv.page, msg, code != http.StatusOK); err != nil {
		srv.log.Error("render failed", zap.Error(err))
		writeResponse(w, http.StatusInternalServerError, nil, nil)
		return
	}
	writeResponse(w, code, nil, body.Bytes())
}

func (srv *Server) queueChoices(form url.Values) {
	for _, e := range srv.page.Elements {
		if isField(e.ID) {
			continue
		}
		for _, v := range form[e.ID] {
			if len(v) == 1 && srv.page.Select(e.ID, v) {
				srv.pushChoice(v[0])
			}
		}
	}
}

// formProfile returns the wireless profile with the submitted fields applied.
// It reports whether the form contains any wireless setting.
func formProfile(p gsat.WirelessProfile, form url.Values) (gsat.WirelessProfile, bool, error) {
	var err error
	set := false
	for _, f := range [...]string{FieldMode, FieldAuth, FieldSecurity, FieldChannel, FieldRate, FieldSSID, FieldKey} {
		if _, ok := form[f]; !ok {
			continue
		}
		v := strings.TrimSpace(form.Get(f))
		switch f {
		case FieldMode:
			p.Mode, err = gsat.ParseWirelessMode(v)
		case FieldAuth:
			p.Auth, err = gsat.ParseAuthMode(v)
		case FieldSecurity:
			p.Security, err = gsat.ParseSecurity(v)
		case FieldChannel:
			p.Channel, err = gsat.ParseChannel(v)
		case FieldRate:
			p.Rate, err = gsat.ParseTxRate(v)
		case FieldSSID:
			p.SSID = v
		case FieldKey:
			if v == "" {
				continue // keep the current key
			}
			p.Key = v
		}
		if err != nil {
			return p, true, err
		}
		set = true
	}
	if set {
		err = p.Validate()
	}
	return p, set, err
}

func (srv *Server) apply(ctx context.Context, form url.Values) (int, string) {
	p, set, err := formProfile(srv.dev.Wireless(), form)
	if err != nil {
		srv.log.Info("rejected settings", zap.Error(err))
		return http.StatusBadRequest, err.Error()
	}
	if !set {
		return http.StatusOK, ""
	}
	if err := srv.dev.Reconfigure(ctx, p); err != nil {
		srv.log.Error("reconfiguration failed", zap.Error(err))
		return http.StatusInternalServerError, "Configuration failed: " + err.Error()
	}
	srv.page.Select(FieldMode, p.Mode.String())
	srv.page.Select(FieldAuth, p.Auth.String())
	srv.page.Select(FieldSecurity, p.Security.String())
	srv.page.Select(FieldChannel, strconv.Itoa(int(p.Channel)))
	srv.page.Select(FieldRate, p.Rate.String())
	srv.page.SSID = p.SSID
	return http.StatusOK, "Configuration applied"
}
