package gsat

import (
	"context"
	"errors"

	"github.com/looplab/fsm"
	"go.uber.org/zap"
)

// CID is a connection identifier assigned by the module.
type CID uint8

const InvalidCID CID = 0xFF

func (c CID) String() string {
	if c == InvalidCID {
		return "invalid"
	}
	return IntToHex(uint32(c))
}

// Protocol of a socket. The values match the IP protocol numbers used by the
// module firmware.
type Protocol uint8

const (
	TCP       Protocol = 6
	UDP       Protocol = 7
	UDPClient Protocol = 8
)

func (p Protocol) String() string {
	switch p {
	case TCP:
		return "tcp"
	case UDP:
		return "udp"
	case UDPClient:
		return "udp-client"
	}
	return "unknown"
}

// Status is the state of a socket table slot.
type Status uint8

const (
	Closed      Status = 0
	Init        Status = 1
	Listen      Status = 2
	Established Status = 3
	CloseWait   Status = 4
	Invalid     Status = 255
)

var statusNames = [...]string{
	Closed:      "closed",
	Init:        "init",
	Listen:      "listen",
	Established: "established",
	CloseWait:   "close_wait",
}

func (s Status) String() string {
	if int(s) < len(statusNames) {
		return statusNames[s]
	}
	return "invalid"
}

func parseStatus(s string) Status {
	for i, name := range statusNames {
		if name == s {
			return Status(i)
		}
	}
	return Invalid
}

// Socket is a snapshot of a socket table slot. For connections accepted by a
// listening socket Port is the local port and IP, RemotePort describe the
// peer. For client sockets Port is the remote port.
type Socket struct {
	CID        CID
	Protocol   Protocol
	Port       uint16
	IP         string
	RemotePort uint16
	Status     Status
	Gen        uint32 // incremented every time the slot is reclaimed
}

const (
	evConfigure      = "configure"
	evListen         = "listen"
	evOpen           = "open"
	evConfirm        = "confirm"
	evAccept         = "accept"
	evPeerClose      = "peer_close"
	evCloseConfirmed = "close_confirmed"
	evDisconnect     = "disconnect"
	evReclaim        = "reclaim"
)

func socketEvents() fsm.Events {
	s := func(st ...Status) []string {
		names := make([]string, len(st))
		for i, x := range st {
			names[i] = x.String()
		}
		return names
	}
	return fsm.Events{
		{Name: evConfigure, Src: s(Invalid), Dst: Closed.String()},
		{Name: evListen, Src: s(Closed), Dst: Listen.String()},
		{Name: evOpen, Src: s(Closed), Dst: Init.String()},
		{Name: evConfirm, Src: s(Init), Dst: Established.String()},
		{Name: evAccept, Src: s(Listen), Dst: Established.String()},
		{Name: evPeerClose, Src: s(Established), Dst: CloseWait.String()},
		{Name: evCloseConfirmed, Src: s(CloseWait), Dst: Closed.String()},
		{Name: evDisconnect, Src: s(Closed, Init, Listen, Established, CloseWait), Dst: Closed.String()},
		{Name: evReclaim, Src: s(Closed), Dst: Invalid.String()},
	}
}

type socket struct {
	cid    CID
	proto  Protocol
	port   uint16
	ip     string
	rport  uint16
	server CID // cid of the listening socket that accepted this connection
	fsm    *fsm.FSM

	ephemeral bool   // created for an incoming connection, reclaimed when closed
	promoted  bool   // listening socket that carries an accepted connection
	claimed   bool   // handed out by Accept
	closeAt   uint32 // when the slot entered CLOSE_WAIT
	gen       uint32
}

func (s *socket) init(d *Device, i int) {
	log := d.log.With(zap.Int("slot", i))
	s.fsm = fsm.NewFSM(Invalid.String(), socketEvents(), fsm.Callbacks{
		"enter_state": func(_ context.Context, e *fsm.Event) {
			log.Debug("socket state", zap.String("event", e.Event),
				zap.String("src", e.Src), zap.String("dst", e.Dst))
		},
	})
}

func (s *socket) reset() {
	s.fsm.SetState(Invalid.String())
	s.clear()
	s.proto = 0
	s.port = 0
	s.promoted = false
	s.ephemeral = false
	s.gen++
}

func (s *socket) clear() {
	s.cid = InvalidCID
	s.server = InvalidCID
	s.ip = ""
	s.rport = 0
	s.claimed = false
}

func (s *socket) status() Status {
	return parseStatus(s.fsm.Current())
}

func (s *socket) snapshot() Socket {
	return Socket{
		CID:        s.cid,
		Protocol:   s.proto,
		Port:       s.port,
		IP:         s.ip,
		RemotePort: s.rport,
		Status:     s.status(),
		Gen:        s.gen,
	}
}

// fire triggers the socket state machine event ev on slot i. An event that
// leaves the slot in its current state is not an error.
func (d *Device) fire(i int, ev string) error {
	err := d.sockets[i].fsm.Event(context.Background(), ev)
	if err == nil {
		return nil
	}
	var nt fsm.NoTransitionError
	if errors.As(err, &nt) {
		return nil
	}
	d.log.Debug("socket transition refused", zap.Int("slot", i),
		zap.String("event", ev), zap.Error(err))
	return &Error{d.name, "socket " + ev, ErrInvalidState}
}

func (d *Device) slot(i int) (*socket, error) {
	if uint(i) >= MaxSockets {
		return nil, &Error{d.name, "socket", ErrArg}
	}
	return &d.sockets[i], nil
}

func (d *Device) byCID(cid CID) int {
	if cid == InvalidCID {
		return -1
	}
	for i := range d.sockets {
		s := &d.sockets[i]
		if s.cid == cid && s.status() != Invalid {
			return i
		}
	}
	return -1
}

func (d *Device) freeSlot() int {
	for i := range d.sockets {
		if d.sockets[i].status() == Invalid {
			return i
		}
	}
	return -1
}

// Socket returns the snapshot of slot i.
func (d *Device) Socket(i int) (Socket, bool) {
	s, err := d.slot(i)
	if err != nil {
		return Socket{Status: Invalid, CID: InvalidCID}, false
	}
	return s.snapshot(), true
}

// SocketByCID returns the slot that holds cid or -1.
func (d *Device) SocketByCID(cid CID) int {
	return d.byCID(cid)
}

// SocketByPort returns the first configured slot with the given port and
// protocol or -1.
func (d *Device) SocketByPort(port uint16, p Protocol) int {
	for i := range d.sockets {
		s := &d.sockets[i]
		if s.port == port && s.proto == p && s.status() != Invalid {
			return i
		}
	}
	return -1
}

// FreeSlot returns the first unused slot or -1.
func (d *Device) FreeSlot() int {
	return d.freeSlot()
}

// ActiveSocket returns the slot that owns the data mode or NoActiveSocket.
func (d *Device) ActiveSocket() int { return d.active }

// SocketWithData returns the slot with a pending data block or
// NoSocketWithData.
func (d *Device) SocketWithData() int { return d.withData }

// Configure prepares slot i for listening on or connecting to port. An unused
// slot becomes CLOSED. A CLOSED slot may be reconfigured.
func (d *Device) Configure(i int, p Protocol, port uint16) error {
	s, err := d.slot(i)
	if err != nil {
		return err
	}
	switch p {
	case TCP, UDP, UDPClient:
	default:
		return &Error{d.name, "configure", ErrArg}
	}
	if port == 0 && p != UDPClient {
		return &Error{d.name, "configure", ErrArg}
	}
	switch s.status() {
	case Invalid:
		if err := d.fire(i, evConfigure); err != nil {
			return err
		}
	case Closed:
	default:
		return &Error{d.name, "configure", ErrInvalidState}
	}
	s.clear()
	s.proto = p
	s.port = port
	s.ephemeral = false
	return nil
}

// ActivateListen starts a TCP or UDP server on the port of the CLOSED slot i.
// On success the slot becomes LISTEN. It does not change the UART mode.
func (d *Device) ActivateListen(ctx context.Context, i int) error {
	s, err := d.slot(i)
	if err != nil {
		return err
	}
	if s.status() != Closed {
		return &Error{d.name, "listen", ErrInvalidState}
	}
	var name string
	switch s.proto {
	case TCP:
		name = "+NSTCP="
	case UDP:
		name = "+NSUDP="
	default:
		return &Error{d.name, "listen", ErrArg}
	}
	d.pending, d.pendingOpen = i, false
	_, err = d.Cmd(ctx, name, int(s.port))
	d.pending = -1
	if err != nil {
		s.cid = InvalidCID
		return err
	}
	if s.cid == InvalidCID {
		d.log.Warn("server started without cid", zap.Int("slot", i))
	}
	return d.fire(i, evListen)
}

// Connect opens a TCP or UDP client connection from the CLOSED slot i to the
// host ip on the slot port. On success the slot becomes ESTABLISHED.
func (d *Device) Connect(ctx context.Context, i int, ip string, srcPort ...int) error {
	s, err := d.slot(i)
	if err != nil {
		return err
	}
	if s.status() != Closed {
		return &Error{d.name, "connect", ErrInvalidState}
	}
	args := []any{ip, int(s.port)}
	var name string
	switch s.proto {
	case TCP:
		name = "+NCTCP="
	case UDP, UDPClient:
		name = "+NCUDP="
		if len(srcPort) != 0 {
			args = append(args, srcPort[0])
		}
	default:
		return &Error{d.name, "connect", ErrArg}
	}
	d.pending, d.pendingOpen = i, true
	_, err = d.Cmd(ctx, name, args...)
	d.pending, d.pendingOpen = -1, false
	if err == nil && s.status() != Init {
		err = &Error{d.name, name, ErrMalformedResponse} // no CONNECT line
	}
	if err != nil {
		d.fire(i, evDisconnect)
		s.clear()
		return err
	}
	s.ip = ip
	return d.fire(i, evConfirm)
}

// Close closes the connection or server of slot i. A configured slot stays
// CLOSED and can be activated again. Slots created for incoming connections
// are reclaimed.
func (d *Device) Close(ctx context.Context, i int) error {
	s, err := d.slot(i)
	if err != nil {
		return err
	}
	switch s.status() {
	case Invalid:
		return &Error{d.name, "close", ErrInvalidState}
	case Closed:
		return nil
	case CloseWait:
		if err := d.fire(i, evCloseConfirmed); err != nil {
			return err
		}
		d.settle(i)
		return nil
	}
	if s.cid != InvalidCID {
		_, err := d.Cmd(ctx, "+NCLOSE=", s.cid)
		var pe *ProtocolError
		if errors.As(err, &pe) && pe.InvalidCID() {
			d.log.Info("module forgot cid", zap.Int("slot", i), zap.Stringer("cid", s.cid))
		} else if err != nil {
			return err
		}
	}
	if err := d.fire(i, evDisconnect); err != nil {
		return err
	}
	d.settle(i)
	return nil
}

// Release returns the CLOSED slot i to the pool of unused slots.
func (d *Device) Release(i int) error {
	s, err := d.slot(i)
	if err != nil {
		return err
	}
	switch s.status() {
	case Invalid:
		return nil
	case Closed:
		s.promoted = false
		s.ephemeral = true
		d.settle(i)
		return nil
	}
	return &Error{d.name, "release", ErrInvalidState}
}

// Accept returns an ESTABLISHED slot created for a connection accepted by the
// listening slot ls that was not returned before, or -1.
func (d *Device) Accept(ls int) int {
	l, err := d.slot(ls)
	if err != nil {
		return -1
	}
	lcid := l.cid
	if l.promoted {
		lcid = l.server
	}
	for i := range d.sockets {
		s := &d.sockets[i]
		if s.claimed || s.status() != Established {
			continue
		}
		if (s.ephemeral || s.promoted) && (s.server == lcid || s.server == InvalidCID) {
			s.claimed = true
			return i
		}
	}
	return -1
}

// settle finishes closing of slot i that has just become CLOSED.
func (d *Device) settle(i int) {
	s := &d.sockets[i]
	server := s.server
	s.clear()
	if d.active == i {
		d.active = NoActiveSocket
		d.mode = CommandMode
	}
	if d.withData == i {
		d.withData = NoSocketWithData // the rest of the block is discarded
	}
	switch {
	case s.promoted:
		s.promoted = false
		s.cid = server
		s.gen++
		d.fire(i, evListen)
	case s.ephemeral:
		s.ephemeral = false
		s.proto = 0
		s.port = 0
		s.gen++
		d.fire(i, evReclaim)
	}
}

// assign gives cid to slot i evicting a stale slot that still holds it.
func (d *Device) assign(i int, cid CID) {
	if j := d.byCID(cid); j >= 0 && j != i {
		d.log.Warn("cid reused by the module", zap.Stringer("cid", cid), zap.Int("slot", j))
		d.fire(j, evDisconnect)
		d.settle(j)
	}
	d.sockets[i].cid = cid
}

func (d *Device) onConnect(tok token) {
	if tok.server == InvalidCID && d.pending >= 0 {
		i := d.pending
		d.assign(i, tok.cid)
		if d.pendingOpen {
			d.fire(i, evOpen)
		}
		return
	}
	if j := d.byCID(tok.cid); j >= 0 && d.sockets[j].status() == Established {
		return // repeated notification
	}
	var listener *socket
	li := -1
	if tok.server != InvalidCID {
		for k := range d.sockets {
			l := &d.sockets[k]
			if l.status() == Listen && l.cid == tok.server {
				listener, li = l, k
				break
			}
		}
	}
	i := d.freeSlot()
	if i < 0 {
		if listener == nil {
			d.log.Warn("no slot for connection", zap.Stringer("cid", tok.cid))
			return
		}
		listener.server = listener.cid
		listener.cid = InvalidCID
		d.assign(li, tok.cid)
		listener.promoted = true
		listener.ip = tok.ip
		listener.rport = tok.port
		d.fire(li, evAccept)
		return
	}
	proto, port := TCP, uint16(0)
	if listener != nil {
		proto, port = listener.proto, listener.port
	}
	s := &d.sockets[i]
	d.fire(i, evConfigure)
	s.clear()
	s.proto = proto
	s.port = port
	s.ephemeral = true
	d.assign(i, tok.cid)
	s.server = tok.server
	s.ip = tok.ip
	s.rport = tok.port
	d.fire(i, evOpen)
	d.fire(i, evConfirm)
}

func (d *Device) onDisconnect(tok token) {
	i := d.byCID(tok.cid)
	if i < 0 {
		d.log.Debug("disconnect of unknown cid", zap.Stringer("cid", tok.cid))
		return
	}
	s := &d.sockets[i]
	if d.active == i {
		d.active = NoActiveSocket
		d.mode = CommandMode
	}
	if d.withData == i {
		d.withData = NoSocketWithData // the rest of the block is discarded
	}
	switch s.status() {
	case Established:
		d.fire(i, evPeerClose)
		s.closeAt = d.clock.Millis()
	case CloseWait:
	default:
		d.fire(i, evDisconnect)
		d.settle(i)
	}
}

func (d *Device) expireCloseWait() {
	wait := millis(d.cfg.CloseWait)
	now := d.clock.Millis()
	for i := range d.sockets {
		s := &d.sockets[i]
		if s.status() == CloseWait && now-s.closeAt >= wait {
			d.fire(i, evCloseConfirmed)
			d.settle(i)
		}
	}
}

func (d *Device) onData(tok token) {
	i := d.byCID(tok.cid)
	if i < 0 {
		d.log.Warn("data for unknown cid", zap.Stringer("cid", tok.cid), zap.Int("len", tok.length))
	}
	if tok.length == 0 {
		return
	}
	d.mode = DataRxMode
	d.withData = i // NoSocketWithData (-1) discards the block
	d.rxLeft = tok.length
}

// dispatch applies a notification to the socket table and the device state.
func (d *Device) dispatch(tok token) {
	switch tok.kind {
	case tokConnect:
		d.onConnect(tok)
	case tokDisconnect:
		d.onDisconnect(tok)
	case tokDisassoc:
		d.log.Warn("wireless disassociated")
		d.conn = Disconnected
	case tokData:
		d.onData(tok)
	case tokAck, tokNak:
		d.log.Debug("data acknowledgement", zap.Stringer("token", tok))
	default:
		d.log.Debug("unsolicited response", zap.Stringer("token", tok))
	}
}
