package gsat

import (
	"math"
	"strconv"
	"strings"
)

const esc = 0x1b

type tokenKind uint8

const (
	tokOK tokenKind = iota
	tokError
	tokInfo
	tokConnect
	tokDisconnect
	tokDisassoc
	tokData
	tokAck
	tokNak
)

type token struct {
	kind   tokenKind
	text   string // error code or intermediate line
	cid    CID
	server CID // listening cid of an incoming connection or InvalidCID
	ip     string
	port   uint16
	length int // data block length, -1 for an ESC S ... ESC E block
}

func (t token) String() string {
	switch t.kind {
	case tokOK:
		return "OK"
	case tokError, tokInfo:
		return t.text
	case tokConnect:
		if t.server == InvalidCID {
			return "CONNECT " + t.cid.String()
		}
		return "CONNECT " + t.server.String() + " " + t.cid.String() + " " +
			t.ip + " " + strconv.Itoa(int(t.port))
	case tokDisconnect:
		return "DISCONNECT " + t.cid.String()
	case tokDisassoc:
		return "Disassociation Event"
	case tokData:
		return "data " + t.cid.String() + " " + strconv.Itoa(t.length)
	case tokAck:
		return "ESC O"
	case tokNak:
		return "ESC F"
	}
	return "?"
}

func isDelim(c byte) bool {
	return c == '\r' || c == '\n' || c == esc
}

// next parses the next complete token from the receive buffer. It returns
// ok == false if the buffer does not contain a complete token. In such case
// the buffer is left untouched so the call can be repeated when more bytes
// arrive. A non-nil error reports a discarded malformed token. Nothing is
// parsed while the UART is in the data mode or a data block is pending.
func (d *Device) next() (tok token, ok bool, err error) {
	rb := d.rx
	for {
		switch d.mode {
		case DataMode:
			return
		case DataRxMode:
			if d.withData != NoSocketWithData {
				return
			}
			d.readData(nil, math.MaxInt) // discard data of an unknown connection
			if d.mode == DataRxMode {
				return
			}
		}
		c, e := rb.Peek(0)
		if e != nil {
			return
		}
		switch c {
		case '\r', '\n':
			rb.Discard(1)
			continue
		case esc:
			if k, e := rb.Peek(1); e == nil && k == 'E' {
				rb.Discard(2) // terminator of an already drained block
				continue
			}
			return d.nextEsc()
		}
		end := rb.Index(1, isDelim)
		if end < 0 {
			if rb.Len() == rb.Cap() {
				rb.Discard(rb.Len())
				d.malformed++
				return tok, false, ErrMalformedResponse
			}
			return
		}
		n := end
		if n > len(d.line) {
			n = len(d.line)
		}
		line := d.line[:rb.Drain(d.line[:n])]
		rb.Discard(end - n)
		if c, _ = rb.Peek(0); c != esc {
			rb.Discard(1)
		}
		tok, err = parseLine(line)
		if err != nil {
			d.malformed++
			return tok, false, err
		}
		return tok, true, nil
	}
}

// nextEsc parses an ESC prefixed sequence.
func (d *Device) nextEsc() (tok token, ok bool, err error) {
	rb := d.rx
	k, e := rb.Peek(1)
	if e != nil {
		return
	}
	switch k {
	case 'O':
		rb.Discard(2)
		return token{kind: tokAck}, true, nil
	case 'F':
		rb.Discard(2)
		return token{kind: tokNak}, true, nil
	case 'S':
		if rb.Len() < 3 {
			return
		}
		c, _ := rb.Peek(2)
		rb.Discard(3)
		cid, e := HexDigit(c)
		if e != nil {
			d.malformed++
			return tok, false, e
		}
		return token{kind: tokData, cid: CID(cid), length: -1}, true, nil
	case 'Z':
		var hdr [7]byte
		if rb.Len() < len(hdr) {
			return
		}
		rb.Drain(hdr[:])
		cid, e := HexDigit(hdr[2])
		if e != nil {
			d.malformed++
			return tok, false, e
		}
		n, e := HexToInt(hdr[3:])
		if e != nil {
			d.malformed++
			return tok, false, e
		}
		return token{kind: tokData, cid: CID(cid), length: int(n)}, true, nil
	}
	rb.Discard(2) // unknown escape sequence
	d.malformed++
	return tok, false, ErrMalformedResponse
}

func parseLine(line []byte) (token, error) {
	s := string(line)
	switch {
	case s == "OK":
		return token{kind: tokOK}, nil
	case strings.HasPrefix(s, "ERROR") || strings.HasPrefix(s, "INVALID"):
		return token{kind: tokError, text: s}, nil
	case strings.HasPrefix(s, "CONNECT "):
		return parseConnect(strings.Fields(s[8:]))
	case strings.HasPrefix(s, "DISCONNECT "):
		cid, err := parseCID(strings.TrimSpace(s[11:]))
		if err != nil {
			return token{}, err
		}
		return token{kind: tokDisconnect, cid: cid}, nil
	case strings.HasPrefix(s, "Disassociation Event"):
		return token{kind: tokDisassoc}, nil
	}
	return token{kind: tokInfo, text: s}, nil
}

// parseConnect parses "CONNECT <cid>" and "CONNECT <server cid> <cid> <ip>
// <port>" fields.
func parseConnect(f []string) (token, error) {
	tok := token{kind: tokConnect, server: InvalidCID}
	var err error
	switch len(f) {
	case 1:
		tok.cid, err = parseCID(f[0])
		return tok, err
	case 4:
		if tok.server, err = parseCID(f[0]); err != nil {
			return tok, err
		}
		if tok.cid, err = parseCID(f[1]); err != nil {
			return tok, err
		}
		tok.ip = f[2]
		port, err := strconv.ParseUint(f[3], 10, 16)
		if err != nil {
			return tok, ErrMalformedResponse
		}
		tok.port = uint16(port)
		return tok, nil
	}
	return tok, ErrMalformedResponse
}

func parseCID(s string) (CID, error) {
	n, err := HexToInt([]byte(s))
	if err != nil {
		return InvalidCID, err
	}
	if n > 0xF {
		return InvalidCID, ErrMalformedResponse
	}
	return CID(n), nil
}
