package gsat

import (
	"bytes"

	"go.uber.org/zap"
)

// ActivateSocket switches the UART to the data mode for the ESTABLISHED slot
// i. Subsequent writes to the UART are sent to the connection until
// DeactivateSocket is called. No AT command can be executed in this mode.
func (d *Device) ActivateSocket(i int) error {
	s, err := d.dataSocket("activate", i)
	if err != nil {
		return err
	}
	if d.active == i {
		return nil
	}
	seq := [3]byte{esc, 'S', hexDigits[s.cid&0xF]}
	if _, err := d.w.Write(seq[:]); err != nil {
		return &Error{d.name, "activate", err}
	}
	d.mode = DataMode
	d.active = i
	return nil
}

// dataSocket returns slot i if data can be sent to its connection.
func (d *Device) dataSocket(op string, i int) (*socket, error) {
	s, err := d.slot(i)
	if err != nil {
		return nil, err
	}
	if s.status() != Established || s.cid == InvalidCID {
		return nil, &Error{d.name, op, ErrInvalidState}
	}
	if d.active != NoActiveSocket && d.active != i || d.mode == DataRxMode {
		return nil, &Error{d.name, op, ErrSocketBusy}
	}
	return s, nil
}

// DeactivateSocket ends the data mode started by ActivateSocket.
func (d *Device) DeactivateSocket() error {
	if d.mode != DataMode {
		return &Error{d.name, "deactivate", ErrInvalidState}
	}
	seq := [2]byte{esc, 'E'}
	if _, err := d.w.Write(seq[:]); err != nil {
		return &Error{d.name, "deactivate", err}
	}
	d.mode = CommandMode
	d.active = NoActiveSocket
	return nil
}

// WriteDataToSocket sends p to the connection of slot i. Payloads containing
// ESC are sent in bulk blocks, others in the stream data mode. The UART is
// always back in the command mode when WriteDataToSocket returns, unless
// another socket was active before.
func (d *Device) WriteDataToSocket(i int, p []byte) (n int, err error) {
	defer func() {
		if d.mode != DataMode || d.active != i {
			return
		}
		if e := d.DeactivateSocket(); e != nil {
			d.log.Warn("forcing command mode", zap.Int("slot", i), zap.Error(e))
			d.mode = CommandMode
			d.active = NoActiveSocket
			if err == nil {
				err = e
			}
		}
	}()
	if bytes.IndexByte(p, esc) >= 0 {
		return d.writeBulk(i, p)
	}
	if err = d.ActivateSocket(i); err != nil {
		return 0, err
	}
	for n < len(p) {
		m := min(len(p)-n, MaxTxBuffer)
		k, e := d.w.Write(p[n : n+m])
		n += k
		if e != nil {
			return n, &Error{d.name, "write", e}
		}
	}
	return n, nil
}

// writeBulk sends p as a sequence of ESC Z blocks. Every block carries its
// length so the payload may contain any byte.
func (d *Device) writeBulk(i int, p []byte) (n int, err error) {
	if d.mode == DataMode && d.active == i {
		if err = d.DeactivateSocket(); err != nil {
			return 0, err
		}
	}
	s, err := d.dataSocket("write", i)
	if err != nil {
		return 0, err
	}
	hdr := make([]byte, 0, 7)
	for n < len(p) {
		m := min(len(p)-n, MaxTxBuffer)
		hdr = append(hdr[:0], esc, 'Z', hexDigits[s.cid&0xF])
		hdr = AppendHex(hdr, uint32(m), 4)
		if _, e := d.w.Write(hdr); e != nil {
			return n, &Error{d.name, "write", e}
		}
		k, e := d.w.Write(p[n : n+m])
		n += k
		if e != nil {
			return n, &Error{d.name, "write", e}
		}
	}
	return n, nil
}

// ReadDataFromSocket moves the bytes of the pending data block of slot i
// that are already in the receive buffer to p. It never waits for more
// bytes. The UART returns to the command mode when the whole block has been
// read.
func (d *Device) ReadDataFromSocket(i int, p []byte) (int, error) {
	if d.withData == NoSocketWithData || d.withData != i {
		return 0, &Error{d.name, "read", ErrInvalidState}
	}
	return d.readData(p, len(p)), nil
}

// readData moves up to max bytes of the pending data block to p or discards
// them if p is nil.
func (d *Device) readData(p []byte, max int) (n int) {
	rb := d.rx
	for n < max && d.mode == DataRxMode {
		if d.rxLeft >= 0 {
			if d.rxLeft == 0 {
				d.endData()
				break
			}
			c, err := rb.Pop()
			if err != nil {
				break
			}
			if p != nil {
				p[n] = c
			}
			n++
			d.rxLeft--
			continue
		}
		c, err := rb.Peek(0)
		if err != nil {
			break
		}
		if c == esc {
			k, err := rb.Peek(1)
			if err != nil {
				break // wait for the byte after ESC
			}
			if k == 'E' {
				rb.Discard(2)
				d.endData()
				break
			}
		}
		rb.Discard(1)
		if p != nil {
			p[n] = c
		}
		n++
	}
	if d.mode == DataRxMode && d.rxLeft == 0 {
		d.endData()
	}
	return n
}

func (d *Device) endData() {
	d.mode = CommandMode
	d.withData = NoSocketWithData
	d.rxLeft = 0
}
