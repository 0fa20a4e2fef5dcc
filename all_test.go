package gsat

import (
	"bytes"
	"reflect"
	"testing"
)

type writeCmdTest struct {
	cmd  string
	args []any
	out  string
	err  error
}

var writeCmdTests = []writeCmdTest{
	{"", nil, `AT`, nil},
	{"E0", nil, `ATE0`, nil},
	{"+WM=", []any{2}, `AT+WM=2`, nil},
	{"+WA=", []any{"GAINSPAN", nil, 11}, `AT+WA=GAINSPAN,,11`, nil},
	{"+NSET=", []any{"192.168.3.1", "255.255.255.0", "192.168.3.1"}, `AT+NSET=192.168.3.1,255.255.255.0,192.168.3.1`, nil},
	{"+NCLOSE=", []any{CID(0xA)}, `AT+NCLOSE=A`, nil},
	{"+NCLOSE=", []any{InvalidCID}, "", ErrArg},
	{"+NSTCP=", []any{8080}, `AT+NSTCP=8080`, nil},
	{"+WPAPSK=", []any{"ssid", "bad\r\nkey"}, "", ErrArg},
	{"+WRATE=", []any{'a'}, "", ErrArgType},
	{"B=", []any{115200, 8, "n", 1}, `ATB=115200,8,n,1`, nil},
	{"+TEST=", []any{-1, 0, 999}, `AT+TEST=-1,0,999`, nil},
}

func TestWriteCmd(t *testing.T) {
	var buf [MaxTxBuffer]byte
	w := bytes.NewBuffer(nil)
	for _, test := range writeCmdTests {
		w.Reset()
		err := writeCmd(w, &buf, test.cmd, test.args)
		if test.err != nil {
			if !reflect.DeepEqual(err, test.err) {
				t.Errorf(
					"%s %+v -> %#v: errors don't match: %v",
					test.cmd, test.args, test.out, test.err,
				)
			}
		} else if err != nil {
			t.Errorf(
				"%s %+v -> %#v: unexpected error: %v",
				test.cmd, test.args, test.out, err,
			)
		}
		tout := test.out
		if tout != "" {
			tout += "\r\n"
		}
		if out := w.String(); out != tout {
			t.Errorf(
				"%s %+v -> %#v != %#v",
				test.cmd, test.args, tout, out,
			)
		}
	}
}

func TestWriteCmdOverflow(t *testing.T) {
	var buf [MaxTxBuffer]byte
	w := bytes.NewBuffer(nil)
	long := string(bytes.Repeat([]byte{'x'}, MaxTxBuffer))
	if err := writeCmd(w, &buf, "+WA=", []any{long}); err == nil {
		t.Error("overflow not detected")
	}
	if w.Len() != 0 {
		t.Errorf("%d bytes written", w.Len())
	}
}
