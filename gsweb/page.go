// Package gsweb implements the provisioning web server. It serves a single
// HTML page over the module sockets, applies submitted wireless settings and
// queues the choices made by the clients.
package gsweb

import (
	"errors"
	"strconv"

	"github.com/embeddedgo/gsat"
)

const (
	MaxElements = 10  // elements on a page
	MaxLabel    = 40  // element label length
	MaxTitle    = 128 // page and menu title length

	DefaultTitle     = "Client Web Page"
	DefaultMenuTitle = "Menu/options"
	DefaultLabel     = "Client choice"
)

// Identifiers of the elements that carry wireless settings. Any other element
// is a client choice.
const (
	FieldMode     = "mode"
	FieldAuth     = "auth"
	FieldSecurity = "security"
	FieldChannel  = "channel"
	FieldRate     = "rate"
	FieldSSID     = "ssid"
	FieldKey      = "key"
)

var (
	ErrPageFull    = errors.New("gsweb: too many page elements")
	ErrDuplicateID = errors.New("gsweb: duplicate element identifier")
	ErrBadElement  = errors.New("gsweb: bad element")
	ErrEmptyPage   = errors.New("gsweb: page has no elements")
	ErrNotStarted  = errors.New("gsweb: server not started")
)

// ElementType selects the form control used to render an element.
type ElementType uint8

const (
	Dropdown ElementType = iota
	Radio
)

func (t ElementType) String() string {
	if t == Radio {
		return "radio"
	}
	return "dropdown"
}

type Option struct {
	Value    string
	Label    string
	Selected bool
}

type Element struct {
	ID      string
	Label   string
	Type    ElementType
	Options []Option
}

func (e Element) IsRadio() bool { return e.Type == Radio }

// Page describes the served HTML page. It should not be modified after the
// server was started.
type Page struct {
	Path      string
	Title     string
	MenuTitle string
	Elements  []Element

	// Credentials adds the SSID and key text inputs to the page.
	Credentials bool
	SSID        string
}

func truncate(s string, n int) string {
	if len(s) > n {
		return s[:n]
	}
	return s
}

// NewPage returns an empty page served at "/". Empty titles are replaced by
// the defaults, too long ones are truncated.
func NewPage(title, menuTitle string) *Page {
	if title == "" {
		title = DefaultTitle
	}
	if menuTitle == "" {
		menuTitle = DefaultMenuTitle
	}
	return &Page{
		Path:      "/",
		Title:     truncate(title, MaxTitle),
		MenuTitle: truncate(menuTitle, MaxTitle),
	}
}

func isField(id string) bool {
	switch id {
	case FieldMode, FieldAuth, FieldSecurity, FieldChannel, FieldRate, FieldSSID, FieldKey:
		return true
	}
	return false
}

// AddElement appends e to the page. Choice elements (elements that do not
// carry wireless settings) must use single byte option values.
func (p *Page) AddElement(e Element) error {
	if e.ID == "" || len(e.Options) == 0 {
		return ErrBadElement
	}
	if p.Element(e.ID) != nil {
		return ErrDuplicateID
	}
	if len(p.Elements) >= MaxElements {
		return ErrPageFull
	}
	if !isField(e.ID) {
		for _, o := range e.Options {
			if len(o.Value) != 1 {
				return ErrBadElement
			}
		}
	}
	if e.Label == "" {
		e.Label = DefaultLabel
	}
	e.Label = truncate(e.Label, MaxLabel)
	e.Options = append([]Option(nil), e.Options...)
	for i := range e.Options {
		if e.Options[i].Label == "" {
			e.Options[i].Label = e.Options[i].Value
		}
		e.Options[i].Label = truncate(e.Options[i].Label, MaxLabel)
	}
	p.Elements = append(p.Elements, e)
	return nil
}

// AddChoice adds a single option to the choice element id, creating the
// element if it does not exist.
func (p *Page) AddChoice(id string, typ ElementType, value byte, label string) error {
	if e := p.Element(id); e != nil {
		for _, o := range e.Options {
			if o.Value == string(value) {
				return ErrDuplicateID
			}
		}
		e.Options = append(e.Options, Option{Value: string(value), Label: truncate(label, MaxLabel)})
		return nil
	}
	return p.AddElement(Element{
		ID:      id,
		Label:   DefaultLabel,
		Type:    typ,
		Options: []Option{{Value: string(value), Label: label}},
	})
}

// Element returns the element with the given identifier or nil.
func (p *Page) Element(id string) *Element {
	for i := range p.Elements {
		if p.Elements[i].ID == id {
			return &p.Elements[i]
		}
	}
	return nil
}

// Select marks value as the selected option of element id. It reports
// whether value is one of the element options.
func (p *Page) Select(id, value string) bool {
	e := p.Element(id)
	if e == nil {
		return false
	}
	found := false
	for i := range e.Options {
		o := &e.Options[i]
		o.Selected = o.Value == value
		found = found || o.Selected
	}
	return found
}

// hasFields reports whether the page carries any wireless setting.
func (p *Page) hasFields() bool {
	if p.Credentials {
		return true
	}
	for _, e := range p.Elements {
		if isField(e.ID) {
			return true
		}
	}
	return false
}

func enumOptions[T interface {
	~uint8
	String() string
}](vs []T, sel T) []Option {
	opts := make([]Option, len(vs))
	for i, v := range vs {
		opts[i] = Option{Value: v.String(), Label: v.String(), Selected: v == sel}
	}
	return opts
}

// ProvisioningPage returns a page that allows to change all settings of the
// wireless profile wp.
func ProvisioningPage(wp gsat.WirelessProfile) *Page {
	p := NewPage("Wireless setup", "Network settings")
	var chans []Option
	for c := gsat.MinChannel; c <= gsat.MaxChannel; c++ {
		s := strconv.Itoa(int(c))
		chans = append(chans, Option{Value: s, Label: s, Selected: c == wp.Channel})
	}
	for _, e := range [...]Element{
		{ID: FieldMode, Label: "Wireless mode", Options: enumOptions(gsat.WirelessModes(), wp.Mode)},
		{ID: FieldAuth, Label: "Authentication", Type: Radio, Options: enumOptions(gsat.AuthModes(), wp.Auth)},
		{ID: FieldSecurity, Label: "Security", Options: enumOptions(gsat.Securities(), wp.Security)},
		{ID: FieldChannel, Label: "Channel", Options: chans},
		{ID: FieldRate, Label: "Transmission rate", Options: enumOptions(gsat.TxRates(), wp.Rate)},
	} {
		p.AddElement(e) // cannot fail
	}
	p.Credentials = true
	p.SSID = wp.SSID
	return p
}
