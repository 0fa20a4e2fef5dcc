package gsweb

import (
	"html/template"
	"io"
)

var pageTmpl = template.Must(template.New("page").Parse(`<!DOCTYPE HTML>
<html>
<head>
<title>{{.Page.Title}}</title>
</head>
<body>
<center><h1>{{.Page.Title}}</h1>
<h3>{{.Page.MenuTitle}}</h3>
{{- if .Message}}
<p class="{{.Class}}">{{.Message}}</p>
{{- end}}
<p>
<form method="{{.Method}}" action="{{.Page.Path}}">
{{- range .Page.Elements}}
<label>{{.Label}}</label>
{{- if .IsRadio}}
{{- $id := .ID}}
{{- range .Options}}
<input type="radio" name="{{$id}}" value="{{.Value}}"{{if .Selected}} checked{{end}}>{{.Label}}
{{- end}}
{{- else}}
<select name="{{.ID}}">
{{- range .Options}}
<option value="{{.Value}}"{{if .Selected}} selected{{end}}>{{.Label}}</option>
{{- end}}
</select>
{{- end}}
<br>
{{- end}}
{{- if .Page.Credentials}}
<label>SSID</label>
<input type="text" name="ssid" maxlength="32" value="{{.Page.SSID}}"><br>
<label>Key</label>
<input type="password" name="key" maxlength="63"><br>
{{- end}}
<input type="submit" value="Set">
</form>
</p>
</center>
</body>
</html>
`))

type pageData struct {
	Page    *Page
	Method  string
	Message string
	Class   string
}

// render writes the page with an optional status message. Pages carrying
// wireless settings are submitted with POST, choice only pages with GET.
func render(w io.Writer, p *Page, msg string, failed bool) error {
	d := pageData{Page: p, Method: "get", Message: msg, Class: "ok"}
	if p.hasFields() {
		d.Method = "post"
	}
	if failed {
		d.Class = "error"
	}
	return pageTmpl.Execute(w, &d)
}

var statusTmpl = template.Must(template.New("status").Parse(`<!DOCTYPE HTML>
<html>
<head><title>{{.}}</title></head>
<body><center><h1>{{.}}</h1></center></body>
</html>
`))

func renderStatus(w io.Writer, status string) error {
	return statusTmpl.Execute(w, status)
}
