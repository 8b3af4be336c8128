package quiestce

import (
	"bytes"
	"html/template"
	"net/url"

	"github.com/quiestce/quiestce/directory"
)

// pickerTemplate lists one login link per identity
var pickerTemplate = template.Must(template.New("picker").Parse(
	`<!DOCTYPE html><html><head><title>Authorization</title></head><body>` +
		`{{range .Links}}<p><a href="{{.Href}}">Login as {{.Name}}</a></p>{{end}}` +
		`</body></html>`))

type pickerLink struct {
	Href string
	Name string
}

type pickerData struct {
	Links []pickerLink
}

// renderPicker renders the user picker for state. identities are expected
// sorted by name.
func renderPicker(state string, identities []directory.Identity) ([]byte, error) {
	data := pickerData{Links: make([]pickerLink, 0, len(identities))}
	for _, ident := range identities {
		data.Links = append(data.Links, pickerLink{
			Href: "/api/redirect/" + url.PathEscape(state) + "/" + ident.ID.String(),
			Name: ident.Name,
		})
	}

	var buf bytes.Buffer
	if err := pickerTemplate.Execute(&buf, data); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
