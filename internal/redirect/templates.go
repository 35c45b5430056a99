package redirect

import (
	_ "embed"
	"html/template"
)

//go:embed templates/relay.html
var relayPageTemplateHTML string

//go:embed templates/result.html
var resultPageTemplateHTML string

var relayPageTemplate = template.Must(template.New("relay").Parse(relayPageTemplateHTML))
var resultPageTemplate = template.Must(template.New("result").Parse(resultPageTemplateHTML))

// RelayPageData feeds the page that moves the fragment into the query
type RelayPageData struct {
	CompletePath string
}

// ResultPageData feeds the page shown once the redirect was consumed
type ResultPageData struct {
	Title   string
	Message string
	IsError bool
}
