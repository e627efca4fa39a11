package expense

import (
	"embed"
	"html/template"
	"net/url"
	"time"

	"github.com/shopspring/decimal"
)

//go:embed static/app.css
var appCSS []byte

//go:embed static/templates/*.html
var templateFS embed.FS

var templateFuncs = template.FuncMap{
	"money":      func(d decimal.Decimal) string { return d.StringFixed(2) },
	"date":       func(t time.Time) string { return t.Format("2006-01-02") },
	"pathEscape": url.PathEscape,
}

// parseTemplates parses the embedded page templates
func parseTemplates() *template.Template {
	return template.Must(template.New("pages").Funcs(templateFuncs).ParseFS(templateFS, "static/templates/*.html"))
}
