package convert

import (
	"fmt"
	"html/template"
	"strings"
	"time"
)

var (
	bannerTmpl = template.Must(template.New("banner").Parse(
		`<div style="color: red; font-size: 20px; font-weight: bold;">{{.}}</div>`))
	paragraphTmpl = template.Must(template.New("p").Parse(`<p>{{.}}</p>`))
)

// RejectedMessage is the outcome text for a non-PDF upload.
const RejectedMessage = "File is not a PDF file"

func rejectedBanner(name string) template.HTML {
	return banner(fmt.Sprintf("File %s is not a PDF file. Please upload a PDF file.", name))
}

func banner(msg string) template.HTML {
	var b strings.Builder
	_ = bannerTmpl.Execute(&b, msg)
	return template.HTML(b.String())
}

func paragraph(msg string) string {
	var b strings.Builder
	_ = paragraphTmpl.Execute(&b, msg)
	return b.String()
}

// Minutes renders d as minutes rounded to two decimals.
func Minutes(d time.Duration) string {
	return fmt.Sprintf("%.2f", d.Minutes())
}

// statusHTML builds the run summary shown next to the extracted text.
func statusHTML(r *Result, maxPages int, notes ...string) template.HTML {
	var b strings.Builder
	if r.Truncated {
		b.WriteString(paragraph(fmt.Sprintf("WARNING - PDF was truncated to %d pages", maxPages)))
	}
	b.WriteString(paragraph(fmt.Sprintf("Runtime: %s minutes on CPU for %d pages", Minutes(r.Elapsed), r.PagesProcessed)))
	for _, w := range r.Warnings {
		b.WriteString(paragraph("WARNING - " + w))
	}
	for _, n := range notes {
		b.WriteString(paragraph(n))
	}
	return template.HTML(b.String())
}
