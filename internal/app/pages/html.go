// Package pages holds the server-rendered templ components of the portal.
package pages

import (
	"context"
	"io"
	"strconv"

	"github.com/a-h/templ"
	twmerge "github.com/Oudwins/tailwind-merge-go"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// html accumulates the first write error so components can emit markup
// without checking every call.
type html struct {
	w   io.Writer
	err error
}

func (h *html) raw(s string) {
	if h.err == nil {
		_, h.err = io.WriteString(h.w, s)
	}
}

func (h *html) text(s string) {
	h.raw(templ.EscapeString(s))
}

func (h *html) attr(name, value string) {
	h.raw(" " + name + `="` + templ.EscapeString(value) + `"`)
}

func (h *html) href(u string) {
	h.attr("href", string(templ.URL(u)))
}

func (h *html) open(tag, class string, attrs ...string) {
	h.raw("<" + tag)
	if class != "" {
		h.attr("class", class)
	}
	for i := 0; i+1 < len(attrs); i += 2 {
		h.attr(attrs[i], attrs[i+1])
	}
	h.raw(">")
}

func (h *html) close(tag string) {
	h.raw("</" + tag + ">")
}

func (h *html) el(tag, class, text string, attrs ...string) {
	h.open(tag, class, attrs...)
	h.text(text)
	h.close(tag)
}

func (h *html) component(ctx context.Context, c templ.Component) {
	if h.err == nil && c != nil {
		h.err = c.Render(ctx, h.w)
	}
}

// hidden writes a hidden form input.
func (h *html) hidden(name, value string) {
	h.raw("<input")
	h.attr("type", "hidden")
	h.attr("name", name)
	h.attr("value", value)
	h.raw(">")
}

func (h *html) input(label, typ, name, value string, extra ...string) {
	h.open("label", "block mb-3")
	h.el("span", "block text-sm font-medium mb-1", label)
	h.raw("<input")
	h.attr("class", "w-full rounded border px-3 py-2")
	h.attr("type", typ)
	h.attr("name", name)
	h.attr("id", name)
	if value != "" {
		h.attr("value", value)
	}
	for i := 0; i+1 < len(extra); i += 2 {
		h.attr(extra[i], extra[i+1])
	}
	h.raw(">")
	h.close("label")
}

func (h *html) button(label, class string, attrs ...string) {
	h.el("button", twmerge.Merge("rounded bg-indigo-600 px-4 py-2 text-white", class), label, append([]string{"type", "submit"}, attrs...)...)
}

func (h *html) alert(kind, msg string) {
	if msg == "" {
		return
	}
	class := "border-red-300 bg-red-50 text-red-700"
	if kind == "info" {
		class = "border-indigo-300 bg-indigo-50 text-indigo-700"
	}
	h.el("div", twmerge.Merge("rounded border px-4 py-3 mb-4", class), msg, "role", "alert", "data-kind", kind)
}

// Label turns an enum value such as "borrower" into "Borrower".
func Label(s string) string {
	return cases.Title(language.English).String(s)
}

func money(v float64) string {
	return strconv.FormatFloat(v, 'f', 2, 64)
}

func component(fn func(ctx context.Context, h *html)) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		h := &html{w: w}
		fn(ctx, h)
		return h.err
	})
}
