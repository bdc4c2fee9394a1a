package pages

import (
	"context"

	"github.com/a-h/templ"
	twmerge "github.com/Oudwins/tailwind-merge-go"

	"github.com/FACorreiaa/go-loanhub/internal/app/models"
)

const htmxScript = "https://unpkg.com/htmx.org@2.0.4"

func head(h *html, title string, extra func()) {
	h.raw("<!DOCTYPE html>")
	h.raw("<html")
	h.attr("lang", "en")
	h.raw("><head><meta charset=\"utf-8\"><meta name=\"viewport\" content=\"width=device-width, initial-scale=1\">")
	h.el("title", "", title+" · LoanHub")
	h.raw("<script")
	h.attr("src", htmxScript)
	h.raw("></script>")
	if extra != nil {
		extra()
	}
	h.raw("</head>")
}

func bodyClass(theme string) string {
	class := "min-h-screen bg-slate-50 text-slate-900"
	if theme == "dark" {
		class = twmerge.Merge(class, "bg-slate-900 text-slate-100")
	}
	return class
}

// LayoutPage is the full page: navigation chrome plus content.
func LayoutPage(data models.LayoutTempl) templ.Component {
	return component(func(ctx context.Context, h *html) {
		head(h, data.Title, nil)
		h.open("body", bodyClass(data.Theme), "data-theme", themeOrDefault(data.Theme))
		h.component(ctx, Navbar(data))
		h.open("main", "mx-auto max-w-5xl p-6", "id", "content")
		h.component(ctx, data.Content)
		h.close("main")
		h.raw("</body></html>")
	})
}

// Navbar renders the menu entries and, when signed in, the account section.
func Navbar(data models.LayoutTempl) templ.Component {
	return component(func(_ context.Context, h *html) {
		h.open("header", "border-b bg-white/80")
		h.open("nav", "mx-auto flex max-w-5xl items-center gap-6 p-4", "id", "main-nav", "hx-boost", "true")
		h.el("a", "font-bold", "LoanHub", "href", "/")
		h.open("ul", "flex flex-1 gap-4")
		for _, item := range data.Nav.Items {
			class := "text-slate-600 hover:text-indigo-600"
			if item.URL == data.ActiveNav {
				class = twmerge.Merge(class, "text-indigo-700 font-semibold")
			}
			h.open("li", "")
			h.raw("<a")
			h.attr("class", class)
			h.href(item.URL)
			if item.URL == data.ActiveNav {
				h.attr("aria-current", "page")
			}
			h.raw(">")
			h.text(item.Name)
			h.close("a")
			h.close("li")
		}
		h.close("ul")

		if data.Identity != nil {
			h.open("div", "flex items-center gap-3", "id", "account")
			name := data.Identity.DisplayName
			if name == "" {
				name = data.Identity.Email
			}
			h.el("span", "text-sm", name, "id", "account-name")
			if data.Role != nil {
				h.el("span", "rounded bg-indigo-100 px-2 py-0.5 text-xs text-indigo-800", Label(string(data.Role.Role)), "id", "account-role")
			}
			h.open("form", "", "method", "post", "action", "/logout")
			h.button("Sign out", "bg-slate-700 px-3 py-1 text-sm")
			h.close("form")
			h.close("div")
		}

		h.open("form", "", "method", "post", "action", "/theme")
		next := "dark"
		if data.Theme == "dark" {
			next = "light"
		}
		h.hidden("theme", next)
		h.button("Theme: "+Label(themeOrDefault(data.Theme)), "bg-transparent px-2 py-1 text-sm text-slate-500", "id", "theme-toggle")
		h.close("form")

		h.close("nav")
		h.close("header")
	})
}

func themeOrDefault(theme string) string {
	if theme == "dark" {
		return "dark"
	}
	return "light"
}
