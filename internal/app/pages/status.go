package pages

import (
	"context"

	"github.com/a-h/templ"
)

// LoadingPage blocks the screen while the session or role is settling and
// polls refreshURL until the server can decide.
func LoadingPage(refreshURL string) templ.Component {
	return component(func(_ context.Context, h *html) {
		head(h, "Loading", func() {
			h.raw("<meta")
			h.attr("http-equiv", "refresh")
			h.attr("content", "1")
			h.raw(">")
		})
		h.open("body", bodyClass(""))
		h.open("div", "flex min-h-screen items-center justify-center",
			"id", "loading",
			"role", "status",
			"aria-busy", "true",
			"hx-get", refreshURL,
			"hx-trigger", "every 1s",
			"hx-select", "body",
			"hx-target", "body",
			"hx-swap", "outerHTML",
		)
		h.el("div", "h-10 w-10 animate-spin rounded-full border-4 border-indigo-600 border-t-transparent", "")
		h.el("span", "sr-only", "Loading…")
		h.close("div")
		h.raw("</body></html>")
	})
}

// SuspendedPage is the dead-end screen shown to a suspended account. Its
// only action is signing out.
func SuspendedPage(reason string) templ.Component {
	return component(func(_ context.Context, h *html) {
		head(h, "Account suspended", nil)
		h.open("body", bodyClass(""))
		h.open("div", "mx-auto mt-24 max-w-md rounded border bg-white p-8 text-center", "id", "suspended")
		h.el("h1", "mb-2 text-2xl font-bold text-red-700", "Your account is suspended")
		if reason != "" {
			h.el("p", "mb-4 text-slate-600", reason, "id", "suspend-reason")
		} else {
			h.el("p", "mb-4 text-slate-600", "Please contact support for more information.")
		}
		h.open("form", "", "method", "post", "action", "/logout")
		h.button("Sign out", "")
		h.close("form")
		h.close("div")
		h.raw("</body></html>")
	})
}

// Notice is a titled message rendered inside the layout.
func Notice(title, message string) templ.Component {
	return component(func(_ context.Context, h *html) {
		h.open("section", "rounded border bg-white p-6", "id", "notice")
		h.el("h1", "mb-2 text-xl font-semibold", title)
		h.el("p", "text-slate-600", message)
		h.close("section")
	})
}
