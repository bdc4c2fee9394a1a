package pages

import (
	"context"

	"github.com/a-h/templ"

	"github.com/FACorreiaa/go-loanhub/internal/app/models"
)

type LoginData struct {
	From       string
	Email      string
	Error      string
	// SignedInAs is set when a signed-in user was sent here by a guard.
	SignedInAs string
	Federated  bool
}

func LoginPage(data LoginData) templ.Component {
	return component(func(_ context.Context, h *html) {
		h.open("section", "mx-auto max-w-md rounded border bg-white p-8", "id", "login")
		h.el("h1", "mb-6 text-2xl font-bold", "Sign in")
		if data.SignedInAs != "" {
			h.alert("info", "Signed in as "+data.SignedInAs+". That page needs a different account.")
		}
		h.alert("error", data.Error)

		h.open("form", "", "method", "post", "action", "/login", "hx-post", "/login", "hx-target", "#login", "hx-swap", "outerHTML")
		h.hidden("from", data.From)
		h.input("Email", "email", "email", data.Email, "required", "required", "autocomplete", "email")
		h.input("Password", "password", "password", "", "required", "required", "autocomplete", "current-password")
		h.button("Sign in", "w-full")
		h.close("form")

		if data.Federated {
			h.open("form", "mt-4", "method", "post", "action", "/login/federated", "id", "federated")
			h.hidden("from", data.From)
			h.hidden("id_token", "")
			h.button("Continue with Google", "w-full bg-white text-slate-800 border")
			h.close("form")
		}

		h.open("p", "mt-6 text-sm")
		h.text("No account yet? ")
		h.el("a", "text-indigo-600", "Register", "href", "/register")
		h.close("p")
		h.close("section")
	})
}

type RegisterData struct {
	Email    string
	Name     string
	PhotoURL string
	Role     models.Role
	Error    string
}

func RegisterPage(data RegisterData) templ.Component {
	return component(func(_ context.Context, h *html) {
		h.open("section", "mx-auto max-w-md rounded border bg-white p-8", "id", "register")
		h.el("h1", "mb-6 text-2xl font-bold", "Create an account")
		h.alert("error", data.Error)

		h.open("form", "", "method", "post", "action", "/register", "hx-post", "/register", "hx-target", "#register", "hx-swap", "outerHTML")
		h.input("Name", "text", "name", data.Name, "required", "required")
		h.input("Email", "email", "email", data.Email, "required", "required", "autocomplete", "email")
		h.input("Photo URL", "url", "photo_url", data.PhotoURL)
		h.input("Password", "password", "password", "", "required", "required", "autocomplete", "new-password")

		h.open("label", "block mb-4")
		h.el("span", "block text-sm font-medium mb-1", "I want to")
		h.open("select", "w-full rounded border px-3 py-2", "name", "role", "id", "role")
		for _, opt := range []struct {
			role  models.Role
			label string
		}{
			{models.RoleBorrower, "Borrow"},
			{models.RoleManager, "Manage loans"},
		} {
			h.raw("<option")
			h.attr("value", string(opt.role))
			if data.Role == opt.role {
				h.raw(" selected")
			}
			h.raw(">")
			h.text(opt.label)
			h.close("option")
		}
		h.close("select")
		h.close("label")

		h.button("Register", "w-full")
		h.close("form")
		h.close("section")
	})
}
