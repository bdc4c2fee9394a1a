package pages

import (
	"context"
	"strconv"

	"github.com/a-h/templ"

	"github.com/FACorreiaa/go-loanhub/internal/app/models"
)

func StatsPanel(title string, stats models.Stats) templ.Component {
	return component(func(_ context.Context, h *html) {
		h.open("section", "", "id", "stats")
		h.el("h1", "mb-4 text-2xl font-bold", title)
		if len(stats) == 0 {
			h.el("p", "text-slate-500", "No statistics yet.")
		}
		h.open("dl", "grid grid-cols-3 gap-4")
		for _, k := range stats.Keys() {
			h.open("div", "rounded border bg-white p-4", "data-stat", k)
			h.el("dt", "text-sm text-slate-500", Label(k))
			h.el("dd", "text-2xl font-semibold", strconv.FormatFloat(stats[k], 'f', -1, 64))
			h.close("div")
		}
		h.close("dl")
		h.close("section")
	})
}

func table(h *html, id string, headers ...string) {
	h.open("table", "w-full border-collapse bg-white text-left text-sm", "id", id)
	h.open("thead", "border-b")
	h.open("tr", "")
	for _, hd := range headers {
		h.el("th", "p-2", hd)
	}
	h.close("tr")
	h.close("thead")
	h.open("tbody", "")
}

func endTable(h *html) {
	h.close("tbody")
	h.close("table")
}

// UsersTable lists every user with an inline role/status form.
func UsersTable(users []models.UserRecord, message string) templ.Component {
	return component(func(_ context.Context, h *html) {
		h.el("h1", "mb-4 text-2xl font-bold", "Manage users")
		h.alert("info", message)
		table(h, "users", "Name", "Email", "Role", "Status", "")
		for _, u := range users {
			h.open("tr", "border-b", "data-user", u.Email)
			h.el("td", "p-2", u.Name)
			h.el("td", "p-2", u.Email)
			h.el("td", "p-2", Label(string(u.Role)))
			h.el("td", "p-2", Label(string(u.Status)))
			h.open("td", "p-2")
			h.open("form", "flex gap-2", "method", "post", "action", "/dashboard/manage-users/"+u.ID)
			h.hidden("email", u.Email)
			h.open("select", "rounded border", "name", "role")
			for _, r := range []models.Role{models.RoleBorrower, models.RoleManager, models.RoleAdmin} {
				h.raw("<option")
				h.attr("value", string(r))
				if u.Role == r {
					h.raw(" selected")
				}
				h.raw(">")
				h.text(Label(string(r)))
				h.close("option")
			}
			h.close("select")
			h.open("select", "rounded border", "name", "status")
			for _, s := range []models.Status{models.StatusActive, models.StatusSuspended} {
				h.raw("<option")
				h.attr("value", string(s))
				if u.Status == s {
					h.raw(" selected")
				}
				h.raw(">")
				h.text(Label(string(s)))
				h.close("option")
			}
			h.close("select")
			h.raw("<input")
			h.attr("class", "rounded border px-2")
			h.attr("name", "suspend_reason")
			h.attr("placeholder", "Suspension reason")
			h.attr("value", u.SuspendReason)
			h.raw(">")
			h.button("Save", "px-2 py-1")
			h.close("form")
			h.close("td")
			h.close("tr")
		}
		endTable(h)
	})
}

func LoansTable(loans []models.LoanOffer) templ.Component {
	return component(func(_ context.Context, h *html) {
		h.el("h1", "mb-4 text-2xl font-bold", "All loans")
		table(h, "loans", "Title", "Category", "Interest", "Max limit")
		for _, l := range loans {
			h.open("tr", "border-b", "data-loan", l.ID)
			h.el("td", "p-2", l.Title)
			h.el("td", "p-2", l.Category)
			h.el("td", "p-2", money(l.InterestRate)+"%")
			h.el("td", "p-2", money(l.MaxLimit))
			h.close("tr")
		}
		endTable(h)
	})
}

// ApplicationsTable lists applications. With payable set, unpaid rows get a
// link to the fee checkout.
func ApplicationsTable(title string, apps []models.LoanApplication, payable bool) templ.Component {
	return component(func(_ context.Context, h *html) {
		h.el("h1", "mb-4 text-2xl font-bold", title)
		if len(apps) == 0 {
			h.el("p", "text-slate-500", "No applications.", "id", "no-applications")
			return
		}
		table(h, "applications", "Loan", "Borrower", "Amount", "Status", "Fee")
		for _, a := range apps {
			h.open("tr", "border-b", "data-application", a.ID)
			h.el("td", "p-2", a.LoanTitle)
			h.el("td", "p-2", a.BorrowerEmail)
			h.el("td", "p-2", money(a.Amount))
			h.el("td", "p-2", Label(string(a.Status)))
			h.open("td", "p-2")
			if payable && a.FeeStatus != models.FeePaid {
				h.el("a", "text-indigo-600", "Pay fee", "href", "/dashboard/my-loans/"+a.ID+"/pay")
			} else {
				h.text(Label(string(a.FeeStatus)))
			}
			h.close("td")
			h.close("tr")
		}
		endTable(h)
	})
}

type ProfileData struct {
	Identity *models.Identity
	Role     *models.RoleRecord
	Message  string
	Error    string
}

func ProfilePage(data ProfileData) templ.Component {
	return component(func(_ context.Context, h *html) {
		h.open("section", "max-w-lg rounded border bg-white p-6", "id", "profile")
		h.el("h1", "mb-4 text-2xl font-bold", "My profile")
		h.alert("info", data.Message)
		h.alert("error", data.Error)
		if data.Identity == nil {
			h.close("section")
			return
		}
		if data.Identity.PhotoURL != "" {
			h.raw("<img")
			h.attr("class", "mb-4 h-16 w-16 rounded-full")
			h.attr("src", string(templ.URL(data.Identity.PhotoURL)))
			h.attr("alt", "")
			h.raw(">")
		}
		h.open("dl", "mb-6")
		h.el("dt", "text-sm text-slate-500", "Email")
		h.el("dd", "", data.Identity.Email, "id", "profile-email")
		if data.Role != nil {
			h.el("dt", "text-sm text-slate-500", "Role")
			h.el("dd", "", Label(string(data.Role.Role)), "id", "profile-role")
		}
		h.close("dl")

		h.open("form", "", "method", "post", "action", "/dashboard/profile")
		h.input("Display name", "text", "name", data.Identity.DisplayName)
		h.input("Photo URL", "url", "photo_url", data.Identity.PhotoURL)
		h.button("Save", "")
		h.close("form")
		h.close("section")
	})
}

type CheckoutData struct {
	Application    models.LoanApplication
	Amount         int64
	Currency       string
	ClientSecret   string
	PaymentIntent  string
	PublishableKey string
}

// PaymentCheckout mounts Stripe Elements for the application fee and posts
// the PaymentIntent id back for confirmation.
func PaymentCheckout(data CheckoutData) templ.Component {
	return component(func(_ context.Context, h *html) {
		h.open("section", "max-w-lg rounded border bg-white p-6", "id", "checkout")
		h.el("h1", "mb-2 text-2xl font-bold", "Application fee")
		h.el("p", "mb-4", data.Application.LoanTitle+": "+money(float64(data.Amount)/100)+" "+data.Currency, "id", "fee-amount")
		h.raw("<div")
		h.attr("id", "payment-element")
		h.attr("data-client-secret", data.ClientSecret)
		h.attr("data-publishable-key", data.PublishableKey)
		h.raw("></div>")
		h.open("form", "mt-4", "method", "post", "action", "/dashboard/my-loans/"+data.Application.ID+"/pay", "id", "confirm-payment")
		h.hidden("payment_intent", data.PaymentIntent)
		h.button("Confirm payment", "")
		h.close("form")
		h.raw("<script")
		h.attr("src", "https://js.stripe.com/v3/")
		h.raw("></script>")
		h.close("section")
	})
}
