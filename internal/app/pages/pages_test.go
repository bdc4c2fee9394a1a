package pages

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/PuerkitoBio/goquery"
	"github.com/a-h/templ"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/FACorreiaa/go-loanhub/internal/app/models"
)

func renderDoc(t *testing.T, c templ.Component) *goquery.Document {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, c.Render(context.Background(), &buf))
	doc, err := goquery.NewDocumentFromReader(&buf)
	require.NoError(t, err)
	return doc
}

func TestLayoutPage(t *testing.T) {
	data := models.LayoutTempl{
		Title:    "Admin",
		Identity: &models.Identity{Email: "ada@x.com", DisplayName: "<Ada>"},
		Role:     &models.RoleRecord{Role: models.RoleAdmin, Status: models.StatusActive},
		Nav: models.Navigation{Items: []models.NavItem{
			{Name: "Admin Home", URL: "/dashboard/admin-home"},
			{Name: "My Profile", URL: "/dashboard/profile"},
		}},
		ActiveNav: "/dashboard/admin-home",
		Theme:     "dark",
		Content:   Notice("Hello", "world"),
	}
	doc := renderDoc(t, LayoutPage(data))

	assert.Equal(t, "Admin · LoanHub", doc.Find("title").Text())
	assert.Equal(t, 2, doc.Find("#main-nav li").Length())
	active := doc.Find(`#main-nav a[aria-current="page"]`)
	assert.Equal(t, "Admin Home", active.Text())
	assert.Equal(t, "<Ada>", doc.Find("#account-name").Text())
	assert.Equal(t, "Admin", doc.Find("#account-role").Text())
	assert.Equal(t, "/logout", doc.Find("#account form").AttrOr("action", ""))
	assert.Equal(t, "dark", doc.Find("body").AttrOr("data-theme", ""))
	assert.Equal(t, "light", doc.Find(`form[action="/theme"] input[name="theme"]`).AttrOr("value", ""))
	assert.Equal(t, "Hello", doc.Find("#content #notice h1").Text())
}

func TestLayoutPageSignedOut(t *testing.T) {
	doc := renderDoc(t, LayoutPage(models.LayoutTempl{Title: "Sign in", Nav: models.OfflineNav, Content: LoginPage(LoginData{})}))
	assert.Zero(t, doc.Find("#account").Length())
	assert.Equal(t, 2, doc.Find("#main-nav li").Length())
}

func TestLoadingPagePolls(t *testing.T) {
	doc := renderDoc(t, LoadingPage("/dashboard/admin-home?x=1"))

	assert.Equal(t, "1", doc.Find(`meta[http-equiv="refresh"]`).AttrOr("content", ""))
	loading := doc.Find("#loading")
	assert.Equal(t, "/dashboard/admin-home?x=1", loading.AttrOr("hx-get", ""))
	assert.Equal(t, "every 1s", loading.AttrOr("hx-trigger", ""))
	assert.Zero(t, doc.Find("#main-nav").Length(), "no chrome while loading")
}

func TestSuspendedPage(t *testing.T) {
	doc := renderDoc(t, SuspendedPage("Unpaid fees"))

	assert.Equal(t, "Unpaid fees", doc.Find("#suspend-reason").Text())
	forms := doc.Find("form")
	require.Equal(t, 1, forms.Length(), "sign-out is the only action")
	assert.Equal(t, "/logout", forms.AttrOr("action", ""))
	assert.Zero(t, doc.Find("nav").Length())
}

func TestLoginPage(t *testing.T) {
	doc := renderDoc(t, LoginPage(LoginData{
		From:       "/dashboard/admin-home",
		Email:      "ada@x.com",
		Error:      "Invalid email or password",
		SignedInAs: "bob@x.com",
	}))

	assert.Equal(t, "/dashboard/admin-home", doc.Find(`#login input[name="from"]`).First().AttrOr("value", ""))
	assert.Equal(t, "ada@x.com", doc.Find("#email").AttrOr("value", ""))
	assert.Equal(t, "Invalid email or password", doc.Find(`[data-kind="error"]`).Text())
	assert.Contains(t, doc.Find(`[data-kind="info"]`).Text(), "bob@x.com")
	assert.Zero(t, doc.Find("#federated").Length())
}

func TestRegisterPageOffersSelfServiceRoles(t *testing.T) {
	doc := renderDoc(t, RegisterPage(RegisterData{Role: models.RoleManager}))

	var values []string
	doc.Find("#role option").Each(func(_ int, s *goquery.Selection) {
		values = append(values, s.AttrOr("value", ""))
	})
	assert.Equal(t, []string{"borrower", "manager"}, values)
	_, selected := doc.Find(`#role option[value="manager"]`).Attr("selected")
	assert.True(t, selected)
}

func TestApplicationsTable(t *testing.T) {
	apps := []models.LoanApplication{
		{ID: "a1", LoanTitle: "Seed", BorrowerEmail: "b@x.com", Amount: 500, Status: models.ApplicationPending, FeeStatus: models.FeeUnpaid},
		{ID: "a2", LoanTitle: "Grow", BorrowerEmail: "b@x.com", Amount: 900, Status: models.ApplicationApproved, FeeStatus: models.FeePaid},
	}

	doc := renderDoc(t, ApplicationsTable("My loans", apps, true))
	assert.Equal(t, "/dashboard/my-loans/a1/pay", doc.Find(`[data-application="a1"] a`).AttrOr("href", ""))
	assert.Zero(t, doc.Find(`[data-application="a2"] a`).Length())
	assert.Equal(t, "Paid", strings.TrimSpace(doc.Find(`[data-application="a2"] td`).Last().Text()))

	doc = renderDoc(t, ApplicationsTable("Pending applications", apps, false))
	assert.Zero(t, doc.Find("a").Length())

	doc = renderDoc(t, ApplicationsTable("Pending applications", nil, false))
	assert.Equal(t, 1, doc.Find("#no-applications").Length())
}

func TestUsersTableForms(t *testing.T) {
	doc := renderDoc(t, UsersTable([]models.UserRecord{
		{ID: "u1", Email: "b@x.com", Name: "Bo", Role: models.RoleBorrower, Status: models.StatusSuspended},
	}, ""))

	row := doc.Find(`[data-user="b@x.com"]`)
	assert.Equal(t, "/dashboard/manage-users/u1", row.Find("form").AttrOr("action", ""))
	_, selected := row.Find(`select[name="status"] option[value="suspended"]`).Attr("selected")
	assert.True(t, selected)
}

func TestStatsPanelIsSorted(t *testing.T) {
	doc := renderDoc(t, StatsPanel("Overview", models.Stats{"users": 3, "loans": 2.5}))

	var keys []string
	doc.Find("[data-stat]").Each(func(_ int, s *goquery.Selection) {
		keys = append(keys, s.AttrOr("data-stat", ""))
	})
	assert.Equal(t, []string{"loans", "users"}, keys)
	assert.Equal(t, "2.5", doc.Find(`[data-stat="loans"] dd`).Text())
}

func TestProfilePageRejectsUnsafePhotoURL(t *testing.T) {
	doc := renderDoc(t, ProfilePage(ProfileData{
		Identity: &models.Identity{Email: "ada@x.com", PhotoURL: "javascript:alert(1)"},
	}))
	assert.NotContains(t, doc.Find("img").AttrOr("src", ""), "javascript")
}
