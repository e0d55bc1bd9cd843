package notify

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/iliyamo/dose-reminder/internal/doselink"
	"github.com/iliyamo/dose-reminder/internal/model"
)

//go:embed templates/*.html
var templateFS embed.FS

type emailData struct {
	Title        string
	Color        string
	Name         string
	Medicine     string
	Dose         string
	Unit         string
	ScheduledFor string
	ConfirmURL   string
	SkipURL      string
	Pills        int
}

// LinkSigner issues the token carried by a one-click dose link.
// doselink.Signer implements it.
type LinkSigner interface {
	Sign(action doselink.Action, userID, medicineID string, scheduledAt time.Time) (string, error)
}

// Composer renders the three email kinds.
type Composer struct {
	appURL     string
	links      LinkSigner
	reminder   *template.Template
	lowStock   *template.Template
	lastRefill *template.Template
}

// ComposerOption configures a Composer.
type ComposerOption func(*Composer)

// WithLinkSigner makes reminder buttons one-click links that work without
// a bearer token.
func WithLinkSigner(s LinkSigner) ComposerOption {
	return func(c *Composer) { c.links = s }
}

// NewComposer parses the embedded templates.  appURL is the public base
// of the API used for the confirm and skip links.
func NewComposer(appURL string, opts ...ComposerOption) (*Composer, error) {
	c := &Composer{appURL: strings.TrimRight(appURL, "/")}
	for _, opt := range opts {
		opt(c)
	}
	var err error
	if c.reminder, err = parse("reminder.html"); err != nil {
		return nil, err
	}
	if c.lowStock, err = parse("low_stock.html"); err != nil {
		return nil, err
	}
	if c.lastRefill, err = parse("last_refill.html"); err != nil {
		return nil, err
	}
	return c, nil
}

func parse(name string) (*template.Template, error) {
	t, err := template.ParseFS(templateFS, "templates/layout.html", "templates/"+name)
	if err != nil {
		return nil, fmt.Errorf("parse template %s: %w", name, err)
	}
	return t, nil
}

func render(t *template.Template, d emailData) (string, error) {
	var buf bytes.Buffer
	if err := t.ExecuteTemplate(&buf, "layout", d); err != nil {
		return "", fmt.Errorf("render %s: %w", d.Title, err)
	}
	return buf.String(), nil
}

func displayName(u model.User) string {
	if u.FullName != "" {
		return u.FullName
	}
	return u.Email
}

// DoseLink builds the confirm or skip link for one occurrence.  With a
// LinkSigner it is GET /doses/{action}?token=...; without one it is the
// authenticated API call POST /v1/doses/{action} with the occurrence in
// the query.
func (c *Composer) DoseLink(action doselink.Action, userID, medicineID string, scheduledAt time.Time) (string, error) {
	q := url.Values{}
	if c.links == nil {
		q.Set("medicine_id", medicineID)
		q.Set("scheduled_at", scheduledAt.UTC().Format(time.RFC3339))
		return c.appURL + "/v1/doses/" + string(action) + "?" + q.Encode(), nil
	}
	tok, err := c.links.Sign(action, userID, medicineID, scheduledAt)
	if err != nil {
		return "", err
	}
	q.Set("token", tok)
	return c.appURL + "/doses/" + string(action) + "?" + q.Encode(), nil
}

// Reminder renders the dose reminder.  The scheduled time is shown in loc.
func (c *Composer) Reminder(u model.User, m model.Medicine, scheduledAt time.Time, loc *time.Location) (Notification, error) {
	if loc == nil {
		loc = time.UTC
	}
	confirm, err := c.DoseLink(doselink.ActionConfirm, u.ID, m.ID, scheduledAt)
	if err != nil {
		return Notification{}, err
	}
	skip, err := c.DoseLink(doselink.ActionSkip, u.ID, m.ID, scheduledAt)
	if err != nil {
		return Notification{}, err
	}
	html, err := render(c.reminder, emailData{
		Title:        "Medication Reminder",
		Color:        "#4CAF50",
		Name:         displayName(u),
		Medicine:     m.Name,
		Dose:         strconv.FormatFloat(m.Dose, 'f', -1, 64),
		Unit:         m.Unit,
		ScheduledFor: scheduledAt.In(loc).Format("Mon Jan 2 2006 15:04 MST"),
		ConfirmURL:   confirm,
		SkipURL:      skip,
	})
	if err != nil {
		return Notification{}, err
	}
	return Notification{To: u.Email, Subject: "Medication Reminder: " + m.Name, HTML: html}, nil
}

// LowStock renders the low stock alert.
func (c *Composer) LowStock(u model.User, m model.Medicine, inv model.Inventory) (Notification, error) {
	html, err := render(c.lowStock, emailData{
		Title:    "Low Stock Alert",
		Color:    "#ff9800",
		Name:     displayName(u),
		Medicine: m.Name,
		Pills:    inv.CurrentPills,
	})
	if err != nil {
		return Notification{}, err
	}
	return Notification{To: u.Email, Subject: "Low Stock Alert: " + m.Name, HTML: html}, nil
}

// LastRefill renders the last refill alert.
func (c *Composer) LastRefill(u model.User, m model.Medicine, inv model.Inventory) (Notification, error) {
	html, err := render(c.lastRefill, emailData{
		Title:    "Last Refill Alert",
		Color:    "#f44336",
		Name:     displayName(u),
		Medicine: m.Name,
		Pills:    inv.CurrentPills,
	})
	if err != nil {
		return Notification{}, err
	}
	return Notification{To: u.Email, Subject: "Last Refill Alert: " + m.Name, HTML: html}, nil
}
