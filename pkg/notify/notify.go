// Package notify composes station escalation notifications and hands them
// to the mail collaborator.
package notify

import (
	"context"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/petnica-meteor-group/meteornet-server/pkg/models"
)

// Notification is one composed escalation message
type Notification struct {
	NetworkID string   `json:"network_id"`
	Status    string   `json:"status"`
	From      string   `json:"from,omitempty"`
	To        []string `json:"to"`
	Subject   string   `json:"subject"`
	Body      string   `json:"body"`
}

// Notifier delivers notifications
type Notifier interface {
	Notify(ctx context.Context, n *Notification) error
}

var validate = validator.New()

// ValidEmail reports whether addr is a well-formed email address.
func ValidEmail(addr string) bool {
	return validate.Var(addr, "required,email") == nil
}

// Subject returns the notification subject line for a site
func Subject(site string) string {
	return fmt.Sprintf("[%s] Station notification", site)
}

// Compose builds the notification sent when station escalates to status.
// Maintainers without a valid email address are returned in skipped.
func Compose(site, from string, station models.Station, status models.Status, broken []models.StatusRule, maintainers []models.Person) (n *Notification, skipped []models.Person) {
	var body strings.Builder
	body.WriteString(station.Name + " status changed to " + status.Name + "!\n\n")
	for _, rule := range broken {
		body.WriteString("\t- " + rule.Message + "\n")
	}

	n = &Notification{
		NetworkID: station.NetworkID,
		Status:    status.Name,
		From:      from,
		Subject:   Subject(site),
		Body:      body.String(),
	}

	seen := make(map[string]bool)
	for _, m := range maintainers {
		addr := strings.TrimSpace(m.Email)
		if !ValidEmail(addr) {
			skipped = append(skipped, m)
			continue
		}
		if seen[addr] {
			continue
		}
		seen[addr] = true
		n.To = append(n.To, addr)
	}

	return n, skipped
}
