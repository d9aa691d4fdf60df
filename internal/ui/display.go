// Package ui formats the gateway's operator output: change events, the
// registration document, heartbeat state and ancestry checks.
package ui

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/schollz/progressbar/v3"

	"github.com/tonimelisma/onedrive-gateway/internal/access"
	"github.com/tonimelisma/onedrive-gateway/internal/delta"
	"github.com/tonimelisma/onedrive-gateway/internal/registration"
	"github.com/tonimelisma/onedrive-gateway/internal/session"
)

const timeLayout = "2006-01-02 15:04:05 MST"

// Success prints a success message.
func Success(w io.Writer, msg string) {
	fmt.Fprintf(w, "✓ %s\n", msg)
}

// PrintError prints an error message to stderr.
func PrintError(err error) {
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Local().Format(timeLayout)
}

// DisplayBatch prints the outcome of a delta pass and its classified events.
func DisplayBatch(w io.Writer, batch delta.Batch, events []delta.Event) {
	fmt.Fprintf(w, "Resource:     %s\n", batch.Resource)
	fmt.Fprintf(w, "Since:        %s\n", formatTime(batch.LastChecked))
	fmt.Fprintf(w, "Checkpoint:   %s", batch.Token)
	if batch.Persisted {
		fmt.Fprint(w, " (saved)")
	}
	fmt.Fprintln(w)
	fmt.Fprintln(w)
	DisplayEvents(w, events)
}

// DisplayEvents prints one line per event.
func DisplayEvents(w io.Writer, events []delta.Event) {
	if len(events) == 0 {
		fmt.Fprintln(w, "No changes.")
		return
	}
	fmt.Fprintf(w, "%-16s %-36s %s\n", "Event", "ID", "Name")
	fmt.Fprintf(w, "%-16s %-36s %s\n", "-----", "--", "----")
	for _, ev := range events {
		fmt.Fprintf(w, "%-16s %-36s %s\n", ev.Type, ev.Item.ID, ev.Item.Name)
	}
}

// DisplayRegistrations prints the registration document.
func DisplayRegistrations(w io.Writer, doc registration.Document) {
	if len(doc.Registrations) == 0 {
		fmt.Fprintln(w, "No webhook registrations.")
		return
	}
	for i, reg := range doc.Registrations {
		if i > 0 {
			fmt.Fprintln(w)
		}
		DisplayRegistration(w, reg)
	}
}

// DisplayRegistration prints a single registration.
func DisplayRegistration(w io.Writer, reg registration.Registration) {
	fmt.Fprintf(w, "Resource:       %s\n", reg.Resource)
	fmt.Fprintf(w, "Subscription:   %s\n", reg.RegistrationID)
	fmt.Fprintf(w, "Drive:          %s\n", reg.DriveID)
	fmt.Fprintf(w, "Expires:        %s\n", formatTime(reg.ExpirationDateTime))
	lastChecked := "-"
	if reg.LastChecked != nil {
		lastChecked = formatTime(*reg.LastChecked)
	}
	fmt.Fprintf(w, "Last checked:   %s\n", lastChecked)
	fmt.Fprintf(w, "Token:          %s\n", reg.Token)
}

// DisplayHeartbeat prints the last recorded heartbeat run of this host.
func DisplayHeartbeat(w io.Writer, state *session.State) {
	if state == nil {
		fmt.Fprintln(w, "No heartbeat has run on this host.")
		return
	}
	fmt.Fprintf(w, "Last heartbeat: %s (%s)\n", state.Outcome, formatTime(state.FinishedAt))
	if state.Error != "" {
		fmt.Fprintf(w, "Error:          %s\n", state.Error)
	}
}

// DisplayContainment prints the answer of an ancestry check.
func DisplayContainment(w io.Writer, id string, folders []string, depth int, inside bool) {
	bound := "unbounded"
	if depth >= 0 {
		bound = fmt.Sprintf("depth %d", depth)
	}
	verdict := "is not"
	if inside {
		verdict = "is"
	}
	fmt.Fprintf(w, "Item %s %s inside %v (%s)\n", id, verdict, folders, bound)
}

// DisplayDecision prints the roles and folders granted to email at sign-in.
func DisplayDecision(w io.Writer, email string, d access.Decision) {
	fmt.Fprintf(w, "Email:   %s\n", email)
	fmt.Fprintf(w, "Roles:   %s\n", joinOrDash(d.Roles))
	fmt.Fprintf(w, "Read:    %s\n", joinOrDash(d.Read))
	fmt.Fprintf(w, "Write:   %s\n", joinOrDash(d.Write))
}

func joinOrDash(values []string) string {
	if len(values) == 0 {
		return "-"
	}
	return strings.Join(values, ", ")
}

// NewSpinner returns an indeterminate progress indicator on stderr.
func NewSpinner(description string) *progressbar.ProgressBar {
	if description == "" {
		description = "Processing..."
	}
	return progressbar.NewOptions(-1,
		progressbar.OptionSetDescription(description),
		progressbar.OptionSetWriter(os.Stderr),
		progressbar.OptionThrottle(100*time.Millisecond),
		progressbar.OptionShowCount(),
		progressbar.OptionSpinnerType(14),
		progressbar.OptionClearOnFinish(),
	)
}
