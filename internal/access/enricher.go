package access

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/tonimelisma/onedrive-gateway/internal/logger"
	"github.com/tonimelisma/onedrive-gateway/internal/server"
	"github.com/tonimelisma/onedrive-gateway/pkg/onedrive"
)

const (
	apiConnectorVersion = "1.0.0"
	actionContinue      = "Continue"
	actionBlock         = "ShowBlockPage"
	// BlockMessage is shown by the identity provider when sign-in is refused.
	BlockMessage = "You are not authorized to access this resource."

	RoleAdmin     = "ADMIN"
	RoleAnonymous = "ANONYMOUS"
	customerRole  = "CUSTOMER:"
)

// ErrNoRoles means the identity matched no rule and public access is off.
var ErrNoRoles = errors.New("no roles granted")

// Directory is the slice of Graph the enricher reads.
type Directory interface {
	GetUser(ctx context.Context, id string) (onedrive.User, error)
	CustomerDirectory
}

// Rules is the static authorization policy applied at sign-in.
type Rules struct {
	AnonymousReadFolders  []string
	AnonymousWriteFolders []string
	AllowedDomains        []string
	AdminDomains          []string
	CustomerFolders       bool
	PublicAccess          bool
}

// Decision is the outcome of applying Rules to one email.
type Decision struct {
	Read  []string
	Write []string
	Roles []string
}

// Enricher serves the sign-in claims enrichment endpoint.
type Enricher struct {
	dir       Directory
	customers *AccessCache
	rules     Rules
	timeout   time.Duration
	logger    logger.Logger
}

// NewEnricher creates an Enricher.
func NewEnricher(dir Directory, customers *AccessCache, rules Rules, log logger.Logger) *Enricher {
	return &Enricher{dir: dir, customers: customers, rules: rules, timeout: 20 * time.Second, logger: log}
}

// Evaluate applies the rules to email.
func (e *Enricher) Evaluate(ctx context.Context, email string) (Decision, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	var d Decision

	if e.rules.CustomerFolders && e.customers != nil {
		ids, err := e.customers.FoldersFor(ctx, email)
		if err != nil {
			return Decision{}, fmt.Errorf("resolving customer folders: %w", err)
		}
		d.Read = append(d.Read, ids...)
		d.Write = append(d.Write, ids...)
		for _, id := range ids {
			d.Roles = append(d.Roles, customerRole+id)
		}
	}

	d.Read = append(d.Read, e.rules.AnonymousReadFolders...)
	d.Write = append(d.Write, e.rules.AnonymousWriteFolders...)

	if domainListed(email, e.rules.AllowedDomains) {
		d.Roles = append([]string{RoleAnonymous}, d.Roles...)
	}

	if domainListed(email, e.rules.AdminDomains) {
		d.Roles = append([]string{RoleAdmin}, d.Roles...)
		if e.customers != nil {
			all, err := e.customers.AllFolders(ctx)
			if err != nil {
				return Decision{}, fmt.Errorf("listing customer folders: %w", err)
			}
			d.Read = append(d.Read, all...)
			d.Write = append(d.Write, all...)
		}
	}

	if len(d.Roles) == 0 && !e.rules.PublicAccess {
		return Decision{}, ErrNoRoles
	}
	d.Read = dedupe(d.Read)
	d.Write = dedupe(d.Write)
	return d, nil
}

type enrichmentRequest struct {
	ObjectID string `json:"objectId"`
	Email    string `json:"email"`
}

// ServeHTTP handles POST /auth. The identity provider only understands 200
// responses, so outcomes are encoded in the body.
func (e *Enricher) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	raw, err := io.ReadAll(io.LimitReader(r.Body, 64<<10))
	if err != nil {
		server.WriteError(w, server.NewBadRequestError("unreadable body"))
		return
	}
	var req enrichmentRequest
	if err := json.Unmarshal(raw, &req); err != nil || (req.ObjectID == "" && req.Email == "") {
		server.WriteError(w, server.NewValidationError(map[string]string{"objectId": "Required"}))
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), e.timeout)
	defer cancel()

	email, err := e.emailFor(ctx, req)
	if err != nil {
		e.logger.Warn("enrichment identity lookup failed", "objectId", req.ObjectID, "error", err)
		server.WriteJSON(w, http.StatusOK, continueResponse(nil))
		return
	}

	d, err := e.Evaluate(ctx, email)
	switch {
	case errors.Is(err, ErrNoRoles):
		e.logger.Info("sign-in blocked", "email", email)
		server.WriteJSON(w, http.StatusOK, map[string]string{
			"version":     apiConnectorVersion,
			"action":      actionBlock,
			"userMessage": BlockMessage,
		})
	case err != nil:
		e.logger.Warn("enrichment failed, granting no extra claims", "email", email, "error", err)
		server.WriteJSON(w, http.StatusOK, continueResponse(nil))
	default:
		e.logger.Debug("sign-in enriched", "email", email, "roles", d.Roles)
		server.WriteJSON(w, http.StatusOK, continueResponse(&d))
	}
}

func (e *Enricher) emailFor(ctx context.Context, req enrichmentRequest) (string, error) {
	if req.ObjectID == "" {
		return req.Email, nil
	}
	user, err := e.dir.GetUser(ctx, req.ObjectID)
	if err != nil {
		if req.Email != "" {
			return req.Email, nil
		}
		return "", err
	}
	if email := user.Email(); email != "" {
		return email, nil
	}
	if req.Email != "" {
		return req.Email, nil
	}
	return "", fmt.Errorf("user %s has no email address", req.ObjectID)
}

func continueResponse(d *Decision) map[string]string {
	res := map[string]string{
		"version": apiConnectorVersion,
		"action":  actionContinue,
	}
	if d != nil {
		res[ClaimApprovedReadItems] = strings.Join(d.Read, ",")
		res[ClaimApprovedWriteItems] = strings.Join(d.Write, ",")
		res[ClaimRole] = strings.Join(d.Roles, ",")
	}
	return res
}

func domainListed(email string, domains []string) bool {
	for _, d := range domains {
		d = strings.ToLower(strings.TrimPrefix(strings.TrimSpace(d), "@"))
		if d != "" && strings.HasSuffix(email, "@"+d) {
			return true
		}
	}
	return false
}

func dedupe(ids []string) []string {
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id != "" && !slices.Contains(out, id) {
			out = append(out, id)
		}
	}
	return out
}
