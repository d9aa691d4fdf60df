package gate

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"regexp"
	"strings"

	"github.com/tonimelisma/onedrive-gateway/internal/policy"
	"github.com/tonimelisma/onedrive-gateway/internal/server"
)

const maxBatchBody = 4 << 20

// BatchRequest is one entry of a JSON $batch body.
type BatchRequest struct {
	ID     string `json:"id"`
	Method string `json:"method"`
	URL    string `json:"url"`
}

type batchBody struct {
	Requests []BatchRequest `json:"requests"`
}

var driveResource = regexp.MustCompile(`^/drives/([^/]+)(?:/items/([^/]+)(?:/.*)?|/.*)?$`)

// batchPath returns the decoded path of a sub-request URL. Dot segments,
// doubled slashes and trailing slashes are refused so the path Graph resolves
// is the one that was authorised.
func batchPath(raw string) (string, error) {
	p, _, _ := strings.Cut(strings.TrimSpace(raw), "?")
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	decoded, err := url.PathUnescape(p)
	if err != nil {
		return "", err
	}
	if path.Clean(decoded) != decoded {
		return "", fmt.Errorf("path %q is not canonical", raw)
	}
	for _, seg := range strings.Split(decoded, "/") {
		if seg == ".." || seg == "." {
			return "", fmt.Errorf("path %q has dot segments", raw)
		}
	}
	return decoded, nil
}

// AuthorizeBatch checks every sub-request with the same rules as direct calls.
// Only drive resources may be batched; one denied entry denies the batch.
func (g *Gate) AuthorizeBatch(ctx context.Context, requests []BatchRequest, acc policy.ItemAccessConfiguration) error {
	if len(requests) == 0 {
		return fmt.Errorf("%w: empty batch", ErrBadRequest)
	}
	for _, req := range requests {
		p, err := batchPath(req.URL)
		if err != nil {
			return fmt.Errorf("%w: batch entry %s: %w", ErrNotAuthorised, req.ID, err)
		}
		m := driveResource.FindStringSubmatch(p)
		if m == nil {
			return fmt.Errorf("%w: batch entry %s targets a non-drive resource", ErrNotAuthorised, req.ID)
		}
		method := strings.ToUpper(req.Method)
		if m[2] != "" {
			err = g.AuthorizeItem(ctx, method, m[1], m[2], acc)
		} else {
			err = g.AuthorizeDrive(method, m[1])
		}
		if err != nil {
			return fmt.Errorf("batch entry %s: %w", req.ID, err)
		}
	}
	return nil
}

func (p *Proxy) serveBatch(w http.ResponseWriter, r *http.Request) {
	if !p.requireVersion(w, r) {
		return
	}
	raw, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBatchBody))
	if err != nil {
		server.WriteError(w, server.NewBadRequestError("unreadable batch body"))
		return
	}
	var body batchBody
	if err := json.Unmarshal(raw, &body); err != nil {
		server.WriteError(w, server.NewValidationError(map[string]string{"requests": "must be a JSON batch"}))
		return
	}

	acc := p.claims.Resolve(r)
	if err := p.gate.AuthorizeBatch(r.Context(), body.Requests, acc); err != nil {
		if errors.Is(err, ErrBadRequest) {
			server.WriteError(w, server.NewValidationError(map[string]string{"requests": "must not be empty"}))
			return
		}
		p.deny(w, r, err)
		return
	}

	r.Body = io.NopCloser(bytes.NewReader(raw))
	r.ContentLength = int64(len(raw))
	p.forward(w, r)
}
