// Package outpost provides typed namespaces over the Outpost REST API:
// endpoints, their predictors and model/dataset repositories. Every call goes
// through a client.Client.
package outpost

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strings"

	"github.com/outpost-run/outpost-go/pkg/client"
)

// ErrNoPrimaryDomain is returned when an endpoint has no domain to send
// predictions to.
var ErrNoPrimaryDomain = errors.New("endpoint has no primary domain")

// User is the short form of a user embedded in other resources.
type User struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	DisplayName string `json:"displayName,omitempty"`
	AvatarURL   string `json:"avatarUrl,omitempty"`
}

// CurrentUser returns the user owning the client token.
func CurrentUser(ctx context.Context, c *client.Client) (map[string]any, error) {
	var u map[string]any
	if err := c.DoJSON(ctx, http.MethodGet, "/user", nil, &u); err != nil {
		return nil, err
	}
	return u, nil
}

// joinPath builds an API path from segments, escaping each one.
func joinPath(segments ...string) string {
	var sb strings.Builder
	for _, s := range segments {
		sb.WriteByte('/')
		sb.WriteString(url.PathEscape(s))
	}
	return sb.String()
}

// repoPath makes p start with a slash and escapes each of its elements.
func repoPath(p string) string {
	p = strings.Trim(p, "/")
	if p == "" {
		return "/"
	}
	return joinPath(strings.Split(p, "/")...)
}
