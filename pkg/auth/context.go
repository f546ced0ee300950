package auth

import (
	"context"
	"net/http"
	"sort"
	"strings"

	"github.com/getkin/kin-openapi/openapi3"
)

// AuthContext carries caller credentials from an inbound HTTP request to the
// outbound backend call
type AuthContext struct {
	Authorization string
	APIKey        string
}

// Empty reports whether no credential was supplied
func (a *AuthContext) Empty() bool {
	return a == nil || (a.Authorization == "" && a.APIKey == "")
}

type contextKey string

const authContextKey contextKey = "auth"

// FromRequest extracts the passthrough credentials of r
func FromRequest(r *http.Request) *AuthContext {
	return &AuthContext{
		Authorization: strings.TrimSpace(r.Header.Get("Authorization")),
		APIKey:        strings.TrimSpace(r.Header.Get("X-API-Key")),
	}
}

// WithAuthContext attaches authCtx to ctx; empty contexts are not attached
func WithAuthContext(ctx context.Context, authCtx *AuthContext) context.Context {
	if authCtx.Empty() {
		return ctx
	}
	return context.WithValue(ctx, authContextKey, authCtx)
}

// FromContext returns the AuthContext attached to ctx
func FromContext(ctx context.Context) (*AuthContext, bool) {
	authCtx, ok := ctx.Value(authContextKey).(*AuthContext)
	return authCtx, ok
}

// Scheme describes the first security scheme declared by a document
type Scheme struct {
	Name     string
	Type     string // api_key, bearer or basic
	Location string // header or query
	Param    string
}

// ExtractAuthSchemeFromSpec returns the first supported security scheme of
// doc in name order, or nil
func ExtractAuthSchemeFromSpec(doc *openapi3.T) *Scheme {
	if doc == nil || doc.Components == nil || doc.Components.SecuritySchemes == nil {
		return nil
	}

	names := make([]string, 0, len(doc.Components.SecuritySchemes))
	for name := range doc.Components.SecuritySchemes {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		ref := doc.Components.SecuritySchemes[name]
		if ref == nil || ref.Value == nil {
			continue
		}
		switch ref.Value.Type {
		case "apiKey":
			location := "header"
			if ref.Value.In == "query" {
				location = "query"
			}
			return &Scheme{Name: name, Type: "api_key", Location: location, Param: ref.Value.Name}
		case "http":
			switch strings.ToLower(ref.Value.Scheme) {
			case "bearer":
				return &Scheme{Name: name, Type: "bearer", Location: "header", Param: "Authorization"}
			case "basic":
				return &Scheme{Name: name, Type: "basic", Location: "header", Param: "Authorization"}
			}
		}
	}
	return nil
}
