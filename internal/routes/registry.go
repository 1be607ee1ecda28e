// Package routes binds URL prefixes to feature handlers and declares which
// prefixes need an authenticated principal and which quota classes they consume.
package routes

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/pkg/errors"

	"github.com/aman-churiwal/crm-gateway/internal/apiresponses"
	"github.com/aman-churiwal/crm-gateway/internal/middleware"
	"github.com/aman-churiwal/crm-gateway/internal/ratelimit"
)

type AuthMode int

const (
	// AuthNone prefixes are public.
	AuthNone AuthMode = iota
	// AuthRequired prefixes run the auth gate before any handler.
	AuthRequired
	// AuthPerRoute prefixes leave the decision to the feature, which receives the gate.
	AuthPerRoute
)

func (m AuthMode) String() string {
	switch m {
	case AuthNone:
		return "none"
	case AuthRequired:
		return "required"
	case AuthPerRoute:
		return "per-route"
	default:
		return "unknown"
	}
}

// Binding declares one API prefix.
type Binding struct {
	Prefix string
	Auth   AuthMode
}

// Feature is a handler set mounted under a binding's prefix. auth is the gate for
// features that protect only some of their routes.
type Feature interface {
	Register(rg *gin.RouterGroup, auth gin.HandlerFunc)
}

// Mount pairs a feature with the prefix it serves.
type Mount struct {
	Prefix  string
	Feature Feature
}

// Bindings is the full prefix table. Every prefix also falls under the general quota.
var Bindings = []Binding{
	{Prefix: "/api/public", Auth: AuthNone},
	{Prefix: "/api/admin", Auth: AuthPerRoute},
	{Prefix: "/api/crm", Auth: AuthRequired},
	{Prefix: "/api/lms", Auth: AuthRequired},
	{Prefix: "/api/attendance", Auth: AuthRequired},
	{Prefix: "/api/employees", Auth: AuthRequired},
	{Prefix: "/api/chat", Auth: AuthPerRoute},
	{Prefix: "/api/admission", Auth: AuthRequired},
	{Prefix: "/api/field-agent", Auth: AuthRequired},
	{Prefix: "/api/student", Auth: AuthPerRoute},
	{Prefix: "/api/tasks", Auth: AuthRequired},
	{Prefix: "/api/announcements", Auth: AuthRequired},
	{Prefix: "/api/study-materials", Auth: AuthRequired},
	{Prefix: "/api/success", Auth: AuthRequired},
	{Prefix: "/api/documents", Auth: AuthRequired},
	{Prefix: "/api/queries", Auth: AuthRequired},
	{Prefix: "/api/emp-queries", Auth: AuthRequired},
	{Prefix: "/api/notifications", Auth: AuthRequired},
	{Prefix: "/api/trash", Auth: AuthRequired},
}

// QuotaRules are the paths that consume a specific class on top of general.
var QuotaRules = []middleware.QuotaRule{
	{Prefix: "/api/admin/login", Class: ratelimit.ClassAuth},
	{Prefix: "/api/admin/refresh-token", Class: ratelimit.ClassAuth},
	{Prefix: "/api/admin/verify-otp", Class: ratelimit.ClassOTPVerify},
	{Prefix: "/api/admin/profile/password/request-otp", Class: ratelimit.ClassOTPRequest},
	{Prefix: "/api/admin/employees/request-otp", Class: ratelimit.ClassOTPRequest},
	{Prefix: "/api/student/login", Class: ratelimit.ClassStudentAuth},
	{Prefix: "/api/public/intake", Class: ratelimit.ClassPublicForm},
	{Prefix: "/api/public/enquiry", Class: ratelimit.ClassPublicForm},
}

// Registry collects features before they are mounted on the engine.
type Registry struct {
	bindings map[string]Binding
	order    []string
	features map[string][]Feature
}

func NewRegistry(bindings []Binding) *Registry {
	r := &Registry{
		bindings: make(map[string]Binding, len(bindings)),
		features: make(map[string][]Feature),
	}
	for _, b := range bindings {
		prefix := strings.TrimSuffix(b.Prefix, "/")
		if _, dup := r.bindings[prefix]; dup {
			continue
		}
		b.Prefix = prefix
		r.bindings[prefix] = b
		r.order = append(r.order, prefix)
	}
	return r
}

// Add attaches f to a declared prefix.
func (r *Registry) Add(prefix string, f Feature) error {
	prefix = strings.TrimSuffix(prefix, "/")
	if _, ok := r.bindings[prefix]; !ok {
		return errors.Errorf("routes: prefix %q is not declared", prefix)
	}
	r.features[prefix] = append(r.features[prefix], f)
	return nil
}

// Lookup returns the binding whose prefix owns path.
func (r *Registry) Lookup(path string) (Binding, bool) {
	var best Binding
	found := false
	for _, prefix := range r.order {
		if path != prefix && !strings.HasPrefix(path, prefix+"/") {
			continue
		}
		if !found || len(prefix) > len(best.Prefix) {
			best = r.bindings[prefix]
			found = true
		}
	}
	return best, found
}

// Mount registers every feature under its prefix. AuthRequired prefixes with no
// feature still run the gate so unauthenticated callers get 401 rather than 404.
func (r *Registry) Mount(engine *gin.Engine, auth gin.HandlerFunc) {
	for _, prefix := range r.order {
		b := r.bindings[prefix]
		group := engine.Group(prefix)
		if b.Auth == AuthRequired {
			group.Use(auth)
		}

		features := r.features[prefix]
		if len(features) == 0 {
			if b.Auth == AuthRequired {
				group.Any("/*path", notMounted)
			}
			continue
		}
		for _, f := range features {
			f.Register(group, auth)
		}
	}
}

func notMounted(c *gin.Context) {
	_ = c.Error(apiresponses.NewHTTPError(http.StatusNotFound,
		errors.Errorf("route not found: %s %s", c.Request.Method, c.Request.URL.Path)))
	c.Abort()
}
