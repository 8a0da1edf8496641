package middleware

import (
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

type CORSOptions struct {
	// AllowedOrigins holds exact origins or host wildcards such as
	// "https://*.wattwise.app". An empty list accepts any origin.
	AllowedOrigins   []string
	AllowedMethods   []string
	AllowedHeaders   []string
	ExposeHeaders    []string
	AllowCredentials bool
	MaxAge           time.Duration
}

var (
	defaultCORSMethods = []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete}
	defaultCORSHeaders = []string{"Authorization", "Content-Type", RequestIDHeader}
)

const defaultCORSMaxAge = 10 * time.Minute

type originPattern struct {
	scheme string
	host   string
	suffix bool
}

type corsPolicy struct {
	anyOrigin   bool
	origins     []originPattern
	methods     map[string]bool
	headers     map[string]bool
	methodList  string
	exposeList  string
	credentials bool
	maxAge      string
}

// NewCORS answers preflight requests and decorates actual responses for the
// dashboard origins. Preflights from a denied origin, or asking for a method or
// header outside the policy, get 403 without CORS headers.
func NewCORS(opts CORSOptions) func(http.Handler) http.Handler {
	p := newCORSPolicy(opts)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			if origin == "" {
				next.ServeHTTP(w, r)
				return
			}
			if r.Method == http.MethodOptions && r.Header.Get("Access-Control-Request-Method") != "" {
				p.preflight(w, r, origin)
				return
			}

			w.Header().Add("Vary", "Origin")
			if p.allowOrigin(origin) {
				p.setOrigin(w, origin)
				if p.exposeList != "" {
					w.Header().Set("Access-Control-Expose-Headers", p.exposeList)
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}

func newCORSPolicy(opts CORSOptions) *corsPolicy {
	p := &corsPolicy{
		methods:     make(map[string]bool),
		headers:     make(map[string]bool),
		exposeList:  strings.Join(opts.ExposeHeaders, ", "),
		credentials: opts.AllowCredentials,
	}
	for _, raw := range opts.AllowedOrigins {
		raw = strings.TrimSpace(raw)
		switch {
		case raw == "":
		case raw == "*":
			p.anyOrigin = true
		default:
			if pattern, ok := parseOriginPattern(raw); ok {
				p.origins = append(p.origins, pattern)
			}
		}
	}
	if len(p.origins) == 0 {
		p.anyOrigin = true
	}

	methods := opts.AllowedMethods
	if len(methods) == 0 {
		methods = defaultCORSMethods
	}
	for _, m := range methods {
		p.methods[strings.ToUpper(m)] = true
	}
	p.methodList = strings.Join(methods, ", ")

	headers := opts.AllowedHeaders
	if len(headers) == 0 {
		headers = defaultCORSHeaders
	}
	for _, h := range headers {
		p.headers[http.CanonicalHeaderKey(h)] = true
	}

	maxAge := opts.MaxAge
	if maxAge <= 0 {
		maxAge = defaultCORSMaxAge
	}
	p.maxAge = strconv.Itoa(int(maxAge / time.Second))
	return p
}

func parseOriginPattern(raw string) (originPattern, bool) {
	u, err := url.Parse(raw)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return originPattern{}, false
	}
	host := strings.ToLower(u.Host)
	if rest, ok := strings.CutPrefix(host, "*."); ok {
		return originPattern{scheme: u.Scheme, host: "." + rest, suffix: true}, true
	}
	return originPattern{scheme: u.Scheme, host: host}, true
}

func (p *corsPolicy) allowOrigin(origin string) bool {
	if p.anyOrigin {
		return true
	}
	u, err := url.Parse(origin)
	if err != nil {
		return false
	}
	host := strings.ToLower(u.Host)
	for _, pattern := range p.origins {
		if pattern.scheme != u.Scheme {
			continue
		}
		if pattern.suffix && strings.HasSuffix(host, pattern.host) && len(host) > len(pattern.host) {
			return true
		}
		if !pattern.suffix && pattern.host == host {
			return true
		}
	}
	return false
}

func (p *corsPolicy) setOrigin(w http.ResponseWriter, origin string) {
	w.Header().Set("Access-Control-Allow-Origin", origin)
	if p.credentials {
		w.Header().Set("Access-Control-Allow-Credentials", "true")
	}
}

func (p *corsPolicy) preflight(w http.ResponseWriter, r *http.Request, origin string) {
	w.Header().Add("Vary", "Origin")
	w.Header().Add("Vary", "Access-Control-Request-Method")
	w.Header().Add("Vary", "Access-Control-Request-Headers")

	method := strings.ToUpper(r.Header.Get("Access-Control-Request-Method"))
	requested, ok := p.requestedHeaders(r.Header.Get("Access-Control-Request-Headers"))
	if !p.allowOrigin(origin) || !p.methods[method] || !ok {
		w.WriteHeader(http.StatusForbidden)
		return
	}

	p.setOrigin(w, origin)
	w.Header().Set("Access-Control-Allow-Methods", p.methodList)
	if requested != "" {
		w.Header().Set("Access-Control-Allow-Headers", requested)
	}
	w.Header().Set("Access-Control-Max-Age", p.maxAge)
	w.WriteHeader(http.StatusNoContent)
}

// requestedHeaders returns the canonical requested header list, or false when
// any of them is outside the policy.
func (p *corsPolicy) requestedHeaders(raw string) (string, bool) {
	var out []string
	for _, h := range strings.Split(raw, ",") {
		h = strings.TrimSpace(h)
		if h == "" {
			continue
		}
		h = http.CanonicalHeaderKey(h)
		if !p.headers[h] {
			return "", false
		}
		out = append(out, h)
	}
	return strings.Join(out, ", "), true
}
