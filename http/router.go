package http

import (
	"cmp"
	"fmt"
	"slices"
	"strings"
	"sync/atomic"
)

// Route binds a handler to a verb and a path. Prefix routes match any path
// that starts with Path.
type Route struct {
	Verb    Verb
	Path    string
	Prefix  bool
	Handler Handler
}

type routeKey struct {
	verb Verb
	path string
}

// Router resolves (verb, path) to a handler: exact routes first, then prefix
// routes in registration order. Paths never carry the leading slash.
//
// A Router is filled before the server starts and read concurrently after;
// the server freezes it and late registration panics.
type Router struct {
	exact    map[routeKey]Route
	prefixes []Route
	frozen   atomic.Bool
}

func NewRouter() *Router {
	return &Router{
		exact:    make(map[routeKey]Route),
		prefixes: make([]Route, 0),
	}
}

func (router *Router) Get(path string, handler Handler, middleware ...Middleware) {
	router.Register(VerbGet, path, handler, middleware...)
}

func (router *Router) Head(path string, handler Handler, middleware ...Middleware) {
	router.Register(VerbHead, path, handler, middleware...)
}

func (router *Router) Post(path string, handler Handler, middleware ...Middleware) {
	router.Register(VerbPost, path, handler, middleware...)
}

func (router *Router) Put(path string, handler Handler, middleware ...Middleware) {
	router.Register(VerbPut, path, handler, middleware...)
}

func (router *Router) Delete(path string, handler Handler, middleware ...Middleware) {
	router.Register(VerbDelete, path, handler, middleware...)
}

func (router *Router) GetPrefix(prefix string, handler Handler, middleware ...Middleware) {
	router.RegisterPrefix(VerbGet, prefix, handler, middleware...)
}

func (router *Router) PostPrefix(prefix string, handler Handler, middleware ...Middleware) {
	router.RegisterPrefix(VerbPost, prefix, handler, middleware...)
}

// Register binds handler to exactly (verb, path). Registering the same pair
// twice panics.
func (router *Router) Register(verb Verb, path string, handler Handler, middleware ...Middleware) {
	router.add(Route{Verb: verb, Path: path, Handler: handler}, middleware)
}

// RegisterPrefix binds handler to every path starting with prefix.
func (router *Router) RegisterPrefix(verb Verb, prefix string, handler Handler, middleware ...Middleware) {
	router.add(Route{Verb: verb, Path: prefix, Prefix: true, Handler: handler}, middleware)
}

func (router *Router) add(route Route, middleware []Middleware) {
	if router.frozen.Load() {
		panic(fmt.Errorf("%w: %s %s", ErrRouteAfterStart, route.Verb, route.Path))
	}
	if route.Handler == nil {
		panic(fmt.Sprintf("http: nil handler for %s %s", route.Verb, route.Path))
	}

	for _, mw := range middleware {
		route.Handler = mw(route.Handler)
	}
	route.Path = strings.TrimPrefix(route.Path, "/")

	if route.Prefix {
		router.prefixes = append(router.prefixes, route)
		return
	}

	key := routeKey{verb: route.Verb, path: route.Path}
	if _, dup := router.exact[key]; dup {
		panic(fmt.Sprintf("http: duplicate route %s /%s", route.Verb, route.Path))
	}
	router.exact[key] = route
}

// Group registers the routes added by groupFunc under path, wrapping each
// with middlewareList.
func (router *Router) Group(path string, groupFunc func(group *Router), middlewareList ...Middleware) {
	group := NewRouter()

	groupFunc(group)

	base := strings.Trim(path, "/")
	join := func(p string) string {
		if p == "" {
			return base
		}
		return base + "/" + p
	}

	for _, route := range group.exactRoutes() {
		router.add(Route{Verb: route.Verb, Path: join(route.Path), Handler: route.Handler}, middlewareList)
	}
	for _, route := range group.prefixes {
		router.add(Route{Verb: route.Verb, Path: join(route.Path), Prefix: true, Handler: route.Handler}, middlewareList)
	}
}

// Lookup finds the handler for verb and path (without leading slash).
func (router *Router) Lookup(verb Verb, path string) (Handler, bool) {
	if route, ok := router.exact[routeKey{verb: verb, path: path}]; ok {
		return route.Handler, true
	}
	for _, route := range router.prefixes {
		if route.Verb == verb && strings.HasPrefix(path, route.Path) {
			return route.Handler, true
		}
	}
	return nil, false
}

// Routes lists the registered routes, exact ones sorted by path and verb
// followed by prefixes in registration order.
func (router *Router) Routes() []Route {
	routes := make([]Route, 0, len(router.exact)+len(router.prefixes))
	routes = append(routes, router.exactRoutes()...)
	return append(routes, router.prefixes...)
}

func (router *Router) exactRoutes() []Route {
	routes := make([]Route, 0, len(router.exact))
	for _, route := range router.exact {
		routes = append(routes, route)
	}
	slices.SortFunc(routes, func(a, b Route) int {
		return cmp.Or(cmp.Compare(a.Path, b.Path), cmp.Compare(a.Verb, b.Verb))
	})
	return routes
}

func (router *Router) freeze() {
	router.frozen.Store(true)
}
