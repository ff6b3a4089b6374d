package middleware

import (
	"log/slog"
	"net/http"
	"net/http/pprof"
	"strings"
)

// ProfilingConfig gates the pprof endpoints. Enabled is refused outright in
// production-like environments: heap and goroutine dumps can contain JWT
// secrets and session data.
type ProfilingConfig struct {
	Enabled     bool
	Environment string
}

// Profiling mounts the net/http/pprof handlers under /debug/pprof/ when
// enabled. Requests outside that prefix pass through untouched.
func Profiling(config ProfilingConfig) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if !config.Enabled {
			return next
		}
		if config.Environment == "production" || config.Environment == "prod" {
			slog.Error("refusing to enable profiling in a production environment",
				"environment", config.Environment)
			return next
		}

		slog.Warn("pprof endpoints enabled at /debug/pprof/",
			"environment", config.Environment)

		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !strings.HasPrefix(r.URL.Path, "/debug/pprof") {
				next.ServeHTTP(w, r)
				return
			}
			switch r.URL.Path {
			case "/debug/pprof/cmdline":
				pprof.Cmdline(w, r)
			case "/debug/pprof/profile":
				pprof.Profile(w, r)
			case "/debug/pprof/symbol":
				pprof.Symbol(w, r)
			case "/debug/pprof/trace":
				pprof.Trace(w, r)
			default:
				// Index also serves the named profiles (heap, goroutine, ...).
				pprof.Index(w, r)
			}
		})
	}
}
