package callback

import (
	"context"
	"errors"
	"fmt"
	"html/template"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"blurclient/internal/checkout"
	"blurclient/internal/identity"
	"blurclient/internal/infra"
)

// Result is the outcome of one checkout redirect.
type Result struct {
	UserID   string
	Plan     string
	Unlocked bool
}

// Server is the loopback listener the checkout provider redirects back to.
// It terminates the upgrade flow: the /success hit triggers entitlement
// reconciliation and renders a confirmation page, the CLI picks the outcome
// up through WaitForRedirect.
type Server struct {
	reconciler *checkout.Reconciler
	ident      *identity.Store
	logger     infra.Logger
	port       int
	results    chan Result
}

func NewServer(reconciler *checkout.Reconciler, ident *identity.Store, port int, logger infra.Logger) *Server {
	return &Server{
		reconciler: reconciler,
		ident:      ident,
		logger:     logger,
		port:       port,
		results:    make(chan Result, 1),
	}
}

// Handler builds the chi router. Exposed separately so tests can drive it
// without binding a socket.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(s.requestLog)
	r.Get("/success", s.handleSuccess)
	return r
}

// WaitForRedirect serves the callback endpoint until the first successful
// reconciliation or context cancellation.
func (s *Server) WaitForRedirect(ctx context.Context) (*Result, error) {
	server := &http.Server{
		Addr:         fmt.Sprintf("127.0.0.1:%d", s.port),
		Handler:      s.Handler(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	select {
	case result := <-s.results:
		return &result, nil
	case err := <-errCh:
		return nil, fmt.Errorf("callback: serve: %w", err)
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (s *Server) handleSuccess(w http.ResponseWriter, r *http.Request) {
	userID := strings.TrimSpace(r.URL.Query().Get("user_id"))
	plan := strings.TrimSpace(r.URL.Query().Get("plan"))
	if userID == "" {
		// The provider may strip query params; fall back to the stored identity.
		stored, err := s.ident.Current(r.Context())
		if err == nil {
			userID = stored
		}
	}
	if userID == "" {
		s.logger.Error().Msg("callback: missing user_id and no stored identity")
		s.renderError(w, "Missing user_id parameter")
		return
	}

	unlocked, err := s.reconciler.Reconcile(r.Context(), userID)
	if err != nil {
		s.logger.Error().Err(err).Msg("callback: reconciliation failed")
		s.renderError(w, "Could not verify your subscription, please contact support")
		return
	}

	s.renderSuccess(w, plan)
	select {
	case s.results <- Result{UserID: userID, Plan: plan, Unlocked: unlocked}:
	default:
	}
}

var successPage = template.Must(template.New("success").Parse(`<!doctype html>
<html><head><title>Subscription activated</title></head>
<body style="font-family:sans-serif;text-align:center;padding-top:4rem">
<h1>Success!</h1>
<p>{{if .Plan}}Your {{.Plan}} subscription is now active!{{else}}Your subscription is now active!{{end}}</p>
<p>You can close this window and return to the terminal.</p>
</body></html>`))

func (s *Server) renderSuccess(w http.ResponseWriter, plan string) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_ = successPage.Execute(w, struct{ Plan string }{Plan: displayPlan(plan)})
}

func (s *Server) renderError(w http.ResponseWriter, message string) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusBadRequest)
	fmt.Fprintf(w, `<!doctype html><html><body style="font-family:sans-serif;text-align:center;padding-top:4rem"><h1>Error</h1><p>%s</p></body></html>`, template.HTMLEscapeString(message))
}

// displayPlan turns a wire plan identifier into a display name, e.g.
// "pro_plus" becomes "Pro Plus".
func displayPlan(plan string) string {
	if plan == "" {
		return ""
	}
	spaced := strings.ReplaceAll(strings.ToLower(plan), "_", " ")
	return cases.Title(language.English).String(spaced)
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (sw *statusWriter) WriteHeader(code int) {
	sw.status = code
	sw.ResponseWriter.WriteHeader(code)
}

func (s *Server) requestLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(sw, r)
		s.logger.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", sw.status).
			Dur("elapsed", time.Since(start)).
			Msg("callback request")
	})
}
