package auth

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/google/uuid"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
)

// LoopbackAuthorizer runs the installed-application OAuth flow: the user opens the consent
// page in a browser and the provider redirects back to a listener on 127.0.0.1.
type LoopbackAuthorizer struct {
	config  oauth2.Config
	openURL func(string) error
	timeout time.Duration
	addr    string
}

// LoopbackOption configures a LoopbackAuthorizer.
type LoopbackOption func(*LoopbackAuthorizer)

// WithOpener sets how the consent URL is presented. The default prints it to stderr.
func WithOpener(open func(url string) error) LoopbackOption {
	return func(a *LoopbackAuthorizer) {
		a.openURL = open
	}
}

// WithEndpoint overrides the provider endpoint.
func WithEndpoint(endpoint oauth2.Endpoint) LoopbackOption {
	return func(a *LoopbackAuthorizer) {
		a.config.Endpoint = endpoint
	}
}

// WithLoginTimeout bounds how long the user has to finish the consent page.
func WithLoginTimeout(d time.Duration) LoopbackOption {
	return func(a *LoopbackAuthorizer) {
		a.timeout = d
	}
}

// NewLoopbackAuthorizer creates an authorizer for the given client. An empty scope
// requests DriveFileScope.
func NewLoopbackAuthorizer(clientID, clientSecret, scope string, opts ...LoopbackOption) *LoopbackAuthorizer {
	if scope == "" {
		scope = DriveFileScope
	}
	a := &LoopbackAuthorizer{
		config: oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			Endpoint:     google.Endpoint,
			Scopes:       []string{scope},
		},
		openURL: func(url string) error {
			_, err := fmt.Fprintf(os.Stderr, "Open this URL in your browser to sign in:\n\n  %s\n\n", url)
			return err
		},
		timeout: 5 * time.Minute,
		addr:    "127.0.0.1:0",
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

type callbackResult struct {
	code string
	err  error
}

// Authorize implements Authorizer.
func (a *LoopbackAuthorizer) Authorize(ctx context.Context) (*oauth2.Token, error) {
	if a.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.timeout)
		defer cancel()
	}

	ln, err := net.Listen("tcp", a.addr)
	if err != nil {
		return nil, fmt.Errorf("failed to start redirect listener: %w", err)
	}

	conf := a.config
	conf.RedirectURL = fmt.Sprintf("http://%s/callback", ln.Addr().String())

	state := uuid.NewString()
	verifier := oauth2.GenerateVerifier()

	results := make(chan callbackResult, 1)
	mux := http.NewServeMux()
	mux.HandleFunc("/callback", func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		var res callbackResult
		switch {
		case q.Get("state") != state:
			res.err = &AuthError{Reason: "state mismatch in redirect"}
		case q.Get("error") == "access_denied":
			res.err = &AuthError{Reason: "access denied by user", Err: ErrLoginCancelled}
		case q.Get("error") != "":
			res.err = &AuthError{Reason: q.Get("error")}
		case q.Get("code") == "":
			res.err = &AuthError{Reason: "redirect carried no authorization code"}
		default:
			res.code = q.Get("code")
		}
		if res.err != nil {
			http.Error(w, "Sign-in failed. You can close this window.", http.StatusBadRequest)
		} else {
			fmt.Fprintln(w, "Signed in. You can close this window.")
		}
		select {
		case results <- res:
		default:
		}
	})

	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 10 * time.Second}
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			select {
			case results <- callbackResult{err: fmt.Errorf("redirect listener failed: %w", err)}:
			default:
			}
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	authURL := conf.AuthCodeURL(state, oauth2.AccessTypeOffline, oauth2.S256ChallengeOption(verifier))
	if err := a.openURL(authURL); err != nil {
		return nil, fmt.Errorf("failed to present login URL: %w", err)
	}

	select {
	case <-ctx.Done():
		return nil, &AuthError{Reason: "login cancelled", Err: ctx.Err()}
	case res := <-results:
		if res.err != nil {
			return nil, res.err
		}
		token, err := conf.Exchange(ctx, res.code, oauth2.VerifierOption(verifier))
		if err != nil {
			return nil, &AuthError{Reason: "token exchange failed", Err: err}
		}
		return token, nil
	}
}
