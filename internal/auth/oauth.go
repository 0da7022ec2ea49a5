// Package auth provides the OAuth2 client/token plumbing shared by the
// provider adapters: an endpoint-agnostic helper any adapter can
// configure with its own client id/secret file, token file, and endpoint.
package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"time"

	"golang.org/x/oauth2"
)

// ClientCredentials is the subset of a downloaded OAuth client file this
// package needs. Google's credentials.json and a hand-rolled Azure AD app
// registration file are both shaped this way once unwrapped.
type ClientCredentials struct {
	ClientID     string   `json:"clientId"`
	ClientSecret string   `json:"clientSecret,omitempty"`
	RedirectURL  string   `json:"redirectUrl,omitempty"`
	Scopes       []string `json:"scopes,omitempty"`
}

// LoadCredentials reads a small JSON client-credentials file from disk.
func LoadCredentials(path string) (*ClientCredentials, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read client credentials %s: %w", path, err)
	}

	var c ClientCredentials
	if err := json.Unmarshal(b, &c); err != nil {
		return nil, fmt.Errorf("parse client credentials %s: %w", path, err)
	}

	return &c, nil
}

// localCallbackPort is the port the local redirect listener binds to during
// the browser authorization flow.
const localCallbackPort = "6789"

// GetClient returns an authenticated *http.Client for endpoint/scopes,
// loading a cached token from tokenFile or running the browser-based
// authorization code flow when the file is missing or cannot be decoded.
// A cached token that fails to refresh does not start the browser flow:
// the refresh check runs in the background and only logs a warning.
func GetClient(ctx context.Context, endpoint oauth2.Endpoint, creds *ClientCredentials, scopes []string, tokenFile string) (*http.Client, error) {
	cfg := &oauth2.Config{
		ClientID:     creds.ClientID,
		ClientSecret: creds.ClientSecret,
		Endpoint:     endpoint,
		Scopes:       scopes,
		RedirectURL:  fmt.Sprintf("http://localhost:%s/oauth2callback", localCallbackPort),
	}

	tok, err := tokenFromFile(tokenFile)
	if err != nil {
		log.Printf("no cached token at %s, starting browser authorization", tokenFile)

		tok, err = getTokenFromWeb(cfg)
		if err != nil {
			return nil, fmt.Errorf("authorize: %w", err)
		}

		if saveErr := saveToken(tokenFile, tok); saveErr != nil {
			log.Printf("warning: failed to cache token at %s: %v", tokenFile, saveErr)
		}
	}

	client := cfg.Client(ctx, tok)

	go func() {
		refreshed, err := cfg.TokenSource(ctx, tok).Token()
		if err != nil {
			log.Printf("warning: could not check token for refresh: %v", err)
			return
		}

		if refreshed.AccessToken != tok.AccessToken {
			if err := saveToken(tokenFile, refreshed); err != nil {
				log.Printf("warning: failed to persist refreshed token: %v", err)
			}
		}
	}()

	return client, nil
}

func getTokenFromWeb(cfg *oauth2.Config) (*oauth2.Token, error) {
	codeCh := make(chan string, 1)
	errCh := make(chan error, 1)

	listener, err := net.Listen("tcp", ":"+localCallbackPort)
	if err != nil {
		return nil, fmt.Errorf("listen on port %s: %w", localCallbackPort, err)
	}
	defer listener.Close()

	server := &http.Server{
		Handler: http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			code := r.URL.Query().Get("code")
			if code == "" {
				http.Error(w, "missing authorization code", http.StatusBadRequest)
				errCh <- fmt.Errorf("authorization callback missing code")

				return
			}

			fmt.Fprint(w, "Authentication successful, you can close this window.")
			codeCh <- code
		}),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	go func() {
		if err := server.Serve(listener); err != nil && err != http.ErrServerClosed {
			errCh <- fmt.Errorf("callback server: %w", err)
		}
	}()

	authURL := cfg.AuthCodeURL("state-token", oauth2.AccessTypeOffline, oauth2.SetAuthURLParam("prompt", "consent"))
	fmt.Printf("Open the following URL to authorize:\n%s\n", authURL)

	select {
	case code := <-codeCh:
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		tok, err := cfg.Exchange(ctx, code)
		if err != nil {
			return nil, fmt.Errorf("exchange authorization code: %w", err)
		}

		_ = server.Shutdown(ctx)

		return tok, nil
	case err := <-errCh:
		return nil, err
	case <-time.After(5 * time.Minute):
		_ = server.Shutdown(context.Background())
		return nil, fmt.Errorf("authorization timed out")
	}
}

func tokenFromFile(path string) (*oauth2.Token, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	tok := &oauth2.Token{}
	if err := json.NewDecoder(f).Decode(tok); err != nil {
		return nil, fmt.Errorf("decode token file %s: %w", path, err)
	}

	return tok, nil
}

func saveToken(path string, tok *oauth2.Token) error {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0o600)
	if err != nil {
		return fmt.Errorf("open token file %s: %w", path, err)
	}
	defer f.Close()

	return json.NewEncoder(f).Encode(tok)
}
