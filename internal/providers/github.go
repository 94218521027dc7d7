package providers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/github"
)

// GitHub implements Provider against the GitHub OAuth and REST APIs.
// GitHub only exposes addresses it has itself confirmed, so profiles from
// this provider are treated as email-verified downstream.
type GitHub struct {
	cfg     *oauth2.Config
	apiBase string
}

func NewGitHub(clientID, clientSecret, redirectURL string) *GitHub {
	return &GitHub{
		cfg: &oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			RedirectURL:  redirectURL,
			Endpoint:     github.Endpoint,
			Scopes:       []string{"read:user", "user:email"},
		},
		apiBase: "https://api.github.com",
	}
}

func (g *GitHub) Name() string { return "github" }

func (g *GitHub) AuthCodeURL(state string) string {
	return g.cfg.AuthCodeURL(state)
}

func (g *GitHub) Exchange(ctx context.Context, code string) (*Profile, *oauth2.Token, error) {
	tok, err := g.cfg.Exchange(ctx, code)
	if err != nil {
		return nil, nil, fmt.Errorf("github token exchange failed: %w", err)
	}
	client := g.cfg.Client(ctx, tok)

	var u struct {
		ID        int64  `json:"id"`
		Login     string `json:"login"`
		Name      string `json:"name"`
		Email     string `json:"email"`
		AvatarURL string `json:"avatar_url"`
	}
	if err := getJSON(ctx, client, g.apiBase+"/user", &u); err != nil {
		return nil, nil, fmt.Errorf("github profile fetch failed: %w", err)
	}

	email := u.Email
	if email == "" {
		// the public profile email may be hidden; ask for the primary one
		var list []struct {
			Email    string `json:"email"`
			Primary  bool   `json:"primary"`
			Verified bool   `json:"verified"`
		}
		if err := getJSON(ctx, client, g.apiBase+"/user/emails", &list); err != nil {
			return nil, nil, fmt.Errorf("github email fetch failed: %w", err)
		}
		for _, e := range list {
			if e.Primary {
				email = e.Email
				break
			}
		}
	}
	if email == "" {
		return nil, nil, errors.New("github profile has no usable email")
	}

	name := u.Name
	if name == "" {
		name = u.Login
	}
	return &Profile{
		Subject:   fmt.Sprintf("%d", u.ID),
		Email:     email,
		Name:      name,
		AvatarURL: u.AvatarURL,
		Raw:       map[string]any{"login": u.Login, "id": u.ID},
	}, tok, nil
}

func getJSON(ctx context.Context, client *http.Client, url string, v any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%s returned %d", url, resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(v)
}
