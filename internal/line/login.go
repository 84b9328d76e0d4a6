package line

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"golang.org/x/oauth2"
)

const (
	loginAuthURL    = "https://access.line.me/oauth2/v2.1/authorize"
	loginTokenURL   = "https://api.line.me/oauth2/v2.1/token"
	loginProfileURL = "https://api.line.me/v2/profile"
)

// Profile is the signed-in user's LINE profile
type Profile struct {
	UserID      string `json:"userId"`
	DisplayName string `json:"displayName"`
	PictureURL  string `json:"pictureUrl"`
}

// Login drives the LINE Login authorization code flow
type Login struct {
	conf       oauth2.Config
	profileURL string
}

func NewLogin(channelID, channelSecret string) *Login {
	return &Login{
		conf: oauth2.Config{
			ClientID:     channelID,
			ClientSecret: channelSecret,
			Scopes:       []string{"profile", "openid", "email"},
			Endpoint: oauth2.Endpoint{
				AuthURL:   loginAuthURL,
				TokenURL:  loginTokenURL,
				AuthStyle: oauth2.AuthStyleInParams,
			},
		},
		profileURL: loginProfileURL,
	}
}

// WithEndpoints points the flow at other hosts, used by tests
func (l *Login) WithEndpoints(authURL, tokenURL, profileURL string) *Login {
	l.conf.Endpoint.AuthURL = authURL
	l.conf.Endpoint.TokenURL = tokenURL
	l.profileURL = profileURL
	return l
}

func (l *Login) config(redirectURI string) *oauth2.Config {
	conf := l.conf
	conf.RedirectURL = redirectURI
	return &conf
}

// AuthCodeURL returns the LINE consent page for state and nonce
func (l *Login) AuthCodeURL(state, nonce, redirectURI string) string {
	return l.config(redirectURI).AuthCodeURL(state, oauth2.SetAuthURLParam("nonce", nonce))
}

// Exchange trades the authorization code for a token and loads the profile
func (l *Login) Exchange(ctx context.Context, code, redirectURI string) (*Profile, error) {
	conf := l.config(redirectURI)
	token, err := conf.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("error exchanging LINE login code: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, l.profileURL, nil)
	if err != nil {
		return nil, err
	}
	resp, err := conf.Client(ctx, token).Do(req)
	if err != nil {
		return nil, fmt.Errorf("error fetching LINE profile: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("error fetching LINE profile: status %d", resp.StatusCode)
	}
	var profile Profile
	if err := json.NewDecoder(resp.Body).Decode(&profile); err != nil {
		return nil, fmt.Errorf("error decoding LINE profile: %w", err)
	}
	if profile.UserID == "" {
		return nil, fmt.Errorf("LINE profile has no user id")
	}
	return &profile, nil
}
