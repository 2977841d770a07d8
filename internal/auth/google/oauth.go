// Package google builds the OAuth2 client used for YouTube handles.
package google

import (
	"golang.org/x/oauth2"
	googleOAuth "golang.org/x/oauth2/google"
)

// Secret names of the YouTube OAuth client.
const (
	ClientIDSecret     = "YOUTUBE_CLIENT_ID"
	ClientSecretSecret = "YOUTUBE_CLIENT_SECRET"
)

// Scopes lets the digger read channel data and analytics reports.
var Scopes = []string{
	"https://www.googleapis.com/auth/youtube.readonly",
	"https://www.googleapis.com/auth/yt-analytics.readonly",
	"https://www.googleapis.com/auth/userinfo.email",
}

// SecretSource resolves a named credential.
type SecretSource interface {
	Secret(name string) (string, error)
}

// OAuthConfig returns the OAuth2 config for YouTube from secrets.
func OAuthConfig(secrets SecretSource, redirectURL string) (*oauth2.Config, error) {
	clientID, err := secrets.Secret(ClientIDSecret)
	if err != nil {
		return nil, err
	}
	clientSecret, err := secrets.Secret(ClientSecretSecret)
	if err != nil {
		return nil, err
	}
	return &oauth2.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		RedirectURL:  redirectURL,
		Scopes:       Scopes,
		Endpoint:     googleOAuth.Endpoint,
	}, nil
}
