package providers

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"time"

	"github.com/bytedance/sonic"
	"github.com/rs/zerolog"
	"golang.org/x/oauth2"

	"smartdesk/internal/config"
	"smartdesk/internal/core"
	"smartdesk/internal/logger"
	"smartdesk/internal/secrets"
)

// refreshMargin is how close to expiry a token is refreshed proactively.
const refreshMargin = 5 * time.Minute

var calendarScopes = []string{
	"https://www.googleapis.com/auth/calendar.readonly",
	"https://www.googleapis.com/auth/calendar.events",
	"https://www.googleapis.com/auth/userinfo.email",
}

// Calendar wraps the Google Calendar API behind the standard OAuth2
// authorization-code flow. Tokens live in the credential store and are
// refreshed transparently within the expiry margin; a failed refresh marks
// the credential invalid and surfaces ErrAuthExpired rather than retrying
// forever.
type Calendar struct {
	oauth   *oauth2.Config
	tokens  *secrets.TokenStore
	cfg     config.CalendarConfig
	client  *http.Client
	apiBase string
	now     func() time.Time
	log     zerolog.Logger
}

func NewCalendar(cfg config.CalendarConfig, sec *secrets.Store, tokens *secrets.TokenStore) (*Calendar, error) {
	clientID, err := sec.MustGet("GOOGLE_CLIENT_ID")
	if err != nil {
		return nil, err
	}
	clientSecret, err := sec.MustGet("GOOGLE_CLIENT_SECRET")
	if err != nil {
		return nil, err
	}

	return &Calendar{
		oauth: &oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			RedirectURL:  cfg.RedirectURL,
			Scopes:       calendarScopes,
			Endpoint: oauth2.Endpoint{
				AuthURL:  "https://accounts.google.com/o/oauth2/auth",
				TokenURL: "https://oauth2.googleapis.com/token",
			},
		},
		tokens:  tokens,
		cfg:     cfg,
		client:  &http.Client{},
		apiBase: "https://www.googleapis.com/calendar/v3",
		now:     time.Now,
		log:     logger.With("calendar"),
	}, nil
}

// AuthURL returns the authorization URL plus the state parameter the caller
// must verify on callback.
func (c *Calendar) AuthURL() (authURL, state string, err error) {
	raw := make([]byte, 32)
	if _, err := rand.Read(raw); err != nil {
		return "", "", fmt.Errorf("failed to generate state: %w", err)
	}
	state = base64.RawURLEncoding.EncodeToString(raw)
	authURL = c.oauth.AuthCodeURL(state,
		oauth2.AccessTypeOffline,
		oauth2.SetAuthURLParam("prompt", "consent"))
	return authURL, state, nil
}

// Connect exchanges an authorization code for tokens and stores them.
func (c *Calendar) Connect(ctx context.Context, userID, code string) error {
	callCtx, cancel := callTimeout(ctx, c.cfg.Timeout())
	defer cancel()

	tok, err := c.oauth.Exchange(callCtx, code)
	if err != nil {
		return fmt.Errorf("%w: code exchange failed: %v", core.ErrProviderUnavailable, err)
	}

	return c.tokens.Save(userID, &secrets.Token{
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		Expiry:       tok.Expiry,
		ConnectedAt:  c.now(),
	})
}

// Disconnect destroys the stored credential.
func (c *Calendar) Disconnect(userID string) error {
	return c.tokens.Delete(userID)
}

// Connected reports whether a usable credential exists for the user.
func (c *Calendar) Connected(userID string) bool {
	tok, err := c.tokens.Load(userID)
	return err == nil && tok != nil && !tok.Invalid
}

// accessToken returns a valid access token, refreshing when expiry is within
// the safety margin. A failed refresh invalidates the credential.
func (c *Calendar) accessToken(ctx context.Context, userID string) (string, error) {
	stored, err := c.tokens.Load(userID)
	if err != nil {
		return "", fmt.Errorf("%w: %v", core.ErrStorageUnavailable, err)
	}
	if stored == nil || stored.Invalid {
		return "", fmt.Errorf("%w: calendar is not connected", core.ErrAuthExpired)
	}

	if c.now().Add(refreshMargin).Before(stored.Expiry) {
		return stored.AccessToken, nil
	}

	if stored.RefreshToken == "" {
		stored.Invalid = true
		c.saveQuietly(userID, stored)
		return "", fmt.Errorf("%w: no refresh token", core.ErrAuthExpired)
	}

	callCtx, cancel := callTimeout(ctx, c.cfg.Timeout())
	defer cancel()

	src := c.oauth.TokenSource(callCtx, &oauth2.Token{RefreshToken: stored.RefreshToken})
	fresh, err := src.Token()
	if err != nil {
		c.log.Warn().Str("user_id", userID).Msg("token refresh failed, credential invalidated")
		stored.Invalid = true
		c.saveQuietly(userID, stored)
		return "", fmt.Errorf("%w: refresh failed, please reconnect your calendar", core.ErrAuthExpired)
	}

	stored.AccessToken = fresh.AccessToken
	stored.Expiry = fresh.Expiry
	if fresh.RefreshToken != "" {
		stored.RefreshToken = fresh.RefreshToken
	}
	c.saveQuietly(userID, stored)
	return stored.AccessToken, nil
}

func (c *Calendar) saveQuietly(userID string, tok *secrets.Token) {
	if err := c.tokens.Save(userID, tok); err != nil {
		c.log.Error().Err(err).Str("user_id", userID).Msg("failed to persist token state")
	}
}

type calendarEventTime struct {
	DateTime string `json:"dateTime"`
	Date     string `json:"date"`
}

func (t calendarEventTime) parse() time.Time {
	if t.DateTime != "" {
		if ts, err := time.Parse(time.RFC3339, t.DateTime); err == nil {
			return ts
		}
	}
	if t.Date != "" {
		if ts, err := time.Parse("2006-01-02", t.Date); err == nil {
			return ts
		}
	}
	return time.Time{}
}

type calendarEvent struct {
	ID        string            `json:"id"`
	Summary   string            `json:"summary"`
	Location  string            `json:"location"`
	Start     calendarEventTime `json:"start"`
	End       calendarEventTime `json:"end"`
	Attendees []struct {
		Email       string `json:"email"`
		DisplayName string `json:"displayName"`
	} `json:"attendees"`
}

type calendarEventList struct {
	Items []calendarEvent `json:"items"`
}

// UpcomingEvents lists the user's primary-calendar events starting within
// the window, soonest first.
func (c *Calendar) UpcomingEvents(ctx context.Context, userID string, window time.Duration) ([]core.Event, error) {
	token, err := c.accessToken(ctx, userID)
	if err != nil {
		return nil, err
	}

	now := c.now()
	params := url.Values{}
	params.Set("timeMin", now.Format(time.RFC3339))
	params.Set("timeMax", now.Add(window).Format(time.RFC3339))
	params.Set("singleEvents", "true")
	params.Set("orderBy", "startTime")
	params.Set("maxResults", "20")

	callCtx, cancel := callTimeout(ctx, c.cfg.Timeout())
	defer cancel()

	endpoint := c.apiBase + "/calendars/primary/events?" + params.Encode()
	req, err := http.NewRequestWithContext(callCtx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", core.ErrProviderUnavailable, err)
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: calendar API unreachable: %v", core.ErrProviderUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized {
		return nil, fmt.Errorf("%w: calendar API rejected the token", core.ErrAuthExpired)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: calendar API returned status %d", core.ErrProviderUnavailable, resp.StatusCode)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", core.ErrProviderUnavailable, err)
	}
	var list calendarEventList
	if err := sonic.Unmarshal(data, &list); err != nil {
		return nil, fmt.Errorf("%w: %v", core.ErrProviderUnavailable, err)
	}

	events := make([]core.Event, 0, len(list.Items))
	for _, item := range list.Items {
		ev := core.Event{
			ID:       item.ID,
			Title:    item.Summary,
			Start:    item.Start.parse(),
			End:      item.End.parse(),
			Location: item.Location,
		}
		for _, a := range item.Attendees {
			name := a.DisplayName
			if name == "" {
				name = a.Email
			}
			ev.Attendees = append(ev.Attendees, name)
		}
		events = append(events, ev)
	}
	sort.Slice(events, func(i, j int) bool { return events[i].Start.Before(events[j].Start) })
	return events, nil
}
