package services

import (
	"context"
	"fmt"
	"log"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	calendar "google.golang.org/api/calendar/v3"
	"google.golang.org/api/option"

	"studia-backend/internal/models"
)

// GoogleCalendarProvider implements CalendarProvider against the Google
// Calendar API, refreshing the stored OAuth token when it has expired.
type GoogleCalendarProvider struct {
	clientID     string
	clientSecret string
	calendars    CalendarStore
}

func NewGoogleCalendarProvider(clientID, clientSecret string, calendars CalendarStore) *GoogleCalendarProvider {
	return &GoogleCalendarProvider{
		clientID:     clientID,
		clientSecret: clientSecret,
		calendars:    calendars,
	}
}

func (p *GoogleCalendarProvider) GetCalendarEvents(ctx context.Context, integration *models.CalendarIntegration, from, to time.Time) ([]models.CalendarEvent, error) {
	conf := &oauth2.Config{
		ClientID:     p.clientID,
		ClientSecret: p.clientSecret,
		Endpoint:     google.Endpoint,
		Scopes:       []string{calendar.CalendarReadonlyScope},
	}

	tok := &oauth2.Token{
		AccessToken:  integration.AccessToken,
		RefreshToken: integration.RefreshToken,
	}
	if integration.ExpiresAt != nil {
		tok.Expiry = *integration.ExpiresAt
	}

	fresh, err := conf.TokenSource(ctx, tok).Token()
	if err != nil {
		return nil, fmt.Errorf("failed to refresh calendar token: %w", err)
	}
	if fresh.AccessToken != integration.AccessToken {
		if err := p.calendars.UpdateTokens(ctx, integration.ID, fresh.AccessToken, &fresh.Expiry); err != nil {
			// Stale stored token just means another refresh next time.
			log.Printf("google calendar: failed to persist refreshed token for integration %s: %v", integration.ID, err)
		}
	}

	svc, err := calendar.NewService(ctx, option.WithTokenSource(oauth2.StaticTokenSource(fresh)))
	if err != nil {
		return nil, fmt.Errorf("failed to create calendar client: %w", err)
	}

	list, err := svc.Events.List("primary").
		SingleEvents(true).
		OrderBy("startTime").
		TimeMin(from.Format(time.RFC3339)).
		TimeMax(to.Format(time.RFC3339)).
		MaxResults(250).
		Context(ctx).
		Do()
	if err != nil {
		return nil, fmt.Errorf("failed to list calendar events: %w", err)
	}

	events := make([]models.CalendarEvent, 0, len(list.Items))
	for _, item := range list.Items {
		start, ok := parseEventTime(item.Start)
		if !ok {
			continue
		}
		end, ok := parseEventTime(item.End)
		if !ok {
			continue
		}
		events = append(events, models.CalendarEvent{
			ID:    item.Id,
			Title: item.Summary,
			Start: start,
			End:   end,
		})
	}
	return events, nil
}

// parseEventTime handles both timed and all-day events.
func parseEventTime(t *calendar.EventDateTime) (time.Time, bool) {
	if t == nil {
		return time.Time{}, false
	}
	if t.DateTime != "" {
		parsed, err := time.Parse(time.RFC3339, t.DateTime)
		if err != nil {
			return time.Time{}, false
		}
		return parsed, true
	}
	if t.Date != "" {
		parsed, err := time.Parse("2006-01-02", t.Date)
		if err != nil {
			return time.Time{}, false
		}
		return parsed, true
	}
	return time.Time{}, false
}
