// Package personalization fetches recommendations, personality, analytics and
// insights for a user. Every operation returns a usable value: when the
// request fails or the response does not validate, the operation logs the
// failure and returns its fixed fallback instead of an error.
package personalization

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/aixgo-dev/travelintel/internal/apiclient"
	"github.com/aixgo-dev/travelintel/internal/observability"
	metrics "github.com/aixgo-dev/travelintel/pkg/observability"
	"github.com/aixgo-dev/travelintel/pkg/telemetry"
)

// Operation names used in logs, metrics and spans.
const (
	OpUserBehavior    = "get_user_behavior"
	OpRecommendations = "generate_recommendations"
	OpPersonality     = "get_travel_personality"
	OpAnalytics       = "get_travel_analytics"
	OpInsights        = "get_personal_insights"
	OpPreferences     = "update_user_preferences"
	OpBudgetInsights  = "get_budget_insights"
	OpChat            = "chat_with_assistant"
)

// Recorder receives telemetry for assistant conversations.
// *telemetry.Tracker satisfies it.
type Recorder interface {
	Record(actionType telemetry.ActionType, data map[string]any)
}

// Client is safe for concurrent use.
type Client struct {
	api      *apiclient.Client
	recorder Recorder
	logger   *slog.Logger
	validate *validator.Validate
}

// Option configures a Client.
type Option func(*Client)

// WithRecorder sets where chat interactions are recorded.
func WithRecorder(r Recorder) Option {
	return func(c *Client) {
		c.recorder = r
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// NewClient creates a personalization client over api.
func NewClient(api *apiclient.Client, opts ...Option) *Client {
	c := &Client{
		api:      api,
		logger:   slog.Default(),
		validate: newValidator(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = metrics.ForChannel(c.logger, metrics.ChannelPersonalization)
	return c
}

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		return name
	})
	v.RegisterStructValidation(func(sl validator.StructLevel) {
		r := sl.Current().Interface().(AIRecommendation)
		if r.PriceRange[0] < 0 || r.PriceRange[0] > r.PriceRange[1] {
			sl.ReportError(r.PriceRange, "priceRange", "PriceRange", "pricerange", "")
		}
	}, AIRecommendation{})
	return v
}

// GetUserBehavior returns the user's history and seasonal preferences.
func (c *Client) GetUserBehavior(ctx context.Context, userID string) UserBehaviorData {
	out, ok := fetch[UserBehaviorData](ctx, c, OpUserBehavior, http.MethodGet, userPath("/ai/user-behavior/", userID), nil)
	if !ok {
		return FallbackUserBehavior(userID)
	}
	return out
}

// GeneratePersonalizedRecommendations returns destination suggestions.
// rc may be nil.
func (c *Client) GeneratePersonalizedRecommendations(ctx context.Context, userID string, rc *RecommendationContext) []AIRecommendation {
	body := recommendationsRequest{UserID: userID, Context: rc}
	out, ok := fetch[recommendationsResponse](ctx, c, OpRecommendations, http.MethodPost, "/ai/recommendations/", body)
	if !ok {
		return FallbackRecommendations()
	}
	return out.Recommendations
}

// GetTravelPersonality returns the user's personality classification.
func (c *Client) GetTravelPersonality(ctx context.Context, userID string) TravelPersonality {
	out, ok := fetch[TravelPersonality](ctx, c, OpPersonality, http.MethodGet, userPath("/ai/travel-personality/", userID), nil)
	if !ok {
		return FallbackPersonality()
	}
	return out
}

// GetTravelAnalytics returns trip and spend counters.
func (c *Client) GetTravelAnalytics(ctx context.Context, userID string) TravelAnalytics {
	out, ok := fetch[TravelAnalytics](ctx, c, OpAnalytics, http.MethodGet, userPath("/ai/analytics/", userID), nil)
	if !ok {
		return FallbackAnalytics()
	}
	return out
}

// GetPersonalInsights returns dashboard tips.
func (c *Client) GetPersonalInsights(ctx context.Context, userID string) []PersonalInsight {
	out, ok := fetch[insightsResponse](ctx, c, OpInsights, http.MethodGet, userPath("/ai/insights/", userID), nil)
	if !ok {
		return FallbackInsights()
	}
	return out.Insights
}

// GetBudgetInsights returns savings suggestions.
func (c *Client) GetBudgetInsights(ctx context.Context, userID string) []BudgetInsight {
	out, ok := fetch[budgetInsightsResponse](ctx, c, OpBudgetInsights, http.MethodGet, userPath("/ai/budget-insights/", userID), nil)
	if !ok {
		return FallbackBudgetInsights()
	}
	return out.Insights
}

// UpdateUserPreferences stores prefs. The write is best-effort; failures
// are logged only.
func (c *Client) UpdateUserPreferences(ctx context.Context, userID string, prefs Preferences) {
	start := time.Now()
	ctx, span := observability.StartSpan(ctx, "personalization."+OpPreferences, attribute.String("user.id", userID))

	_, err := c.api.Do(ctx, http.MethodPut, userPath("/ai/preferences/", userID), prefs, nil)
	c.finish(span, OpPreferences, start, err)
}

// ChatWithAssistant sends a message to the travel assistant and records a
// chat_interaction action.
func (c *Client) ChatWithAssistant(ctx context.Context, userID, message string) ChatReply {
	if c.recorder != nil {
		c.recorder.Record(telemetry.ActionChatInteraction, map[string]any{
			"userId":        userID,
			"messageLength": len(message),
		})
	}

	out, ok := fetch[ChatReply](ctx, c, OpChat, http.MethodPost, "/ai/chat/", chatRequest{UserID: userID, Message: message})
	if !ok {
		return FallbackChatReply()
	}
	return out
}

// LoadDashboard runs the six read operations concurrently.
func (c *Client) LoadDashboard(ctx context.Context, userID string) Dashboard {
	var d Dashboard

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { d.Behavior = c.GetUserBehavior(gctx, userID); return nil })
	g.Go(func() error { d.Recommendations = c.GeneratePersonalizedRecommendations(gctx, userID, nil); return nil })
	g.Go(func() error { d.Personality = c.GetTravelPersonality(gctx, userID); return nil })
	g.Go(func() error { d.Analytics = c.GetTravelAnalytics(gctx, userID); return nil })
	g.Go(func() error { d.Insights = c.GetPersonalInsights(gctx, userID); return nil })
	g.Go(func() error { d.BudgetInsights = c.GetBudgetInsights(gctx, userID); return nil })
	_ = g.Wait()

	return d
}

// fetch performs one request, decodes into T and validates it. It reports
// false on any failure, which the caller answers with its fallback.
func fetch[T any](ctx context.Context, c *Client, op, method, path string, in any) (T, bool) {
	start := time.Now()
	ctx, span := observability.StartSpan(ctx, "personalization."+op, attribute.String("http.route", path))

	var out T
	_, err := c.api.Do(ctx, method, path, in, &out)
	if err == nil {
		if verr := c.validate.Struct(&out); verr != nil {
			err = fmt.Errorf("invalid response: %w", verr)
		}
	}
	c.finish(span, op, start, err)
	return out, err == nil
}

func (c *Client) finish(span trace.Span, op string, start time.Time, err error) {
	if err != nil {
		c.logger.Warn("personalization request failed, using fallback", "op", op, "error", err)
		metrics.RecordPersonalizationRequest(op, metrics.StatusFallback, time.Since(start))
	} else {
		metrics.RecordPersonalizationRequest(op, metrics.StatusSuccess, time.Since(start))
	}
	observability.EndSpan(span, err)
}

func userPath(prefix, userID string) string {
	return prefix + url.PathEscape(userID) + "/"
}
