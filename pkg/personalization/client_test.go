package personalization

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aixgo-dev/travelintel/internal/apiclient"
	"github.com/aixgo-dev/travelintel/pkg/identity"
	metrics "github.com/aixgo-dev/travelintel/pkg/observability"
	"github.com/aixgo-dev/travelintel/pkg/telemetry"
)

// operations exercises every operation and returns its result for comparison.
var operations = []struct {
	name     string
	call     func(c *Client) any
	fallback func() any
}{
	{
		name:     OpUserBehavior,
		call:     func(c *Client) any { return c.GetUserBehavior(context.Background(), "42") },
		fallback: func() any { return FallbackUserBehavior("42") },
	},
	{
		name: OpRecommendations,
		call: func(c *Client) any {
			return c.GeneratePersonalizedRecommendations(context.Background(), "42", &RecommendationContext{Season: "winter"})
		},
		fallback: func() any { return FallbackRecommendations() },
	},
	{
		name:     OpPersonality,
		call:     func(c *Client) any { return c.GetTravelPersonality(context.Background(), "42") },
		fallback: func() any { return FallbackPersonality() },
	},
	{
		name:     OpAnalytics,
		call:     func(c *Client) any { return c.GetTravelAnalytics(context.Background(), "42") },
		fallback: func() any { return FallbackAnalytics() },
	},
	{
		name:     OpInsights,
		call:     func(c *Client) any { return c.GetPersonalInsights(context.Background(), "42") },
		fallback: func() any { return FallbackInsights() },
	},
	{
		name:     OpBudgetInsights,
		call:     func(c *Client) any { return c.GetBudgetInsights(context.Background(), "42") },
		fallback: func() any { return FallbackBudgetInsights() },
	},
	{
		name:     OpChat,
		call:     func(c *Client) any { return c.ChatWithAssistant(context.Background(), "42", "hello") },
		fallback: func() any { return FallbackChatReply() },
	},
}

func newTestClient(t *testing.T, handler http.Handler, opts ...Option) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	opts = append([]Option{WithLogger(metrics.DiscardLogger())}, opts...)
	return NewClient(apiclient.New(server.URL, identity.NewSessionContextWithID("s"), apiclient.WithTimeout(2*time.Second)), opts...)
}

func TestOperationsFallBack(t *testing.T) {
	failures := map[string]http.HandlerFunc{
		"server error": func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
			_, _ = w.Write([]byte(`{"detail":"model offline"}`))
		},
		"malformed body": func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`{"type": `))
		},
		"empty body": func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
		},
		"schema violation": func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`{"type":"space_tourist","confidence":400,"travelScore":900,` +
				`"recommendations":null,"insights":[{"id":""}],"message":"",` +
				`"bookingHistory":[{"amount":-5}]}`))
		},
	}

	for failure, handler := range failures {
		for _, op := range operations {
			t.Run(failure+"/"+op.name, func(t *testing.T) {
				c := newTestClient(t, handler)
				assert.Equal(t, op.fallback(), op.call(c))
			})
		}
	}
}

func TestOperationsFallBackWhenUnreachable(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	url := server.URL
	server.Close()

	c := NewClient(apiclient.New(url, nil), WithLogger(metrics.DiscardLogger()))
	for _, op := range operations {
		t.Run(op.name, func(t *testing.T) {
			assert.Equal(t, op.fallback(), op.call(c))
		})
	}
}

func TestFallbackValues(t *testing.T) {
	recs := FallbackRecommendations()
	require.Len(t, recs, 2)
	assert.Equal(t, "Kyoto, Japan", recs[0].Destination)
	assert.Equal(t, float64(85), recs[0].AIConfidence)
	assert.Equal(t, [2]float64{1200, 2500}, recs[0].PriceRange)
	assert.Equal(t, "medium", recs[0].Urgency)
	assert.Equal(t, "Santorini, Greece", recs[1].Destination)
	assert.Equal(t, float64(78), recs[1].AIConfidence)
	assert.Equal(t, "low", recs[1].Urgency)

	p := FallbackPersonality()
	assert.Equal(t, CulturalEnthusiast, p.Type)
	assert.Equal(t, float64(75), p.Confidence)

	a := FallbackAnalytics()
	assert.Zero(t, a.TotalTrips)
	assert.Zero(t, a.TotalSpent)
	assert.Equal(t, FallbackPersonality(), a.Personality)
	assert.Equal(t, 50, a.TravelScore)

	b := FallbackUserBehavior("7")
	assert.Empty(t, b.SearchHistory)
	assert.Empty(t, b.BookingHistory)
	assert.Equal(t, []string{"October", "November", "December", "January", "February"}, b.SeasonalPreferences.PreferredMonths)
	assert.Equal(t, []string{"June", "July", "August"}, b.SeasonalPreferences.AvoidedMonths)

	insights := FallbackInsights()
	require.Len(t, insights, 2)
	assert.Equal(t, "timing", insights[0].Type)
	assert.Equal(t, "budget", insights[1].Type)

	// fallbacks validate against their own schema
	v := newValidator()
	assert.NoError(t, v.Struct(&recommendationsResponse{Recommendations: recs}))
	assert.NoError(t, v.Struct(&p))
	assert.NoError(t, v.Struct(&a))
	assert.NoError(t, v.Struct(&insightsResponse{Insights: insights}))
	assert.NoError(t, v.Struct(&budgetInsightsResponse{Insights: FallbackBudgetInsights()}))
	chat := FallbackChatReply()
	assert.NoError(t, v.Struct(&chat))
}

func TestFallbacksAreFreshCopies(t *testing.T) {
	first := FallbackRecommendations()
	first[0].Tags[0] = "changed"
	first[0].Destination = "changed"

	second := FallbackRecommendations()
	assert.Equal(t, "Culture", second[0].Tags[0])
	assert.Equal(t, "Kyoto, Japan", second[0].Destination)
}

func TestOperationsSucceed(t *testing.T) {
	var (
		mu        sync.Mutex
		prefsBody Preferences
		recBody   map[string]any
	)
	mux := http.NewServeMux()
	mux.HandleFunc("/ai/user-behavior/42/", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, UserBehaviorData{
			UserID:             "42",
			SearchHistory:      []SearchEntry{{Query: "lisbon"}},
			ViewedDestinations: []string{"Lisbon"},
		})
	})
	mux.HandleFunc("/ai/recommendations/", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		mu.Lock()
		_ = json.NewDecoder(r.Body).Decode(&recBody)
		mu.Unlock()
		writeJSON(w, map[string]any{"recommendations": []AIRecommendation{{
			ID: "r1", Destination: "Lisbon, Portugal", AIConfidence: 91,
			PriceRange: [2]float64{800, 1400}, CrowdLevel: "low", Urgency: "high",
		}}})
	})
	mux.HandleFunc("/ai/travel-personality/42/", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, TravelPersonality{Type: AdventureSeeker, Confidence: 88, Traits: []string{"Bold"}})
	})
	mux.HandleFunc("/ai/analytics/42/", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, TravelAnalytics{
			TotalTrips: 3, TotalSpent: 4200, TravelScore: 72,
			Personality: TravelPersonality{Type: LuxuryTraveler, Confidence: 60},
		})
	})
	mux.HandleFunc("/ai/insights/42/", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]any{"insights": []PersonalInsight{{ID: "i1", Type: "destination", Title: "Try Porto"}}})
	})
	mux.HandleFunc("/ai/budget-insights/42/", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]any{"insights": []BudgetInsight{{ID: "b1", Category: "food", Title: "Eat local", PotentialSavings: 40}}})
	})
	mux.HandleFunc("/ai/preferences/42/", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPut, r.Method)
		mu.Lock()
		_ = json.NewDecoder(r.Body).Decode(&prefsBody)
		mu.Unlock()
		w.WriteHeader(http.StatusNoContent)
	})
	mux.HandleFunc("/ai/chat/", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, ChatReply{Message: "Try Lisbon in spring.", Suggestions: []string{"Flights to Lisbon"}})
	})

	c := newTestClient(t, mux)
	ctx := context.Background()

	assert.Equal(t, "lisbon", c.GetUserBehavior(ctx, "42").SearchHistory[0].Query)

	recs := c.GeneratePersonalizedRecommendations(ctx, "42", &RecommendationContext{Category: "city", IncludeWeather: true})
	require.Len(t, recs, 1)
	assert.Equal(t, "Lisbon, Portugal", recs[0].Destination)
	mu.Lock()
	assert.Equal(t, "42", recBody["userId"])
	assert.Equal(t, "city", recBody["context"].(map[string]any)["category"])
	mu.Unlock()

	assert.Equal(t, AdventureSeeker, c.GetTravelPersonality(ctx, "42").Type)
	assert.Equal(t, 72, c.GetTravelAnalytics(ctx, "42").TravelScore)
	assert.Equal(t, "Try Porto", c.GetPersonalInsights(ctx, "42")[0].Title)
	assert.Equal(t, "Eat local", c.GetBudgetInsights(ctx, "42")[0].Title)
	assert.Equal(t, "Try Lisbon in spring.", c.ChatWithAssistant(ctx, "42", "where?").Message)

	c.UpdateUserPreferences(ctx, "42", Preferences{Budget: &BudgetRange{Min: 500, Max: 2000}, Interests: []string{"food"}})
	mu.Lock()
	require.NotNil(t, prefsBody.Budget)
	assert.Equal(t, float64(2000), prefsBody.Budget.Max)
	mu.Unlock()

	d := c.LoadDashboard(ctx, "42")
	assert.Equal(t, AdventureSeeker, d.Personality.Type)
	assert.Len(t, d.Recommendations, 1)
	assert.Equal(t, "Try Porto", d.Insights[0].Title)
	assert.Equal(t, "Eat local", d.BudgetInsights[0].Title)
	assert.Equal(t, 3, d.Analytics.TotalTrips)
	assert.Equal(t, "42", d.Behavior.UserID)
}

func TestRecommendationPriceRangeValidation(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]any{"recommendations": []map[string]any{{
			"id": "r1", "destination": "Nowhere", "aiConfidence": 50, "priceRange": []float64{900, 100},
		}}})
	}))
	assert.Equal(t, FallbackRecommendations(), c.GeneratePersonalizedRecommendations(context.Background(), "1", nil))
}

func TestUpdateUserPreferencesFailureIsSilent(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	assert.NotPanics(t, func() {
		c.UpdateUserPreferences(context.Background(), "42", Preferences{})
	})
}

func TestLoadDashboardFallsBack(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))

	d := c.LoadDashboard(context.Background(), "42")
	assert.Equal(t, Dashboard{
		Behavior:        FallbackUserBehavior("42"),
		Recommendations: FallbackRecommendations(),
		Personality:     FallbackPersonality(),
		Analytics:       FallbackAnalytics(),
		Insights:        FallbackInsights(),
		BudgetInsights:  FallbackBudgetInsights(),
	}, d)
}

type recordedAction struct {
	typ  telemetry.ActionType
	data map[string]any
}

type fakeRecorder struct {
	mu      sync.Mutex
	actions []recordedAction
}

func (f *fakeRecorder) Record(typ telemetry.ActionType, data map[string]any) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.actions = append(f.actions, recordedAction{typ, data})
}

func TestChatRecordsInteraction(t *testing.T) {
	rec := &fakeRecorder{}
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}), WithRecorder(rec))

	reply := c.ChatWithAssistant(context.Background(), "42", "cheap beaches?")
	assert.Equal(t, FallbackChatReply(), reply)

	require.Len(t, rec.actions, 1)
	assert.Equal(t, telemetry.ActionChatInteraction, rec.actions[0].typ)
	assert.Equal(t, "42", rec.actions[0].data["userId"])
	assert.Equal(t, len("cheap beaches?"), rec.actions[0].data["messageLength"])
}

func TestUserPathEscapes(t *testing.T) {
	assert.Equal(t, "/ai/insights/a%2Fb/", userPath("/ai/insights/", "a/b"))
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}
