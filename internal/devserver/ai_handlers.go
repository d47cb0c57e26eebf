package devserver

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/aixgo-dev/travelintel/pkg/personalization"
	"github.com/aixgo-dev/travelintel/pkg/telemetry"
)

type recommendationsBody struct {
	UserID  string                                 `json:"userId"`
	Context *personalization.RecommendationContext `json:"context"`
}

type chatBody struct {
	UserID  string `json:"userId"`
	Message string `json:"message"`
}

func (s *Server) handleTrackActions(c *gin.Context) {
	var batch telemetry.Batch
	if err := c.ShouldBindJSON(&batch); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"detail": "Invalid request body"})
		return
	}
	for _, a := range batch.Actions {
		if !a.Type.Valid() {
			c.JSON(http.StatusBadRequest, gin.H{"detail": fmt.Sprintf("Unknown action type %q", a.Type)})
			return
		}
	}
	s.mu.Lock()
	s.received = append(s.received, batch.Actions...)
	s.mu.Unlock()

	c.JSON(http.StatusOK, gin.H{"received": len(batch.Actions)})
}

// actionsFor returns the received actions of one type attributed to userID.
func (s *Server) actionsFor(userID string, t telemetry.ActionType) []telemetry.UserAction {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []telemetry.UserAction
	for _, a := range s.received {
		if a.UserID == userID && a.Type == t {
			out = append(out, a)
		}
	}
	return out
}

func (s *Server) handleUserBehavior(c *gin.Context) {
	userID := c.Param("userId")
	searches := []personalization.SearchEntry{}
	for _, a := range s.actionsFor(userID, telemetry.ActionSearch) {
		query, _ := a.Data["query"].(string)
		searches = append(searches, personalization.SearchEntry{Query: query, Timestamp: a.Timestamp})
	}
	viewed := []string{}
	for _, a := range s.actionsFor(userID, telemetry.ActionTripClick) {
		if dest, ok := a.Data["destination"].(string); ok {
			viewed = append(viewed, dest)
		}
	}
	c.JSON(http.StatusOK, personalization.UserBehaviorData{
		UserID:             userID,
		SearchHistory:      searches,
		BookingHistory:     []personalization.BookingEntry{},
		ViewedDestinations: viewed,
		SeasonalPreferences: personalization.SeasonalPreferences{
			PreferredMonths: []string{"April", "May", "September"},
			AvoidedMonths:   []string{"August"},
		},
	})
}

func (s *Server) handleRecommendations(c *gin.Context) {
	var body recommendationsBody
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"detail": "Invalid request body"})
		return
	}
	if body.UserID != c.GetString(ctxUserID) {
		c.JSON(http.StatusForbidden, gin.H{"detail": "You do not have permission to perform this action."})
		return
	}

	recs := []personalization.AIRecommendation{
		{
			ID:                 "rec-lisbon",
			Destination:        "Lisbon, Portugal",
			Reason:             "Mild climate and walkable historic districts",
			PersonalizedReason: "Matches your interest in food and architecture",
			AIConfidence:       91,
			PriceRange:         [2]float64{900, 1800},
			BestTravelTime:     "April-June",
			SimilarTravelers:   2140,
			CrowdLevel:         "medium",
			Tags:               []string{"Food", "Architecture", "Coast"},
			Urgency:            "high",
		},
		{
			ID:                 "rec-queenstown",
			Destination:        "Queenstown, New Zealand",
			Reason:             "Alpine scenery and outdoor activities",
			PersonalizedReason: "Travelers with similar searches rated it highly",
			AIConfidence:       83,
			PriceRange:         [2]float64{2200, 4200},
			BestTravelTime:     "December-February",
			SimilarTravelers:   610,
			CrowdLevel:         "low",
			Tags:               []string{"Adventure", "Mountains"},
			Urgency:            "low",
		},
	}
	if rc := body.Context; rc != nil {
		if rc.Category != "" {
			for i := range recs {
				recs[i].Tags = append(recs[i].Tags, rc.Category)
			}
		}
		if rc.IncludeWeather {
			recs[0].WeatherForecast = &personalization.WeatherForecast{Temperature: 21, Condition: "sunny"}
			recs[1].WeatherForecast = &personalization.WeatherForecast{Temperature: 14, Condition: "partly cloudy"}
		}
		if rc.IncludePricing {
			savings := 180.0
			recs[0].PotentialSavings = &savings
		}
	}
	c.JSON(http.StatusOK, gin.H{"recommendations": recs})
}

func personality() personalization.TravelPersonality {
	return personalization.TravelPersonality{
		Type:        personalization.AdventureSeeker,
		Traits:      []string{"Spontaneous", "Active"},
		Description: "You look for trips with something new to try every day.",
		Confidence:  82,
	}
}

func (s *Server) handlePersonality(c *gin.Context) {
	c.JSON(http.StatusOK, personality())
}

func (s *Server) handleAnalytics(c *gin.Context) {
	userID := c.Param("userId")
	bookings := s.actionsFor(userID, telemetry.ActionBookingAttempt)

	var spent float64
	destinations := []string{}
	seen := make(map[string]bool)
	for _, b := range bookings {
		if amount, ok := b.Data["amount"].(float64); ok && amount > 0 {
			spent += amount
		}
		if dest, ok := b.Data["destination"].(string); ok && !seen[dest] {
			seen[dest] = true
			destinations = append(destinations, dest)
		}
	}
	var avg float64
	if len(bookings) > 0 {
		avg = spent / float64(len(bookings))
	}
	score := 40 + 10*len(bookings)
	if score > 100 {
		score = 100
	}
	c.JSON(http.StatusOK, personalization.TravelAnalytics{
		TotalTrips:           len(bookings),
		TotalSpent:           spent,
		AverageTripCost:      avg,
		CountriesVisited:     len(destinations),
		FavoriteDestinations: destinations,
		Personality:          personality(),
		TravelScore:          score,
	})
}

func (s *Server) handleInsights(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"insights": []personalization.PersonalInsight{
		{
			ID:          "insight-shoulder-season",
			Type:        "timing",
			Title:       "Travel in shoulder season",
			Description: "Prices to your saved destinations drop about 20% in May.",
			Priority:    "high",
			ActionLabel: "See dates",
		},
		{
			ID:          "insight-new-region",
			Type:        "discovery",
			Title:       "Try somewhere new",
			Description: "Most of your searches are in Europe. South America has similar trips.",
			Priority:    "low",
		},
	}})
}

func (s *Server) handleBudgetInsights(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"insights": []personalization.BudgetInsight{
		{
			ID:               "budget-midweek",
			Category:         "flights",
			Title:            "Fly midweek",
			Description:      "Tuesday departures are cheapest on your usual routes.",
			PotentialSavings: 140,
			Confidence:       77,
		},
	}})
}

func (s *Server) handlePreferences(c *gin.Context) {
	var prefs personalization.Preferences
	if err := c.ShouldBindJSON(&prefs); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"detail": "Invalid request body"})
		return
	}
	s.mu.Lock()
	s.preferences[c.Param("userId")] = prefs
	s.mu.Unlock()
	c.JSON(http.StatusOK, prefs)
}

func (s *Server) handleChat(c *gin.Context) {
	var body chatBody
	if err := c.ShouldBindJSON(&body); err != nil || strings.TrimSpace(body.Message) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"detail": "Message is required"})
		return
	}
	if body.UserID != c.GetString(ctxUserID) {
		c.JSON(http.StatusForbidden, gin.H{"detail": "You do not have permission to perform this action."})
		return
	}
	c.JSON(http.StatusOK, personalization.ChatReply{
		Message: fmt.Sprintf("You asked: %q. Spring is a good time to plan that trip (%s).",
			body.Message, time.Now().UTC().Format("Jan 2")),
		Suggestions: []string{"Show flights", "Compare hotels", "Check the weather"},
	})
}
