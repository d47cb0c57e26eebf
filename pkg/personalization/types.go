package personalization

import (
	"time"
)

// PersonalityType is one of the five travel personality archetypes.
type PersonalityType string

const (
	AdventureSeeker    PersonalityType = "adventure_seeker"
	CulturalEnthusiast PersonalityType = "cultural_enthusiast"
	LuxuryTraveler     PersonalityType = "luxury_traveler"
	BudgetExplorer     PersonalityType = "budget_explorer"
	RelaxationSeeker   PersonalityType = "relaxation_seeker"
)

// RecommendationContext narrows a recommendation request.
type RecommendationContext struct {
	Category       string    `json:"category,omitempty"`
	Season         string    `json:"season,omitempty"`
	Location       *Location `json:"location,omitempty"`
	IncludeWeather bool      `json:"includeWeather,omitempty"`
	IncludePricing bool      `json:"includePricing,omitempty"`
	IncludeHistory bool      `json:"includeHistory,omitempty"`
}

// Location is a coarse geolocation.
type Location struct {
	Latitude  float64 `json:"lat"`
	Longitude float64 `json:"lng"`
}

// WeatherForecast is an optional recommendation detail.
type WeatherForecast struct {
	Temperature float64 `json:"temperature"`
	Condition   string  `json:"condition"`
}

// AIRecommendation is one suggested destination.
type AIRecommendation struct {
	ID                 string           `json:"id" validate:"required"`
	Destination        string           `json:"destination" validate:"required"`
	Reason             string           `json:"reason"`
	PersonalizedReason string           `json:"personalizedReason"`
	AIConfidence       float64          `json:"aiConfidence" validate:"gte=0,lte=100"`
	PriceRange         [2]float64       `json:"priceRange"`
	BestTravelTime     string           `json:"bestTravelTime"`
	SimilarTravelers   int              `json:"similarTravelers" validate:"gte=0"`
	CrowdLevel         string           `json:"crowdLevel" validate:"omitempty,oneof=low medium high"`
	Tags               []string         `json:"tags"`
	Urgency            string           `json:"urgency" validate:"omitempty,oneof=low medium high"`
	WeatherForecast    *WeatherForecast `json:"weatherForecast,omitempty"`
	PotentialSavings   *float64         `json:"potentialSavings,omitempty" validate:"omitempty,gte=0"`
}

// TravelPersonality classifies a traveler.
type TravelPersonality struct {
	Type        PersonalityType `json:"type" validate:"required,oneof=adventure_seeker cultural_enthusiast luxury_traveler budget_explorer relaxation_seeker"`
	Traits      []string        `json:"traits"`
	Description string          `json:"description"`
	Confidence  float64         `json:"confidence" validate:"gte=0,lte=100"`
}

// SearchEntry is one past search.
type SearchEntry struct {
	Query     string         `json:"query"`
	Filters   map[string]any `json:"filters,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// BookingEntry is one past booking.
type BookingEntry struct {
	TripID      string    `json:"tripId"`
	Destination string    `json:"destination"`
	Amount      float64   `json:"amount" validate:"gte=0"`
	BookedAt    time.Time `json:"bookedAt"`
}

// SeasonalPreferences lists month names.
type SeasonalPreferences struct {
	PreferredMonths []string `json:"preferredMonths"`
	AvoidedMonths   []string `json:"avoidedMonths"`
}

// UserBehaviorData summarizes a user's history.
type UserBehaviorData struct {
	UserID              string              `json:"userId"`
	SearchHistory       []SearchEntry       `json:"searchHistory" validate:"dive"`
	BookingHistory      []BookingEntry      `json:"bookingHistory" validate:"dive"`
	ViewedDestinations  []string            `json:"viewedDestinations"`
	SeasonalPreferences SeasonalPreferences `json:"seasonalPreferences"`
}

// TravelAnalytics is the analytics widget payload.
type TravelAnalytics struct {
	TotalTrips           int               `json:"totalTrips" validate:"gte=0"`
	TotalSpent           float64           `json:"totalSpent" validate:"gte=0"`
	AverageTripCost      float64           `json:"averageTripCost" validate:"gte=0"`
	CountriesVisited     int               `json:"countriesVisited" validate:"gte=0"`
	FavoriteDestinations []string          `json:"favoriteDestinations"`
	Personality          TravelPersonality `json:"personality"`
	TravelScore          int               `json:"travelScore" validate:"gte=0,lte=100"`
}

// PersonalInsight is one dashboard tip.
type PersonalInsight struct {
	ID          string `json:"id" validate:"required"`
	Type        string `json:"type" validate:"required"`
	Title       string `json:"title" validate:"required"`
	Description string `json:"description"`
	Priority    string `json:"priority" validate:"omitempty,oneof=low medium high"`
	ActionLabel string `json:"actionLabel,omitempty"`
}

// BudgetInsight is one savings suggestion.
type BudgetInsight struct {
	ID               string  `json:"id" validate:"required"`
	Category         string  `json:"category" validate:"required"`
	Title            string  `json:"title" validate:"required"`
	Description      string  `json:"description"`
	PotentialSavings float64 `json:"potentialSavings" validate:"gte=0"`
	Confidence       float64 `json:"confidence" validate:"gte=0,lte=100"`
}

// ChatReply is the assistant's answer.
type ChatReply struct {
	Message     string   `json:"message" validate:"required"`
	Suggestions []string `json:"suggestions"`
}

// BudgetRange bounds preferred trip spend.
type BudgetRange struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
}

// Preferences is the body of a preferences update.
type Preferences struct {
	Budget           *BudgetRange `json:"budget,omitempty"`
	TravelStyle      []string     `json:"travelStyle,omitempty"`
	Interests        []string     `json:"interests,omitempty"`
	PreferredSeasons []string     `json:"preferredSeasons,omitempty"`
	Accommodation    string       `json:"accommodation,omitempty"`
}

// Dashboard bundles the read operations for one user.
type Dashboard struct {
	Behavior        UserBehaviorData   `json:"behavior"`
	Recommendations []AIRecommendation `json:"recommendations"`
	Personality     TravelPersonality  `json:"personality"`
	Analytics       TravelAnalytics    `json:"analytics"`
	Insights        []PersonalInsight  `json:"insights"`
	BudgetInsights  []BudgetInsight    `json:"budgetInsights"`
}

// response envelopes for list endpoints
type recommendationsResponse struct {
	Recommendations []AIRecommendation `json:"recommendations" validate:"required,dive"`
}

type insightsResponse struct {
	Insights []PersonalInsight `json:"insights" validate:"required,dive"`
}

type budgetInsightsResponse struct {
	Insights []BudgetInsight `json:"insights" validate:"required,dive"`
}

type recommendationsRequest struct {
	UserID  string                 `json:"userId"`
	Context *RecommendationContext `json:"context,omitempty"`
}

type chatRequest struct {
	UserID  string `json:"userId"`
	Message string `json:"message"`
}
