package personalization

// Fallback values. Each call returns a fresh copy so callers may modify it.

// FallbackUserBehavior is returned when GetUserBehavior fails.
func FallbackUserBehavior(userID string) UserBehaviorData {
	return UserBehaviorData{
		UserID:             userID,
		SearchHistory:      []SearchEntry{},
		BookingHistory:     []BookingEntry{},
		ViewedDestinations: []string{},
		SeasonalPreferences: SeasonalPreferences{
			PreferredMonths: []string{"October", "November", "December", "January", "February"},
			AvoidedMonths:   []string{"June", "July", "August"},
		},
	}
}

// FallbackRecommendations is returned when GeneratePersonalizedRecommendations fails.
func FallbackRecommendations() []AIRecommendation {
	return []AIRecommendation{
		{
			ID:                 "fallback-kyoto",
			Destination:        "Kyoto, Japan",
			Reason:             "Rich cultural heritage and seasonal beauty",
			PersonalizedReason: "Popular with travelers who enjoy culture and food",
			AIConfidence:       85,
			PriceRange:         [2]float64{1200, 2500},
			BestTravelTime:     "March-May",
			SimilarTravelers:   1247,
			CrowdLevel:         "medium",
			Tags:               []string{"Culture", "Temples", "Food"},
			Urgency:            "medium",
		},
		{
			ID:                 "fallback-santorini",
			Destination:        "Santorini, Greece",
			Reason:             "Iconic sunsets and Mediterranean charm",
			PersonalizedReason: "A favorite for relaxing coastal getaways",
			AIConfidence:       78,
			PriceRange:         [2]float64{1500, 3000},
			BestTravelTime:     "September-October",
			SimilarTravelers:   892,
			CrowdLevel:         "high",
			Tags:               []string{"Romance", "Beaches", "Sunsets"},
			Urgency:            "low",
		},
	}
}

// FallbackPersonality is returned when GetTravelPersonality fails.
func FallbackPersonality() TravelPersonality {
	return TravelPersonality{
		Type:        CulturalEnthusiast,
		Traits:      []string{"Curious", "Open-minded", "History lover"},
		Description: "You love immersing yourself in local culture and cuisine.",
		Confidence:  75,
	}
}

// FallbackAnalytics is returned when GetTravelAnalytics fails.
func FallbackAnalytics() TravelAnalytics {
	return TravelAnalytics{
		FavoriteDestinations: []string{},
		Personality:          FallbackPersonality(),
		TravelScore:          50,
	}
}

// FallbackInsights is returned when GetPersonalInsights fails.
func FallbackInsights() []PersonalInsight {
	return []PersonalInsight{
		{
			ID:          "fallback-timing",
			Type:        "timing",
			Title:       "Book ahead for better fares",
			Description: "Booking 6-8 weeks before departure usually gives the best prices.",
			Priority:    "medium",
		},
		{
			ID:          "fallback-budget",
			Type:        "budget",
			Title:       "Travel mid-week",
			Description: "Flying Tuesday or Wednesday can noticeably lower the cost of a trip.",
			Priority:    "low",
		},
	}
}

// FallbackBudgetInsights is returned when GetBudgetInsights fails.
func FallbackBudgetInsights() []BudgetInsight {
	return []BudgetInsight{
		{
			ID:               "fallback-flexible-dates",
			Category:         "flights",
			Title:            "Flexible dates",
			Description:      "Shifting departure by a couple of days often reduces airfare.",
			PotentialSavings: 120,
			Confidence:       70,
		},
		{
			ID:               "fallback-longer-stays",
			Category:         "accommodation",
			Title:            "Weekly rates",
			Description:      "Many hotels price week-long stays below the nightly rate.",
			PotentialSavings: 200,
			Confidence:       65,
		},
	}
}

// FallbackChatReply is returned when ChatWithAssistant fails.
func FallbackChatReply() ChatReply {
	return ChatReply{
		Message: "I'm having trouble connecting right now. Please try again in a moment.",
		Suggestions: []string{
			"Show my recommendations",
			"Find budget-friendly trips",
			"What's my travel personality?",
		},
	}
}
