package telemetry

import (
	"time"
)

// ActionType is the closed set of tracked interactions.
type ActionType string

const (
	ActionPageView             ActionType = "page_view"
	ActionTripClick            ActionType = "trip_click"
	ActionSearch               ActionType = "search"
	ActionWishlistAdd          ActionType = "wishlist_add"
	ActionBookingAttempt       ActionType = "booking_attempt"
	ActionChatInteraction      ActionType = "chat_interaction"
	ActionSegmentationView     ActionType = "segmentation_view"
	ActionSegmentationSelect   ActionType = "segmentation_select"
	ActionAnalyticsView        ActionType = "analytics_view"
	ActionSocialView           ActionType = "social_view"
	ActionSocialInteraction    ActionType = "social_interaction"
	ActionBudgetInsightClick   ActionType = "budget_insight_click"
	ActionPredictivePlanAction ActionType = "predictive_plan_action"
	ActionLayoutView           ActionType = "layout_view"
	ActionLayoutChange         ActionType = "layout_change"
)

var actionTypes = map[ActionType]bool{
	ActionPageView:             false,
	ActionTripClick:            false,
	ActionSearch:               false,
	ActionWishlistAdd:          false,
	ActionBookingAttempt:       true,
	ActionChatInteraction:      true,
	ActionSegmentationView:     false,
	ActionSegmentationSelect:   false,
	ActionAnalyticsView:        false,
	ActionSocialView:           false,
	ActionSocialInteraction:    false,
	ActionBudgetInsightClick:   false,
	ActionPredictivePlanAction: false,
	ActionLayoutView:           false,
	ActionLayoutChange:         false,
}

// Valid reports whether t is a known action type.
func (t ActionType) Valid() bool {
	_, ok := actionTypes[t]
	return ok
}

// Urgent reports whether t is sent immediately in addition to being buffered.
func (t ActionType) Urgent() bool {
	return actionTypes[t]
}

// ActionTypes returns every known action type.
func ActionTypes() []ActionType {
	return []ActionType{
		ActionPageView, ActionTripClick, ActionSearch, ActionWishlistAdd,
		ActionBookingAttempt, ActionChatInteraction, ActionSegmentationView,
		ActionSegmentationSelect, ActionAnalyticsView, ActionSocialView,
		ActionSocialInteraction, ActionBudgetInsightClick, ActionPredictivePlanAction,
		ActionLayoutView, ActionLayoutChange,
	}
}

// UserAction is one recorded interaction. It is never modified after Record
// returns.
type UserAction struct {
	// ID is a ULID; receivers use it to drop the second copy of urgent actions.
	ID        string         `json:"id"`
	Type      ActionType     `json:"type"`
	Data      map[string]any `json:"data"`
	Timestamp time.Time      `json:"timestamp"`
	UserID    string         `json:"userId,omitempty"`
	SessionID string         `json:"sessionId"`
}

// Batch is the ingestion request body.
type Batch struct {
	Actions []UserAction `json:"actions"`
}

// Visibility of the hosting application.
type Visibility int

const (
	Visible Visibility = iota
	Hidden
)

// Flush triggers, used as metric labels.
const (
	TriggerTimer      = "timer"
	TriggerVisibility = "visibility"
	TriggerManual     = "manual"
	TriggerDestroy    = "destroy"
	TriggerUrgent     = "urgent"
)
