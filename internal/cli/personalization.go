package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/aixgo-dev/travelintel"
	"github.com/aixgo-dev/travelintel/pkg/personalization"
)

// userCommand builds a read-only personalization command that prints the
// result of fetch as JSON.
func userCommand(opts *GlobalOptions, use, short string, fetch func(cmd *cobra.Command, c *travelintel.Client, userID string) any) *cobra.Command {
	var user string

	cmd := &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(cmd.Context(), opts, func(c *travelintel.Client) error {
				userID, err := resolveUser(c, user)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), fetch(cmd, c, userID))
			})
		},
	}

	cmd.Flags().StringVar(&user, "user", "", "User id (defaults to the signed-in user)")
	return cmd
}

// NewPersonalityCmd creates the 'personality' command.
func NewPersonalityCmd(opts *GlobalOptions) *cobra.Command {
	return userCommand(opts, "personality", "Show the travel personality",
		func(cmd *cobra.Command, c *travelintel.Client, userID string) any {
			return c.Personalization.GetTravelPersonality(cmd.Context(), userID)
		})
}

// NewAnalyticsCmd creates the 'analytics' command.
func NewAnalyticsCmd(opts *GlobalOptions) *cobra.Command {
	return userCommand(opts, "analytics", "Show travel analytics",
		func(cmd *cobra.Command, c *travelintel.Client, userID string) any {
			return c.Personalization.GetTravelAnalytics(cmd.Context(), userID)
		})
}

// NewInsightsCmd creates the 'insights' command.
func NewInsightsCmd(opts *GlobalOptions) *cobra.Command {
	return userCommand(opts, "insights", "Show personal insights",
		func(cmd *cobra.Command, c *travelintel.Client, userID string) any {
			return c.Personalization.GetPersonalInsights(cmd.Context(), userID)
		})
}

// NewBehaviorCmd creates the 'behavior' command.
func NewBehaviorCmd(opts *GlobalOptions) *cobra.Command {
	return userCommand(opts, "behavior", "Show search and booking history",
		func(cmd *cobra.Command, c *travelintel.Client, userID string) any {
			return c.Personalization.GetUserBehavior(cmd.Context(), userID)
		})
}

// NewBudgetCmd creates the 'budget' command.
func NewBudgetCmd(opts *GlobalOptions) *cobra.Command {
	return userCommand(opts, "budget", "Show budget insights",
		func(cmd *cobra.Command, c *travelintel.Client, userID string) any {
			return c.Personalization.GetBudgetInsights(cmd.Context(), userID)
		})
}

// NewDashboardCmd creates the 'dashboard' command.
func NewDashboardCmd(opts *GlobalOptions) *cobra.Command {
	return userCommand(opts, "dashboard", "Load every dashboard widget concurrently",
		func(cmd *cobra.Command, c *travelintel.Client, userID string) any {
			return c.Personalization.LoadDashboard(cmd.Context(), userID)
		})
}

// NewRecommendCmd creates the 'recommend' command.
func NewRecommendCmd(opts *GlobalOptions) *cobra.Command {
	var (
		user string
		rc   personalization.RecommendationContext
	)

	cmd := &cobra.Command{
		Use:     "recommend",
		Short:   "Get personalized destination recommendations",
		Example: `  travelintel recommend --category beach --season summer --weather`,
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(cmd.Context(), opts, func(c *travelintel.Client) error {
				userID, err := resolveUser(c, user)
				if err != nil {
					return err
				}
				var ctxArg *personalization.RecommendationContext
				if rc != (personalization.RecommendationContext{}) {
					ctxArg = &rc
				}
				recs := c.Personalization.GeneratePersonalizedRecommendations(cmd.Context(), userID, ctxArg)
				return printJSON(cmd.OutOrStdout(), recs)
			})
		},
	}

	f := cmd.Flags()
	f.StringVar(&user, "user", "", "User id (defaults to the signed-in user)")
	f.StringVar(&rc.Category, "category", "", "Trip category")
	f.StringVar(&rc.Season, "season", "", "Travel season")
	f.BoolVar(&rc.IncludeWeather, "weather", false, "Include weather forecasts")
	f.BoolVar(&rc.IncludePricing, "pricing", false, "Include pricing details")
	f.BoolVar(&rc.IncludeHistory, "history", false, "Use booking history")
	return cmd
}

// NewChatCmd creates the 'chat' command.
func NewChatCmd(opts *GlobalOptions) *cobra.Command {
	var user string

	cmd := &cobra.Command{
		Use:     "chat <message...>",
		Short:   "Ask the travel assistant",
		Example: `  travelintel chat "Where should I go in May?"`,
		Args:    cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(cmd.Context(), opts, func(c *travelintel.Client) error {
				userID, err := resolveUser(c, user)
				if err != nil {
					return err
				}
				reply := c.Personalization.ChatWithAssistant(cmd.Context(), userID, strings.Join(args, " "))
				out := cmd.OutOrStdout()
				fmt.Fprintln(out, reply.Message)
				for _, s := range reply.Suggestions {
					fmt.Fprintf(out, "  • %s\n", s)
				}
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&user, "user", "", "User id (defaults to the signed-in user)")
	return cmd
}

// NewPrefsCmd creates the 'prefs' command.
func NewPrefsCmd(opts *GlobalOptions) *cobra.Command {
	var (
		user                       string
		budgetMin, budgetMax       float64
		styles, interests, seasons []string
		accommodation              string
	)

	cmd := &cobra.Command{
		Use:     "prefs",
		Short:   "Update travel preferences",
		Example: `  travelintel prefs --interest food --interest hiking --budget-max 2500`,
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			prefs := personalization.Preferences{
				TravelStyle:      styles,
				Interests:        interests,
				PreferredSeasons: seasons,
				Accommodation:    accommodation,
			}
			if budgetMin > 0 || budgetMax > 0 {
				if budgetMax > 0 && budgetMin > budgetMax {
					return fmt.Errorf("--budget-min must not exceed --budget-max")
				}
				prefs.Budget = &personalization.BudgetRange{Min: budgetMin, Max: budgetMax}
			}
			return withClient(cmd.Context(), opts, func(c *travelintel.Client) error {
				userID, err := resolveUser(c, user)
				if err != nil {
					return err
				}
				c.Personalization.UpdateUserPreferences(cmd.Context(), userID, prefs)
				fmt.Fprintln(cmd.OutOrStdout(), "✓ Preferences submitted")
				return nil
			})
		},
	}

	f := cmd.Flags()
	f.StringVar(&user, "user", "", "User id (defaults to the signed-in user)")
	f.Float64Var(&budgetMin, "budget-min", 0, "Minimum trip budget")
	f.Float64Var(&budgetMax, "budget-max", 0, "Maximum trip budget")
	f.StringArrayVar(&styles, "style", nil, "Travel style (repeatable)")
	f.StringArrayVar(&interests, "interest", nil, "Interest (repeatable)")
	f.StringArrayVar(&seasons, "season", nil, "Preferred season (repeatable)")
	f.StringVar(&accommodation, "accommodation", "", "Preferred accommodation")
	return cmd
}
