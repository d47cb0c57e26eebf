package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/aixgo-dev/travelintel"
	"github.com/aixgo-dev/travelintel/pkg/telemetry"
)

// NewTrackCmd creates the 'track' command.
func NewTrackCmd(opts *GlobalOptions) *cobra.Command {
	var list bool

	cmd := &cobra.Command{
		Use:   "track <action-type> [key=value ...]",
		Short: "Record an interaction event and deliver it",
		Long: `Record one interaction event. Values that parse as JSON (numbers, booleans,
arrays) keep their type; anything else is sent as a string. The buffer is
flushed before the command exits.`,
		Example: `  travelintel track search query=lisbon
  travelintel track booking_attempt destination=Lisbon amount=1200
  travelintel track --list`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if list {
				listActionTypes(cmd.OutOrStdout())
				return nil
			}
			if len(args) == 0 {
				return fmt.Errorf("action type is required (see --list)")
			}
			return runTrack(cmd, opts, args[0], args[1:])
		},
	}

	cmd.Flags().BoolVar(&list, "list", false, "List the known action types")
	return cmd
}

func runTrack(cmd *cobra.Command, opts *GlobalOptions, rawType string, pairs []string) error {
	actionType := telemetry.ActionType(rawType)
	if !actionType.Valid() {
		return fmt.Errorf("unknown action type %q (see --list)", rawType)
	}
	data, err := parsePairs(pairs)
	if err != nil {
		return err
	}

	return withClient(cmd.Context(), opts, func(c *travelintel.Client) error {
		c.Tracker.Record(actionType, data)
		fmt.Fprintf(cmd.OutOrStdout(), "✓ Recorded %s (session %s)\n", actionType, c.Tracker.SessionID())
		return nil
	})
}

func listActionTypes(w io.Writer) {
	for _, t := range telemetry.ActionTypes() {
		if t.Urgent() {
			fmt.Fprintf(w, "%s (urgent)\n", t)
			continue
		}
		fmt.Fprintln(w, t)
	}
}

func parsePairs(pairs []string) (map[string]any, error) {
	data := make(map[string]any, len(pairs))
	for _, pair := range pairs {
		key, raw, ok := strings.Cut(pair, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid data %q, expected key=value", pair)
		}
		var v any
		if err := json.Unmarshal([]byte(raw), &v); err != nil {
			v = raw
		}
		data[key] = v
	}
	return data, nil
}
