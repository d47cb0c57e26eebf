package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
	"github.com/spf13/cobra"
	vegeta "github.com/tsenart/vegeta/v12/lib"

	"github.com/aixgo-dev/travelintel/internal/devserver"
	metrics "github.com/aixgo-dev/travelintel/pkg/observability"
	"github.com/aixgo-dev/travelintel/pkg/telemetry"
)

// LoadTestOptions configures a telemetry ingestion load test.
type LoadTestOptions struct {
	Rate       int
	Duration   time.Duration
	BatchSize  int
	Timeout    time.Duration
	Local      bool
	ActionType string
}

// NewLoadTestCmd creates the 'loadtest' command.
func NewLoadTestCmd(opts *GlobalOptions) *cobra.Command {
	lt := LoadTestOptions{
		Rate:       50,
		Duration:   10 * time.Second,
		BatchSize:  10,
		Timeout:    10 * time.Second,
		ActionType: string(telemetry.ActionPageView),
	}

	cmd := &cobra.Command{
		Use:   "loadtest",
		Short: "Load test the telemetry ingestion endpoint",
		Long: `Send telemetry batches to /ai/track-actions/ at a constant rate and report
latency percentiles and status codes. With --local the test targets an
in-process development backend.`,
		Example: `  travelintel loadtest --rate 200 --duration 30s --batch 25
  travelintel loadtest --local`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(opts)
			if err != nil {
				return err
			}
			baseURL := cfg.API.BaseURL
			if lt.Local {
				url, stop, err := startLocalBackend()
				if err != nil {
					return err
				}
				defer stop()
				baseURL = url
			}
			return runLoadTest(cmd.Context(), cmd.OutOrStdout(), baseURL, lt)
		},
	}

	f := cmd.Flags()
	f.IntVar(&lt.Rate, "rate", lt.Rate, "Requests per second")
	f.DurationVar(&lt.Duration, "duration", lt.Duration, "Test duration")
	f.IntVar(&lt.BatchSize, "batch", lt.BatchSize, "Actions per request")
	f.DurationVar(&lt.Timeout, "timeout", lt.Timeout, "Per-request timeout")
	f.BoolVar(&lt.Local, "local", false, "Target an in-process development backend")
	f.StringVar(&lt.ActionType, "type", lt.ActionType, "Action type of generated events")
	return cmd
}

func runLoadTest(ctx context.Context, w io.Writer, baseURL string, lt LoadTestOptions) error {
	if lt.Rate <= 0 || lt.Duration <= 0 || lt.BatchSize <= 0 {
		return fmt.Errorf("rate, duration and batch must be positive")
	}
	actionType := telemetry.ActionType(lt.ActionType)
	if !actionType.Valid() {
		return fmt.Errorf("unknown action type %q", lt.ActionType)
	}

	target, err := loadTestTarget(baseURL, actionType, lt.BatchSize)
	if err != nil {
		return err
	}

	attacker := vegeta.NewAttacker(vegeta.Timeout(lt.Timeout))
	rate := vegeta.Rate{Freq: lt.Rate, Per: time.Second}

	fmt.Fprintf(w, "Attacking %s at %d req/s for %s (%d actions per request)\n",
		target.URL, lt.Rate, lt.Duration, lt.BatchSize)

	var m vegeta.Metrics
	results := attacker.Attack(vegeta.NewStaticTargeter(target), rate, lt.Duration, "track-actions")
	done := ctx.Done()
	for {
		select {
		case res, ok := <-results:
			if !ok {
				m.Close()
				return vegeta.NewTextReporter(&m).Report(w)
			}
			m.Add(res)
		case <-done:
			attacker.Stop()
			done = nil
		}
	}
}

func loadTestTarget(baseURL string, actionType telemetry.ActionType, n int) (vegeta.Target, error) {
	sessionID := uuid.New().String()
	now := time.Now().UTC()
	actions := make([]telemetry.UserAction, n)
	for i := range actions {
		actions[i] = telemetry.UserAction{
			ID:        ulid.Make().String(),
			Type:      actionType,
			Data:      map[string]any{"seq": i},
			Timestamp: now,
			SessionID: sessionID,
		}
	}
	body, err := json.Marshal(telemetry.Batch{Actions: actions})
	if err != nil {
		return vegeta.Target{}, err
	}

	header := http.Header{}
	header.Set("Content-Type", "application/json")
	return vegeta.Target{
		Method: http.MethodPost,
		URL:    strings.TrimRight(baseURL, "/") + telemetry.PathTrackActions,
		Body:   body,
		Header: header,
	}, nil
}

// startLocalBackend serves a development backend on a loopback port.
func startLocalBackend() (string, func(), error) {
	srv, err := devserver.New(devserver.Config{}, metrics.DiscardLogger())
	if err != nil {
		return "", nil, err
	}
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return "", nil, err
	}
	go func() { _ = srv.Serve(ln) }()

	stop := func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}
	return "http://" + ln.Addr().String() + "/api", stop, nil
}
