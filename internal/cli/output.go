package cli

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/aixgo-dev/travelintel"
)

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// resolveUser returns the explicit --user value or the signed-in user's id.
func resolveUser(c *travelintel.Client, explicit string) (string, error) {
	if explicit != "" {
		return explicit, nil
	}
	if sess, ok := c.Auth.Current(); ok {
		return sess.User.ID.String(), nil
	}
	return "", fmt.Errorf("not signed in; run 'travelintel login' or pass --user")
}
