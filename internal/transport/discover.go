package transport

import (
	"context"
	"errors"
	"fmt"

	"resty.dev/v3"
)

type wsURLResponse struct {
	WSURL string `json:"wsUrl"`
}

// DiscoverURL asks endpoint for the stream URL. The endpoint answers with
// {"wsUrl": "..."}.
func DiscoverURL(client *resty.Client, endpoint string) Resolver {
	return func(ctx context.Context) (string, error) {
		var body wsURLResponse
		res, err := client.R().
			SetContext(ctx).
			SetResult(&body).
			Get(endpoint)
		if err != nil {
			return "", fmt.Errorf("fetching %s: %w", endpoint, err)
		}
		if res.IsError() {
			return "", fmt.Errorf("fetching %s: http status %d", endpoint, res.StatusCode())
		}
		if body.WSURL == "" {
			return "", errors.New("wsUrl missing from discovery response")
		}
		return body.WSURL, nil
	}
}
