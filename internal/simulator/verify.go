package simulator

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/okian/swish/internal/domain/model"
	"github.com/okian/swish/internal/domain/types"
	"github.com/okian/swish/pkg/logger"
)

// maxVerifyLimit matches the service's default list cap.
const maxVerifyLimit = 100

// Verify fetches the most recent shots from the service and checks that
// they end with expected, in order. Only the last maxVerifyLimit records
// are compared.
func Verify(ctx context.Context, baseURL string, timeout time.Duration, expected []model.ShotRecord) error {
	if len(expected) == 0 {
		return nil
	}
	if len(expected) > maxVerifyLimit {
		expected = expected[len(expected)-maxVerifyLimit:]
	}

	client := &http.Client{Timeout: timeout}
	url := baseURL + "/shots?limit=" + strconv.Itoa(len(expected))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrVerify, err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrVerify, err)
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			logger.Get().Error(context.Background(), "failed to close response body", logger.Error(err))
		}
	}()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: GET /shots status %d", ErrVerify, resp.StatusCode)
	}

	var list types.ShotList
	if err := json.NewDecoder(resp.Body).Decode(&list); err != nil {
		return fmt.Errorf("%w: %w", ErrVerify, err)
	}
	if len(list.Shots) != len(expected) {
		return fmt.Errorf("%w: got %d shots, want %d", ErrMismatch, len(list.Shots), len(expected))
	}

	// The service lists newest first.
	for i, want := range expected {
		got := list.Shots[len(list.Shots)-1-i]
		if got.TSRelease != want.TSRelease ||
			got.TSApex != want.TSApex ||
			got.Classification != int(want.Classification) ||
			got.Scored != want.Scored ||
			got.GripPeak != want.GripPeak {
			return fmt.Errorf("%w: attempt %d: got %+v, want %+v", ErrMismatch, i, got, want)
		}
	}

	logger.Get().Info(ctx, "stored shots match the plan", logger.Int("shots", len(expected)))
	return nil
}
