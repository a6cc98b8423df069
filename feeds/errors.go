package feeds

import (
	"errors"

	"encore.dev/beta/errs"

	"github.com/wikifeed/feedengine/pkg/models"
)

// toAPIError maps engine failures to API error codes. The public message is
// the failure kind; the full error is kept as the cause for logs.
func toAPIError(err error) error {
	if err == nil {
		return nil
	}
	var apiErr *errs.Error
	if errors.As(err, &apiErr) {
		return err
	}

	kind := models.KindOf(err)
	return errs.B().Code(codeFor(kind)).Msg(messageFor(kind)).Cause(err).Err()
}

func codeFor(kind models.Kind) errs.ErrCode {
	switch kind {
	case models.KindNotFound:
		return errs.NotFound
	case models.KindInvalidQuery:
		return errs.InvalidArgument
	case models.KindRateBudgetExhausted, models.KindUpstreamThrottled:
		return errs.ResourceExhausted
	case models.KindUpstreamUnavailable, models.KindUpstreamForbidden, models.KindSummaryUnavailable:
		return errs.Unavailable
	case models.KindWaitTimeout:
		return errs.DeadlineExceeded
	default:
		return errs.Internal
	}
}

func messageFor(kind models.Kind) string {
	switch kind {
	case models.KindNotFound:
		return "topic not found"
	case models.KindInvalidQuery:
		return "invalid query"
	case models.KindRateBudgetExhausted:
		return "rate limit exceeded, please try again later"
	case models.KindUpstreamThrottled:
		return "search provider is throttling requests, please try again later"
	case models.KindUpstreamUnavailable, models.KindUpstreamForbidden:
		return "search provider unavailable"
	case models.KindSummaryUnavailable:
		return "summary unavailable"
	case models.KindWaitTimeout:
		return "timed out waiting for results"
	default:
		return "internal error"
	}
}
