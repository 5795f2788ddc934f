package remote

import (
	"github.com/dl-alexandre/gsyncd/internal/logging"
	"github.com/dl-alexandre/gsyncd/internal/utils"
	"google.golang.org/api/googleapi"
)

// ClassifyError converts a raw backend error into a SyncError with a
// stable status code. Non-API errors (DNS failures, timeouts, reset
// connections) classify as retryable network errors.
func ClassifyError(err error, traceID string, logger logging.Logger) *utils.SyncError {
	apiErr, ok := err.(*googleapi.Error)
	if !ok {
		logger.Error("Non-API remote error",
			logging.F("error", err.Error()),
			logging.F("traceId", traceID),
		)
		return utils.NewSyncError(utils.CodeNetworkError, err.Error()).
			WithRetryable(true).
			WithContext("traceId", traceID).
			Build()
	}

	var code utils.Code
	var retryable bool

	switch apiErr.Code {
	case 400:
		code = utils.CodeInvalidArgument
	case 401:
		code = utils.CodeAuthRequired
	case 403:
		code = utils.CodeFailed
		for _, e := range apiErr.Errors {
			switch e.Reason {
			case "storageQuotaExceeded", "teamDriveFileLimitExceeded":
				code = utils.CodeQuotaExceeded
				retryable = true
			case "sharingRateLimitExceeded", "userRateLimitExceeded", "rateLimitExceeded":
				code = utils.CodeRateLimited
				retryable = true
			case "dailyLimitExceeded":
				code = utils.CodeRateLimited
			}
		}
	case 404:
		code = utils.CodeNotFound
	case 409:
		code = utils.CodeConflict
	case 429:
		code = utils.CodeRateLimited
		retryable = true
	case 500, 502, 503, 504:
		code = utils.CodeServiceUnavailable
		retryable = true
	default:
		code = utils.CodeFailed
		retryable = apiErr.Code >= 500
	}

	logger.Error("Remote error classified",
		logging.F("httpStatus", apiErr.Code),
		logging.F("statusCode", code),
		logging.F("retryable", retryable),
		logging.F("message", apiErr.Message),
		logging.F("traceId", traceID),
	)

	builder := utils.NewSyncError(code, apiErr.Message).
		WithRetryable(retryable).
		WithContext("httpStatus", apiErr.Code).
		WithContext("traceId", traceID)

	if len(apiErr.Errors) > 0 {
		builder.WithContext("reason", apiErr.Errors[0].Reason)
	}

	return builder.Build()
}
