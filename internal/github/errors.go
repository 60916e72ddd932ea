package github

import (
	"errors"
	"net/http"

	gh "github.com/google/go-github/v72/github"
)

// IsNotFound reports whether err is a GitHub API 404 response.
func IsNotFound(err error) bool {
	return statusCode(err) == http.StatusNotFound
}

// ErrorMessage returns GitHub's own message for an API error, falling back
// to err.Error() for transport failures.
func ErrorMessage(err error) string {
	var apiError *gh.ErrorResponse
	if errors.As(err, &apiError) && apiError.Message != "" {
		return apiError.Message
	}
	return err.Error()
}

func statusCode(err error) int {
	var apiError *gh.ErrorResponse
	if errors.As(err, &apiError) && apiError.Response != nil {
		return apiError.Response.StatusCode
	}
	return 0
}
