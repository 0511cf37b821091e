package httpapi

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/motioncore/stservoctl/session"
)

// servoIDParam parses the {id} path segment as a servo address.
func servoIDParam(r *http.Request) (session.ServoID, error) {
	raw := chi.URLParam(r, "id")
	n, err := strconv.ParseUint(raw, 10, 8)
	if err != nil {
		return 0, fmt.Errorf("invalid servo id %q: %w", raw, err)
	}
	return session.ServoID(n), nil
}
