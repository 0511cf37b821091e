// Package httpapi is the JSON-over-HTTP request surface (spec.md §6) that
// wraps the controller façade: one chi route per operation, translating
// JSON request bodies into façade calls and façade results/errors into the
// {"success": bool, ...} envelope every response carries.
package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/motioncore/stservoctl/controller"
	"github.com/motioncore/stservoctl/logging"
)

// statusForKind maps a controller.Kind onto the HTTP status a caller should
// see; Kind itself (not message text) is what callers branch on via the
// envelope's error_kind field, mirroring spec.md §7.
func statusForKind(kind controller.Kind) int {
	switch kind {
	case controller.KindNotConnected:
		return http.StatusConflict
	case controller.KindInvalidArgument:
		return http.StatusBadRequest
	case controller.KindPortOpenFailed, controller.KindBaudSetFailed:
		return http.StatusServiceUnavailable
	case controller.KindTransportTimeout, controller.KindTransportCorrupt, controller.KindTransportRefused:
		return http.StatusGatewayTimeout
	case controller.KindServoNotFound:
		return http.StatusNotFound
	case controller.KindIDInUse:
		return http.StatusConflict
	case controller.KindEepromProtected:
		return http.StatusConflict
	case controller.KindRecoveryExhausted:
		return http.StatusOK // degraded telemetry, not a request failure
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// writeError logs err (at Warn for ordinary kinds, Error with a stack for
// KindInternal, per spec.md §7's "always logged with a stack trace") and
// writes the error envelope at the status its Kind maps to.
func writeError(w http.ResponseWriter, logger logging.Logger, err error) {
	kind := controller.ErrorKind(err)
	if kind == controller.KindInternal {
		logger.Errorf("internal error: %+v", err)
	} else {
		logger.Warnw("request failed", "kind", kind, "error", err.Error())
	}
	writeJSON(w, statusForKind(kind), errEnvelope(err))
}

// decodeJSON decodes r's body into dst. An empty body is treated as a
// zero-value request (several endpoints, e.g. disconnect, take no body).
func decodeJSON(r *http.Request, dst interface{}) error {
	if r.ContentLength == 0 {
		return nil
	}
	dec := json.NewDecoder(r.Body)
	return dec.Decode(dst)
}

func writeBadRequest(w http.ResponseWriter, logger logging.Logger, err error) {
	logger.Warnw("malformed request", "error", err.Error())
	writeJSON(w, http.StatusBadRequest, envelope{Success: false, Error: err.Error()})
}
