package httpapi

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/plainlyhq/plainly-core/internal/api"
	"github.com/plainlyhq/plainly-core/internal/common"
)

func writeData(w http.ResponseWriter, status int, data any) {
	env := api.Envelope{ErrCode: api.CodeOK}
	if data != nil {
		raw, err := json.Marshal(data)
		if err != nil {
			writeError(w, err)
			return
		}
		env.Data = raw
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(env)
}

func writeError(w http.ResponseWriter, err error) {
	code := api.ErrorCode(err)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(httpStatus(code))
	_ = json.NewEncoder(w).Encode(api.Envelope{ErrCode: code, ErrMsg: err.Error()})
}

func httpStatus(code int) int {
	switch code {
	case api.CodeValidation:
		return http.StatusBadRequest
	case api.CodeNotFound:
		return http.StatusNotFound
	case api.CodeUnauthorized, api.CodeTokenExpired, api.CodeInvalidCredentials, api.CodeRefreshTokenExpired:
		return http.StatusUnauthorized
	case api.CodeAccountExists:
		return http.StatusConflict
	case api.CodeStorageUnavailable:
		return http.StatusServiceUnavailable
	case api.CodeUnsupported:
		return http.StatusNotImplemented
	default:
		return http.StatusInternalServerError
	}
}

// decodeBody parses a JSON request body into dst.
func decodeBody(r *http.Request, dst any) error {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return fmt.Errorf("%w: malformed request body", common.ErrValidation)
	}
	return nil
}
