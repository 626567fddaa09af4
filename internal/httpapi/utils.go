package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/yuqie6/VirtualSelf/internal/ai"
	"github.com/yuqie6/VirtualSelf/internal/dto"
	"github.com/yuqie6/VirtualSelf/internal/repository"
	"github.com/yuqie6/VirtualSelf/internal/service"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg, kind string) {
	writeJSON(w, status, dto.ErrorDTO{Error: msg, Kind: kind})
}

func readJSON(r *http.Request, out any) error {
	defer r.Body.Close()
	dec := json.NewDecoder(io.LimitReader(r.Body, 1<<20))
	dec.DisallowUnknownFields()
	if err := dec.Decode(out); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

// writeServiceError 把业务错误映射为 HTTP 状态码
func writeServiceError(w http.ResponseWriter, err error) {
	status, kind := classifyError(err)
	if status == http.StatusInternalServerError {
		slog.Error("请求处理失败", "error", err)
	}
	writeError(w, status, service.UserMessage(err), kind)
}

func classifyError(err error) (int, string) {
	switch {
	case errors.Is(err, service.ErrBusy):
		return http.StatusConflict, "busy"
	case errors.Is(err, service.ErrNoProfile):
		return http.StatusPreconditionFailed, "no_profile"
	case errors.Is(err, service.ErrNotEnoughEntries):
		return http.StatusUnprocessableEntity, "not_enough_entries"
	case errors.Is(err, service.ErrEmptyInput), errors.Is(err, service.ErrNothingExtracted):
		return http.StatusBadRequest, "invalid_input"
	case errors.Is(err, service.ErrEntryNotFound),
		errors.Is(err, service.ErrTaskNotFound),
		errors.Is(err, service.ErrUnknownQuestion):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, repository.ErrReadOnly):
		return http.StatusServiceUnavailable, "read_only"
	}

	var pe *ai.PipelineError
	if errors.As(err, &pe) {
		switch pe.Kind {
		case ai.FailureQuota:
			return http.StatusTooManyRequests, pe.Kind.String()
		case ai.FailureAuth:
			return http.StatusUnauthorized, pe.Kind.String()
		default:
			return http.StatusBadGateway, pe.Kind.String()
		}
	}
	return http.StatusInternalServerError, "internal"
}
