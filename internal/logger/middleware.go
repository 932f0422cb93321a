package logger

import (
	"log/slog"
	"net/http"
	"runtime/debug"
	"time"

	"github.com/google/uuid"
)

// HTTPLogging оборачивает обработчик: даёт каждому запросу свой логгер
// с reqID, пишет статус и длительность, перехватывает паники.
func HTTPLogging(log *slog.Logger, h http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		log := log.With("reqID", uuid.NewString(), "from", r.RemoteAddr, "method", r.Method, "url", r.URL.String())
		log.Debug("request received")

		si := &statusInterceptor{ResponseWriter: w, log: log}
		r = r.WithContext(Context(r.Context(), log))

		defer func() {
			if p := recover(); p != nil {
				log.Error("*** panic recovered ***", "panic", p, "stack", string(debug.Stack()))
				if si.status == 0 {
					http.Error(si, "internal error", http.StatusInternalServerError)
				}
			}
			log.Debug("request done", "status", si.status, "duration", time.Since(start))
		}()

		h.ServeHTTP(si, r)
	})
}

// statusInterceptor запоминает первый выставленный статус и ругается на повторные.
type statusInterceptor struct {
	http.ResponseWriter
	log    *slog.Logger
	status int
}

func (si *statusInterceptor) WriteHeader(status int) {
	switch {
	case status >= 100 && status < 200:
		si.ResponseWriter.WriteHeader(status)
	case si.status == 0:
		si.status = status
		si.ResponseWriter.WriteHeader(status)
	case si.status != status:
		si.log.Warn("status code conflict", "origStatus", si.status, "newStatus", status)
	default:
		si.log.Warn("redundant WriteHeader call", "status", status)
	}
}

func (si *statusInterceptor) Write(b []byte) (int, error) {
	if si.status == 0 {
		si.status = http.StatusOK
	}
	n, err := si.ResponseWriter.Write(b)
	if err != nil {
		si.log.Error("write failed", "error", err)
	}
	return n, err
}
