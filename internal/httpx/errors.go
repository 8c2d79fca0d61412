// Пакет httpx — общая классификация ошибок исходящих HTTP-запросов.
// Делит ошибки на транзиентные (ретраятся с бэкоффом) и постоянные
// (занятие пропускается до следующего запуска батча).
package httpx

import (
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"syscall"
)

// StatusError — не-2xx ответ внешнего сервиса.
type StatusError struct {
	Service string
	Code    int
	Body    string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s returned status %d: %s", e.Service, e.Code, e.Body)
}

// IsTransient сообщает, имеет ли смысл повторять запрос.
// Транзиентные: сетевые таймауты, сброс соединения, обрыв потока,
// 5xx и 429. Ошибки 4xx-класса постоянные — повтор не поможет.
func IsTransient(err error) bool {
	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return statusErr.Code >= http.StatusInternalServerError ||
			statusErr.Code == http.StatusTooManyRequests
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	if errors.Is(err, syscall.ECONNRESET) || errors.Is(err, syscall.ECONNREFUSED) {
		return true
	}
	if errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, io.EOF) {
		return true
	}

	return false
}
