package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/ceyewan/nsid/clog"
	"github.com/ceyewan/nsid/idgen"
	"github.com/ceyewan/nsid/xerrors"
)

// CodeInternal 未分类错误的错误码
const CodeInternal = "internal"

type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// statusOf 将 idgen 错误映射为 HTTP 状态码与错误码
func statusOf(err error) (int, string) {
	status := http.StatusInternalServerError
	switch {
	case xerrors.Is(err, idgen.ErrInvalidNamespace):
		return http.StatusBadRequest, idgen.CodeInvalidNamespace
	case xerrors.Is(err, idgen.ErrInvalidInput), xerrors.Is(err, xerrors.ErrInvalidInput):
		return http.StatusBadRequest, idgen.CodeInvalidInput
	case xerrors.Is(err, idgen.ErrNamespaceAlreadyInitialized):
		status = http.StatusConflict
	case xerrors.Is(err, idgen.ErrStoreUnavailable):
		status = http.StatusServiceUnavailable
	case xerrors.Is(err, idgen.ErrCounterOverflow), xerrors.Is(err, idgen.ErrNamespaceLimit):
		status = http.StatusInsufficientStorage
	}

	code := xerrors.GetCode(err)
	if code == "" {
		code = CodeInternal
	}
	return status, code
}

func (s *Server) fail(c *gin.Context, err error) {
	status, code := statusOf(err)
	fields := []clog.Field{
		clog.String("path", c.FullPath()),
		clog.String("namespace", c.Param("namespace")),
		clog.ErrorWithCode(err, code),
	}
	switch {
	case status == http.StatusServiceUnavailable:
		c.Header("Retry-After", "1")
		s.logger.WarnContext(c.Request.Context(), "request failed", fields...)
	case status >= http.StatusInternalServerError:
		s.logger.ErrorContext(c.Request.Context(), "request failed", fields...)
	default:
		s.logger.DebugContext(c.Request.Context(), "request rejected", fields...)
	}
	c.AbortWithStatusJSON(status, errorResponse{Error: code, Message: err.Error()})
}
