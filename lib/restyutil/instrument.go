package restyutil

import (
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/go-resty/resty/v2"
)

type InstrumentOutput interface {
	Write(id string, contents string)
}

type instrumentCtx struct {
	output    InstrumentOutput
	idcounter *uint64
}

// InstrumentClient records a transcript of every completed exchange of
// the client into output. `output` can be nil, the function is then a
// no-op.
func InstrumentClient(client *resty.Client, prefix string, output InstrumentOutput) {
	if output == nil {
		return
	}
	var idcounter uint64
	i := instrumentCtx{output: output, idcounter: &idcounter}
	client.OnAfterResponse(i.onAfterResponse(prefix))
	client.OnError(i.onError(prefix))
}

func (i instrumentCtx) nextID(prefix, method string) string {
	n := atomic.AddUint64(i.idcounter, 1)
	return fmt.Sprintf("%s-%04d-%s.txt", prefix, n, method)
}

func (i instrumentCtx) onAfterResponse(prefix string) resty.ResponseMiddleware {
	return func(_ *resty.Client, res *resty.Response) error {
		messageId := i.nextID(prefix, res.Request.Method)
		i.output.Write(messageId, formatHttpMessage(res))
		slog.DebugContext(
			res.Request.Context(), "request transcript written",
			"method", res.Request.Method,
			"url", res.Request.URL,
			"status", res.StatusCode(),
			"message_id", messageId,
		)
		return nil
	}
}

func (i instrumentCtx) onError(prefix string) resty.ErrorHook {
	return func(req *resty.Request, err error) {
		messageId := i.nextID(prefix, req.Method)
		i.output.Write(messageId, fmt.Sprintf(
			"---- REQUEST ----\n\n%s %s\n\n%s\n\n---- ERROR ----\n\n%s",
			req.Method, req.URL, formatHeaders(req.Header), err.Error(),
		))
	}
}
