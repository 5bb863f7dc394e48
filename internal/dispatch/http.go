package dispatch

import (
	"context"
	"fmt"
	"time"

	"github.com/cloudwego/hertz/pkg/app/client"
	"github.com/cloudwego/hertz/pkg/protocol"
	"github.com/cloudwego/hertz/pkg/protocol/consts"

	"CareLink/pkg/breaker"
	"CareLink/pkg/errors"
)

// Doer 抽象 hertz client，测试中替换为假实现
type Doer interface {
	DoTimeout(ctx context.Context, req *protocol.Request, resp *protocol.Response, timeout time.Duration) error
}

const defaultTimeout = 15 * time.Second

// NewHTTPClient 推送与邮件网关共用的 hertz client
func NewHTTPClient(timeout time.Duration) (*client.Client, error) {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return client.NewClient(
		client.WithDialTimeout(5*time.Second),
		client.WithClientReadTimeout(timeout),
		client.WithWriteTimeout(timeout),
		client.WithMaxConnsPerHost(32),
	)
}

// postJSON 发起一次 JSON POST，非 2xx 视为失败
// 传输错误和 5xx 计入熔断，4xx 只作为本次调用的失败
func postJSON(ctx context.Context, doer Doer, cb *breaker.CircuitBreaker, url string, headers map[string]string, body []byte, timeout time.Duration) error {
	req := protocol.AcquireRequest()
	resp := protocol.AcquireResponse()
	defer protocol.ReleaseRequest(req)
	defer protocol.ReleaseResponse(resp)

	req.SetMethod(consts.MethodPost)
	req.SetRequestURI(url)
	req.Header.SetContentTypeBytes([]byte("application/json"))
	req.Header.Set("Accept", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	req.SetBody(body)

	var (
		status   int
		respBody []byte
	)
	call := func(ctx context.Context) error {
		if err := doer.DoTimeout(ctx, req, resp, timeout); err != nil {
			return fmt.Errorf("request %s: %w", url, err)
		}
		status = resp.StatusCode()
		respBody = append([]byte(nil), resp.Body()...)
		if status >= consts.StatusInternalServerError {
			return gatewayError(status, respBody)
		}
		return nil
	}

	var err error
	if cb != nil {
		err = cb.Call(ctx, call)
	} else {
		err = call(ctx)
	}
	if err != nil {
		return err
	}

	if status < 200 || status >= 300 {
		return gatewayError(status, respBody)
	}
	return nil
}

func gatewayError(status int, body []byte) error {
	const maxBody = 256
	if len(body) > maxBody {
		body = body[:maxBody]
	}
	return fmt.Errorf("%w: status %d: %s", errors.DispatchGatewayError, status, string(body))
}
