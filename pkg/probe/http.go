package probe

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/pulsewatch/pulsewatch/pkg/database"
)

// sharedTransport holds the connection-pool settings that doHTTPCheck copies
// into the Transport it builds for each check. Every check gets its own
// http.Client and Transport, so idle connections are not reused across
// checks.
var sharedTransport = &http.Transport{
	MaxIdleConns:        100,
	MaxIdleConnsPerHost: 10,
	IdleConnTimeout:     90 * time.Second,
}

type httpProber struct {
	timeout func(cfg map[string]any) time.Duration
}

// httpConfig is the decoded shape of a monitor's config map for http,
// keyword, and (partially) https-cert monitors.
type httpConfig struct {
	url             string
	method          string
	statusCodes     string
	requestBody     string
	requestHeaders  map[string]string
	ignoreTLS       bool
	maxRedirects    int
	connectTimeout  time.Duration
	notifyCertExpiry bool
	keywords        []string
}

func decodeHTTPConfig(cfg map[string]any, timeoutFn func(map[string]any) time.Duration) (httpConfig, error) {
	out := httpConfig{
		method:       "GET",
		maxRedirects: 10,
	}

	u, ok := toString(cfg["url"])
	if !ok || u == "" {
		return out, errors.New("url 不能为空")
	}
	out.url = u

	if m, ok := toString(cfg["httpMethod"]); ok && m != "" {
		switch strings.ToUpper(m) {
		case "GET", "POST", "PUT", "DELETE", "HEAD", "OPTIONS", "PATCH":
			out.method = strings.ToUpper(m)
		default:
			return out, fmt.Errorf("不支持的 HTTP 方法: %s", m)
		}
	}

	if sc, ok := toString(cfg["statusCodes"]); ok {
		out.statusCodes = sc
	}
	if body, ok := toString(cfg["requestBody"]); ok {
		out.requestBody = body
	}
	if headers, ok := cfg["requestHeaders"].(map[string]any); ok {
		out.requestHeaders = make(map[string]string, len(headers))
		for k, v := range headers {
			if s, ok := toString(v); ok {
				out.requestHeaders[k] = s
			}
		}
	}
	out.ignoreTLS = toBool(cfg["ignoreTls"])
	out.notifyCertExpiry = toBool(cfg["notifyCertExpiry"])

	if mr, ok := toInt(cfg["maxRedirects"]); ok {
		if mr < 0 {
			return out, errors.New("maxRedirects 不能为负数")
		}
		out.maxRedirects = mr
	}

	out.connectTimeout = timeoutFn(cfg)

	if kw, ok := toString(cfg["keyword"]); ok && kw != "" {
		out.keywords = strings.Split(kw, ",")
	}

	return out, nil
}

func (p *httpProber) Check(ctx context.Context, monitor *database.Monitor) (CheckResult, error) {
	cfg, err := monitor.Config()
	if err != nil {
		return configInvalid("无法解析配置: %v", err), nil
	}
	hc, err := decodeHTTPConfig(cfg, p.timeout)
	if err != nil {
		return configInvalid("%v", err), nil
	}
	return doHTTPCheck(ctx, hc), nil
}

// doHTTPCheck performs the actual HTTP round trip shared by the http,
// keyword, and (for non-cert body checks) executors.
func doHTTPCheck(ctx context.Context, hc httpConfig) CheckResult {
	start := time.Now()

	client := &http.Client{
		Timeout: hc.connectTimeout,
		Transport: &http.Transport{
			TLSClientConfig:     &tls.Config{InsecureSkipVerify: hc.ignoreTLS},
			MaxIdleConns:        sharedTransport.MaxIdleConns,
			MaxIdleConnsPerHost: sharedTransport.MaxIdleConnsPerHost,
			IdleConnTimeout:     sharedTransport.IdleConnTimeout,
		},
	}
	if hc.maxRedirects == 0 {
		client.CheckRedirect = func(req *http.Request, via []*http.Request) error {
			return http.ErrUseLastResponse
		}
	} else {
		client.CheckRedirect = func(req *http.Request, via []*http.Request) error {
			if len(via) >= hc.maxRedirects {
				return fmt.Errorf("超过最大重定向次数 (%d)", hc.maxRedirects)
			}
			return nil
		}
	}

	reqCtx, cancel := context.WithTimeout(ctx, hc.connectTimeout)
	defer cancel()

	var bodyReader io.Reader
	if hc.requestBody != "" {
		bodyReader = strings.NewReader(hc.requestBody)
	}

	req, err := http.NewRequestWithContext(reqCtx, hc.method, hc.url, bodyReader)
	if err != nil {
		return CheckResult{Status: database.StatusDown, Message: fmt.Sprintf("配置无效: 无效的 URL: %v", err)}
	}
	for k, v := range hc.requestHeaders {
		req.Header.Set(k, v)
	}

	resp, err := client.Do(req)
	if err != nil {
		return CheckResult{Status: database.StatusDown, Message: classifyHTTPError(err)}
	}
	defer resp.Body.Close()

	ping := intPtr(int(time.Since(start).Milliseconds()))

	if !statusAccepted(resp.StatusCode, hc.statusCodes) {
		return CheckResult{
			Status:  database.StatusDown,
			Message: fmt.Sprintf("状态码超出范围: %d", resp.StatusCode),
			Ping:    ping,
		}
	}

	var certResult *CheckResult
	if hc.notifyCertExpiry && resp.TLS != nil && len(resp.TLS.PeerCertificates) > 0 {
		certResult = certExpiryCheck(resp.TLS.PeerCertificates[0], ping)
	}

	if len(hc.keywords) > 0 {
		bodyBytes, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
		body := string(bodyBytes)
		matched := ""
		for _, kw := range hc.keywords {
			kw = strings.TrimSpace(kw)
			if kw != "" && strings.Contains(body, kw) {
				matched = kw
				break
			}
		}
		if matched == "" {
			return CheckResult{Status: database.StatusDown, Message: "未匹配到任何关键字", Ping: ping}
		}
		return CheckResult{Status: database.StatusUp, Message: fmt.Sprintf("匹配到关键字: %s", matched), Ping: ping}
	}

	if certResult != nil {
		return *certResult
	}

	return CheckResult{Status: database.StatusUp, Message: "OK", Ping: ping}
}

// classifyHTTPError turns a client.Do error into one of the standard
// network-error taxonomy messages.
func classifyHTTPError(err error) string {
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return "TIMEOUT: " + err.Error()
	}
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return "HOST_NOT_FOUND: " + err.Error()
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		if strings.Contains(opErr.Error(), "refused") {
			return "CONNECTION_REFUSED: " + err.Error()
		}
	}
	return "NETWORK_ERROR: " + err.Error()
}

// statusAccepted parses the monitor's statusCodes grammar: empty means
// accept 2xx, a single number "200" matches exactly, a range "200-299"
// matches inclusively.
func statusAccepted(code int, spec string) bool {
	spec = strings.TrimSpace(spec)
	if spec == "" {
		return code >= 200 && code < 300
	}
	if lo, hi, ok := strings.Cut(spec, "-"); ok {
		loN, err1 := strconv.Atoi(strings.TrimSpace(lo))
		hiN, err2 := strconv.Atoi(strings.TrimSpace(hi))
		if err1 == nil && err2 == nil {
			return code >= loN && code <= hiN
		}
		return false
	}
	n, err := strconv.Atoi(spec)
	if err != nil {
		return code >= 200 && code < 300
	}
	return code == n
}
