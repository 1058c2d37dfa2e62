package builtin

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/vibecli/vibe-core/internal/tool"
)

const (
	curlMaxResponseChars = 8000
	curlMaxTimeoutSec    = 30
	curlDefaultTimeout   = 10 * time.Second
	curlMaxRedirects     = 3
)

// privateNetworks lists IPv4/IPv6 address ranges considered internal,
// covering RFC-1918 private ranges, loopback, link-local, ULA and CGNAT —
// the blocks an SSRF attempt would target.
var privateNetworks []*net.IPNet

func init() {
	for _, cidr := range []string{
		"0.0.0.0/8", "10.0.0.0/8", "100.64.0.0/10", "127.0.0.0/8",
		"169.254.0.0/16", "172.16.0.0/12", "192.168.0.0/16", "198.18.0.0/15",
		"::1/128", "fc00::/7", "fe80::/10",
	} {
		if _, network, err := net.ParseCIDR(cidr); err == nil {
			privateNetworks = append(privateNetworks, network)
		}
	}
}

var allowedHTTPMethods = map[string]bool{
	"GET": true, "POST": true, "PUT": true, "PATCH": true,
	"DELETE": true, "HEAD": true, "OPTIONS": true,
}

var usefulResponseHeaders = map[string]bool{
	"Content-Type": true, "Content-Length": true, "Content-Encoding": true,
	"Location": true, "Cache-Control": true, "Retry-After": true,
	"X-Ratelimit-Limit": true, "X-Ratelimit-Remaining": true, "X-Ratelimit-Reset": true,
	"X-Request-Id": true, "X-Correlation-Id": true,
}

// CurlFetchTool issues bounded outbound HTTP requests. Despite the name
// (matching the closed tool enumeration), it is implemented with net/http
// rather than shelling out to the curl binary, so the SSRF protections below
// run in-process instead of relying on curl's own redirect/proxy handling.
// It still goes through the shared Enforcer for its network-rate ceiling.
type CurlFetchTool struct {
	allowInternal bool
	enforcer      *tool.Enforcer
}

func NewCurlFetchTool(allowInternal bool, enforcer *tool.Enforcer) *CurlFetchTool {
	return &CurlFetchTool{allowInternal: allowInternal, enforcer: enforcer}
}

func (t *CurlFetchTool) Name() string { return "curl_fetch" }
func (t *CurlFetchTool) Description() string {
	return "Issue an HTTP request and return the response. Internal/private addresses are blocked by default."
}

func (t *CurlFetchTool) InputSchema() json.RawMessage {
	return tool.BuildSchema(
		tool.SchemaParam{Name: "url", Type: "string", Description: "Request URL (http/https only)", Required: true},
		tool.SchemaParam{Name: "method", Type: "string", Description: "HTTP method (default GET)", Required: false},
		tool.SchemaParam{Name: "body", Type: "string", Description: "Request body for POST/PUT/PATCH", Required: false},
		tool.SchemaParam{Name: "timeout", Type: "integer", Description: "Timeout in seconds (default 10, max 30)", Required: false},
	)
}

func (t *CurlFetchTool) Init(_ context.Context) error { return nil }
func (t *CurlFetchTool) Close() error                 { return nil }

func (t *CurlFetchTool) ResourceLimits() tool.ResourceLimits {
	return tool.ResourceLimits{MaxExecutionTime: curlMaxTimeoutSec * time.Second, MaxOutputSize: 1 << 20}
}

func (t *CurlFetchTool) Validate(args tool.ToolArgs) error {
	url := strings.TrimSpace(args.GetOr("url", ""))
	if url == "" {
		return fmt.Errorf("url is required")
	}
	lower := strings.ToLower(url)
	if !strings.HasPrefix(lower, "http://") && !strings.HasPrefix(lower, "https://") {
		return fmt.Errorf("only http:// and https:// are supported")
	}
	method := strings.ToUpper(strings.TrimSpace(args.GetOr("method", "GET")))
	if method == "" {
		method = "GET"
	}
	if !allowedHTTPMethods[method] {
		return fmt.Errorf("unsupported method %q", method)
	}
	return nil
}

func (t *CurlFetchTool) Execute(ctx context.Context, args tool.ToolArgs) (tool.ToolOutput, error) {
	if t.enforcer != nil {
		if err := t.enforcer.WaitNetwork(ctx); err != nil {
			return tool.ToolOutput{Success: false, Stderr: err.Error()}, err
		}
	}

	url := strings.TrimSpace(args.GetOr("url", ""))
	method := strings.ToUpper(args.GetOr("method", "GET"))
	if method == "" {
		method = "GET"
	}

	timeoutSec := atoiOr(args.GetOr("timeout", ""), 0)
	if timeoutSec <= 0 {
		timeoutSec = int(curlDefaultTimeout / time.Second)
	}
	if timeoutSec > curlMaxTimeoutSec {
		timeoutSec = curlMaxTimeoutSec
	}
	timeout := time.Duration(timeoutSec) * time.Second

	allowInternal := t.allowInternal
	baseDialer := &net.Dialer{Timeout: timeout}
	transport := &http.Transport{
		DialContext: func(dialCtx context.Context, network, addr string) (net.Conn, error) {
			host, _, err := net.SplitHostPort(addr)
			if err != nil {
				host = addr
			}
			if !allowInternal {
				if err := blockInternalHost(host); err != nil {
					return nil, err
				}
			}
			return baseDialer.DialContext(dialCtx, network, addr)
		},
	}

	redirectsDone := 0
	client := &http.Client{
		Timeout:   timeout,
		Transport: transport,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			redirectsDone++
			if redirectsDone > curlMaxRedirects {
				return fmt.Errorf("exceeded max redirects (%d)", curlMaxRedirects)
			}
			if !allowInternal {
				return blockInternalHost(req.URL.Hostname())
			}
			return nil
		},
	}

	var bodyReader io.Reader
	if body := args.GetOr("body", ""); body != "" {
		bodyReader = strings.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, bodyReader)
	if err != nil {
		return tool.ToolOutput{Success: false, Stderr: fmt.Sprintf("build request: %v", err)}, nil
	}

	start := time.Now()
	resp, err := client.Do(req)
	elapsed := time.Since(start)
	if err != nil {
		return tool.ToolOutput{Success: false, Stderr: fmt.Sprintf("request failed: %v", err)}, nil
	}
	defer resp.Body.Close()

	rawBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return tool.ToolOutput{Success: false, Stderr: fmt.Sprintf("read body failed: %v", err)}, nil
	}

	contentType := resp.Header.Get("Content-Type")
	exit := resp.StatusCode

	if isBinaryHTTPResponse(contentType, rawBody) {
		return tool.ToolOutput{
			Success:       resp.StatusCode < 400,
			Stdout:        fmt.Sprintf("status: %s\nelapsed: %dms\ncontent-type: %s\nbody: binary (%d bytes), not shown", resp.Status, elapsed.Milliseconds(), contentType, len(rawBody)),
			ExitCode:      &exit,
			ExecutionTime: elapsed,
		}, nil
	}

	bodyStr := string(rawBody)
	truncated := false
	if utf8.RuneCountInString(bodyStr) > curlMaxResponseChars {
		runes := []rune(bodyStr)
		bodyStr = string(runes[:curlMaxResponseChars])
		truncated = true
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("status: %s\nelapsed: %dms\n", resp.Status, elapsed.Milliseconds()))
	var headerLines []string
	for k, vs := range resp.Header {
		if usefulResponseHeaders[http.CanonicalHeaderKey(k)] {
			headerLines = append(headerLines, fmt.Sprintf("  %s: %s", k, strings.Join(vs, ", ")))
		}
	}
	if len(headerLines) > 0 {
		sb.WriteString("\nheaders:\n")
		for _, line := range headerLines {
			sb.WriteString(line + "\n")
		}
	}
	sb.WriteString("\nbody:\n")
	sb.WriteString(bodyStr)
	if truncated {
		sb.WriteString(fmt.Sprintf("\n... (truncated, %d bytes total)", len(rawBody)))
	}

	return tool.ToolOutput{
		Success:       resp.StatusCode < 400,
		Stdout:        sb.String(),
		ExitCode:      &exit,
		ExecutionTime: elapsed,
		ResourcesUsed: tool.ResourceUsage{NetworkCalls: 1, OutputSize: int64(len(rawBody))},
	}, nil
}

func blockInternalHost(host string) error {
	ips, err := net.LookupHost(host)
	if err != nil {
		ips = []string{host}
	}
	for _, ipStr := range ips {
		ip := net.ParseIP(ipStr)
		if ip == nil {
			continue
		}
		if ip.IsLoopback() || ip.IsLinkLocalUnicast() || ip.IsUnspecified() {
			return fmt.Errorf("refusing to contact internal address %s", host)
		}
		for _, network := range privateNetworks {
			if network.Contains(ip) {
				return fmt.Errorf("refusing to contact internal address %s", host)
			}
		}
	}
	return nil
}

func isBinaryHTTPResponse(contentType string, body []byte) bool {
	ct := strings.ToLower(contentType)
	for _, prefix := range []string{
		"image/", "audio/", "video/",
		"application/octet-stream", "application/pdf",
		"application/zip", "application/gzip", "application/x-tar", "application/x-binary",
	} {
		if strings.HasPrefix(ct, prefix) {
			return true
		}
	}
	if len(body) == 0 {
		return false
	}
	return bytes.IndexByte(body, 0) >= 0 && !utf8.Valid(body)
}
