package gateway

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	domainErrors "github.com/sokodigital/storefront-payments/internal/domain/errors"
)

// defaultHTTPTimeout bounds every gateway call so a slow gateway cannot hang
// the checkout request.
const defaultHTTPTimeout = 30 * time.Second

// maxErrorBody caps how much of a gateway error reply is kept for diagnosis.
const maxErrorBody = 4 << 10

func newHTTPClient(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = defaultHTTPTimeout
	}
	return &http.Client{Timeout: timeout}
}

// wrapTransportErr classifies network failures. Timeouts get their own
// sentinel so status queries can be treated as unknown rather than failed.
func wrapTransportErr(gatewayName string, err error) error {
	if err == nil {
		return nil
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return fmt.Errorf("%s: %w", gatewayName, domainErrors.ErrGatewayTimeout)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%s: %w", gatewayName, domainErrors.ErrGatewayTimeout)
	}
	return fmt.Errorf("%s request: %w", gatewayName, err)
}

// readBody drains a response body for error reporting, capped at maxErrorBody.
func readBody(r io.Reader) string {
	b, _ := io.ReadAll(io.LimitReader(r, maxErrorBody))
	return string(b)
}
