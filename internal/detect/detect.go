// Package detect wraps vision model clients behind the label.Detector
// interface and applies the shared call budget: rate limiting, per-call
// deadlines, and counters.
package detect

import (
	"context"
	"fmt"
	"image"
	"time"

	"golang.org/x/time/rate"

	"github.com/printops/labelpress/internal/label"
	"github.com/printops/labelpress/internal/metrics"
)

// Prompt is the instruction sent with every frame. The reply contract is
// what internal/extract parses: a bare JSON object with pixel coordinates,
// or {"found": false}.
const Prompt = `Analyze this image and locate the shipping label. The shipping label is the
rectangular region containing the delivery address, return address, barcodes,
and carrier information (e.g., UPS, FedEx, USPS, DHL).

If the image contains only a shipping label with no surrounding content,
return the full image dimensions.

If the image contains a shipping label embedded within other content
(instructions, packing slips, etc.), return the bounding box of just the
shipping label.

Return ONLY a JSON object with these exact keys:
{
  "found": true,
  "x1": <left edge in pixels>,
  "y1": <top edge in pixels>,
  "x2": <right edge in pixels>,
  "y2": <bottom edge in pixels>
}

If no shipping label is found, return:
{"found": false}`

// Limited decorates a detector with a query budget. Vision APIs meter by
// request, so every provider goes through one of these.
type Limited struct {
	inner    label.Detector
	provider string
	limiter  *rate.Limiter
	timeout  time.Duration
}

// NewLimited wraps inner. A qps of zero disables rate limiting and a zero
// timeout disables the per-call deadline.
func NewLimited(inner label.Detector, provider string, qps float64, timeout time.Duration) *Limited {
	var limiter *rate.Limiter
	if qps > 0 {
		limiter = rate.NewLimiter(rate.Limit(qps), 1)
	}
	return &Limited{inner: inner, provider: provider, limiter: limiter, timeout: timeout}
}

// Locate blocks for a rate token, then forwards to the wrapped detector
// under the configured deadline.
func (l *Limited) Locate(ctx context.Context, frame *image.RGBA) (string, error) {
	if l.limiter != nil {
		if err := l.limiter.Wait(ctx); err != nil {
			metrics.ObserveDetectorCall(l.provider, metrics.OutcomeError)
			return "", fmt.Errorf("detector rate limit: %w", err)
		}
	}
	if l.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, l.timeout)
		defer cancel()
	}

	reply, err := l.inner.Locate(ctx, frame)
	if err != nil {
		metrics.ObserveDetectorCall(l.provider, metrics.OutcomeError)
		return "", err
	}
	metrics.ObserveDetectorCall(l.provider, metrics.OutcomeOK)
	return reply, nil
}
