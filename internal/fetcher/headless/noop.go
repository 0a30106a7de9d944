package headless

import (
	"context"
	"errors"

	"github.com/JakeFAU/headline-scraper/internal/scrape"
)

// ErrDisabled is returned when rendering is turned off in config.
var ErrDisabled = errors.New("headless rendering disabled")

// Disabled is a Renderer that always fails, sending extraction straight to the fallback.
type Disabled struct{}

// Render returns ErrDisabled.
func (Disabled) Render(context.Context, string) (scrape.RenderResult, error) {
	return scrape.RenderResult{}, ErrDisabled
}
