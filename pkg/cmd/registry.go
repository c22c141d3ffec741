package cmd

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/dukex/sequences/pkg/integrations"
	"github.com/dukex/sequences/pkg/integrations/httprequest"
	"github.com/dukex/sequences/pkg/integrations/logwrite"
)

// NewRegistry registers the built-in integration operations. Per-attempt
// deadlines come from the executor; the client timeout is a ceiling.
func NewRegistry(logger *slog.Logger) *integrations.Registry {
	reg := integrations.NewRegistry(logger)

	httprequest.Register(reg, &http.Client{Timeout: 5 * time.Minute}, logger)
	logwrite.Register(reg, logger)

	return reg
}
