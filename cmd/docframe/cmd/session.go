package cmd

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/MeKo-Tech/docframe/internal/config"
	"github.com/MeKo-Tech/docframe/internal/raster"
	"github.com/MeKo-Tech/docframe/internal/review"
	"github.com/MeKo-Tech/docframe/internal/source"
)

// newRasterizer builds the rasterizer used by the document commands. Tests replace it.
var newRasterizer = func() raster.Rasterizer { return raster.NewAutoRasterizer() }

// parseViewport parses WIDTHxHEIGHT.
func parseViewport(s string) (int, int, error) {
	ws, hs, ok := strings.Cut(strings.ToLower(strings.TrimSpace(s)), "x")
	if !ok {
		return 0, 0, fmt.Errorf("invalid viewport %q (expected WIDTHxHEIGHT)", s)
	}
	w, err := strconv.Atoi(ws)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid viewport width %q: %w", ws, err)
	}
	h, err := strconv.Atoi(hs)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid viewport height %q: %w", hs, err)
	}
	if w <= 0 || h <= 0 {
		return 0, 0, fmt.Errorf("invalid viewport %q (dimensions must be positive)", s)
	}
	return w, h, nil
}

// openDocument opens documentPath with its payload in a single-use session. Scrolling
// is instant since nothing is animated on the command line.
func openDocument(ctx context.Context, cfg *config.Config, documentPath, payloadPath string) (*review.Session, error) {
	opts := cfg.ReviewOptions()
	opts.ScrollDuration = 0
	if err := opts.Validate(); err != nil {
		return nil, fmt.Errorf("invalid review options: %w", err)
	}

	file := source.NewFile(documentPath, payloadPath)
	sess, err := review.NewSession("cli", review.Deps{
		Documents:  file,
		Payloads:   file,
		Rasterizer: newRasterizer(),
	}, opts)
	if err != nil {
		return nil, err
	}

	if ctx == nil {
		ctx = context.Background()
	}
	ctx, cancel := context.WithTimeout(ctx, time.Duration(cfg.Server.TimeoutSec)*time.Second)
	defer cancel()
	if err := sess.Open(ctx, file.ID()); err != nil {
		sess.Close()
		return nil, err
	}
	return sess, nil
}

// configWithViewport applies a --viewport flag value to cfg.
func configWithViewport(cfg *config.Config, viewport string) (*config.Config, error) {
	if viewport == "" {
		return cfg, nil
	}
	w, h, err := parseViewport(viewport)
	if err != nil {
		return nil, err
	}
	out := cfg.WithViewport(w, h)
	return &out, nil
}
