package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/drummonds/docpreview/engine/preview"
	"github.com/drummonds/docpreview/internal/testpdf"
)

// StartupChecks performs all the checks to make sure everything works
func (serverHandler *ServerHandler) StartupChecks() error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := databaseChecks(ctx, serverHandler); err != nil {
		return err
	}
	return rendererChecks(ctx, serverHandler)
}

// databaseChecks makes sure the session store answers
func databaseChecks(ctx context.Context, serverHandler *ServerHandler) error {
	if err := serverHandler.DB.Ping(ctx); err != nil {
		Logger.Error("Database is not reachable", "type", serverHandler.ServerConfig.DatabaseType, "error", err)
		return fmt.Errorf("database check failed: %w", err)
	}
	Logger.Info("Database reachable", "type", serverHandler.ServerConfig.DatabaseType)
	return nil
}

// rendererChecks renders a blank one page document so a broken engine shows
// up at startup rather than on the first preview
func rendererChecks(ctx context.Context, serverHandler *ServerHandler) error {
	file := preview.NewSourceFile("startup-check.pdf", preview.PDFMediaType, testpdf.Build(1))
	result, err := serverHandler.Renderer.Request(ctx, file, 1)
	if err != nil {
		Logger.Error("Renderer failed its startup check", "engine", serverHandler.EngineName, "error", err)
		return fmt.Errorf("renderer check failed: %w", err)
	}
	Logger.Info("Renderer ready", "engine", serverHandler.EngineName, "width", result.Width, "height", result.Height)
	return nil
}
