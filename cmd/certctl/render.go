package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"

	"eventcert/internal/certificate"
	"eventcert/internal/layout"
	"eventcert/internal/verification"
)

func renderCmd() *cobra.Command {
	var (
		layoutPath   string
		templatePath string
		out          string
		format       string
		engine       string
		scale        float64
		values       certificate.Values
		email        string
		eventID      string
		baseURL      string
	)
	cmd := &cobra.Command{
		Use:   "render",
		Short: "Render a certificate to a PDF or PNG file",
		Example: `  certctl render --template bg.png --layout layout.json --name "Ada Lovelace" \
    --event "Hackathon" --email ada@example.com --event-id 1790000000000000000 --out ada.pdf`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if templatePath == "" || out == "" {
				return errors.New("--template and --out are required")
			}
			tpl, err := os.ReadFile(templatePath)
			if err != nil {
				return fmt.Errorf("read template: %w", err)
			}

			l := layout.Default()
			if layoutPath != "" {
				raw, err := os.ReadFile(layoutPath)
				if err != nil {
					return fmt.Errorf("read layout: %w", err)
				}
				if l, err = layout.Parse(raw); err != nil {
					return err
				}
				if err := layout.Validate(l); err != nil {
					return err
				}
			}
			if values.Date == "" {
				values.Date = time.Now().Format("1/2/2006")
			}

			in := certificate.Input{Template: tpl, Layout: l, Values: values}
			if email != "" && eventID != "" {
				in.VerificationURL = verification.URL(baseURL, verification.Encode(email, eventID))
			}

			logger := slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: slog.LevelWarn}))
			var renderer certificate.Renderer
			switch format {
			case "pdf":
				if renderer, err = certificate.NewRenderer(certificate.Engine(engine), logger); err != nil {
					return err
				}
				if closer, ok := renderer.(io.Closer); ok {
					defer closer.Close()
				}
			case "png":
				renderer = certificate.NewPreviewRenderer(scale, logger)
			default:
				return fmt.Errorf("unknown format %q (want pdf or png)", format)
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), time.Minute)
			defer cancel()
			data, err := renderer.Render(ctx, in)
			if err != nil {
				return fmt.Errorf("render certificate: %w", err)
			}
			if err := os.WriteFile(out, data, 0o644); err != nil {
				return fmt.Errorf("write %s: %w", out, err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %s (%d bytes)\n", out, len(data))
			return nil
		},
	}
	f := cmd.Flags()
	f.StringVar(&templatePath, "template", "", "certificate template image (png, jpeg, gif or webp)")
	f.StringVar(&layoutPath, "layout", "", "layout JSON file (default layout when omitted)")
	f.StringVarP(&out, "out", "o", "", "output file")
	f.StringVar(&format, "format", "pdf", "output format: pdf or png")
	f.StringVar(&engine, "engine", string(certificate.EnginePDF), "pdf engine: pdf or chromium")
	f.Float64Var(&scale, "scale", certificate.DefaultPreviewScale, "png pixels per point")
	f.StringVar(&values.Name, "name", "Participant", "participant name")
	f.StringVar(&values.EventName, "event", "", "event name")
	f.StringVar(&values.College, "college", "", "college name")
	f.StringVar(&values.Date, "date", "", "issue date (today when omitted)")
	f.StringVar(&email, "email", "", "participant email, encoded in the QR verification link")
	f.StringVar(&eventID, "event-id", "", "event id, encoded in the QR verification link")
	f.StringVar(&baseURL, "verify-base-url", "http://localhost:3000", "base URL of the verification page")
	return cmd
}
