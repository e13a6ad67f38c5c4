// Command generate runs one video generation from two local images and
// prints the resulting download URL.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/contactcopilof/APPLI-VIDEO/internal/asset"
	"github.com/contactcopilof/APPLI-VIDEO/internal/client"
	"github.com/contactcopilof/APPLI-VIDEO/internal/config"
	"github.com/contactcopilof/APPLI-VIDEO/internal/keygate"
	"github.com/contactcopilof/APPLI-VIDEO/internal/logger"
	"github.com/contactcopilof/APPLI-VIDEO/internal/model"
	"github.com/contactcopilof/APPLI-VIDEO/internal/workflow"
)

var errUsage = errors.New("both -subject and -logo are required")

type options struct {
	subject string
	logo    string
	prompt  string
}

func parseFlags(args []string, stderr io.Writer) (options, error) {
	var opts options
	fs := flag.NewFlagSet("generate", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.StringVar(&opts.subject, "subject", "", "path to the subject image")
	fs.StringVar(&opts.logo, "logo", "", "path to the logo image")
	fs.StringVar(&opts.prompt, "prompt", "", "prompt text (defaults to the configured prompt)")
	if err := fs.Parse(args); err != nil {
		return opts, err
	}
	if opts.subject == "" || opts.logo == "" {
		fs.Usage()
		return opts, errUsage
	}
	return opts, nil
}

func main() {
	opts, err := parseFlags(os.Args[1:], os.Stderr)
	if err != nil {
		os.Exit(2)
	}

	cfg, err := config.Load()
	if err != nil {
		logger.Get().Fatal().Err(err).Msg("failed to load config")
	}
	logger.Init(logger.Options{
		Level:   cfg.Log.Level,
		Format:  "console",
		Service: "copilof-generate",
		Writer:  os.Stderr,
	})
	log := logger.Named("generate")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	keyHost := keygate.NewConfigHost(cfg.Gemini.APIKey, config.LoadAPIKey)
	gate := keygate.New(keyHost)
	if !gate.HasKey(ctx) {
		log.Fatal().Msg("GEMINI_API_KEY is not set")
	}

	veo := client.NewVeoClient(&cfg.Gemini, &cfg.Generation, keyHost, client.NewGenAIBackendFactory(nil))
	ctrl := workflow.New(veo, gate, nil, cfg.Generation.DefaultPrompt)
	ctrl.OnChange(func(s workflow.Snapshot) {
		if s.Step != "" {
			log.Info().Str("status", string(s.Status)).Msg(s.Step)
		}
	})

	if err := run(ctx, opts, ctrl, os.Stdout); err != nil {
		ev := log.Error().Err(err)
		var ge *client.GenerationError
		if errors.As(err, &ge) {
			ev = ev.Str("code", ge.Code())
		}
		ev.Msg("generation failed")
		os.Exit(1)
	}
}

// run encodes the subject then the logo, generates, and writes the video URL to out.
func run(ctx context.Context, opts options, ctrl *workflow.Controller, out io.Writer) error {
	encoder := asset.NewEncoder(nil)
	inputs := []struct {
		role model.AssetRole
		path string
	}{
		{model.AssetRoleSubject, opts.subject},
		{model.AssetRoleLogo, opts.logo},
	}
	for _, in := range inputs {
		encoded, err := encoder.Encode(ctx, asset.FromPath(in.path))
		if err != nil {
			return fmt.Errorf("read %s: %w", in.role, err)
		}
		ctrl.SetAsset(in.role, encoded)
	}

	outcome, err := ctrl.Generate(ctx, opts.prompt)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(out, outcome.VideoURL)
	return err
}
