package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path"
	"strings"
	"sync"
	"time"

	"github.com/ncruces/zenity"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/fpang/rodin-studio/internal/config"
	"github.com/fpang/rodin-studio/internal/generate"
	"github.com/fpang/rodin-studio/internal/httpclient"
	"github.com/fpang/rodin-studio/internal/imaging"
	"github.com/fpang/rodin-studio/internal/prompt"
	"github.com/fpang/rodin-studio/internal/rodin"
)

// generate command flags
var (
	promptFlag    string
	imageFlags    []string
	pickFlag      bool
	outputFlag    string
	qualityFlag   string
	conditionFlag string
	formatFlag    string
	hyperFlag     bool
	tierFlag      string
	taPoseFlag    bool
	materialFlag  string
	rawPromptFlag bool
)

var generateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Submit a generation and download the resulting model",
	RunE:  runGenerate,
}

func init() {
	generateCmd.Flags().StringVarP(&promptFlag, "prompt", "p", "", "Text prompt describing the model")
	generateCmd.Flags().StringArrayVarP(&imageFlags, "image", "i", nil, "Reference image path (repeatable, max 5 used)")
	generateCmd.Flags().BoolVar(&pickFlag, "pick", false, "Choose reference images with a native file picker")
	generateCmd.Flags().StringVarP(&outputFlag, "output", "o", "", "Output path for the downloaded model (default: asset name)")
	generateCmd.Flags().StringVar(&qualityFlag, "quality", "medium", "Generation quality: low, medium, high")
	generateCmd.Flags().StringVar(&conditionFlag, "condition-mode", "concat", "Multi-image conditioning: concat or fuse")
	generateCmd.Flags().StringVar(&formatFlag, "format", "glb", "Geometry file format")
	generateCmd.Flags().BoolVar(&hyperFlag, "hyper", false, "Enable hyper mode")
	generateCmd.Flags().StringVar(&tierFlag, "tier", "Regular", "Generation tier: Regular or Sketch")
	generateCmd.Flags().BoolVar(&taPoseFlag, "ta-pose", false, "Request T/A pose for character models")
	generateCmd.Flags().StringVar(&materialFlag, "material", "PBR", "Material mode: PBR or Shaded")
	generateCmd.Flags().BoolVar(&rawPromptFlag, "raw-prompt", false, "Submit the prompt as typed, skipping enhancement")
	rootCmd.AddCommand(generateCmd)
}

func runGenerate(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	// Ctrl-C cancels the session, which stops the polling loop.
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()

	images := imageFlags
	if pickFlag && len(images) == 0 {
		selected, err := zenity.SelectFileMultiple(
			zenity.Title("Select reference images"),
			zenity.FileFilters{
				{Name: "Images", Patterns: []string{"*.jpg", "*.jpeg", "*.png", "*.gif", "*.webp"}, CaseFold: true},
			},
		)
		if err != nil {
			if errors.Is(err, zenity.ErrCanceled) {
				log.Info().Msg("File selection cancelled, continuing without reference images")
			} else {
				return fmt.Errorf("file picker: %w", err)
			}
		}
		images = selected
	}

	batch := imaging.LoadBatch(ctx, images, cfg.NormalizeSize)
	if notice := batch.Notice(); notice != "" {
		fmt.Fprintln(os.Stderr, notice)
	}
	for _, f := range batch.Failed {
		fmt.Fprintf(os.Stderr, "skipping %s: cannot decode\n", f.Name)
	}

	opts := buildOptions()
	enhanced := prompt.Enhance(promptFlag, batch.Analyses(), opts)
	submitPrompt := enhanced.EnhancedPrompt
	if rawPromptFlag {
		submitPrompt = enhanced.BasePrompt
	}
	log.Info().Int("promptLength", len(submitPrompt)).Msg("Prompt prepared")
	log.Debug().Str("prompt", submitPrompt).Msg("Final prompt")

	client := rodin.NewClient(cfg.BaseURL, cfg.APIKey, httpclient.New(httpclient.Options{Timeout: cfg.HTTPTimeout}))
	orch := generate.New(client, cfg.PollInterval, cfg.PollMaxTries, generate.DefaultProxyPath)

	uploads := make([]rodin.UploadImage, len(batch.Items))
	for i, item := range batch.Items {
		uploads[i] = rodin.UploadImage{Name: item.Source.Name, Data: item.Normalized}
	}

	in := generate.Input{
		Prompt:   submitPrompt,
		Images:   uploads,
		Analyses: batch.Analyses(),
		Options:  opts,
	}

	// Progress rendering: the observer stores each snapshot; a one-second
	// ticker turns the latest one into a status line.
	var mu sync.Mutex
	var jobs []rodin.JobStatus
	startedAt := time.Now()
	estimate := generate.Estimate(opts)

	tickerCtx, stopTicker := context.WithCancel(ctx)
	defer stopTicker()
	go func() {
		ticker := time.NewTicker(time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-tickerCtx.Done():
				return
			case now := <-ticker.C:
				mu.Lock()
				snapshot := make([]rodin.JobStatus, len(jobs))
				copy(snapshot, jobs)
				mu.Unlock()
				p := generate.Describe(snapshot, startedAt, estimate, now)
				fmt.Fprintf(os.Stderr, "\r%-40s ~%ds remaining ", p.Phrase, int(p.Remaining/time.Second))
			}
		}
	}()

	result, err := orch.Run(ctx, in, func(_ generate.State, snapshot []rodin.JobStatus) {
		mu.Lock()
		jobs = snapshot
		mu.Unlock()
	})
	stopTicker()
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return err
	}

	output := outputFlag
	if output == "" {
		output = path.Base(result.DownloadURL)
		if idx := strings.IndexByte(output, '?'); idx >= 0 {
			output = output[:idx]
		}
		if output == "" || output == "." {
			output = "model.glb"
		}
	}

	if err := downloadAsset(ctx, client, result.DownloadURL, output); err != nil {
		return err
	}

	fmt.Printf("Model saved to %s\n", output)
	fmt.Printf("Direct download URL: %s\n", result.DownloadURL)
	return nil
}

func buildOptions() rodin.Options {
	opts := rodin.DefaultOptions()
	opts.ConditionMode = rodin.ConditionMode(conditionFlag)
	opts.Quality = rodin.Quality(qualityFlag)
	opts.GeometryFormat = formatFlag
	opts.UseHyper = hyperFlag
	opts.Tier = rodin.Tier(tierFlag)
	opts.TAPose = taPoseFlag
	opts.Material = rodin.Material(materialFlag)
	return opts
}

func downloadAsset(ctx context.Context, client *rodin.Client, assetURL, dest string) error {
	body, _, err := client.FetchAsset(ctx, assetURL)
	if err != nil {
		return err
	}
	defer body.Close()

	f, err := os.Create(dest)
	if err != nil {
		return fmt.Errorf("create output file: %w", err)
	}
	defer f.Close()

	written, err := io.Copy(f, body)
	if err != nil {
		return fmt.Errorf("write model file: %w", err)
	}
	log.Info().Str("path", dest).Int64("bytes", written).Msg("Model downloaded")
	return nil
}
