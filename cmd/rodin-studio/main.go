// rodin-studio is a client for the Rodin 3D model generation service.
//
// The generate subcommand runs the full pipeline from the terminal: analyze
// and normalize reference images, enhance the prompt, submit, poll until
// completion, and download the resulting GLB. The serve subcommand runs the
// local HTTP gateway a browser front end talks to.
package main

import (
	"os"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/fpang/rodin-studio/internal/logging"
)

var rootCmd = &cobra.Command{
	Use:   "rodin-studio",
	Short: "Generate 3D models from text and reference images",
	Long: `rodin-studio submits text prompts and reference images to the Rodin
3D generation service, polls until the model is ready, and downloads the
result.

Reference images are analyzed locally (lighting, contrast, sharpness,
dominant colors, transparency) and the findings are folded into the prompt
as descriptive hints before submission.

Examples:
  rodin-studio generate --prompt "a red leather armchair"
  rodin-studio generate -p "garden gnome" -i front.jpg -i side.jpg --quality high
  rodin-studio generate --pick --hyper
  rodin-studio serve --listen :8090`,
	PersistentPreRun: func(_ *cobra.Command, _ []string) {
		// A local .env next to the binary supplies RODIN_API_KEY during
		// development; absence is fine.
		_ = godotenv.Load()
		logging.Init()
	},
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		log.Error().Err(err).Msg("Command failed")
		os.Exit(1)
	}
}
