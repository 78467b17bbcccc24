package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	visual "github.com/zhouzirui/robot-face/backend/internal/analysis/face"
	"github.com/zhouzirui/robot-face/backend/internal/model/emotion"
)

type renderOptions struct {
	emotion string
	blink   bool
	out     string
	all     string
}

func newRootCmd() *cobra.Command {
	opts := &renderOptions{}

	cmd := &cobra.Command{
		Use:   "facerender",
		Short: "Render robot face frames as SVG",
		Long: `Render the robot face for one emotion to stdout or a file, or
render every selectable emotion (open and blinking) into a directory.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if opts.all != "" {
				return renderAll(opts.all)
			}
			return renderOne(cmd.OutOrStdout(), opts)
		},
	}

	cmd.Flags().StringVarP(&opts.emotion, "emotion", "e", string(emotion.Neutral), "emotion to render")
	cmd.Flags().BoolVarP(&opts.blink, "blink", "b", false, "render with eyes closed")
	cmd.Flags().StringVarP(&opts.out, "out", "o", "", "output file, stdout when empty")
	cmd.Flags().StringVar(&opts.all, "all", "", "render every emotion into this directory")

	return cmd
}

func renderOne(stdout io.Writer, opts *renderOptions) error {
	e, ok := emotion.Parse(opts.emotion)
	if !ok {
		return fmt.Errorf("unknown emotion %q", opts.emotion)
	}
	frame := visual.Frame(e, opts.blink)

	if opts.out == "" {
		return visual.RenderSVG(stdout, frame)
	}
	return writeFrame(opts.out, frame)
}

func renderAll(dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}

	for _, e := range emotion.Selectable() {
		for _, blink := range []bool{false, true} {
			name := strings.ToLower(e.String())
			if blink {
				name += "-blink"
			}
			path := filepath.Join(dir, name+".svg")
			if err := writeFrame(path, visual.Frame(e, blink)); err != nil {
				return err
			}
			log.Info("rendered", "emotion", e, "blink", blink, "path", path)
		}
	}
	return nil
}

func writeFrame(path string, frame visual.VisualFrame) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	if err := visual.RenderSVG(f, frame); err != nil {
		_ = f.Close()
		return fmt.Errorf("render %s: %w", path, err)
	}
	return f.Close()
}
