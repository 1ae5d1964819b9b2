package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/schollz/progressbar/v3"

	haven "github.com/AivinJoy/haven-daw"
	"github.com/AivinJoy/haven-daw/asset"
	"github.com/AivinJoy/haven-daw/engine"
)

func main() {
	output := flag.String("o", "", "Output file. By default, <project>.wav next to the project file.")
	pcm := flag.Bool("c", false, "Render 16-bit signed PCM instead of 32-bit float.")
	rate := flag.Int("r", 48000, "Render sample rate.")
	help := flag.Bool("h", false, "Show help.")
	flag.Usage = printUsage
	flag.Parse()
	if flag.NArg() != 1 || *help {
		flag.Usage()
		os.Exit(0)
	}
	projectPath := flag.Arg(0)

	data, err := os.ReadFile(projectPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "could not read project: %v\n", err)
		os.Exit(1)
	}
	project, err := haven.UnmarshalProject(data)
	if err != nil {
		fmt.Fprintf(os.Stderr, "could not parse project: %v\n", err)
		os.Exit(1)
	}

	cache := asset.NewCache(asset.DefaultRegistry())
	handles := make(map[string]asset.Handle)
	for i := range project.Tracks {
		for _, clip := range project.Tracks[i].Clips {
			if _, ok := handles[clip.ID]; ok {
				continue
			}
			h, err := cache.GetOrLoad(clip.SourcePath)
			if err != nil {
				fmt.Fprintf(os.Stderr, "skipping clip %s: %v\n", clip.ID, err)
				continue
			}
			handles[clip.ID] = h
		}
	}

	out := *output
	if out == "" {
		out = strings.TrimSuffix(projectPath, filepath.Ext(projectPath)) + ".wav"
	}
	f, err := os.Create(out)
	if err != nil {
		fmt.Fprintf(os.Stderr, "could not create output: %v\n", err)
		os.Exit(1)
	}

	bar := progressbar.NewOptions(100,
		progressbar.OptionSetDescription("rendering"),
		progressbar.OptionShowCount(),
	)
	err = engine.RenderProject(context.Background(), &project,
		func(c haven.Clip) *asset.Source {
			if h, ok := handles[c.ID]; ok {
				return h.Source()
			}
			return nil
		},
		f,
		engine.RenderOptions{
			SampleRate: *rate,
			PCM16:      *pcm,
			Progress: func(done, total float64) {
				if total > 0 {
					bar.Set(int(done / total * 100))
				}
			},
		})
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(out)
		fmt.Fprintf(os.Stderr, "\nrender failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("\nwrote %s\n", out)
}

func printUsage() {
	fmt.Fprintf(os.Stderr, "Render a haven project to a WAV file, offline.\nUsage: %s [flags] project.json\n", os.Args[0])
	flag.PrintDefaults()
}
