package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/dgnsrekt/speechify/internal/document"
	"github.com/dgnsrekt/speechify/internal/source"
	"github.com/dgnsrekt/speechify/internal/watch"
)

var (
	watchType   string
	watchSource string

	watchCmd = &cobra.Command{
		Use:     "watch DIR",
		Short:   "Submit files as they appear in a directory",
		Long:    paragraph(fmt.Sprintf("\n%s a directory and submit every file written to it. Markdown is rendered to HTML; .tsv files are read as stock ticker feeds.", keyword("Watch"))),
		Example: paragraph("speechify watch ~/inbox\nspeechify watch ./events --type json --source feeds.events"),
		Args:    cobra.ExactArgs(1),
		RunE:    runWatch,
	}
)

func init() {
	watchCmd.Flags().StringVarP(&watchType, "type", "t", "", "force the document type of every file")
	watchCmd.Flags().StringVarP(&watchSource, "source", "s", "", "force the document source of every file")
	watchCmd.Flags().Duration("debounce", 0, "quiet period before a changed file is read")
	_ = viper.BindPFlag("watch.debounce", watchCmd.Flags().Lookup("debounce"))
}

func runWatch(cmd *cobra.Command, args []string) error {
	opts := source.Options{Source: watchSource}
	if watchType != "" {
		t, err := document.ParseDataType(watchType)
		if err != nil {
			return err //nolint:wrapcheck
		}
		opts.Type = t
	}

	c, err := newClient()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	wopts := []watch.Option{
		watch.WithLogger(log.WithPrefix("watch")),
		watch.WithSourceOptions(opts),
	}
	if d := viper.GetDuration("watch.debounce"); d > 0 {
		wopts = append(wopts, watch.WithDebounce(d))
	}

	return watch.New(expandPath(args[0]), c, wopts...).Run(ctx) //nolint:wrapcheck
}
