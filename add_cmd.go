package main

import (
	"errors"
	"fmt"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/dgnsrekt/speechify/internal/document"
	"github.com/dgnsrekt/speechify/internal/source"
)

var (
	addType      string
	addSource    string
	addClipboard bool

	addCmd = &cobra.Command{
		Use:     "add [FILE|URL|-]",
		Short:   "Submit a document to the queue",
		Long:    paragraph(fmt.Sprintf("\n%s a file, a web page, stdin or the clipboard to the ingestion server. The document type is inferred unless given.", keyword("Submit"))),
		Example: paragraph("speechify add notes.txt\nspeechify add https://example.com/post.html\ncurl -s https://example.com/event.json | speechify add --type json --source feeds.events\nspeechify add --clipboard"),
		Args:    cobra.MaximumNArgs(1),
		RunE:    runAdd,
	}
)

func init() {
	addCmd.Flags().StringVarP(&addType, "type", "t", "", "document type: text, html or json")
	addCmd.Flags().StringVarP(&addSource, "source", "s", "", "document source (defaults to the file name or URL)")
	addCmd.Flags().BoolVarP(&addClipboard, "clipboard", "c", false, "read the document from the clipboard")
}

func runAdd(cmd *cobra.Command, args []string) error {
	opts := source.Options{Source: addSource}
	if addType != "" {
		t, err := document.ParseDataType(addType)
		if err != nil {
			return err //nolint:wrapcheck
		}
		opts.Type = t
	}

	doc, err := readDocument(cmd, args, opts)
	if err != nil {
		return err
	}

	c, err := newClient()
	if err != nil {
		return err
	}

	ok, err := c.AddToQueue(cmd.Context(), doc)
	if err != nil {
		return fmt.Errorf("unable to submit document: %w", err)
	}
	if !ok {
		return fmt.Errorf("server did not queue %s (%s): nothing to narrate", doc.Source, doc.Type)
	}

	log.Info("Queued document", "source", doc.Source, "type", doc.Type)
	return nil
}

func readDocument(cmd *cobra.Command, args []string, opts source.Options) (document.Document, error) {
	if addClipboard {
		if len(args) > 0 {
			return document.Document{}, errors.New("cannot use --clipboard with a source argument")
		}
		return source.Clipboard(opts) //nolint:wrapcheck
	}

	arg := "-"
	if len(args) > 0 {
		arg = args[0]
	} else if yes, err := stdinIsPipe(); err != nil {
		return document.Document{}, err
	} else if !yes {
		return document.Document{}, errors.New("missing source: pass a file, a URL, - or --clipboard")
	}

	doc, err := source.Load(cmd.Context(), arg, opts)
	if err != nil {
		return document.Document{}, fmt.Errorf("unable to read %s: %w", arg, err)
	}
	return doc, nil
}
