// Command leitor-qr reads the QR code of a Portuguese AT invoice and prints
// its fields as JSON.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/binito/despesify/internal/config"
	"github.com/binito/despesify/internal/models"
	"github.com/binito/despesify/internal/services"
)

type options struct {
	jsonOut    string
	textFile   string
	configPath string
	format     bool
	verbose    bool
}

// decodeError carries the record printed when an invoice cannot be read
type decodeError struct {
	record *models.ErrorRecord
}

func (e *decodeError) Error() string { return e.record.Error }

func main() {
	// amounts go out as JSON numbers, not quoted strings
	decimal.MarshalJSONWithoutQuotes = true
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) (code int) {
	defer func() {
		if r := recover(); r != nil {
			// exit code already reports the failure
			_ = writeJSON(stderr, map[string]string{"error": fmt.Sprintf("internal error: %v", r)})
			code = 1
		}
	}()

	if args == nil {
		args = []string{}
	}
	cmd := newRootCmd(stdout, stderr)
	cmd.SetArgs(args)
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)

	if err := cmd.Execute(); err != nil {
		var de *decodeError
		if errors.As(err, &de) {
			_ = writeJSON(stdout, de.record)
		} else {
			_ = writeJSON(stdout, map[string]string{"error": err.Error()})
		}
		return 1
	}
	return 0
}

func newRootCmd(stdout, stderr io.Writer) *cobra.Command {
	opts := &options{}
	cmd := &cobra.Command{
		Use:   "leitor-qr <imagem>",
		Short: "Read the AT QR code of a Portuguese invoice",
		Long: `Read the QR code printed on Portuguese invoices (Portaria 195/2020)
and output its fields as JSON.

Examples:
  leitor-qr fatura.jpg
  leitor-qr fatura.jpg --json dados_fatura.json
  leitor-qr fatura.jpg --format
  leitor-qr --text payload.txt`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return decode(cmd.Context(), opts, args, stdout, stderr)
		},
	}

	cmd.Flags().StringVar(&opts.jsonOut, "json", "", "write the JSON record to this file instead of stdout")
	cmd.Flags().StringVarP(&opts.textFile, "text", "t", "", "decode a scanned payload from a text file, skipping detection")
	cmd.Flags().BoolVarP(&opts.format, "format", "f", false, "print a readable report instead of JSON")
	cmd.Flags().StringVarP(&opts.configPath, "config", "c", "", "YAML config file")
	cmd.Flags().BoolVarP(&opts.verbose, "verbose", "v", false, "log detection attempts to stderr")
	return cmd
}

func decode(ctx context.Context, opts *options, args []string, stdout, stderr io.Writer) error {
	if len(args) == 0 && opts.textFile == "" {
		return errors.New("usage: leitor-qr <imagem> [--json <saida.json>] [--text <payload.txt>]")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	cfg, err := config.Load(opts.configPath, false)
	if err != nil {
		return err
	}

	logger := zap.NewNop()
	if opts.verbose {
		if logger, err = zap.NewDevelopment(); err != nil {
			return err
		}
		defer logger.Sync()
	}
	processor := services.NewQRProcessorFromConfig(cfg, logger, nil)

	var outcome *services.Outcome
	if opts.textFile != "" {
		data, err := os.ReadFile(opts.textFile)
		if err != nil {
			return fmt.Errorf("failed to read payload file: %w", err)
		}
		outcome = processor.ProcessText(string(data))
	} else {
		// failures still carry an error record
		outcome, _ = processor.ProcessFile(ctx, args[0])
	}

	res := outcome.Result
	if !res.OK() {
		return &decodeError{record: res.Error}
	}

	if opts.jsonOut != "" {
		if err := writeJSONFile(opts.jsonOut, res.Invoice); err != nil {
			return err
		}
		fmt.Fprintf(stderr, "Dados guardados em: %s\n", opts.jsonOut)
	}

	switch {
	case opts.format:
		if _, err := fmt.Fprintln(stdout, services.FormatInvoice(res)); err != nil {
			return fmt.Errorf("failed to write report: %w", err)
		}
	case opts.jsonOut == "":
		if err := writeJSON(stdout, res.Invoice); err != nil {
			return fmt.Errorf("failed to write record: %w", err)
		}
	}
	return nil
}

func writeJSONFile(path string, v interface{}) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	if err := writeJSON(f, v); err != nil {
		f.Close()
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return f.Close()
}

// writeJSON keeps non-ASCII text (company names, "Café") readable
func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
