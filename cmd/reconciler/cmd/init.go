package cmd

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"golang-bank-reconciliation/cmd/reconciler/config"
	"golang-bank-reconciliation/internal/reporter"
	"golang-bank-reconciliation/pkg/errors"
)

const (
	expectedTemplate = "id,fecha,monto,moneda,descripcion,referencia,rut\n" +
		"E-0001,2024-03-05,150000,CLP,Factura 1001 cliente,FAC-1001,76123456-7\n"

	bankTemplate = "id,fecha_operacion,fecha_contable,monto,moneda,descripcion,referencia,cuenta,banco\n" +
		"B-0001,2024-03-05,2024-03-06,150000,CLP,Transferencia recibida,FAC-1001,0012345678,\n"
)

func newInitCommand() *cobra.Command {
	var outDir, client string
	var force bool

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a starter client configuration and input templates",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInit(cmd.OutOrStdout(), outDir, client, force)
		},
	}

	cmd.Flags().StringVar(&outDir, "out-dir", ".", "directory to write the templates into")
	cmd.Flags().StringVar(&client, "client", "my-client", "client name stored in the configuration")
	cmd.Flags().BoolVar(&force, "force", false, "overwrite existing files")
	return cmd
}

func runInit(out io.Writer, dir, client string, force bool) error {
	cfg, err := config.Template(client)
	if err != nil {
		return errors.InternalError(errors.CodeUnexpectedError, "render_config_template", err)
	}

	files := []struct {
		name    string
		content []byte
	}{
		{"client_config.yaml", cfg},
		{"expected.csv", []byte(expectedTemplate)},
		{"bank.csv", []byte(bankTemplate)},
	}

	if !force {
		for _, f := range files {
			path := filepath.Join(dir, f.name)
			if _, err := os.Stat(path); err == nil {
				return errors.UserInputError(errors.CodeInvalidArgument,
					fmt.Sprintf("%s already exists", path), nil).
					WithSuggestion("pass --force to overwrite the templates")
			}
		}
	}

	for _, f := range files {
		path := filepath.Join(dir, f.name)
		content := f.content
		if err := reporter.AtomicWrite(path, func(w io.Writer) error {
			_, werr := w.Write(content)
			return werr
		}); err != nil {
			return err
		}
		fmt.Fprintf(out, "wrote %s\n", path)
	}
	return nil
}
