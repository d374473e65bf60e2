package main

import (
	"io"
	"os"

	"github.com/advdv/mphttp/internal/mediaapi"
	"github.com/advdv/mphttp/render"
	"github.com/cockroachdb/errors"
	"github.com/spf13/cobra"
)

func newRenderCmd() *cobra.Command {
	var (
		bundle string
		args   map[string]string
	)

	cmd := &cobra.Command{
		Use:   "render <template>",
		Short: "Render a template with the given arguments",
		Long: `Render a template with the given arguments. The built-in templates are always available,
a bundle adds more.

Examples:
  # Preview the error page
  mpserve render error.html --arg code=404 --arg name="Not Found" --arg detail=gone --arg server=mp

  # Render a template from a bundle
  mpserve render motd --bundle templates.yaml --arg user=alice`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, names []string) error {
			m := render.NewDefaultManager()
			if err := mediaapi.RegisterTemplates(m); err != nil {
				return err
			}

			if bundle != "" {
				if err := loadBundle(m, bundle); err != nil {
					return err
				}
			}

			targs := render.Args{}
			for k, v := range args {
				if err := targs.Add(k, v); err != nil {
					return err
				}
			}

			out, err := m.Render(names[0], targs)
			if err != nil {
				return err
			}

			_, err = io.WriteString(cmd.OutOrStdout(), out)

			return err
		},
	}

	cmd.Flags().StringVarP(&bundle, "bundle", "b", "", "YAML template bundle to load")
	cmd.Flags().StringToStringVarP(&args, "arg", "a", nil, "template argument as name=value, repeatable")

	return cmd
}

func loadBundle(m *render.Manager, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return errors.Wrap(err, "open bundle")
	}
	defer f.Close()

	return m.LoadBundle(f)
}
