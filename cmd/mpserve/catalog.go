package main

import (
	"encoding/json"
	"io"

	"github.com/advdv/mphttp"
	"github.com/advdv/mphttp/apidoc"
	"github.com/advdv/mphttp/internal/mediaapi"
	"github.com/cockroachdb/errors"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

func newCatalogCmd() *cobra.Command {
	var (
		format string
		title  string
	)

	cmd := &cobra.Command{
		Use:   "catalog",
		Short: "Print the OpenAPI description of the media API",
		Long: `Print the OpenAPI description of the media API.

Examples:
  # JSON, as served on /openapi.json
  mpserve catalog

  # YAML
  mpserve catalog --format yaml`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			reg := mphttp.NewRegistry()
			mediaapi.New(mediaapi.Config{}).Register(reg)

			doc, err := apidoc.Build(reg, apidoc.Info{Title: title, Version: version})
			if err != nil {
				return err
			}

			data, err := json.MarshalIndent(doc, "", "  ")
			if err != nil {
				return errors.Wrap(err, "encode catalog")
			}

			switch format {
			case "json":
				_, err = cmd.OutOrStdout().Write(append(data, '\n'))
				return err
			case "yaml":
				return writeYAML(cmd.OutOrStdout(), data)
			default:
				return errors.Newf("unsupported format %q (supported: json, yaml)", format)
			}
		},
	}

	cmd.Flags().StringVarP(&format, "format", "f", "json", "output format: json or yaml")
	cmd.Flags().StringVar(&title, "title", "mpserve", "API title")

	return cmd
}

// writeYAML re-encodes a JSON document as block style YAML, keeping the key order.
func writeYAML(w io.Writer, data []byte) error {
	var node yaml.Node
	if err := yaml.Unmarshal(data, &node); err != nil {
		return errors.Wrap(err, "decode catalog")
	}

	blockStyle(&node)

	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)

	if err := enc.Encode(&node); err != nil {
		return errors.Wrap(err, "encode catalog as yaml")
	}

	return enc.Close()
}

// blockStyle drops the flow and quoting styles decoded from JSON. Strings that would read as another
// type are still quoted by the encoder.
func blockStyle(n *yaml.Node) {
	n.Style = 0
	for _, c := range n.Content {
		blockStyle(c)
	}
}
