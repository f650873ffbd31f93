package commands

import (
	"fmt"
	"log/slog"

	"cbvault/pkg/app"
	"cbvault/pkg/media/encode"
	"cbvault/pkg/season"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	seasonInput    string
	seasonData     string
	seasonOutput   string
	seasonMetadata string
)

var validateCmd = &cobra.Command{
	Use:         "validate",
	Short:       "Validate season and recording JSON and check that referenced files exist",
	Args:        cobra.NoArgs,
	Annotations: map[string]string{standalone: "true"},
	RunE: func(cmd *cobra.Command, args []string) error {
		problems, err := season.Validate(cmd.OutOrStdout(), seasonInput, seasonData)
		if err != nil {
			return err
		}
		if problems > 0 {
			return fmt.Errorf("found %d errors, review the logs above", problems)
		}
		fmt.Fprintln(cmd.OutOrStdout(), "\nNo errors found")
		return nil
	},
}

var convertCmd = &cobra.Command{
	Use:         "convert",
	Short:       "Encode missing Ogg Vorbis files from their FLAC originals",
	Args:        cobra.NoArgs,
	Annotations: map[string]string{standalone: "true"},
	RunE: func(cmd *cobra.Command, args []string) error {
		// 转码需要最新的数据目录，不能从元数据文件运行
		s, err := season.Load(seasonInput, seasonData)
		if err != nil {
			return err
		}
		n, err := encode.ConvertMissing(cmd.Context(), app.Converter(), s.ConversionPairs(), slog.Default())
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "✅ Converted %d files\n", n)
		return nil
	},
}

var renderCmd = &cobra.Command{
	Use:   "render",
	Short: "Render the season site: index pages, playlist and metadata",
	Long: `Renders index.html for the season and each recording plus playlist.m3u into --output.
With --data the season is loaded from disk and probed with mediainfo; without it the
season is read back from --metadata. When --metadata is given it is (re)written afterwards.`,
	Args:        cobra.NoArgs,
	Annotations: map[string]string{standalone: "true"},
	RunE: func(cmd *cobra.Command, args []string) error {
		if seasonOutput == "" {
			return fmt.Errorf("--output is required")
		}

		var (
			s   *season.Season
			err error
		)
		switch {
		case seasonData != "":
			s, err = season.Load(seasonInput, seasonData)
			if err != nil {
				return err
			}
			if err := s.Probe(cmd.Context(), app.MediaProber()); err != nil {
				return err
			}
		case seasonMetadata != "":
			s, err = season.LoadMetadata(seasonMetadata)
			if err != nil {
				return err
			}
		default:
			return fmt.Errorf("one of --data or --metadata is required")
		}

		err = season.Render(s, seasonOutput, season.RenderOptions{
			Artist:       viper.GetString("render.artist"),
			PlaylistBase: viper.GetString("render.playlist_base"),
		})
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "✅ Rendered %d recordings into %s\n", len(s.Recordings), seasonOutput)

		if seasonMetadata != "" {
			if err := season.WriteMetadata(s, seasonMetadata); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "📝 Wrote metadata to %s\n", seasonMetadata)
		}
		return nil
	},
}

func init() {
	for _, c := range []*cobra.Command{validateCmd, convertCmd, renderCmd} {
		c.Flags().StringVarP(&seasonInput, "input", "i", "", "path to season.json")
		c.Flags().StringVarP(&seasonData, "data", "d", "", "data directory holding each recording's data_folder")
		rootCmd.AddCommand(c)
	}
	_ = validateCmd.MarkFlagRequired("input")
	_ = validateCmd.MarkFlagRequired("data")
	_ = convertCmd.MarkFlagRequired("input")
	_ = convertCmd.MarkFlagRequired("data")
	renderCmd.Flags().StringVarP(&seasonOutput, "output", "o", "", "output directory for the site")
	renderCmd.Flags().StringVarP(&seasonMetadata, "metadata", "m", "", "metadata JSON to read (without --data) and write")
}
