package main

import (
	"github.com/spf13/cobra"

	"github.com/lengxu/sensecam"
)

var infoCmd = &cobra.Command{
	Use:   "info <address>",
	Short: "Read identity and capability metadata from one camera",
	Example: `  sensecam info 192.168.1.50 --user admin --pass secret
  sensecam info http://192.168.1.50:8080/onvif/device_service -o yaml`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cam, err := sensecam.Open(args[0], cfg.Username, cfg.Password)
		if err != nil {
			return err
		}

		snapshot := sensecam.Describe(cam)
		out := cmd.OutOrStdout()
		if done, err := render(out, cfg.Output, snapshot); done {
			return err
		}
		printSnapshot(out, snapshot)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(infoCmd)
}
