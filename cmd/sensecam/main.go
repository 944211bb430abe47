package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"

	"github.com/golang/glog"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/lengxu/sensecam/internal/config"
)

var (
	cfgFile string
	v       = viper.New()
	cfg     *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "sensecam",
	Short: "Find ONVIF cameras on the local network and read their metadata",
	Long: `sensecam multicasts a WS-Discovery probe, keeps the ONVIF devices that
answer from the local subnets and queries their device and media services.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// scope and types flags live on several subcommands; bind the running one.
		if f := cmd.Flags().Lookup("scope"); f != nil {
			_ = v.BindPFlag("scope", f)
		}
		if f := cmd.Flags().Lookup("types"); f != nil {
			_ = v.BindPFlag("probe_types", f)
		}
		loaded, err := config.Load(v, cfgFile)
		if err != nil {
			return err
		}
		cfg = loaded
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./sensecam.yaml or $HOME/sensecam.yaml)")
	rootCmd.PersistentFlags().StringP("output", "o", "text", "output format: text, json or yaml")
	rootCmd.PersistentFlags().String("user", "admin", "ONVIF username")
	rootCmd.PersistentFlags().String("pass", "", "ONVIF password")
	_ = v.BindPFlag("output", rootCmd.PersistentFlags().Lookup("output"))
	_ = v.BindPFlag("username", rootCmd.PersistentFlags().Lookup("user"))
	_ = v.BindPFlag("password", rootCmd.PersistentFlags().Lookup("pass"))

	// glog registers -v, -logtostderr and friends on the standard flag set.
	rootCmd.PersistentFlags().AddGoFlagSet(flag.CommandLine)
}

func main() {
	_ = flag.CommandLine.Parse(nil)
	defer glog.Flush()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		glog.Flush()
		os.Exit(1)
	}
}
