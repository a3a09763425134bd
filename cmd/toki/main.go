package main

import (
	"fmt"
	"os"

	"github.com/franz/toki/internal/util"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	// Version is set at build time
	Version = "dev"

	cfgFile string

	rootCmd = &cobra.Command{
		Use:   "toki",
		Short: "Rename and organize photos and videos by capture time",
		Long: `toki gives photos and videos canonical, sortable names derived from when
they were captured, and organizes them into a YYYY/MM/DD library.

Names look like 20241130_143022_A_iPhone_15_Pro_1a2b3c4d.jpg: capture time,
confidence (A = embedded metadata, C = file modification time), camera model
and a short content hash. Every destination is planned before anything is
moved, so existing files are never overwritten and --dry-run shows exactly
what a real run would do.`,
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			util.SetVerbose(viper.GetBool("verbose"))
			util.SetQuiet(viper.GetBool("quiet"))
		},
	}
)

func init() {
	cobra.OnInitialize(initConfig)

	// Global flags
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&cfgFile, "config", "", "config file (default is ./configs/toki.yaml)")
	flags.BoolP("verbose", "v", false, "verbose output")
	flags.BoolP("quiet", "q", false, "quiet output (errors only)")
	flags.String("journal", "", "SQLite run journal (disabled when empty)")
	flags.String("event-log", "", "directory for the JSONL event log (disabled when empty)")
	flags.String("event-level", "info", "minimum event log level: debug, info, warning, error")
	flags.String("report", "", "write a Markdown summary report to this file")
	flags.String("hash", "md5", "content digest: md5, xxhash, blake3")
	flags.String("verify", "size", "post-transfer verification: none, size, hash")
	flags.Bool("nas-mode", false, "force network storage tuning on or off (default: auto-detect)")
	flags.Bool("ffprobe", true, "use ffprobe for videos without embedded timestamps, when installed")
	flags.StringSlice("ext", nil, "additional file extensions to treat as media")

	// Bind flags to viper
	for _, key := range []string{"verbose", "quiet", "journal", "event-log", "event-level", "report", "hash", "verify", "nas-mode", "ffprobe"} {
		viper.BindPFlag(key, flags.Lookup(key))
	}
	viper.BindPFlag("extensions", flags.Lookup("ext"))
}

func initConfig() {
	if cfgFile != "" {
		// Use config file from the flag
		viper.SetConfigFile(cfgFile)
	} else {
		// Search for config in common locations
		viper.AddConfigPath("./configs")
		viper.AddConfigPath(".")
		viper.SetConfigName("toki")
		viper.SetConfigType("yaml")
	}

	// Read in environment variables that match
	viper.SetEnvPrefix("TOKI")
	viper.SetEnvKeyReplacer(envKeyReplacer)
	viper.AutomaticEnv()

	// If a config file is found, read it in
	if err := viper.ReadInConfig(); err == nil && !viper.GetBool("quiet") {
		util.InfoLog("Using config file: %s", viper.ConfigFileUsed())
	}
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
