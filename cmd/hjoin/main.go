package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/daviszhen/hashjoin/pkg/join"
	"github.com/daviszhen/hashjoin/pkg/util"
)

func init() {
	cobra.OnInitialize(loadConfig)
	initRunCmd()
}

var hjoinCfg = &util.Config{}
var joinSettings = join.DefaultSettings()

var info = "hjoin runs a hash join over csv or parquet files"
var RootCmd = &cobra.Command{
	Use:          "hjoin",
	Short:        info,
	Long:         info,
	SilenceUsage: true,
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println("use hjoin --help or -h")
	},
}

var jobPath string

var runInfo = "run the join job in a toml file"
var runCmd = &cobra.Command{
	Use:   "run",
	Short: runInfo,
	Long:  runInfo,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := initRunCfg(); err != nil {
			return err
		}
		job, err := loadJob(jobPath)
		if err != nil {
			return err
		}
		run := &runner{cfg: hjoinCfg, settings: joinSettings, out: os.Stdout}
		return run.run(context.Background(), job)
	},
}

func initLogConfig() error {
	hjoinCfg.Log.Level = viper.GetString("log.level")
	hjoinCfg.Log.Format = viper.GetString("log.format")
	hjoinCfg.Log.File = viper.GetString("log.file")
	hjoinCfg.Log.MaxSizeMB = viper.GetInt("log.maxSizeMB")
	hjoinCfg.Log.MaxBackups = viper.GetInt("log.maxBackups")
	hjoinCfg.Log.MaxAgeDays = viper.GetInt("log.maxAgeDays")
	return util.InitLogger(hjoinCfg.Log)
}

func initDebugOptions() {
	hjoinCfg.Debug.ShowRaw = viper.GetBool("debug.showRaw")
	hjoinCfg.Debug.MaxOutputRowCount = viper.GetInt("debug.maxOutputRowCount")
	hjoinCfg.Debug.PrintResult = viper.GetBool("debug.printResult")
	hjoinCfg.Debug.PrintExplain = viper.GetBool("debug.printExplain")
	hjoinCfg.Debug.SortResult = viper.GetBool("debug.sortResult")
}

func initJoinSettings() {
	def := join.DefaultSettings()
	getInt := func(key string, def int) int {
		if viper.IsSet(key) {
			return viper.GetInt(key)
		}
		return def
	}
	joinSettings.MaxBlockSize = getInt("join.max_block_size", def.MaxBlockSize)
	joinSettings.ProbeEnablePrefetchThreshold = getInt("join.probe_enable_prefetch_threshold", def.ProbeEnablePrefetchThreshold)
	joinSettings.ProbePrefetchStep = getInt("join.probe_prefetch_step", def.ProbePrefetchStep)
	joinSettings.PointerTableBuildRowsPerCall = getInt("join.pointer_table_build_rows_per_call", def.PointerTableBuildRowsPerCall)
	joinSettings.LateMaterializationThreshold = getInt("join.late_materialization_threshold", def.LateMaterializationThreshold)
	joinSettings.BuildConcurrency = getInt("join.build_concurrency", def.BuildConcurrency)
	joinSettings.ProbeConcurrency = getInt("join.probe_concurrency", def.ProbeConcurrency)
	joinSettings.EnableTaggedPointer = def.EnableTaggedPointer
	if viper.IsSet("join.enable_tagged_pointer") {
		joinSettings.EnableTaggedPointer = viper.GetBool("join.enable_tagged_pointer")
	}
	joinSettings.PointerTableLoadFactor = def.PointerTableLoadFactor
	if viper.IsSet("join.pointer_table_load_factor") {
		joinSettings.PointerTableLoadFactor = viper.GetFloat64("join.pointer_table_load_factor")
	}
}

func initRunCfg() error {
	if err := initLogConfig(); err != nil {
		return err
	}
	initDebugOptions()
	initJoinSettings()
	util.Debug("hjoin settings", zap.Any("join", joinSettings), zap.Any("debug", hjoinCfg.Debug))
	return nil
}

func initRunCmd() {
	RootCmd.AddCommand(runCmd)
	runCmd.Flags().StringVar(&jobPath, "job", "", "join job toml file")
	runCmd.Flags().Int("build_concurrency", 1, "build workers")
	runCmd.Flags().Int("probe_concurrency", 1, "probe workers")
	runCmd.Flags().Int("max_block_size", join.DefaultSettings().MaxBlockSize, "rows per result block")
	runCmd.Flags().Bool("print_result", true, "print the join result")
	runCmd.Flags().Bool("print_explain", false, "print the join tree")
	runCmd.Flags().Bool("sort_result", false, "print the result sorted")
	runCmd.Flags().Int("max_output_row_count", 0, "print at most this many rows, 0 prints all")
	_ = runCmd.MarkFlagRequired("job")

	viper.BindPFlag("join.build_concurrency", runCmd.Flags().Lookup("build_concurrency"))
	viper.BindPFlag("join.probe_concurrency", runCmd.Flags().Lookup("probe_concurrency"))
	viper.BindPFlag("join.max_block_size", runCmd.Flags().Lookup("max_block_size"))
	viper.BindPFlag("debug.printResult", runCmd.Flags().Lookup("print_result"))
	viper.BindPFlag("debug.printExplain", runCmd.Flags().Lookup("print_explain"))
	viper.BindPFlag("debug.sortResult", runCmd.Flags().Lookup("sort_result"))
	viper.BindPFlag("debug.maxOutputRowCount", runCmd.Flags().Lookup("max_output_row_count"))
}

var defCfgFilePaths = []string{".", "etc/hjoin"}
var cfgFileName = "hjoin.toml"

// loadConfig reads hjoin.toml when one exists. Flags and defaults cover
// a missing file.
func loadConfig() {
	for _, dirPath := range defCfgFilePaths {
		fpath := filepath.Join(dirPath, cfgFileName)
		if !util.FileIsValid(fpath) {
			continue
		}
		viper.SetConfigFile(fpath)
		if err := viper.ReadInConfig(); err != nil {
			util.Error("viper load config file failed",
				zap.String("fpath", fpath),
				zap.Error(err))
			continue
		}
		return
	}
	util.Info("hjoin.toml not found, using defaults")
}

func main() {
	if err := RootCmd.Execute(); err != nil {
		util.Error("hjoin failed", zap.Error(err))
		os.Exit(1)
	}
}
